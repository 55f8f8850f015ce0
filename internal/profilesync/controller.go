// Package profilesync owns the canonical profile and plan of one signed-in
// user and reconciles initial loads, local edits, saves, plan generations and
// change notifications pushed by the profile store.
package profilesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/auth"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/metrics"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/models"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/services"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const SuccessDisplayDuration = 5 * time.Second

const (
	MsgProfileSaved  = "Profile saved successfully!"
	MsgPlanSaved     = "Fitness plan generated and saved successfully!"
	MsgLoadFailed    = "Failed to load profile."
	MsgLoginRequired = "You must be logged in to save your profile."
)

type Store interface {
	GetByUserID(ctx context.Context, userID string) (*models.ProfileRecord, error)
	Upsert(ctx context.Context, record *models.ProfileRecord) error
}

// Subscriber delivers change events for one user id. The returned func
// releases the subscription and may be called more than once.
type Subscriber interface {
	Subscribe(userID string, handler func(models.ProfileEvent)) (unsubscribe func())
}

type PlanGenerator interface {
	Generate(ctx context.Context, profile models.Profile, bmi float64, saver services.PlanSaver) (*models.Plan, error)
}

// Snapshot is a consistent copy of the controller state.
type Snapshot struct {
	State   models.SyncState     `json:"state"`
	UserID  string               `json:"user_id,omitempty"`
	Profile models.Profile       `json:"profile"`
	Plan    *models.Plan         `json:"plan"`
	BMI     float64              `json:"bmi"`
	Status  models.StatusMessage `json:"status"`
}

type Controller struct {
	store      Store
	subscriber Subscriber
	generator  PlanGenerator
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	afterFunc  func(time.Duration, func()) *time.Timer

	mu    sync.Mutex
	state models.SyncState

	// epoch changes on every sign-in and sign-out and guards the push
	// subscription and the load. identity changes only when the signed-in
	// user does; saves and status updates are pinned to it, so a token
	// refresh for the same user keeps in-flight work valid.
	epoch         uint64
	identity      uint64
	userID        string
	profile       models.Profile
	plan          *models.Plan
	status        models.StatusMessage
	statusGen     uint64
	statusTimer   *time.Timer
	unsubscribe   func()
	observers     map[int]func(Snapshot)
	nextObserver  int
	notifyMu      sync.Mutex
	flights       singleflight.Group
}

type Option func(*Controller)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

func NewController(store Store, subscriber Subscriber, generator PlanGenerator, opts ...Option) *Controller {
	c := &Controller{
		store:      store,
		subscriber: subscriber,
		generator:  generator,
		logger:     zap.NewNop(),
		now:        time.Now,
		afterFunc:  time.AfterFunc,
		state:      models.SyncStateUnauthenticated,
		profile:    models.DefaultProfile(),
		observers:  make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	status := c.status
	if status.Success != "" && status.ExpiresAt != nil && !c.now().Before(*status.ExpiresAt) {
		status.Success = ""
		status.ExpiresAt = nil
	}
	return Snapshot{
		State:   c.state,
		UserID:  c.userID,
		Profile: c.profile,
		Plan:    c.plan,
		BMI:     services.ProfileBMI(c.profile),
		Status:  status,
	}
}

// OnChange registers an observer that receives a snapshot after every
// mutation. Observers run one at a time, in mutation order, and must not call
// back into mutating methods.
func (c *Controller) OnChange(observer func(Snapshot)) (remove func()) {
	c.mu.Lock()
	id := c.nextObserver
	c.nextObserver++
	c.observers[id] = observer
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

func (c *Controller) notify() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	snapshot := c.snapshotLocked()
	observers := make([]func(Snapshot), 0, len(c.observers))
	for _, observer := range c.observers {
		observers = append(observers, observer)
	}
	c.mu.Unlock()

	for _, observer := range observers {
		observer(snapshot)
	}
}

// Bind follows the provider's session stream. The current session, if any, is
// loaded before Bind returns.
func (c *Controller) Bind(ctx context.Context, provider auth.Provider) (unbind func()) {
	unbind = provider.Subscribe(func(session *auth.Session) {
		if err := c.HandleAuthChange(ctx, session); err != nil {
			c.logger.Warn("Profile sync after auth change failed", zap.Error(err))
		}
	})
	if session := provider.Session(); session != nil {
		if err := c.HandleAuthChange(ctx, session); err != nil {
			c.logger.Warn("Initial profile load failed", zap.Error(err))
		}
	}
	return unbind
}

// HandleAuthChange moves to Loading, replaces the push subscription and
// fetches the stored record for the session's user. A missing record keeps
// the defaults. A nil session signs out.
func (c *Controller) HandleAuthChange(ctx context.Context, session *auth.Session) error {
	if session == nil {
		c.reset()
		return nil
	}

	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	previous := c.unsubscribe
	c.unsubscribe = nil
	if c.userID != session.UserID {
		c.identity++
		c.profile = models.DefaultProfile()
		c.plan = nil
		c.clearStatusLocked()
	}
	c.userID = session.UserID
	c.state = models.SyncStateLoading
	c.mu.Unlock()

	if previous != nil {
		previous()
	}
	c.notify()

	var unsubscribe func()
	if c.subscriber != nil {
		unsubscribe = c.subscriber.Subscribe(session.UserID, func(event models.ProfileEvent) {
			c.applyPush(epoch, event)
		})
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
		return nil
	}
	c.unsubscribe = unsubscribe
	c.mu.Unlock()

	record, err := c.store.GetByUserID(ctx, session.UserID)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.status.Error = MsgLoadFailed
	} else if record != nil {
		c.profile = RecordToProfile(record)
		if record.LastPlan != nil {
			c.plan = record.LastPlan
		}
	}
	c.state = models.SyncStateSynced
	c.mu.Unlock()
	c.notify()

	if err != nil {
		c.logger.Error("Failed to load profile", zap.String("user_id", session.UserID), zap.Error(err))
		return &PersistenceError{Op: "load", Err: err}
	}
	c.logger.Debug("Profile loaded", zap.String("user_id", session.UserID), zap.Bool("found", record != nil))
	return nil
}

func (c *Controller) reset() {
	c.mu.Lock()
	c.epoch++
	c.identity++
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.userID = ""
	c.profile = models.DefaultProfile()
	c.plan = nil
	c.state = models.SyncStateUnauthenticated
	c.clearStatusLocked()
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.notify()
}

// Close releases the push subscription and pending timers. The state is left
// as is.
func (c *Controller) Close() {
	c.mu.Lock()
	c.epoch++
	c.identity++
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	if c.statusTimer != nil {
		c.statusTimer.Stop()
		c.statusTimer = nil
	}
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Edit replaces the editable profile. Nothing is persisted until Save.
func (c *Controller) Edit(profile models.Profile) {
	c.mu.Lock()
	c.profile = profile
	c.mu.Unlock()
	c.notify()
}

// Save upserts the current profile and plan. The write is unconditional; the
// last writer wins.
func (c *Controller) Save(ctx context.Context) error {
	c.mu.Lock()
	if c.userID == "" {
		c.status.Error = MsgLoginRequired
		c.mu.Unlock()
		c.notify()
		return services.ErrNotAuthenticated
	}
	identity := c.identity
	record := ProfileToRecord(c.userID, c.profile, c.plan)
	c.mu.Unlock()

	if err := c.upsert(ctx, identity, &record); err != nil {
		return err
	}
	c.setSuccess(identity, MsgProfileSaved)
	return nil
}

// SavePlan makes plan current and persists it with the current profile.
func (c *Controller) SavePlan(ctx context.Context, plan *models.Plan) error {
	c.mu.Lock()
	identity := c.identity
	c.mu.Unlock()
	return c.savePlan(ctx, identity, plan)
}

func (c *Controller) savePlan(ctx context.Context, identity uint64, plan *models.Plan) error {
	c.mu.Lock()
	if c.identity != identity || c.userID == "" {
		c.mu.Unlock()
		return services.ErrNotAuthenticated
	}
	c.plan = plan
	record := ProfileToRecord(c.userID, c.profile, plan)
	c.mu.Unlock()
	c.notify()

	return c.upsert(ctx, identity, &record)
}

func (c *Controller) upsert(ctx context.Context, identity uint64, record *models.ProfileRecord) error {
	if err := c.store.Upsert(ctx, record); err != nil {
		c.logger.Error("Failed to save profile", zap.String("user_id", record.UserID), zap.Error(err))
		c.setError(identity, "Failed to save profile: "+err.Error())
		return &PersistenceError{Op: "save", Err: err}
	}
	c.logger.Debug("Profile saved", zap.String("user_id", record.UserID), zap.Bool("with_plan", record.LastPlan != nil))
	return nil
}

// identitySaver pins plan persistence to the user the generation started for.
type identitySaver struct {
	controller *Controller
	identity   uint64
}

func (s identitySaver) SavePlan(ctx context.Context, plan *models.Plan) error {
	return s.controller.savePlan(ctx, s.identity, plan)
}

// GeneratePlan runs the plan pipeline on the current profile. Concurrent
// calls for the same user share one upstream request.
func (c *Controller) GeneratePlan(ctx context.Context) (*models.Plan, error) {
	c.mu.Lock()
	key := c.userID
	c.mu.Unlock()

	result, err, shared := c.flights.Do(key, func() (interface{}, error) {
		return c.generatePlan(ctx)
	})
	if shared {
		c.logger.Debug("Joined in-flight plan generation", zap.String("user_id", key))
	}
	plan, _ := result.(*models.Plan)
	return plan, err
}

func (c *Controller) generatePlan(ctx context.Context) (*models.Plan, error) {
	c.mu.Lock()
	identity := c.identity
	signedIn := c.userID != ""
	profile := c.profile
	c.status.Error = ""
	c.plan = nil
	c.mu.Unlock()
	c.notify()

	var saver services.PlanSaver
	if signedIn {
		saver = identitySaver{controller: c, identity: identity}
	}

	plan, err := c.generator.Generate(ctx, profile, services.ProfileBMI(profile), saver)

	var validationErr *services.ValidationError
	var persistenceErr *PersistenceError
	switch {
	case err == nil:
		if signedIn {
			c.setSuccess(identity, MsgPlanSaved)
		} else {
			c.setPlan(identity, plan)
		}
	case errors.As(err, &validationErr):
		c.setError(identity, validationErr.Message)
	case errors.As(err, &persistenceErr), errors.Is(err, services.ErrNotAuthenticated):
		// status already reflects the failed save
	default:
		c.setError(identity, fmt.Sprintf("Failed to generate plan: %s. Please try again.", err.Error()))
	}
	return plan, err
}

func (c *Controller) setPlan(identity uint64, plan *models.Plan) {
	c.mu.Lock()
	if c.identity != identity {
		c.mu.Unlock()
		return
	}
	c.plan = plan
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) applyPush(epoch uint64, event models.ProfileEvent) {
	if event.Type != models.ProfileEventUpdate || event.Record == nil {
		c.metrics.PushEvent("ignored")
		return
	}

	c.mu.Lock()
	if c.epoch != epoch || c.userID == "" || (event.Record.UserID != "" && event.Record.UserID != c.userID) {
		c.mu.Unlock()
		c.metrics.PushEvent("stale")
		return
	}
	c.profile = RecordToProfile(event.Record)
	if event.Record.LastPlan != nil {
		c.plan = event.Record.LastPlan
	}
	c.mu.Unlock()

	c.metrics.PushEvent("applied")
	c.notify()
}

func (c *Controller) setError(identity uint64, message string) {
	c.mu.Lock()
	if c.identity != identity {
		c.mu.Unlock()
		return
	}
	c.status.Error = message
	c.mu.Unlock()
	c.notify()
}

// setSuccess shows message for SuccessDisplayDuration and clears the error.
func (c *Controller) setSuccess(identity uint64, message string) {
	c.mu.Lock()
	if c.identity != identity {
		c.mu.Unlock()
		return
	}
	expiresAt := c.now().Add(SuccessDisplayDuration)
	c.status = models.StatusMessage{Success: message, ExpiresAt: &expiresAt}
	c.statusGen++
	gen := c.statusGen
	if c.statusTimer != nil {
		c.statusTimer.Stop()
	}
	c.statusTimer = c.afterFunc(SuccessDisplayDuration, func() {
		c.expireSuccess(gen)
	})
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) expireSuccess(gen uint64) {
	c.mu.Lock()
	if c.statusGen != gen || c.status.Success == "" {
		c.mu.Unlock()
		return
	}
	c.status.Success = ""
	c.status.ExpiresAt = nil
	c.statusTimer = nil
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) clearStatusLocked() {
	c.status = models.StatusMessage{}
	c.statusGen++
	if c.statusTimer != nil {
		c.statusTimer.Stop()
		c.statusTimer = nil
	}
}
