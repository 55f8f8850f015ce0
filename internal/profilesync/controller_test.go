package profilesync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/auth"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/models"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/services"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/pkg/utils"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeStore struct {
	mu        sync.Mutex
	records   map[string]*models.ProfileRecord
	getErr    error
	upsertErr error
	upserts   []models.ProfileRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*models.ProfileRecord)}
}

func (s *fakeStore) GetByUserID(_ context.Context, userID string) (*models.ProfileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.records[userID], nil
}

func (s *fakeStore) Upsert(_ context.Context, record *models.ProfileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts = append(s.upserts, *record)
	if s.upsertErr != nil {
		return s.upsertErr
	}
	copied := *record
	s.records[record.UserID] = &copied
	return nil
}

func (s *fakeStore) upsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.upserts)
}

type fakeSubscription struct {
	userID  string
	handler func(models.ProfileEvent)
}

type fakeSubscriber struct {
	mu           sync.Mutex
	active       map[int]fakeSubscription
	nextID       int
	unsubscribes int
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{active: make(map[int]fakeSubscription)}
}

func (s *fakeSubscriber) Subscribe(userID string, handler func(models.ProfileEvent)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.active[id] = fakeSubscription{userID: userID, handler: handler}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.active, id)
			s.unsubscribes++
			s.mu.Unlock()
		})
	}
}

func (s *fakeSubscriber) activeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *fakeSubscriber) push(userID string, event models.ProfileEvent) {
	s.mu.Lock()
	var handlers []func(models.ProfileEvent)
	for _, sub := range s.active {
		if sub.userID == userID {
			handlers = append(handlers, sub.handler)
		}
	}
	s.mu.Unlock()

	for _, handler := range handlers {
		handler(event)
	}
}

// handlerFor returns the active handler for userID, if any.
func (s *fakeSubscriber) handlerFor(userID string) func(models.ProfileEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.active {
		if sub.userID == userID {
			return sub.handler
		}
	}
	return nil
}

type fakeGenerator struct {
	mu      sync.Mutex
	plan    *models.Plan
	err     error
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (g *fakeGenerator) Generate(ctx context.Context, profile models.Profile, _ float64, saver services.PlanSaver) (*models.Plan, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	if g.entered != nil {
		g.entered <- struct{}{}
	}
	if g.release != nil {
		<-g.release
	}
	if _, ok := services.ParsePositive(profile.Height); !ok {
		return nil, &services.ValidationError{Message: "Please enter your height, current weight, and target weight to generate a plan."}
	}
	if g.err != nil {
		return nil, g.err
	}

	plan := *g.plan
	if saver != nil {
		if err := saver.SavePlan(ctx, &plan); err != nil {
			return &plan, err
		}
	}
	return &plan, nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var testPlan = &models.Plan{
	PredictedTime: "12 weeks",
	Plan: models.PlanSections{
		WarmUp:   "Jumping Jacks (5 min)",
		Strength: "Squats (3×12)",
		Cardio:   "Running (20 min)",
		CoolDown: "Static Stretching (5 min)",
	},
	Timestamp: time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC),
}

type harness struct {
	store      *fakeStore
	subscriber *fakeSubscriber
	generator  *fakeGenerator
	clock      *fakeClock
	controller *Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:      newFakeStore(),
		subscriber: newFakeSubscriber(),
		generator:  &fakeGenerator{plan: testPlan},
		clock:      &fakeClock{now: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	h.controller = NewController(h.store, h.subscriber, h.generator, WithClock(h.clock.Now))
	t.Cleanup(h.controller.Close)
	return h
}

func session(userID string) *auth.Session {
	return &auth.Session{UserID: userID}
}

func filledProfile() models.Profile {
	profile := models.DefaultProfile()
	profile.Name = "Maya"
	profile.Height = "180"
	profile.CurrentWeight = "90"
	profile.TargetWeight = "80"
	return profile
}

func TestHandleAuthChangeWithoutRecordKeepsDefaults(t *testing.T) {
	h := newHarness(t)

	if err := h.controller.HandleAuthChange(context.Background(), session("user-1")); err != nil {
		t.Fatalf("HandleAuthChange: %v", err)
	}

	want := Snapshot{
		State:   models.SyncStateSynced,
		UserID:  "user-1",
		Profile: models.DefaultProfile(),
	}
	if diff := cmp.Diff(want, h.controller.Snapshot()); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if h.subscriber.activeCount() != 1 {
		t.Fatalf("expected one push subscription, got %d", h.subscriber.activeCount())
	}
}

func TestHandleAuthChangeLoadsStoredRecord(t *testing.T) {
	h := newHarness(t)
	record := ProfileToRecord("user-1", filledProfile(), testPlan)
	h.store.records["user-1"] = &record

	if err := h.controller.HandleAuthChange(context.Background(), session("user-1")); err != nil {
		t.Fatalf("HandleAuthChange: %v", err)
	}

	snapshot := h.controller.Snapshot()
	if diff := cmp.Diff(filledProfile(), snapshot.Profile); diff != "" {
		t.Fatalf("profile mismatch (-want +got):\n%s", diff)
	}
	if snapshot.Plan == nil || snapshot.Plan.PredictedTime != "12 weeks" {
		t.Fatalf("expected stored plan, got %+v", snapshot.Plan)
	}
	if snapshot.BMI != 27.8 {
		t.Fatalf("expected BMI 27.8, got %v", snapshot.BMI)
	}
}

func TestHandleAuthChangeLoadFailure(t *testing.T) {
	h := newHarness(t)
	h.store.getErr = errors.New("connection refused")

	err := h.controller.HandleAuthChange(context.Background(), session("user-1"))

	var persistenceErr *PersistenceError
	if !errors.As(err, &persistenceErr) || persistenceErr.Op != "load" {
		t.Fatalf("expected load PersistenceError, got %v", err)
	}
	snapshot := h.controller.Snapshot()
	if snapshot.State != models.SyncStateSynced || snapshot.Status.Error != MsgLoadFailed {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
}

func TestResubscribeReleasesPreviousSubscription(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := h.controller.HandleAuthChange(ctx, session("user-1")); err != nil {
			t.Fatalf("HandleAuthChange: %v", err)
		}
	}

	if h.subscriber.activeCount() != 1 {
		t.Fatalf("expected exactly one active subscription, got %d", h.subscriber.activeCount())
	}
	if h.subscriber.unsubscribes != 2 {
		t.Fatalf("expected two released subscriptions, got %d", h.subscriber.unsubscribes)
	}
}

func TestSignOutResetsStateAndIgnoresLatePush(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	record := ProfileToRecord("user-1", filledProfile(), testPlan)
	h.store.records["user-1"] = &record

	if err := h.controller.HandleAuthChange(ctx, session("user-1")); err != nil {
		t.Fatalf("HandleAuthChange: %v", err)
	}
	oldHandler := h.subscriber.handlerFor("user-1")

	if err := h.controller.HandleAuthChange(ctx, nil); err != nil {
		t.Fatalf("sign out: %v", err)
	}

	want := Snapshot{State: models.SyncStateUnauthenticated, Profile: models.DefaultProfile()}
	if diff := cmp.Diff(want, h.controller.Snapshot()); diff != "" {
		t.Fatalf("snapshot after sign out (-want +got):\n%s", diff)
	}
	if h.subscriber.activeCount() != 0 {
		t.Fatalf("expected subscription to be released")
	}

	oldHandler(models.ProfileEvent{Type: models.ProfileEventUpdate, Record: &record})
	if diff := cmp.Diff(want, h.controller.Snapshot()); diff != "" {
		t.Fatalf("late push must not apply (-want +got):\n%s", diff)
	}
}

func TestPushAppliesOnlyUpdates(t *testing.T) {
	h := newHarness(t)
	if err := h.controller.HandleAuthChange(context.Background(), session("user-1")); err != nil {
		t.Fatalf("HandleAuthChange: %v", err)
	}

	remote := filledProfile()
	remote.Name = "Remote"
	record := ProfileToRecord("user-1", remote, nil)

	for _, eventType := range []string{models.ProfileEventInsert, models.ProfileEventDelete} {
		h.subscriber.push("user-1", models.ProfileEvent{Type: eventType, Record: &record})
	}
	if got := h.controller.Snapshot().Profile.Name; got != "" {
		t.Fatalf("non-update events must be ignored, got name %q", got)
	}

	h.subscriber.push("user-1", models.ProfileEvent{Type: models.ProfileEventUpdate, Record: &record})
	if diff := cmp.Diff(remote, h.controller.Snapshot().Profile); diff != "" {
		t.Fatalf("profile after push (-want +got):\n%s", diff)
	}
}

func TestPushReplacesPlanOnlyWhenPresent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.controller.HandleAuthChange(ctx, session("user-1")); err != nil {
		t.Fatalf("HandleAuthChange: %v", err)
	}
	if err := h.controller.SavePlan(ctx, testPlan); err != nil {
		t.Fatalf("SavePlan: %v", err)
	}

	withoutPlan := ProfileToRecord("user-1", filledProfile(), nil)
	h.subscriber.push("user-1", models.ProfileEvent{Type: models.ProfileEventUpdate, Record: &withoutPlan})
	if h.controller.Snapshot().Plan != testPlan {
		t.Fatalf("plan must survive a push without last_plan")
	}

	newer := &models.Plan{PredictedTime: "6 weeks", Plan: models.PlanSections{Cardio: "Rowing (15 min)"}}
	withPlan := ProfileToRecord("user-1", filledProfile(), newer)
	h.subscriber.push("user-1", models.ProfileEvent{Type: models.ProfileEventUpdate, Record: &withPlan})
	if got := h.controller.Snapshot().Plan; got == nil || got.PredictedTime != "6 weeks" {
		t.Fatalf("expected pushed plan, got %+v", got)
	}
}

func TestPushOverwritesUnsavedEdits(t *testing.T) {
	h := newHarness(t)
	if err := h.controller.HandleAuthChange(context.Background(), session("user-1")); err != nil {
		t.Fatalf("HandleAuthChange: %v", err)
	}

	local := filledProfile()
	local.Name = "Local edit"
	h.controller.Edit(local)

	remote := ProfileToRecord("user-1", filledProfile(), nil)
	h.subscriber.push("user-1", models.ProfileEvent{Type: models.ProfileEventUpdate, Record: &remote})

	if got := h.controller.Snapshot().Profile.Name; got != "Maya" {
		t.Fatalf("expected remote value to win, got %q", got)
	}
}

func TestSaveRequiresSession(t *testing.T) {
	h := newHarness(t)

	err := h.controller.Save(context.Background())
	if !errors.Is(err, services.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if h.store.upsertCount() != 0 {
		t.Fatalf("expected no store write")
	}
	if got := h.controller.Snapshot().Status.Error; got != MsgLoginRequired {
		t.Fatalf("unexpected status: %q", got)
	}
}

func TestSaveUpsertsAndShowsExpiringSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.getErr = errors.New("timeout")
	_ = h.controller.HandleAuthChange(ctx, session("user-1"))
	h.store.getErr = nil

	h.controller.Edit(filledProfile())
	if err := h.controller.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	want := ProfileToRecord("user-1", filledProfile(), nil)
	if diff := cmp.Diff([]models.ProfileRecord{want}, h.store.upserts); diff != "" {
		t.Fatalf("upserts mismatch (-want +got):\n%s", diff)
	}

	status := h.controller.Snapshot().Status
	if status.Success != MsgProfileSaved || status.Error != "" {
		t.Fatalf("expected success with cleared error, got %+v", status)
	}

	h.clock.Advance(SuccessDisplayDuration - time.Millisecond)
	if h.controller.Snapshot().Status.Success == "" {
		t.Fatalf("success message expired too early")
	}
	h.clock.Advance(time.Millisecond)
	if got := h.controller.Snapshot().Status; got.Success != "" || got.ExpiresAt != nil {
		t.Fatalf("expected success message to expire, got %+v", got)
	}
}

func TestSaveFailureKeepsLocalState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.controller.HandleAuthChange(ctx, session("user-1"))
	h.store.upsertErr = errors.New("boom")

	h.controller.Edit(filledProfile())
	err := h.controller.Save(ctx)

	var persistenceErr *PersistenceError
	if !errors.As(err, &persistenceErr) || persistenceErr.Op != "save" {
		t.Fatalf("expected save PersistenceError, got %v", err)
	}
	snapshot := h.controller.Snapshot()
	if diff := cmp.Diff(filledProfile(), snapshot.Profile); diff != "" {
		t.Fatalf("local state rolled back (-want +got):\n%s", diff)
	}
	if snapshot.Status.Error != "Failed to save profile: boom" {
		t.Fatalf("unexpected status: %+v", snapshot.Status)
	}
}

func TestGeneratePlanPersistsExactlyOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.controller.HandleAuthChange(ctx, session("user-1"))
	h.controller.Edit(filledProfile())

	plan, err := h.controller.GeneratePlan(ctx)
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}

	if h.store.upsertCount() != 1 {
		t.Fatalf("expected one store write, got %d", h.store.upsertCount())
	}
	saved := h.store.upserts[0]
	if saved.LastPlan == nil || saved.LastPlan.PredictedTime != plan.PredictedTime {
		t.Fatalf("expected plan to be bundled with the profile, got %+v", saved.LastPlan)
	}
	if saved.Height == nil || *saved.Height != 180 {
		t.Fatalf("expected current profile snapshot, got %+v", saved)
	}

	snapshot := h.controller.Snapshot()
	if snapshot.Plan == nil || snapshot.Status.Success != MsgPlanSaved {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
}

func TestGeneratePlanValidationError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.controller.HandleAuthChange(ctx, session("user-1"))

	_, err := h.controller.GeneratePlan(ctx)

	var validationErr *services.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if h.store.upsertCount() != 0 {
		t.Fatalf("expected no store write")
	}
	if got := h.controller.Snapshot().Status.Error; got != validationErr.Message {
		t.Fatalf("unexpected status: %q", got)
	}
}

func TestGeneratePlanUpstreamError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.controller.HandleAuthChange(ctx, session("user-1"))
	h.controller.Edit(filledProfile())
	h.generator.err = errors.New("Rate limit reached")

	if _, err := h.controller.GeneratePlan(ctx); err == nil {
		t.Fatalf("expected error")
	}
	want := "Failed to generate plan: Rate limit reached. Please try again."
	if got := h.controller.Snapshot().Status.Error; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestGeneratePlanCollapsesConcurrentCalls(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.controller.HandleAuthChange(ctx, session("user-1"))
	h.controller.Edit(filledProfile())
	h.generator.entered = make(chan struct{}, 2)
	h.generator.release = make(chan struct{})

	var wg sync.WaitGroup
	results := make([]*models.Plan, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = h.controller.GeneratePlan(ctx)
		}(i)
	}

	<-h.generator.entered
	time.Sleep(50 * time.Millisecond)
	close(h.generator.release)
	wg.Wait()

	if h.generator.callCount() != 1 {
		t.Fatalf("expected one upstream generation, got %d", h.generator.callCount())
	}
	if h.store.upsertCount() != 1 {
		t.Fatalf("expected one store write, got %d", h.store.upsertCount())
	}
	if results[0] == nil || results[0] != results[1] {
		t.Fatalf("expected both callers to share the plan")
	}
}

func TestGeneratePlanAfterSignOutIsDiscarded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.controller.HandleAuthChange(ctx, session("user-1"))
	h.controller.Edit(filledProfile())
	h.generator.entered = make(chan struct{}, 1)
	h.generator.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.controller.GeneratePlan(ctx)
		done <- err
	}()

	<-h.generator.entered
	_ = h.controller.HandleAuthChange(ctx, nil)
	close(h.generator.release)

	if err := <-done; !errors.Is(err, services.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if h.store.upsertCount() != 0 {
		t.Fatalf("expected no store write for a signed-out user")
	}
	snapshot := h.controller.Snapshot()
	if snapshot.Plan != nil || snapshot.Status != (models.StatusMessage{}) {
		t.Fatalf("expected clean signed-out state, got %+v", snapshot)
	}
}

func TestGeneratePlanSurvivesSameUserSignIn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.controller.HandleAuthChange(ctx, session("user-1"))
	h.controller.Edit(filledProfile())
	h.generator.entered = make(chan struct{}, 1)
	h.generator.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.controller.GeneratePlan(ctx)
		done <- err
	}()

	<-h.generator.entered
	if err := h.controller.HandleAuthChange(ctx, session("user-1")); err != nil {
		t.Fatalf("HandleAuthChange: %v", err)
	}
	close(h.generator.release)

	if err := <-done; err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	if h.store.upsertCount() != 1 {
		t.Fatalf("expected exactly one store write, got %d", h.store.upsertCount())
	}
	h.store.mu.Lock()
	stored := h.store.upserts[0]
	h.store.mu.Unlock()
	if stored.UserID != "user-1" || stored.LastPlan == nil || stored.LastPlan.PredictedTime != testPlan.PredictedTime {
		t.Fatalf("unexpected stored record: %+v", stored)
	}

	snapshot := h.controller.Snapshot()
	if snapshot.Plan == nil || snapshot.Status.Success != MsgPlanSaved {
		t.Fatalf("expected saved plan and success status, got %+v", snapshot)
	}
}

func TestGeneratePlanAfterUserSwitchIsDiscarded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.controller.HandleAuthChange(ctx, session("user-1"))
	h.controller.Edit(filledProfile())
	h.generator.entered = make(chan struct{}, 1)
	h.generator.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.controller.GeneratePlan(ctx)
		done <- err
	}()

	<-h.generator.entered
	_ = h.controller.HandleAuthChange(ctx, session("user-2"))
	close(h.generator.release)

	if err := <-done; !errors.Is(err, services.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if h.store.upsertCount() != 0 {
		t.Fatalf("expected no store write for the previous user")
	}
	snapshot := h.controller.Snapshot()
	if snapshot.UserID != "user-2" || snapshot.Plan != nil {
		t.Fatalf("expected clean state for the new user, got %+v", snapshot)
	}
}

func TestOnChangeReceivesSnapshots(t *testing.T) {
	h := newHarness(t)

	var states []models.SyncState
	remove := h.controller.OnChange(func(snapshot Snapshot) {
		states = append(states, snapshot.State)
	})

	_ = h.controller.HandleAuthChange(context.Background(), session("user-1"))
	remove()
	h.controller.Edit(filledProfile())

	want := []models.SyncState{models.SyncStateLoading, models.SyncStateSynced}
	if diff := cmp.Diff(want, states); diff != "" {
		t.Fatalf("observed states (-want +got):\n%s", diff)
	}
}

func TestBindFollowsProvider(t *testing.T) {
	h := newHarness(t)
	provider := auth.NewTokenProvider("secret")
	token, err := utils.GenerateToken("user-1", "", "secret")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	unbind := h.controller.Bind(context.Background(), provider)
	defer unbind()

	if _, err := provider.SignIn(token); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if snapshot := h.controller.Snapshot(); snapshot.State != models.SyncStateSynced || snapshot.UserID != "user-1" {
		t.Fatalf("expected synced user-1, got %+v", snapshot)
	}

	if err := provider.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if snapshot := h.controller.Snapshot(); snapshot.State != models.SyncStateUnauthenticated {
		t.Fatalf("expected unauthenticated, got %+v", snapshot)
	}
	if h.subscriber.activeCount() != 0 {
		t.Fatalf("expected subscription to be released on sign out")
	}
}

func TestBindLoadsExistingSession(t *testing.T) {
	h := newHarness(t)
	provider := auth.NewTokenProvider("secret")
	token, _ := utils.GenerateToken("user-7", "", "secret")
	if _, err := provider.SignIn(token); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	unbind := h.controller.Bind(context.Background(), provider)
	defer unbind()

	if got := h.controller.Snapshot().UserID; got != "user-7" {
		t.Fatalf("expected existing session to be loaded, got %q", got)
	}
}
