// Package workspace keeps the per-user state of signed-in users: the session
// provider, the profile sync controller and the chat conversation.
package workspace

import (
	"context"
	"sync"

	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/auth"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/profilesync"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/internal/services"
	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/pkg/utils"
	"go.uber.org/zap"
)

type Workspace struct {
	UserID       string
	Auth         *auth.TokenProvider
	Controller   *profilesync.Controller
	Conversation *services.Conversation

	release func()
}

// ControllerFactory builds the controller of a new workspace.
type ControllerFactory func() *profilesync.Controller

// Observer receives every snapshot published by any workspace controller.
type Observer func(userID string, snapshot profilesync.Snapshot)

type Registry struct {
	ctx        context.Context
	secret     string
	factory    ControllerFactory
	observer   Observer
	logger     *zap.Logger
	mu         sync.Mutex
	workspaces map[string]*Workspace
}

// NewRegistry creates an empty registry. ctx bounds the profile loads that run
// on sign-in.
func NewRegistry(ctx context.Context, secret string, factory ControllerFactory, observer Observer, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		ctx:        ctx,
		secret:     secret,
		factory:    factory,
		observer:   observer,
		logger:     logger,
		workspaces: make(map[string]*Workspace),
	}
}

// SignIn verifies token and loads the workspace of its user, creating it on
// first use. Signing in again with a fresh token reloads the profile.
func (r *Registry) SignIn(token string) (*Workspace, *auth.Session, error) {
	claims, err := utils.ValidateToken(token, r.secret)
	if err != nil {
		return nil, nil, auth.ErrInvalidToken
	}

	ws := r.getOrCreate(claims.UserID)
	session, err := ws.Auth.SignIn(token)
	if err != nil {
		return nil, nil, err
	}
	r.logger.Info("User signed in", zap.String("user_id", session.UserID))
	return ws, session, nil
}

func (r *Registry) getOrCreate(userID string) *Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ws, ok := r.workspaces[userID]; ok {
		return ws
	}

	provider := auth.NewTokenProvider(r.secret)
	controller := r.factory()
	unbind := controller.Bind(r.ctx, provider)
	removeObserver := func() {}
	if r.observer != nil {
		removeObserver = controller.OnChange(func(snapshot profilesync.Snapshot) {
			r.observer(userID, snapshot)
		})
	}

	ws := &Workspace{
		UserID:       userID,
		Auth:         provider,
		Controller:   controller,
		Conversation: services.NewConversation(),
		release: func() {
			unbind()
			removeObserver()
			controller.Close()
		},
	}
	r.workspaces[userID] = ws
	return ws
}

// Get returns the workspace of a signed-in user.
func (r *Registry) Get(userID string) (*Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.workspaces[userID]
	return ws, ok
}

// Snapshot returns the current controller state of a signed-in user.
func (r *Registry) Snapshot(userID string) (profilesync.Snapshot, bool) {
	ws, ok := r.Get(userID)
	if !ok {
		return profilesync.Snapshot{}, false
	}
	return ws.Controller.Snapshot(), true
}

// SignOut resets the user's state, releases its push subscription and drops
// the workspace together with its conversation.
func (r *Registry) SignOut(ctx context.Context, userID string) error {
	r.mu.Lock()
	ws, ok := r.workspaces[userID]
	delete(r.workspaces, userID)
	r.mu.Unlock()

	if !ok {
		return services.ErrNotAuthenticated
	}

	err := ws.Auth.SignOut(ctx)
	ws.release()
	r.logger.Info("User signed out", zap.String("user_id", userID))
	return err
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workspaces)
}

// Close releases every workspace without signing anyone out.
func (r *Registry) Close() {
	r.mu.Lock()
	workspaces := r.workspaces
	r.workspaces = make(map[string]*Workspace)
	r.mu.Unlock()

	for _, ws := range workspaces {
		ws.release()
	}
}
