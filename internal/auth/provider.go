// Package auth tracks the signed-in session of a workspace. Tokens are minted
// by the external auth service; this package only verifies them.
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/madhumithaparameshwaran/AI-FITNESS-ANALYST/pkg/utils"
)

var ErrInvalidToken = errors.New("invalid or expired token")

type Session struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email,omitempty"`
	AccessToken string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Provider exposes the current session and a change stream that delivers
// the new session, or nil, on every sign-in and sign-out.
type Provider interface {
	Session() *Session
	SignOut(ctx context.Context) error
	Subscribe(listener func(*Session)) (unsubscribe func())
}

type TokenProvider struct {
	secret string

	mu        sync.Mutex
	session   *Session
	listeners map[int]func(*Session)
	nextID    int
}

func NewTokenProvider(secret string) *TokenProvider {
	return &TokenProvider{
		secret:    secret,
		listeners: make(map[int]func(*Session)),
	}
}

// SignIn verifies the token and makes it the current session. Listeners run
// synchronously before SignIn returns.
func (p *TokenProvider) SignIn(token string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims, err := utils.ValidateToken(token, p.secret)
	if err != nil {
		return nil, ErrInvalidToken
	}

	session := &Session{
		UserID:      claims.UserID,
		Email:       claims.Email,
		AccessToken: token,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}

	p.mu.Lock()
	p.session = session
	p.mu.Unlock()

	p.emit(session)
	return session, nil
}

func (p *TokenProvider) Session() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil
	}
	copied := *p.session
	return &copied
}

func (p *TokenProvider) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	hadSession := p.session != nil
	p.session = nil
	p.mu.Unlock()

	if hadSession {
		p.emit(nil)
	}
	return nil
}

func (p *TokenProvider) Subscribe(listener func(*Session)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = listener
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

func (p *TokenProvider) emit(session *Session) {
	p.mu.Lock()
	listeners := make([]func(*Session), 0, len(p.listeners))
	for _, listener := range p.listeners {
		listeners = append(listeners, listener)
	}
	p.mu.Unlock()

	for _, listener := range listeners {
		if session == nil {
			listener(nil)
			continue
		}
		copied := *session
		listener(&copied)
	}
}
