package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/atinyakov/casebook/internal/models"
)

// ErrOffline is returned by LocalSession for operations that need a server.
var ErrOffline = errors.New("not available offline")

// LocalUser is the principal used when running without a server.
var LocalUser = models.User{ID: "local", DisplayName: "探偵", Email: "detective@localhost"}

// LocalSession is a single-user session for the local-only variant. Signing
// in always yields the fixed user; there are no accounts to register.
type LocalSession struct {
	user models.User

	mu        sync.Mutex
	signedIn  bool
	nextSubID int
	subs      map[int]func(*models.User)
}

// NewLocalSession returns a session for user that starts signed in.
func NewLocalSession(user models.User) *LocalSession {
	return &LocalSession{user: user, signedIn: true, subs: make(map[int]func(*models.User))}
}

func (s *LocalSession) CurrentPrincipal() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.signedIn {
		return nil
	}
	u := s.user
	return &u
}

func (s *LocalSession) Subscribe(fn func(*models.User)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *LocalSession) set(signedIn bool) {
	s.mu.Lock()
	if s.signedIn == signedIn {
		s.mu.Unlock()
		return
	}
	s.signedIn = signedIn
	subs := make([]func(*models.User), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	p := s.CurrentPrincipal()
	for _, fn := range subs {
		fn(p)
	}
}

func (s *LocalSession) SignInInteractive(context.Context) error {
	s.set(true)
	return nil
}

// SignInWithCredentials ignores the credentials and signs in the local user.
func (s *LocalSession) SignInWithCredentials(context.Context, string, string) error {
	s.set(true)
	return nil
}

// Register always fails with operation-not-allowed.
func (s *LocalSession) Register(context.Context, string, string, string) error {
	return models.NewAuthError(models.AuthOperationNotAllowed, ErrOffline)
}

func (s *LocalSession) SignOut(context.Context) error {
	s.set(false)
	return nil
}
