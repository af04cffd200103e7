// Package auth answers whether a user may use personal features. Password
// flows and brute-force bookkeeping live outside this module.
package auth

import (
	"context"
	"errors"
	"sync"
)

// ErrUnauthorized is returned by operations reserved for authorized users.
var ErrUnauthorized = errors.New("user is not authorized")

type Authorizer interface {
	IsAuthorized(ctx context.Context, userID int64) bool
}

// Allowlist authorizes a fixed set of users and can be changed at runtime.
// Admins are always authorized.
type Allowlist struct {
	mu      sync.RWMutex
	allowed map[int64]struct{}
	admins  map[int64]struct{}
}

var _ Authorizer = (*Allowlist)(nil)

func NewAllowlist(users, admins []int64) *Allowlist {
	a := &Allowlist{
		allowed: make(map[int64]struct{}, len(users)),
		admins:  make(map[int64]struct{}, len(admins)),
	}
	for _, id := range users {
		a.allowed[id] = struct{}{}
	}
	for _, id := range admins {
		a.admins[id] = struct{}{}
	}
	return a
}

func (a *Allowlist) IsAuthorized(_ context.Context, userID int64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.allowed[userID]
	if !ok {
		_, ok = a.admins[userID]
	}
	return ok
}

func (a *Allowlist) IsAdmin(_ context.Context, userID int64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.admins[userID]
	return ok
}

func (a *Allowlist) Grant(userID int64) {
	a.mu.Lock()
	a.allowed[userID] = struct{}{}
	a.mu.Unlock()
}

func (a *Allowlist) Revoke(userID int64) {
	a.mu.Lock()
	delete(a.allowed, userID)
	a.mu.Unlock()
}
