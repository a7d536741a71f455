// Package auth resolves the caller of a request into an Actor once, at the
// HTTP boundary. The scheduling services receive the resolved variant and
// never look at raw role strings.
package auth

import (
	"context"

	"github.com/google/uuid"
)

// Actor is one of User, Psychologist or Staff.
type Actor interface {
	ActorID() uuid.UUID
	actor()
}

// User is an employee of a client business booking consultations.
type User struct {
	ID uuid.UUID
}

// Psychologist delivers consultations and manages their own availability.
type Psychologist struct {
	ID uuid.UUID
}

// Staff is a back-office operator. Level is one of sysadmin, owner or admin.
type Staff struct {
	ID    uuid.UUID
	Level string
}

func (u User) ActorID() uuid.UUID         { return u.ID }
func (p Psychologist) ActorID() uuid.UUID { return p.ID }
func (s Staff) ActorID() uuid.UUID        { return s.ID }

func (User) actor()         {}
func (Psychologist) actor() {}
func (Staff) actor()        {}

// RoleOf names the variant, for logs and metrics labels.
func RoleOf(a Actor) string {
	switch a.(type) {
	case User:
		return "user"
	case Psychologist:
		return "psychologist"
	case Staff:
		return "staff"
	default:
		return "unknown"
	}
}

type contextKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

// FromContext returns the actor stored by WithActor.
func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(contextKey{}).(Actor)
	return a, ok
}
