// Package repository declares the persistence interfaces the service
// layer depends on. Concrete implementations live in subpackages
// (sqlite); services only see these interfaces, which is what makes them
// testable with in-memory fakes.
package repository

import (
	"context"

	"github.com/icar/swc-backend/internal/model"
)

// UserRepository is the credential store: user records keyed by a unique
// username.
type UserRepository interface {
	// Create persists a new user, assigning ID and CreatedAt. A username
	// collision returns an error wrapping apperror.ErrConflict — the
	// UNIQUE constraint in the store is what makes concurrent
	// registration of one username collapse to a single winner.
	Create(ctx context.Context, user *model.User) error

	// FindByUsername returns the user with the given username, or an
	// error wrapping apperror.ErrNotFound. Token subjects are usernames,
	// so every identity lookup goes through here.
	FindByUsername(ctx context.Context, username string) (*model.User, error)
}

// ListOptions bounds list queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// FieldInputRepository records submitted field observations and the
// decisions the engine produced for them.
type FieldInputRepository interface {
	// CreateWithResult persists a field input and its decision result in
	// one transaction, assigning IDs and timestamps to both. result may
	// be nil when the engine answered but produced no recommendation.
	CreateWithResult(ctx context.Context, input *model.FieldInput, result *model.DecisionResult) error

	// GetPredictionByID returns one input with its result (nil if none).
	GetPredictionByID(ctx context.Context, id string) (*model.Prediction, error)

	// ListByUser returns the user's recorded predictions, newest first.
	ListByUser(ctx context.Context, userID string, opts ListOptions) ([]model.Prediction, error)
}
