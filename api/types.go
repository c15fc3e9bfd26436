package api

import (
	"context"

	"breakdown-api/domain"
)

// Store abstracts persistence for handlers.
type Store interface {
	domain.TaskStore
	Ping(ctx context.Context) error
}

// TaskCreator runs the full creation flow for one request.
type TaskCreator interface {
	Create(ctx context.Context, userID, input string) (domain.CreateResult, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents processing of duplicate requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when downstream processing fails.
	Remove(ctx context.Context, userID, key string) error
}

// EventPublisher delivers task events downstream.
type EventPublisher interface {
	Publish(ctx context.Context, events ...domain.Event) error
}
