package backend

import (
	"context"

	"shoplist/internal/amqp"
	"shoplist/internal/services"
	"shoplist/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds the wired storage, optional event client and the
// services built on top of them.
type BackendResult struct {
	Store storage.Store
	// Events is nil when no broker is configured or reachable.
	Events *amqp.Client
	Lists  *services.ListService
	Users  *services.UserService
	// Cleanup releases the broker connection and the store.
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}
