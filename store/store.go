// Package store defines the storage interface and implementations for
// supervisor history. Fleet membership lives in the registry file; this
// store holds what happened: dispatched tasks and observed status
// transitions.
package store

import (
	"context"

	"github.com/taskfleet/supervisor/domain"
)

// Store defines the interface for history persistence.
type Store interface {
	// Dispatch operations
	CreateDispatch(ctx context.Context, dispatch *domain.Dispatch) error
	GetDispatch(ctx context.Context, messageID string) (*domain.Dispatch, error)
	ListDispatches(ctx context.Context, agentID string, limit int) ([]domain.Dispatch, error)

	// Status audit operations
	RecordStatusChange(ctx context.Context, change *domain.StatusChange) error
	ListStatusChanges(ctx context.Context, agentID string, limit int) ([]domain.StatusChange, error)

	// Lifecycle
	Close() error
}
