package port

import (
	"context"

	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
)

type CallRecordRepository interface {
	Create(ctx context.Context, rec *domain.CallRecord) error
	// Get returns domain.ErrNotFound for unknown ids.
	Get(ctx context.Context, id domain.CallID) (*domain.CallRecord, error)
	Update(ctx context.Context, rec *domain.CallRecord) error
	// ListForUser returns records involving userID, newest first.
	ListForUser(ctx context.Context, userID domain.UserID, limit int) ([]domain.CallRecord, error)
}

// CallHistory is the client's view of the call record collaborator.
type CallHistory interface {
	Create(ctx context.Context, receiver domain.UserID, callType domain.CallType) (domain.CallRecord, error)
	Answer(ctx context.Context, id domain.CallID) error
	Reject(ctx context.Context, id domain.CallID) error
	End(ctx context.Context, id domain.CallID) error
	List(ctx context.Context, limit int) ([]domain.HistoryEntry, error)
}
