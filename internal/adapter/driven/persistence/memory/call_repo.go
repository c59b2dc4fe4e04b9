package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
)

// CallRecordRepository keeps records in process memory.
type CallRecordRepository struct {
	mu      sync.Mutex
	records map[domain.CallID]domain.CallRecord
}

func NewCallRecordRepository() *CallRecordRepository {
	return &CallRecordRepository{
		records: make(map[domain.CallID]domain.CallRecord),
	}
}

func (r *CallRecordRepository) Create(ctx context.Context, rec *domain.CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.ID] = clone(*rec)
	return nil
}

func (r *CallRecordRepository) Get(ctx context.Context, id domain.CallID) (*domain.CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := clone(rec)
	return &out, nil
}

func (r *CallRecordRepository) Update(ctx context.Context, rec *domain.CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; !ok {
		return domain.ErrNotFound
	}
	r.records[rec.ID] = clone(*rec)
	return nil
}

func (r *CallRecordRepository) ListForUser(ctx context.Context, userID domain.UserID, limit int) ([]domain.CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.CallRecord
	for _, rec := range r.records {
		if rec.Involves(userID) {
			out = append(out, clone(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func clone(rec domain.CallRecord) domain.CallRecord {
	if rec.AnsweredAt != nil {
		t := *rec.AnsweredAt
		rec.AnsweredAt = &t
	}
	if rec.EndedAt != nil {
		t := *rec.EndedAt
		rec.EndedAt = &t
	}
	return rec
}
