package service

import (
	"context"
	"sync"

	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
	"github.com/YinkaFoster/fostertours-sub001/internal/core/port"
	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// CallRecordService keeps the persisted history of calls.
type CallRecordService struct {
	repo  port.CallRecordRepository
	clock clock.Clock

	mu sync.Mutex
}

func NewCallRecordService(repo port.CallRecordRepository, clk clock.Clock) *CallRecordService {
	if clk == nil {
		clk = clock.New()
	}
	return &CallRecordService{repo: repo, clock: clk}
}

func (s *CallRecordService) Initiate(ctx context.Context, caller, receiver domain.UserID, t domain.CallType) (*domain.CallRecord, error) {
	rec, err := domain.NewCallRecord(caller, receiver, t, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	log.Info().
		Str("call_id", rec.ID.String()).
		Str("caller", caller.String()).
		Str("receiver", receiver.String()).
		Str("call_type", string(t)).
		Msg("Call record created")
	return rec, nil
}

func (s *CallRecordService) Answer(ctx context.Context, user domain.UserID, id domain.CallID) (*domain.CallRecord, error) {
	return s.update(ctx, user, id, func(r *domain.CallRecord) error {
		return r.Answer(user, s.clock.Now())
	})
}

func (s *CallRecordService) Reject(ctx context.Context, user domain.UserID, id domain.CallID) (*domain.CallRecord, error) {
	return s.update(ctx, user, id, func(r *domain.CallRecord) error {
		return r.Reject(user, s.clock.Now())
	})
}

func (s *CallRecordService) End(ctx context.Context, user domain.UserID, id domain.CallID) (*domain.CallRecord, error) {
	return s.update(ctx, user, id, func(r *domain.CallRecord) error {
		return r.End(user, s.clock.Now())
	})
}

func (s *CallRecordService) update(ctx context.Context, user domain.UserID, id domain.CallID, fn func(*domain.CallRecord) error) (*domain.CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	// Records of other users' calls are reported as missing.
	if !rec.Involves(user) {
		return nil, domain.ErrNotFound
	}
	before := rec.Status
	if err := fn(rec); err != nil {
		return nil, err
	}
	if rec.Status == before {
		return rec, nil
	}
	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, err
	}
	log.Info().
		Str("call_id", id.String()).
		Str("status", string(rec.Status)).
		Int64("duration", rec.Duration).
		Msg("Call record updated")
	return rec, nil
}

func (s *CallRecordService) History(ctx context.Context, user domain.UserID, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	recs, err := s.repo.ListForUser(ctx, user, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.HistoryEntry, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ViewFor(user))
	}
	return out, nil
}
