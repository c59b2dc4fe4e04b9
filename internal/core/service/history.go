package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
	"github.com/YinkaFoster/fostertours-sub001/internal/core/port"
	"github.com/rs/zerolog/log"
)

const (
	historyQueueSize = 32
	historyTimeout   = 10 * time.Second
)

type historyOp string

const (
	historyAnswer historyOp = "answer"
	historyReject historyOp = "reject"
	historyEnd    historyOp = "end"
)

type historyJob struct {
	op historyOp
	id domain.CallID
}

// HistoryBridge forwards lifecycle events to the call record collaborator.
// Updates are applied in order by one worker; failures are only logged.
type HistoryBridge struct {
	history port.CallHistory
	jobs    chan historyJob
	done    chan struct{}

	mu     sync.Mutex
	local  map[domain.CallID]bool
	closed bool
}

func NewHistoryBridge(history port.CallHistory) *HistoryBridge {
	b := &HistoryBridge{
		history: history,
		jobs:    make(chan historyJob, historyQueueSize),
		done:    make(chan struct{}),
		local:   make(map[domain.CallID]bool),
	}
	go b.run()
	return b
}

// Created registers a new outgoing call and returns its id. If the
// collaborator fails, a local id is returned so the call can proceed; later
// updates for that id are skipped.
func (b *HistoryBridge) Created(ctx context.Context, receiver domain.UserID, t domain.CallType) domain.CallID {
	ctx, cancel := context.WithTimeout(ctx, historyTimeout)
	defer cancel()

	rec, err := b.history.Create(ctx, receiver, t)
	if err == nil && rec.ID != "" {
		return rec.ID
	}
	if err == nil {
		err = errors.New("empty call id")
	}
	id := domain.NewCallID()
	b.mu.Lock()
	b.local[id] = true
	b.mu.Unlock()
	log.Warn().Err(fmt.Errorf("%w: %v", domain.ErrHistoryPersistence, err)).
		Str("call_id", id.String()).
		Msg("Call record not created, using local id")
	return id
}

func (b *HistoryBridge) Answered(id domain.CallID) { b.enqueue(historyAnswer, id) }
func (b *HistoryBridge) Rejected(id domain.CallID) { b.enqueue(historyReject, id) }
func (b *HistoryBridge) Ended(id domain.CallID)    { b.enqueue(historyEnd, id) }

func (b *HistoryBridge) History(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	return b.history.List(ctx, limit)
}

func (b *HistoryBridge) enqueue(op historyOp, id domain.CallID) {
	if id == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.local[id] {
		return
	}
	select {
	case b.jobs <- historyJob{op: op, id: id}:
	default:
		log.Warn().Str("call_id", id.String()).Str("op", string(op)).Msg("History queue full, dropping update")
	}
}

func (b *HistoryBridge) run() {
	defer close(b.done)
	for job := range b.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		var err error
		switch job.op {
		case historyAnswer:
			err = b.history.Answer(ctx, job.id)
		case historyReject:
			err = b.history.Reject(ctx, job.id)
		case historyEnd:
			err = b.history.End(ctx, job.id)
		}
		cancel()
		if err != nil {
			log.Warn().Err(fmt.Errorf("%w: %v", domain.ErrHistoryPersistence, err)).
				Str("call_id", job.id.String()).
				Str("op", string(job.op)).
				Msg("Call history update failed")
		}
	}
}

// Close drains queued updates and stops the worker.
func (b *HistoryBridge) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.jobs)
	}
	b.mu.Unlock()
	<-b.done
}
