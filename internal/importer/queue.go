package importer

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/listenupapp/ledger-server/internal/domain"
	"github.com/listenupapp/ledger-server/internal/workbook"
)

// ErrQueueClosed is returned by Submit after Shutdown.
var ErrQueueClosed = errors.New("import queue is closed")

// Processor runs one job.
type Processor interface {
	Process(ctx context.Context, job *domain.ImportJob, wb *workbook.Workbook) error
}

type task struct {
	job  *domain.ImportJob
	wb   *workbook.Workbook
	done chan error
}

// userQueue is the FIFO of one user. A worker goroutine exists while it is non-empty.
type userQueue struct {
	pending []*task
}

// Queue serializes imports per user. Jobs of one user run one at a time in
// submission order; different users run concurrently.
type Queue struct {
	processor Processor
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	users  map[string]*userQueue
	closed bool
	wg     sync.WaitGroup
}

// NewQueue creates a queue feeding processor.
func NewQueue(processor Processor, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		processor: processor,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		users:     make(map[string]*userQueue),
	}
}

// Submit enqueues job and returns without waiting. The returned channel receives
// the result of Process once and is then closed.
func (q *Queue) Submit(job *domain.ImportJob, wb *workbook.Workbook) (<-chan error, error) {
	t := &task{job: job, wb: wb, done: make(chan error, 1)}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	uq, running := q.users[job.UserID]
	if !running {
		uq = &userQueue{}
		q.users[job.UserID] = uq
	}
	uq.pending = append(uq.pending, t)

	if !running {
		q.wg.Add(1)
		go q.run(job.UserID)
	}

	q.logger.Debug("import queued",
		"import_id", job.ID,
		"user_id", job.UserID,
		"position", len(uq.pending),
	)
	return t.done, nil
}

// Pending returns how many jobs of userID are waiting or running.
func (q *Queue) Pending(userID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if uq, ok := q.users[userID]; ok {
		return len(uq.pending)
	}
	return 0
}

func (q *Queue) run(userID string) {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		uq := q.users[userID]
		if len(uq.pending) == 0 {
			delete(q.users, userID)
			q.mu.Unlock()
			return
		}
		t := uq.pending[0]
		q.mu.Unlock()

		err := q.processor.Process(q.ctx, t.job, t.wb)
		if err != nil {
			q.logger.Error("import job errored",
				"import_id", t.job.ID,
				"user_id", userID,
				"error", err,
			)
		}
		t.done <- err
		close(t.done)

		q.mu.Lock()
		uq.pending = uq.pending[1:]
		q.mu.Unlock()
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish. When ctx
// ends first, running jobs are cancelled and ctx's error is returned.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}
