package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Request is one staged booking on its way to the data layer. ID doubles as
// an idempotency key: a replay from the outbox carries the same ID.
type Request struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	Payload     Payload   `json:"payload"`
	RequestedAt time.Time `json:"requestedAt"`
}

type Submitter interface {
	Submit(ctx context.Context, req Request) error
}

type QueuedRequest struct {
	Request  Request
	Attempts int
	QueuedAt time.Time
}

// Outbox keeps failed submissions until a background sync delivers them.
type Outbox interface {
	Enqueue(req Request) error
	Pending() ([]QueuedRequest, error)
	Attempted(id string) error
	Remove(id string) error
}

var (
	ErrSyncGaveUp      = errors.New("booking submission abandoned")
	errConfirmerClosed = errors.New("confirmer closed")
)

// Outcome reports how a staged request ended. Queued means the submission
// failed and the request now waits in the outbox; Synced means the outbox
// delivered it later.
type Outcome struct {
	Request Request
	Err     error
	Queued  bool
	Synced  bool
}

type ConfirmerOptions struct {
	SubmitTimeout time.Duration
	SyncEvery     time.Duration
	MaxAttempts   int
}

// Confirmer runs submissions in the background and publishes their outcomes.
type Confirmer struct {
	submitter Submitter
	outbox    Outbox
	opts      ConfirmerOptions
	log       *zap.Logger

	outcomes chan Outcome

	mu     sync.Mutex
	closed bool
	stopCh chan struct{}
	wg     sync.WaitGroup

	syncMu sync.Mutex
}

func NewConfirmer(sub Submitter, outbox Outbox, opts ConfirmerOptions, log *zap.Logger) *Confirmer {
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = 15 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Confirmer{
		submitter: sub,
		outbox:    outbox,
		opts:      opts,
		log:       log,
		outcomes:  make(chan Outcome, 64),
		stopCh:    make(chan struct{}),
	}
	if outbox != nil && opts.SyncEvery > 0 {
		log.Info("booking sync enabled", zap.Duration("every", opts.SyncEvery), zap.Int("maxAttempts", opts.MaxAttempts))
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.syncLoop(opts.SyncEvery)
		}()
	}
	return c
}

// Outcomes is closed by Close once every in-flight submission has settled.
func (c *Confirmer) Outcomes() <-chan Outcome { return c.outcomes }

// Stage starts submitting p and returns immediately.
func (c *Confirmer) Stage(sessionID string, p Payload) Request {
	req := NewRequest(sessionID, p)
	c.Dispatch(req)
	return req
}

func NewRequest(sessionID string, p Payload) Request {
	return Request{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Payload:     p,
		RequestedAt: time.Now().UTC(),
	}
}

// Dispatch submits req in the background and returns SubmissionPending; its
// Outcome follows on Outcomes. Once the Confirmer is closed no Outcome can be
// published, so req goes straight to the outbox and the final status is
// returned instead.
func (c *Confirmer) Dispatch(req Request) SubmissionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.log.Warn("booking staged after close", zap.String("request", req.ID), zap.String("session", req.SessionID))
		if c.queue(req, errConfirmerClosed) {
			return SubmissionQueued
		}
		return SubmissionFailed
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.publish(c.submit(req))
	}()
	return SubmissionPending
}

func (c *Confirmer) submit(req Request) Outcome {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.SubmitTimeout)
	defer cancel()

	err := c.submitter.Submit(ctx, req)
	if err == nil {
		c.log.Info("booking submitted", zap.String("request", req.ID), zap.String("session", req.SessionID))
		return Outcome{Request: req}
	}
	c.log.Warn("booking submission failed", zap.String("request", req.ID), zap.String("session", req.SessionID), zap.Error(err))
	return Outcome{Request: req, Err: err, Queued: c.queue(req, err)}
}

func (c *Confirmer) queue(req Request, cause error) bool {
	if c.outbox == nil {
		return false
	}
	if err := c.outbox.Enqueue(req); err != nil {
		c.log.Error("queue booking for sync", zap.String("request", req.ID), zap.NamedError("cause", cause), zap.Error(err))
		return false
	}
	return true
}

func (c *Confirmer) publish(o Outcome) {
	select {
	case c.outcomes <- o:
	case <-c.stopCh:
	}
}

func (c *Confirmer) syncLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			sent, err := c.Sync(ctx)
			cancel()
			if err != nil {
				c.log.Error("booking sync", zap.Error(err))
				continue
			}
			if sent > 0 {
				c.log.Info("booking sync", zap.Int("sent", sent))
			}
		}
	}
}

// Sync replays every queued request once and reports how many were
// delivered. Requests that reach MaxAttempts are dropped with a failed
// outcome.
func (c *Confirmer) Sync(ctx context.Context) (int, error) {
	if c.outbox == nil {
		return 0, nil
	}
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	pending, err := c.outbox.Pending()
	if err != nil {
		return 0, fmt.Errorf("list outbox: %w", err)
	}

	sent := 0
	for _, q := range pending {
		select {
		case <-ctx.Done():
			return sent, ctx.Err()
		case <-c.stopCh:
			return sent, nil
		default:
		}

		id := q.Request.ID
		if c.opts.MaxAttempts > 0 && q.Attempts >= c.opts.MaxAttempts {
			c.log.Error("dropping queued booking", zap.String("request", id), zap.Int("attempts", q.Attempts))
			if err := c.outbox.Remove(id); err != nil {
				c.log.Error("remove queued booking", zap.String("request", id), zap.Error(err))
			}
			c.publish(Outcome{Request: q.Request, Err: fmt.Errorf("%w after %d attempts", ErrSyncGaveUp, q.Attempts)})
			continue
		}

		sctx, cancel := context.WithTimeout(ctx, c.opts.SubmitTimeout)
		err := c.submitter.Submit(sctx, q.Request)
		cancel()
		if err != nil {
			c.log.Debug("queued booking still failing", zap.String("request", id), zap.Error(err))
			if err := c.outbox.Attempted(id); err != nil {
				c.log.Error("record sync attempt", zap.String("request", id), zap.Error(err))
			}
			continue
		}
		if err := c.outbox.Remove(id); err != nil {
			c.log.Error("remove queued booking", zap.String("request", id), zap.Error(err))
		}
		sent++
		c.publish(Outcome{Request: q.Request, Synced: true})
	}
	return sent, nil
}

func (c *Confirmer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.stopCh)
	c.mu.Unlock()

	c.wg.Wait()
	close(c.outcomes)
}

// LogSubmitter stands in for a data layer by logging each booking.
type LogSubmitter struct {
	Log *zap.Logger
}

func (s LogSubmitter) Submit(_ context.Context, req Request) error {
	s.Log.Info("booking requested",
		zap.String("request", req.ID),
		zap.String("service", req.Payload.ServiceID),
		zap.String("sessionType", string(req.Payload.SessionType)),
		zap.String("slot", req.Payload.SlotID),
		zap.String("client", req.Payload.Contact.Name),
		zap.String("email", req.Payload.Contact.Email),
	)
	return nil
}
