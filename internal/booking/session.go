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

type SubmissionStatus string

const (
	SubmissionPending   SubmissionStatus = "pending"
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionQueued    SubmissionStatus = "queued"
	SubmissionFailed    SubmissionStatus = "failed"
)

type Submission struct {
	Status    SubmissionStatus `json:"status"`
	RequestID string           `json:"requestId"`
	Error     string           `json:"error,omitempty"`
}

// Session is a wizard flow persisted between HTTP requests.
type Session struct {
	ID         string      `json:"id"`
	State      State       `json:"state"`
	Submission *Submission `json:"submission,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

type SessionStore interface {
	// Get returns ErrSessionNotFound for unknown or expired ids.
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// Patch carries the selections a client changes in one request. Nil fields
// are left alone; an empty string clears a selection.
type Patch struct {
	ServiceID   *string      `json:"serviceId"`
	SessionType *SessionType `json:"sessionType"`
	SlotID      *string      `json:"slotId"`
	Contact     *Contact     `json:"contact"`
}

// SessionService keeps wizard sessions in a SessionStore and feeds confirmed ones to
// a Confirmer.
type SessionService struct {
	store     SessionStore
	catalog   Catalog
	confirmer *Confirmer
	ttl       time.Duration
	log       *zap.Logger

	// serializes read-modify-write of sessions within this process
	mu sync.Mutex

	done chan struct{}
}

func NewSessionService(store SessionStore, catalog Catalog, confirmer *Confirmer, ttl time.Duration, log *zap.Logger) *SessionService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &SessionService{
		store:     store,
		catalog:   catalog,
		confirmer: confirmer,
		ttl:       ttl,
		log:       log,
		done:      make(chan struct{}),
	}
	go s.watchOutcomes()
	return s
}

// Close stops the confirmer and waits until every outcome has been recorded.
func (s *SessionService) Close() {
	s.confirmer.Close()
	<-s.done
}

func (s *SessionService) Catalog() Catalog { return s.catalog }

func (s *SessionService) Start(ctx context.Context) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		State:     NewState(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Save(ctx, sess, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to store booking session: %w", err)
	}
	return sess, nil
}

func (s *SessionService) Get(ctx context.Context, id string) (*Session, error) {
	return s.store.Get(ctx, id)
}

func (s *SessionService) Update(ctx context.Context, id string, p Patch) (*Session, error) {
	return s.mutate(ctx, id, func(_ *Session, w *Wizard) error {
		if p.ServiceID != nil {
			if *p.ServiceID != "" {
				if _, ok := s.catalog.Service(*p.ServiceID); !ok {
					return fmt.Errorf("%w: %q", ErrUnknownService, *p.ServiceID)
				}
			}
			if err := w.SelectService(*p.ServiceID); err != nil {
				return err
			}
		}
		if p.SessionType != nil {
			if *p.SessionType != "" && !p.SessionType.Valid() {
				return fmt.Errorf("%w: %q", ErrUnknownSessionType, *p.SessionType)
			}
			if err := w.SelectSessionType(*p.SessionType); err != nil {
				return err
			}
		}
		if p.SlotID != nil {
			if *p.SlotID != "" {
				if _, ok := s.catalog.Slot(*p.SlotID); !ok {
					return fmt.Errorf("%w: %q", ErrUnknownSlot, *p.SlotID)
				}
			}
			if err := w.SelectSlot(*p.SlotID); err != nil {
				return err
			}
		}
		if p.Contact != nil {
			if err := w.SetContact(*p.Contact); err != nil {
				return err
			}
		}
		return nil
	})
}

// Advance reports whether the step moved. A refused advance is not an error.
func (s *SessionService) Advance(ctx context.Context, id string) (*Session, bool, error) {
	var moved bool
	sess, err := s.mutate(ctx, id, func(_ *Session, w *Wizard) error {
		moved = w.Advance()
		return nil
	})
	return sess, moved, err
}

func (s *SessionService) Retreat(ctx context.Context, id string) (*Session, bool, error) {
	var moved bool
	sess, err := s.mutate(ctx, id, func(_ *Session, w *Wizard) error {
		moved = w.Retreat()
		return nil
	})
	return sess, moved, err
}

func (s *SessionService) Cancel(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to cancel booking session: %w", err)
	}
	return nil
}

func (s *SessionService) mutate(ctx context.Context, id string, fn func(*Session, *Wizard) error) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	// A staged request is dispatched only after the StepConfirmed save.
	var staged *Request
	w := ResumeWizard(sess.State, StagerFunc(func(p Payload) {
		req := NewRequest(sess.ID, p)
		staged = &req
		sess.Submission = &Submission{Status: SubmissionPending, RequestID: req.ID}
	}))
	if err := fn(sess, w); err != nil {
		return nil, err
	}
	sess.State = w.State()
	sess.UpdatedAt = time.Now().UTC()
	if err := s.store.Save(ctx, sess, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to update booking session: %w", err)
	}
	if staged == nil {
		return sess, nil
	}

	status := s.confirmer.Dispatch(*staged)
	if status == SubmissionPending {
		return sess, nil
	}
	sess.Submission.Status = status
	if status == SubmissionFailed {
		sess.Submission.Error = errConfirmerClosed.Error()
	}
	if err := s.store.Save(ctx, sess, s.ttl); err != nil {
		s.log.Warn("record submission outcome", zap.String("session", sess.ID), zap.String("request", staged.ID), zap.Error(err))
	}
	return sess, nil
}

func (s *SessionService) watchOutcomes() {
	defer close(s.done)
	for o := range s.confirmer.Outcomes() {
		s.applyOutcome(o)
	}
}

func (s *SessionService) applyOutcome(o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log := s.log.With(zap.String("session", o.Request.SessionID), zap.String("request", o.Request.ID))
	sess, err := s.store.Get(ctx, o.Request.SessionID)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			log.Warn("load session for outcome", zap.Error(err))
		}
		return
	}
	if sess.Submission == nil || sess.Submission.RequestID != o.Request.ID {
		return
	}

	sub := Submission{RequestID: o.Request.ID, Status: SubmissionSubmitted}
	switch {
	case o.Err == nil:
	case o.Queued:
		sub.Status = SubmissionQueued
		sub.Error = o.Err.Error()
	default:
		sub.Status = SubmissionFailed
		sub.Error = o.Err.Error()
	}
	sess.Submission = &sub
	sess.UpdatedAt = time.Now().UTC()
	if err := s.store.Save(ctx, sess, s.ttl); err != nil {
		log.Warn("record submission outcome", zap.Error(err))
	}
}

// View is the client-facing rendering of a session.
type View struct {
	ID         string      `json:"id"`
	State      State       `json:"state"`
	StepName   string      `json:"stepName"`
	CanAdvance bool        `json:"canAdvance"`
	Summary    *Summary    `json:"summary,omitempty"`
	Submission *Submission `json:"submission,omitempty"`
}

// View includes the summary from StepEnterContactDetails onwards.
func (s *SessionService) View(sess *Session) View {
	v := View{
		ID:         sess.ID,
		State:      sess.State,
		StepName:   sess.State.Step.String(),
		CanAdvance: CanAdvance(sess.State),
		Submission: sess.Submission,
	}
	if sess.State.Step >= StepEnterContactDetails {
		sum := s.catalog.Summary(sess.State)
		v.Summary = &sum
	}
	return v
}
