package redisstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"wellsite/internal/booking"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := New(context.Background(), mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestStoreLifecycle(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, booking.ErrSessionNotFound) {
		t.Fatalf("get missing: %v", err)
	}

	sess := &booking.Session{
		ID:         "sess-1",
		State:      booking.State{Step: booking.StepChooseSessionType, ServiceID: "s1"},
		Submission: &booking.Submission{Status: booking.SubmissionPending, RequestID: "r1"},
	}
	if err := s.Save(ctx, sess, 10*time.Minute); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("booking_session:sess-1"); ttl != 10*time.Minute {
		t.Errorf("ttl = %v", ttl)
	}
	got, err := s.Get(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != sess.State || got.Submission == nil || *got.Submission != *sess.Submission {
		t.Fatalf("got = %+v", got)
	}

	mr.FastForward(11 * time.Minute)
	if _, err := s.Get(ctx, "sess-1"); !errors.Is(err, booking.ErrSessionNotFound) {
		t.Fatalf("get expired: %v", err)
	}

	if err := s.Save(ctx, sess, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "sess-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "sess-1"); !errors.Is(err, booking.ErrSessionNotFound) {
		t.Fatalf("get deleted: %v", err)
	}
}

func TestStoreErrors(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	mr.Set("booking_session:bad", "not json")
	if _, err := s.Get(ctx, "bad"); err == nil || errors.Is(err, booking.ErrSessionNotFound) {
		t.Fatalf("corrupt session: %v", err)
	}

	mr.SetError("LOADING")
	if _, err := s.Get(ctx, "sess-1"); err == nil || errors.Is(err, booking.ErrSessionNotFound) {
		t.Fatalf("server error mapped to not found: %v", err)
	}
	mr.SetError("")

	addr := mr.Addr()
	mr.Close()
	if _, err := New(ctx, addr, "", 0); err == nil {
		t.Fatalf("connected to a closed server")
	}
}
