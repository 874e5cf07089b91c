package outbox

import (
	"path/filepath"
	"testing"
	"time"

	"wellsite/internal/booking"
)

func request(id string) booking.Request {
	return booking.Request{
		ID:        id,
		SessionID: "sess-" + id,
		Payload: booking.Payload{
			ServiceID:   "s1",
			SessionType: booking.SessionInPerson,
			SlotID:      "t1",
			Contact:     booking.Contact{Name: "Jane", Email: "jane@example.com", Phone: "555-0100"},
		},
		RequestedAt: time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC),
	}
}

func TestOutboxLifecycle(t *testing.T) {
	o, err := OpenMem()
	if err != nil {
		t.Fatal(err)
	}
	defer o.Close()

	for _, id := range []string{"a", "b"} {
		if err := o.Enqueue(request(id)); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
		time.Sleep(time.Millisecond)
	}
	// Second enqueue of the same id keeps the first record.
	o.Attempted("a")
	o.Enqueue(request("a"))

	pending, err := o.Pending()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 || pending[0].Request.ID != "a" || pending[1].Request.ID != "b" {
		t.Fatalf("pending = %+v", pending)
	}
	if pending[0].Attempts != 2 || pending[1].Attempts != 1 {
		t.Fatalf("attempts = %d, %d", pending[0].Attempts, pending[1].Attempts)
	}
	want := request("b")
	if got := pending[1].Request; got.Payload != want.Payload || got.SessionID != want.SessionID || !got.RequestedAt.Equal(want.RequestedAt) {
		t.Fatalf("request changed in storage: %+v", pending[1].Request)
	}

	if err := o.Remove("a"); err != nil {
		t.Fatal(err)
	}
	if err := o.Attempted("missing"); err != nil {
		t.Fatalf("attempted on missing id: %v", err)
	}
	if n := o.Len(); n != 1 {
		t.Fatalf("len = %d", n)
	}
}

func TestOutboxSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outbox")
	o, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	o.Enqueue(request("a"))
	o.Close()

	o, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer o.Close()
	pending, _ := o.Pending()
	if len(pending) != 1 || pending[0].Request.ID != "a" {
		t.Fatalf("pending after reopen = %+v", pending)
	}
}
