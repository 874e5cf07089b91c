package pgstore

import (
	"testing"
	"time"

	"wellsite/internal/booking"
)

func TestToRow(t *testing.T) {
	catalog := booking.Catalog{
		Slots: []booking.TimeSlot{{ID: "t1", StartISO: "2024-01-22T09:00:00Z", EndISO: "2024-01-22T10:00:00Z"}},
	}
	requested := time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)
	req := booking.Request{
		ID:        "7f8e6a52-3c1b-4c0e-9b7a-2f1d5e8c9a01",
		SessionID: "0d3c2b1a-1111-4222-8333-944455556666",
		Payload: booking.Payload{
			ServiceID:   "s1",
			SessionType: booking.SessionInPerson,
			SlotID:      "t1",
			Contact:     booking.Contact{Name: "Jane", Email: "jane@example.com"},
		},
		RequestedAt: requested,
	}

	row := toRow(req, catalog)
	if row.ID != req.ID || row.SessionID != req.SessionID || row.Status != "pending" {
		t.Fatalf("row = %+v", row)
	}
	if row.SessionFormat != "in_person" {
		t.Errorf("session format = %q", row.SessionFormat)
	}
	if row.ClientPhone != nil || row.Note != nil {
		t.Errorf("empty optional fields stored as values")
	}
	if row.ServiceID == nil || *row.ServiceID != "s1" {
		t.Errorf("service id = %v", row.ServiceID)
	}
	if row.StartDatetime == nil || !row.StartDatetime.Equal(time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", row.StartDatetime)
	}
	if row.EndDatetime == nil || row.EndDatetime.Sub(*row.StartDatetime) != time.Hour {
		t.Errorf("end = %v", row.EndDatetime)
	}
	if !row.CreatedAt.Equal(requested) {
		t.Errorf("created = %v", row.CreatedAt)
	}

	req.Payload.SlotID = "unknown"
	req.Payload.SessionType = booking.SessionOnline
	req.Payload.Contact.Phone = "555-0100"
	row = toRow(req, catalog)
	if row.StartDatetime != nil || row.EndDatetime != nil {
		t.Errorf("unknown slot produced times")
	}
	if row.SessionFormat != "online" || row.ClientPhone == nil || *row.ClientPhone != "555-0100" {
		t.Errorf("row = %+v", row)
	}
}
