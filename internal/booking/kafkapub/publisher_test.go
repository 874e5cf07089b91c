package kafkapub

import (
	"encoding/json"
	"testing"

	"wellsite/internal/booking"
)

func TestEncode(t *testing.T) {
	req := booking.Request{
		ID:        "r1",
		SessionID: "sess-1",
		Payload: booking.Payload{
			ServiceID:   "s1",
			SessionType: booking.SessionOnline,
			SlotID:      "t1",
			Contact:     booking.Contact{Name: "Jane", Email: "jane@example.com"},
		},
	}
	msg, err := encode(req)
	if err != nil {
		t.Fatal(err)
	}
	if string(msg.Key) != "r1" {
		t.Errorf("key = %q", msg.Key)
	}
	if len(msg.Headers) != 1 || msg.Headers[0].Key != "type" || string(msg.Headers[0].Value) != "booking.requested" {
		t.Errorf("headers = %+v", msg.Headers)
	}

	var body struct {
		ID      string `json:"id"`
		Payload struct {
			ServiceID   string `json:"serviceId"`
			SessionType string `json:"sessionType"`
			SlotID      string `json:"slotId"`
			Contact     struct {
				Name  string `json:"name"`
				Email string `json:"email"`
				Phone string `json:"phone"`
			} `json:"contact"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(msg.Value, &body); err != nil {
		t.Fatal(err)
	}
	if body.ID != "r1" || body.Payload.ServiceID != "s1" || body.Payload.SessionType != "online" || body.Payload.Contact.Email != "jane@example.com" {
		t.Errorf("body = %s", msg.Value)
	}
}
