package booking

import (
	"fmt"
	"strings"
)

// Step is a position in the booking flow.
type Step int

const (
	StepChooseService Step = iota + 1
	StepChooseSessionType
	StepChooseTimeSlot
	StepEnterContactDetails
	StepConfirmed
)

func (s Step) String() string {
	switch s {
	case StepChooseService:
		return "choose-service"
	case StepChooseSessionType:
		return "choose-session-type"
	case StepChooseTimeSlot:
		return "choose-time-slot"
	case StepEnterContactDetails:
		return "enter-contact-details"
	case StepConfirmed:
		return "confirmed"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

type SessionType string

const (
	SessionOnline   SessionType = "online"
	SessionInPerson SessionType = "in-person"
)

var SessionTypes = []SessionType{SessionOnline, SessionInPerson}

func (t SessionType) Valid() bool {
	return t == SessionOnline || t == SessionInPerson
}

// Service is an offering of the practice. Reference data, never mutated here.
type Service struct {
	ID              string  `yaml:"id" json:"id"`
	Title           string  `yaml:"title" json:"title"`
	DurationMinutes int     `yaml:"durationMinutes" json:"durationMinutes"`
	Price           float64 `yaml:"price" json:"price"`
}

type TimeSlot struct {
	ID           string `yaml:"id" json:"id"`
	StartISO     string `yaml:"startIso" json:"startIso"`
	EndISO       string `yaml:"endIso" json:"endIso"`
	DisplayLabel string `yaml:"displayLabel" json:"displayLabel"`
}

type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Note  string `json:"note"`
}

// State is everything the wizard accumulates between steps.
type State struct {
	Step        Step        `json:"step"`
	ServiceID   string      `json:"selectedServiceId,omitempty"`
	SessionType SessionType `json:"sessionType,omitempty"`
	SlotID      string      `json:"selectedSlotId,omitempty"`
	Contact     Contact     `json:"contact"`
}

func NewState() State {
	return State{Step: StepChooseService}
}

// Payload is what a confirmed booking hands to the data layer.
type Payload struct {
	ServiceID   string      `json:"serviceId"`
	SessionType SessionType `json:"sessionType"`
	SlotID      string      `json:"slotId"`
	Contact     Contact     `json:"contact"`
}

func (st State) Payload() Payload {
	return Payload{
		ServiceID:   st.ServiceID,
		SessionType: st.SessionType,
		SlotID:      st.SlotID,
		Contact:     st.Contact,
	}
}

type Catalog struct {
	Services []Service  `yaml:"services" json:"services"`
	Slots    []TimeSlot `yaml:"slots" json:"slots"`
}

func (c Catalog) Service(id string) (Service, bool) {
	for _, s := range c.Services {
		if s.ID == id {
			return s, true
		}
	}
	return Service{}, false
}

func (c Catalog) Slot(id string) (TimeSlot, bool) {
	for _, t := range c.Slots {
		if t.ID == id {
			return t, true
		}
	}
	return TimeSlot{}, false
}

func (c Catalog) Validate() error {
	seen := map[string]struct{}{}
	for i, s := range c.Services {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("services[%d].id: empty", i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("services[%d].id: duplicate %q", i, s.ID)
		}
		seen[s.ID] = struct{}{}
		if s.Price < 0 {
			return fmt.Errorf("services[%d].price: negative", i)
		}
	}
	seen = map[string]struct{}{}
	for i, t := range c.Slots {
		if strings.TrimSpace(t.ID) == "" {
			return fmt.Errorf("slots[%d].id: empty", i)
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("slots[%d].id: duplicate %q", i, t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}

// Summary is derived on read. Fields whose id does not resolve against the
// catalog are left empty.
type Summary struct {
	ServiceTitle    string      `json:"serviceTitle,omitempty"`
	DurationMinutes int         `json:"durationMinutes,omitempty"`
	SessionType     SessionType `json:"sessionType,omitempty"`
	SlotLabel       string      `json:"slotDisplayLabel,omitempty"`
	TotalPrice      *float64    `json:"totalPrice,omitempty"`
}

func (c Catalog) Summary(st State) Summary {
	sum := Summary{SessionType: st.SessionType}
	if svc, ok := c.Service(st.ServiceID); ok {
		price := svc.Price
		sum.ServiceTitle = svc.Title
		sum.DurationMinutes = svc.DurationMinutes
		sum.TotalPrice = &price
	}
	if slot, ok := c.Slot(st.SlotID); ok {
		sum.SlotLabel = slot.DisplayLabel
	}
	return sum
}
