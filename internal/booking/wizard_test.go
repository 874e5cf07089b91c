package booking

import (
	"errors"
	"reflect"
	"testing"
)

type recordingStager struct {
	staged []Payload
}

func (r *recordingStager) Stage(p Payload) { r.staged = append(r.staged, p) }

func testCatalog() Catalog {
	return Catalog{
		Services: []Service{
			{ID: "s1", Title: "Individual Therapy", DurationMinutes: 60, Price: 150},
			{ID: "s2", Title: "Couples Therapy", DurationMinutes: 90, Price: 200},
		},
		Slots: []TimeSlot{
			{ID: "t1", StartISO: "2024-01-22T09:00:00Z", EndISO: "2024-01-22T10:00:00Z", DisplayLabel: "Mon, Jan 22 - 9:00 AM"},
			{ID: "t2", StartISO: "2024-01-22T11:00:00Z", EndISO: "2024-01-22T12:00:00Z", DisplayLabel: "Mon, Jan 22 - 11:00 AM"},
		},
	}
}

func TestWizardCompleteFlow(t *testing.T) {
	rec := &recordingStager{}
	w := NewWizard(rec)

	steps := []func() error{
		func() error { return w.SelectService("s1") },
		func() error { return w.SelectSessionType(SessionOnline) },
		func() error { return w.SelectSlot("t1") },
		func() error { return w.SetContact(Contact{Name: "Jane", Email: "jane@example.com"}) },
	}
	for idx, set := range steps {
		if err := set(); err != nil {
			t.Fatalf("#%d: set: %v", idx, err)
		}
		if !w.CanAdvance() {
			t.Fatalf("#%d: cannot advance from %v", idx, w.Step())
		}
		if !w.Advance() {
			t.Fatalf("#%d: advance refused", idx)
		}
	}

	if w.Step() != StepConfirmed {
		t.Fatalf("step = %v", w.Step())
	}
	want := Payload{
		ServiceID:   "s1",
		SessionType: SessionOnline,
		SlotID:      "t1",
		Contact:     Contact{Name: "Jane", Email: "jane@example.com", Phone: "", Note: ""},
	}
	if len(rec.staged) != 1 || !reflect.DeepEqual(rec.staged[0], want) {
		t.Fatalf("staged = %+v", rec.staged)
	}
}

func TestWizardRefusesIncompleteStep(t *testing.T) {
	w := NewWizard(nil)
	before := w.State()
	if w.Advance() {
		t.Fatalf("advanced without a service")
	}
	if !reflect.DeepEqual(w.State(), before) || w.Step() != StepChooseService {
		t.Fatalf("state changed: %+v", w.State())
	}
}

func TestAdvanceMovesOnlyWhenValid(t *testing.T) {
	full := Contact{Name: "Jane", Email: "jane@example.com"}
	tests := []struct {
		state  State
		expect bool
	}{
		{State{Step: StepChooseService}, false},
		{State{Step: StepChooseService, ServiceID: "s1"}, true},
		{State{Step: StepChooseSessionType, ServiceID: "s1"}, false},
		{State{Step: StepChooseSessionType, SessionType: SessionInPerson}, true},
		{State{Step: StepChooseTimeSlot}, false},
		{State{Step: StepChooseTimeSlot, SlotID: "t2"}, true},
		{State{Step: StepEnterContactDetails, Contact: Contact{Name: "Jane"}}, false},
		{State{Step: StepEnterContactDetails, Contact: Contact{Email: "jane@example.com"}}, false},
		{State{Step: StepEnterContactDetails, Contact: Contact{Name: "  ", Email: "jane@example.com"}}, false},
		{State{Step: StepEnterContactDetails, Contact: full}, true},
		{State{Step: StepConfirmed, ServiceID: "s1", SessionType: SessionOnline, SlotID: "t1", Contact: full}, false},
	}
	for idx, test := range tests {
		rec := &recordingStager{}
		w := ResumeWizard(test.state, rec)
		can := w.CanAdvance()
		if can != test.expect {
			t.Errorf("#%d: canAdvance=%v, expect=%v", idx, can, test.expect)
		}
		before := w.Step()
		moved := w.Advance()
		if moved != can {
			t.Errorf("#%d: moved=%v, canAdvance was %v", idx, moved, can)
		}
		if moved && w.Step() != before+1 {
			t.Errorf("#%d: step %v -> %v", idx, before, w.Step())
		}
		if !moved && w.Step() != before {
			t.Errorf("#%d: step changed on refused advance", idx)
		}
		if staged := len(rec.staged) == 1; staged != (moved && before == StepEnterContactDetails) {
			t.Errorf("#%d: staged=%d", idx, len(rec.staged))
		}
	}
}

func TestRetreatIgnoresValidity(t *testing.T) {
	for step := StepChooseService; step <= StepConfirmed; step++ {
		w := ResumeWizard(State{Step: step}, nil)
		moved := w.Retreat()
		if step == StepChooseService {
			if moved || w.Step() != StepChooseService {
				t.Errorf("retreat below first step: %v", w.Step())
			}
			continue
		}
		if !moved || w.Step() != step-1 {
			t.Errorf("retreat from %v gave %v", step, w.Step())
		}
	}
}

func TestRetreatKeepsSelections(t *testing.T) {
	w := ResumeWizard(State{Step: StepChooseTimeSlot, ServiceID: "s2", SessionType: SessionInPerson, SlotID: "t2"}, nil)
	w.Retreat()
	w.Retreat()
	st := w.State()
	if st.Step != StepChooseService || st.ServiceID != "s2" || st.SessionType != SessionInPerson || st.SlotID != "t2" {
		t.Fatalf("state = %+v", st)
	}
}

func TestConfirmedWizardIsFrozen(t *testing.T) {
	w := ResumeWizard(State{Step: StepConfirmed, ServiceID: "s1"}, nil)
	edits := []error{
		w.SelectService("s2"),
		w.SelectSessionType(SessionOnline),
		w.SelectSlot("t2"),
		w.SetContact(Contact{Name: "X"}),
	}
	for idx, err := range edits {
		if !errors.Is(err, ErrConfirmed) {
			t.Errorf("#%d: err=%v", idx, err)
		}
	}
	if w.State().ServiceID != "s1" {
		t.Errorf("confirmed state edited")
	}
}

func TestResumeClampsStep(t *testing.T) {
	tests := []struct {
		input  Step
		expect Step
	}{
		{0, StepChooseService},
		{-3, StepChooseService},
		{StepChooseTimeSlot, StepChooseTimeSlot},
		{9, StepConfirmed},
	}
	for idx, test := range tests {
		if recv := ResumeWizard(State{Step: test.input}, nil).Step(); recv != test.expect {
			t.Errorf("#%d: recv=%v, expect=%v", idx, recv, test.expect)
		}
	}
}

func TestSummary(t *testing.T) {
	cat := testCatalog()
	st := State{Step: StepEnterContactDetails, ServiceID: "s1", SessionType: SessionOnline, SlotID: "t1"}

	a := cat.Summary(st)
	b := cat.Summary(st)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("summary not stable: %+v vs %+v", a, b)
	}
	if a.ServiceTitle != "Individual Therapy" || a.DurationMinutes != 60 || a.SlotLabel != "Mon, Jan 22 - 9:00 AM" {
		t.Fatalf("summary = %+v", a)
	}
	if a.TotalPrice == nil || *a.TotalPrice != 150 {
		t.Fatalf("price = %v", a.TotalPrice)
	}

	none := cat.Summary(State{ServiceID: "nope", SlotID: "nope"})
	if none.ServiceTitle != "" || none.TotalPrice != nil || none.SlotLabel != "" {
		t.Fatalf("unresolved ids leaked into summary: %+v", none)
	}
}

func TestStepString(t *testing.T) {
	tests := []struct {
		input  Step
		expect string
	}{
		{StepChooseService, "choose-service"},
		{StepConfirmed, "confirmed"},
	}
	for idx, test := range tests {
		if recv := test.input.String(); recv != test.expect {
			t.Errorf("#%d: recv=%q, expect=%q", idx, recv, test.expect)
		}
	}
}

func TestCatalogValidate(t *testing.T) {
	tests := []struct {
		catalog Catalog
		ok      bool
	}{
		{testCatalog(), true},
		{Catalog{}, true},
		{Catalog{Services: []Service{{ID: ""}}}, false},
		{Catalog{Services: []Service{{ID: "a"}, {ID: "a"}}}, false},
		{Catalog{Services: []Service{{ID: "a", Price: -1}}}, false},
		{Catalog{Slots: []TimeSlot{{ID: "t"}, {ID: "t"}}}, false},
	}
	for idx, test := range tests {
		if err := test.catalog.Validate(); (err == nil) != test.ok {
			t.Errorf("#%d: err=%v", idx, err)
		}
	}
}
