package booking

// Stager receives the payload of a booking the moment the wizard commits to
// StepConfirmed. Stage must not block: the wizard moves on without waiting
// for the submission to finish.
type Stager interface {
	Stage(p Payload)
}

type StagerFunc func(p Payload)

func (f StagerFunc) Stage(p Payload) { f(p) }

// Wizard drives one booking flow. It is not safe for concurrent use; callers
// serialize access the same way a single page serializes user input.
type Wizard struct {
	state  State
	stager Stager
}

func NewWizard(stager Stager) *Wizard {
	return ResumeWizard(NewState(), stager)
}

// ResumeWizard continues a flow from a previously saved state.
func ResumeWizard(st State, stager Stager) *Wizard {
	if st.Step < StepChooseService {
		st.Step = StepChooseService
	}
	if st.Step > StepConfirmed {
		st.Step = StepConfirmed
	}
	return &Wizard{state: st, stager: stager}
}

func (w *Wizard) State() State { return w.state }

func (w *Wizard) Step() Step { return w.state.Step }

func (w *Wizard) CanAdvance() bool { return CanAdvance(w.state) }

func (w *Wizard) SelectService(id string) error {
	if err := w.editable(); err != nil {
		return err
	}
	w.state.ServiceID = id
	return nil
}

func (w *Wizard) SelectSessionType(t SessionType) error {
	if err := w.editable(); err != nil {
		return err
	}
	w.state.SessionType = t
	return nil
}

func (w *Wizard) SelectSlot(id string) error {
	if err := w.editable(); err != nil {
		return err
	}
	w.state.SlotID = id
	return nil
}

func (w *Wizard) SetContact(c Contact) error {
	if err := w.editable(); err != nil {
		return err
	}
	w.state.Contact = c
	return nil
}

func (w *Wizard) editable() error {
	if w.state.Step == StepConfirmed {
		return ErrConfirmed
	}
	return nil
}

// Advance moves one step forward if the current step validates and reports
// whether it did. Leaving StepEnterContactDetails stages the booking and then
// commits to StepConfirmed without waiting on the submission.
func (w *Wizard) Advance() bool {
	if !CanAdvance(w.state) {
		return false
	}
	if w.state.Step == StepEnterContactDetails {
		w.stage()
	}
	w.state.Step++
	return true
}

func (w *Wizard) stage() {
	if w.stager != nil {
		w.stager.Stage(w.state.Payload())
	}
}

// Retreat moves one step back, never below the first, whatever the state of
// the inputs.
func (w *Wizard) Retreat() bool {
	if w.state.Step <= StepChooseService {
		return false
	}
	w.state.Step--
	return true
}
