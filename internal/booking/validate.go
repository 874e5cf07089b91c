package booking

import "strings"

var validators = map[Step]func(State) bool{
	StepChooseService:       func(st State) bool { return st.ServiceID != "" },
	StepChooseSessionType:   func(st State) bool { return st.SessionType != "" },
	StepChooseTimeSlot:      func(st State) bool { return st.SlotID != "" },
	StepEnterContactDetails: contactComplete,
}

// CanAdvance reports whether the current step's input is complete. There is
// no forward transition out of StepConfirmed.
func CanAdvance(st State) bool {
	v, ok := validators[st.Step]
	return ok && v(st)
}

func contactComplete(st State) bool {
	return strings.TrimSpace(st.Contact.Name) != "" && strings.TrimSpace(st.Contact.Email) != ""
}
