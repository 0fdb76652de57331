package entity

// TransitionKind names one of the booking state transitions the mutation
// processor knows how to apply. The set is closed: anything else is rejected
// before any record is touched.
type TransitionKind string

const (
	TransitionCancelFlight    TransitionKind = "cancelFlight"
	TransitionAddPassenger    TransitionKind = "addPassenger"
	TransitionChangePassenger TransitionKind = "changePassenger"
	TransitionChangeClass     TransitionKind = "changeClass"
	TransitionChangeSeats     TransitionKind = "changeSeats"
	TransitionDeletePassenger TransitionKind = "deletePassenger"
)

// Valid reports whether the kind is one of the known transitions.
func (k TransitionKind) Valid() bool {
	switch k {
	case TransitionCancelFlight, TransitionAddPassenger, TransitionChangePassenger,
		TransitionChangeClass, TransitionChangeSeats, TransitionDeletePassenger:
		return true
	}
	return false
}

// BookingUpdate is the payload accompanying a booking transition. Which
// fields are read depends on the transition kind; the rest are ignored.
type BookingUpdate struct {
	Passengers    []Passenger `json:"passengers,omitempty"`
	Seats         []string    `json:"seats,omitempty"`
	SelectedClass SeatClass   `json:"selectedClass,omitempty"`
}
