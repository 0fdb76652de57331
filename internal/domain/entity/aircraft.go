package entity

// SeatClass identifies one of the three cabins of an aircraft.
type SeatClass string

const (
	ClassFirst    SeatClass = "first"
	ClassBusiness SeatClass = "business"
	ClassEconomy  SeatClass = "economy"
)

// Valid reports whether the class is one of the three known cabins.
func (c SeatClass) Valid() bool {
	switch c {
	case ClassFirst, ClassBusiness, ClassEconomy:
		return true
	}
	return false
}

// Seat is one seat on an aircraft. Occupied reflects the union of seats held
// by non-cancelled bookings on the flight this aircraft serves.
type Seat struct {
	Label    string `json:"label" bson:"label"`
	Occupied bool   `json:"occupied" bson:"occupied"`
}

// Aircraft describes the cabin layout of one airframe. Seat labels are
// unique across all three classes.
type Aircraft struct {
	Meta     `bson:",inline"`
	Name     string `json:"name" bson:"name"`
	First    []Seat `json:"firstClass" bson:"firstClass"`
	Business []Seat `json:"businessClass" bson:"businessClass"`
	Economy  []Seat `json:"economyClass" bson:"economyClass"`
}

// Clone returns a deep copy.
func (a *Aircraft) Clone() Record {
	cp := *a
	cp.First = append([]Seat(nil), a.First...)
	cp.Business = append([]Seat(nil), a.Business...)
	cp.Economy = append([]Seat(nil), a.Economy...)
	return &cp
}

// SeatsIn returns the seat slice for the given class. The slice aliases the
// aircraft's own storage so callers can flip Occupied in place.
func (a *Aircraft) SeatsIn(class SeatClass) []Seat {
	switch class {
	case ClassFirst:
		return a.First
	case ClassBusiness:
		return a.Business
	case ClassEconomy:
		return a.Economy
	}
	return nil
}

// FindSeat returns a pointer into the aircraft's seat storage for the given
// label, searching all classes, or nil if no such seat exists.
func (a *Aircraft) FindSeat(label string) *Seat {
	for _, seats := range [][]Seat{a.First, a.Business, a.Economy} {
		for i := range seats {
			if seats[i].Label == label {
				return &seats[i]
			}
		}
	}
	return nil
}

// ClassOf returns the class that contains the given seat label, or "" if the
// label is unknown.
func (a *Aircraft) ClassOf(label string) SeatClass {
	for _, class := range []SeatClass{ClassFirst, ClassBusiness, ClassEconomy} {
		seats := a.SeatsIn(class)
		for i := range seats {
			if seats[i].Label == label {
				return class
			}
		}
	}
	return ""
}

// ReleaseAll marks every seat unoccupied and reports whether anything changed.
func (a *Aircraft) ReleaseAll() bool {
	changed := false
	for _, seats := range [][]Seat{a.First, a.Business, a.Economy} {
		for i := range seats {
			if seats[i].Occupied {
				seats[i].Occupied = false
				changed = true
			}
		}
	}
	return changed
}
