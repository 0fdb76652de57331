package entity

// BookingStatus tracks whether a booking still holds its seats. Active
// bookings hold seats; a flight-status cascade may stamp the flight's status
// onto its bookings, and Cancelled (however it was reached) releases them.
type BookingStatus string

const (
	BookingActive    BookingStatus = "Active"
	BookingCancelled BookingStatus = "Cancelled"
)

// Passenger is one traveller on a booking.
type Passenger struct {
	FirstName string `json:"firstName" bson:"firstName"`
	LastName  string `json:"lastName" bson:"lastName"`
}

// Booking ties passengers to seats on one flight. Seats is parallel to
// Passengers: passenger i holds seat Seats[i]. For an Active booking the
// seats are a subset of the flight's aircraft seat labels and are disjoint
// from every other active booking on the same flight.
type Booking struct {
	Meta              `bson:",inline"`
	FlightNumber      int64         `json:"flightNumber" bson:"flightNumber"`
	Passengers        []Passenger   `json:"passengers" bson:"passengers"`
	Seats             []string      `json:"seats" bson:"seats"`
	SelectedClass     SeatClass     `json:"selectedClass" bson:"selectedClass"`
	PassengerQuantity int           `json:"passengerQuantity" bson:"passengerQuantity"`
	Cost              float64       `json:"cost" bson:"cost"`
	Status            BookingStatus `json:"status" bson:"status"`
}

// Clone returns a deep copy.
func (b *Booking) Clone() Record {
	cp := *b
	cp.Passengers = append([]Passenger(nil), b.Passengers...)
	cp.Seats = append([]string(nil), b.Seats...)
	return &cp
}

// HoldsSeats reports whether the booking currently occupies seats on its
// flight's aircraft.
func (b *Booking) HoldsSeats() bool {
	return b.Status != BookingCancelled && len(b.Seats) > 0
}

// HasSeat reports whether the booking currently holds the given label.
func (b *Booking) HasSeat(label string) bool {
	for _, s := range b.Seats {
		if s == label {
			return true
		}
	}
	return false
}
