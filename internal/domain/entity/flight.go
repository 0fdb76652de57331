package entity

import "time"

// FlightStatus is the closed set of states a flight moves through.
type FlightStatus string

const (
	FlightScheduled FlightStatus = "Scheduled"
	FlightDelayed   FlightStatus = "Delayed"
	FlightCancelled FlightStatus = "Cancelled"
	FlightCompleted FlightStatus = "Completed"
)

// Valid reports whether the status is a known flight status.
func (s FlightStatus) Valid() bool {
	switch s {
	case FlightScheduled, FlightDelayed, FlightCancelled, FlightCompleted:
		return true
	}
	return false
}

// Flight is one scheduled departure. Its record id doubles as the flight
// number that bookings reference.
type Flight struct {
	Meta          `bson:",inline"`
	AircraftName  string       `json:"aircraftName" bson:"aircraftName"`
	DepartureCity string       `json:"departureCity" bson:"departureCity"`
	ArrivalCity   string       `json:"arrivalCity" bson:"arrivalCity"`
	DepartureTime time.Time    `json:"departureTime" bson:"departureTime"`
	ArrivalTime   time.Time    `json:"arrivalTime" bson:"arrivalTime"`
	Status        FlightStatus `json:"status" bson:"status"`
}

// Clone returns a copy.
func (f *Flight) Clone() Record {
	cp := *f
	return &cp
}
