package entity

// User is reference data: a registered client of the booking system.
type User struct {
	Meta      `bson:",inline"`
	FirstName string `json:"firstName" bson:"firstName"`
	LastName  string `json:"lastName" bson:"lastName"`
	Email     string `json:"email" bson:"email"`
	Phone     string `json:"phone" bson:"phone"`
}

// Clone returns a copy.
func (u *User) Clone() Record {
	cp := *u
	return &cp
}

// City is reference data: a city served by the schedule.
type City struct {
	Meta        `bson:",inline"`
	Name        string `json:"name" bson:"name"`
	AirportCode string `json:"airportCode" bson:"airportCode"`
}

// Clone returns a copy.
func (c *City) Clone() Record {
	cp := *c
	return &cp
}
