package utils

import "bookingsync-service/internal/domain/entity"

// Per-seat base fares by cabin. A booking's cost is always recomputed from
// this table when its seats, class, or passenger count change, never patched
// incrementally.
var baseFares = map[entity.SeatClass]float64{
	entity.ClassFirst:    500,
	entity.ClassBusiness: 300,
	entity.ClassEconomy:  120,
}

// Fare returns the total cost for quantity passengers in the given class.
func Fare(class entity.SeatClass, quantity int) float64 {
	if quantity <= 0 {
		return 0
	}
	return baseFares[class] * float64(quantity)
}
