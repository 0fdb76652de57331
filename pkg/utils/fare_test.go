package utils

import (
	"testing"

	"bookingsync-service/internal/domain/entity"

	"github.com/stretchr/testify/assert"
)

func TestFare(t *testing.T) {
	assert.Equal(t, 0.0, Fare(entity.ClassEconomy, 0))
	assert.Equal(t, 0.0, Fare(entity.ClassFirst, -1))
	assert.Equal(t, 120.0, Fare(entity.ClassEconomy, 1))
	assert.Equal(t, 600.0, Fare(entity.ClassBusiness, 2))
	assert.Equal(t, 1500.0, Fare(entity.ClassFirst, 3))
}
