package usecase

import (
	"context"
	"sync"
	"testing"

	"bookingsync-service/internal/domain/entity"
	"bookingsync-service/internal/domain/repository"
	storerepo "bookingsync-service/internal/interface/repository"
	"bookingsync-service/pkg/logger"
	"bookingsync-service/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// One metrics instance per test binary: promauto registers globally.
var testMetrics = metrics.NewMetrics("usecase_test")

// testEngine wires a processor over a fresh in-process store seeded with one
// aircraft and one scheduled flight.
type testEngine struct {
	store        *storerepo.MemoryStore
	feed         *ChangeFeed
	processor    *Processor
	flightNumber int64
	aircraftID   int64
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	ctx := context.Background()

	feed := NewChangeFeed(logger.NewNop())
	store := storerepo.NewMemoryStore(feed)

	ac, err := store.Create(ctx, entity.CollectionAircrafts, &entity.Aircraft{
		Name:     "A320",
		First:    []entity.Seat{{Label: "1A"}, {Label: "1B"}},
		Business: []entity.Seat{{Label: "2A"}, {Label: "2B"}},
		Economy:  []entity.Seat{{Label: "4A"}, {Label: "4B"}, {Label: "5A"}, {Label: "5B"}},
	})
	require.NoError(t, err)

	f, err := store.Create(ctx, entity.CollectionFlights, &entity.Flight{
		AircraftName:  "A320",
		DepartureCity: "Oslo",
		ArrivalCity:   "Rome",
		Status:        entity.FlightScheduled,
	})
	require.NoError(t, err)

	return &testEngine{
		store:        store,
		feed:         feed,
		processor:    NewProcessor(store, logger.NewNop(), testMetrics, 5),
		flightNumber: f.GetMeta().ID,
		aircraftID:   ac.GetMeta().ID,
	}
}

func (e *testEngine) aircraft(t *testing.T) *entity.Aircraft {
	t.Helper()
	rec, err := e.store.Get(context.Background(), entity.CollectionAircrafts, e.aircraftID)
	require.NoError(t, err)
	return rec.(*entity.Aircraft)
}

func (e *testEngine) book(t *testing.T, seats []string, class entity.SeatClass, names ...string) *entity.Booking {
	t.Helper()
	ctx := context.Background()
	b, err := e.processor.CreateBooking(ctx, e.flightNumber)
	require.NoError(t, err)

	passengers := make([]entity.Passenger, len(names))
	for i, n := range names {
		passengers[i] = entity.Passenger{FirstName: n, LastName: "Tester"}
	}
	b, err = e.processor.AddPassenger(ctx, b.ID, entity.BookingUpdate{
		Passengers:    passengers,
		Seats:         seats,
		SelectedClass: class,
	})
	require.NoError(t, err)
	return b
}

func TestAddPassengerOccupiesSeatsAndPricesBooking(t *testing.T) {
	e := newTestEngine(t)

	b := e.book(t, []string{"4A", "4B"}, entity.ClassEconomy, "Ann", "Ben")

	assert.Equal(t, entity.BookingActive, b.Status)
	assert.Equal(t, []string{"4A", "4B"}, b.Seats)
	assert.Equal(t, 2, b.PassengerQuantity)
	assert.Equal(t, entity.ClassEconomy, b.SelectedClass)
	assert.Equal(t, 240.0, b.Cost)

	ac := e.aircraft(t)
	assert.True(t, ac.FindSeat("4A").Occupied)
	assert.True(t, ac.FindSeat("4B").Occupied)
	assert.False(t, ac.FindSeat("5A").Occupied)
}

func TestAddPassengerRejectsOccupiedSeat(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.book(t, []string{"4A"}, entity.ClassEconomy, "Ann")

	other, err := e.processor.CreateBooking(ctx, e.flightNumber)
	require.NoError(t, err)
	_, err = e.processor.AddPassenger(ctx, other.ID, entity.BookingUpdate{
		Passengers:    []entity.Passenger{{FirstName: "Ben", LastName: "Tester"}},
		Seats:         []string{"4A"},
		SelectedClass: entity.ClassEconomy,
	})

	var scErr *SeatConflictError
	require.ErrorAs(t, err, &scErr)
	assert.Equal(t, []string{"4A"}, scErr.Seats)
	assert.Equal(t, e.flightNumber, scErr.FlightNumber)
}

// Two concurrent bookings race for the same seat: exactly one wins, the
// other gets a seat conflict, and the seat is occupied exactly once.
func TestConcurrentAddPassengerNoOversell(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	b1, err := e.processor.CreateBooking(ctx, e.flightNumber)
	require.NoError(t, err)
	b2, err := e.processor.CreateBooking(ctx, e.flightNumber)
	require.NoError(t, err)

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for _, id := range []int64{b1.ID, b2.ID} {
		wg.Add(1)
		go func(bookingID int64) {
			defer wg.Done()
			_, err := e.processor.AddPassenger(ctx, bookingID, entity.BookingUpdate{
				Passengers:    []entity.Passenger{{FirstName: "Racer", LastName: "Tester"}},
				Seats:         []string{"4A"},
				SelectedClass: entity.ClassEconomy,
			})
			results <- err
		}(id)
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		var scErr *SeatConflictError
		require.ErrorAs(t, err, &scErr, "unexpected error: %v", err)
		conflicts++
	}
	assert.Equal(t, 1, wins, "exactly one booking must win the seat")
	assert.Equal(t, 1, conflicts, "the loser must see a seat conflict")

	holders := 0
	recs, err := e.store.List(ctx, entity.CollectionBookings)
	require.NoError(t, err)
	for _, rec := range recs {
		b := rec.(*entity.Booking)
		if b.Status == entity.BookingActive && b.HasSeat("4A") {
			holders++
		}
	}
	assert.Equal(t, 1, holders, "seat 4A held by exactly one active booking")
	assert.True(t, e.aircraft(t).FindSeat("4A").Occupied)
}

func TestCancelBookingReleasesSeats(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	b := e.book(t, []string{"2A", "2B"}, entity.ClassBusiness, "Ann", "Ben")

	cancelled, err := e.processor.CancelBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingCancelled, cancelled.Status)

	ac := e.aircraft(t)
	assert.False(t, ac.FindSeat("2A").Occupied)
	assert.False(t, ac.FindSeat("2B").Occupied)

	// The released seats are immediately bookable again.
	replacement := e.book(t, []string{"2A", "2B"}, entity.ClassBusiness, "Cal", "Dot")
	assert.Equal(t, []string{"2A", "2B"}, replacement.Seats)

	// A second cancel is bad input, not a race.
	_, err = e.processor.CancelBooking(ctx, b.ID)
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestChangeSeatsMovesOccupancy(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	b := e.book(t, []string{"4A", "4B"}, entity.ClassEconomy, "Ann", "Ben")

	updated, err := e.processor.ChangeSeats(ctx, b.ID, entity.BookingUpdate{
		Seats: []string{"5A", "5B"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"5A", "5B"}, updated.Seats)

	ac := e.aircraft(t)
	assert.False(t, ac.FindSeat("4A").Occupied)
	assert.False(t, ac.FindSeat("4B").Occupied)
	assert.True(t, ac.FindSeat("5A").Occupied)
	assert.True(t, ac.FindSeat("5B").Occupied)
}

func TestChangeSeatsAllowsSwappingOwnSeats(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	b := e.book(t, []string{"4A", "4B"}, entity.ClassEconomy, "Ann", "Ben")

	updated, err := e.processor.ChangeSeats(ctx, b.ID, entity.BookingUpdate{
		Seats: []string{"4B", "4A"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"4B", "4A"}, updated.Seats)
}

func TestChangeSeatsConflictsWithOtherBooking(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	e.book(t, []string{"5A"}, entity.ClassEconomy, "Ann")
	b := e.book(t, []string{"4A"}, entity.ClassEconomy, "Ben")

	_, err := e.processor.ChangeSeats(ctx, b.ID, entity.BookingUpdate{
		Seats: []string{"5A"},
	})
	var scErr *SeatConflictError
	require.ErrorAs(t, err, &scErr)
	assert.Equal(t, []string{"5A"}, scErr.Seats)
}

func TestChangeClassReseatsAndReprices(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	b := e.book(t, []string{"4A", "4B"}, entity.ClassEconomy, "Ann", "Ben")

	updated, err := e.processor.ChangeClass(ctx, b.ID, entity.BookingUpdate{
		SelectedClass: entity.ClassBusiness,
		Seats:         []string{"2A", "2B"},
	})
	require.NoError(t, err)
	assert.Equal(t, entity.ClassBusiness, updated.SelectedClass)
	assert.Equal(t, []string{"2A", "2B"}, updated.Seats)
	assert.Equal(t, 600.0, updated.Cost)

	ac := e.aircraft(t)
	assert.False(t, ac.FindSeat("4A").Occupied)
	assert.False(t, ac.FindSeat("4B").Occupied)
	assert.True(t, ac.FindSeat("2A").Occupied)
	assert.True(t, ac.FindSeat("2B").Occupied)
}

func TestChangeClassRejectsWrongClassSeats(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	b := e.book(t, []string{"4A"}, entity.ClassEconomy, "Ann")

	_, err := e.processor.ChangeClass(ctx, b.ID, entity.BookingUpdate{
		SelectedClass: entity.ClassBusiness,
		Seats:         []string{"4B"}, // economy seat, business requested
	})
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestChangePassengerKeepsSeats(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	b := e.book(t, []string{"4A", "4B"}, entity.ClassEconomy, "Ann", "Ben")

	updated, err := e.processor.ChangePassenger(ctx, b.ID, entity.BookingUpdate{
		Passengers: []entity.Passenger{
			{FirstName: "Cal", LastName: "Tester"},
			{FirstName: "Dot", LastName: "Tester"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Cal", updated.Passengers[0].FirstName)
	assert.Equal(t, []string{"4A", "4B"}, updated.Seats)

	_, err = e.processor.ChangePassenger(ctx, b.ID, entity.BookingUpdate{
		Passengers: []entity.Passenger{{FirstName: "Solo", LastName: "Tester"}},
	})
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr, "passenger count must not change")
}

func TestDeletePassengerReleasesTheirSeat(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	b := e.book(t, []string{"4A", "4B"}, entity.ClassEconomy, "Ann", "Ben")

	updated, err := e.processor.DeletePassenger(ctx, b.ID, entity.BookingUpdate{
		Passengers: []entity.Passenger{{FirstName: "Ann", LastName: "Tester"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.PassengerQuantity)
	assert.Equal(t, []string{"4B"}, updated.Seats)
	assert.Equal(t, 120.0, updated.Cost)

	ac := e.aircraft(t)
	assert.False(t, ac.FindSeat("4A").Occupied)
	assert.True(t, ac.FindSeat("4B").Occupied)

	_, err = e.processor.DeletePassenger(ctx, b.ID, entity.BookingUpdate{
		Passengers: []entity.Passenger{{FirstName: "Nobody", LastName: "Tester"}},
	})
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestApplyRejectsUnknownKind(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	b, err := e.processor.CreateBooking(ctx, e.flightNumber)
	require.NoError(t, err)

	before := e.feed.Seq()
	_, err = e.processor.Apply(ctx, b.ID, "upgradeToSuite", entity.BookingUpdate{})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, before, e.feed.Seq(), "rejected transition must not touch records")
}

func TestCreateBookingUnknownFlight(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.processor.CreateBooking(context.Background(), 9999)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestMutationsOnInactiveBooking(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	b := e.book(t, []string{"4A"}, entity.ClassEconomy, "Ann")
	_, err := e.processor.CancelBooking(ctx, b.ID)
	require.NoError(t, err)

	var vErr *ValidationError
	for _, kind := range []entity.TransitionKind{
		entity.TransitionAddPassenger,
		entity.TransitionChangePassenger,
		entity.TransitionChangeSeats,
		entity.TransitionDeletePassenger,
	} {
		_, err := e.processor.Apply(ctx, b.ID, kind, entity.BookingUpdate{
			Passengers: []entity.Passenger{{FirstName: "Ann", LastName: "Tester"}},
			Seats:      []string{"4A"},
		})
		assert.ErrorAs(t, err, &vErr, "kind %s on cancelled booking", kind)
	}
}

// The occupancy re-check on the aircraft write must identify the flight in
// its conflict, the same way the validation pass does.
func TestSwapSeatsConflictNamesFlight(t *testing.T) {
	e := newTestEngine(t)

	ac := e.aircraft(t)
	seat := ac.FindSeat("4A")
	require.NotNil(t, seat)
	seat.Occupied = true

	_, err := e.processor.swapSeats(context.Background(), e.flightNumber, ac, nil, []string{"4A"})
	var conflict *SeatConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, e.flightNumber, conflict.FlightNumber)
	assert.Equal(t, []string{"4A"}, conflict.Seats)
}
