package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bookingsync-service/internal/domain/entity"
	"bookingsync-service/internal/domain/repository"
	"bookingsync-service/pkg/logger"
	"bookingsync-service/pkg/metrics"
	"bookingsync-service/pkg/utils"
)

const defaultMaxRetries = 5

// Processor validates and applies booking state transitions against the
// record store with optimistic concurrency: read, validate, compare-and-swap,
// and on a lost race re-read and retry up to a bounded budget.
//
// Seat-occupancy changes touch two records. The write order is fixed
// (aircraft first, booking second) and a booking CAS that loses its race
// triggers a compensating aircraft write before the next attempt, so a
// partial seat state never outlives the call.
type Processor struct {
	store      repository.RecordStore
	log        logger.Logger
	metrics    *metrics.Metrics
	maxRetries int
}

// NewProcessor creates a processor over the given store. maxRetries bounds
// the internal CAS retry budget; values below 1 fall back to the default.
func NewProcessor(store repository.RecordStore, log logger.Logger, m *metrics.Metrics, maxRetries int) *Processor {
	if maxRetries < 1 {
		maxRetries = defaultMaxRetries
	}
	return &Processor{
		store:      store,
		log:        log,
		metrics:    m,
		maxRetries: maxRetries,
	}
}

// Apply dispatches one booking transition by kind. Unknown kinds are
// rejected before any record is read.
func (p *Processor) Apply(ctx context.Context, bookingID int64, kind entity.TransitionKind, upd entity.BookingUpdate) (*entity.Booking, error) {
	switch kind {
	case entity.TransitionCancelFlight:
		return p.CancelBooking(ctx, bookingID)
	case entity.TransitionAddPassenger:
		return p.AddPassenger(ctx, bookingID, upd)
	case entity.TransitionChangePassenger:
		return p.ChangePassenger(ctx, bookingID, upd)
	case entity.TransitionChangeClass:
		return p.ChangeClass(ctx, bookingID, upd)
	case entity.TransitionChangeSeats:
		return p.ChangeSeats(ctx, bookingID, upd)
	case entity.TransitionDeletePassenger:
		return p.DeletePassenger(ctx, bookingID, upd)
	default:
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown update kind %q", kind)}
	}
}

// CreateBooking creates an empty Active booking against an existing flight.
// Passengers and seats arrive through addPassenger transitions.
func (p *Processor) CreateBooking(ctx context.Context, flightNumber int64) (*entity.Booking, error) {
	if _, err := p.flight(ctx, flightNumber); err != nil {
		return nil, err
	}
	rec, err := p.store.Create(ctx, entity.CollectionBookings, &entity.Booking{
		FlightNumber: flightNumber,
		Status:       entity.BookingActive,
	})
	if err != nil {
		return nil, err
	}
	return p.applied("createBooking", rec), nil
}

// CancelBooking cancels an Active booking and releases its seats on the
// flight's aircraft.
func (p *Processor) CancelBooking(ctx context.Context, bookingID int64) (*entity.Booking, error) {
	defer p.observe(time.Now())

	for attempt := 0; attempt < p.maxRetries; attempt++ {
		b, ac, err := p.bookingAndAircraft(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		if b.Status != entity.BookingActive {
			return nil, &ValidationError{Reason: fmt.Sprintf("booking %d is not active", bookingID)}
		}

		released, err := p.swapSeats(ctx, b.FlightNumber, ac, b.Seats, nil)
		if errors.Is(err, repository.ErrConflict) {
			p.metrics.CASConflicts.Inc()
			continue
		}
		if err != nil {
			return nil, err
		}

		b.Status = entity.BookingCancelled
		updated, err := p.store.CompareAndSwap(ctx, entity.CollectionBookings, b)
		if errors.Is(err, repository.ErrConflict) {
			p.metrics.CASConflicts.Inc()
			p.revertSeats(ctx, ac.Name, released, nil)
			continue
		}
		if err != nil {
			p.revertSeats(ctx, ac.Name, released, nil)
			return nil, err
		}
		return p.applied("cancelFlight", updated), nil
	}
	return nil, fmt.Errorf("cancel booking %d: %w", bookingID, repository.ErrConflict)
}

// AddPassenger appends passengers to a booking, occupying their requested
// seats. Each requested seat must be currently unoccupied on the aircraft.
func (p *Processor) AddPassenger(ctx context.Context, bookingID int64, upd entity.BookingUpdate) (*entity.Booking, error) {
	if len(upd.Passengers) == 0 {
		return nil, &ValidationError{Reason: "no passengers given"}
	}
	if len(upd.Seats) != len(upd.Passengers) {
		return nil, &ValidationError{Reason: "one seat per passenger required"}
	}
	defer p.observe(time.Now())

	for attempt := 0; attempt < p.maxRetries; attempt++ {
		b, ac, err := p.bookingAndAircraft(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		if b.Status != entity.BookingActive {
			return nil, &ValidationError{Reason: fmt.Sprintf("booking %d is not active", bookingID)}
		}

		class := b.SelectedClass
		if len(b.Passengers) == 0 {
			class = upd.SelectedClass
			if !class.Valid() {
				return nil, &ValidationError{Reason: fmt.Sprintf("invalid seat class %q", upd.SelectedClass)}
			}
		} else if upd.SelectedClass != "" && upd.SelectedClass != class {
			return nil, &ValidationError{Reason: "class change must go through changeClass"}
		}

		if err := p.checkSeats(b, ac, upd.Seats, class, nil); err != nil {
			return nil, err
		}

		occupied, err := p.swapSeats(ctx, b.FlightNumber, ac, nil, upd.Seats)
		if errors.Is(err, repository.ErrConflict) {
			p.metrics.CASConflicts.Inc()
			continue
		}
		if err != nil {
			return nil, err
		}

		b.Passengers = append(b.Passengers, upd.Passengers...)
		b.Seats = append(b.Seats, upd.Seats...)
		b.SelectedClass = class
		b.PassengerQuantity = len(b.Passengers)
		b.Cost = utils.Fare(class, b.PassengerQuantity)

		updated, err := p.store.CompareAndSwap(ctx, entity.CollectionBookings, b)
		if errors.Is(err, repository.ErrConflict) {
			p.metrics.CASConflicts.Inc()
			p.revertSeats(ctx, ac.Name, nil, occupied)
			continue
		}
		if err != nil {
			p.revertSeats(ctx, ac.Name, nil, occupied)
			return nil, err
		}
		return p.applied("addPassenger", updated), nil
	}
	return nil, fmt.Errorf("add passenger to booking %d: %w", bookingID, repository.ErrConflict)
}

// ChangePassenger replaces the passenger list of an Active booking. The seat
// set is untouched, so only the booking record is written.
func (p *Processor) ChangePassenger(ctx context.Context, bookingID int64, upd entity.BookingUpdate) (*entity.Booking, error) {
	if len(upd.Passengers) == 0 {
		return nil, &ValidationError{Reason: "no passengers given"}
	}
	defer p.observe(time.Now())

	for attempt := 0; attempt < p.maxRetries; attempt++ {
		b, err := p.booking(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		if b.Status != entity.BookingActive {
			return nil, &ValidationError{Reason: fmt.Sprintf("booking %d is not active", bookingID)}
		}
		if len(upd.Passengers) != b.PassengerQuantity {
			return nil, &ValidationError{Reason: fmt.Sprintf(
				"passenger count must stay %d, got %d", b.PassengerQuantity, len(upd.Passengers))}
		}

		b.Passengers = append([]entity.Passenger(nil), upd.Passengers...)
		updated, err := p.store.CompareAndSwap(ctx, entity.CollectionBookings, b)
		if errors.Is(err, repository.ErrConflict) {
			p.metrics.CASConflicts.Inc()
			continue
		}
		if err != nil {
			return nil, err
		}
		return p.applied("changePassenger", updated), nil
	}
	return nil, fmt.Errorf("change passengers on booking %d: %w", bookingID, repository.ErrConflict)
}

// ChangeClass moves the booking to different seats in a (usually different)
// class: the previously held seats are released, the requested target-class
// seats occupied, and the fare recomputed.
func (p *Processor) ChangeClass(ctx context.Context, bookingID int64, upd entity.BookingUpdate) (*entity.Booking, error) {
	if !upd.SelectedClass.Valid() {
		return nil, &ValidationError{Reason: fmt.Sprintf("invalid seat class %q", upd.SelectedClass)}
	}
	return p.reseat(ctx, bookingID, entity.TransitionChangeClass, upd.Seats, upd.SelectedClass)
}

// ChangeSeats moves the booking to different seats within its current class.
// A booking's own seats do not count as conflicts, so swapping two held
// seats with each other is allowed.
func (p *Processor) ChangeSeats(ctx context.Context, bookingID int64, upd entity.BookingUpdate) (*entity.Booking, error) {
	return p.reseat(ctx, bookingID, entity.TransitionChangeSeats, upd.Seats, "")
}

// DeletePassenger removes the named passengers from an Active booking,
// releasing the seats they held and recomputing the fare.
func (p *Processor) DeletePassenger(ctx context.Context, bookingID int64, upd entity.BookingUpdate) (*entity.Booking, error) {
	if len(upd.Passengers) == 0 {
		return nil, &ValidationError{Reason: "no passengers given"}
	}
	defer p.observe(time.Now())

	for attempt := 0; attempt < p.maxRetries; attempt++ {
		b, ac, err := p.bookingAndAircraft(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		if b.Status != entity.BookingActive {
			return nil, &ValidationError{Reason: fmt.Sprintf("booking %d is not active", bookingID)}
		}

		remove, err := passengerIndices(b, upd.Passengers)
		if err != nil {
			return nil, err
		}

		var release []string
		keepPassengers := make([]entity.Passenger, 0, len(b.Passengers)-len(remove))
		keepSeats := make([]string, 0, len(b.Seats)-len(remove))
		for i := range b.Passengers {
			if remove[i] {
				if i < len(b.Seats) {
					release = append(release, b.Seats[i])
				}
				continue
			}
			keepPassengers = append(keepPassengers, b.Passengers[i])
			if i < len(b.Seats) {
				keepSeats = append(keepSeats, b.Seats[i])
			}
		}

		released, err := p.swapSeats(ctx, b.FlightNumber, ac, release, nil)
		if errors.Is(err, repository.ErrConflict) {
			p.metrics.CASConflicts.Inc()
			continue
		}
		if err != nil {
			return nil, err
		}

		b.Passengers = keepPassengers
		b.Seats = keepSeats
		b.PassengerQuantity = len(keepPassengers)
		b.Cost = utils.Fare(b.SelectedClass, b.PassengerQuantity)

		updated, err := p.store.CompareAndSwap(ctx, entity.CollectionBookings, b)
		if errors.Is(err, repository.ErrConflict) {
			p.metrics.CASConflicts.Inc()
			p.revertSeats(ctx, ac.Name, released, nil)
			continue
		}
		if err != nil {
			p.revertSeats(ctx, ac.Name, released, nil)
			return nil, err
		}
		return p.applied("deletePassenger", updated), nil
	}
	return nil, fmt.Errorf("delete passengers on booking %d: %w", bookingID, repository.ErrConflict)
}

// reseat is the shared release-and-occupy path behind changeSeats and
// changeClass. An empty newClass keeps the booking's current class.
func (p *Processor) reseat(ctx context.Context, bookingID int64, kind entity.TransitionKind, seats []string, newClass entity.SeatClass) (*entity.Booking, error) {
	defer p.observe(time.Now())

	for attempt := 0; attempt < p.maxRetries; attempt++ {
		b, ac, err := p.bookingAndAircraft(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		if b.Status != entity.BookingActive {
			return nil, &ValidationError{Reason: fmt.Sprintf("booking %d is not active", bookingID)}
		}

		class := b.SelectedClass
		if newClass != "" {
			class = newClass
		}
		if len(seats) != b.PassengerQuantity {
			return nil, &ValidationError{Reason: fmt.Sprintf(
				"need %d seats for %d passengers, got %d", b.PassengerQuantity, b.PassengerQuantity, len(seats))}
		}
		if err := p.checkSeats(b, ac, seats, class, b.Seats); err != nil {
			return nil, err
		}

		oldSeats := append([]string(nil), b.Seats...)
		if _, err := p.swapSeats(ctx, b.FlightNumber, ac, oldSeats, seats); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				p.metrics.CASConflicts.Inc()
				continue
			}
			return nil, err
		}

		b.Seats = append([]string(nil), seats...)
		b.SelectedClass = class
		b.Cost = utils.Fare(class, b.PassengerQuantity)

		updated, err := p.store.CompareAndSwap(ctx, entity.CollectionBookings, b)
		if errors.Is(err, repository.ErrConflict) {
			p.metrics.CASConflicts.Inc()
			p.revertSeats(ctx, ac.Name, oldSeats, seats)
			continue
		}
		if err != nil {
			p.revertSeats(ctx, ac.Name, oldSeats, seats)
			return nil, err
		}
		return p.applied(string(kind), updated), nil
	}
	return nil, fmt.Errorf("%s on booking %d: %w", kind, bookingID, repository.ErrConflict)
}

// checkSeats validates requested seat labels against the aircraft: labels
// must exist in the given class, must not repeat, and must not be occupied
// by anyone other than the booking itself for seats listed in ownSeats.
func (p *Processor) checkSeats(b *entity.Booking, ac *entity.Aircraft, requested []string, class entity.SeatClass, ownSeats []string) error {
	own := make(map[string]bool, len(ownSeats))
	for _, s := range ownSeats {
		own[s] = true
	}

	seen := make(map[string]bool, len(requested))
	var conflicts []string
	for _, label := range requested {
		if seen[label] {
			return &ValidationError{Reason: fmt.Sprintf("seat %s requested twice", label)}
		}
		seen[label] = true

		seat := ac.FindSeat(label)
		if seat == nil {
			return &ValidationError{Reason: fmt.Sprintf("no seat %s on aircraft %s", label, ac.Name)}
		}
		if ac.ClassOf(label) != class {
			return &ValidationError{Reason: fmt.Sprintf("seat %s is not in %s class", label, class)}
		}
		if seat.Occupied && !own[label] {
			conflicts = append(conflicts, label)
		}
	}
	if len(conflicts) > 0 {
		p.metrics.SeatConflicts.Inc()
		return &SeatConflictError{FlightNumber: b.FlightNumber, Seats: conflicts}
	}
	return nil
}

// swapSeats releases and occupies the given labels on the aircraft and CASes
// it. Occupancy is re-verified against the copy being written: the aircraft
// was read before validation, and this is the write that must not oversell.
// Returns the labels actually released (or occupied, for the occupy-only
// case the caller tracks its own list).
func (p *Processor) swapSeats(ctx context.Context, flightNumber int64, ac *entity.Aircraft, release, occupy []string) ([]string, error) {
	changed := false
	var touched []string
	for _, label := range release {
		seat := ac.FindSeat(label)
		if seat != nil && seat.Occupied {
			seat.Occupied = false
			touched = append(touched, label)
			changed = true
		}
	}
	releasing := make(map[string]bool, len(release))
	for _, label := range release {
		releasing[label] = true
	}
	for _, label := range occupy {
		seat := ac.FindSeat(label)
		if seat == nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("no seat %s on aircraft %s", label, ac.Name)}
		}
		if seat.Occupied && !releasing[label] {
			p.metrics.SeatConflicts.Inc()
			return nil, &SeatConflictError{FlightNumber: flightNumber, Seats: []string{label}}
		}
		seat.Occupied = true
		touched = append(touched, label)
		changed = true
	}
	if !changed {
		return nil, nil
	}
	if _, err := p.store.CompareAndSwap(ctx, entity.CollectionAircrafts, ac); err != nil {
		return nil, err
	}
	return touched, nil
}

// revertSeats compensates an aircraft write whose paired booking CAS failed:
// occupy gets re-occupied, release gets freed. Best effort with its own
// bounded retry; a failure here is logged and the caller's retry loop will
// re-read a consistent aircraft state on the next attempt.
func (p *Processor) revertSeats(ctx context.Context, aircraftName string, occupy, release []string) {
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		ac, err := p.aircraftByName(ctx, aircraftName)
		if err != nil {
			p.log.Error("seat rollback: aircraft read failed", "aircraft", aircraftName, "error", err)
			return
		}
		reclaiming := make(map[string]bool, len(occupy))
		changed := false
		for _, label := range occupy {
			reclaiming[label] = true
			if seat := ac.FindSeat(label); seat != nil && !seat.Occupied {
				seat.Occupied = true
				changed = true
			}
		}
		for _, label := range release {
			// A label in both lists stays occupied: the booking held it
			// before and after the attempted move.
			if reclaiming[label] {
				continue
			}
			if seat := ac.FindSeat(label); seat != nil && seat.Occupied {
				seat.Occupied = false
				changed = true
			}
		}
		if !changed {
			return
		}
		_, err = p.store.CompareAndSwap(ctx, entity.CollectionAircrafts, ac)
		if err == nil {
			return
		}
		if !errors.Is(err, repository.ErrConflict) {
			p.log.Error("seat rollback failed", "aircraft", aircraftName, "error", err)
			return
		}
	}
	p.log.Error("seat rollback exhausted retries", "aircraft", aircraftName)
}

func (p *Processor) booking(ctx context.Context, id int64) (*entity.Booking, error) {
	rec, err := p.store.Get(ctx, entity.CollectionBookings, id)
	if err != nil {
		return nil, err
	}
	return rec.(*entity.Booking), nil
}

func (p *Processor) flight(ctx context.Context, number int64) (*entity.Flight, error) {
	rec, err := p.store.Get(ctx, entity.CollectionFlights, number)
	if err != nil {
		return nil, err
	}
	return rec.(*entity.Flight), nil
}

// aircraftByName resolves an aircraft by its name, which is how flights
// reference their airframe.
func (p *Processor) aircraftByName(ctx context.Context, name string) (*entity.Aircraft, error) {
	recs, err := p.store.List(ctx, entity.CollectionAircrafts)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		ac := rec.(*entity.Aircraft)
		if ac.Name == name {
			return ac, nil
		}
	}
	return nil, repository.ErrNotFound
}

// bookingAndAircraft loads a booking together with its flight's aircraft,
// the two records every seat-touching transition operates on.
func (p *Processor) bookingAndAircraft(ctx context.Context, bookingID int64) (*entity.Booking, *entity.Aircraft, error) {
	b, err := p.booking(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	f, err := p.flight(ctx, b.FlightNumber)
	if err != nil {
		return nil, nil, fmt.Errorf("flight %d for booking %d: %w", b.FlightNumber, bookingID, err)
	}
	ac, err := p.aircraftByName(ctx, f.AircraftName)
	if err != nil {
		return nil, nil, fmt.Errorf("aircraft %q for flight %d: %w", f.AircraftName, b.FlightNumber, err)
	}
	return b, ac, nil
}

// passengerIndices maps the requested passengers onto booking indices by
// name, one booking entry per request.
func passengerIndices(b *entity.Booking, requested []entity.Passenger) (map[int]bool, error) {
	remove := make(map[int]bool)
	for _, want := range requested {
		found := false
		for i, have := range b.Passengers {
			if remove[i] {
				continue
			}
			if have.FirstName == want.FirstName && have.LastName == want.LastName {
				remove[i] = true
				found = true
				break
			}
		}
		if !found {
			return nil, &ValidationError{Reason: fmt.Sprintf(
				"passenger %s %s is not on the booking", want.FirstName, want.LastName)}
		}
	}
	return remove, nil
}

// observe records the mutation latency; the applied counter is only bumped
// for commits, via applied.
func (p *Processor) observe(start time.Time) {
	p.metrics.MutationDuration.Observe(time.Since(start).Seconds())
}

// applied counts one committed mutation and unwraps the stored booking.
func (p *Processor) applied(kind string, rec entity.Record) *entity.Booking {
	p.metrics.MutationsApplied.WithLabelValues(kind).Inc()
	return rec.(*entity.Booking)
}
