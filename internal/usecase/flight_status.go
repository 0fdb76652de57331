package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bookingsync-service/internal/domain/entity"
	"bookingsync-service/internal/domain/repository"
)

// CascadeResult lists every record the flight-status cascade wrote. A
// re-applied cascade that finds nothing left to do returns the flight and an
// empty booking list.
type CascadeResult struct {
	Flight   *entity.Flight    `json:"flight"`
	Bookings []*entity.Booking `json:"bookings"`
	Aircraft *entity.Aircraft  `json:"aircraft,omitempty"`
}

// UpdateFlightStatus sets the flight's status and cascades it: every
// non-cancelled booking on the flight is stamped with the same status, and a
// cancellation additionally frees every seat on the flight's aircraft.
//
// Each sub-update skips records already in the target state, which makes the
// whole cascade idempotent: a retry after a PartialCascadeError finishes the
// remainder and a second full run changes nothing.
func (p *Processor) UpdateFlightStatus(ctx context.Context, flightNumber int64, status entity.FlightStatus) (*CascadeResult, error) {
	if !status.Valid() {
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown flight status %q", status)}
	}
	defer p.observe(time.Now())

	result := &CascadeResult{}

	flight, err := p.casFlightStatus(ctx, flightNumber, status)
	if err != nil {
		return nil, err
	}
	result.Flight = flight

	recs, err := p.store.List(ctx, entity.CollectionBookings)
	if err != nil {
		return result, &PartialCascadeError{FlightNumber: flightNumber, Err: err}
	}
	for _, rec := range recs {
		b := rec.(*entity.Booking)
		if b.FlightNumber != flightNumber {
			continue
		}
		updated, wrote, err := p.casBookingStatus(ctx, b.ID, entity.BookingStatus(status))
		if err != nil {
			return result, &PartialCascadeError{FlightNumber: flightNumber, Err: err}
		}
		if wrote {
			result.Bookings = append(result.Bookings, updated)
		}
	}

	if status == entity.FlightCancelled {
		ac, wrote, err := p.releaseAircraft(ctx, flight.AircraftName)
		if err != nil {
			return result, &PartialCascadeError{FlightNumber: flightNumber, Err: err}
		}
		if wrote {
			result.Aircraft = ac
		}
	}

	p.metrics.MutationsApplied.WithLabelValues("flightStatus").Inc()
	return result, nil
}

// casFlightStatus writes the new status onto the flight, skipping the write
// when the status already matches.
func (p *Processor) casFlightStatus(ctx context.Context, flightNumber int64, status entity.FlightStatus) (*entity.Flight, error) {
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		f, err := p.flight(ctx, flightNumber)
		if err != nil {
			return nil, err
		}
		if f.Status == status {
			return f, nil
		}
		f.Status = status
		updated, err := p.store.CompareAndSwap(ctx, entity.CollectionFlights, f)
		if errors.Is(err, repository.ErrConflict) {
			p.metrics.CASConflicts.Inc()
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated.(*entity.Flight), nil
	}
	return nil, fmt.Errorf("set status on flight %d: %w", flightNumber, repository.ErrConflict)
}

// casBookingStatus stamps the cascaded status onto one booking. Cancelled
// bookings are final and never restated; a booking already carrying the
// status is skipped.
func (p *Processor) casBookingStatus(ctx context.Context, bookingID int64, status entity.BookingStatus) (*entity.Booking, bool, error) {
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		b, err := p.booking(ctx, bookingID)
		if err != nil {
			return nil, false, err
		}
		if b.Status == entity.BookingCancelled || b.Status == status {
			return b, false, nil
		}
		b.Status = status
		updated, err := p.store.CompareAndSwap(ctx, entity.CollectionBookings, b)
		if errors.Is(err, repository.ErrConflict) {
			p.metrics.CASConflicts.Inc()
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return updated.(*entity.Booking), true, nil
	}
	return nil, false, fmt.Errorf("cascade status to booking %d: %w", bookingID, repository.ErrConflict)
}

// releaseAircraft frees every seat on the aircraft, writing only when at
// least one seat was occupied.
func (p *Processor) releaseAircraft(ctx context.Context, aircraftName string) (*entity.Aircraft, bool, error) {
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		ac, err := p.aircraftByName(ctx, aircraftName)
		if err != nil {
			return nil, false, err
		}
		if !ac.ReleaseAll() {
			return ac, false, nil
		}
		updated, err := p.store.CompareAndSwap(ctx, entity.CollectionAircrafts, ac)
		if errors.Is(err, repository.ErrConflict) {
			p.metrics.CASConflicts.Inc()
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return updated.(*entity.Aircraft), true, nil
	}
	return nil, false, fmt.Errorf("release seats on aircraft %q: %w", aircraftName, repository.ErrConflict)
}
