package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"bookingsync-service/internal/domain/entity"
	storerepo "bookingsync-service/internal/interface/repository"
	"bookingsync-service/internal/usecase"
	"bookingsync-service/pkg/logger"
	"bookingsync-service/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// One metrics instance per test binary: promauto registers globally.
var testMetrics = metrics.NewMetrics("handler_test")

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	feed := usecase.NewChangeFeed(logger.NewNop())
	store := storerepo.NewMemoryStore(feed)
	processor := usecase.NewProcessor(store, logger.NewNop(), testMetrics, 5)
	h := NewHandler(store, processor, logger.NewNop())
	router := NewRouter(h, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotImplemented)
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func doJSON(t *testing.T, method, url string, body any, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func seedInventory(t *testing.T, srv *httptest.Server) (flightNumber int64) {
	t.Helper()
	var ac entity.Aircraft
	resp := doJSON(t, http.MethodPost, srv.URL+"/aircrafts", map[string]any{
		"name": "A320",
		"economyClass": []map[string]any{
			{"label": "4A"}, {"label": "4B"},
		},
	}, &ac)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var f entity.Flight
	resp = doJSON(t, http.MethodPost, srv.URL+"/flights", map[string]any{
		"aircraftName":  "A320",
		"departureCity": "Oslo",
		"arrivalCity":   "Rome",
	}, &f)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, entity.FlightScheduled, f.Status)
	return f.ID
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	flightNumber := seedInventory(t, srv)

	var b entity.Booking
	resp := doJSON(t, http.MethodPost, srv.URL+"/bookings", map[string]any{
		"flightNumber": flightNumber,
	}, &b)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, http.MethodPatch, srv.URL+"/bookings/"+itoa(b.ID), map[string]any{
		"updateKind":    "addPassenger",
		"passengers":    []map[string]any{{"firstName": "Ann", "lastName": "Tester"}},
		"seats":         []string{"4A"},
		"selectedClass": "economy",
	}, &b)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"4A"}, b.Seats)
	assert.Equal(t, 120.0, b.Cost)

	// Unknown transition kinds are bad input.
	resp = doJSON(t, http.MethodPatch, srv.URL+"/bookings/"+itoa(b.ID), map[string]any{
		"updateKind": "teleport",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// A competing booking for the same seat is a conflict.
	var other entity.Booking
	resp = doJSON(t, http.MethodPost, srv.URL+"/bookings", map[string]any{
		"flightNumber": flightNumber,
	}, &other)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = doJSON(t, http.MethodPatch, srv.URL+"/bookings/"+itoa(other.ID), map[string]any{
		"updateKind":    "addPassenger",
		"passengers":    []map[string]any{{"firstName": "Ben", "lastName": "Tester"}},
		"seats":         []string{"4A"},
		"selectedClass": "economy",
	}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, http.MethodPatch, srv.URL+"/bookings/"+itoa(b.ID), map[string]any{
		"updateKind": "cancelFlight",
	}, &b)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, entity.BookingCancelled, b.Status)
}

func TestFlightStatusCascadeOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	flightNumber := seedInventory(t, srv)

	var b entity.Booking
	doJSON(t, http.MethodPost, srv.URL+"/bookings", map[string]any{"flightNumber": flightNumber}, &b)
	resp := doJSON(t, http.MethodPatch, srv.URL+"/bookings/"+itoa(b.ID), map[string]any{
		"updateKind":    "addPassenger",
		"passengers":    []map[string]any{{"firstName": "Ann", "lastName": "Tester"}},
		"seats":         []string{"4B"},
		"selectedClass": "economy",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result usecase.CascadeResult
	resp = doJSON(t, http.MethodPatch, srv.URL+"/flights/"+itoa(flightNumber)+"/status", map[string]any{
		"status": "Cancelled",
	}, &result)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, entity.FlightCancelled, result.Flight.Status)
	require.Len(t, result.Bookings, 1)
	assert.Equal(t, entity.BookingCancelled, result.Bookings[0].Status)

	resp = doJSON(t, http.MethodPatch, srv.URL+"/flights/"+itoa(flightNumber)+"/status", map[string]any{
		"status": "Boarding",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReferenceDataEndpoints(t *testing.T) {
	srv := newTestServer(t)

	var u entity.User
	resp := doJSON(t, http.MethodPost, srv.URL+"/users", map[string]any{
		"firstName": "Ada", "lastName": "Lovelace", "email": "ada@example.com",
	}, &u)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotZero(t, u.ID)

	var got entity.User
	resp = doJSON(t, http.MethodGet, srv.URL+"/users/"+itoa(u.ID), nil, &got)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Ada", got.FirstName)

	resp = doJSON(t, http.MethodGet, srv.URL+"/users/999", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Duplicate seat labels on an aircraft are rejected.
	resp = doJSON(t, http.MethodPost, srv.URL+"/aircrafts", map[string]any{
		"name":          "B737",
		"firstClass":    []map[string]any{{"label": "1A"}},
		"economyClass":  []map[string]any{{"label": "1A"}},
		"businessClass": []map[string]any{},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
