package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"bookingsync-service/internal/domain/entity"
	domainrepo "bookingsync-service/internal/domain/repository"
	"bookingsync-service/internal/infrastructure/config"
	"bookingsync-service/internal/infrastructure/persistence"
	"bookingsync-service/internal/interface/handler"
	storerepo "bookingsync-service/internal/interface/repository"
	"bookingsync-service/internal/interface/ws"
	"bookingsync-service/internal/usecase"
	"bookingsync-service/pkg/logger"
	"bookingsync-service/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	log := logger.NewLogger()
	log.Info("Starting Booking Sync Service")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics("bookingsync")
	feed := usecase.NewChangeFeed(log)

	store, err := newStore(ctx, cfg, feed, log)
	if err != nil {
		log.Fatal("Failed to set up record store", "error", err)
	}

	processor := usecase.NewProcessor(store, log, m, cfg.CASMaxRetries)

	events, unsubscribe := feed.Subscribe(cfg.WSSendBuffer)
	defer unsubscribe()
	hub := ws.NewHub(events, log, m)
	go hub.Run(ctx)

	if cfg.SeedDemoData {
		if err := seedDemoData(ctx, store); err != nil {
			log.Error("Failed to seed demo data", "error", err)
		} else {
			log.Info("Seeded demo data")
		}
	}

	h := handler.NewHandler(store, processor, log)
	router := handler.NewRouter(h, ws.ServeWS(hub, log, cfg.WSSendBuffer))
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		log.Info("HTTP server listening", "port", cfg.Port, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	cancel()
	if err := server.Shutdown(context.Background()); err != nil {
		log.Error("Graceful shutdown failed", "error", err)
	}
	log.Info("Server stopped")
}

// newStore picks the record-store backend from configuration. Every backend
// publishes committed writes to the same change feed.
func newStore(ctx context.Context, cfg *config.Config, feed domainrepo.ChangeAppender, log logger.Logger) (domainrepo.RecordStore, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		log.Info("Connecting to MongoDB")
		client, err := persistence.NewMongoClient(ctx, cfg.MongoURI, cfg.MongoUser, cfg.MongoPassword)
		if err != nil {
			return nil, err
		}
		db := persistence.GetDatabase(client, cfg.MongoDB)
		return storerepo.NewMongoStore(db, feed), nil

	case config.DriverPostgres:
		log.Info("Connecting to PostgreSQL")
		db, err := gorm.Open(postgres.Open(cfg.PostgresURI), &gorm.Config{TranslateError: true})
		if err != nil {
			return nil, err
		}
		return storerepo.NewGormStore(db, feed)

	default:
		log.Info("Using in-process record store")
		return storerepo.NewMemoryStore(feed), nil
	}
}

// seedDemoData populates one aircraft and a small schedule so a fresh
// instance is immediately usable, mirroring the prepopulated database the
// service historically shipped with.
func seedDemoData(ctx context.Context, store domainrepo.RecordStore) error {
	cities := []*entity.City{
		{Name: "Amsterdam", AirportCode: "AMS"},
		{Name: "Jakarta", AirportCode: "CGK"},
	}
	for _, c := range cities {
		if _, err := store.Create(ctx, entity.CollectionCities, c); err != nil {
			return err
		}
	}

	aircraft := &entity.Aircraft{
		Name: "Boeing 737-800",
		First: []entity.Seat{
			{Label: "1A"}, {Label: "1B"},
		},
		Business: []entity.Seat{
			{Label: "2A"}, {Label: "2B"}, {Label: "3A"}, {Label: "3B"},
		},
		Economy: []entity.Seat{
			{Label: "4A"}, {Label: "4B"}, {Label: "5A"}, {Label: "5B"},
			{Label: "6A"}, {Label: "6B"},
		},
	}
	if _, err := store.Create(ctx, entity.CollectionAircrafts, aircraft); err != nil {
		return err
	}

	flight := &entity.Flight{
		AircraftName:  aircraft.Name,
		DepartureCity: "Amsterdam",
		ArrivalCity:   "Jakarta",
		Status:        entity.FlightScheduled,
	}
	_, err := store.Create(ctx, entity.CollectionFlights, flight)
	return err
}
