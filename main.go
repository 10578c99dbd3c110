package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"greendrake/rentals/internal/api"
	"greendrake/rentals/internal/auth"
	"greendrake/rentals/internal/cache"
	"greendrake/rentals/internal/config"
	"greendrake/rentals/internal/db"
	"greendrake/rentals/internal/events"
	"greendrake/rentals/internal/services"
	"greendrake/rentals/internal/store"
	"greendrake/rentals/internal/store/memstore"
	"greendrake/rentals/internal/store/mongostore"
	"greendrake/rentals/internal/store/pgstore"
	"greendrake/rentals/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks), 'all' (default)")

// openStore connects the configured backend and prepares its schema.
func openStore(cfg *config.Config) (store.Store, api.HealthCheck, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		client, database, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
		if err != nil {
			return nil, nil, err
		}
		st := mongostore.New(client, database, cfg.StoreTimeout)
		if err := st.EnsureIndexes(ctx); err != nil {
			_ = db.DisconnectDB(client)
			return nil, nil, err
		}
		return st, func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) }, nil

	case config.StoreDriverPostgres:
		conn, err := db.ConnectPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		st := pgstore.New(conn, cfg.StoreTimeout)
		if err := st.Migrate(ctx); err != nil {
			_ = db.DisconnectPostgres(conn)
			return nil, nil, err
		}
		return st, conn.PingContext, nil

	case config.StoreDriverMemory:
		log.Println("WARNING: using the in-memory store; data is lost on exit.")
		return memstore.New(), func(context.Context) error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func newPublisher(cfg *config.Config) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		log.Println("KAFKA_BROKERS not set: booking events are not published.")
		return events.NopPublisher{}
	}
	publisher, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaBookingTopic)
	if err != nil {
		log.Fatalf("Failed to create Kafka publisher: %v", err)
	}
	log.Printf("Publishing booking events to topic %s", cfg.KafkaBookingTopic)
	return publisher
}

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	runAPI := cfg.RunMode == "api" || cfg.RunMode == "all"
	runBg := cfg.RunMode == "bg" || cfg.RunMode == "all"
	if !runAPI && !runBg {
		log.Fatalf("Invalid run mode specified in config: %s.", cfg.RunMode)
	}

	st, storeCheck, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.StoreDriver, err)
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			log.Printf("Error closing store: %v", err)
		}
	}()

	healthChecks := map[string]api.HealthCheck{"store": storeCheck}

	// Redis only backs the task queue.
	var redisClient *redis.Client
	if runBg {
		redisClient, err = cache.ConnectRedis(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer func() {
			if err := cache.DisconnectRedis(redisClient); err != nil {
				log.Printf("Error disconnecting from Redis: %v", err)
			}
		}()
		healthChecks["redis"] = func(ctx context.Context) error { return cache.Ping(ctx, redisClient) }
	}

	publisher := newPublisher(cfg)
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Printf("Error closing event publisher: %v", err)
		}
	}()

	sessionService := auth.NewSessionService(cfg.JwtSecret, cfg.JwtIssuer, cfg.JwtTTL)
	userService := services.NewUserService(st, cfg)
	listingService := services.NewListingService(st, cfg)
	bookingService := services.NewBookingService(st, publisher, cfg)

	// WaitGroup for managing goroutines
	var wg sync.WaitGroup

	// Channel to signal shutdown from Service API
	shutdownChan := make(chan struct{}, 1)

	// Start Service API (always runs)
	serviceRouter := api.SetupServiceRouter(cfg, healthChecks, shutdownChan)
	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: serviceRouter,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		fmt.Printf("Service API listening on :%s\n", cfg.ServiceApiPort)
		if err := serviceSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Service API ListenAndServe error: %v", err)
		}
		fmt.Println("Service API server stopped.")
	}()

	var mainApiSrv *http.Server
	var backgroundTaskSrv *asynq.Server
	var scheduler *asynq.Scheduler

	fmt.Printf("Starting application in '%s' mode...\n", cfg.RunMode)

	if runAPI {
		fmt.Println("Starting main API server...")
		mainApiRouter := api.SetupRouter(cfg, api.Services{
			Sessions: sessionService,
			Users:    userService,
			Listings: listingService,
			Bookings: bookingService,
		})
		mainApiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: mainApiRouter,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			fmt.Printf("Main API listening on :%s\n", cfg.ApiPort)
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Main API ListenAndServe error: %v", err)
			}
			fmt.Println("Main API server stopped.")
		}()
	}

	if runBg {
		fmt.Println("Starting background worker...")
		taskProcessor := tasks.NewTaskProcessor(cfg, bookingService)
		var mux *asynq.ServeMux
		backgroundTaskSrv, mux = tasks.SetupServer(redisClient, taskProcessor)
		if err := backgroundTaskSrv.Start(mux); err != nil {
			log.Fatalf("Background task server error: %v", err)
		}

		scheduler, err = tasks.SetupScheduler(redisClient, cfg)
		if err != nil {
			log.Fatalf("Failed to set up task scheduler: %v", err)
		}
		if err := scheduler.Start(); err != nil {
			log.Fatalf("Task scheduler error: %v", err)
		}
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		fmt.Printf("\nReceived signal: %s. Shutting down gracefully...\n", sig)
	case <-shutdownChan:
		fmt.Println("\nShutdown requested via Service API. Shutting down gracefully...")
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	fmt.Println("Shutting down Service API server...")
	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		log.Printf("Service API server shutdown error: %v", err)
	}

	if mainApiSrv != nil {
		fmt.Println("Shutting down Main API server...")
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			log.Printf("Main API server shutdown error: %v", err)
		}
	}

	if scheduler != nil {
		fmt.Println("Shutting down task scheduler...")
		scheduler.Shutdown()
	}
	if backgroundTaskSrv != nil {
		fmt.Println("Shutting down Background Task server...")
		backgroundTaskSrv.Shutdown()
	}

	fmt.Println("Waiting for servers to stop...")
	wg.Wait()

	fmt.Println("Server gracefully stopped")
}
