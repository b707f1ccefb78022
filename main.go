// api/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"vsltrack/api/config"
	"vsltrack/api/database"
	"vsltrack/api/funnel"
	"vsltrack/api/geo"
	"vsltrack/api/handlers"
	"vsltrack/api/middleware"
	"vsltrack/api/pixel"
	"vsltrack/api/store"
	"vsltrack/api/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.WithError(err).Debug("no .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
		log.SetFormatter(&log.JSONFormatter{})
	}

	// Postgres always: dashboard_users lives there, and it is the default
	// event backend.
	dbClient, err := database.NewPostgresDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to initialize PostgreSQL: %v", err)
	}
	defer dbClient.Close()

	var eventStore store.EventStore
	switch cfg.EventBackend {
	case "clickhouse":
		chClient, err := database.NewClickHouseDB(database.ClickHouseConfig{
			Host:     cfg.ClickHouseHost,
			Port:     cfg.ClickHousePort,
			Database: cfg.ClickHouseDB,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
		})
		if err != nil {
			log.Fatalf("failed to initialize ClickHouse: %v", err)
		}
		defer chClient.Close()
		eventStore = store.NewClickHouseEventStore(chClient)
	default:
		eventStore = store.NewPostgresEventStore(dbClient.DB)
	}

	userStore := store.NewUserStore(dbClient.DB)
	jwtMgr := utils.NewJWTManager(cfg.JWTSecret)
	resolver := geo.NewResolver(cfg.GeoProviders, log.StandardLogger())

	var sinks []pixel.Sink
	for name, endpoint := range cfg.PixelSinks {
		sinks = append(sinks, pixel.NewHTTPSink(name, endpoint))
	}
	dispatcher := pixel.NewDispatcher(sinks, pixel.NewTrackingState(), log.StandardLogger())

	engine := funnel.NewEngine(eventStore, funnel.EngineConfig{
		PollInterval:         cfg.PollInterval,
		LiveWindow:           cfg.LiveWindow,
		ExcludedCountryCodes: cfg.ExcludedCountryCodes,
		ExcludedCountryNames: cfg.ExcludedCountryNames,
		Location:             cfg.Location(),
	}, log.StandardLogger())

	engineCtx, cancelEngine := context.WithCancel(context.Background())
	defer cancelEngine()
	engine.Start(engineCtx)

	authHandlers := handlers.NewAuthHandlers(userStore, jwtMgr)
	trackHandlers := handlers.NewTrackHandlers(eventStore, resolver, dispatcher)
	dashboardHandlers := handlers.NewDashboardHandlers(engine)

	r := gin.Default()
	r.Use(middleware.CORSMiddleware(cfg.FrontendOrigin))

	api := r.Group("/api")
	{
		api.POST("/login", authHandlers.Login)
		api.POST("/logout", authHandlers.Logout)

		protected := api.Group("/")
		protected.Use(middleware.AuthRequired(jwtMgr, cfg.APIKey))
		{
			// Ingest (funnel pages authenticate with the API key).
			protected.POST("/signup", authHandlers.Signup)
			protected.POST("/track", trackHandlers.TrackEvent)
			protected.POST("/track/ping", trackHandlers.Heartbeat)
			protected.DELETE("/events", trackHandlers.ClearEvents)

			stats := protected.Group("/stats")
			{
				stats.GET("/summary", dashboardHandlers.GetSummary)
				stats.GET("/live", dashboardHandlers.GetLiveSessions)
				stats.GET("/sessions", dashboardHandlers.GetSessions)
				stats.POST("/refresh", dashboardHandlers.Refresh)
			}
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Infof("API server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down...")

	engine.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Info("server exiting")
}
