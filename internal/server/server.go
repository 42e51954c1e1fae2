package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"templeops/internal/clock"
	"templeops/internal/config"
	"templeops/internal/handler"
	"templeops/internal/middleware"
	"templeops/internal/model"
	"templeops/internal/repository"
	"templeops/internal/repository/memory"
	"templeops/internal/scheduler"
	"templeops/internal/service"
)

// ActorDirectory is the actor store as the server needs it: lookups for
// the middleware plus Create for the CLI.
type ActorDirectory interface {
	Create(ctx context.Context, actor *model.Actor) error
	GetByID(ctx context.Context, id string) (*model.Actor, error)
}

// Stores bundles one implementation of every store.
type Stores struct {
	Tasks     service.TaskStore
	Events    service.EventStore
	Bookings  service.BookingStore
	Templates service.TemplateStore
	Audit     service.AuditStore
	Actors    ActorDirectory
}

// OpenStores connects the driver named by cfg.StoreDriver. The returned
// *gorm.DB is nil for the memory driver.
func OpenStores(cfg *config.Config) (*Stores, *gorm.DB, error) {
	if cfg.StoreDriver == config.DriverMemory {
		log.Println("⚠️  Using in-memory stores, data is lost on exit")
		m := memory.New()
		return &Stores{
			Tasks:     m.Tasks,
			Events:    m.Events,
			Bookings:  m.Bookings,
			Templates: m.Templates,
			Audit:     m.Audit,
			Actors:    m.Actors,
		}, nil, nil
	}

	db, err := repository.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.StoreDriver == config.DriverPostgres {
		if err := repository.Migrate(db); err != nil {
			return nil, nil, fmt.Errorf("❌ failed to migrate: %w", err)
		}
	}
	return &Stores{
		Tasks:     repository.NewTaskRepository(db),
		Events:    repository.NewEventRepository(db),
		Bookings:  repository.NewBookingRepository(db),
		Templates: repository.NewTemplateRepository(db),
		Audit:     repository.NewAuditRepository(db),
		Actors:    repository.NewActorRepository(db),
	}, db, nil
}

// Core holds the engine components built on a set of stores.
type Core struct {
	Tasks     *service.TaskManager
	Expander  *service.Expander
	Events    *service.EventManager
	Ingestor  *service.Ingestor
	Scheduler *scheduler.Scheduler
	Clock     clock.Clock
	Location  *time.Location
}

func NewCore(cfg *config.Config, stores *Stores, clk clock.Clock) (*Core, error) {
	if clk == nil {
		clk = clock.Real{}
	}
	defaults, err := config.LoadTriggerDefaults(cfg.TriggerDefaultsPath)
	if err != nil {
		return nil, err
	}

	loc := cfg.Location()
	opts := []service.Option{
		service.WithClock(clk),
		service.WithLocation(loc),
		service.WithStoreTimeout(cfg.StoreTimeout),
		service.WithWorkers(cfg.ExpanderWorkers),
	}
	tasks := service.NewTaskManager(stores.Tasks, stores.Audit, stores.Actors, opts...)
	expander := service.NewExpander(stores.Templates, tasks, stores.Audit, stores.Actors, opts...)
	events := service.NewEventManager(stores.Events, stores.Bookings, stores.Tasks, stores.Audit, opts...)

	return &Core{
		Tasks:     tasks,
		Expander:  expander,
		Events:    events,
		Ingestor:  service.NewIngestor(service.NewDefaultRegistry(defaults), tasks),
		Scheduler: scheduler.New(events, expander, clk, cfg.SchedulerInterval),
		Clock:     clk,
		Location:  loc,
	}, nil
}

// NewRouter mounts every route behind the JWT and actor middleware.
func NewRouter(cfg *config.Config, core *Core, actors middleware.ActorLookup) *gin.Engine {
	r := gin.Default()
	r.Use(middleware.RequestID())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	triggerHandler := handler.NewTriggerHandler(core.Ingestor)
	taskHandler := handler.NewTaskHandler(core.Tasks, core.Clock)
	templateHandler := handler.NewTemplateHandler(core.Expander)
	eventHandler := handler.NewEventHandler(core.Events, core.Clock, core.Location)
	actorHandler := handler.NewActorHandler()

	// Protected routes - require authentication
	authorized := r.Group("/")
	authorized.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret), middleware.LoadActor(actors))
	{
		authorized.GET("/actors/me", actorHandler.Me)

		// Trigger routes
		authorized.POST("/triggers/:source", triggerHandler.Ingest)

		// Task routes
		authorized.POST("/tasks", taskHandler.Create)
		authorized.GET("/tasks", taskHandler.List)
		authorized.GET("/tasks/overdue", taskHandler.Overdue)
		authorized.GET("/tasks/:id", taskHandler.GetByID)
		authorized.GET("/tasks/:id/history", taskHandler.History)
		authorized.POST("/tasks/:id/transition", taskHandler.Transition)
		authorized.POST("/tasks/:id/reschedule", taskHandler.Reschedule)

		// Template routes
		authorized.POST("/templates", templateHandler.Create)
		authorized.GET("/templates", templateHandler.List)
		authorized.POST("/templates/:id/activate", templateHandler.Activate)
		authorized.POST("/templates/:id/deactivate", templateHandler.Deactivate)

		// Event routes
		authorized.POST("/events", eventHandler.Create)
		authorized.GET("/events", eventHandler.List)
		authorized.GET("/events/:id", eventHandler.GetByID)
		authorized.PUT("/events/:id", eventHandler.Update)
		authorized.GET("/events/:id/status", eventHandler.Status)
		authorized.POST("/events/:id/refresh", eventHandler.Refresh)
		authorized.POST("/events/:id/schedule", eventHandler.Schedule)
		authorized.POST("/events/:id/publish", eventHandler.Publish)
		authorized.POST("/events/:id/cancel", eventHandler.Cancel)
		authorized.POST("/events/:id/archive", eventHandler.Archive)
		authorized.POST("/events/:id/bookings", eventHandler.AddBooking)
		authorized.GET("/events/:id/bookings", eventHandler.ListBookings)
		authorized.POST("/events/:id/bookings/:booking_id/resolve", eventHandler.ResolveBooking)
	}
	return r
}

type Server struct {
	Engine *gin.Engine
	DB     *gorm.DB
	Config *config.Config
	Core   *Core
	Stores *Stores
}

func Init(cfg *config.Config) (*Server, error) {
	stores, db, err := OpenStores(cfg)
	if err != nil {
		return nil, err
	}
	core, err := NewCore(cfg, stores, clock.Real{})
	if err != nil {
		return nil, fmt.Errorf("❌ failed to build engine: %w", err)
	}

	return &Server{
		Engine: NewRouter(cfg, core, stores.Actors),
		DB:     db,
		Config: cfg,
		Core:   core,
		Stores: stores,
	}, nil
}

// Run serves HTTP and drives the scheduler until SIGINT or SIGTERM.
func (s *Server) Run() {
	srv := &http.Server{
		Addr:    ":" + s.Config.ServerPort,
		Handler: s.Engine,
	}

	ctx, stopScheduler := context.WithCancel(context.Background())
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		s.Core.Scheduler.Run(ctx)
	}()

	go func() {
		log.Printf("🚀 Server running on port %s\n", s.Config.ServerPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Failed to listen: %s\n", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Shutting down server...")

	stopScheduler()
	<-schedulerDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %s", err)
	}
	s.Close()

	log.Println("✅ Server exited properly")
}

// Close releases the database connection, if any.
func (s *Server) Close() {
	CloseDB(s.DB)
}

// CloseDB closes db. A nil db is a no-op.
func CloseDB(db *gorm.DB) {
	if db == nil {
		return
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
