package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/chatmemory-backend/internal/data/db"
	chathttp "github.com/yungbote/chatmemory-backend/internal/http"
	"github.com/yungbote/chatmemory-backend/internal/observability"
	"github.com/yungbote/chatmemory-backend/internal/platform/logger"
	"github.com/yungbote/chatmemory-backend/internal/temporalx/temporalworker"
)

// Role selects which long-running parts of the process are started.
type Role string

const (
	RoleServer Role = "server"
	RoleWorker Role = "worker"
	// RoleCLI wires everything but starts nothing in the background.
	RoleCLI Role = "cli"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Clients  Clients
	Services Services
	Metrics  *observability.Metrics

	role         Role
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New(role Role) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	log = log.With("role", string(role))

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	})
	metrics := observability.Init(log)

	store, err := db.Open(cfg.DBDriver, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := db.AutoMigrateAll(store.DB()); err != nil {
		log.Sync()
		return nil, fmt.Errorf("%s automigrate: %w", store.Driver(), err)
	}
	theDB := store.DB()

	reposet := wireRepos(theDB, log, metrics)

	needTemporal := role == RoleWorker || cfg.CompactionDispatch == DispatchTemporal
	clientset, err := wireClients(log, cfg, needTemporal)
	if err != nil {
		log.Sync()
		return nil, err
	}

	serviceset, err := wireServices(log, cfg, reposet, clientset)
	if err != nil {
		clientset.Close()
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(log, theDB, cfg, serviceset, clientset)
	middleware := wireMiddleware(log, cfg)
	router := wireRouter(log, cfg, handlerset, middleware, metrics)

	return &App{
		Log:          log,
		DB:           theDB,
		Router:       router,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clientset,
		Services:     serviceset,
		Metrics:      metrics,
		role:         role,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches background work for the app's role: the compaction queue
// and sweeper for servers, the Temporal poller for workers.
func (a *App) Start(ctx context.Context) error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.Metrics.StartDBCollector(ctx, a.Log, a.DB)
	if a.Clients.Redis != nil {
		a.Metrics.StartRedisCollector(ctx, a.Log, a.Clients.Redis)
	}
	if a.Cfg.MetricsAddr != "" {
		a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
	}

	switch a.role {
	case RoleServer:
		if a.Services.Queue != nil {
			a.Services.Queue.Start(ctx)
		}
		if a.Cfg.SweepEnabled() {
			if err := a.Services.Sweeper.Start(ctx, a.Cfg.CompactionSweepSpec); err != nil {
				return err
			}
		}
	case RoleWorker:
		runner, err := temporalworker.NewRunner(a.Log, a.Cfg.Temporal, a.Clients.Temporal, a.Services.Memory)
		if err != nil {
			return err
		}
		if err := runner.Start(ctx); err != nil {
			return fmt.Errorf("start temporal worker: %w", err)
		}
	}
	return nil
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Router == nil {
		return errors.New("app not initialized")
	}
	srv := chathttp.NewServer(a.Log, ":"+a.Cfg.Port, a.Router, a.Cfg.ShutdownTimeout)
	return srv.Run(ctx)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Services.Queue != nil {
		a.Services.Queue.Wait()
	}
	a.Clients.Close()
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.Cfg.ShutdownTimeout)
		_ = a.otelShutdown(ctx)
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
