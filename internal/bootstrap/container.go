package bootstrap

import (
	"context"
	"log"
	"runtime"

	"medviewer-be/internal/config"
	"medviewer-be/internal/controller"
	"medviewer-be/internal/handler"
	"medviewer-be/internal/pkg/logger"
	"medviewer-be/internal/repository/implementation"
	"medviewer-be/internal/repository/memory"
	"medviewer-be/internal/service"
	"medviewer-be/internal/websocket"
	"medviewer-be/pkg/dataset"
	"medviewer-be/pkg/events"
	"medviewer-be/pkg/fetch"
	"medviewer-be/pkg/render"

	pktNats "medviewer-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ViewerController controller.IViewerController

	// Background Services (Exposed for main.go to run)
	LoaderService   service.ILoaderService
	ActivityService service.IActivityService

	// WebSockets
	ViewerWsHandler *handler.ViewerWsHandler
	WebSocketHub    *websocket.Hub

	Logger   logger.ILogger
	Sessions *memory.SessionRepository

	natsPub *pktNats.Publisher
	natsSub *pktNats.Subscriber
	pubSub  *gochannel.GoChannel
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())

	presets := render.DefaultPresets()
	if cfg.Viewer.PresetsPath != "" {
		loaded, err := render.LoadPresets(cfg.Viewer.PresetsPath)
		if err != nil {
			log.Printf("[WARN] Failed to load presets from %s: %v. Using defaults", cfg.Viewer.PresetsPath, err)
		} else {
			presets = loaded
		}
	}

	cacheMode, err := fetch.ParseCacheMode(cfg.Data.CacheMode)
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}

	// 2. Load queue
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. Infrastructure
	// NATS
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger(cfg.App.WsLogFilePath)
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run()

	// 4. Services
	sessionRepo := memory.NewSessionRepository(cfg.Viewer.SessionTTL)

	loaderService := service.NewLoaderService(
		pubSub,
		cfg.Viewer.LoadTopic,
		sessionRepo,
		dataset.NewFileDecoder(),
		runtime.NumCPU(),
		sysLogger,
	)

	// A nil *Publisher must not end up inside the interface.
	var eventPublisher events.Publisher
	if natsPub != nil {
		eventPublisher = natsPub
	}
	eventBus := service.NewEventBus(wsHub, eventPublisher)

	viewerService := service.NewViewerService(
		sessionRepo,
		loaderService,
		eventBus,
		wsHub, // Hub implements session.Notifier
		service.ViewerOptions{
			Debounce: cfg.Viewer.Debounce,
			Presets:  presets,
			Fetch: fetch.Options{
				APIURL:  cfg.Data.APIURL,
				TempDir: cfg.Data.TempDir,
				Mode:    cacheMode,
				Timeout: cfg.Data.Timeout,
			},
		},
		sysLogger,
	)
	wsHub.SetHandler(viewerService)

	// Activity log
	activityRepo := implementation.NewActivityRepository(db)
	activityService := service.NewActivityService(activityRepo, natsSub, sysLogger)

	// 5. Controllers
	return &Container{
		ViewerController: controller.NewViewerController(viewerService, activityService),
		ViewerWsHandler:  handler.NewViewerWsHandler(viewerService, wsHub, wsLogger),
		WebSocketHub:     wsHub,

		LoaderService:   loaderService,
		ActivityService: activityService,

		Logger:   sysLogger,
		Sessions: sessionRepo,

		natsPub: natsPub,
		natsSub: natsSub,
		pubSub:  pubSub,
	}
}

// Close stops the sessions first so no worker result or event outlives them.
func (c *Container) Close() {
	c.Sessions.CloseAll()
	c.WebSocketHub.Stop()
	if err := c.pubSub.Close(); err != nil {
		log.Printf("[WARN] Failed to close load queue: %v", err)
	}
	if c.natsSub != nil {
		c.natsSub.Close()
	}
	if c.natsPub != nil {
		c.natsPub.Close()
	}
	_ = c.Logger.Sync()
}
