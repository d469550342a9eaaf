package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"nobconsult/internal/config"
	"nobconsult/internal/domain"
	"nobconsult/internal/events"
	"nobconsult/internal/lock"
	"nobconsult/internal/metrics"
	"nobconsult/internal/middleware"
	"nobconsult/internal/modules/application"
	"nobconsult/internal/modules/auth"
	"nobconsult/internal/modules/catalog"
	"nobconsult/internal/pkg/jwt"
	"nobconsult/internal/realtime"
	"nobconsult/internal/reconcile"
	"nobconsult/internal/repository"
	"nobconsult/internal/storage"
)

// server holds everything main runs: the router plus the optional
// background workers.
type server struct {
	router  *gin.Engine
	hub     *realtime.Hub
	relay   *realtime.RedisRelay
	job     *reconcile.Job
	closers []func() error
}

func (s *server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

func newServer(cfg *config.Config, db *gorm.DB, log *zap.Logger) *server {
	s := &server{}

	userRepo := repository.NewUserRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	appRepo := repository.NewApplicationRepository(db)
	blobs := storage.NewLocalStore(storage.NewRepository(db), cfg.UploadsDir, storage.StaticURLBase)

	j := jwt.New(cfg.JWTSecret, cfg.JWTAccessTTL)

	s.hub = realtime.NewHub(func(view *domain.Application, role domain.UserRole) any {
		return application.NewApplicationResponse(view, role)
	}, log.Named("realtime"))

	var (
		locker     lock.Locker = lock.NewMemoryLocker()
		publishers events.Fanout
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		s.closers = append(s.closers, rdb.Close)
		locker = lock.NewRedisLocker(rdb, cfg.LockTTL)
		s.relay = realtime.NewRedisRelay(rdb, realtime.DefaultChannel, log.Named("relay"))
		// the relay echoes events back to this replica's hub
		publishers = append(publishers, s.relay)
		log.Info("redis enabled: distributed locks and realtime relay", zap.String("addr", cfg.RedisAddr))
	} else {
		publishers = append(publishers, s.hub)
	}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		s.closers = append(s.closers, kp.Close)
		publishers = append(publishers, kp)
		log.Info("kafka event stream enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	appCfg := application.DefaultConfig()
	appCfg.RequireRejectionComment = cfg.RequireRejectionComment
	appCfg.SnapshotCacheSize = cfg.SnapshotCacheSize
	appCfg.ConflictRetries = uint(cfg.ConflictRetries)
	appService := application.NewService(application.Deps{
		Applications: appRepo,
		Catalog:      catalogRepo,
		Users:        userRepo,
		Blobs:        blobs,
		Locker:       locker,
		Publisher:    publishers,
		Logger:       log.Named("application"),
	}, appCfg)

	if cfg.ReconcileEnabled {
		s.job = reconcile.NewJob(blobs, appRepo, reconcile.Config{Grace: cfg.ReconcileGrace}, log.Named("reconcile"))
	}

	authHandler := auth.NewHandler(auth.NewService(userRepo, j, log.Named("auth")))
	catalogHandler := catalog.NewHandler(catalog.NewService(catalogRepo, log.Named("catalog")))
	appHandler := application.NewHandler(appService)
	wsHandler := realtime.NewHandler(s.hub, appService, cfg.AllowedOrigins, log.Named("realtime"))

	if cfg.IsProdLike() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.ErrorLogger(log))
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.Static(storage.StaticURLBase, cfg.UploadsDir)

	v1 := r.Group("/api/v1")
	// websocket connections outlive any request deadline
	v1.GET("/ws", middleware.JWTAuth(j, userRepo), wsHandler.ServeWS)

	api := v1.Group("")
	api.Use(middleware.Timeout(cfg.RequestTimeout))
	authHandler.RegisterPublicRoutes(api)
	catalogHandler.RegisterPublicRoutes(api)

	protected := api.Group("")
	protected.Use(middleware.JWTAuth(j, userRepo))
	authHandler.RegisterProtectedRoutes(protected)
	catalogHandler.RegisterProtectedRoutes(protected)
	appHandler.RegisterRoutes(protected)

	s.router = r
	return s
}
