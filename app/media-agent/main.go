package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yoockh/interviewstream/config"
	"github.com/yoockh/interviewstream/internal/api/handlers"
	"github.com/yoockh/interviewstream/internal/api/middleware"
	"github.com/yoockh/interviewstream/internal/api/routes"
	"github.com/yoockh/interviewstream/internal/cache"
	"github.com/yoockh/interviewstream/internal/channel"
	"github.com/yoockh/interviewstream/internal/logger"
	mongorepo "github.com/yoockh/interviewstream/internal/repositories/mongo"
	pgrepo "github.com/yoockh/interviewstream/internal/repositories/postgres"
	"github.com/yoockh/interviewstream/internal/services"
	"github.com/yoockh/interviewstream/internal/storage"
	"github.com/yoockh/interviewstream/internal/streamer"
	"github.com/yoockh/interviewstream/internal/workers"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("media agent stopped")
	}
}

func run(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	var (
		sinks   []services.AnalysisSink
		insight cache.Cache
		journal mongorepo.JournalRepository
		archive pgrepo.RecordingRepository
		rdb     *redis.Client
	)

	if cfg.RedisAddr != "" {
		var err error
		rdb, err = config.NewRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		insight = cache.NewRedisCache(rdb)
		sinks = append(sinks, services.NewRedisPublisher(rdb))
		log.Info("redis connected")
	}

	if cfg.MongoURI != "" {
		mc, err := config.NewMongo(ctx, cfg.MongoURI)
		if err != nil {
			return err
		}
		defer func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mc.Disconnect(dctx)
		}()
		db := mc.Database(cfg.MongoDB)
		if err := config.EnsureJournalIndexes(ctx, db); err != nil {
			return err
		}
		journal = mongorepo.NewJournalRepo(db, cfg.JournalTTL)
		sinks = append(sinks, services.NewJournalSink(journal))
		log.Info("mongodb connected")
	}

	if cfg.PostgresURI != "" {
		db, err := config.NewPostgres(cfg.PostgresURI)
		if err != nil {
			return err
		}
		if err := pgrepo.Migrate(db); err != nil {
			return err
		}
		archive = pgrepo.NewRecordingRepo(db)
		log.Info("postgres connected")
	}

	httpDest := storage.NewHTTPDestination(cfg.Endpoints.HTTPBaseURL, httpClient)
	httpDest.VideoPath = cfg.Endpoints.UploadVideoPath
	httpDest.AudioPath = cfg.Endpoints.UploadAudioPath
	destinations := []storage.Destination{httpDest}

	if cfg.GCSBucket != "" {
		gcs, err := storage.NewGCSDestination(ctx, cfg.GCSBucket, cfg.GCSPublic)
		if err != nil {
			return err
		}
		defer gcs.Close()
		destinations = append(destinations, gcs)
		log.WithField("bucket", cfg.GCSBucket).Info("gcs destination enabled")
	}

	policy := channel.PolicyByName(cfg.Policy.Name, cfg.Policy.Attempts, cfg.Policy.Delay)
	dialer := channel.NewWebsocketDialer(10 * time.Second)
	newClient := func() *streamer.Client {
		return streamer.New(streamer.Options{
			Endpoints:  cfg.Endpoints,
			Analysis:   cfg.Analysis,
			Policy:     policy,
			Dialer:     dialer,
			HTTPClient: httpClient,
			Cache:      insight,
			Logger:     log,
		})
	}

	registry := services.NewSessionRegistry(newClient, sinks, log)
	defer registry.CloseAll()

	analysis := services.NewAnalysisService(ctx, registry, newClient(), nil)
	recordings := services.NewRecordingService(ctx, registry, destinations, archive, nil, cfg.Analysis.ChunkInterval, log)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	deps := routes.Deps{
		Session:   handlers.NewSessionHandler(analysis, registry),
		Recording: handlers.NewRecordingHandler(recordings, registry),
		Media:     handlers.NewMediaHandler(streamer.NewMediaAPI(cfg.Endpoints, httpClient), registry, recordings),
		WS:        handlers.NewWSHandler(analysis, registry, log),
		JWTSecret: cfg.JWTSecret,
	}
	if journal != nil {
		deps.Journal = handlers.NewJournalHandler(journal)
	}
	routes.RegisterRoutes(r, deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", srv.Addr).Info("media agent listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if rdb != nil {
		relay := &workers.AudioRelayPool{Redis: rdb, Sessions: registry, HTTP: httpClient, Logger: log}
		g.Go(func() error {
			if err := relay.Start(gctx); err != nil {
				return err
			}
			<-gctx.Done()
			relay.Wait()
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		registry.CloseAll()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
