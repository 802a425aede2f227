package indexer

import (
	"context"
	"fmt"
	"net/http"

	sentry "github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/mikeydub/go-indexer/env"
	"github.com/mikeydub/go-indexer/middleware"
	"github.com/mikeydub/go-indexer/service/logger"
	"github.com/mikeydub/go-indexer/service/persist/postgres"
	sentryutil "github.com/mikeydub/go-indexer/service/sentry"
	"github.com/mikeydub/go-indexer/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// Run boots a worker process: it loads the indexer named by INDEXER_NAME,
// dials its network and runs the control loop alongside a health endpoint for
// the container runtime. Blocks until either stops.
func Run(ctx context.Context, pPort uint64) error {
	SetDefaults()

	logger.InitWithDefaults()
	initSentry()

	name := env.GetString("INDEXER_NAME")
	if name == "" {
		logger.For(ctx).Fatal("INDEXER_NAME must be set")
	}

	repos := postgres.NewRepositories(postgres.MustCreateClient(), postgres.NewPgxClient())

	worker, err := NewWorker(ctx, name, Deps{
		NetworkRepo:  repos.NetworkRepository,
		IndexerRepo:  repos.IndexerRepository,
		TransferRepo: repos.TransferRepository,
		BalanceRepo:  repos.BalanceRepository,
	})
	if err != nil {
		logger.For(ctx).WithError(err).Fatal("failed to build worker")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer sentryutil.RecoverAndRaise(ctx)
		return worker.Run(ctx)
	})
	g.Go(func() error {
		return http.ListenAndServe(fmt.Sprintf(":%d", pPort), healthRouter())
	})
	return g.Wait()
}

func healthRouter() *gin.Engine {
	if viper.GetString("ENV") != "production" {
		gin.SetMode(gin.DebugMode)
		logrus.SetLevel(logrus.DebugLevel)
	}

	router := gin.Default()
	router.Use(middleware.GinContextToContext(), middleware.ErrLogger())
	router.GET("/health", util.HealthCheckHandler())
	return router
}

// SetDefaults sets the default viper configuration for a worker process
func SetDefaults() {
	viper.SetDefault("ENV", "local")
	viper.SetDefault("INDEXER_NAME", "")
	viper.SetDefault("PORT", 4000)
	viper.SetDefault("POSTGRES_HOST", "0.0.0.0")
	viper.SetDefault("POSTGRES_PORT", 5432)
	viper.SetDefault("POSTGRES_USER", "postgres")
	viper.SetDefault("POSTGRES_PASSWORD", "")
	viper.SetDefault("POSTGRES_DB", "postgres")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	viper.SetDefault("ADMIN_PASS", "TEST_ADMIN_PASS")
	viper.SetDefault("WORKER_IMAGE", "go-indexer-worker")
	viper.SetDefault("WORKER_NETWORK", "indexer-net")
	viper.SetDefault("SENTRY_DSN", "")
	viper.SetDefault("SENTRY_TRACES_SAMPLE_RATE", 0.2)
	viper.SetDefault("VERSION", "")

	viper.AutomaticEnv()
}

func initSentry() {
	if viper.GetString("ENV") == "local" {
		logger.For(nil).Info("skipping sentry init")
		return
	}

	logger.For(nil).Info("initializing sentry...")

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              viper.GetString("SENTRY_DSN"),
		Environment:      viper.GetString("ENV"),
		TracesSampleRate: viper.GetFloat64("SENTRY_TRACES_SAMPLE_RATE"),
		Release:          viper.GetString("VERSION"),
		AttachStacktrace: true,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			event = sentryutil.ScrubEventRPCCredentials(event, hint)
			event = sentryutil.UpdateErrorFingerprints(event, hint)
			return event
		},
	})

	if err != nil {
		logger.For(nil).Fatalf("failed to start sentry: %s", err)
	}
}
