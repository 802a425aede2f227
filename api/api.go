package api

import (
	"net/http"

	sentry "github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/mikeydub/go-indexer/indexer"
	"github.com/mikeydub/go-indexer/launcher"
	"github.com/mikeydub/go-indexer/middleware"
	"github.com/mikeydub/go-indexer/service/logger"
	"github.com/mikeydub/go-indexer/service/persist"
	"github.com/mikeydub/go-indexer/service/persist/postgres"
	sentryutil "github.com/mikeydub/go-indexer/service/sentry"
	"github.com/mikeydub/go-indexer/validate"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Repos is the persistence surface the API reads and the admin plane writes
type Repos struct {
	NetworkRepo  persist.NetworkRepository
	TokenRepo    persist.TokenRepository
	IndexerRepo  persist.IndexerRepository
	TransferRepo persist.TransferRepository
	BalanceRepo  persist.BalanceRepository
}

// Init initializes the API service
func Init() {
	indexer.SetDefaults()

	logger.InitWithDefaults()
	initSentry()

	pgRepos := postgres.NewRepositories(postgres.MustCreateClient(), postgres.NewPgxClient())
	repos := Repos{
		NetworkRepo:  pgRepos.NetworkRepository,
		TokenRepo:    pgRepos.TokenRepository,
		IndexerRepo:  pgRepos.IndexerRepository,
		TransferRepo: pgRepos.TransferRepository,
		BalanceRepo:  pgRepos.BalanceRepository,
	}

	runtime, err := launcher.NewDockerRuntime()
	if err != nil {
		logger.For(nil).WithError(err).Fatal("failed to connect to container runtime")
	}

	router := CoreInit(repos, launcher.New(runtime, pgRepos.IndexerRepository))

	http.Handle("/", router)
}

// CoreInit initializes core API functionality. This is abstracted
// so the test server can also utilize it
func CoreInit(repos Repos, l *launcher.Launcher) *gin.Engine {
	logger.For(nil).Info("initializing API server...")

	if viper.GetString("ENV") != "production" {
		gin.SetMode(gin.DebugMode)
		logrus.SetLevel(logrus.DebugLevel)
	}

	router := gin.Default()
	router.Use(middleware.Sentry(true), middleware.HandleCORS(), middleware.GinContextToContext(), middleware.ErrLogger())

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		logger.For(nil).Info("registering validation")
		validate.RegisterCustomValidators(v)
	}

	return handlersInit(router, repos, l)
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
