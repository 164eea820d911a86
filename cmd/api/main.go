package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/kairos-clinic/scheduling/internal/api"
	"github.com/kairos-clinic/scheduling/internal/booking"
	appconfig "github.com/kairos-clinic/scheduling/internal/config"
	"github.com/kairos-clinic/scheduling/internal/escalate"
	"github.com/kairos-clinic/scheduling/internal/identity"
	"github.com/kairos-clinic/scheduling/internal/ids"
	"github.com/kairos-clinic/scheduling/internal/notify"
	"github.com/kairos-clinic/scheduling/internal/observability/metrics"
	"github.com/kairos-clinic/scheduling/internal/patients"
	"github.com/kairos-clinic/scheduling/internal/rowstore"
	"github.com/kairos-clinic/scheduling/internal/schedule"
	"github.com/kairos-clinic/scheduling/pkg/logging"
)

func main() {
	// Local development convenience; the file is absent in deployed envs.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("starting kairos scheduling API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"store", cfg.StoreBackend,
		"cancel_policy", cfg.CancelPolicy,
	)

	ctx := context.Background()
	keyFields := map[string]string{
		cfg.AppointmentsTable: "row_id",
		cfg.PatientsTable:     "patient_id",
	}

	needsAWS := cfg.StoreBackend == appconfig.StoreDynamo ||
		cfg.EscalationQueueURL != "" ||
		(cfg.SendGridAPIKey == "" && cfg.SESFromEmail != "")
	var awsClients *awsDeps
	if needsAWS {
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		awsClients = &awsDeps{
			dynamo: dynamodb.NewFromConfig(awsCfg),
			sqs:    sqs.NewFromConfig(awsCfg),
			ses:    sesv2.NewFromConfig(awsCfg),
		}
	}

	var store rowstore.Store
	switch cfg.StoreBackend {
	case appconfig.StoreMemory:
		store = rowstore.NewMemoryStore(keyFields)
	case appconfig.StoreDynamo:
		store = rowstore.NewDynamoStore(awsClients.dynamo, keyFields)
	case appconfig.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		pg := rowstore.NewPostgresStore(pool, keyFields)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure postgres schema", "error", err)
			os.Exit(1)
		}
		store = pg
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("redis unreachable", "error", err)
			os.Exit(1)
		}
	}

	minter := buildMinter(ctx, cfg, store, redisClient, logger)

	var sms notify.SMSSender
	if gw := notify.NewGatewaySMSSender(notify.GatewaySMSConfig{
		BaseURL:    cfg.SMSBaseURL,
		APIKey:     cfg.SMSAPIKey,
		FromNumber: cfg.SMSFromNumber,
	}, logger); gw != nil {
		sms = gw
	} else {
		sms = notify.NewStubSMSSender(logger)
	}

	var email notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		email = sg
	} else if cfg.SESFromEmail != "" && awsClients != nil {
		email = notify.NewSESSender(awsClients.ses, notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger)
	} else {
		email = notify.NewStubEmailSender(logger)
	}

	var otp *identity.OTPService
	var attempts booking.AttemptTracker
	if redisClient != nil {
		otp = identity.NewOTPService(redisClient, sms, cfg.OTPTTL, logger)
		attempts = identity.NewAttemptCounter(redisClient, cfg.AttemptWindow)
	}

	var publisher escalate.Publisher
	if cfg.EscalationQueueURL != "" && awsClients != nil {
		publisher = escalate.NewSQSPublisher(awsClients.sqs, cfg.EscalationQueueURL)
	} else {
		publisher = escalate.NewMemoryPublisher()
	}
	escalations := escalate.NewService(escalate.ServiceConfig{
		Publisher: publisher,
		Email:     email,
		DeskEmail: cfg.FrontDeskEmail,
		SMS:       sms,
		DeskPhone: cfg.FrontDeskPhone,
		Logger:    logger,
	})

	directory := patients.NewDirectory(store, cfg.PatientsTable, minter, cfg.PatientIDPrefix, logger)
	allocator := schedule.NewAllocator(store, cfg.AppointmentsTable, cfg.Lane, logger)
	bookingMetrics := metrics.NewBookingMetrics(nil)

	engine := booking.NewEngine(booking.Config{
		Store:             store,
		ApptTable:         cfg.AppointmentsTable,
		Allocator:         allocator,
		Directory:         directory,
		Minter:            minter,
		ApptIDPrefix:      cfg.AppointmentIDPrefix,
		Lane:              cfg.Lane,
		CancelPolicy:      cfg.CancelPolicy,
		OpeningsLimit:     cfg.OpeningsLimit,
		MaxFailedAttempts: cfg.MaxFailedAttempts,
		Attempts:          attempts,
		Escalations:       escalations,
		Notifier:          notify.NewService(email, sms, cfg.SESFromName, cfg.ProviderName, logger),
		Metrics:           bookingMetrics,
		Logger:            logger,
	})

	router := api.NewRouter(api.RouterConfig{
		Handler:        api.NewHandler(engine, otp, logger),
		Logger:         logger,
		AdminJWTSecret: cfg.AdminJWTSecret,
		MetricsHandler: promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

type awsDeps struct {
	dynamo *dynamodb.Client
	sqs    *sqs.Client
	ses    *sesv2.Client
}

// loadAWSConfig builds the shared AWS client configuration, pointing every
// service at the LocalStack endpoint when one is configured.
func loadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	out, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, err
	}

	if endpoint := cfg.AWSEndpointOverride; endpoint != "" {
		out.EndpointResolverWithOptions = aws.EndpointResolverWithOptionsFunc(
			func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
				switch service {
				case sqs.ServiceID, dynamodb.ServiceID, sesv2.ServiceID:
					return aws.Endpoint{
						URL:           endpoint,
						PartitionID:   "aws",
						SigningRegion: cfg.AWSRegion,
					}, nil
				default:
					return aws.Endpoint{}, &aws.EndpointNotFoundError{}
				}
			},
		)
	}
	return out, nil
}

// buildMinter picks the id allocator and seeds its counters from the ids
// already in the store, so a fresh counter never re-issues a live id.
func buildMinter(ctx context.Context, cfg *appconfig.Config, store rowstore.Store, redisClient *redis.Client, logger *logging.Logger) ids.Minter {
	existing := map[string][]string{
		cfg.RowIDPrefix:         nil,
		cfg.AppointmentIDPrefix: nil,
		cfg.PatientIDPrefix:     nil,
	}

	seedCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()
	if rows, err := store.ScanAll(seedCtx, cfg.AppointmentsTable); err != nil {
		logger.Error("could not scan appointment ids for seeding", "error", err)
	} else {
		for _, row := range rows {
			existing[cfg.RowIDPrefix] = append(existing[cfg.RowIDPrefix], row["row_id"])
			existing[cfg.AppointmentIDPrefix] = append(existing[cfg.AppointmentIDPrefix], row["appointment_id"])
		}
	}
	if rows, err := store.ScanAll(seedCtx, cfg.PatientsTable); err != nil {
		logger.Error("could not scan patient ids for seeding", "error", err)
	} else {
		for _, row := range rows {
			existing[cfg.PatientIDPrefix] = append(existing[cfg.PatientIDPrefix], row["patient_id"])
		}
	}

	if redisClient != nil {
		minter := ids.NewRedisMinter(redisClient)
		for prefix, seen := range existing {
			if err := minter.Seed(seedCtx, prefix, seen); err != nil {
				logger.Error("could not seed id counter", "prefix", prefix, "error", err)
			}
		}
		return minter
	}

	minter := ids.NewMemoryMinter()
	for prefix, seen := range existing {
		minter.Seed(prefix, seen)
	}
	return minter
}
