package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SMVEC2025/agribackend/internal/config"
	"github.com/SMVEC2025/agribackend/internal/crm"
	"github.com/SMVEC2025/agribackend/internal/handlers"
	"github.com/SMVEC2025/agribackend/internal/middleware"
	"github.com/SMVEC2025/agribackend/internal/repository"
	"github.com/SMVEC2025/agribackend/internal/service"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	challengeStore, err := initChallengeStore(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize challenge store")
	}

	// Enquiry archiving is optional; without a table the enquiries are
	// forwarded but not recorded.
	var enquiryRepo *repository.EnquiryRepository
	if cfg.DynamoDB.TableName != "" {
		dynamoClient, err := initDynamoDB(cfg, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize DynamoDB")
		}
		enquiryRepo = repository.NewEnquiryRepository(dynamoClient, cfg.DynamoDB.TableName, logger)
	}

	crmClient := crm.NewClient(&cfg.CRM, logger)

	sessionService, err := service.NewSessionService(&cfg.Session, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize session service")
	}

	otpService := service.NewOTPService(crmClient, challengeStore, sessionService, &cfg.OTP, cfg.CRM.RedirectBaseURL, logger)
	enquiryService := service.NewEnquiryService(crmClient, enquiryRepo, logger)
	mailService := service.NewMailService(&cfg.SMTP, logger)

	otpHandlers := handlers.NewOTPHandlers(otpService, logger)
	enquiryHandlers := handlers.NewEnquiryHandlers(enquiryService, logger)
	emailHandlers := handlers.NewEmailHandlers(mailService, logger)
	popupHandlers := handlers.NewPopupHandlers(&cfg.Popup)

	sessionMiddleware := middleware.NewSessionMiddleware(sessionService, logger)
	router := setupRouter(cfg, otpHandlers, enquiryHandlers, emailHandlers, popupHandlers, sessionMiddleware, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func initChallengeStore(cfg *config.Config, logger *logrus.Logger) (service.ChallengeStore, error) {
	if cfg.Redis.Endpoint == "" {
		logger.Warn("No Redis endpoint configured, using in-memory challenge store")
		return repository.NewMemoryChallengeStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Endpoint,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis challenge store initialized")
	return repository.NewRedisChallengeStore(client, logger), nil
}

func initDynamoDB(cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.DynamoDB.Endpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO(),
			awsconfig.WithRegion(cfg.DynamoDB.Region),
			awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{
						URL:           cfg.DynamoDB.Endpoint,
						SigningRegion: cfg.DynamoDB.Region,
					}, nil
				})),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO())
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg)
	logger.Info("DynamoDB client initialized")
	return client, nil
}

func setupRouter(
	cfg *config.Config,
	otpHandlers *handlers.OTPHandlers,
	enquiryHandlers *handlers.EnquiryHandlers,
	emailHandlers *handlers.EmailHandlers,
	popupHandlers *handlers.PopupHandlers,
	sessionMiddleware *middleware.SessionMiddleware,
	logger *logrus.Logger,
) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	router.Use(middleware.Logging(logger))
	router.MethodNotAllowedHandler = http.HandlerFunc(handlers.MethodNotAllowed)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "OPTIONS")

	router.HandleFunc("/send-otp", otpHandlers.SendOTP).Methods("POST", "OPTIONS")
	router.Handle("/verify-otp", sessionMiddleware.RequireSession(http.HandlerFunc(otpHandlers.VerifyOTP))).Methods("POST", "OPTIONS")
	router.HandleFunc("/submit-form", enquiryHandlers.SubmitForm).Methods("POST", "OPTIONS")
	router.HandleFunc("/send-email", emailHandlers.SendEmail).Methods("POST", "OPTIONS")
	router.HandleFunc("/get-pop", popupHandlers.GetPop).Methods("GET", "POST", "OPTIONS")

	return router
}
