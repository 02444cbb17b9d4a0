package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/luminlabs/pulse/internal/alerts"
	"github.com/luminlabs/pulse/internal/anomaly"
	"github.com/luminlabs/pulse/internal/config"
	"github.com/luminlabs/pulse/internal/domain"
	"github.com/luminlabs/pulse/internal/notify"
	"github.com/luminlabs/pulse/internal/pkg/distlock"
	"github.com/luminlabs/pulse/internal/pkg/logger"
	"github.com/luminlabs/pulse/internal/queue"
	"github.com/luminlabs/pulse/internal/realtime"
	"github.com/luminlabs/pulse/internal/repository/postgres"
	"github.com/luminlabs/pulse/internal/scoring"
	"github.com/luminlabs/pulse/internal/webhook"
	"github.com/luminlabs/pulse/internal/workflow"
)

// laneDefaults holds each lane's worker count and retry backoff base.
// Delivery lanes run wide; single-flight lanes are pinned to 1.
var laneDefaults = map[domain.Lane]struct {
	concurrency int
	baseDelay   time.Duration
}{
	domain.LaneSignalProcessing: {4, time.Second},
	domain.LaneScoreComputation: {8, time.Second},
	domain.LaneWebhookDelivery:  {10, 2 * time.Second},
	domain.LaneAnomalyDetection: {2, time.Second},
	domain.LaneAlertEvaluation:  {4, time.Second},
	domain.LaneAlertCheck:       {1, time.Second},
	domain.LaneRetention:        {1, time.Second},
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	log.Println("Starting Pulse worker...")

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Redis unavailable, falling back to PG advisory locks: %v", err)
			redisClient = nil
		} else {
			log.Println("Connected to Redis")
		}
	}

	// Repositories
	signalRepo := postgres.NewSignalRepo(db)
	scoreRepo := postgres.NewScoreRepo(db)
	factsRepo := postgres.NewFactsRepo(db)
	notificationRepo := postgres.NewNotificationRepo(db)
	subscriptionRepo := postgres.NewSubscriptionRepo(db)
	alertRuleRepo := postgres.NewAlertRuleRepo(db)

	q := queue.New(db)

	// Notifications, optionally mirrored to Slack
	notifySvc := notify.NewService(notificationRepo)
	if url := os.Getenv("SLACK_WEBHOOK_URL"); url != "" {
		notifySvc.SetSlackSink(notify.NewSlackSink(url))
		log.Println("Slack notification mirror enabled")
	}

	// Scoring engine with its side-effect ports
	engine := scoring.NewEngine(signalRepo, factsRepo, scoreRepo, scoring.Config{
		HalfLives:  scoring.NewHalfLives(cfg.Scoring.HalfLives, cfg.Scoring.DefaultHalfLifeDays),
		WindowDays: cfg.Scoring.WindowDays,
		Tiers:      cfg.Scoring.Tiers,
	})
	engine.SetEventPublisher(webhook.NewPublisher(subscriptionRepo, q, cfg.Webhooks.MaxAttempts))
	engine.SetBroadcaster(realtime.NewBroadcaster(redisClient))
	engine.SetNotifier(notifySvc)
	engine.SetJobEnqueuer(q)

	scoreHandler := scoring.NewJobHandler(engine, func(key string) scoring.Lock {
		return distlock.NewLock(redisClient, db, key, 30*time.Second)
	})

	// Anomaly detection
	detector := anomaly.NewDetector(signalRepo)
	anomalySvc := anomaly.NewService(detector, signalRepo, signalRepo, notifySvc, q,
		cfg.Scheduler.AnomalyScanInterval)

	// Alert rules
	alertSvc := alerts.NewService(alertRuleRepo, scoreRepo, notifySvc, q,
		cfg.Scoring.Tiers, cfg.Scheduler.AlertCheckInterval)

	// Webhook delivery
	limiter := webhook.NewRateLimiter(redisClient, cfg.Webhooks.RatePerMinute)
	dispatcher := webhook.NewDispatcher(subscriptionRepo, cfg.Webhooks.RequestTimeout, limiter)

	// Workflow follow-ups
	executor := workflow.NewExecutor(workflow.LogRunner{})

	// Retention
	retention := queue.NewRetentionWorker(db, queue.RetentionPolicy{
		CompletedJobAge:    cfg.Retention.CompletedJobAge,
		DeadLetterAge:      cfg.Retention.DeadLetterAge,
		DeliveryAttemptAge: cfg.Retention.DeliveryAttemptAge,
		DedupWindowAge:     cfg.Retention.DedupWindowAge,
	})

	supervisor := queue.NewSupervisor(q, cfg.Queue.PollInterval)
	registerLane(supervisor, cfg, domain.LaneSignalProcessing, executor.HandleJob)
	registerLane(supervisor, cfg, domain.LaneScoreComputation, scoreHandler.HandleJob)
	registerLane(supervisor, cfg, domain.LaneWebhookDelivery, dispatcher.HandleJob)
	registerLane(supervisor, cfg, domain.LaneAnomalyDetection, anomalySvc.HandleJob)
	registerLane(supervisor, cfg, domain.LaneAlertEvaluation, alertSvc.HandleEvaluateJob)
	registerLane(supervisor, cfg, domain.LaneAlertCheck, alertSvc.HandleCheckJob)
	registerLane(supervisor, cfg, domain.LaneRetention, retention.HandleJob)

	scheduler := queue.NewScheduler(q, redisClient, db)
	scheduler.AddTrigger(queue.Trigger{
		Name:     "anomaly-scan",
		Lane:     domain.LaneAnomalyDetection,
		JobName:  "anomaly.scan",
		Interval: cfg.Scheduler.AnomalyScanInterval,
	})
	scheduler.AddTrigger(queue.Trigger{
		Name:     "alert-check",
		Lane:     domain.LaneAlertCheck,
		JobName:  "alert.check",
		Interval: cfg.Scheduler.AlertCheckInterval,
	})
	scheduler.AddTrigger(queue.Trigger{
		Name:     "retention-cleanup",
		Lane:     domain.LaneRetention,
		JobName:  "retention.cleanup",
		Interval: cfg.Scheduler.RetentionInterval,
	})
	supervisor.RegisterRunnable(scheduler)

	supervisor.RegisterRunnable(queue.NewRecoveryWorker(db,
		cfg.Queue.RecoveryInterval, cfg.Queue.StaleAge))

	if err := supervisor.Start(); err != nil {
		log.Fatalf("Failed to start supervisor: %v", err)
	}
	log.Println("Worker started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received %s, shutting down", sig)

	supervisor.Stop()
	log.Println("Worker stopped")
}

// registerLane wires a lane with its defaults, honoring config concurrency
// overrides.
func registerLane(s *queue.Supervisor, cfg *config.Config, lane domain.Lane, h queue.Handler) {
	def := laneDefaults[lane]
	concurrency := def.concurrency
	if override, ok := cfg.Queue.Concurrency[string(lane)]; ok && override > 0 {
		concurrency = override
	}
	s.RegisterLane(queue.LaneConfig{
		Lane:        lane,
		Handler:     h,
		Concurrency: concurrency,
		BaseDelay:   def.baseDelay,
	})
}
