package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"examforge/internal/api"
	"examforge/internal/app/executor"
	"examforge/internal/app/service"
	"examforge/internal/app/worker"
	"examforge/internal/common"
	"examforge/internal/common/security"
	"examforge/internal/domain/repository"
	"examforge/internal/domain/repository/memory"
	"examforge/internal/platform/config"
	"examforge/internal/platform/database"
	"examforge/internal/platform/events"
	"examforge/internal/platform/queue"
)

// evaluationQueue is satisfied by both the Redis and the in-process queue.
type evaluationQueue interface {
	service.JobQueue
	worker.JobSource
}

type repositories struct {
	tx          repository.Transactor
	users       repository.UserRepository
	exams       repository.ExamRepository
	questions   repository.QuestionRepository
	submissions repository.SubmissionRepository
}

// jobProducer returns the queue saves push to. An in-process queue is only
// drained by this process's worker, so with the worker off nothing is enqueued.
func jobProducer(jobs evaluationQueue, inProcess, workerEnabled bool) service.JobQueue {
	if inProcess && !workerEnabled {
		return nil
	}
	return jobs
}

func main() {
	// 1. Load Configuration
	config.Load()
	fmt.Println("Configuration loaded.")

	// 2. Initialize JWT
	security.InitJWT(config.AppConfig.JWTKey, config.AppConfig.JWTExp)
	fmt.Println("JWT initialized.")

	// 3. Storage
	var repos repositories
	switch config.AppConfig.StoreDriver {
	case config.StoreDriverMemory:
		store := memory.NewStore()
		repos = repositories{
			tx:          store.Transactor(),
			users:       store.Users(),
			exams:       store.Exams(),
			questions:   store.Questions(),
			submissions: store.Submissions(),
		}
		log.Println("WARN: Using the in-memory store; data is lost on restart.")
	case config.StoreDriverPostgres:
		database.Connect()
		defer database.Close()
		repos = repositories{
			tx:          repository.NewSQLTransactor(database.DB),
			users:       repository.NewPgUserRepository(database.DB),
			exams:       repository.NewPgExamRepository(database.DB),
			questions:   repository.NewPgQuestionRepository(database.DB),
			submissions: repository.NewPgSubmissionRepository(database.DB),
		}
		fmt.Println("Database connected.")
	default:
		log.Fatalf("Unknown STORE_DRIVER %q", config.AppConfig.StoreDriver)
	}

	// 4. Evaluation queue: Redis when configured, otherwise in-process.
	var jobs evaluationQueue
	var locker worker.Locker
	inProcess := config.AppConfig.RedisAddr == ""
	if !inProcess {
		queue.ConnectRedis()
		defer queue.CloseRedis()
		jobs = queue.NewRedisQueue(queue.RDB, config.AppConfig.EvaluationQueueName)
		locker = queue.NewRedisLocker(queue.RDB, config.AppConfig.EvaluationLockPrefix)
		fmt.Println("Redis connected.")
	} else {
		jobs = queue.NewChannelQueue(1024)
		locker = queue.NewMemoryLocker()
		log.Println("WARN: REDIS_ADDR is empty, using an in-process evaluation queue.")
	}

	// 5. Notifications
	notifier, err := events.NewEventPublisher(config.AppConfig.RabbitMQURI, config.AppConfig.NotificationExchange)
	if err != nil {
		log.Fatalf("Failed to initialise event publisher: %v", err)
	}
	defer notifier.Close()

	// 6. Initialize Services
	clock := common.SystemClock()
	authService := service.NewAuthService(repos.users, config.AppConfig.AdminSignupToken, clock)
	jobService := service.NewEvaluationJobService(jobProducer(jobs, inProcess, config.AppConfig.EvaluationWorkerEnabled), clock)
	if !jobService.Enabled() {
		log.Println("WARN: No evaluation worker reads the in-process queue, problem-solving answers are not evaluated.")
	}
	examService := service.NewExamService(repos.tx, repos.exams, repos.questions, notifier, clock)
	questionService := service.NewQuestionService(repos.tx, repos.exams, repos.questions, clock)
	submissionService := service.NewSubmissionService(repos.tx, repos.exams, repos.questions, repos.submissions, jobService, clock)
	resultService := service.NewResultService(repos.exams, repos.questions, repos.submissions)
	webhookService := service.NewWebhookService(submissionService, config.AppConfig.WebhookSecret)

	// 7. Evaluation worker (as a goroutine)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if config.AppConfig.EvaluationWorkerEnabled {
		var exec executor.Executor = executor.PlaceholderExecutor{}
		if config.AppConfig.ExecutorURL != "" {
			exec = executor.NewHTTPExecutor(config.AppConfig.ExecutorURL, time.Duration(config.AppConfig.ExecutorTimeoutSeconds)*time.Second)
		} else {
			log.Println("WARN: EXECUTOR_URL is empty, problem-solving answers get placeholder results.")
		}
		lockTTL := time.Duration(config.AppConfig.EvaluationLockTTLSeconds) * time.Second
		evaluationWorker := worker.NewEvaluationWorker(jobs, locker, submissionService, exec, lockTTL)
		go evaluationWorker.Start(workerCtx)
		fmt.Println("Evaluation worker started.")
	}

	// 8. Initialize Router & HTTP Server
	router := api.NewRouter(api.Services{
		Auth:        authService,
		Exams:       examService,
		Questions:   questionService,
		Submissions: submissionService,
		Results:     resultService,
		Webhooks:    webhookService,
	})

	server := &http.Server{
		Addr:         ":" + config.AppConfig.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 9. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on port %s", config.AppConfig.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", config.AppConfig.APIPort, err)
		}
	}()
	log.Println("Server started successfully.")

	<-stop

	log.Println("Shutting down server...")
	workerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}

	log.Println("Server and worker stopped gracefully.")
}
