// Package main runs the classroom interaction backend: the student TCP
// session listener, the assignment upload listener, the WebSocket push
// notifier and the instructor HTTP API, with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/classpulse/backend/config"
	"github.com/classpulse/backend/internal/assignment"
	"github.com/classpulse/backend/internal/broadcast"
	"github.com/classpulse/backend/internal/chat"
	"github.com/classpulse/backend/internal/dashboard"
	"github.com/classpulse/backend/internal/middleware"
	"github.com/classpulse/backend/internal/notifier"
	"github.com/classpulse/backend/internal/poll"
	"github.com/classpulse/backend/internal/qa"
	"github.com/classpulse/backend/internal/questionbank"
	"github.com/classpulse/backend/internal/quiz"
	"github.com/classpulse/backend/internal/session"
	"github.com/classpulse/backend/internal/vote"
	"github.com/classpulse/backend/pkg/database"
	"github.com/classpulse/backend/pkg/redis"
	"github.com/classpulse/backend/pkg/response"
	"github.com/classpulse/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()

	// Question bank: Postgres when configured, in-memory otherwise.
	var bank questionbank.Bank = questionbank.NewMemory()
	if cfg.Database.Enabled {
		pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		bank = questionbank.NewRepository(pool)
	}

	// Broadcast events can be mirrored to Redis for external consumers.
	var events broadcast.EventPublisher
	if cfg.Redis.Enabled {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		events = broadcast.NewRedisPublisher(rdb.Client, logger)
	}

	hub := broadcast.NewHub(logger, events)

	// Interaction engines.
	polls := poll.NewEngine(logger)
	votes := vote.NewEngine(logger)
	quizzes := quiz.NewManager(logger)
	chatMgr := chat.NewManager(hub, logger)
	qaMgr := qa.NewManager(hub, logger)

	// Assignment push channel and submission store.
	push := notifier.NewServer(":"+cfg.Push.Port, logger)
	var store assignment.Store
	switch cfg.Upload.StorageBackend {
	case "s3":
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			AssignmentsBucket:    cfg.AWS.AssignmentsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Fatal("s3", zap.Error(err))
		}
		store = assignment.NewS3Store(s3Client)
	default:
		store = assignment.NewDiskStore(cfg.Upload.DiskRoot)
	}
	assignments := assignment.NewManager(store, push, logger)

	// TCP listeners: student sessions and assignment uploads.
	registry := session.NewRegistry()
	sessionSrv := session.NewServer(":"+cfg.Session.Port, registry, hub, polls, votes, quizzes, chatMgr, logger)
	uploadSrv := assignment.NewUploadServer(":"+cfg.Upload.Port, assignments, logger)

	for _, srv := range []interface{ Listen() error }{sessionSrv, uploadSrv, push} {
		if err := srv.Listen(); err != nil {
			logger.Fatal("listen", zap.Error(err))
		}
	}
	go func() {
		if err := sessionSrv.Serve(); err != nil {
			logger.Error("session server", zap.Error(err))
		}
	}()
	go func() {
		if err := uploadSrv.Serve(); err != nil {
			logger.Error("upload server", zap.Error(err))
		}
	}()
	go func() {
		if err := push.Serve(); err != nil {
			logger.Error("push notifier", zap.Error(err))
		}
	}()

	// HTTP handlers.
	pollHandler := poll.NewHandler(polls, hub)
	voteHandler := vote.NewHandler(votes, hub)
	quizHandler := quiz.NewHandler(quizzes, bank, hub)
	bankHandler := questionbank.NewHandler(bank)
	chatHandler := chat.NewHandler(chatMgr)
	qaHandler := qa.NewHandler(qaMgr)
	assignmentHandler := assignment.NewHandler(assignments)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok", "sessions": registry.Len()}) })

	api := router.Group("")
	{
		// Polls
		api.POST("/polls", pollHandler.Create)
		api.GET("/polls/current", pollHandler.Current)
		api.POST("/polls/current/start", pollHandler.Start)
		api.POST("/polls/current/end", pollHandler.End)
		api.POST("/polls/current/reveal", pollHandler.Reveal)
		api.POST("/polls/current/answer", pollHandler.Answer)
		api.GET("/polls/:id", pollHandler.Get)

		// Votes
		api.POST("/votes", voteHandler.Create)
		api.GET("/votes", voteHandler.List)
		api.GET("/votes/:id", voteHandler.Get)
		api.POST("/votes/:id/open", voteHandler.Open)
		api.POST("/votes/:id/cast", voteHandler.Cast)
		api.POST("/votes/:id/close", voteHandler.Close)

		// Question bank
		api.POST("/questions", bankHandler.Create)
		api.POST("/questions/batch", bankHandler.CreateBatch)
		api.GET("/questions", bankHandler.List)
		api.GET("/questions/:id", bankHandler.Get)
		api.PUT("/questions/:id", bankHandler.Update)
		api.DELETE("/questions/:id", bankHandler.Delete)

		// Quizzes
		api.POST("/quizzes", quizHandler.Create)
		api.GET("/quizzes", quizHandler.List)
		api.GET("/quizzes/active/status", quizHandler.Status)
		api.GET("/quizzes/active/leaderboard", quizHandler.Leaderboard)
		api.POST("/quizzes/active/answer", quizHandler.Answer)
		api.POST("/quizzes/active/next", quizHandler.Next)
		api.POST("/quizzes/active/reveal", quizHandler.Reveal)
		api.POST("/quizzes/active/end", quizHandler.End)
		api.GET("/quizzes/:id", quizHandler.Get)
		api.PUT("/quizzes/:id", quizHandler.Update)
		api.DELETE("/quizzes/:id", quizHandler.Delete)
		api.POST("/quizzes/:id/ready", quizHandler.MarkReady)
		api.POST("/quizzes/:id/launch", quizHandler.Launch)

		// Chat
		api.POST("/chat/messages", chatHandler.Post)
		api.GET("/chat/history", chatHandler.History)
		api.DELETE("/chat/history", chatHandler.Clear)
		api.POST("/chat/enabled", chatHandler.Toggle)

		// Q&A mailbox
		api.POST("/qa/questions", qaHandler.Submit)
		api.GET("/qa/questions", qaHandler.List)
		api.POST("/qa/questions/:id/answer", qaHandler.Answer)
		api.DELETE("/qa/questions/:id", qaHandler.Delete)
		api.DELETE("/qa/questions", qaHandler.Clear)

		// Assignments
		api.POST("/assignments", assignmentHandler.Create)
		api.GET("/assignments", assignmentHandler.List)
		api.GET("/assignments/:id", assignmentHandler.Get)
		api.GET("/assignments/:id/uploads", assignmentHandler.Uploads)
	}

	// Dashboard WebSocket mirror of the broadcast hub.
	router.GET("/ws", dashboard.ServeWs(hub, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	sessionSrv.Close()
	uploadSrv.Close()
	push.Close()
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
