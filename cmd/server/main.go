package main // Entry point package

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/agriplan/internal/analysis"
	"github.com/iliyamo/agriplan/internal/cache"
	"github.com/iliyamo/agriplan/internal/config"
	"github.com/iliyamo/agriplan/internal/database"
	"github.com/iliyamo/agriplan/internal/handler"
	"github.com/iliyamo/agriplan/internal/logger"
	"github.com/iliyamo/agriplan/internal/middleware"
	"github.com/iliyamo/agriplan/internal/queue"
	"github.com/iliyamo/agriplan/internal/repository"
	"github.com/iliyamo/agriplan/internal/router"
	"github.com/iliyamo/agriplan/internal/service"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "agriplan",
	Short: "AgriPlan cultivation plan service",
	Long: `AgriPlan serves quota-limited, AI-generated cultivation plans over a JSON API.

Configuration is read from the environment (and from --env-file when present).
Run without a subcommand to start the HTTP server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Apply migrations and start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runMigrate(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.IsProd(), cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := database.Open(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := database.Migrate(ctx, db, cfg.DBDriver)
	if err != nil {
		return err
	}
	log.Info("migrations applied", zap.String("driver", cfg.DBDriver), zap.Int64s("versions", applied))
	return nil
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireProvider(); err != nil {
		return err
	}
	log, err := logger.New(cfg.IsProd(), cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := database.OpenAndMigrate(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb, err := config.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable; rate limiting and result cache disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	if rdb != nil {
		defer rdb.Close()
	}

	provider, err := analysis.NewGeminiProvider(ctx, analysis.GeminiConfig{
		APIKey:     cfg.GeminiAPIKey,
		Model:      cfg.GeminiModel,
		MaxRetries: cfg.AIMaxRetries,
		RetryBase:  cfg.AIRetryBase,
	}, log)
	if err != nil {
		return err
	}

	users := repository.NewUserRepo(db)
	auth := service.NewAuthService(cfg, users, log)
	quota := service.NewQuotaController(users, log)
	var results service.ResultCache
	if c := cache.NewAnalysisCache(cfg.Cache, rdb); c != nil {
		results = c
	}
	svc := service.NewAnalysisService(quota, provider, results, queue.NewPublisher(cfg.Queue, log), cfg.AITimeout, log)

	e := router.New(cfg, router.Deps{
		Log:       log,
		DB:        db,
		Auth:      handler.NewAuthHandler(auth, log),
		Analyze:   handler.NewAnalyzeHandler(svc, log),
		Admin:     handler.NewAdminHandler(quota, log),
		RateLimit: middleware.NewTokenBucket(cfg.RateLimit, rdb, log),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("db", cfg.DBDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Queue.Enabled {
		consumer := queue.NewConsumer(cfg.Queue.URL, cfg.Queue.LogDir, log)
		g.Go(func() error { return consumer.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := e.Shutdown(shutdownCtx)
		svc.Wait()
		log.Info("server stopped")
		return err
	})
	return g.Wait()
}
