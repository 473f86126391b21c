// cmd/main.go
package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-telegram/bot"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"mactabak/config"
	"mactabak/internal/auth"
	"mactabak/internal/handler"
	"mactabak/internal/media"
	"mactabak/internal/metrics"
	"mactabak/internal/notify"
	"mactabak/internal/payment"
	"mactabak/internal/publisher"
	"mactabak/internal/repository"
	"mactabak/internal/service"
	"mactabak/traits/database"
	"mactabak/traits/lock"
	"mactabak/traits/logger"
)

func main() {
	zapLogger, err := logger.NewLogger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = zapLogger.Sync() }()

	if err := run(zapLogger); err != nil {
		zapLogger.Error("bot stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(zapLogger *zap.Logger) (err error) {
	cfg, err := config.NewConfig()
	if err != nil {
		zapLogger.Error("error init config", zap.Error(err))
		return err
	}

	pid, err := lock.Acquire(cfg.LockFile)
	if err != nil {
		if errors.Is(err, lock.ErrAlreadyRunning) {
			zapLogger.Error("bot is already running", zap.String("lock", cfg.LockFile))
		}
		return err
	}
	defer func() { err = multierr.Append(err, pid.Release()) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDatabase(cfg.DBPath)
	if err != nil {
		zapLogger.Error("error initializing database", zap.Error(err))
		return err
	}
	defer func() { err = multierr.Append(err, db.Close()) }()

	productRepo := repository.NewProductRepository(db)
	if n, err := productRepo.SeedCatalog(ctx); err != nil {
		zapLogger.Error("seed catalog", zap.Error(err))
		return err
	} else if n > 0 {
		zapLogger.Info("catalog seeded", zap.Int("products", n))
	}
	orderRepo := repository.NewOrderRepository(db)
	userRepo := repository.NewUserRepository(db)

	counter, carts, redisClient := storage(ctx, zapLogger, cfg, db, orderRepo)
	if redisClient != nil {
		defer func() { err = multierr.Append(err, redisClient.Close()) }()
	}

	met := metrics.New()
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.AdminTokenTTL)
	images := media.NewImageStore(cfg.UploadsDir)

	botHandler := handler.NewBotHandler(zapLogger, cfg, userRepo, carts, tokens)
	limiter := handler.NewRateLimiter(zapLogger)

	opts := []bot.Option{
		bot.WithAllowedUpdates([]string{"message"}),
		bot.WithMiddlewares(limiter.Middleware),
		bot.WithMessageTextHandler("/start", bot.MatchTypePrefix, botHandler.StartHandler),
		bot.WithMessageTextHandler("/admin", bot.MatchTypePrefix, botHandler.AdminHandler),
		bot.WithDefaultHandler(botHandler.DefaultHandler),
	}

	b, err := bot.New(cfg.Token, opts...)
	if err != nil {
		zapLogger.Error("error in start bot", zap.Error(err))
		return err
	}

	qr := payment.NewGenerator(zapLogger, payment.Requisites{
		Name:     cfg.Payment.Name,
		Account:  cfg.Payment.Account,
		BankName: cfg.Payment.BankName,
		BIC:      cfg.Payment.BIC,
		INN:      cfg.Payment.INN,
	}, cfg.QRDir, cfg.QRRemoveWait)
	go qr.RunSweeper(ctx, cfg.QRRemoveWait)

	dispatcher := notify.NewDispatcher(zapLogger, notify.NewTelegramMessenger(b), qr,
		cfg.AdminID, cfg.MiniAppUrl, cfg.Payment.ManagerEmail)

	var pub publisher.Publisher = publisher.NopPublisher{}
	if cfg.Sync.RepoPath != "" {
		pub = publisher.NewGitPublisher(zapLogger, cfg.Sync.RepoPath, cfg.Sync.ExportPath, cfg.Sync.Branch, nil)
	} else {
		zapLogger.Warn("SYNC_REPO_PATH is not set, catalog publishing disabled")
	}

	orderSvc := service.NewOrderService(zapLogger, orderRepo, userRepo, productRepo,
		counter, carts, dispatcher, met, cfg.OrderPrefix)
	catalogSvc := service.NewCatalogService(zapLogger, productRepo, orderRepo, userRepo, images, pub, met)

	handl := handler.NewHandler(zapLogger, cfg, orderSvc, catalogSvc, images, tokens, met)

	go handl.StartWebServer(ctx)
	zapLogger.Info("Starting web server", zap.String("port", cfg.Port))
	zapLogger.Info("Bot started successfully")

	b.Start(ctx)

	zapLogger.Info("Bot stopped successfully")
	return nil
}

// storage picks redis for the order counter and carts, falling back to SQLite
// when redis cannot be reached at startup.
func storage(ctx context.Context, zapLogger *zap.Logger, cfg *config.Config, db *sql.DB, orders *repository.OrderRepository) (repository.Counter, repository.CartStore, *redis.Client) {
	floor, err := orders.MaxSequence(ctx, cfg.OrderPrefix)
	if err != nil {
		zapLogger.Warn("read highest order number", zap.Error(err))
	}

	client, err := database.ConnectRedis(ctx, zapLogger, cfg.RedisAddr,
		database.WithPassword(cfg.RedisPassword),
		database.WithDB(cfg.RedisDB),
	)
	if err == nil {
		counter := repository.NewRedisCounter(client)
		if err := counter.Seed(ctx, repository.OrderNumberCounter, floor); err != nil {
			zapLogger.Warn("seed redis order counter", zap.Error(err))
		}
		return counter, repository.NewRedisCartRepository(client), client
	}

	zapLogger.Warn("redis unavailable, using sqlite for counters and carts", zap.Error(err))
	counter := repository.NewSQLCounter(db)
	if err := counter.Seed(ctx, repository.OrderNumberCounter, floor); err != nil {
		zapLogger.Warn("seed sqlite order counter", zap.Error(err))
	}
	return counter, repository.NewSQLCartRepository(db), nil
}
