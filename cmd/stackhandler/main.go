package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"futuresexec/internal/algo"
	"futuresexec/internal/broker"
	"futuresexec/internal/client/venue"
	"futuresexec/internal/config"
	cronrunner "futuresexec/internal/cron"
	"futuresexec/internal/db"
	"futuresexec/internal/handler"
	"futuresexec/internal/logger"
	"futuresexec/internal/notify"
	"futuresexec/internal/paas"
	"futuresexec/internal/positions"
	"futuresexec/internal/prices"
	gormrepository "futuresexec/internal/repository/gorm"
	"futuresexec/internal/service"
	"futuresexec/internal/stackhandler"

	_ "futuresexec/docs"
)

func main() {
	cfgPath := os.Getenv("SX_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("SX_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	settingsSvc := &service.SystemSettingsService{Repo: store}
	if err := settingsSvc.EnsureDefaultSwitches(context.Background()); err != nil {
		logger.Warn("init default system switches failed", zap.Error(err))
	}

	var redisClient *redis.Client
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer redisClient.Close()
	}

	paasClient := initPaaSClient(cfg.Notify, logger)
	notifier := buildNotifier(cfg.Notify, store, paasClient, redisClient, logger)

	rawBroker, venueBroker, paper := buildBroker(cfg.Broker, logger)
	guarded := broker.NewGuarded(rawBroker, broker.GuardOptions{
		Timeout:       cfg.Broker.Timeout,
		PacingMaxWait: cfg.Broker.PacingMaxWait,
		Logger:        logger,
	})

	positionSvc := positions.New(store, notifier, logger)
	priceSvc := prices.New(store)
	stacks := store.Stacks()
	stackHandler := stackhandler.New(stackhandler.Deps{
		Stacks:    stacks,
		Positions: positionSvc,
		Prices:    priceSvc,
		Contracts: positionSvc,
		Allocator: algo.NewStatic(cfg.StackHandler.DefaultAlgo, cfg.StackHandler.SpreadAlgo),
		Broker:    guarded,
		Notifier:  notifier,
		Fills:     store,
		Sampler:   priceSvc,
		Logger:    logger,
	}, stackhandler.Config{
		LockSanityThreshold:  cfg.StackHandler.LockSanityThreshold,
		CancelAfter:          cfg.StackHandler.CancelAfter,
		CancelConfirmTimeout: cfg.StackHandler.CancelConfirmTimeout,
		MaxPriceDeviationBps: cfg.StackHandler.MaxPriceDeviationBps,
		StaleOrderAge:        cfg.StackHandler.StaleOrderAge,
	})

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(paas.RequireBearerMiddleware(cfg.Server.AuthDisabled))
	engine.Use(paas.InjectClientMiddleware(paasClient))
	engine.Use(paas.WriteAuditMiddleware(paasClient, logger))

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm, Redis: redisClient}
	healthHandler.Register(engine)
	paas.RegisterDocs(engine)
	stacksHandler := &handler.StacksHandler{Stacks: stacks}
	stacksHandler.Register(engine)
	rollStates := &handler.RollStatesHandler{Book: positionSvc}
	rollStates.Register(engine)
	positionsHandler := &handler.PositionsHandler{Repo: store, Breaks: positionSvc, Broker: guarded}
	positionsHandler.Register(engine)
	alerts := &handler.AlertsHandler{Repo: store}
	alerts.Register(engine)
	ops := &handler.OpsHandler{Runner: stackHandler}
	ops.Register(engine)
	settings := &handler.SystemSettingsHandler{Settings: settingsSvc}
	settings.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	baseCtx := ctx
	if paasClient != nil {
		baseCtx = paas.WithClient(ctx, paasClient)
	}

	cronRunner := cronrunner.New(logger, baseCtx)
	if cfg.Cron.Enabled {
		specs := cronSpecs(cfg.Cron)
		for _, name := range stackhandler.OperationNames() {
			op := name
			feature := service.FeatureForOperation(op)
			_, err := cronRunner.Add(op, specs[op], func(ctx context.Context) {
				if !settingsSvc.IsEnabled(ctx, feature, true) {
					return
				}
				if err := stackHandler.RunOperation(ctx, op); err != nil {
					logger.Warn("cron stack handler operation failed", zap.String("op", op), zap.Error(err))
					paas.LogBestEffortCtx(ctx, "stack_handler_op_failed", "warn", map[string]any{
						"op":    op,
						"error": err.Error(),
					})
				}
			})
			if err != nil {
				logger.Warn("cron register failed", zap.String("op", op), zap.Error(err))
			}
		}
	}
	if paper != nil {
		if err := syncPaperPrices(baseCtx, store, paper); err != nil {
			logger.Warn("paper price sync failed", zap.Error(err))
		}
		_, err := cronRunner.Add("paper_prices", cfg.Cron.RefreshSampling, func(ctx context.Context) {
			if err := syncPaperPrices(ctx, store, paper); err != nil {
				logger.Warn("paper price sync failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register failed", zap.String("op", "paper_prices"), zap.Error(err))
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	g, gctx := errgroup.WithContext(baseCtx)

	if venueBroker != nil && strings.TrimSpace(cfg.Broker.StreamURL) != "" &&
		settingsSvc.IsEnabled(baseCtx, service.FeatureVenueFillStream, false) {
		stream := venue.NewFillStream(venue.FillStreamOptions{
			URL:     cfg.Broker.StreamURL,
			Account: cfg.Broker.Account,
			Logger:  logger,
		})
		g.Go(func() error {
			err := stream.Run(gctx, venueBroker.ObserveFill)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("venue fill stream stopped", zap.Error(err))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", zap.Error(err))
	}
}

func cronSpecs(c config.CronConfig) map[string]string {
	return map[string]string{
		stackhandler.OpCheckExternalBreaks: c.CheckExternalBreaks,
		stackhandler.OpSpawnChildren:       c.SpawnChildren,
		stackhandler.OpGenerateForceRolls:  c.GenerateForceRolls,
		stackhandler.OpCreateBrokerOrders:  c.CreateBrokerOrders,
		stackhandler.OpCancelAndModify:     c.CancelAndModify,
		stackhandler.OpProcessFills:        c.ProcessFills,
		stackhandler.OpHandleCompletions:   c.HandleCompletions,
		stackhandler.OpCheckStuckLocks:     c.CheckStuckLocks,
		stackhandler.OpCheckInternalBreaks: c.CheckInternalBreaks,
		stackhandler.OpCheckRollStates:     c.CheckRollStates,
		stackhandler.OpRefreshSampling:     c.RefreshSampling,
		stackhandler.OpSafeStackRemoval:    c.SafeStackRemoval,
	}
}

// buildBroker returns the broker to trade through plus the concrete venue
// behind it: the http adapter the fill stream feeds, or the paper venue.
func buildBroker(cfg config.BrokerConfig, logger *zap.Logger) (broker.Broker, *broker.Venue, *broker.Paper) {
	if !strings.EqualFold(strings.TrimSpace(cfg.Mode), "http") {
		logger.Info("broker mode paper")
		p := broker.NewPaper()
		return p, nil, p
	}
	client := venue.NewClient(&http.Client{Timeout: cfg.Timeout}, cfg.BaseURL, venue.Auth{
		APIKeyHeader: cfg.APIKeyHeader,
		APIKey:       cfg.APIKey,
		APISecret:    cfg.APISecret,
		SignRequests: cfg.SignRequests,
	})
	v := broker.NewVenue(client, cfg.Account, logger)
	logger.Info("broker mode http", zap.String("base_url", cfg.BaseURL), zap.String("account", cfg.Account))
	return v, v, nil
}

// syncPaperPrices marks the paper venue at the latest stored price of every
// priced and forward contract.
func syncPaperPrices(ctx context.Context, store *gormrepository.Store, paper *broker.Paper) error {
	items, err := store.ListInstrumentContracts(ctx)
	if err != nil {
		return err
	}
	for _, ic := range items {
		for _, contract := range []string{ic.PricedContractID, ic.ForwardContractID} {
			px, err := store.LatestContractPrice(ctx, ic.InstrumentCode, contract)
			if err != nil {
				return err
			}
			if px != nil {
				paper.SetPrice(ic.InstrumentCode, contract, px.Price)
			}
		}
	}
	return nil
}

func buildNotifier(cfg config.NotifyConfig, store *gormrepository.Store, paasClient *paas.Client, redisClient *redis.Client, logger *zap.Logger) notify.Notifier {
	notifiers := []notify.Notifier{notify.NewLog(logger)}
	if cfg.PersistAlert {
		notifiers = append(notifiers, notify.NewStore(store))
	}
	if paasClient != nil {
		notifiers = append(notifiers, notify.NewPaaS(paasClient))
	}
	if redisClient != nil {
		notifiers = append(notifiers, notify.NewRedis(redisClient, cfg.RedisChannel, cfg.DedupeWindow))
	}
	return notify.NewMulti(logger, notifiers...)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

func initPaaSClient(cfg config.NotifyConfig, logger *zap.Logger) *paas.Client {
	base := strings.TrimSpace(cfg.PaaSBaseURL)
	apiKey := strings.TrimSpace(cfg.PaaSAPIKey)
	if base == "" || apiKey == "" {
		return nil
	}

	p := &paas.Client{BaseURL: base, APIKey: apiKey, Agent: cfg.PaaSAgent}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := p.Login(ctx); err != nil {
		logger.Warn("paas login failed (logs/notify disabled)", zap.Error(err))
		return nil
	}
	logger.Info("paas login ok")
	return p
}
