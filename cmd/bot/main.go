package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nardis556/ikon-loadGenerator/params"
	"github.com/nardis556/ikon-loadGenerator/pkg/accounts"
	"github.com/nardis556/ikon-loadGenerator/pkg/api"
	"github.com/nardis556/ikon-loadGenerator/pkg/breaker"
	"github.com/nardis556/ikon-loadGenerator/pkg/controller"
	"github.com/nardis556/ikon-loadGenerator/pkg/evaluator"
	"github.com/nardis556/ikon-loadGenerator/pkg/feed"
	"github.com/nardis556/ikon-loadGenerator/pkg/metrics"
	"github.com/nardis556/ikon-loadGenerator/pkg/numfmt"
	"github.com/nardis556/ikon-loadGenerator/pkg/orders"
	"github.com/nardis556/ikon-loadGenerator/pkg/storage"
	"github.com/nardis556/ikon-loadGenerator/pkg/util"
	"github.com/nardis556/ikon-loadGenerator/pkg/venue"
)

func main() {
	// Load config from .env file and environment variables
	cfg, err := params.LoadFromEnv("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logOpts := util.LogOptions{Level: cfg.Logging.Level, Disabled: cfg.Logging.Disabled}
	if cfg.Logging.Save {
		logOpts.FilePath = cfg.Logging.File
		if logOpts.FilePath == "" {
			logOpts.FilePath = "logs/bot.log"
		}
	}
	logger, err := util.NewLoggerFromOptions(logOpts)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "level", cfg.Logging.Level, "log_file", logOpts.FilePath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, sugar); err != nil && !errors.Is(err, context.Canceled) {
		sugar.Fatalw("bot_failed", "error", err)
	}
	sugar.Info("bot_stopped")
}

func run(ctx context.Context, cfg params.Config, sugar *zap.SugaredLogger) error {
	// ---- Accounts & venue sessions ----
	accts, err := accounts.Load(cfg.AccountsFile, sugar)
	if err != nil {
		return err
	}

	venueCfg := venue.Config{
		BaseURL:           cfg.Venue.BaseURL,
		Sandbox:           cfg.Venue.Sandbox,
		APIKey:            cfg.Venue.APIKey,
		APISecret:         cfg.Venue.APISecret,
		WalletPrivateKey:  cfg.Venue.WalletPrivateKey,
		ChainID:           cfg.Venue.ChainID,
		ExchangeContract:  cfg.Venue.ExchangeContract,
		RequestsPerSecond: cfg.Venue.RateLimitRPS,
	}
	meta, err := venue.NewRESTClient(venueCfg, sugar)
	if err != nil {
		return err
	}

	sessions := make([]controller.Session, 0, len(accts))
	for _, a := range accts {
		sc := venueCfg
		sc.APIKey = a.APIKey
		sc.APISecret = a.APISecret
		sc.WalletPrivateKey = a.PrivateKey
		client, err := venue.NewRESTClient(sc, sugar)
		if err != nil {
			sugar.Errorw("session_init_failed", "account", a.Key, "error", err)
			continue
		}
		sessions = append(sessions, controller.Session{Name: a.Key, API: client})
	}
	if len(sessions) == 0 {
		return errors.New("no usable accounts")
	}

	// ---- Generator ----
	genCfg := orders.Config{
		Weights: orders.Weights{
			Limit:      cfg.Generator.LimitFactor,
			Market:     cfg.Generator.MarketFactor,
			StopMarket: cfg.Generator.StopMarketFactor,
			StopLimit:  cfg.Generator.StopLimitFactor,
		},
		TriggerPriceFactor: cfg.Generator.TriggerPriceFactor,
		LimitValidation:    cfg.Generator.LimitValidation,
		QuantityAlpha:      cfg.Generator.QuantityAlpha,
		QuantityBeta:       cfg.Generator.QuantityBeta,
		MarketSide:         orders.MarketSidePolicy(cfg.Generator.MarketOrderSide),
	}
	gen, err := orders.NewGenerator(genCfg, numfmt.NewSource(cfg.Trading.Seed))
	if err != nil {
		return err
	}

	// ---- Metrics & circuit breaker ----
	m := metrics.New(prometheus.DefaultRegisterer)
	trading := breaker.New(cfg.Resilience.TradingPause, util.RealClock{})
	trading.OnChange = func(enabled bool, reason string) {
		m.SetTradingEnabled(enabled)
		sugar.Infow("trading_state_changed", "enabled", enabled, "reason", reason)
	}

	// ---- Journal (optional) ----
	var journal storage.Journal = storage.NopJournal{}
	var history api.OrderHistory
	if cfg.JournalPath != "" {
		pj, err := storage.NewPebbleJournal(cfg.JournalPath)
		if err != nil {
			return err
		}
		defer pj.Close()
		journal, history = pj, pj
		sugar.Infow("journal_enabled", "path", cfg.JournalPath)
	}

	// ---- Streaming prices (optional) ----
	var prices *feed.PriceBook
	if cfg.Trading.PriceSource == string(controller.PriceStream) {
		prices = feed.NewPriceBook()
		fc, err := feed.NewClient(feed.Config{
			Endpoint: cfg.Venue.WSS,
			Markets:  cfg.Trading.Markets,
			Weights: feed.BlendWeights{
				Bid:   cfg.Feed.BestBidWeight,
				Ask:   cfg.Feed.BestAskWeight,
				Index: cfg.Feed.IndexPriceWeight,
			},
			MaxReconnects: cfg.Feed.MaxReconnects,
		}, prices, sugar)
		if err != nil {
			return err
		}
		go func() {
			// the loop keeps trading on REST prices once the feed is gone
			if err := fc.Run(ctx); err != nil && ctx.Err() == nil {
				sugar.Errorw("feed_stopped", "error", err)
			}
		}()
	}

	// ---- Controller ----
	side, err := venue.ParseSide(cfg.Trading.Side)
	if err != nil {
		return err
	}
	overrides := make(map[string]controller.MarketOverride, len(cfg.Trading.Overrides))
	for id, o := range cfg.Trading.Overrides {
		overrides[id] = controller.MarketOverride{PriceIncrement: o.PriceIncrement, Iterations: o.Iterations}
	}
	ctrlCfg := controller.Config{
		Markets:        cfg.Trading.Markets,
		PriceIncrement: cfg.Trading.PriceIncrement,
		Iterations:     cfg.Trading.Iterations,
		Overrides:      overrides,
		OpenOrders:     cfg.Trading.OpenOrders,
		CancelScope:    controller.CancelScope(cfg.Trading.CancelScope),
		InitialSide:    side,
		Cooldowns: controller.Cooldowns{
			Order:          cfg.Cooldown.PerOrder,
			Market:         cfg.Cooldown.PerMarket,
			Account:        cfg.Cooldown.PerAccount,
			OrderEnabled:   cfg.Cooldown.OrderEnabled,
			MarketEnabled:  cfg.Cooldown.MarketEnabled,
			AccountEnabled: cfg.Cooldown.AccountEnabled,
		},
		Strategy: controller.Strategy{
			Evaluator: evaluator.Config{
				WeightBand:             cfg.Evaluator.WeightBand,
				LiquidityBand:          cfg.Evaluator.LiquidityBand,
				MinLiquidityNotional:   cfg.Evaluator.MinLiquidityNotional,
				MinBookDepth:           cfg.Evaluator.MinBookDepth,
				BidBias:                cfg.Evaluator.BidBias,
				AskBias:                cfg.Evaluator.AskBias,
				MaxDeviation:           cfg.Evaluator.MaxDeviation,
				PositionCheck:          cfg.Evaluator.PositionCheck,
				PositionReduceFraction: cfg.Evaluator.PositionReduceFraction,
				PositionGrowFraction:   cfg.Evaluator.PositionGrowFraction,
			},
			PriceSource: controller.PriceSource(cfg.Trading.PriceSource),
			StaleAfter:  cfg.Feed.StaleAfter,
			Ladder:      cfg.Trading.Ladder,
		},
		RetryAttempts:     cfg.Resilience.RetryAttempts,
		RetryDelay:        cfg.Resilience.RetryDelay,
		FetchBackoff:      cfg.Resilience.FetchBackoff,
		MarketsBackoff:    cfg.Resilience.MarketsBackoff,
		FetchLimit:        cfg.Resilience.OrderBookLimit,
		InitializeCancels: cfg.Trading.InitializeCancels,
	}

	deps := controller.Deps{
		Metadata:  meta,
		Sessions:  sessions,
		Generator: gen,
		Breaker:   trading,
		Prices:    prices,
		Journal:   journal,
		Metrics:   m,
		Log:       sugar,
	}

	// ---- Operator API (optional) ----
	var server *api.Server
	if cfg.OpsAddr != "" {
		server = api.NewServer(api.Options{
			Breaker:  trading,
			History:  history,
			Gatherer: prometheus.DefaultGatherer,
			Log:      sugar,
		})
		deps.Events = server.Hub()
	}

	ctrl, err := controller.New(ctrlCfg, deps)
	if err != nil {
		return err
	}

	if server != nil {
		srv := server
		srv.SetStatusSource(ctrl)
		go func() {
			if err := srv.Start(ctx, cfg.OpsAddr); err != nil {
				sugar.Errorw("api_server_failed", "error", err)
			}
		}()
	}

	sugar.Infow("bot_starting",
		"accounts", len(sessions),
		"markets", cfg.Trading.Markets,
		"execute_orders", cfg.Trading.ExecuteOrders,
		"initialize_cancels", cfg.Trading.InitializeCancels,
		"price_source", cfg.Trading.PriceSource)

	if !cfg.Trading.ExecuteOrders {
		if cfg.Trading.InitializeCancels {
			ctrl.CancelAll(ctx)
		}
		sugar.Info("execute_orders_disabled")
		return nil
	}
	return ctrl.Run(ctx)
}
