package params

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Venue is the exchange connection and the market-metadata wallet.
type Venue struct {
	BaseURL          string
	WSS              string
	ChainID          int64
	Sandbox          bool
	ExchangeContract string
	APIKey           string
	APISecret        string
	WalletPrivateKey string
	RateLimitRPS     float64
}

// Market is a per-market override read from PRICE_INCREMENT_<BASE>_<QUOTE>
// and ITERATIONS_<BASE>_<QUOTE>. Zero fields inherit the global values.
type Market struct {
	PriceIncrement decimal.Decimal
	Iterations     int
}

type Trading struct {
	Markets        []string
	PriceIncrement decimal.Decimal
	Iterations     int
	Overrides      map[string]Market
	OpenOrders     int
	CancelScope    string
	Side           string
	Ladder         bool
	PriceSource    string

	ExecuteOrders     bool
	InitializeCancels bool
	Seed              int64
}

type Cooldown struct {
	Enabled        bool
	PerOrder       time.Duration
	PerMarket      time.Duration
	PerAccount     time.Duration
	OrderEnabled   bool
	MarketEnabled  bool
	AccountEnabled bool
}

// Generator holds the order mix and sizing factors.
type Generator struct {
	LimitFactor        int
	MarketFactor       int
	StopMarketFactor   int
	StopLimitFactor    int
	TriggerPriceFactor float64
	LimitValidation    float64
	QuantityAlpha      float64
	QuantityBeta       int
	MarketOrderSide    string
}

type Evaluator struct {
	WeightBand             float64
	LiquidityBand          float64
	MinLiquidityNotional   float64
	MinBookDepth           int
	BidBias                float64
	AskBias                float64
	MaxDeviation           float64
	PositionCheck          bool
	PositionReduceFraction float64
	PositionGrowFraction   float64
}

type Feed struct {
	BestBidWeight    float64
	BestAskWeight    float64
	IndexPriceWeight float64
	StaleAfter       time.Duration
	MaxReconnects    int
}

// Resilience covers retries, backoffs and the trading pause.
type Resilience struct {
	TradingPause   time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
	FetchBackoff   time.Duration
	MarketsBackoff time.Duration
	OrderBookLimit int
}

type Logging struct {
	Level    string
	File     string
	Save     bool
	Disabled bool
}

type Config struct {
	Venue        Venue
	AccountsFile string
	Trading      Trading
	Cooldown     Cooldown
	Generator    Generator
	Evaluator    Evaluator
	Feed         Feed
	Resilience   Resilience
	Logging      Logging
	OpsAddr      string
	JournalPath  string
}

func Default() Config {
	return Config{
		Venue: Venue{
			RateLimitRPS: 10,
		},
		AccountsFile: ".env.ACCOUNTS",
		Trading: Trading{
			PriceIncrement:    decimal.Zero,
			Iterations:        1,
			Overrides:         map[string]Market{},
			OpenOrders:        200,
			CancelScope:       "all",
			Side:              "buy",
			Ladder:            true,
			PriceSource:       "poll",
			ExecuteOrders:     true,
			InitializeCancels: false,
		},
		Generator: Generator{
			LimitFactor:        90,
			MarketFactor:       3,
			StopMarketFactor:   3,
			StopLimitFactor:    3,
			TriggerPriceFactor: 0.01,
			LimitValidation:    0.4,
			QuantityAlpha:      1,
			QuantityBeta:       3,
			MarketOrderSide:    "opposite",
		},
		Evaluator: Evaluator{
			WeightBand:             0.02,
			LiquidityBand:          0.05,
			BidBias:                0.95,
			AskBias:                1.05,
			MaxDeviation:           0.05,
			PositionReduceFraction: 0.5,
			PositionGrowFraction:   0.1,
		},
		Feed: Feed{
			BestBidWeight:    0.25,
			BestAskWeight:    0.25,
			IndexPriceWeight: 0.5,
			StaleAfter:       10 * time.Second,
			MaxReconnects:    1000,
		},
		Resilience: Resilience{
			TradingPause:   180 * time.Second,
			RetryAttempts:  5,
			RetryDelay:     time.Second,
			FetchBackoff:   2 * time.Second,
			MarketsBackoff: 5 * time.Second,
			OrderBookLimit: 1000,
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if it exists) and the
// environment. Priority: ENV > .env file > defaults. Malformed values are
// reported together in the returned error.
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	// The .env file is optional.
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}
	if extra := os.Getenv("ENV_FILE"); extra != "" {
		_ = godotenv.Load(extra)
	}

	var r reader

	cfg.Venue.BaseURL = getEnv("BASE_URL", cfg.Venue.BaseURL)
	cfg.Venue.WSS = getEnv("WSS", cfg.Venue.WSS)
	cfg.Venue.ChainID = r.int64("CHAIN_ID", cfg.Venue.ChainID)
	cfg.Venue.Sandbox = r.bool("SANDBOX", cfg.Venue.Sandbox)
	cfg.Venue.ExchangeContract = getEnv("EXCHANGE_CONTRACT", cfg.Venue.ExchangeContract)
	cfg.Venue.APIKey = getEnv("API_KEY", cfg.Venue.APIKey)
	cfg.Venue.APISecret = getEnv("API_SECRET", cfg.Venue.APISecret)
	cfg.Venue.WalletPrivateKey = getEnv("WALLET_PRIVATE_KEY", cfg.Venue.WalletPrivateKey)
	cfg.Venue.RateLimitRPS = r.float("RATE_LIMIT_RPS", cfg.Venue.RateLimitRPS)
	cfg.AccountsFile = getEnv("ACCOUNTS_FILE", cfg.AccountsFile)

	t := &cfg.Trading
	// market IDs are canonical upper case, as the venue and feed report them
	t.Markets = splitList(strings.ToUpper(os.Getenv("MARKETS")))
	t.PriceIncrement = r.decimal("PRICE_INCREMENT", t.PriceIncrement)
	t.Iterations = r.int("ITERATIONS", t.Iterations)
	t.OpenOrders = r.int("OPEN_ORDERS", t.OpenOrders)
	t.CancelScope = strings.ToLower(getEnv("CANCEL_SCOPE", t.CancelScope))
	t.Side = strings.ToLower(getEnv("SIDE", t.Side))
	t.Ladder = r.bool("LADDER", t.Ladder)
	t.PriceSource = strings.ToLower(getEnv("PRICE_SOURCE", t.PriceSource))
	t.ExecuteOrders = r.bool("EXECUTE_ORDERS", t.ExecuteOrders)
	t.InitializeCancels = r.bool("INITIALIZE_CANCELS", t.InitializeCancels)
	t.Seed = r.int64("SEED", t.Seed)
	for _, m := range t.Markets {
		suffix := marketEnvSuffix(m)
		var o Market
		o.PriceIncrement = r.decimal("PRICE_INCREMENT_"+suffix, decimal.Zero)
		o.Iterations = r.int("ITERATIONS_"+suffix, 0)
		if !o.PriceIncrement.IsZero() || o.Iterations != 0 {
			t.Overrides[strings.ToUpper(m)] = o
		}
	}

	c := &cfg.Cooldown
	c.Enabled = r.bool("COOLDOWN", c.Enabled)
	c.PerOrder = r.seconds("COOLDOWN_PER_ORDER", c.PerOrder)
	c.PerMarket = r.seconds("COOLDOWN_PER_MARKET", c.PerMarket)
	c.PerAccount = r.seconds("COOLDOWN_PER_ACCOUNT", c.PerAccount)
	// Without explicit toggles COOLDOWN enables every configured sleep.
	c.OrderEnabled = r.bool("COOLDOWN_ORDER_ENABLED", c.Enabled && c.PerOrder > 0)
	c.MarketEnabled = r.bool("COOLDOWN_MARKET_ENABLED", c.Enabled && c.PerMarket > 0)
	c.AccountEnabled = r.bool("COOLDOWN_ACCOUNT_ENABLED", c.Enabled && c.PerAccount > 0)

	g := &cfg.Generator
	g.LimitFactor = r.int("LIMIT_ORDER_FACTOR", g.LimitFactor)
	g.MarketFactor = r.int("MARKET_ORDER_FACTOR", g.MarketFactor)
	g.StopMarketFactor = r.int("STOP_MARKET_ORDER_FACTOR", g.StopMarketFactor)
	g.StopLimitFactor = r.int("STOP_LIMIT_ORDER_FACTOR", g.StopLimitFactor)
	g.TriggerPriceFactor = r.float("TRIGGER_PRICE_FACTOR", g.TriggerPriceFactor)
	g.LimitValidation = r.float("LIMIT_ORDER_VALIDATION", g.LimitValidation)
	g.QuantityAlpha = r.float("QUANTITY_ALPHA_FACTOR", g.QuantityAlpha)
	g.QuantityBeta = r.int("QUANTITY_BETA_FACTOR", g.QuantityBeta)
	g.MarketOrderSide = strings.ToLower(getEnv("MARKET_ORDER_SIDE", g.MarketOrderSide))

	e := &cfg.Evaluator
	e.WeightBand = r.float("WEIGHT_BAND", e.WeightBand)
	e.LiquidityBand = r.float("LIQUIDITY_BAND", e.LiquidityBand)
	e.MinLiquidityNotional = r.float("MIN_LIQUIDITY_NOTIONAL", e.MinLiquidityNotional)
	e.MinBookDepth = r.int("MIN_BOOK_DEPTH", e.MinBookDepth)
	e.BidBias = r.float("BID_BIAS", e.BidBias)
	e.AskBias = r.float("ASK_BIAS", e.AskBias)
	e.MaxDeviation = r.float("MAX_DEVIATION", e.MaxDeviation)
	e.PositionCheck = r.bool("POSITION_CHECK", e.PositionCheck)
	e.PositionReduceFraction = r.float("POSITION_REDUCE_FRACTION", e.PositionReduceFraction)
	e.PositionGrowFraction = r.float("POSITION_GROW_FRACTION", e.PositionGrowFraction)

	f := &cfg.Feed
	f.BestBidWeight = r.float("BEST_BID_WEIGHT", f.BestBidWeight)
	f.BestAskWeight = r.float("BEST_ASK_WEIGHT", f.BestAskWeight)
	f.IndexPriceWeight = r.float("INDEX_PRICE_WEIGHT", f.IndexPriceWeight)
	f.StaleAfter = r.millis("FEED_STALE_AFTER_MS", f.StaleAfter)
	f.MaxReconnects = r.int("WS_MAX_RECONNECTS", f.MaxReconnects)

	res := &cfg.Resilience
	res.TradingPause = r.millis("TRADING_PAUSE_MS", res.TradingPause)
	res.RetryAttempts = r.int("RETRY_ATTEMPTS", res.RetryAttempts)
	res.RetryDelay = r.millis("RETRY_DELAY_MS", res.RetryDelay)
	res.FetchBackoff = r.millis("FETCH_BACKOFF_MS", res.FetchBackoff)
	res.MarketsBackoff = r.millis("MARKETS_BACKOFF_MS", res.MarketsBackoff)
	res.OrderBookLimit = r.int("ORDER_BOOK_LIMIT", res.OrderBookLimit)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.File = getEnv("LOG_FILE", cfg.Logging.File)
	cfg.Logging.Save = r.bool("SAVE_LOGS", cfg.Logging.Save)
	cfg.Logging.Disabled = strings.EqualFold(os.Getenv("LOGGING"), "disable")

	cfg.OpsAddr = getEnv("OPS_ADDR", cfg.OpsAddr)
	cfg.JournalPath = getEnv("JOURNAL_PATH", cfg.JournalPath)

	return cfg, errors.Join(r.errs...)
}

// Validate reports every missing or out-of-range setting at once.
func (c Config) Validate() error {
	var errs []error
	required := map[string]string{
		"BASE_URL":           c.Venue.BaseURL,
		"EXCHANGE_CONTRACT":  c.Venue.ExchangeContract,
		"API_KEY":            c.Venue.APIKey,
		"API_SECRET":         c.Venue.APISecret,
		"WALLET_PRIVATE_KEY": c.Venue.WalletPrivateKey,
	}
	for _, key := range []string{"BASE_URL", "EXCHANGE_CONTRACT", "API_KEY", "API_SECRET", "WALLET_PRIVATE_KEY"} {
		if required[key] == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}
	if c.Venue.ChainID <= 0 {
		errs = append(errs, errors.New("CHAIN_ID is required"))
	}
	if len(c.Trading.Markets) == 0 {
		errs = append(errs, errors.New("MARKETS is required"))
	}
	if c.Trading.PriceSource == "stream" && c.Venue.WSS == "" {
		errs = append(errs, errors.New("WSS is required when PRICE_SOURCE=stream"))
	}
	if c.Trading.Iterations < 1 {
		errs = append(errs, fmt.Errorf("ITERATIONS must be at least 1, got %d", c.Trading.Iterations))
	}
	if c.Trading.OpenOrders < 1 {
		errs = append(errs, fmt.Errorf("OPEN_ORDERS must be at least 1, got %d", c.Trading.OpenOrders))
	}
	if c.Trading.PriceIncrement.IsNegative() {
		errs = append(errs, errors.New("PRICE_INCREMENT must not be negative"))
	}
	if !oneOf(c.Trading.CancelScope, "all", "market") {
		errs = append(errs, fmt.Errorf("CANCEL_SCOPE must be all or market, got %q", c.Trading.CancelScope))
	}
	if !oneOf(c.Trading.Side, "buy", "sell") {
		errs = append(errs, fmt.Errorf("SIDE must be buy or sell, got %q", c.Trading.Side))
	}
	if !oneOf(c.Trading.PriceSource, "poll", "stream") {
		errs = append(errs, fmt.Errorf("PRICE_SOURCE must be poll or stream, got %q", c.Trading.PriceSource))
	}
	if !oneOf(c.Generator.MarketOrderSide, "opposite", "same") {
		errs = append(errs, fmt.Errorf("MARKET_ORDER_SIDE must be opposite or same, got %q", c.Generator.MarketOrderSide))
	}
	if c.Resilience.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("RETRY_ATTEMPTS must be at least 1, got %d", c.Resilience.RetryAttempts))
	}
	if c.Resilience.OrderBookLimit < 1 {
		errs = append(errs, fmt.Errorf("ORDER_BOOK_LIMIT must be at least 1, got %d", c.Resilience.OrderBookLimit))
	}
	return errors.Join(errs...)
}

// marketEnvSuffix maps "ETH-USD" to "ETH_USD".
func marketEnvSuffix(market string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(market), "-", "_"))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// reader parses typed values and collects every parse failure.
type reader struct {
	errs []error
}

func (r *reader) fail(key, value string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s=%q: %w", key, value, err))
}

func (r *reader) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return n
}

func (r *reader) int64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return f
}

func (r *reader) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return b
}

func (r *reader) decimal(key string, def decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return d
}

func (r *reader) seconds(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return time.Duration(f * float64(time.Second))
}

func (r *reader) millis(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	ms, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
