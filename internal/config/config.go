// Package config loads the ledger service configuration from YAML, an
// optional .env file and environment overrides, in that order.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/slimefarm/ledger-engine/internal/account"
	"github.com/slimefarm/ledger-engine/internal/engine"
	"github.com/slimefarm/ledger-engine/internal/fault"
	"github.com/slimefarm/ledger-engine/internal/model"
	"github.com/slimefarm/ledger-engine/internal/units"
)

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Chain     ChainConfig     `yaml:"chain"`
	Token     TokenConfig     `yaml:"token"`
	Tax       TaxConfig       `yaml:"tax"`
	Antibot   AntibotConfig   `yaml:"antibot"`
	Positions PositionsConfig `yaml:"positions"`
	Owners    []string        `yaml:"owners"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port             string  `yaml:"port"`
	RateLimit        float64 `yaml:"rate_limit"` // requests per second per client; 0 disables
	Burst            int     `yaml:"burst"`
	DisableWebSocket bool    `yaml:"disable_websocket"`
}

// StorageConfig selects the state store: Postgres if DatabaseURL is set
// (optionally fronted by Redis), else SQLite if SQLitePath is set, else
// memory.
type StorageConfig struct {
	DatabaseURL string        `yaml:"database_url"`
	RedisURL    string        `yaml:"redis_url"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	SQLitePath  string        `yaml:"sqlite_path"`
}

// ChainConfig controls the block producer.
type ChainConfig struct {
	BlockInterval string `yaml:"block_interval"` // cron expression with seconds, e.g. "@every 3s"
}

// TokenConfig names the token and its system accounts. Amounts are token
// strings.
type TokenConfig struct {
	Name          string `yaml:"name"`
	Symbol        string `yaml:"symbol"`
	InitialSupply string `yaml:"initial_supply"`
	RewardFunding string `yaml:"reward_funding"`
	Deployer      string `yaml:"deployer"`
	Contract      string `yaml:"contract"`
	RewardPool    string `yaml:"reward_pool"`
	Escrow        string `yaml:"escrow"`
	Marketing     string `yaml:"marketing"`
	Pool          string `yaml:"pool"`
}

// DestinationConfig is one fee destination; weights are bps of the fee.
type DestinationConfig struct {
	Account   string `yaml:"account"`
	WeightBps uint32 `yaml:"weight_bps"`
}

// TaxConfig is the transfer tax. Unset rates take the defaults; set them
// to 0 explicitly to disable a fee.
type TaxConfig struct {
	BuyFeeBps        *uint32             `yaml:"buy_fee_bps"`
	SellFeeBps       *uint32             `yaml:"sell_fee_bps"`
	LaunchSellFeeBps *uint32             `yaml:"launch_sell_fee_bps"`
	LaunchWindow     time.Duration       `yaml:"launch_window"`
	Destinations     []DestinationConfig `yaml:"destinations"`
}

// AntibotConfig sizes the launch freeze.
type AntibotConfig struct {
	FreezeWindow uint64 `yaml:"freeze_window"` // blocks
}

// PositionsConfig holds the position tokenomics. Principal, price and
// thresholds are token strings; PresalePrice is base-currency base units.
type PositionsConfig struct {
	BasePrincipal        string   `yaml:"base_principal"`
	MintPrice            string   `yaml:"mint_price"`
	MaxSupply            int      `yaml:"max_supply"`
	MaxPerAddress        int      `yaml:"max_per_address"`
	LevelThresholds      []string `yaml:"level_thresholds"`
	APRBps               []uint32 `yaml:"apr_bps"`
	PresalePrice         string   `yaml:"presale_price"`
	PresaleMaxPerAddress int      `yaml:"presale_max_per_address"`
}

// LogConfig controls the format and level of logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | text
}

// Load reads path (a missing file is not an error), loads .env if
// present, then applies environment overrides and defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
			}
		}
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Storage.RedisURL = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("BLOCK_INTERVAL"); v != "" {
		cfg.Chain.BlockInterval = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func bps(v uint32) *uint32 { return &v }

func setDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.Burst <= 0 {
		cfg.Server.Burst = 20
	}
	if cfg.Storage.CacheTTL <= 0 {
		cfg.Storage.CacheTTL = 30 * time.Second
	}
	if cfg.Chain.BlockInterval == "" {
		cfg.Chain.BlockInterval = "@every 3s"
	}

	t := &cfg.Token
	if t.Name == "" {
		t.Name = "Slime"
	}
	if t.Symbol == "" {
		t.Symbol = "SLIME"
	}
	if t.InitialSupply == "" {
		t.InitialSupply = "1000000000"
	}
	if t.RewardFunding == "" {
		t.RewardFunding = "100000000"
	}
	for field, def := range map[*string]string{
		&t.Deployer:   "deployer",
		&t.Contract:   "contract",
		&t.RewardPool: "rewards",
		&t.Escrow:     "escrow",
		&t.Marketing:  "marketing",
		&t.Pool:       "pool",
	} {
		if *field == "" {
			*field = def
		}
	}

	if cfg.Tax.BuyFeeBps == nil {
		cfg.Tax.BuyFeeBps = bps(500)
	}
	if cfg.Tax.SellFeeBps == nil {
		cfg.Tax.SellFeeBps = bps(1000)
	}
	if cfg.Tax.LaunchSellFeeBps == nil {
		cfg.Tax.LaunchSellFeeBps = bps(2000)
	}
	if cfg.Tax.LaunchWindow == 0 {
		cfg.Tax.LaunchWindow = 24 * time.Hour
	}
	if len(cfg.Tax.Destinations) == 0 {
		cfg.Tax.Destinations = []DestinationConfig{
			{Account: t.RewardPool, WeightBps: 5000},
			{Account: t.Marketing, WeightBps: 3000},
			{Account: t.Contract, WeightBps: 2000},
		}
	}
	if cfg.Antibot.FreezeWindow == 0 {
		cfg.Antibot.FreezeWindow = 3
	}

	p := &cfg.Positions
	if p.BasePrincipal == "" {
		p.BasePrincipal = "10"
	}
	if p.MintPrice == "" {
		p.MintPrice = "10"
	}
	if p.MaxSupply == 0 {
		p.MaxSupply = 10000
	}
	if p.MaxPerAddress == 0 {
		p.MaxPerAddress = 100
	}
	if len(p.LevelThresholds) == 0 {
		for i := 1; i <= 10; i++ {
			p.LevelThresholds = append(p.LevelThresholds, fmt.Sprint(20*i))
		}
	}
	if len(p.APRBps) == 0 {
		for i := 0; i <= len(p.LevelThresholds); i++ {
			p.APRBps = append(p.APRBps, uint32(1000+200*i))
		}
	}
	if p.PresalePrice == "" {
		p.PresalePrice = "50000000000000000"
	}
	if p.PresaleMaxPerAddress == 0 {
		p.PresaleMaxPerAddress = 5
	}

	if len(cfg.Owners) == 0 {
		cfg.Owners = []string{t.Deployer}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// Tokenomics converts the configuration into the genesis of the engine
// and validates it.
func (c *Config) Tokenomics() (engine.Genesis, error) {
	var g engine.Genesis
	p := parser{}

	g.Deployer = p.account("token.deployer", c.Token.Deployer)
	g.System = model.SystemAccounts{
		Contract:   p.account("token.contract", c.Token.Contract),
		RewardPool: p.account("token.reward_pool", c.Token.RewardPool),
		Escrow:     p.account("token.escrow", c.Token.Escrow),
		Pool:       p.account("token.pool", c.Token.Pool),
	}
	g.InitialSupply = p.tokens("token.initial_supply", c.Token.InitialSupply)
	g.RewardFunding = p.tokens("token.reward_funding", c.Token.RewardFunding)
	for i, o := range c.Owners {
		g.Owners = append(g.Owners, p.account(fmt.Sprintf("owners[%d]", i), o))
	}

	g.Tax = model.TaxPolicy{
		BuyFeeBps:        deref(c.Tax.BuyFeeBps),
		SellFeeBps:       deref(c.Tax.SellFeeBps),
		LaunchSellFeeBps: deref(c.Tax.LaunchSellFeeBps),
		LaunchWindow:     int64(c.Tax.LaunchWindow / time.Second),
	}
	for i, d := range c.Tax.Destinations {
		g.Tax.Destinations = append(g.Tax.Destinations, model.FeeDestination{
			Account:   p.account(fmt.Sprintf("tax.destinations[%d]", i), d.Account),
			WeightBps: d.WeightBps,
		})
	}
	g.FreezeWindow = c.Antibot.FreezeWindow

	pc := c.Positions
	g.Params = model.PositionParams{
		BasePrincipal: p.tokens("positions.base_principal", pc.BasePrincipal),
		MintPrice:     p.tokens("positions.mint_price", pc.MintPrice),
		MaxSupply:     pc.MaxSupply,
		MaxPerAddress: pc.MaxPerAddress,
		APRBps:        append([]uint32(nil), pc.APRBps...),
	}
	for i, s := range pc.LevelThresholds {
		g.Params.Thresholds = append(g.Params.Thresholds, p.tokens(fmt.Sprintf("positions.level_thresholds[%d]", i), s))
	}
	g.PresalePrice = p.baseUnits("positions.presale_price", pc.PresalePrice)
	g.PresaleMaxPerAddress = pc.PresaleMaxPerAddress

	if len(p.errs) > 0 {
		return engine.Genesis{}, fmt.Errorf("%w: %s", fault.ErrInvalidPolicy, strings.Join(p.errs, "; "))
	}
	if _, err := engine.NewGenesisState(g); err != nil {
		return engine.Genesis{}, err
	}
	return g, nil
}

// parser collects field errors so every bad value is reported at once.
type parser struct {
	errs []string
}

func (p *parser) account(field, s string) account.Account {
	a, err := account.Parse(s)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s: %v", field, err))
	}
	return a
}

func (p *parser) tokens(field, s string) uint256.Int {
	v, err := units.ParseTokens(s)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s: %v", field, err))
	}
	return v
}

func (p *parser) baseUnits(field, s string) uint256.Int {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s: %q is not a base-unit integer", field, s))
		return uint256.Int{}
	}
	return *v
}

func deref(v *uint32) uint32 {
	if v == nil {
		return 0
	}
	return *v
}

// NewLogger builds the service logger.
func NewLogger(cfg LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}
