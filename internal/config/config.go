package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`
	Wallet struct {
		Mnemonic        string `yaml:"mnemonic"`
		MerchantAddress string `yaml:"merchant_address"`
	} `yaml:"wallet"`
	Chain struct {
		APIBase               string `yaml:"api_base"`
		Token                 string `yaml:"token"`
		SocketEndpoint        string `yaml:"socket_endpoint"`
		RequiredConfirmations int64  `yaml:"required_confirmations"`
		FeeRatePerByte        int64  `yaml:"fee_rate_per_byte"`
	} `yaml:"chain"`
	Orders struct {
		Plans      map[string]string `yaml:"plans"`
		TTLMinutes int               `yaml:"ttl_minutes"`
	} `yaml:"orders"`
	Monitor struct {
		IntervalSeconds  int `yaml:"interval_seconds"`
		RequestGapMillis int `yaml:"request_gap_ms"`
	} `yaml:"monitor"`
	Pricing struct {
		APIBase     string `yaml:"api_base"`
		FallbackUSD string `yaml:"fallback_usd"`
	} `yaml:"pricing"`
	Notify struct {
		URL            string `yaml:"url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"notify"`
	Sweep struct {
		RequestGapMillis int `yaml:"request_gap_ms"`
	} `yaml:"sweep"`
	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if cfg.Server.Addr == "" {
		return nil, errors.New("server.addr is required")
	}
	if cfg.DB.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	if cfg.Chain.APIBase == "" {
		return nil, errors.New("chain.api_base is required")
	}
	if len(cfg.Orders.Plans) == 0 {
		return nil, errors.New("orders.plans is required")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Chain.RequiredConfirmations <= 0 {
		cfg.Chain.RequiredConfirmations = 2
	}
	if cfg.Chain.FeeRatePerByte <= 0 {
		cfg.Chain.FeeRatePerByte = 50
	}
	if cfg.Orders.TTLMinutes <= 0 {
		cfg.Orders.TTLMinutes = 30
	}
	if cfg.Monitor.IntervalSeconds <= 0 {
		cfg.Monitor.IntervalSeconds = 10
	}
	if cfg.Monitor.RequestGapMillis < 0 {
		cfg.Monitor.RequestGapMillis = 0
	}
	if cfg.Notify.TimeoutSeconds <= 0 {
		cfg.Notify.TimeoutSeconds = 30
	}
	if cfg.Sweep.RequestGapMillis <= 0 {
		cfg.Sweep.RequestGapMillis = 2000
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("HD_WALLET_MNEMONIC"); v != "" {
		cfg.Wallet.Mnemonic = v
	}
	if v := os.Getenv("MERCHANT_LTC_ADDRESS"); v != "" {
		cfg.Wallet.MerchantAddress = v
	}
	if v := os.Getenv("CHAIN_API_BASE"); v != "" {
		cfg.Chain.APIBase = v
	}
	if v := os.Getenv("BLOCKCYPHER_TOKEN"); v != "" {
		cfg.Chain.Token = v
	}
	if v := os.Getenv("CHAIN_SOCKET_ENDPOINT"); v != "" {
		cfg.Chain.SocketEndpoint = v
	}
	if v := os.Getenv("REQUIRED_CONFIRMATIONS"); v != "" {
		cfg.Chain.RequiredConfirmations = atoi64Or(cfg.Chain.RequiredConfirmations, v)
	}
	if v := os.Getenv("FEE_RATE_PER_BYTE"); v != "" {
		cfg.Chain.FeeRatePerByte = atoi64Or(cfg.Chain.FeeRatePerByte, v)
	}
	if v := os.Getenv("PAYMENT_TIMEOUT_MINUTES"); v != "" {
		cfg.Orders.TTLMinutes = atoiOr(cfg.Orders.TTLMinutes, v)
	}
	if v := os.Getenv("MONITOR_INTERVAL_SECONDS"); v != "" {
		cfg.Monitor.IntervalSeconds = atoiOr(cfg.Monitor.IntervalSeconds, v)
	}
	if v := os.Getenv("MONITOR_REQUEST_GAP_MS"); v != "" {
		cfg.Monitor.RequestGapMillis = atoiOr(cfg.Monitor.RequestGapMillis, v)
	}
	if v := os.Getenv("PRICING_API_BASE"); v != "" {
		cfg.Pricing.APIBase = v
	}
	if v := os.Getenv("PRICING_FALLBACK_USD"); v != "" {
		cfg.Pricing.FallbackUSD = v
	}
	if v := os.Getenv("MAIN_BACKEND_URL"); v != "" {
		cfg.Notify.URL = v
	}
	if v := os.Getenv("NOTIFY_TIMEOUT_SECONDS"); v != "" {
		cfg.Notify.TimeoutSeconds = atoiOr(cfg.Notify.TimeoutSeconds, v)
	}
	if v := os.Getenv("SWEEP_REQUEST_GAP_MS"); v != "" {
		cfg.Sweep.RequestGapMillis = atoiOr(cfg.Sweep.RequestGapMillis, v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func (c *Config) OrderTTL() time.Duration {
	return time.Duration(c.Orders.TTLMinutes) * time.Minute
}

func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Monitor.IntervalSeconds) * time.Second
}

func (c *Config) MonitorRequestGap() time.Duration {
	return time.Duration(c.Monitor.RequestGapMillis) * time.Millisecond
}

func (c *Config) SweepRequestGap() time.Duration {
	return time.Duration(c.Sweep.RequestGapMillis) * time.Millisecond
}

func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notify.TimeoutSeconds) * time.Second
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func atoi64Or(fallback int64, v string) int64 {
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
