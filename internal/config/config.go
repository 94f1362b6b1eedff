package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"stakedesk/internal/model"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Networks         []model.NetworkDescriptor
	DefaultChainID   int64
	ContractAddress  string
	WalletKind       string
	KeystoreDir      string
	KeystorePassword string
	BridgeURL        string
	StateDir         string
	PostgresDSN      string
	RefreshInterval  time.Duration
	ConnectTimeout   time.Duration
	ReadTimeout      time.Duration
	Development      bool
	DevAdmins        []string
	LogLevel         string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STAKEDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("wallet-kind", model.WalletKindKeystore)
	v.SetDefault("keystore-dir", "./data/keystore")
	v.SetDefault("state-dir", "./data/state")
	v.SetDefault("refresh-interval", 30*time.Second)
	v.SetDefault("connect-timeout", 45*time.Second)
	v.SetDefault("read-timeout", 8*time.Second)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var networks []model.NetworkDescriptor
	if v.IsSet("networks") {
		if err := v.UnmarshalKey("networks", &networks); err != nil {
			return Config{}, fmt.Errorf("parse networks: %w", err)
		}
	}
	for _, n := range networks {
		if err := n.Validate(); err != nil {
			return Config{}, fmt.Errorf("network %d: %w", n.ChainID, err)
		}
	}

	cfg := Config{
		Networks:         networks,
		DefaultChainID:   v.GetInt64("chain-id"),
		ContractAddress:  v.GetString("contract"),
		WalletKind:       v.GetString("wallet-kind"),
		KeystoreDir:      v.GetString("keystore-dir"),
		KeystorePassword: v.GetString("keystore-password"),
		BridgeURL:        v.GetString("bridge-url"),
		StateDir:         v.GetString("state-dir"),
		PostgresDSN:      v.GetString("postgres-dsn"),
		RefreshInterval:  v.GetDuration("refresh-interval"),
		ConnectTimeout:   v.GetDuration("connect-timeout"),
		ReadTimeout:      v.GetDuration("read-timeout"),
		Development:      v.GetBool("development"),
		DevAdmins:        getStringSlice(v, "dev-admins"),
		LogLevel:         v.GetString("log-level"),
	}

	if cfg.DefaultChainID == 0 && len(cfg.Networks) > 0 {
		cfg.DefaultChainID = cfg.Networks[0].ChainID
	}

	return cfg, nil
}

// Network looks up the configured descriptor for chainID.
func (c Config) Network(chainID int64) (model.NetworkDescriptor, bool) {
	for _, n := range c.Networks {
		if n.ChainID == chainID {
			return n, true
		}
	}
	return model.NetworkDescriptor{}, false
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
