package config

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dripworks/dripper/internal/clients/assetindex"
	"github.com/dripworks/dripper/internal/clients/chain"
	"github.com/dripworks/dripper/internal/clients/store"
	"github.com/dripworks/dripper/pkg/alert"
	"github.com/dripworks/dripper/pkg/logger"
	"github.com/dripworks/dripper/pkg/logger/slogx"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	configOnce sync.Once
	config     = &Config{
		Logger: logger.Config{
			Output: "text",
		},
		LockDir: "/tmp",
		AssetIndex: assetindex.Config{
			PageLimit: assetindex.DefaultPageLimit,
		},
		Chain: chain.Config{
			Permission: "active",
		},
		Transfer: Transfer{
			BatchLimit: 10,
		},
		Tickets: Tickets{
			BatchLimit: 5,
		},
	}
)

type Config struct {
	Logger     logger.Config     `mapstructure:"logger"`
	Alert      alert.Config      `mapstructure:"alert"`
	LockDir    string            `mapstructure:"lock_dir"`
	AssetIndex assetindex.Config `mapstructure:"asset_index"`
	Store      store.Config      `mapstructure:"store"`
	DistStore  store.Config      `mapstructure:"dist_store"`
	Chain      chain.Config      `mapstructure:"chain"`
	Token      Token             `mapstructure:"token"`
	Rewards    Rewards           `mapstructure:"rewards"`
	Transfer   Transfer          `mapstructure:"transfer"`
	Tickets    Tickets           `mapstructure:"tickets"`
	Mirror     Mirror            `mapstructure:"mirror"`
}

// Token describes the drip token paid out by the transfer job.
type Token struct {
	Contract  string `mapstructure:"contract"`
	Symbol    string `mapstructure:"symbol"`
	Precision int32  `mapstructure:"precision"`
}

type Rewards struct {
	// CustodialAccounts hold staked assets on behalf of end users. Reward
	// eligibility for their assets resolves to the original depositor.
	CustodialAccounts []string `mapstructure:"custodial_accounts"`
}

type Transfer struct {
	BatchLimit   int      `mapstructure:"batch_limit"`
	SkipAccounts []string `mapstructure:"skip_accounts"`
}

type TicketChoice struct {
	TemplateID int64  `mapstructure:"template_id"`
	Weight     int    `mapstructure:"weight"`
	Name       string `mapstructure:"name"`
}

type Tickets struct {
	BatchLimit int            `mapstructure:"batch_limit"`
	Collection string         `mapstructure:"collection"`
	Schema     string         `mapstructure:"schema"`
	TemplateID int64          `mapstructure:"template_id"`
	SkipAssets []uint64       `mapstructure:"skip_assets"`
	Choices    []TicketChoice `mapstructure:"choices"`
}

type Mirror struct {
	TemplateID int64  `mapstructure:"template_id"`
	Table      string `mapstructure:"table"`
}

// BindPFlag binds a command-line flag to a configuration key.
func BindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		logger.Panic("failed to bind flag to config", slogx.Error(errors.WithStack(err)), slog.String("key", key))
	}
}

// Parse loads the configuration from the given file (or ./config.yaml if
// empty), with environment variable override.
func Parse(configFile string) Config {
	ctx := logger.WithContext(context.Background(), slog.String("package", "config"))
	configOnce.Do(func() {
		if configFile != "" {
			viper.SetConfigFile(configFile)
		} else {
			viper.AddConfigPath("./")
			viper.SetConfigName("config")
		}

		viper.AutomaticEnv()
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		if err := viper.ReadInConfig(); err != nil {
			var errNotfound viper.ConfigFileNotFoundError
			if errors.As(err, &errNotfound) {
				logger.WarnContext(ctx, "config file not found, use default value", slogx.Error(err))
			} else {
				logger.PanicContext(ctx, "invalid config file", slogx.Error(err))
			}
		}

		if err := viper.Unmarshal(&config); err != nil {
			logger.PanicContext(ctx, "failed to unmarshal config", slogx.Error(err))
		}
	})

	return *config
}

// Load returns the parsed configuration.
func Load() Config {
	return Parse("")
}
