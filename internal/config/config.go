package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variable overrides, e.g.
// PASSING_DATA_EXCHANGE_MESSAGE.
const EnvPrefix = "PASSING_DATA"

var validate = validator.New()

type Config struct {
	LogLevel string         `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	GuestDir string         `mapstructure:"guest_dir" validate:"required"`
	Wasm     WasmConfig     `mapstructure:"wasm"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
}

// WasmConfig holds Wasm runtime configuration.
type WasmConfig struct {
	// Memory limit per module (in pages, 64KB each).
	MemoryPages uint32 `mapstructure:"memory_pages" validate:"max=65536"`
	// Enable debug logging.
	Debug bool `mapstructure:"debug"`
	// Compilation cache directory. Empty keeps compiled code in memory.
	CacheDir string `mapstructure:"cache_dir"`
	// Maximum concurrent instances.
	MaxInstances int `mapstructure:"max_instances" validate:"min=0"`
	// Guest call timeout (seconds, 0 disables).
	ExecutionTimeout int `mapstructure:"execution_timeout" validate:"min=0"`
}

// ExchangeConfig describes the string handed to the guest.
type ExchangeConfig struct {
	Message string `mapstructure:"message"`
	// Send a trailing NUL byte with the message, as C string literals do.
	IncludeTerminator bool `mapstructure:"include_terminator"`
}

// Payload returns the bytes written into the guest buffer.
func (c ExchangeConfig) Payload() []byte {
	p := []byte(c.Message)
	if c.IncludeTerminator {
		p = append(p, 0)
	}
	return p
}

func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("guest_dir", "./guest")

	// Wasm defaults
	v.SetDefault("wasm.memory_pages", 256) // 16MB
	v.SetDefault("wasm.debug", false)
	v.SetDefault("wasm.cache_dir", "")
	v.SetDefault("wasm.max_instances", 100)
	v.SetDefault("wasm.execution_timeout", 30)

	// Exchange defaults
	v.SetDefault("exchange.message", "Hello there,")
	v.SetDefault("exchange.include_terminator", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
