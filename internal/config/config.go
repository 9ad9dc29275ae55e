package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment override; "__" separates nested keys,
// e.g. ACCEL_STORAGE__DRIVER=json.
const EnvPrefix = "ACCEL_"

// Config holds application configuration.
type Config struct {
	Env     string  `koanf:"env" validate:"required"`
	Server  Server  `koanf:"server"`
	Storage Storage `koanf:"storage"`
	Content Content `koanf:"content"`
	Sources Sources `koanf:"sources"`
	Log     Log     `koanf:"log"`
}

type Server struct {
	Addr            string        `koanf:"addr" validate:"required"`
	PublicDir       string        `koanf:"public_dir"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

type Storage struct {
	Driver     string `koanf:"driver" validate:"oneof=sqlite json"`
	DSN        string `koanf:"dsn" validate:"required_if=Driver sqlite"`
	RuntimeDir string `koanf:"runtime_dir" validate:"required_if=Driver json"`
}

type Content struct {
	StaticDir string `koanf:"static_dir" validate:"required"`
}

type Sources struct {
	ReposDir string `koanf:"repos_dir" validate:"required"`
	Prune    bool   `koanf:"prune"`
}

type Log struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
}

// IsProduction reports whether the app runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func defaults() map[string]any {
	return map[string]any{
		"env":                     "development",
		"server.addr":             "0.0.0.0:3000",
		"server.public_dir":       "public",
		"server.shutdown_timeout": "10s",
		"storage.driver":          "sqlite",
		"storage.dsn":             "accelerator.db",
		"storage.runtime_dir":     "data/runtime",
		"content.static_dir":      "data/static",
		"sources.repos_dir":       "repos",
		"sources.prune":           false,
		"log.level":               "info",
	}
}

// Flags returns the command-line flags that can override configuration.
// "config" names the optional YAML file; the others map onto config keys.
func Flags() *pflag.FlagSet {
	f := pflag.NewFlagSet("accelerator", pflag.ContinueOnError)
	f.String("config", "", "Path to a YAML configuration file")
	f.String("addr", "", "HTTP listen address")
	f.String("db", "", "Path to the SQLite database file")
	f.String("driver", "", "Storage driver: sqlite or json")
	f.String("static", "", "Directory with lesson, challenge and flashcard content")
	f.String("add-source", "", "Add a deck source (directory or git URL) and exit")
	f.Bool("sync", false, "Sync all deck sources and exit")
	return f
}

// flagKeys maps flag names onto configuration keys.
var flagKeys = map[string]string{
	"addr":   "server.addr",
	"db":     "storage.dsn",
	"driver": "storage.driver",
	"static": "content.static_dir",
}

// Load builds the configuration from defaults, the optional YAML file,
// environment variables and finally command-line flags.
func Load(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if path, _ := flags.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("error loading config file %s: %w", path, err)
			}
		}
	}

	// Plain PORT and NODE_ENV are honoured for existing deployments.
	if port := os.Getenv("PORT"); port != "" {
		if err := k.Set("server.addr", "0.0.0.0:"+port); err != nil {
			return nil, err
		}
	}
	if mode := os.Getenv("NODE_ENV"); mode != "" {
		if err := k.Set("env", mode); err != nil {
			return nil, err
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	err = k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok || !f.Changed {
			return "", nil
		}
		return key, posflag.FlagVal(flags, f)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("error loading flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
