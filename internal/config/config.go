package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"
)

// Database describes one named connection target.
type Database struct {
	Name    string `yaml:"name" validate:"required"`
	Dialect string `yaml:"dialect" validate:"required,oneof=postgres postgresql pgx sqlite sqlite3"`
	// native runs batches over pgxpool, stdlib over database/sql.
	// Ignored for sqlite.
	Driver string `yaml:"driver" validate:"omitempty,oneof=native stdlib"`
	DSN    string `yaml:"dsn" validate:"required"`
	// Lower Order wins: it becomes the default database and is
	// reconciled first.
	Order    int  `yaml:"order"`
	Readable bool `yaml:"readable"`
	Writable bool `yaml:"writable"`
	Update   bool `yaml:"update"`
	Audit    bool `yaml:"audit"`
}

// UnmarshalYAML keeps readable, writable and update on unless the file
// says otherwise.
func (d *Database) UnmarshalYAML(n *yaml.Node) error {
	type plain Database
	p := plain{Readable: true, Writable: true, Update: true}
	if err := n.Decode(&p); err != nil {
		return err
	}
	*d = Database(p)
	return nil
}

type Log struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" validate:"required,oneof=trace debug info warn error off"`
	Format string `yaml:"format" env:"LOG_FORMAT" validate:"required,oneof=text json"`
}

type Config struct {
	Databases []Database `yaml:"databases" validate:"required,min=1,unique=Name,dive"`
	Log       Log        `yaml:"log"`
}

// env-only knobs; DSNs stay out of files when they carry passwords
type overrides struct {
	Log Log
	DSN map[string]string `env:"DSN" envSeparator:";"`
}

func def() Config {
	return Config{Log: Log{Level: "info", Format: "text"}}
}

// Load reads path (when non-empty), applies GRAPHORM_* environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := def()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	ov := overrides{Log: cfg.Log}
	if err := env.ParseWithOptions(&ov, env.Options{Prefix: "GRAPHORM_"}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	cfg.Log = ov.Log
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))

	for name, dsn := range ov.DSN {
		found := false
		for i := range cfg.Databases {
			if strings.EqualFold(cfg.Databases[i].Name, name) {
				cfg.Databases[i].DSN = strings.TrimSpace(dsn)
				found = true
			}
		}
		if !found {
			return fmt.Errorf("GRAPHORM_DSN: unknown database %q", name)
		}
	}
	return nil
}

// Validate checks field constraints and unique database names.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Ordered returns the databases sorted by Order, then Name.
func (c *Config) Ordered() []Database {
	out := append([]Database(nil), c.Databases...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// NewLogger builds the root logger.
func (l Log) NewLogger(name string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(l.Level),
		JSONFormat: l.Format == "json",
		Output:     os.Stderr,
	})
}
