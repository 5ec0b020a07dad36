package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the full application configuration. Values come from an
// optional TOML file with environment overrides on top; the zero-config
// case runs with the defaults below.
type Config struct {
	Riders   []string       `toml:"riders"`
	DataDir  string         `toml:"data_dir"`
	DBPath   string         `toml:"db_path"`
	Port     string         `toml:"port"`
	LogLevel string         `toml:"log_level"`
	LogFile  string         `toml:"log_file"`
	Extract  ExtractConfig  `toml:"extract"`
	Clipper  ClipperConfig  `toml:"clipper"`
	Schedule ScheduleConfig `toml:"schedule"`

	// Cards maps a card serial number to the rider who owns it, for
	// routing downloaded or batch-ingested PDFs.
	Cards map[string]string `toml:"cards"`
}

// ExtractConfig holds the PDF table boundaries. Rectangles are
// "left,top,right,bottom" in PDF points with the origin at bottom-left;
// the first page differs because of the account-summary header block.
type ExtractConfig struct {
	FirstPageArea  string `toml:"first_page_area"`
	OtherPagesArea string `toml:"other_pages_area"`
}

// ClipperConfig holds clippercard.com accounts for statement downloads.
type ClipperConfig struct {
	Accounts []ClipperAccount `toml:"accounts"`
}

// ClipperAccount is one clippercard.com login.
type ClipperAccount struct {
	Email    string `toml:"email"`
	Password string `toml:"password"`
}

// ScheduleConfig controls the monthly ingestion cron.
type ScheduleConfig struct {
	Enabled        bool   `toml:"enabled"`
	Spec           string `toml:"spec"`
	HealthcheckURL string `toml:"healthcheck_url"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Riders:   []string{"B", "K"},
		DataDir:  "./data",
		Port:     "8080",
		LogLevel: "info",
		Extract: ExtractConfig{
			FirstPageArea:  "0,500,800,100",
			OtherPagesArea: "0,550,800,90",
		},
		Schedule: ScheduleConfig{
			Spec: "0 2 2 * *", // 2nd of the month, 02:00
		},
		Cards: map[string]string{},
	}
}

// Load builds the configuration: defaults, then the TOML file at path (if
// any), then environment overrides. An empty path checks CLIPPERTV_CONFIG
// and falls back to clippertv.toml in the working directory; a missing
// default file is not an error, a missing explicit file is.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = os.Getenv("CLIPPERTV_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		path = "clippertv.toml"
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("decode config %s: %w", path, err)
		}
		if explicit {
			return cfg, fmt.Errorf("config file not found: %s", path)
		}
	}

	applyEnv(&cfg)

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "clippertv.db")
	}
	if len(cfg.Riders) == 0 {
		return cfg, fmt.Errorf("config: at least one rider is required")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CLIPPERTV_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("CLIPPERTV_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("CLIPPERTV_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// ArchiveDir is where statement PDFs are kept.
func (c Config) ArchiveDir() string {
	return filepath.Join(c.DataDir, "statements")
}

// RiderForCard resolves a card serial to its rider, if assigned.
// Serials compare by their digits, so spacing or dashes in the config
// file don't matter.
func (c Config) RiderForCard(serial string) (string, bool) {
	want := digits(serial)
	if want == "" {
		return "", false
	}
	for card, rider := range c.Cards {
		if digits(card) == want {
			return rider, true
		}
	}
	return "", false
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// HasRider reports whether id is a configured rider.
func (c Config) HasRider(id string) bool {
	for _, r := range c.Riders {
		if r == id {
			return true
		}
	}
	return false
}
