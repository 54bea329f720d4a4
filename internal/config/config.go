// Package config loads homestore configuration from an optional YAML file,
// a .env file and HOMESTORE_* environment variables, in that order of
// increasing precedence, and validates the result against a CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/homestore/internal/compaction"
)

//go:embed schema.cue
var schemaCUE string

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HOMESTORE_"

// DefaultTestMarkerEnv is the variable whose presence selects the
// ephemeral test store.
const DefaultTestMarkerEnv = "HOMESTORE_TEST_HARNESS"

// Config is the complete homestore configuration.
type Config struct {
	// DataDir is the shared container directory. Empty means the platform's
	// user config directory.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// StoreDirName is the directory inside DataDir holding the store files.
	StoreDirName string `yaml:"store_dir_name" json:"store_dir_name"`

	// StoreFile is the live store's file name.
	StoreFile string `yaml:"store_file" json:"store_file"`

	// BackupFile is the backup snapshot's file name.
	BackupFile string `yaml:"backup_file" json:"backup_file"`

	Compaction compaction.Policy `yaml:"compaction" json:"compaction"`

	Log LogConfig `yaml:"log" json:"log"`

	// TestMarkerEnv names the environment variable that marks a test harness.
	TestMarkerEnv string `yaml:"test_marker_env" json:"test_marker_env"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		StoreDirName:  "dataStore",
		StoreFile:     "store.db",
		BackupFile:    "backup.db",
		Compaction:    compaction.DefaultPolicy(),
		Log:           LogConfig{Level: "info", Format: "text"},
		TestMarkerEnv: DefaultTestMarkerEnv,
	}
}

// Load builds a Config: defaults, then the YAML file at path (skipped when
// path is empty), then environment overrides. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := cfg.decodeYAML(f); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadEnvFile loads variables from a .env file into the process
// environment without overriding variables already set. A missing file is
// not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("no .env file", "path", path)
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) decodeYAML(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// ApplyEnv overlays HOMESTORE_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	str("DATA_DIR", &c.DataDir)
	str("STORE_DIR_NAME", &c.StoreDirName)
	str("STORE_FILE", &c.StoreFile)
	str("BACKUP_FILE", &c.BackupFile)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("TEST_MARKER_ENV", &c.TestMarkerEnv)

	if v, ok := lookup(EnvPrefix + "COMPACTION_THRESHOLD_BYTES"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%sCOMPACTION_THRESHOLD_BYTES: %w", EnvPrefix, err)
		}
		c.Compaction.ThresholdBytes = n
	}
	if v, ok := lookup(EnvPrefix + "COMPACTION_UTILIZATION_FLOOR"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%sCOMPACTION_UTILIZATION_FLOOR: %w", EnvPrefix, err)
		}
		c.Compaction.UtilizationFloor = f
	}
	return nil
}

// Validate unifies the configuration with the embedded #Config schema.
func (c Config) Validate() error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	val := ctx.CompileBytes(data, cue.Filename("config.json"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	if err := def.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.StoreFile == c.BackupFile {
		return fmt.Errorf("invalid config: store_file and backup_file are both %q", c.StoreFile)
	}
	return nil
}

// StoreDir returns DataDir/StoreDirName.
func (c Config) StoreDir() string {
	return filepath.Join(c.DataDir, c.StoreDirName)
}

// LogLevel maps Log.Level onto slog. Unknown levels mean Info.
func (c Config) LogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// WriteYAML writes the configuration as YAML.
func (c Config) WriteYAML(w io.Writer) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}
