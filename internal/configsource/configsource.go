// Package configsource is the process-wide key/value configuration
// lookup §1 lists as an external collaborator: a read-only view over the
// logger.* and debug.* namespace (§6), loaded once from a YAML file.
//
// Defaulting follows the same mcuadros/go-defaults struct-tag idiom the
// teacher's test helpers use for option structs (internal/testhelpers),
// applied here to configuration instead of test options.
package configsource

import (
	"os"

	"github.com/mcuadros/go-defaults"
	"gopkg.in/yaml.v3"
)

// LoggerConfig is the logger.* namespace from §6.
type LoggerConfig struct {
	LogLevel            string `yaml:"log_level" default:"info"`
	LogDestination      string `yaml:"log_destination" default:"console"`
	LogFilePath         string `yaml:"log_file_path" default:"."`
	LogFileName         string `yaml:"log_file_name" default:"relay.log"`
	LogFileSize         int64  `yaml:"log_file_size" default:"10485760"`
	TimestampGranularity string `yaml:"timestamp_granularity" default:"millisecond"`
	AnsiColours         bool   `yaml:"ansi_colours" default:"true"`
	PurgeLogsOnRestart  bool   `yaml:"purge_logs_on_restart" default:"false"`
	// PerThread implements "logger.<thread_label>.log_file_name": any YAML
	// key under logger.* that isn't one of the fixed keys above is treated
	// as a thread label whose nested log_file_name overrides the default.
	PerThread map[string]struct {
		LogFileName string `yaml:"log_file_name"`
	} `yaml:",inline"`
}

// DebugConfig is the debug.* namespace from §6.
type DebugConfig struct {
	SuppressThreads string `yaml:"suppress_threads" default:""`
}

// Config is the root of the configuration file.
type Config struct {
	Logger LoggerConfig `yaml:"logger"`
	Debug  DebugConfig  `yaml:"debug"`
}

// Load reads and parses path, applying go-defaults struct tags for any
// field the file omits.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML bytes into a Config, applying defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PerLabelFileNames flattens the per-thread overrides into the
// map[string]string the sink package consumes directly.
func (c *Config) PerLabelFileNames() map[string]string {
	out := make(map[string]string, len(c.Logger.PerThread))
	for label, entry := range c.Logger.PerThread {
		if entry.LogFileName != "" {
			out[label] = entry.LogFileName
		}
	}
	return out
}
