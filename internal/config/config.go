package config

import (
	"net"
	"strconv"
	"time"
)

// Config represents the complete cindex configuration.
// It can be loaded from .cindex/config.yml with environment variable overrides.
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Paths    PathsConfig    `yaml:"paths" mapstructure:"paths"`
	Analyzer AnalyzerConfig `yaml:"analyzer" mapstructure:"analyzer"`
	Indexer  IndexerConfig  `yaml:"indexer" mapstructure:"indexer"`
	Watcher  WatcherConfig  `yaml:"watcher" mapstructure:"watcher"`
	Snapshot SnapshotConfig `yaml:"snapshot" mapstructure:"snapshot"`
	Verbose  bool           `yaml:"verbose" mapstructure:"verbose"`
}

// ServerConfig configures the line-protocol server.
type ServerConfig struct {
	Host        string `yaml:"host" mapstructure:"host"`
	Port        int    `yaml:"port" mapstructure:"port"`                 // 0 binds an ephemeral port
	CallContent bool   `yaml:"call_content" mapstructure:"call_content"` // append ":content" to CALLS lines
}

// PathsConfig defines which files to index and which to ignore.
type PathsConfig struct {
	Code   []string `yaml:"code" mapstructure:"code"`     // glob patterns for source files
	Ignore []string `yaml:"ignore" mapstructure:"ignore"` // glob patterns to ignore
}

// AnalyzerConfig splits extensions into implementation and declaration classes.
type AnalyzerConfig struct {
	SourceExtensions []string `yaml:"source_extensions" mapstructure:"source_extensions"`
	HeaderExtensions []string `yaml:"header_extensions" mapstructure:"header_extensions"`
}

// IndexerConfig controls indexing jobs.
type IndexerConfig struct {
	Workers int  `yaml:"workers" mapstructure:"workers"`
	Watch   bool `yaml:"watch" mapstructure:"watch"` // watch indexed roots for changes
}

// WatcherConfig controls the directory watcher.
type WatcherConfig struct {
	DebounceMs int `yaml:"debounce_ms" mapstructure:"debounce_ms"`
}

// SnapshotConfig controls index persistence. An empty path disables it.
type SnapshotConfig struct {
	Path    string `yaml:"path" mapstructure:"path"`
	Backend string `yaml:"backend" mapstructure:"backend"` // "text" or "sqlite"
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 10000,
		},
		Paths: PathsConfig{
			Code: []string{
				"**/*.c",
				"**/*.cpp",
				"**/*.h",
				"**/*.hpp",
			},
			Ignore: []string{
				".git/**",
				"build/**",
				"node_modules/**",
				"vendor/**",
				"third_party/**",
			},
		},
		Analyzer: AnalyzerConfig{
			SourceExtensions: []string{".c", ".cpp"},
			HeaderExtensions: []string{".h", ".hpp"},
		},
		Indexer: IndexerConfig{
			Workers: 4,
			Watch:   true,
		},
		Watcher: WatcherConfig{
			DebounceMs: 200,
		},
		Snapshot: SnapshotConfig{
			Path:    "",
			Backend: BackendText,
		},
	}
}

// Addr returns the host:port the server binds.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Extensions returns every analyzed extension, sources first.
func (a AnalyzerConfig) Extensions() []string {
	exts := make([]string, 0, len(a.SourceExtensions)+len(a.HeaderExtensions))
	exts = append(exts, a.SourceExtensions...)
	return append(exts, a.HeaderExtensions...)
}

// Debounce returns the debounce window as a duration.
func (w WatcherConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMs) * time.Millisecond
}
