package liveserver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LogLevel controls how chatty the server is
type LogLevel int

const (
	LogSilent LogLevel = iota
	LogErrors
	LogInfo
	LogDebug
)

var logLevelName = map[LogLevel]string{
	LogSilent: "silent",
	LogErrors: "errors",
	LogInfo:   "info",
	LogDebug:  "debug",
}

// ParseLogLevel accepts either a level name or its number (0-3)
func ParseLogLevel(s string) (LogLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		level := LogLevel(n)
		if _, ok := logLevelName[level]; !ok {
			return LogInfo, fmt.Errorf("liveserver: log level %d out of range 0-3", n)
		}
		return level, nil
	}
	for level, name := range logLevelName {
		if name == s {
			return level, nil
		}
	}
	return LogInfo, fmt.Errorf("liveserver: unknown log level %q", s)
}

func (level LogLevel) String() string {
	name, ok := logLevelName[level]
	if !ok {
		return fmt.Sprintf("LogLevel(%d)", int(level))
	}
	return name
}

// Set implements pflag.Value
func (level *LogLevel) Set(s string) error {
	l, err := ParseLogLevel(s)
	if err != nil {
		return err
	}
	*level = l
	return nil
}

// Type implements pflag.Value
func (level *LogLevel) Type() string {
	return "level"
}

// Slog returns the minimum slog level to emit. Silent returns a level above
// anything the server logs.
func (level LogLevel) Slog() slog.Level {
	switch level {
	case LogSilent:
		return slog.LevelError + 4
	case LogErrors:
		return slog.LevelError
	case LogDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// Config for the live server. It's read once by New and never mutated
// afterwards.
type Config struct {
	// Root directory to serve and watch
	Root string
	// Host to bind to
	Host string
	// Port to bind to, 0 picks a free port
	Port int
	// Open the browser once the server is listening
	Open bool
	// LogLevel for startup and runtime logs
	LogLevel LogLevel
	// Wait is the debounce window for file changes
	Wait time.Duration
	// Ignore are gitignore-style patterns, relative to Root, that don't
	// trigger a reload
	Ignore []string
	// File is served in place of missing paths, for single-page apps
	File string
	// NoListing disables directory listings
	NoListing bool
	// NoCSSInject reloads the page on stylesheet changes instead of swapping
	// the stylesheets in place
	NoCSSInject bool
	// ReloadPath is the endpoint the injected script connects to
	ReloadPath string
}

// DefaultConfig mirrors live-server's defaults
func DefaultConfig() Config {
	return Config{
		Root:       ".",
		Host:       "0.0.0.0",
		Port:       5000,
		LogLevel:   LogInfo,
		Wait:       100 * time.Millisecond,
		ReloadPath: "/livereload",
	}
}

// Validate the config and return a normalized copy with an absolute root
func (c Config) Validate() (Config, error) {
	if c.Root == "" {
		c.Root = "."
	}
	root, err := filepath.Abs(c.Root)
	if err != nil {
		return c, &ConfigError{"root", err}
	}
	stat, err := os.Stat(root)
	if err != nil {
		return c, &ConfigError{"root", err}
	}
	if !stat.IsDir() {
		return c, &ConfigError{"root", fmt.Errorf("%s is not a directory", root)}
	}
	dir, err := os.Open(root)
	if err != nil {
		return c, &ConfigError{"root", err}
	}
	_, err = dir.Readdirnames(1)
	dir.Close()
	if err != nil && !errors.Is(err, io.EOF) {
		return c, &ConfigError{"root", fmt.Errorf("%s is not readable: %w", root, err)}
	}
	c.Root = root
	if c.Port < 0 || c.Port > 65535 {
		return c, &ConfigError{"port", fmt.Errorf("%d is out of range 0-65535", c.Port)}
	}
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if _, ok := logLevelName[c.LogLevel]; !ok {
		return c, &ConfigError{"logLevel", fmt.Errorf("unknown level %d", int(c.LogLevel))}
	}
	if c.Wait < 0 {
		return c, &ConfigError{"wait", fmt.Errorf("%s must not be negative", c.Wait)}
	} else if c.Wait == 0 {
		c.Wait = 100 * time.Millisecond
	}
	if c.File != "" {
		file := c.File
		if !filepath.IsAbs(file) {
			file = filepath.Join(root, file)
		}
		rel, err := filepath.Rel(root, file)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return c, &ConfigError{"file", fmt.Errorf("%s is outside of %s", c.File, root)}
		}
		c.File = file
	}
	if c.ReloadPath == "" {
		c.ReloadPath = "/livereload"
	}
	if !strings.HasPrefix(c.ReloadPath, "/") {
		c.ReloadPath = "/" + c.ReloadPath
	}
	return c, nil
}

// Addr to listen on
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// URL to browse to. Unspecified hosts are shown as loopback.
func (c Config) URL() string {
	host := c.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(c.Port))
}
