package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	Server ServerConfig
	Claude ClaudeConfig
	Watch  WatchConfig
	Search SearchConfig
	Cache  CacheConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	LogLevel    string
	Debug       bool
	CORSOrigins []string
}

type ClaudeConfig struct {
	Dir         string // defaults to ~/.claude when empty
	ProjectsDir string // overrides <dir>/projects when set
}

type WatchConfig struct {
	Enabled    bool
	DebounceMS int
}

type SearchConfig struct {
	MaxResults   int
	SnippetChars int
}

type CacheConfig struct {
	MaxSessions int
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        5173,
			LogLevel:    "info",
			Debug:       false,
			CORSOrigins: []string{"*"},
		},
		Claude: ClaudeConfig{
			Dir:         "",
			ProjectsDir: "",
		},
		Watch: WatchConfig{
			Enabled:    true,
			DebounceMS: 500,
		},
		Search: SearchConfig{
			MaxResults:   50,
			SnippetChars: 120,
		},
		Cache: CacheConfig{
			MaxSessions: 200,
		},
	}
}

func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cclog", "config.toml"), nil
}

// Load reads the config file at path, falling back to defaults when the file
// does not exist, then applies environment overrides on top.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err == nil {
		cfg, err = Parse(data)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, err
	}
	ApplyEnv(&cfg)
	return cfg, nil
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	var section string

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := stripTomlComment(strings.TrimSpace(scanner.Text()))
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(line[1 : len(line)-1])
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if err := ApplyValue(&cfg, section, key, value); err != nil {
			return Config{}, err
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overlays CCLOG_* environment variables, plus the legacy
// CLAUDE_DIR / HOST / PORT names older setups still use.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("CCLOG_CLAUDE_DIR"); v != "" {
		cfg.Claude.Dir = expandHome(v)
	}
	if v := os.Getenv("CCLOG_PROJECTS_DIR"); v != "" {
		cfg.Claude.ProjectsDir = expandHome(v)
	}
	if v := os.Getenv("CCLOG_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("CCLOG_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CCLOG_LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv("CCLOG_DEBUG"); v != "" {
		cfg.Server.Debug = envBool(v)
	}
	if v := os.Getenv("CCLOG_WATCH_ENABLED"); v != "" {
		cfg.Watch.Enabled = envBool(v)
	}
	if v := os.Getenv("CCLOG_WATCH_DEBOUNCE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Watch.DebounceMS = ms
		}
	}
	if v := os.Getenv("CCLOG_SEARCH_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.MaxResults = n
		}
	}
	if v := os.Getenv("CCLOG_CORS_ORIGINS"); v != "" {
		origins := make([]string, 0)
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.Server.CORSOrigins = origins
	}
	if v := os.Getenv("CLAUDE_DIR"); v != "" {
		cfg.Claude.Dir = expandHome(v)
	}
	if v := os.Getenv("HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

// ProjectsPath resolves the directory holding the per-project session folders.
func (c Config) ProjectsPath() (string, error) {
	if c.Claude.ProjectsDir != "" {
		return c.Claude.ProjectsDir, nil
	}
	dir := c.Claude.Dir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".claude")
	}
	return filepath.Join(dir, "projects"), nil
}

func envBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	return path
}

func stripTomlComment(line string) string {
	if !strings.Contains(line, "#") {
		return line
	}
	var b strings.Builder
	inQuotes := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if ch == '"' {
			inQuotes = !inQuotes
		}
		if ch == '#' && !inQuotes {
			break
		}
		b.WriteByte(ch)
	}
	return strings.TrimSpace(b.String())
}

func ApplyValue(cfg *Config, section, key, raw string) error {
	value, err := parseTomlValue(raw)
	if err != nil {
		return err
	}

	switch section {
	case "server":
		switch key {
		case "host":
			text, err := toString(value)
			if err != nil {
				return err
			}
			cfg.Server.Host = text
		case "port":
			port, err := toInt(value)
			if err != nil {
				return err
			}
			cfg.Server.Port = port
		case "log_level":
			text, err := toString(value)
			if err != nil {
				return err
			}
			cfg.Server.LogLevel = text
		case "debug":
			b, err := toBool(value)
			if err != nil {
				return err
			}
			cfg.Server.Debug = b
		case "cors_origins":
			arr, err := toStringSlice(value)
			if err != nil {
				return err
			}
			cfg.Server.CORSOrigins = arr
		}
	case "claude":
		switch key {
		case "dir":
			text, err := toString(value)
			if err != nil {
				return err
			}
			cfg.Claude.Dir = expandHome(text)
		case "projects_dir":
			text, err := toString(value)
			if err != nil {
				return err
			}
			cfg.Claude.ProjectsDir = expandHome(text)
		}
	case "watch":
		switch key {
		case "enabled":
			b, err := toBool(value)
			if err != nil {
				return err
			}
			cfg.Watch.Enabled = b
		case "debounce_ms":
			ms, err := toInt(value)
			if err != nil {
				return err
			}
			cfg.Watch.DebounceMS = ms
		}
	case "search":
		switch key {
		case "max_results":
			n, err := toInt(value)
			if err != nil {
				return err
			}
			cfg.Search.MaxResults = n
		case "snippet_chars":
			n, err := toInt(value)
			if err != nil {
				return err
			}
			cfg.Search.SnippetChars = n
		}
	case "cache":
		switch key {
		case "max_sessions":
			n, err := toInt(value)
			if err != nil {
				return err
			}
			cfg.Cache.MaxSessions = n
		}
	}

	return nil
}

func parseTomlValue(raw string) (interface{}, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}
	if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
		inner := strings.TrimSpace(trimmed[1 : len(trimmed)-1])
		if inner == "" {
			return []string{}, nil
		}
		parts := splitComma(inner)
		values := make([]string, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			unquoted, err := strconv.Unquote(part)
			if err != nil {
				unquoted = part
			}
			values = append(values, unquoted)
		}
		return values, nil
	}
	if strings.HasPrefix(trimmed, "\"") && strings.HasSuffix(trimmed, "\"") {
		unquoted, err := strconv.Unquote(trimmed)
		if err != nil {
			return nil, err
		}
		return unquoted, nil
	}
	if trimmed == "true" || trimmed == "false" {
		return trimmed == "true", nil
	}
	if n, err := strconv.Atoi(trimmed); err == nil {
		return n, nil
	}
	return trimmed, nil
}

func splitComma(input string) []string {
	parts := strings.Split(input, ",")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return parts
}

func toString(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("expected string, got %T", value)
	}
}

func toInt(value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	default:
		return 0, fmt.Errorf("expected int, got %T", value)
	}
}

func toBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(v)
	default:
		return false, fmt.Errorf("expected bool, got %T", value)
	}
}

func toStringSlice(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case string:
		if v == "" {
			return []string{}, nil
		}
		return splitComma(v), nil
	default:
		return nil, fmt.Errorf("expected string slice, got %T", value)
	}
}
