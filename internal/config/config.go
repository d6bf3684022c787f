package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gravchat/internal/chat"
	"gravchat/internal/logging"
	"gravchat/internal/provider"

	"github.com/joho/godotenv"
)

// Defaults.
const (
	DefaultDirName        = ".gravchat"
	DefaultDBFile         = "gravchat.db"
	DefaultTimeoutMS      = 120000
	DefaultHistoryMS      = 1000
	DefaultSettingsMS     = 500
	DefaultRetentionDays  = 7
	DefaultEndpointPath   = "/v1/chat/completions"
	DefaultTitleMaxRunes  = 30
	DefaultLogLevel       = "info"
	EnvConfigPath         = "GRAVCHAT_CONFIG_PATH"
	projectConfigFileName = "gravchat.config.json"
)

type StorageConfig struct {
	Path      string `json:"path"`
	LegacyDir string `json:"legacy_dir"`
}

type HTTPConfig struct {
	TimeoutMS int `json:"timeout_ms"`
}

type DebounceConfig struct {
	HistoryMS  int `json:"history_ms"`
	SettingsMS int `json:"settings_ms"`
}

type ChatConfig struct {
	RetentionDays int    `json:"retention_days"`
	EndpointPath  string `json:"endpoint_path"`
	TitleMaxRunes int    `json:"title_max_runes"`
	// ContextTokenBudget 出站上下文 token 上限，0 表示不限制
	// ContextTokenBudget caps outbound context tokens; 0 means unlimited.
	ContextTokenBudget int `json:"context_token_budget"`
	// PreciseTokens 使用 tiktoken 计数（首次使用需下载编码表）
	// PreciseTokens counts with tiktoken; the encoding is downloaded on first use.
	PreciseTokens bool `json:"precise_tokens"`
}

type LoggingConfig struct {
	Level string `json:"level"`
	JSON  bool   `json:"json"`
	File  string `json:"file"`
}

// GroupConfig 配置文件中声明的内置分组
// GroupConfig is a provider group provisioned from config. Such groups are
// built in and cannot be deleted at runtime.
type GroupConfig struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Adapter string   `json:"adapter"`
	BaseURL string   `json:"base_url"`
	Path    string   `json:"path"`
	APIKey  string   `json:"api_key"`
	Models  []string `json:"models"`
}

type Config struct {
	Storage  StorageConfig  `json:"storage"`
	HTTP     HTTPConfig     `json:"http"`
	Debounce DebounceConfig `json:"debounce"`
	Chat     ChatConfig     `json:"chat"`
	Logging  LoggingConfig  `json:"logging"`
	Locale   string         `json:"locale"`
	Groups   []GroupConfig  `json:"groups"`
}

type fileLoggingConfig struct {
	Level *string `json:"level"`
	JSON  *bool   `json:"json"`
	File  *string `json:"file"`
}

type fileConfig struct {
	Storage  *StorageConfig     `json:"storage"`
	HTTP     *HTTPConfig        `json:"http"`
	Debounce *DebounceConfig    `json:"debounce"`
	Chat     *ChatConfig        `json:"chat"`
	Logging  *fileLoggingConfig `json:"logging"`
	Locale   *string            `json:"locale"`
	Groups   *[]GroupConfig     `json:"groups"`
}

func Default() Config {
	return Config{
		HTTP: HTTPConfig{TimeoutMS: DefaultTimeoutMS},
		Debounce: DebounceConfig{
			HistoryMS:  DefaultHistoryMS,
			SettingsMS: DefaultSettingsMS,
		},
		Chat: ChatConfig{
			RetentionDays: DefaultRetentionDays,
			EndpointPath:  DefaultEndpointPath,
			TitleMaxRunes: DefaultTitleMaxRunes,
		},
		Logging: LoggingConfig{Level: DefaultLogLevel},
	}
}

// Load 按 默认值 → 全局配置 → 项目配置 → .env → 环境变量 的顺序合并
// Load merges defaults, the global config, the project (or explicit)
// config, .env and GRAVCHAT_* environment variables, in that order.
func Load(path string) (Config, error) {
	cfg := Default()

	for _, globalPath := range globalConfigPaths() {
		if err := mergeFromFile(&cfg, globalPath); err != nil {
			return Config{}, err
		}
	}

	resolvedPath := strings.TrimSpace(path)
	if envPath := strings.TrimSpace(os.Getenv(EnvConfigPath)); envPath != "" {
		resolvedPath = envPath
	}
	if resolvedPath == "" {
		resolvedPath = findProjectConfigPath()
	}
	if err := mergeFromFile(&cfg, resolvedPath); err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}
	return applyEnv(cfg)
}

func globalConfigPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(home, DefaultDirName, "config.json")}
}

func findProjectConfigPath() string {
	candidates := []string{
		projectConfigFileName,
		filepath.Join(DefaultDirName, "config.json"),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// loadDotEnv 加载 .env；已存在的环境变量不会被覆盖
// loadDotEnv loads a .env file without overriding variables already set.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func mergeFromFile(cfg *Config, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}

	resolved, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("expand config path %q: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %q: %w", resolved, err)
	}

	cleaned := stripJSONComments(data)
	var fileCfg fileConfig
	if err := json.Unmarshal(cleaned, &fileCfg); err != nil {
		return fmt.Errorf("parse config %q: %w", resolved, err)
	}
	applyFileConfig(cfg, fileCfg)
	return nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.Storage != nil {
		if v := strings.TrimSpace(fc.Storage.Path); v != "" {
			cfg.Storage.Path = v
		}
		if v := strings.TrimSpace(fc.Storage.LegacyDir); v != "" {
			cfg.Storage.LegacyDir = v
		}
	}
	if fc.HTTP != nil && fc.HTTP.TimeoutMS > 0 {
		cfg.HTTP.TimeoutMS = fc.HTTP.TimeoutMS
	}
	if fc.Debounce != nil {
		if fc.Debounce.HistoryMS > 0 {
			cfg.Debounce.HistoryMS = fc.Debounce.HistoryMS
		}
		if fc.Debounce.SettingsMS > 0 {
			cfg.Debounce.SettingsMS = fc.Debounce.SettingsMS
		}
	}
	if fc.Chat != nil {
		cfg.Chat = mergeChat(cfg.Chat, *fc.Chat)
	}
	if fc.Logging != nil {
		if fc.Logging.Level != nil {
			cfg.Logging.Level = *fc.Logging.Level
		}
		if fc.Logging.JSON != nil {
			cfg.Logging.JSON = *fc.Logging.JSON
		}
		if fc.Logging.File != nil {
			cfg.Logging.File = *fc.Logging.File
		}
	}
	if fc.Locale != nil {
		cfg.Locale = *fc.Locale
	}
	if fc.Groups != nil {
		cfg.Groups = mergeGroups(cfg.Groups, *fc.Groups)
	}
}

func mergeChat(base ChatConfig, override ChatConfig) ChatConfig {
	out := base
	if override.RetentionDays > 0 {
		out.RetentionDays = override.RetentionDays
	}
	if v := strings.TrimSpace(override.EndpointPath); v != "" {
		out.EndpointPath = v
	}
	if override.TitleMaxRunes > 0 {
		out.TitleMaxRunes = override.TitleMaxRunes
	}
	if override.ContextTokenBudget > 0 {
		out.ContextTokenBudget = override.ContextTokenBudget
	}
	if override.PreciseTokens {
		out.PreciseTokens = true
	}
	return out
}

// mergeGroups 同 ID 的分组由后者覆盖，其余按出现顺序追加
// mergeGroups replaces groups with a matching id and appends the rest.
func mergeGroups(base, override []GroupConfig) []GroupConfig {
	out := append([]GroupConfig(nil), base...)
	for _, g := range override {
		replaced := false
		for i := range out {
			if strings.EqualFold(strings.TrimSpace(out[i].ID), strings.TrimSpace(g.ID)) {
				out[i] = g
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, g)
		}
	}
	return out
}

func normalize(cfg *Config) error {
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		cfg.Storage.Path = filepath.Join(home, DefaultDirName, DefaultDBFile)
	}
	path, err := expandPath(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("expand storage.path: %w", err)
	}
	cfg.Storage.Path = path
	if cfg.Storage.LegacyDir != "" {
		dir, err := expandPath(cfg.Storage.LegacyDir)
		if err != nil {
			return fmt.Errorf("expand storage.legacy_dir: %w", err)
		}
		cfg.Storage.LegacyDir = dir
	}

	if cfg.HTTP.TimeoutMS <= 0 {
		cfg.HTTP.TimeoutMS = DefaultTimeoutMS
	}
	if cfg.Debounce.HistoryMS <= 0 {
		cfg.Debounce.HistoryMS = DefaultHistoryMS
	}
	if cfg.Debounce.SettingsMS <= 0 {
		cfg.Debounce.SettingsMS = DefaultSettingsMS
	}
	if cfg.Chat.RetentionDays <= 0 {
		cfg.Chat.RetentionDays = DefaultRetentionDays
	}
	cfg.Chat.EndpointPath = strings.TrimSpace(cfg.Chat.EndpointPath)
	if cfg.Chat.EndpointPath == "" {
		cfg.Chat.EndpointPath = DefaultEndpointPath
	}
	if !strings.HasPrefix(cfg.Chat.EndpointPath, "/") {
		cfg.Chat.EndpointPath = "/" + cfg.Chat.EndpointPath
	}
	if cfg.Chat.TitleMaxRunes <= 0 {
		cfg.Chat.TitleMaxRunes = DefaultTitleMaxRunes
	}
	if cfg.Chat.ContextTokenBudget < 0 {
		cfg.Chat.ContextTokenBudget = 0
	}

	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %w", err)
	}
	cfg.Locale = strings.TrimSpace(cfg.Locale)

	seen := map[string]struct{}{}
	for i := range cfg.Groups {
		g := &cfg.Groups[i]
		g.ID = strings.TrimSpace(g.ID)
		g.BaseURL = strings.TrimRight(strings.TrimSpace(g.BaseURL), "/")
		g.Adapter = strings.ToLower(strings.TrimSpace(g.Adapter))
		if g.Adapter == "" {
			g.Adapter = provider.KindOpenAI
		}
		if g.ID == "" {
			return fmt.Errorf("groups[%d]: id is required", i)
		}
		if g.BaseURL == "" {
			return fmt.Errorf("groups[%d] %s: base_url is required", i, g.ID)
		}
		key := strings.ToLower(g.ID)
		if _, ok := seen[key]; ok {
			return fmt.Errorf("groups[%d]: duplicate id %q", i, g.ID)
		}
		seen[key] = struct{}{}
		g.Models = normalizeModelList(g.Models)
	}
	return nil
}

func applyEnv(cfg Config) (Config, error) {
	if v := strings.TrimSpace(os.Getenv("GRAVCHAT_DB_PATH")); v != "" {
		cfg.Storage.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("GRAVCHAT_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("GRAVCHAT_LOCALE")); v != "" {
		cfg.Locale = v
	}
	if v := strings.TrimSpace(os.Getenv("GRAVCHAT_TIMEOUT_MS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid GRAVCHAT_TIMEOUT_MS: %q", v)
		}
		cfg.HTTP.TimeoutMS = n
	}
	if v := strings.TrimSpace(os.Getenv("GRAVCHAT_RETENTION_DAYS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid GRAVCHAT_RETENTION_DAYS: %q", v)
		}
		cfg.Chat.RetentionDays = n
	}

	return cfg, normalize(&cfg)
}

// HTTPTimeout returns the request timeout.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutMS) * time.Millisecond
}

// HistoryDelay returns the transcript write debounce interval.
func (c Config) HistoryDelay() time.Duration {
	return time.Duration(c.Debounce.HistoryMS) * time.Millisecond
}

// SettingsDelay returns the settings write debounce interval.
func (c Config) SettingsDelay() time.Duration {
	return time.Duration(c.Debounce.SettingsMS) * time.Millisecond
}

// LoggingOptions converts the logging section.
func (c Config) LoggingOptions() logging.Options {
	return logging.Options{Level: c.Logging.Level, JSON: c.Logging.JSON, File: c.Logging.File}
}

// BuiltinGroups 将配置中的分组转换为不可删除的内置分组
// BuiltinGroups converts configured groups into built-in provider groups.
func (c Config) BuiltinGroups() []chat.ProviderGroup {
	out := make([]chat.ProviderGroup, 0, len(c.Groups))
	for _, g := range c.Groups {
		name := strings.TrimSpace(g.Name)
		if name == "" {
			name = g.ID
		}
		models := make([]chat.ModelDescriptor, 0, len(g.Models))
		for _, id := range g.Models {
			models = append(models, chat.ModelDescriptor{
				ID:          id,
				DisplayName: provider.DisplayName(id),
				Description: provider.Description(id),
			})
		}
		out = append(out, chat.ProviderGroup{
			ID:          g.ID,
			Name:        name,
			AdapterKind: g.Adapter,
			Endpoint: chat.EndpointConfig{
				BaseURL:    g.BaseURL,
				Path:       strings.TrimSpace(g.Path),
				Credential: strings.TrimSpace(g.APIKey),
			},
			Models: models,
		})
	}
	return out
}

func normalizeModelList(models []string) []string {
	out := make([]string, 0, len(models))
	seen := map[string]struct{}{}
	for _, m := range models {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if path == "~" {
			path = home
		} else {
			path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return filepath.Abs(path)
}

func stripJSONComments(data []byte) []byte {
	const (
		stateNormal = iota
		stateString
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	escaped := false
	out := bytes.Buffer{}

	for i := 0; i < len(data); i++ {
		c := data[i]
		next := byte(0)
		if i+1 < len(data) {
			next = data[i+1]
		}

		switch state {
		case stateNormal:
			if c == '"' {
				state = stateString
				out.WriteByte(c)
				continue
			}
			if c == '/' && next == '/' {
				state = stateLineComment
				i++
				continue
			}
			if c == '/' && next == '*' {
				state = stateBlockComment
				i++
				continue
			}
			out.WriteByte(c)
		case stateString:
			out.WriteByte(c)
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == '"' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				out.WriteByte(c)
			}
		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}

	return out.Bytes()
}
