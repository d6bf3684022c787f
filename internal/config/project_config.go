package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// InitProjectConfigScaffold 在指定目录下初始化项目级配置模板（./.gravchat/config.json）。
// InitProjectConfigScaffold writes a project-level config scaffold
// (./.gravchat/config.json) under dir and returns its path. An existing
// file is left untouched.
func InitProjectConfigScaffold(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get current working directory: %w", err)
		}
		dir = cwd
	}

	cfgDir := filepath.Join(dir, DefaultDirName)
	path := filepath.Join(cfgDir, "config.json")

	// 若项目已经有配置，则尊重用户现有配置。
	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return "", fmt.Errorf("project config path is a directory: %s", path)
		}
		return path, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("stat project config: %w", err)
	}

	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", DefaultDirName, err)
	}

	cfg := Default()
	cfg.Groups = []GroupConfig{}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write project config: %w", err)
	}
	return path, nil
}

// WriteLocale 将 locale 写入项目配置；目录不存在则创建
// WriteLocale writes locale to the project config under dir, creating it if needed.
func WriteLocale(dir, locale string) error {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return errors.New("locale is empty")
	}
	cfgDir := filepath.Join(strings.TrimSpace(dir), DefaultDirName)
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", DefaultDirName, err)
	}
	path := filepath.Join(cfgDir, "config.json")
	var out map[string]any
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(stripJSONComments(data), &out); err != nil {
			out = nil
		}
	}
	if out == nil {
		out = make(map[string]any)
	}
	out["locale"] = locale
	data, err = json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
