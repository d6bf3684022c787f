package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gravchat/internal/chat"

	"go.uber.org/zap"
)

// Legacy export file names, one JSON document per former key.
const (
	LegacyHistoryFile       = "chatgpt_history.json"
	LegacySettingsFile      = "chatgpt_settings.json"
	LegacySelectedModelFile = "chatgpt_selected_model.json"

	// LegacyGroupID is the id given to the group rebuilt from legacy settings.
	LegacyGroupID = "legacy"
)

type legacySettings struct {
	Models []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Desc string `json:"desc"`
	} `json:"models"`
	APIConfig struct {
		BaseURL string `json:"baseUrl"`
		APIKey  string `json:"apiKey"`
	} `json:"apiConfig"`
	DataRetention int `json:"dataRetention"`
}

// ImportReport counts what ImportLegacy brought over. Skipped sessions were
// already present or had no id; Failed ones could not be decoded or written.
type ImportReport struct {
	Sessions int
	Skipped  int
	Failed   int
	Group    bool
	Settings int
}

// ImportLegacy 将旧版单键 JSON 数据导入 SQLite
// ImportLegacy imports the flat JSON files written by the previous
// single-key storage layout found in dir. Sessions already present are
// skipped and each session record is written on its own, so a bad record is
// logged and counted without aborting the rest. Missing files are not an
// error.
func ImportLegacy(ctx context.Context, store *Store, dir string) (ImportReport, error) {
	var report ImportReport
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return report, nil
	}
	log := store.logger.With(zap.String("dir", dir))

	var records []json.RawMessage
	found, err := readLegacyJSON(filepath.Join(dir, LegacyHistoryFile), &records)
	if err != nil {
		return report, err
	}
	if found {
		for i, rec := range records {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			imported, err := importLegacySession(ctx, store, rec)
			switch {
			case err != nil:
				report.Failed++
				log.Warn("legacy session skipped", zap.Int("index", i), zap.Error(err))
			case imported:
				report.Sessions++
			default:
				report.Skipped++
			}
		}
	}

	var ls legacySettings
	found, err = readLegacyJSON(filepath.Join(dir, LegacySettingsFile), &ls)
	if err != nil {
		return report, err
	}
	if found {
		group := legacyGroup(ls)
		if len(group.Models) > 0 || group.Endpoint.BaseURL != "" {
			if err := store.PutGroup(ctx, group); err != nil {
				return report, err
			}
			report.Group = true
		}
		if ls.DataRetention > 0 {
			if err := store.PutSetting(ctx, chat.SettingRetentionDays, ls.DataRetention); err != nil {
				return report, err
			}
			report.Settings++
		}
		if report.Group {
			if _, err := store.GetSetting(ctx, chat.SettingActiveGroupID); errors.Is(err, ErrNotFound) {
				if err := store.PutSetting(ctx, chat.SettingActiveGroupID, LegacyGroupID); err != nil {
					return report, err
				}
				report.Settings++
			}
		}
	}

	var selected string
	found, err = readLegacyJSON(filepath.Join(dir, LegacySelectedModelFile), &selected)
	if err != nil {
		return report, err
	}
	if found && strings.TrimSpace(selected) != "" {
		if err := store.PutSetting(ctx, chat.SettingActiveModelID, selected); err != nil {
			return report, err
		}
		report.Settings++
	}

	log.Info("legacy import finished",
		zap.Int("sessions", report.Sessions),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Bool("group", report.Group),
		zap.Int("settings", report.Settings))
	return report, nil
}

// importLegacySession 导入单条会话；已存在或无 id 时返回 false
// importLegacySession writes one history record. It reports false when the
// record has no id or the session already exists.
func importLegacySession(ctx context.Context, store *Store, rec json.RawMessage) (bool, error) {
	var sess chat.Session
	if err := json.Unmarshal(rec, &sess); err != nil {
		return false, fmt.Errorf("decode session: %w", err)
	}
	if strings.TrimSpace(sess.ID) == "" {
		return false, nil
	}
	if _, err := store.GetSession(ctx, sess.ID); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, err
	}
	if err := store.PutSession(ctx, normalizeLegacySession(sess)); err != nil {
		return false, err
	}
	return true, nil
}

func normalizeLegacySession(sess chat.Session) chat.Session {
	if sess.CreatedAt.IsZero() {
		if ms, err := strconv.ParseInt(sess.ID, 10, 64); err == nil {
			sess.CreatedAt = time.UnixMilli(ms)
		}
	}
	for i := range sess.Messages {
		sess.Messages[i].Streaming = false
	}
	return sess
}

// legacyGroup 旧版只有一个完整 URL；拆分为 base 与 path，图标字段不导入
// legacyGroup rebuilds a user-defined group from the legacy settings. The
// legacy config stored one full completion URL, which is split back into
// base URL and path.
func legacyGroup(ls legacySettings) chat.ProviderGroup {
	base, path := splitCompletionURL(ls.APIConfig.BaseURL)
	group := chat.ProviderGroup{
		ID:          LegacyGroupID,
		Name:        "Legacy",
		AdapterKind: "openai",
		Endpoint: chat.EndpointConfig{
			BaseURL:    base,
			Path:       path,
			Credential: strings.TrimSpace(ls.APIConfig.APIKey),
		},
		IsUserDefined: true,
	}
	for _, m := range ls.Models {
		if strings.TrimSpace(m.ID) == "" {
			continue
		}
		group.Models = append(group.Models, chat.ModelDescriptor{
			ID:          m.ID,
			DisplayName: m.Name,
			Description: m.Desc,
		})
	}
	return group
}

func splitCompletionURL(raw string) (string, string) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	const suffix = "/chat/completions"
	if !strings.HasSuffix(raw, suffix) {
		return raw, ""
	}
	base := strings.TrimSuffix(raw, suffix)
	path := suffix
	if strings.HasSuffix(base, "/v1") {
		base = strings.TrimSuffix(base, "/v1")
		path = "/v1" + suffix
	}
	return base, path
}

func readLegacyJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}
