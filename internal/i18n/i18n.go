package i18n

import (
	"fmt"
	"maps"
	"os"
	"strings"
)

// localeEnvVars 按优先级检测 locale / env vars consulted in priority order
var localeEnvVars = []string{"GRAVCHAT_LANG", "LC_ALL", "LC_MESSAGES", "LANG"}

// catalogs 每个 locale 叠加在英文之上的文案 / per-locale overlays on the English catalog
var catalogs = map[string]map[string]string{
	"zh-CN": ZhCNMessages,
}

// Messages 不可变的文案表，由调用方显式持有
// Messages is an immutable message table. Callers hold it explicitly; there
// is no package-level instance.
type Messages struct {
	locale string
	table  map[string]string
}

// New 创建文案表；locale 为空时从环境检测
// New builds the table for locale, detecting it from the environment when
// empty. Unknown locales fall back to English.
func New(locale string) *Messages {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		locale = DetectLocale()
	}
	locale = normalizeLocale(locale)

	table := maps.Clone(EnMessages)
	if overlay, ok := catalogs[locale]; ok {
		maps.Copy(table, overlay)
	}
	return &Messages{locale: locale, table: table}
}

// T 翻译；缺失的 key 原样返回 / missing keys are returned verbatim
func (m *Messages) T(key string, args ...any) string {
	tmpl, ok := m.table[key]
	if !ok {
		return key
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}

// Locale returns the normalized locale the table was built for.
func (m *Messages) Locale() string {
	return m.locale
}

// DetectLocale 从环境变量检测 locale，默认 en
// DetectLocale reads the first non-empty locale variable, defaulting to en.
func DetectLocale() string {
	for _, env := range localeEnvVars {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return normalizeLocale(v)
		}
	}
	return "en"
}

func normalizeLocale(s string) string {
	s = strings.TrimSpace(s)
	// 去掉编码和修饰 / drop codeset and modifier, e.g. zh_CN.UTF-8@pinyin
	if idx := strings.IndexAny(s, ".@"); idx >= 0 {
		s = s[:idx]
	}
	if s == "" || s == "C" || s == "POSIX" {
		return "en"
	}
	s = strings.ReplaceAll(s, "_", "-")
	switch lower := strings.ToLower(s); {
	case strings.HasPrefix(lower, "zh"):
		return "zh-CN"
	case strings.HasPrefix(lower, "en"):
		return "en"
	}
	return s
}
