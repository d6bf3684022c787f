package provider

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var (
	aspectRatioRe = regexp.MustCompile(`\d+x\d+`)
	ratioSuffixRe = regexp.MustCompile(`-\d+x\d+$`)
	numberRe      = regexp.MustCompile(`\d+(?:\.\d+)?`)
	digitsRe      = regexp.MustCompile(`^\d+$`)
	gptDateRe     = regexp.MustCompile(`-(\d{4}-\d{2}-\d{2}|\d{8})$`)
)

// IsImageModel 判断是否为图片生成模型：image 标记或结尾的宽高比
// IsImageModel reports whether modelID names an image-generation model,
// either by an explicit "image" marker or a trailing ratio segment such as
// -1024x1024. Mixture sizes like mixtral-8x7b are not ratios.
func IsImageModel(modelID string) bool {
	id := strings.ToLower(modelID)
	return strings.Contains(id, "image") || ratioSuffixRe.MatchString(id)
}

// DisplayName 根据模型 ID 生成友好名称
// DisplayName derives a human-friendly name from a catalog model id.
func DisplayName(modelID string) string {
	if modelID == "" {
		return "Unknown Model"
	}
	switch {
	case strings.HasPrefix(modelID, "claude-"):
		return claudeName(modelID)
	case strings.HasPrefix(modelID, "gemini-"):
		return geminiName(modelID)
	case strings.HasPrefix(modelID, "gpt-"):
		return gptDateRe.ReplaceAllString(strings.ToUpper(modelID), "")
	}
	words := strings.Split(modelID, "-")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func claudeName(id string) string {
	parts := strings.Split(id, "-")
	version := ""
	// 连续的小数字是版本号，长数字是日期 / small trailing numbers are minor versions, long ones are dates
	for i := 0; i < len(parts)-1; i++ {
		if !digitsRe.MatchString(parts[i]) {
			continue
		}
		version = parts[i]
		if i+1 < len(parts) && digitsRe.MatchString(parts[i+1]) {
			if n, err := strconv.Atoi(parts[i+1]); err == nil && n < 10 {
				version += "." + parts[i+1]
			}
		}
		break
	}

	name := "Claude"
	for _, tier := range []string{"opus", "sonnet", "haiku"} {
		if slices.Contains(parts, tier) {
			if version != "" {
				name += " " + version
			}
			name += " " + strings.ToUpper(tier[:1]) + tier[1:]
			break
		}
	}
	if strings.Contains(id, "thinking") {
		name += " (Thinking)"
	}
	return name
}

func geminiName(id string) string {
	parts := strings.Split(id, "-")
	name := "Gemini"
	if v := numberRe.FindString(id); v != "" {
		name += " " + v
	}
	if slices.Contains(parts, "flash") {
		name += " Flash"
	} else if slices.Contains(parts, "pro") {
		name += " Pro"
	}
	switch {
	case strings.Contains(id, "thinking"):
		name += " (Thinking)"
	case strings.Contains(id, "lite"):
		name += " Lite"
	case strings.Contains(id, "image"):
		if ratio := aspectRatioRe.FindString(id); ratio != "" {
			name += " (Image " + ratio + ")"
		} else {
			name += " (Image)"
		}
	case strings.Contains(id, "high"):
		name += " High"
	case strings.Contains(id, "low"):
		name += " Low"
	}
	return name
}

// Description 根据模型特征生成简短描述
// Description derives a short description from model id features.
func Description(modelID string) string {
	id := strings.ToLower(modelID)
	switch {
	case id == "":
		return ""
	case strings.Contains(id, "thinking"):
		return "Deep reasoning model"
	case strings.Contains(id, "image"):
		if ratio := aspectRatioRe.FindString(id); ratio != "" {
			return "Image generation (" + ratio + ")"
		}
		return "Image generation model"
	case strings.Contains(id, "flash"):
		return "Fast response model"
	case strings.Contains(id, "opus"):
		return "Strongest reasoning"
	case strings.Contains(id, "sonnet"):
		return "Balanced performance"
	case strings.Contains(id, "haiku"):
		return "Lightweight and fast"
	case strings.Contains(id, "pro"):
		if strings.Contains(id, "high") {
			return "High-performance pro"
		}
		if strings.Contains(id, "low") {
			return "Lightweight pro"
		}
		return "Professional model"
	case strings.Contains(id, "turbo"):
		return "Fast and efficient"
	case strings.Contains(id, "mini"):
		return "Lightweight model"
	}
	return "General-purpose model"
}
