package render

import (
	"strings"

	"gravchat/internal/chat"
	"gravchat/internal/groups"
	"gravchat/internal/provider"

	"github.com/charmbracelet/lipgloss"
)

// ModelDecoration picks an icon and color for a model id by family.
func ModelDecoration(modelID string) groups.Decoration {
	id := strings.ToLower(modelID)
	switch {
	case provider.IsImageModel(modelID):
		return groups.Decoration{Icon: "▣", Color: "#EC4899"}
	case strings.Contains(id, "claude"):
		return groups.Decoration{Icon: "◆", Color: "#D97706"}
	case strings.Contains(id, "gemini"):
		return groups.Decoration{Icon: "✦", Color: "#3B82F6"}
	case strings.Contains(id, "gpt"), strings.HasPrefix(id, "o1"), strings.HasPrefix(id, "o3"), strings.HasPrefix(id, "o4"):
		return groups.Decoration{Icon: "●", Color: "#10B981"}
	default:
		return groups.Decoration{Icon: "○", Color: "#9CA3AF"}
	}
}

// ModelLine is one row of a model listing.
func ModelLine(m chat.ModelDescriptor, dec groups.Decoration, active bool, theme Theme) string {
	icon := dec.Icon
	if icon == "" {
		icon = "○"
	}
	if !theme.Plain && dec.Color != "" {
		icon = lipgloss.NewStyle().Foreground(lipgloss.Color(dec.Color)).Render(icon)
	}
	marker := " "
	if active {
		marker = "*"
	}
	line := marker + " " + icon + " " + m.ID
	if m.DisplayName != "" && m.DisplayName != m.ID {
		line += "  " + theme.MutedStyle.Render(m.DisplayName)
	}
	return line
}
