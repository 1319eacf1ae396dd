package ui

import "github.com/charmbracelet/lipgloss"

type Style struct {
	Header           lipgloss.Style
	UserMessage      lipgloss.Style
	AssistantMessage lipgloss.Style
	RoleLabel        lipgloss.Style
	Sources          lipgloss.Style
	Status           lipgloss.Style
	Error            lipgloss.Style
	FocusedInput     lipgloss.Style
	DisabledInput    lipgloss.Style
}

type BorderColors struct {
	User      string
	Assistant string
	Focused   string
	Disabled  string
}

func DefaultStyles() *Style {
	lightModeColors := BorderColors{
		User:      "#CCCCCC",
		Assistant: "#FFB6C1", // Light pink
		Focused:   "#FFFF99", // Light yellow
		Disabled:  "#EEEEEE",
	}

	darkModeColors := BorderColors{
		User:      "#444444",
		Assistant: "#DD7090", // Desaturated pink for dark mode
		Focused:   "#DDDD77", // Desaturated yellow for dark mode
		Disabled:  "#333333",
	}

	border := func(b lipgloss.Border, light, dark string) lipgloss.Style {
		return lipgloss.NewStyle().Border(b).
			Padding(0, 1).
			BorderForeground(lipgloss.AdaptiveColor{Light: light, Dark: dark})
	}

	return &Style{
		Header:           lipgloss.NewStyle().Bold(true).Padding(0, 1),
		UserMessage:      border(lipgloss.NormalBorder(), lightModeColors.User, darkModeColors.User),
		AssistantMessage: border(lipgloss.RoundedBorder(), lightModeColors.Assistant, darkModeColors.Assistant),
		RoleLabel:        lipgloss.NewStyle().Bold(true),
		Sources:          lipgloss.NewStyle().Faint(true).Padding(0, 1),
		Status:           lipgloss.NewStyle().Faint(true).Padding(0, 1),
		Error:            lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1),
		FocusedInput:     border(lipgloss.NormalBorder(), lightModeColors.Focused, darkModeColors.Focused),
		DisabledInput:    border(lipgloss.NormalBorder(), lightModeColors.Disabled, darkModeColors.Disabled),
	}
}
