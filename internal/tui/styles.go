package tui

import (
	catppuccin "github.com/catppuccin/go"
	"github.com/charmbracelet/lipgloss"

	"floorcast/internal/feed"
)

type Styles struct {
	flavor catppuccin.Flavor
}

func NewStyles(themeName string) *Styles {
	flavor := flavorFromName(themeName)
	return &Styles{flavor: flavor}
}

func flavorFromName(name string) catppuccin.Flavor {
	switch name {
	case "latte":
		return catppuccin.Latte
	case "frappe":
		return catppuccin.Frappe
	case "macchiato":
		return catppuccin.Macchiato
	case "mocha":
		return catppuccin.Mocha
	default:
		return catppuccin.Mocha
	}
}

func (s *Styles) color(c catppuccin.Color) lipgloss.Color {
	return lipgloss.Color(c.Hex)
}

func (s *Styles) TitleStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(s.color(s.flavor.Mauve()))
}

func (s *Styles) SubtitleStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(s.color(s.flavor.Subtext0()))
}

func (s *Styles) HelpStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(s.color(s.flavor.Overlay0()))
}

func (s *Styles) BoxStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(s.color(s.flavor.Surface1())).
		Padding(1, 2)
}

func (s *Styles) InfoStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(s.color(s.flavor.Text()))
}

func (s *Styles) AccentStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(s.color(s.flavor.Teal()))
}

func (s *Styles) ErrorStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(s.color(s.flavor.Red())).
		Bold(true)
}

func (s *Styles) SuccessStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(s.color(s.flavor.Green()))
}

func (s *Styles) InfoStatusStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(s.color(s.flavor.Subtext1()))
}

// StreamStatusStyle colors the stream status badge.
func (s *Styles) StreamStatusStyle(status feed.Status) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	switch status {
	case feed.StatusConnected:
		return base.Foreground(s.color(s.flavor.Green()))
	case feed.StatusLiveActive:
		return base.Foreground(s.color(s.flavor.Teal()))
	case feed.StatusConnecting:
		return base.Foreground(s.color(s.flavor.Yellow()))
	case feed.StatusError:
		return base.Foreground(s.color(s.flavor.Red()))
	case feed.StatusDisconnected:
		return base.Foreground(s.color(s.flavor.Peach()))
	default:
		return base.Foreground(s.color(s.flavor.Overlay1()))
	}
}

// ErrorBannerStyle is the full-width banner shown for pipeline errors.
func (s *Styles) ErrorBannerStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(s.color(s.flavor.Base())).
		Background(s.color(s.flavor.Red())).
		Padding(0, 1)
}

func (s *Styles) PanelHeaderFocusedStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(s.color(s.flavor.Base())).
		Background(s.color(s.flavor.Mauve()))
}

func (s *Styles) PanelHeaderUnfocusedStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(s.color(s.flavor.Subtext0())).
		Background(s.color(s.flavor.Surface0()))
}

// SelectedStyle highlights the active filter in the section list.
func (s *Styles) SelectedStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(s.color(s.flavor.Mauve()))
}

// KindStyle colors the image kind tag.
func (s *Styles) KindStyle(kind feed.Kind) lipgloss.Style {
	switch kind {
	case feed.KindUnfurnished:
		return lipgloss.NewStyle().Foreground(s.color(s.flavor.Sky()))
	case feed.KindFurnished:
		return lipgloss.NewStyle().Foreground(s.color(s.flavor.Green()))
	case feed.KindInterior:
		return lipgloss.NewStyle().Foreground(s.color(s.flavor.Peach()))
	case feed.KindFinalAssembly:
		return lipgloss.NewStyle().Foreground(s.color(s.flavor.Pink())).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(s.color(s.flavor.Overlay1()))
	}
}

func (s *Styles) LogTimestampStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(s.color(s.flavor.Overlay0()))
}

func (s *Styles) LogScopeStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(s.color(s.flavor.Lavender()))
}

func (s *Styles) LogDebugStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(s.color(s.flavor.Overlay1()))
}

func (s *Styles) LogInfoStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(s.color(s.flavor.Blue()))
}

func (s *Styles) LogWarnStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(s.color(s.flavor.Yellow()))
}

func (s *Styles) LogErrorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(s.color(s.flavor.Red())).Bold(true)
}

func (s *Styles) SeparatorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(s.color(s.flavor.Surface1()))
}
