package model

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/modoterra/wharf/pkg/config"
	"github.com/modoterra/wharf/pkg/logs"
)

// SettingsField is a named text input in the settings form.
type SettingsField struct {
	Label string
	Input textinput.Model
}

// SettingsModel is the per-view settings overlay. Saving restarts the open
// view with the new values; the buffer is rebuilt from the stream.
type SettingsModel struct {
	fields    []SettingsField
	activeIdx int
	errMsg    string
}

// NewSettings creates the form pre-filled from the open view's config.
func NewSettings(cfg logs.ViewConfig) *SettingsModel {
	fields := []SettingsField{
		newSettingsField("tail", strconv.Itoa(cfg.Tail)),
		newSettingsField("since", formatSince(cfg)),
		newSettingsField("max lines", strconv.Itoa(cfg.MaxLines)),
	}
	fields[0].Input.Focus()
	return &SettingsModel{fields: fields}
}

func formatSince(cfg logs.ViewConfig) string {
	if cfg.Since <= 0 {
		return ""
	}
	return cfg.Since.String()
}

func newSettingsField(label, value string) SettingsField {
	ti := textinput.New()
	ti.Placeholder = label
	ti.SetValue(value)
	ti.CharLimit = 16
	return SettingsField{Label: label, Input: ti}
}

// HandleKey processes key events in settings mode.
func (s *SettingsModel) HandleKey(a App, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.mode = ModeNormal
		a.settings = nil
		return a, nil

	case "enter":
		cfg, err := s.parse(a.view.Config())
		if err != nil {
			s.errMsg = err.Error()
			return a, nil
		}
		a.mode = ModeNormal
		a.settings = nil
		a.cfg.Log.Tail = cfg.Tail
		a.cfg.Log.MaxLines = cfg.MaxLines
		a.view.Restart(a.ctx, cfg)
		a.statusMsg = "view restarted with new settings"
		return a, waitLogEvents(a.view)

	case "tab", "down":
		s.fields[s.activeIdx].Input.Blur()
		s.activeIdx = (s.activeIdx + 1) % len(s.fields)
		s.fields[s.activeIdx].Input.Focus()
		return a, textinput.Blink

	case "shift+tab", "up":
		s.fields[s.activeIdx].Input.Blur()
		s.activeIdx = (s.activeIdx - 1 + len(s.fields)) % len(s.fields)
		s.fields[s.activeIdx].Input.Focus()
		return a, textinput.Blink

	default:
		var cmd tea.Cmd
		s.fields[s.activeIdx].Input, cmd = s.fields[s.activeIdx].Input.Update(msg)
		return a, cmd
	}
}

// parse validates the form into a view config, keeping fields not on the
// form from the current one.
func (s *SettingsModel) parse(cur logs.ViewConfig) (logs.ViewConfig, error) {
	cfg := cur

	tail, err := strconv.Atoi(s.fields[0].Input.Value())
	if err != nil || tail < 0 {
		return cfg, fmt.Errorf("tail must be a non-negative integer")
	}
	cfg.Tail = tail

	if v := s.fields[1].Input.Value(); v == "" {
		cfg.Since = 0
	} else {
		d, err := config.ParseSince(v)
		if err != nil {
			return cfg, fmt.Errorf("since: use 30s, 15m, 2h or 1d")
		}
		cfg.Since = d
	}

	maxLines, err := strconv.Atoi(s.fields[2].Input.Value())
	if err != nil || maxLines < 100 {
		return cfg, fmt.Errorf("max lines must be an integer >= 100")
	}
	cfg.MaxLines = maxLines

	return cfg, nil
}

// View renders the settings form.
func (s *SettingsModel) View() string {
	out := titleStyle.Render(" View settings ") + "\n\n"
	for i, f := range s.fields {
		prefix := "  "
		if i == s.activeIdx {
			prefix = "▸ "
		}
		out += prefix + dimStyle.Render(fmt.Sprintf("%-10s", f.Label+":")) + f.Input.View() + "\n"
	}
	if s.errMsg != "" {
		out += "\n" + errStyle.Render("  "+s.errMsg) + "\n"
	}
	out += "\n" + helpStyle.Render("  tab:next field  enter:apply  esc:cancel")
	return out
}
