package theme

import "github.com/small-frappuccino/bruhbot/pkg/config"

// Color is the int value used by discordgo.MessageEmbed.Color
type Color = int

// Theme holds the color roles used by the bot's embeds. It is built once
// from the loaded configuration and passed to whoever renders embeds.
type Theme struct {
	Suggestion Color // review embeds in the suggestion channel
	Success    Color // list pages and confirmations
	Error      Color // rejected command input
	Warning    Color // empty results
}

// Default returns the built-in palette.
func Default() *Theme {
	th := &Theme{}
	th.ensureDefaults()
	return th
}

// FromConfig builds a theme from the configured colors. Zero values fall
// back to the defaults.
func FromConfig(cfg *config.Config) *Theme {
	if cfg == nil {
		return Default()
	}
	th := &Theme{
		Suggestion: cfg.SuggestionEmbedColor,
		Success:    cfg.SuccessColor,
		Error:      cfg.ErrorColor,
		Warning:    cfg.WarningColor,
	}
	th.ensureDefaults()
	return th
}

func (t *Theme) ensureDefaults() {
	if t.Suggestion == 0 {
		t.Suggestion = 0x0099FF
	}
	if t.Success == 0 {
		t.Success = 0x00AA00
	}
	if t.Error == 0 {
		t.Error = 0xFF0000
	}
	if t.Warning == 0 {
		t.Warning = 0xFFAA00
	}
}
