// Package config loads the bot's flat KEY=VALUE configuration file.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/small-frappuccino/bruhbot/pkg/util"
)

// DefaultFileName is looked up next to the binary when no path is given.
const DefaultFileName = "config.txt"

// TokenEnv is consulted when TOKEN is blank or still the placeholder.
const TokenEnv = "BRUHBOT_TOKEN"

const tokenPlaceholder = "YOUR_BOT_TOKEN_HERE"

// ErrNotFound is returned by Read when the config file does not exist.
var ErrNotFound = errors.New("config file not found")

// ErrTemplateCreated is returned by Load when the file was missing and a
// template has been written in its place.
var ErrTemplateCreated = errors.New("config file not found; template created")

// ButtonKey names one of the suggestion decision buttons.
type ButtonKey string

const (
	ButtonReject       ButtonKey = "REJECT"
	ButtonDefault      ButtonKey = "DEFAULT"
	ButtonMention      ButtonKey = "MENTION"
	ButtonBoth         ButtonKey = "BOTH"
	ButtonDefaultAudio ButtonKey = "DEFAULT_AUDIO"
	ButtonMentionAudio ButtonKey = "MENTION_AUDIO"
	ButtonBothAudio    ButtonKey = "BOTH_AUDIO"
)

// ButtonKeys lists every button in render order.
var ButtonKeys = []ButtonKey{
	ButtonReject, ButtonDefault, ButtonMention, ButtonBoth,
	ButtonDefaultAudio, ButtonMentionAudio, ButtonBothAudio,
}

// Button is the emoji/label pair shown on a decision control.
type Button struct {
	Emoji string
	Label string
}

// Config is the immutable, validated process configuration.
type Config struct {
	Path    string
	BaseDir string

	Token string

	DefaultMsgsFile      string
	MentionMsgsFile      string
	DefaultAudioMsgsFile string
	MentionAudioMsgsFile string

	// Snowflake IDs; empty when the key was blank or zero.
	SuggestionChannelID  string
	SpecialChannelID     string
	ChickenOutChannelID  string
	SuggestionPingRoleID string
	AuthorizedUserID     string

	RandomMessageChance      int
	RandomAudioMessageChance int
	MessageReloadInterval    time.Duration
	ChickenOutTimeout        time.Duration
	ChickenedOutMsg          string

	EnableRandomMessages        bool
	EnableRandomAudioMessages   bool
	EnableMentionResponses      bool
	EnableMentionAudioResponses bool
	EnableSpecialChannel        bool
	EnableChickenOut            bool
	EnableSuggestions           bool

	Buttons map[ButtonKey]Button

	SpecialYesEmoji string
	SpecialNoEmoji  string

	SuggestionEmbedColor int
	SuccessColor         int
	ErrorColor           int
	WarningColor         int

	HistoryDB         string
	SendRatePerSecond int

	// Warnings are non-fatal findings the caller should log.
	Warnings []string
	// Extra holds keys this version does not interpret.
	Extra map[string]string
}

// Error aggregates every fatal problem found while validating a file.
type Error struct {
	Path     string
	Missing  []string
	Problems []string
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "invalid configuration in %s", e.Path)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, "; missing required keys: %s", strings.Join(e.Missing, ", "))
	}
	for _, p := range e.Problems {
		b.WriteString("; ")
		b.WriteString(p)
	}
	return b.String()
}

func (e *Error) empty() bool { return len(e.Missing) == 0 && len(e.Problems) == 0 }

var requiredKeys = []string{
	"TOKEN",
	"DEFAULT_MSGS_FILE", "MENTION_MSGS_FILE", "DEFAULT_AUDIO_MSGS_FILE", "MENTION_AUDIO_MSGS_FILE",
	"SUGGESTION_CHANNEL_ID", "SPECIAL_MESSAGE_CHANNEL_ID", "CHICKEN_OUT_CHANNEL_ID",
	"SUGGESTION_PING_ROLE_ID",
	"RANDOM_MESSAGE_CHANCE", "RANDOM_AUDIO_MESSAGE_CHANCE",
	"MESSAGE_RELOAD_INTERVAL", "CHICKEN_OUT_TIMEOUT",
	"CHICKENED_OUT_MSG", "AUTHORIZED_USER_ID",
}

var defaultButtons = map[ButtonKey]Button{
	ButtonReject:       {Emoji: "🗑️", Label: "❌ Reject"},
	ButtonDefault:      {Emoji: "📌", Label: "✅ Default"},
	ButtonMention:      {Emoji: "👋", Label: "✅ Mention"},
	ButtonBoth:         {Emoji: "✨", Label: "✅ Both"},
	ButtonDefaultAudio: {Emoji: "🎙️", Label: "✅ Default Audio"},
	ButtonMentionAudio: {Emoji: "🎤", Label: "✅ Mention Audio"},
	ButtonBothAudio:    {Emoji: "🎵", Label: "✅ Both Audio"},
}

// lookupToken is replaced in tests.
var lookupToken = func(dir string) (string, error) {
	return util.LoadEnvWithFallback(TokenEnv, dir)
}

// Load reads path, applies defaults and validates. A missing file is replaced
// by the template and ErrTemplateCreated is returned.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFileName
	}
	cfg, err := Read(path)
	if errors.Is(err, ErrNotFound) {
		if werr := WriteTemplate(path, false); werr != nil {
			return nil, fmt.Errorf("write config template: %w", werr)
		}
		return nil, ErrTemplateCreated
	}
	return cfg, err
}

// Read is Load without side effects: a missing file yields ErrNotFound.
func Read(path string) (*Config, error) {
	if path == "" {
		path = DefaultFileName
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	raw, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	baseDir := util.BaseDir(path)
	if tok := raw["TOKEN"]; tok == "" || tok == tokenPlaceholder {
		if v, err := lookupToken(baseDir); err == nil && v != "" {
			raw["TOKEN"] = v
		}
	}
	return FromValues(raw, path, baseDir)
}

// Parse reads KEY=VALUE lines. Blank lines, '#' comments and lines without
// '=' are skipped; matching surrounding quotes are removed from values.
func Parse(r io.Reader) (map[string]string, error) {
	out := make(map[string]string)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = unquote(strings.TrimSpace(value))
	}
	return out, sc.Err()
}

func unquote(v string) string {
	if len(v) >= 2 {
		first, last := v[0], v[len(v)-1]
		if (first == '"' || first == '\'') && first == last {
			return v[1 : len(v)-1]
		}
	}
	return v
}

// FromValues builds a Config from parsed values.
func FromValues(raw map[string]string, path, baseDir string) (*Config, error) {
	verr := &Error{Path: path}
	for _, k := range requiredKeys {
		if _, ok := raw[k]; !ok {
			verr.Missing = append(verr.Missing, k)
		}
	}

	p := parser{raw: raw, err: verr}
	cfg := &Config{
		Path:    path,
		BaseDir: baseDir,
		Token:   raw["TOKEN"],

		DefaultMsgsFile:      raw["DEFAULT_MSGS_FILE"],
		MentionMsgsFile:      raw["MENTION_MSGS_FILE"],
		DefaultAudioMsgsFile: raw["DEFAULT_AUDIO_MSGS_FILE"],
		MentionAudioMsgsFile: raw["MENTION_AUDIO_MSGS_FILE"],

		SuggestionChannelID:  p.id("SUGGESTION_CHANNEL_ID"),
		SpecialChannelID:     p.id("SPECIAL_MESSAGE_CHANNEL_ID"),
		ChickenOutChannelID:  p.id("CHICKEN_OUT_CHANNEL_ID"),
		SuggestionPingRoleID: p.id("SUGGESTION_PING_ROLE_ID"),
		AuthorizedUserID:     p.id("AUTHORIZED_USER_ID"),

		RandomMessageChance:      p.positive("RANDOM_MESSAGE_CHANCE"),
		RandomAudioMessageChance: p.positive("RANDOM_AUDIO_MESSAGE_CHANCE"),
		MessageReloadInterval:    p.seconds("MESSAGE_RELOAD_INTERVAL"),
		ChickenOutTimeout:        p.seconds("CHICKEN_OUT_TIMEOUT"),
		ChickenedOutMsg:          raw["CHICKENED_OUT_MSG"],

		EnableRandomMessages:        p.boolean("ENABLE_RANDOM_MESSAGES", true),
		EnableRandomAudioMessages:   p.boolean("ENABLE_RANDOM_AUDIO_MESSAGES", false),
		EnableMentionResponses:      p.boolean("ENABLE_MENTION_RESPONSES", true),
		EnableMentionAudioResponses: p.boolean("ENABLE_MENTION_AUDIO_RESPONSES", false),
		EnableSpecialChannel:        p.boolean("ENABLE_SPECIAL_CHANNEL", false),
		EnableChickenOut:            p.boolean("ENABLE_CHICKEN_OUT", true),
		EnableSuggestions:           p.boolean("ENABLE_SUGGESTIONS", true),

		Buttons: make(map[ButtonKey]Button, len(defaultButtons)),

		SpecialYesEmoji: raw["SPECIAL_CHANNEL_YES_EMOJI"],
		SpecialNoEmoji:  raw["SPECIAL_CHANNEL_NO_EMOJI"],

		SuggestionEmbedColor: p.color("SUGGESTION_EMBED_COLOR", 0x0099ff),
		SuccessColor:         p.color("SUCCESS_COLOR", 0x00aa00),
		ErrorColor:           p.color("ERROR_COLOR", 0xff0000),
		WarningColor:         p.color("WARNING_COLOR", 0xffaa00),

		HistoryDB:         p.str("SUGGESTION_HISTORY_DB", "bruhbot.db"),
		SendRatePerSecond: p.optionalPositive("SEND_RATE_PER_SECOND", 5),
	}

	for _, k := range ButtonKeys {
		b := defaultButtons[k]
		if v, ok := raw[string(k)+"_BUTTON_EMOJI"]; ok {
			b.Emoji = v
		}
		if v, ok := raw[string(k)+"_BUTTON_LABEL"]; ok && v != "" {
			b.Label = v
		}
		cfg.Buttons[k] = b
	}

	if _, present := raw["TOKEN"]; present && (cfg.Token == "" || cfg.Token == tokenPlaceholder) {
		verr.Problems = append(verr.Problems, fmt.Sprintf("invalid TOKEN: set it in the config file or the %s environment variable", TokenEnv))
	}

	if !verr.empty() {
		return nil, verr
	}

	if cfg.AuthorizedUserID == "" {
		cfg.Warnings = append(cfg.Warnings, "AUTHORIZED_USER_ID is not set; nobody can approve or reject suggestions")
	}
	cfg.Extra = extraKeys(raw)
	return cfg, nil
}

type parser struct {
	raw map[string]string
	err *Error
}

func (p parser) str(key, def string) string {
	if v, ok := p.raw[key]; ok && v != "" {
		return v
	}
	return def
}

func (p parser) number(key string) (int64, bool) {
	v, ok := p.raw[key]
	if !ok {
		return 0, false
	}
	if v == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.err.Problems = append(p.err.Problems, fmt.Sprintf("%s must be a number, but got '%s'", key, v))
		return 0, false
	}
	return n, true
}

func (p parser) id(key string) string {
	v, ok := p.raw[key]
	if !ok || v == "" {
		return ""
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		p.err.Problems = append(p.err.Problems, fmt.Sprintf("%s must be a number, but got '%s'", key, v))
		return ""
	}
	if n == 0 {
		return ""
	}
	return strconv.FormatUint(n, 10)
}

func (p parser) positive(key string) int {
	n, ok := p.number(key)
	if !ok {
		return 0
	}
	if n < 1 {
		p.err.Problems = append(p.err.Problems, fmt.Sprintf("%s must be at least 1, but got %d", key, n))
		return 0
	}
	return int(n)
}

// maxSeconds is the largest second count a time.Duration can hold.
const maxSeconds = math.MaxInt64 / int64(time.Second)

func (p parser) seconds(key string) time.Duration {
	n, ok := p.number(key)
	if !ok {
		return 0
	}
	switch {
	case n < 1:
		p.err.Problems = append(p.err.Problems, fmt.Sprintf("%s must be at least 1, but got %d", key, n))
		return 0
	case n > maxSeconds:
		p.err.Problems = append(p.err.Problems, fmt.Sprintf("%s is too large: %d seconds exceeds %d", key, n, maxSeconds))
		return 0
	}
	return time.Duration(n) * time.Second
}

func (p parser) optionalPositive(key string, def int) int {
	if v, ok := p.raw[key]; !ok || v == "" {
		return def
	}
	return p.positive(key)
}

func (p parser) boolean(key string, def bool) bool {
	v, ok := p.raw[key]
	if !ok {
		return def
	}
	return util.ParseBool(v)
}

func (p parser) color(key string, def int) int {
	v, ok := p.raw[key]
	if !ok || v == "" {
		return def
	}
	c, err := ParseColor(v)
	if err != nil {
		p.err.Problems = append(p.err.Problems, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return c
}

// ParseColor accepts "0099ff", "0x0099ff" and "#0099ff".
func ParseColor(v string) (int, error) {
	s := strings.TrimSpace(v)
	s = strings.TrimPrefix(s, "#")
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil || n > 0xffffff {
		return 0, fmt.Errorf("invalid hex color %q", v)
	}
	return int(n), nil
}

var knownKeys = func() map[string]struct{} {
	m := map[string]struct{}{}
	for _, k := range requiredKeys {
		m[k] = struct{}{}
	}
	for _, k := range []string{
		"ENABLE_RANDOM_MESSAGES", "ENABLE_RANDOM_AUDIO_MESSAGES", "ENABLE_MENTION_RESPONSES",
		"ENABLE_MENTION_AUDIO_RESPONSES", "ENABLE_SPECIAL_CHANNEL", "ENABLE_CHICKEN_OUT",
		"ENABLE_SUGGESTIONS", "SPECIAL_CHANNEL_YES_EMOJI", "SPECIAL_CHANNEL_NO_EMOJI",
		"SUGGESTION_EMBED_COLOR", "SUCCESS_COLOR", "ERROR_COLOR", "WARNING_COLOR",
		"SUGGESTION_HISTORY_DB", "SEND_RATE_PER_SECOND",
	} {
		m[k] = struct{}{}
	}
	for _, b := range ButtonKeys {
		m[string(b)+"_BUTTON_EMOJI"] = struct{}{}
		m[string(b)+"_BUTTON_LABEL"] = struct{}{}
	}
	return m
}()

func extraKeys(raw map[string]string) map[string]string {
	out := make(map[string]string)
	for k, v := range raw {
		if _, ok := knownKeys[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// Summary renders the startup overview without secrets.
func (c *Config) Summary() []string {
	onOff := func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	}
	orUnset := func(s string) string {
		if s == "" {
			return "(unset)"
		}
		return s
	}
	lines := []string{
		fmt.Sprintf("config: %s", c.Path),
		fmt.Sprintf("random messages: %s (1 in %d)", onOff(c.EnableRandomMessages), c.RandomMessageChance),
		fmt.Sprintf("random audio: %s (1 in %d)", onOff(c.EnableRandomAudioMessages), c.RandomAudioMessageChance),
		fmt.Sprintf("mention responses: %s, mention audio: %s", onOff(c.EnableMentionResponses), onOff(c.EnableMentionAudioResponses)),
		fmt.Sprintf("special channel: %s (%s)", onOff(c.EnableSpecialChannel), orUnset(c.SpecialChannelID)),
		fmt.Sprintf("chicken out: %s (%s, window %s)", onOff(c.EnableChickenOut), orUnset(c.ChickenOutChannelID), c.ChickenOutTimeout),
		fmt.Sprintf("suggestions: %s (%s, role %s, approver %s)", onOff(c.EnableSuggestions), orUnset(c.SuggestionChannelID), orUnset(c.SuggestionPingRoleID), orUnset(c.AuthorizedUserID)),
		fmt.Sprintf("message reload every %s", c.MessageReloadInterval),
	}
	if len(c.Extra) > 0 {
		keys := make([]string, 0, len(c.Extra))
		for k := range c.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lines = append(lines, fmt.Sprintf("ignored keys: %s", strings.Join(keys, ", ")))
	}
	return lines
}
