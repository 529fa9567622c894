package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Template is the commented starting point written when no config exists.
const Template = `# Bruh Bot Configuration File
# Fill in the values below with your actual configuration

# ===== CORE SETTINGS =====
# Discord Bot Token (REQUIRED). May also come from BRUHBOT_TOKEN or a .env file.
TOKEN=YOUR_BOT_TOKEN_HERE

# ===== MESSAGE FILES =====
# Paths are relative to this file's directory.
DEFAULT_MSGS_FILE=default_msgs.txt
MENTION_MSGS_FILE=mention_msgs.txt
# Audio lists hold file paths or http(s) URLs, one per line
DEFAULT_AUDIO_MSGS_FILE=default_audio_msgs.txt
MENTION_AUDIO_MSGS_FILE=mention_audio_msgs.txt

# ===== CHANNEL IDS =====
# Channel where suggestions are posted for review
SUGGESTION_CHANNEL_ID=
# Channel where every message gets reactions and a discussion thread
SPECIAL_MESSAGE_CHANNEL_ID=
# Channel for "chicken out" notifications
CHICKEN_OUT_CHANNEL_ID=

# ===== ROLE IDS =====
# Role to mention when a message is suggested
SUGGESTION_PING_ROLE_ID=

# ===== BOT BEHAVIORS =====
# Chance (1 in X) to send a random default message (100 = 1%)
RANDOM_MESSAGE_CHANCE=100
# Chance (1 in X) to send a random default audio message (200 = 0.5%)
RANDOM_AUDIO_MESSAGE_CHANCE=200
# Seconds between reloads of the message files
MESSAGE_RELOAD_INTERVAL=300
# Seconds after joining during which leaving counts as chickening out
CHICKEN_OUT_TIMEOUT=900
# Message sent after the chicken out notice
CHICKENED_OUT_MSG=https://tenor.com/view/walk-away-gif-8390063

# ===== PERMISSIONS =====
# User ID allowed to approve or reject suggestions
AUTHORIZED_USER_ID=

# ===== FEATURE TOGGLES =====
ENABLE_RANDOM_MESSAGES=true
ENABLE_RANDOM_AUDIO_MESSAGES=false
ENABLE_MENTION_RESPONSES=true
ENABLE_MENTION_AUDIO_RESPONSES=false
ENABLE_SPECIAL_CHANNEL=false
ENABLE_CHICKEN_OUT=true
ENABLE_SUGGESTIONS=true

# ===== SUGGESTION BUTTONS =====
REJECT_BUTTON_EMOJI=🗑️
REJECT_BUTTON_LABEL=❌ Reject
DEFAULT_BUTTON_EMOJI=📌
DEFAULT_BUTTON_LABEL=✅ Default
MENTION_BUTTON_EMOJI=👋
MENTION_BUTTON_LABEL=✅ Mention
BOTH_BUTTON_EMOJI=✨
BOTH_BUTTON_LABEL=✅ Both
DEFAULT_AUDIO_BUTTON_EMOJI=🎙️
DEFAULT_AUDIO_BUTTON_LABEL=✅ Default Audio
MENTION_AUDIO_BUTTON_EMOJI=🎤
MENTION_AUDIO_BUTTON_LABEL=✅ Mention Audio
BOTH_AUDIO_BUTTON_EMOJI=🎵
BOTH_AUDIO_BUTTON_LABEL=✅ Both Audio

# ===== SPECIAL CHANNEL REACTIONS =====
# Custom emoji as <:name:id>, or leave empty for ✅ / ❌
SPECIAL_CHANNEL_YES_EMOJI=
SPECIAL_CHANNEL_NO_EMOJI=

# ===== COLORS (hex, with or without 0x) =====
SUGGESTION_EMBED_COLOR=0x0099ff
SUCCESS_COLOR=00aa00
ERROR_COLOR=ff0000
WARNING_COLOR=ffaa00

# ===== STORAGE AND LIMITS =====
# SQLite file for join records and suggestion history
SUGGESTION_HISTORY_DB=bruhbot.db
# Maximum outbound random/mention sends per second
SEND_RATE_PER_SECOND=5
`

// ErrConfigExists is returned by WriteTemplate when the target exists and
// overwrite was not requested.
var ErrConfigExists = errors.New("config file already exists")

// WriteTemplate writes Template to path, creating parent directories.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(Template), 0o600)
}
