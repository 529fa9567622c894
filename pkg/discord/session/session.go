package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/bruhbot/pkg/errutil"
	"github.com/small-frappuccino/bruhbot/pkg/log"
)

// Error messages
const (
	ErrSessionCreationFailed   = "failed to create Discord session: %w"
	ErrSessionConnectionFailed = "failed to connect to Discord: %w"
)

// ErrAuthenticationFailed marks a connection refused because of the token.
var ErrAuthenticationFailed = errors.New("discord rejected the bot token")

// Intents requested by the bot. Message content and members are privileged
// and must be enabled in the developer portal.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMembers |
	discordgo.IntentMessageContent

var (
	newSession   = func(token string) (*discordgo.Session, error) { return discordgo.New("Bot " + token) }
	openSession  = func(s *discordgo.Session) error { return s.Open() }
	closeSession = func(s *discordgo.Session) error { return s.Close() }
)

// ErrSetupFailed wraps the error of a setup func; the gateway is not opened.
var ErrSetupFailed = errors.New("session setup failed")

// SetupFunc prepares a session before it connects.
type SetupFunc func(*discordgo.Session) error

// NewDiscordSession creates a session, runs every setup func (handler
// registration goes here so nothing misses READY), then connects. The first
// setup error aborts before the connection opens.
func NewDiscordSession(token string, setup ...SetupFunc) (*discordgo.Session, error) {
	if strings.TrimSpace(token) == "" {
		log.DiscordLogger().Error("Discord bot token is empty; set TOKEN in the config file before starting the bot")
		return nil, fmt.Errorf("discord bot token is empty")
	}

	log.DiscordLogger().Info("Creating Discord session")
	var s *discordgo.Session
	if err := errutil.HandleDiscordError("create_session", func() error {
		var sessionErr error
		s, sessionErr = newSession(token)
		return sessionErr
	}); err != nil {
		return nil, fmt.Errorf(ErrSessionCreationFailed, err)
	}
	s.Identify.Intents = Intents

	for _, fn := range setup {
		if fn == nil {
			continue
		}
		if err := fn(s); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSetupFailed, err)
		}
	}

	log.DiscordLogger().Info("Connecting to Discord...")
	if err := errutil.HandleDiscordError("connect", func() error { return openSession(s) }); err != nil {
		_ = closeSession(s)
		if isAuthFailure(err) {
			err = fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
		}
		return nil, fmt.Errorf(ErrSessionConnectionFailed, err)
	}

	log.DiscordLogger().Info("Connected to Discord")
	return s, nil
}

// Close disconnects the session, ignoring a nil session.
func Close(s *discordgo.Session) error {
	if s == nil {
		return nil
	}
	return closeSession(s)
}

// isAuthFailure recognizes the gateway's 4004 close code and REST 401s.
func isAuthFailure(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == 401 {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "4004") || strings.Contains(strings.ToLower(msg), "authentication failed")
}
