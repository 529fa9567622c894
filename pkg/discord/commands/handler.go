package commands

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/bruhbot/pkg/config"
	"github.com/small-frappuccino/bruhbot/pkg/discord/commands/core"
	"github.com/small-frappuccino/bruhbot/pkg/discord/commands/msgs"
	"github.com/small-frappuccino/bruhbot/pkg/log"
	"github.com/small-frappuccino/bruhbot/pkg/theme"
)

// CommandHandler is the main handler that coordinates all bot commands
type CommandHandler struct {
	session        *discordgo.Session
	cfg            *config.Config
	theme          *theme.Theme
	lists          msgs.Lists
	suggestions    msgs.Suggestions
	commandManager *core.CommandManager
}

// NewCommandHandler creates a new CommandHandler instance
func NewCommandHandler(
	session *discordgo.Session,
	cfg *config.Config,
	th *theme.Theme,
	lists msgs.Lists,
	suggestions msgs.Suggestions,
) *CommandHandler {
	return &CommandHandler{
		session:     session,
		cfg:         cfg,
		theme:       th,
		lists:       lists,
		suggestions: suggestions,
	}
}

// SetupCommands registers all bot commands and syncs them with Discord.
func (ch *CommandHandler) SetupCommands() error {
	log.ApplicationLogger().Info("Setting up bot commands...")

	ch.commandManager = core.NewCommandManager(ch.session, ch.cfg, ch.theme)
	msgs.RegisterCommands(ch.commandManager.GetRouter(), ch.lists, ch.suggestions)

	if err := ch.commandManager.SetupCommands(); err != nil {
		return fmt.Errorf("failed to setup commands: %w", err)
	}

	log.ApplicationLogger().Info("Bot commands setup completed successfully")
	return nil
}

// Shutdown detaches the interaction handler.
func (ch *CommandHandler) Shutdown() error {
	log.ApplicationLogger().Info("Shutting down command handler...")
	if ch.commandManager != nil {
		ch.commandManager.Shutdown()
	}
	return nil
}
