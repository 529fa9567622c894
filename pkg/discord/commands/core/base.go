package core

import (
	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/bruhbot/pkg/config"
	"github.com/small-frappuccino/bruhbot/pkg/log"
)

// ContextBuilder creates contexts for command execution
type ContextBuilder struct {
	session   *discordgo.Session
	config    *config.Config
	checker   *PermissionChecker
	responder *Responder
}

// NewContextBuilder creates a new context builder
func NewContextBuilder(session *discordgo.Session, cfg *config.Config, checker *PermissionChecker, responder *Responder) *ContextBuilder {
	return &ContextBuilder{
		session:   session,
		config:    cfg,
		checker:   checker,
		responder: responder,
	}
}

// BuildContext creates a complete context for one interaction.
func (cb *ContextBuilder) BuildContext(i *discordgo.InteractionCreate) *Context {
	user := extractUser(i)
	userID, userName := "", ""
	if user != nil {
		userID, userName = user.ID, user.Username
	}

	return &Context{
		Session:     cb.session,
		Interaction: i,
		Config:      cb.config,
		Logger:      log.DiscordLogger().With("interactionID", i.ID, "guildID", i.GuildID, "userID", userID),
		GuildID:     i.GuildID,
		UserID:      userID,
		UserName:    userName,
		IsOperator:  cb.checker.IsOperator(i),
		responder:   cb.responder,
	}
}

// extractUser returns the invoking user for guild and DM interactions.
func extractUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

// interactionName names the interaction for logs.
func interactionName(i *discordgo.InteractionCreate) string {
	switch i.Type {
	case discordgo.InteractionApplicationCommand, discordgo.InteractionApplicationCommandAutocomplete:
		return i.ApplicationCommandData().Name
	case discordgo.InteractionMessageComponent:
		return i.MessageComponentData().CustomID
	}
	return ""
}
