package core

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/bruhbot/pkg/config"
)

// Command is an application command handled by the router.
type Command interface {
	Name() string
	Description() string
	Options() []*discordgo.ApplicationCommandOption
	Handle(ctx *Context) error
	RequiresGuild() bool
	RequiresPermissions() bool
}

// TypedCommand is implemented by commands that are not chat input commands,
// such as message context menu entries.
type TypedCommand interface {
	Type() discordgo.ApplicationCommandType
}

// ComponentHandler handles message component interactions whose custom ID
// starts with the prefix it was registered under.
type ComponentHandler func(ctx *Context) error

// Context carries everything a handler needs for one interaction.
type Context struct {
	Session     *discordgo.Session
	Interaction *discordgo.InteractionCreate
	Config      *config.Config
	Logger      *slog.Logger
	GuildID     string
	UserID      string
	UserName    string
	IsOperator  bool

	responder *Responder
	// acked is set once an initial response has been sent.
	acked bool
}

// Responder returns the responder bound to this interaction.
func (ctx *Context) Responder() *Responder { return ctx.responder }

// CommandError is an error whose message is shown to the user verbatim.
type CommandError struct {
	Message   string
	Ephemeral bool
}

func (e *CommandError) Error() string {
	return e.Message
}
