package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/bruhbot/pkg/config"
	"github.com/small-frappuccino/bruhbot/pkg/errutil"
	"github.com/small-frappuccino/bruhbot/pkg/log"
	"github.com/small-frappuccino/bruhbot/pkg/theme"
)

// CommandRegistry holds commands by name and component handlers by custom ID
// prefix.
type CommandRegistry struct {
	commands   map[string]Command
	components map[string]ComponentHandler
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands:   make(map[string]Command),
		components: make(map[string]ComponentHandler),
	}
}

// Register adds a command, replacing any with the same name.
func (r *CommandRegistry) Register(cmd Command) {
	r.commands[cmd.Name()] = cmd
}

// RegisterComponent routes component interactions whose custom ID starts
// with prefix to h.
func (r *CommandRegistry) RegisterComponent(prefix string, h ComponentHandler) {
	r.components[prefix] = h
}

// GetCommand returns a command by name
func (r *CommandRegistry) GetCommand(name string) (Command, bool) {
	cmd, exists := r.commands[name]
	return cmd, exists
}

// GetComponent finds the handler with the longest prefix matching customID.
func (r *CommandRegistry) GetComponent(customID string) (ComponentHandler, bool) {
	best := ""
	var found ComponentHandler
	for prefix, h := range r.components {
		if strings.HasPrefix(customID, prefix) && len(prefix) > len(best) {
			best, found = prefix, h
		}
	}
	return found, found != nil
}

// GetAllCommands returns all registered commands
func (r *CommandRegistry) GetAllCommands() map[string]Command {
	return r.commands
}

// CommandRouter dispatches interactions to commands and component handlers.
type CommandRouter struct {
	registry       *CommandRegistry
	contextBuilder *ContextBuilder
	responder      *Responder
}

// NewCommandRouter creates a new command router. A nil theme is built from
// cfg.
func NewCommandRouter(session *discordgo.Session, cfg *config.Config, th *theme.Theme) *CommandRouter {
	if th == nil {
		th = theme.FromConfig(cfg)
	}
	responder := NewResponder(session, th)
	permChecker := NewPermissionChecker(cfg)
	return &CommandRouter{
		registry:       NewCommandRegistry(),
		contextBuilder: NewContextBuilder(session, cfg, permChecker, responder),
		responder:      responder,
	}
}

// RegisterCommand registers a command
func (cr *CommandRouter) RegisterCommand(cmd Command) {
	cr.registry.Register(cmd)
}

// RegisterComponent registers a component handler by custom ID prefix.
func (cr *CommandRouter) RegisterComponent(prefix string, h ComponentHandler) {
	cr.registry.RegisterComponent(prefix, h)
}

// HandleInteraction routes interactions to the appropriate handlers
func (cr *CommandRouter) HandleInteraction(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if i == nil || i.Interaction == nil {
		return
	}
	ctx := cr.contextBuilder.BuildContext(i)
	errutil.Guard("commands."+interactionName(i), func() {
		defer func() {
			if r := recover(); r != nil {
				cr.reportError(ctx, fmt.Errorf("panic: %v", r))
				panic(r)
			}
		}()
		switch i.Type {
		case discordgo.InteractionApplicationCommand:
			cr.handleCommand(ctx)
		case discordgo.InteractionMessageComponent:
			cr.handleComponent(ctx)
		}
	})
}

// handleCommand runs slash and context menu commands.
func (cr *CommandRouter) handleCommand(ctx *Context) {
	commandName := ctx.Interaction.ApplicationCommandData().Name
	ctx.Logger = ctx.Logger.With("command", commandName)

	cmd, exists := cr.registry.GetCommand(commandName)
	if !exists {
		ctx.Logger.Error("Command not found")
		_ = cr.responder.Error(ctx, "Command not found")
		return
	}

	if cmd.RequiresGuild() && ctx.GuildID == "" {
		ctx.Logger.Warn("Command used outside of guild")
		_ = cr.responder.Error(ctx, "This command can only be used in a server")
		return
	}

	if cmd.RequiresPermissions() && !ctx.IsOperator {
		ctx.Logger.Warn("User without permission tried to use command")
		_ = cr.responder.Error(ctx, "You do not have permission to use this command")
		return
	}

	ctx.Logger.Info("Executing command", "user", ctx.UserName)
	if err := cmd.Handle(ctx); err != nil {
		cr.reportError(ctx, err)
	}
}

func (cr *CommandRouter) handleComponent(ctx *Context) {
	customID := ctx.Interaction.MessageComponentData().CustomID
	ctx.Logger = ctx.Logger.With("customID", customID)

	h, ok := cr.registry.GetComponent(customID)
	if !ok {
		ctx.Logger.Debug("No handler for component")
		return
	}
	if err := h(ctx); err != nil {
		cr.reportError(ctx, err)
	}
}

// reportError logs a handler failure and tells the user about it.
func (cr *CommandRouter) reportError(ctx *Context, err error) {
	ctx.Logger.Error("Command execution failed", "user", ctx.UserName, "error", err)

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		if rerr := cr.responder.Send(ctx, cmdErr.Message, nil, cmdErr.Ephemeral); rerr != nil {
			ctx.Logger.Warn("Failed to send command error", "error", rerr)
		}
		return
	}
	if rerr := cr.responder.Error(ctx, err.Error()); rerr != nil {
		ctx.Logger.Warn("Failed to send command error", "error", rerr)
	}
}

// CommandManager syncs the registered commands with Discord and installs
// the interaction handler.
type CommandManager struct {
	session *discordgo.Session
	router  *CommandRouter
	remove  func()
}

// NewCommandManager creates a new command manager
func NewCommandManager(session *discordgo.Session, cfg *config.Config, th *theme.Theme) *CommandManager {
	return &CommandManager{
		session: session,
		router:  NewCommandRouter(session, cfg, th),
	}
}

// GetRouter returns the command router
func (cm *CommandManager) GetRouter() *CommandRouter {
	return cm.router
}

// desired builds the API definition of a registered command.
func desired(cmd Command) *discordgo.ApplicationCommand {
	ac := &discordgo.ApplicationCommand{
		Type:        discordgo.ChatApplicationCommand,
		Name:        cmd.Name(),
		Description: cmd.Description(),
		Options:     cmd.Options(),
	}
	if tc, ok := cmd.(TypedCommand); ok && tc.Type() != discordgo.ChatApplicationCommand {
		ac.Type = tc.Type()
		ac.Description = ""
		ac.Options = nil
	}
	if cmd.RequiresPermissions() {
		perms := int64(discordgo.PermissionAdministrator)
		ac.DefaultMemberPermissions = &perms
	}
	return ac
}

// SetupCommands installs the interaction handler and synchronizes commands
// incrementally: new ones are created, changed ones edited and orphans
// deleted.
func (cm *CommandManager) SetupCommands() error {
	if cm.remove == nil {
		cm.remove = cm.session.AddHandler(cm.router.HandleInteraction)
	}
	if cm.session.State == nil || cm.session.State.User == nil {
		return fmt.Errorf("session has no application user; open the session first")
	}
	appID := cm.session.State.User.ID

	registered, err := cm.session.ApplicationCommands(appID, "")
	if err != nil {
		return fmt.Errorf("failed to fetch registered commands: %w", err)
	}
	regByKey := make(map[string]*discordgo.ApplicationCommand, len(registered))
	for _, rc := range registered {
		regByKey[commandKey(rc)] = rc
	}

	codeCommands := cm.router.registry.GetAllCommands()
	names := make([]string, 0, len(codeCommands))
	for name := range codeCommands {
		names = append(names, name)
	}
	sort.Strings(names)

	logger := log.DiscordLogger().With("component", "command_manager")
	wanted := make(map[string]struct{}, len(names))
	created, updated, unchanged := 0, 0, 0
	for _, name := range names {
		want := desired(codeCommands[name])
		key := commandKey(want)
		wanted[key] = struct{}{}

		if existing, ok := regByKey[key]; ok {
			if CompareCommands(existing, want) {
				logger.Debug("Command unchanged, skipping", "command", name)
				unchanged++
				continue
			}
			if _, err := cm.session.ApplicationCommandEdit(appID, "", existing.ID, want); err != nil {
				return fmt.Errorf("error updating command '%s': %w", name, err)
			}
			logger.Info("Command updated", "command", name)
			updated++
			continue
		}
		if _, err := cm.session.ApplicationCommandCreate(appID, "", want); err != nil {
			return fmt.Errorf("error creating command '%s': %w", name, err)
		}
		logger.Info("Command created", "command", name)
		created++
	}

	deleted := 0
	for _, rc := range registered {
		if _, ok := wanted[commandKey(rc)]; ok {
			continue
		}
		if err := cm.session.ApplicationCommandDelete(appID, "", rc.ID); err != nil {
			logger.Warn("Error removing orphan command", "command", rc.Name, "error", err)
			continue
		}
		logger.Info("Orphan command removed", "command", rc.Name)
		deleted++
	}

	logger.Info("Command synchronization completed",
		"created", created,
		"updated", updated,
		"deleted", deleted,
		"unchanged", unchanged,
		"total", len(codeCommands),
		"mode", "incremental",
	)
	return nil
}

// Shutdown removes the interaction handler.
func (cm *CommandManager) Shutdown() {
	if cm.remove != nil {
		cm.remove()
		cm.remove = nil
	}
}

// commandKey distinguishes a slash command from a context menu entry with
// the same name.
func commandKey(c *discordgo.ApplicationCommand) string {
	t := c.Type
	if t == 0 {
		t = discordgo.ChatApplicationCommand
	}
	return fmt.Sprintf("%d:%s", t, c.Name)
}

// SimpleCommand implements Command from a handler function.
type SimpleCommand struct {
	name                string
	description         string
	commandType         discordgo.ApplicationCommandType
	options             []*discordgo.ApplicationCommandOption
	handler             func(ctx *Context) error
	requiresGuild       bool
	requiresPermissions bool
}

// NewSimpleCommand creates a chat input command.
func NewSimpleCommand(
	name, description string,
	options []*discordgo.ApplicationCommandOption,
	handler func(ctx *Context) error,
	requiresGuild, requiresPermissions bool,
) *SimpleCommand {
	return &SimpleCommand{
		name:                name,
		description:         description,
		commandType:         discordgo.ChatApplicationCommand,
		options:             options,
		handler:             handler,
		requiresGuild:       requiresGuild,
		requiresPermissions: requiresPermissions,
	}
}

// NewMessageCommand creates a message context menu command.
func NewMessageCommand(name string, handler func(ctx *Context) error, requiresGuild bool) *SimpleCommand {
	return &SimpleCommand{
		name:          name,
		commandType:   discordgo.MessageApplicationCommand,
		handler:       handler,
		requiresGuild: requiresGuild,
	}
}

func (sc *SimpleCommand) Name() string { return sc.name }

func (sc *SimpleCommand) Description() string { return sc.description }

func (sc *SimpleCommand) Type() discordgo.ApplicationCommandType { return sc.commandType }

func (sc *SimpleCommand) Options() []*discordgo.ApplicationCommandOption { return sc.options }

func (sc *SimpleCommand) Handle(ctx *Context) error { return sc.handler(ctx) }

func (sc *SimpleCommand) RequiresGuild() bool { return sc.requiresGuild }

func (sc *SimpleCommand) RequiresPermissions() bool { return sc.requiresPermissions }
