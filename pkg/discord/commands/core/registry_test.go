package core

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/bruhbot/internal/discordtest"
	"github.com/small-frappuccino/bruhbot/pkg/config"
)

type testCommand struct {
	name                string
	requiresGuild       bool
	requiresPermissions bool
	handler             func(*Context) error
}

func (tc testCommand) Name() string        { return tc.name }
func (tc testCommand) Description() string { return tc.name }
func (tc testCommand) Options() []*discordgo.ApplicationCommandOption {
	return nil
}
func (tc testCommand) Handle(ctx *Context) error {
	if tc.handler != nil {
		return tc.handler(ctx)
	}
	return nil
}
func (tc testCommand) RequiresGuild() bool       { return tc.requiresGuild }
func (tc testCommand) RequiresPermissions() bool { return tc.requiresPermissions }

type callbackBody struct {
	Type discordgo.InteractionResponseType `json:"type"`
	Data struct {
		Content string                `json:"content"`
		Flags   discordgo.MessageFlags `json:"flags"`
	} `json:"data"`
}

func callbacks(t *testing.T, fake *discordtest.Server) []callbackBody {
	t.Helper()
	var out []callbackBody
	for _, r := range fake.Find(http.MethodPost, "/callback") {
		var b callbackBody
		r.Decode(t, &b)
		out = append(out, b)
	}
	return out
}

func newRouter(t *testing.T, cfg *config.Config) (*CommandRouter, *discordtest.Server) {
	t.Helper()
	session, fake := discordtest.New(t)
	if cfg == nil {
		cfg = &config.Config{}
	}
	return NewCommandRouter(session, cfg, nil), fake
}

func buildInteraction(command, guildID, userID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:      "interaction-" + command,
			AppID:   "app",
			Token:   "token",
			Type:    discordgo.InteractionApplicationCommand,
			GuildID: guildID,
			Member:  &discordgo.Member{User: &discordgo.User{ID: userID, Username: "user-" + userID}},
			Data: discordgo.ApplicationCommandInteractionData{
				ID:      "cmd-" + command,
				Name:    command,
				Options: []*discordgo.ApplicationCommandInteractionDataOption{},
			},
		},
	}
}

func buildComponent(customID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:      "interaction-component",
			AppID:   "app",
			Token:   "token",
			Type:    discordgo.InteractionMessageComponent,
			GuildID: "guild",
			Member:  &discordgo.Member{User: &discordgo.User{ID: "user"}},
			Data:    discordgo.MessageComponentInteractionData{CustomID: customID},
		},
	}
}

func TestCommandRegistryRegisterLookup(t *testing.T) {
	registry := NewCommandRegistry()
	first := testCommand{name: "ping"}
	registry.Register(first)

	if got, ok := registry.GetCommand("ping"); !ok || got.Name() != first.Name() {
		t.Fatalf("expected to find command, got ok=%v value=%v", ok, got)
	}

	second := testCommand{name: "ping", requiresGuild: true}
	registry.Register(second)
	if got, ok := registry.GetCommand("ping"); !ok || got.RequiresGuild() != second.requiresGuild {
		t.Fatalf("expected duplicate registration to overwrite, got ok=%v value=%v", ok, got)
	}
}

func TestCommandRegistryComponentLongestPrefix(t *testing.T) {
	registry := NewCommandRegistry()
	var hit string
	registry.RegisterComponent("suggestion:", func(*Context) error { hit = "short"; return nil })
	registry.RegisterComponent("suggestion:reject", func(*Context) error { hit = "long"; return nil })

	h, ok := registry.GetComponent("suggestion:reject")
	if !ok {
		t.Fatalf("expected a handler")
	}
	_ = h(nil)
	if hit != "long" {
		t.Fatalf("expected longest prefix to win, got %q", hit)
	}
	if _, ok := registry.GetComponent("other:thing"); ok {
		t.Fatalf("expected no handler for unknown prefix")
	}
}

func TestHandleInteractionUnknownCommand(t *testing.T) {
	router, fake := newRouter(t, nil)

	router.HandleInteraction(nil, buildInteraction("missing", "guild", "user"))

	responses := callbacks(t, fake)
	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}
	if !strings.Contains(responses[0].Data.Content, "Command not found") {
		t.Fatalf("unexpected content: %q", responses[0].Data.Content)
	}
	if responses[0].Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Fatalf("expected ephemeral flag to be set")
	}
}

func TestHandleInteractionRequiresGuild(t *testing.T) {
	router, fake := newRouter(t, nil)

	router.RegisterCommand(testCommand{name: "guild", requiresGuild: true, handler: func(*Context) error {
		t.Fatalf("handler should not execute when missing guild")
		return nil
	}})

	router.HandleInteraction(nil, buildInteraction("guild", "", "user"))

	responses := callbacks(t, fake)
	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}
	if !strings.Contains(responses[0].Data.Content, "only be used in a server") {
		t.Fatalf("unexpected content: %q", responses[0].Data.Content)
	}
}

func TestHandleInteractionPermissionDenied(t *testing.T) {
	router, fake := newRouter(t, &config.Config{AuthorizedUserID: "owner"})

	router.RegisterCommand(testCommand{name: "secure", requiresPermissions: true, handler: func(*Context) error {
		t.Fatalf("handler should not execute when permission denied")
		return nil
	}})

	router.HandleInteraction(nil, buildInteraction("secure", "guild", "user"))

	responses := callbacks(t, fake)
	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}
	if !strings.Contains(responses[0].Data.Content, "permission") {
		t.Fatalf("unexpected content: %q", responses[0].Data.Content)
	}
	if responses[0].Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Fatalf("expected ephemeral flag to be set")
	}
}

func TestHandleInteractionOperators(t *testing.T) {
	tests := []struct {
		name     string
		userID   string
		perms    int64
		expected bool
	}{
		{name: "authorized user", userID: "owner", expected: true},
		{name: "administrator", userID: "admin", perms: discordgo.PermissionAdministrator, expected: true},
		{name: "regular member", userID: "user", perms: discordgo.PermissionSendMessages, expected: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newRouter(t, &config.Config{AuthorizedUserID: "owner"})
			ran := false
			router.RegisterCommand(testCommand{name: "secure", requiresPermissions: true, handler: func(ctx *Context) error {
				ran = true
				return nil
			}})

			i := buildInteraction("secure", "guild", tt.userID)
			i.Member.Permissions = tt.perms
			router.HandleInteraction(nil, i)
			if ran != tt.expected {
				t.Fatalf("handler ran=%v, want %v", ran, tt.expected)
			}
		})
	}
}

func TestHandleInteractionCommandErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		expectFlag bool
		content    string
	}{
		{name: "ephemeral", err: &CommandError{Message: "boom", Ephemeral: true}, expectFlag: true, content: "boom"},
		{name: "public", err: &CommandError{Message: "boom"}, expectFlag: false, content: "boom"},
		{name: "plain error", err: errors.New("disk full"), expectFlag: true, content: "❌ Error: disk full"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, fake := newRouter(t, nil)
			router.RegisterCommand(testCommand{name: "cmd", handler: func(*Context) error {
				return tt.err
			}})

			router.HandleInteraction(nil, buildInteraction("cmd", "guild", "user"))

			responses := callbacks(t, fake)
			if len(responses) != 1 {
				t.Fatalf("expected 1 response, got %d", len(responses))
			}
			gotFlag := responses[0].Data.Flags&discordgo.MessageFlagsEphemeral != 0
			if gotFlag != tt.expectFlag {
				t.Fatalf("ephemeral flag mismatch: got %v want %v", gotFlag, tt.expectFlag)
			}
			if responses[0].Data.Content != tt.content {
				t.Fatalf("unexpected content: %q", responses[0].Data.Content)
			}
		})
	}
}

func TestHandleInteractionErrorAfterResponseUsesFollowup(t *testing.T) {
	router, fake := newRouter(t, nil)
	router.RegisterCommand(testCommand{name: "cmd", handler: func(ctx *Context) error {
		if err := ctx.Responder().Ephemeral(ctx, "working"); err != nil {
			return err
		}
		return errors.New("late failure")
	}})

	router.HandleInteraction(nil, buildInteraction("cmd", "guild", "user"))

	if got := len(callbacks(t, fake)); got != 1 {
		t.Fatalf("expected 1 callback, got %d", got)
	}
	followups := fake.Find(http.MethodPost, "/webhooks/app/token")
	if len(followups) != 1 {
		t.Fatalf("expected 1 followup, got %d", len(followups))
	}
	var body struct {
		Content string `json:"content"`
	}
	followups[0].Decode(t, &body)
	if body.Content != "❌ Error: late failure" {
		t.Fatalf("unexpected followup: %q", body.Content)
	}
}

func TestHandleInteractionRecoversPanics(t *testing.T) {
	router, fake := newRouter(t, nil)
	router.RegisterCommand(testCommand{name: "cmd", handler: func(*Context) error {
		panic("kaboom")
	}})

	router.HandleInteraction(nil, buildInteraction("cmd", "guild", "user"))

	responses := callbacks(t, fake)
	if len(responses) != 1 || !strings.Contains(responses[0].Data.Content, "kaboom") {
		t.Fatalf("expected panic to be reported, got %+v", responses)
	}
}

func TestHandleInteractionRoutesComponents(t *testing.T) {
	router, fake := newRouter(t, nil)
	var seen string
	router.RegisterComponent("suggestion:", func(ctx *Context) error {
		seen = ctx.Interaction.MessageComponentData().CustomID
		return nil
	})

	router.HandleInteraction(nil, buildComponent("suggestion:both"))
	if seen != "suggestion:both" {
		t.Fatalf("component handler not invoked, seen=%q", seen)
	}

	router.HandleInteraction(nil, buildComponent("unrelated"))
	if got := len(fake.Requests()); got != 0 {
		t.Fatalf("expected no requests for unhandled component, got %d", got)
	}
}

func TestDesiredCommandShape(t *testing.T) {
	admin := desired(NewSimpleCommand("reload-msgs", "Reload", nil, nil, false, true))
	if admin.DefaultMemberPermissions == nil || *admin.DefaultMemberPermissions != discordgo.PermissionAdministrator {
		t.Fatalf("expected administrator default permissions, got %v", admin.DefaultMemberPermissions)
	}

	open := desired(NewSimpleCommand("msg-count", "Count", nil, nil, false, false))
	if open.DefaultMemberPermissions != nil {
		t.Fatalf("expected no default permissions")
	}
	if open.Type != discordgo.ChatApplicationCommand {
		t.Fatalf("unexpected type %v", open.Type)
	}

	msg := desired(NewMessageCommand("Suggest message", nil, false))
	if msg.Type != discordgo.MessageApplicationCommand || msg.Description != "" {
		t.Fatalf("unexpected message command shape: %+v", msg)
	}
}

func TestCompareCommands(t *testing.T) {
	perms := int64(discordgo.PermissionAdministrator)
	remote := &discordgo.ApplicationCommand{ID: "1", Name: "list-msgs", Description: "List", DefaultMemberPermissions: &perms}
	local := &discordgo.ApplicationCommand{Type: discordgo.ChatApplicationCommand, Name: "list-msgs", Description: "List", DefaultMemberPermissions: &perms, Options: []*discordgo.ApplicationCommandOption{}}
	if !CompareCommands(remote, local) {
		t.Fatalf("expected commands to compare equal")
	}
	local.Description = "Changed"
	if CompareCommands(remote, local) {
		t.Fatalf("expected description change to be detected")
	}
}

func TestSetupCommandsIncremental(t *testing.T) {
	session, fake := discordtest.New(t)
	cm := NewCommandManager(session, &config.Config{}, nil)
	t.Cleanup(cm.Shutdown)

	cm.GetRouter().RegisterCommand(NewSimpleCommand("msg-count", "Show how many messages are loaded", nil, nil, false, false))
	cm.GetRouter().RegisterCommand(NewSimpleCommand("reload-msgs", "Reload", nil, nil, false, true))
	cm.GetRouter().RegisterCommand(NewMessageCommand("Suggest message", nil, false))

	fake.Respond(http.MethodGet, "/applications/bot/commands", http.StatusOK, `[
		{"id":"10","type":1,"name":"msg-count","description":"Show how many messages are loaded"},
		{"id":"11","type":1,"name":"reload-msgs","description":"Old"},
		{"id":"12","type":1,"name":"obsolete","description":"Gone"}
	]`)

	if err := cm.SetupCommands(); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	if got := len(fake.Find(http.MethodPatch, "/commands/11")); got != 1 {
		t.Fatalf("expected reload-msgs to be edited, got %d", got)
	}
	if got := len(fake.Find(http.MethodPatch, "/commands/10")); got != 0 {
		t.Fatalf("expected msg-count to be left alone, got %d", got)
	}
	if got := len(fake.Find(http.MethodDelete, "/commands/12")); got != 1 {
		t.Fatalf("expected obsolete command to be deleted, got %d", got)
	}
	creates := fake.Find(http.MethodPost, "/applications/bot/commands")
	if len(creates) != 1 {
		t.Fatalf("expected one create, got %d", len(creates))
	}
	var created struct {
		Type discordgo.ApplicationCommandType `json:"type"`
		Name string                           `json:"name"`
	}
	creates[0].Decode(t, &created)
	if created.Name != "Suggest message" || created.Type != discordgo.MessageApplicationCommand {
		t.Fatalf("unexpected create: %+v", created)
	}
}
