package core

import (
	"encoding/json"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/bruhbot/pkg/config"
)

// OptionExtractor simplifies extraction of options for Discord commands
type OptionExtractor struct {
	options []*discordgo.ApplicationCommandInteractionDataOption
}

// NewOptionExtractor creates a new option extractor
func NewOptionExtractor(options []*discordgo.ApplicationCommandInteractionDataOption) *OptionExtractor {
	return &OptionExtractor{options: options}
}

// String extracts a string option by name
func (e *OptionExtractor) String(name string) string {
	for _, opt := range e.options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return strings.TrimSpace(opt.StringValue())
		}
	}
	return ""
}

// StringOr returns the option or def when it is absent or blank.
func (e *OptionExtractor) StringOr(name, def string) string {
	if v := e.String(name); v != "" {
		return v
	}
	return def
}

// PermissionChecker decides who may run operator commands: the configured
// approver and members holding the Administrator permission.
type PermissionChecker struct {
	authorizedUserID string
}

func NewPermissionChecker(cfg *config.Config) *PermissionChecker {
	pc := &PermissionChecker{}
	if cfg != nil {
		pc.authorizedUserID = cfg.AuthorizedUserID
	}
	return pc
}

// IsOperator reports whether the interaction's user is an operator.
func (pc *PermissionChecker) IsOperator(i *discordgo.InteractionCreate) bool {
	if u := extractUser(i); u != nil && pc.authorizedUserID != "" && u.ID == pc.authorizedUserID {
		return true
	}
	return i.Member != nil && i.Member.Permissions&discordgo.PermissionAdministrator != 0
}

// CompareCommands reports whether two command definitions are equivalent
// for synchronization purposes.
func CompareCommands(a, b *discordgo.ApplicationCommand) bool {
	type shape struct {
		Type        discordgo.ApplicationCommandType      `json:"type"`
		Name        string                                `json:"name"`
		Description string                                `json:"description"`
		Options     []*discordgo.ApplicationCommandOption `json:"options"`
		Permissions *int64                                `json:"default_member_permissions"`
	}
	norm := func(c *discordgo.ApplicationCommand) shape {
		t := c.Type
		if t == 0 {
			t = discordgo.ChatApplicationCommand
		}
		opts := c.Options
		if len(opts) == 0 {
			opts = nil
		}
		return shape{t, c.Name, c.Description, opts, c.DefaultMemberPermissions}
	}
	ba, _ := json.Marshal(norm(a))
	bb, _ := json.Marshal(norm(b))
	return string(ba) == string(bb)
}
