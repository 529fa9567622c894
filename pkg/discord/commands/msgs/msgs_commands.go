// Package msgs holds the slash and context menu commands for the message
// lists and suggestions.
package msgs

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/bruhbot/pkg/discord/commands/core"
	"github.com/small-frappuccino/bruhbot/pkg/messages"
	"github.com/small-frappuccino/bruhbot/pkg/suggestion"
	"github.com/small-frappuccino/bruhbot/pkg/util"
)

const (
	// PageSize is the number of entries per list-msgs embed.
	PageSize = 10
	// previewLength is where list-msgs cuts long entries.
	previewLength = 100

	msgInvalidListType = "❌ Invalid list type. Use 'default', 'mention', 'default_audio', or 'mention_audio'."
)

// Lists is the part of the message store the commands read.
type Lists interface {
	Reload() map[messages.Category]int
	LastReload() time.Time
	Counts() map[messages.Category]int
	List(c messages.Category) []string
}

// Suggestions is the suggestion workflow the commands drive.
type Suggestions interface {
	Submit(req suggestion.Request) (*discordgo.Message, error)
	HandleComponent(i *discordgo.InteractionCreate) error
}

// RegisterCommands adds the message commands and the suggestion button
// handler to the router.
func RegisterCommands(router *core.CommandRouter, lists Lists, suggestions Suggestions) {
	router.RegisterCommand(newReloadCommand(lists))
	router.RegisterCommand(newCountCommand(lists))
	router.RegisterCommand(newListCommand(lists))
	router.RegisterCommand(newSuggestCommand(suggestions))
	router.RegisterCommand(newSuggestMessageCommand(suggestions))
	router.RegisterComponent(suggestion.CustomIDPrefix, func(ctx *core.Context) error {
		return suggestions.HandleComponent(ctx.Interaction)
	})
}

// -------- reload-msgs --------

func newReloadCommand(lists Lists) *core.SimpleCommand {
	return core.NewSimpleCommand(
		"reload-msgs",
		"Manually reload message lists from files",
		nil,
		func(ctx *core.Context) error {
			previous := lists.LastReload()
			counts := lists.Reload()
			ctx.Logger.Info("Manual reload",
				"user", ctx.UserName,
				"sincePrevious", time.Since(previous).Round(time.Second),
				"default", counts[messages.Default],
				"mention", counts[messages.Mention],
				"default_audio", counts[messages.DefaultAudio],
				"mention_audio", counts[messages.MentionAudio],
			)
			return ctx.Responder().Ephemeral(ctx, fmt.Sprintf(
				"✅ Message lists manually reloaded!\n"+
					"📊 Default messages: %d\n"+
					"📊 Mention messages: %d\n"+
					"🎙️ Default audio: %d\n"+
					"🎙️ Mention audio: %d",
				counts[messages.Default],
				counts[messages.Mention],
				counts[messages.DefaultAudio],
				counts[messages.MentionAudio],
			))
		},
		false,
		true,
	)
}

// -------- msg-count --------

func newCountCommand(lists Lists) *core.SimpleCommand {
	return core.NewSimpleCommand(
		"msg-count",
		"Show current message counts",
		nil,
		func(ctx *core.Context) error {
			counts := lists.Counts()
			return ctx.Responder().Ephemeral(ctx, fmt.Sprintf(
				"📊 Current message counts:\n"+
					"🔹 Default messages: %d\n"+
					"🔹 Mention messages: %d\n"+
					"🎙️ Default audio messages: %d\n"+
					"🎙️ Mention audio messages: %d",
				counts[messages.Default],
				counts[messages.Mention],
				counts[messages.DefaultAudio],
				counts[messages.MentionAudio],
			))
		},
		false,
		false,
	)
}

// -------- list-msgs --------

func newListCommand(lists Lists) *core.SimpleCommand {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(messages.Categories))
	for _, c := range messages.Categories {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: string(c), Value: string(c)})
	}
	opts := []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "list_type",
			Description: "Which list to display: 'default', 'mention', 'default_audio', or 'mention_audio'",
			Required:    false,
			Choices:     choices,
		},
	}
	return core.NewSimpleCommand(
		"list-msgs",
		"List messages from specified list",
		opts,
		func(ctx *core.Context) error {
			extractor := core.NewOptionExtractor(ctx.Interaction.ApplicationCommandData().Options)
			category, err := messages.ParseCategory(extractor.StringOr("list_type", string(messages.Default)))
			th := ctx.Responder().Theme()
			if err != nil {
				return notice(ctx, msgInvalidListType, th.Error)
			}

			title := category.Title()
			entries := lists.List(category)
			if len(entries) == 0 {
				return notice(ctx, fmt.Sprintf("📭 No messages found in %s list.", title), th.Warning)
			}

			pages := PageEmbeds(title, entries, th.Success)
			if err := ctx.Responder().Send(ctx, "", pages[:1], true); err != nil {
				return err
			}
			for _, page := range pages[1:] {
				if err := ctx.Responder().FollowUp(ctx, "", []*discordgo.MessageEmbed{page}, true); err != nil {
					return fmt.Errorf("send list page: %w", err)
				}
			}
			return nil
		},
		false,
		true,
	)
}

// notice replies with a single colored embed.
func notice(ctx *core.Context, text string, color int) error {
	embed := &discordgo.MessageEmbed{Description: text, Color: color}
	return ctx.Responder().Send(ctx, "", []*discordgo.MessageEmbed{embed}, true)
}

// Paginate splits entries into pages of at most size entries.
func Paginate(entries []string, size int) [][]string {
	if size <= 0 {
		size = PageSize
	}
	var pages [][]string
	for start := 0; start < len(entries); start += size {
		end := min(start+size, len(entries))
		pages = append(pages, entries[start:end])
	}
	return pages
}

// PageEmbeds renders entries as "{title} (Page i/N)" embeds with one field per
// entry, numbered across pages.
func PageEmbeds(title string, entries []string, color int) []*discordgo.MessageEmbed {
	pages := Paginate(entries, PageSize)
	embeds := make([]*discordgo.MessageEmbed, 0, len(pages))
	for i, page := range pages {
		embed := &discordgo.MessageEmbed{
			Title: fmt.Sprintf("%s (Page %d/%d)", title, i+1, len(pages)),
			Color: color,
		}
		for j, entry := range page {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:  fmt.Sprintf("%d. Message", i*PageSize+j+1),
				Value: preview(entry),
			})
		}
		embeds = append(embeds, embed)
	}
	return embeds
}

func preview(entry string) string {
	return util.Truncate(entry, previewLength, "...")
}

// -------- suggest-msg and "Suggest message" --------

func newSuggestCommand(suggestions Suggestions) *core.SimpleCommand {
	opts := []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "message",
			Description: "The message content to suggest",
			Required:    true,
		},
	}
	return core.NewSimpleCommand(
		"suggest-msg",
		"Suggest a message for the bot to use",
		opts,
		func(ctx *core.Context) error {
			extractor := core.NewOptionExtractor(ctx.Interaction.ApplicationCommandData().Options)
			return submit(ctx, suggestions, suggestion.Request{
				Content:       extractor.String("message"),
				SubmitterID:   ctx.UserID,
				SubmitterName: ctx.UserName,
			})
		},
		false,
		false,
	)
}

func newSuggestMessageCommand(suggestions Suggestions) *core.SimpleCommand {
	return core.NewMessageCommand("Suggest message", func(ctx *core.Context) error {
		req := suggestion.Request{
			SubmitterID:   ctx.UserID,
			SubmitterName: ctx.UserName,
		}
		data := ctx.Interaction.ApplicationCommandData()
		if data.Resolved != nil {
			if target := data.Resolved.Messages[data.TargetID]; target != nil {
				req.Content = target.Content
				req.SourceURL = jumpURL(ctx.GuildID, target)
				if target.Author != nil {
					req.OriginalAuthorID = target.Author.ID
				}
			}
		}
		return submit(ctx, suggestions, req)
	}, false)
}

// submit acknowledges first since posting a suggestion takes several REST
// calls, then reports the outcome as the ephemeral followup.
func submit(ctx *core.Context, suggestions Suggestions, req suggestion.Request) error {
	if err := ctx.Responder().Defer(ctx, true); err != nil {
		return err
	}
	_, err := suggestions.Submit(req)
	if err != nil {
		ctx.Logger.Warn("Suggestion not submitted", "user", ctx.UserName, "error", err)
	}
	return ctx.Responder().Send(ctx, suggestion.SubmitReply(err), nil, true)
}

func jumpURL(guildID string, m *discordgo.Message) string {
	if guildID == "" {
		guildID = m.GuildID
	}
	if guildID == "" {
		guildID = "@me"
	}
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, m.ChannelID, m.ID)
}
