package core

import (
	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/bruhbot/pkg/theme"
)

// Responder sends interaction responses and remembers, per Context, whether
// the initial response was already sent so later messages become followups.
type Responder struct {
	session *discordgo.Session
	theme   *theme.Theme
}

// NewResponder creates a responder. A nil theme uses the default palette.
func NewResponder(session *discordgo.Session, th *theme.Theme) *Responder {
	if th == nil {
		th = theme.Default()
	}
	return &Responder{session: session, theme: th}
}

// Theme returns the palette used for embeds.
func (r *Responder) Theme() *theme.Theme { return r.theme }

// Ephemeral sends a message only the invoking user can see.
func (r *Responder) Ephemeral(ctx *Context, content string) error {
	return r.Send(ctx, content, nil, true)
}

// Send answers the interaction, or posts a followup if it was already
// answered.
func (r *Responder) Send(ctx *Context, content string, embeds []*discordgo.MessageEmbed, ephemeral bool) error {
	if ctx.acked {
		return r.FollowUp(ctx, content, embeds, ephemeral)
	}
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := r.session.InteractionRespond(ctx.Interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Embeds:  embeds,
			Flags:   flags,
		},
	})
	if err != nil {
		return err
	}
	ctx.acked = true
	return nil
}

// FollowUp posts an additional message for an acknowledged interaction.
func (r *Responder) FollowUp(ctx *Context, content string, embeds []*discordgo.MessageEmbed, ephemeral bool) error {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_, err := r.session.FollowupMessageCreate(ctx.Interaction.Interaction, true, &discordgo.WebhookParams{
		Content: content,
		Embeds:  embeds,
		Flags:   flags,
	})
	return err
}

// Defer acknowledges the interaction so the handler can take longer than
// the initial response window.
func (r *Responder) Defer(ctx *Context, ephemeral bool) error {
	if ctx.acked {
		return nil
	}
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := r.session.InteractionRespond(ctx.Interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags},
	})
	if err != nil {
		return err
	}
	ctx.acked = true
	return nil
}

// Error reports a failure to the user as "❌ Error: message". If the
// interaction turns out to be acknowledged already (for example by a
// handler that responded through the session), a followup is used instead.
func (r *Responder) Error(ctx *Context, message string) error {
	content := "❌ Error: " + message
	if err := r.Send(ctx, content, nil, true); err != nil {
		if ctx.acked {
			return err
		}
		return r.FollowUp(ctx, content, nil, true)
	}
	return nil
}
