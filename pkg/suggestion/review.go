package suggestion

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/bruhbot/pkg/log"
	"github.com/small-frappuccino/bruhbot/pkg/messages"
	"github.com/small-frappuccino/bruhbot/pkg/storage"
)

// HandleComponent applies a review button press. It answers the interaction
// itself; a returned error means nothing was acknowledged yet.
func (s *Service) HandleComponent(i *discordgo.InteractionCreate) error {
	if i.Type != discordgo.InteractionMessageComponent || i.Message == nil {
		return fmt.Errorf("%w: not a message component", ErrUnknownAction)
	}
	action := Action(strings.TrimPrefix(i.MessageComponentData().CustomID, CustomIDPrefix))
	spec, ok := lookupAction(action)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	reviewer := interactionUserID(i)
	if s.cfg.AuthorizedUserID == "" || reviewer != s.cfg.AuthorizedUserID {
		log.ApplicationLogger().Info("Unauthorized suggestion decision", "userID", reviewer, "action", action)
		return s.ephemeral(i, msgNotAuthorized)
	}

	rec := s.loadRecord(i.Message.ID)
	claimed := false
	if rec != nil {
		if rec.Status != storage.StatusPending {
			return s.ephemeral(i, msgAlreadyReviewed)
		}
		won, err := s.records.ResolveSuggestion(rec.MessageID, spec.status, reviewer, s.now())
		switch {
		case err != nil:
			log.DatabaseLogger().Error("Failed to resolve suggestion record", "messageID", rec.MessageID, "error", err)
		case !won:
			return s.ephemeral(i, msgAlreadyReviewed)
		default:
			claimed = true
		}
	}

	if spec.action == ActionReject {
		return s.finish(i, spec, reviewer, "", claimed, false)
	}

	content := ""
	if rec != nil {
		content = rec.Content
	}
	if content == "" {
		content = embedContent(i.Message)
	}
	if strings.TrimSpace(content) == "" {
		s.release(i.Message.ID, claimed, false)
		return s.ephemeral(i, msgNoContent)
	}

	added := make([]bool, len(spec.categories))
	changed := false
	for n, c := range spec.categories {
		ok, err := s.lists.Add(content, c)
		if err != nil {
			s.release(i.Message.ID, claimed, changed)
			return fmt.Errorf("add suggestion to %s list: %w", c.Label(), err)
		}
		added[n] = ok
		changed = changed || ok
	}
	return s.finish(i, spec, reviewer, acceptStatus(spec.categories, added), claimed, changed)
}

// finish moves the review message to its terminal form and, for accepts,
// reports the list outcome to the reviewer. changed reports whether a list
// file was already written for this decision.
func (s *Service) finish(i *discordgo.InteractionCreate, spec actionSpec, reviewer, status string, claimed, changed bool) error {
	verdict := fmt.Sprintf("❌ **Rejected by <@%s>**", reviewer)
	if spec.action != ActionReject {
		verdict = fmt.Sprintf("✅ **Accepted for %s by <@%s>**", spec.target, reviewer)
	}
	err := s.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:         fmt.Sprintf("~~%s~~\n%s", i.Message.Content, verdict),
			Embeds:          []*discordgo.MessageEmbed{},
			Components:      []discordgo.MessageComponent{},
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		},
	})
	if err != nil {
		s.release(i.Message.ID, claimed, changed)
		return fmt.Errorf("update suggestion message: %w", err)
	}

	log.ApplicationLogger().Info("Suggestion reviewed",
		"messageID", i.Message.ID,
		"reviewerID", reviewer,
		"status", string(spec.status),
	)

	if status == "" {
		return nil
	}
	if _, err := s.session.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: status,
		Flags:   discordgo.MessageFlagsEphemeral,
	}); err != nil {
		log.DiscordLogger().Warn("Failed to send suggestion status followup", "messageID", i.Message.ID, "error", err)
	}
	return nil
}

func (s *Service) loadRecord(messageID string) *storage.SuggestionRecord {
	if s.records == nil {
		return nil
	}
	rec, err := s.records.GetSuggestion(messageID)
	if err != nil {
		log.DatabaseLogger().Error("Failed to load suggestion record", "messageID", messageID, "error", err)
		return nil
	}
	return rec
}

// release undoes a claim after a failed decision. Once a list has changed
// the claim is kept, so a retry cannot apply a second decision on top.
func (s *Service) release(messageID string, claimed, changed bool) {
	if !claimed {
		return
	}
	if changed {
		log.ApplicationLogger().Warn("Suggestion kept resolved after a partial decision", "messageID", messageID)
		return
	}
	if err := s.records.ReopenSuggestion(messageID); err != nil {
		log.DatabaseLogger().Error("Failed to reopen suggestion record", "messageID", messageID, "error", err)
	}
}

func (s *Service) ephemeral(i *discordgo.InteractionCreate, content string) error {
	return s.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

// acceptStatus renders the outcome of adding to one or two lists.
func acceptStatus(cats []messages.Category, added []bool) string {
	if len(cats) == 1 {
		if added[0] {
			return fmt.Sprintf("✅ Message added to %s list!", cats[0].Label())
		}
		return fmt.Sprintf("⚠️ This message is already in the %s list!", cats[0].Label())
	}

	both := "both lists"
	if cats[0] == messages.DefaultAudio {
		both = "both audio lists"
	}
	first, second := cats[0].Label(), cats[1].Label()
	switch {
	case !added[0] && !added[1]:
		return fmt.Sprintf("⚠️ This message was already in %s!", both)
	case added[0] && added[1]:
		return fmt.Sprintf("✅ Message added to %s!", both)
	case added[0]:
		return fmt.Sprintf("✅ Message added to %s list! (Already in %s list)", first, second)
	default:
		return fmt.Sprintf("✅ Message added to %s list! (Already in %s list)", second, first)
	}
}

// embedContent recovers the suggested text from the review embed.
func embedContent(m *discordgo.Message) string {
	if m == nil || len(m.Embeds) == 0 || len(m.Embeds[0].Fields) == 0 {
		return ""
	}
	return m.Embeds[0].Fields[0].Value
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
