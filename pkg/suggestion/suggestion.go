// Package suggestion implements the approver-gated message suggestion flow:
// a review message with decision buttons is posted to the review channel and
// the first authorized decision moves it to a terminal state.
package suggestion

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/bruhbot/pkg/config"
	"github.com/small-frappuccino/bruhbot/pkg/errutil"
	"github.com/small-frappuccino/bruhbot/pkg/log"
	"github.com/small-frappuccino/bruhbot/pkg/messages"
	"github.com/small-frappuccino/bruhbot/pkg/storage"
	"github.com/small-frappuccino/bruhbot/pkg/theme"
)

// CustomIDPrefix marks component custom IDs owned by this package.
const CustomIDPrefix = "suggestion:"

const maxFieldValue = 1024

var (
	ErrSuggestionsDisabled = errors.New("suggestions are disabled")
	ErrEmptyContent        = errors.New("suggestion has no text content")
	ErrChannelUnavailable  = errors.New("suggestion channel unavailable")
	ErrUnknownAction       = errors.New("unknown suggestion action")
)

// Reply texts sent back to users.
const (
	msgDisabled        = "❌ Message suggestions are currently disabled."
	msgEmpty           = "❌ This message has no text content to suggest!"
	msgUnstorable      = "❌ Messages starting with # can't be added to the lists."
	msgNoChannel       = "❌ Could not find the target channel. Please contact an administrator."
	msgSubmitted       = "✅ Message suggestion submitted successfully! The moderators will review it shortly."
	msgSubmitFailed    = "❌ An error occurred while submitting your suggestion. Please try again later."
	msgNotAuthorized   = "❌ You are not authorized to use this button."
	msgAlreadyReviewed = "⚠️ This suggestion has already been reviewed."
	msgNoContent       = "❌ Could not read the suggested message from this review."
)

// Terminal states persisted for a suggestion.
const (
	StatusRejected             storage.SuggestionStatus = "rejected"
	StatusAcceptedDefault      storage.SuggestionStatus = "accepted_default"
	StatusAcceptedMention      storage.SuggestionStatus = "accepted_mention"
	StatusAcceptedBoth         storage.SuggestionStatus = "accepted_both"
	StatusAcceptedDefaultAudio storage.SuggestionStatus = "accepted_default_audio"
	StatusAcceptedMentionAudio storage.SuggestionStatus = "accepted_mention_audio"
	StatusAcceptedBothAudio    storage.SuggestionStatus = "accepted_both_audio"
)

// Action is the decision encoded in a button's custom ID.
type Action string

const (
	ActionReject       Action = "reject"
	ActionDefault      Action = "default"
	ActionMention      Action = "mention"
	ActionBoth         Action = "both"
	ActionDefaultAudio Action = "default_audio"
	ActionMentionAudio Action = "mention_audio"
	ActionBothAudio    Action = "both_audio"
)

type actionSpec struct {
	action     Action
	button     config.ButtonKey
	style      discordgo.ButtonStyle
	target     string
	categories []messages.Category
	status     storage.SuggestionStatus
}

// actionSpecs is in render order; the first four go on the first row.
var actionSpecs = []actionSpec{
	{ActionReject, config.ButtonReject, discordgo.DangerButton, "", nil, StatusRejected},
	{ActionDefault, config.ButtonDefault, discordgo.SuccessButton, "Default", []messages.Category{messages.Default}, StatusAcceptedDefault},
	{ActionMention, config.ButtonMention, discordgo.SuccessButton, "Mention", []messages.Category{messages.Mention}, StatusAcceptedMention},
	{ActionBoth, config.ButtonBoth, discordgo.PrimaryButton, "Both", []messages.Category{messages.Default, messages.Mention}, StatusAcceptedBoth},
	{ActionDefaultAudio, config.ButtonDefaultAudio, discordgo.SuccessButton, "Default Audio", []messages.Category{messages.DefaultAudio}, StatusAcceptedDefaultAudio},
	{ActionMentionAudio, config.ButtonMentionAudio, discordgo.SuccessButton, "Mention Audio", []messages.Category{messages.MentionAudio}, StatusAcceptedMentionAudio},
	{ActionBothAudio, config.ButtonBothAudio, discordgo.PrimaryButton, "Both Audio", []messages.Category{messages.DefaultAudio, messages.MentionAudio}, StatusAcceptedBothAudio},
}

func lookupAction(a Action) (actionSpec, bool) {
	for _, s := range actionSpecs {
		if s.action == a {
			return s, true
		}
	}
	return actionSpec{}, false
}

// Lists is the subset of the message store the workflow mutates.
type Lists interface {
	Add(text string, c messages.Category) (bool, error)
}

// Records persists the review state of suggestions.
type Records interface {
	SaveSuggestion(rec storage.SuggestionRecord) error
	GetSuggestion(messageID string) (*storage.SuggestionRecord, error)
	ResolveSuggestion(messageID string, status storage.SuggestionStatus, reviewerID string, at time.Time) (bool, error)
	ReopenSuggestion(messageID string) error
}

// Request describes one submission.
type Request struct {
	Content       string
	SubmitterID   string
	SubmitterName string
	// Set when the suggestion comes from an existing message.
	OriginalAuthorID string
	SourceURL        string
}

// Service posts suggestions and applies review decisions.
type Service struct {
	session *discordgo.Session
	cfg     *config.Config
	theme   *theme.Theme
	lists   Lists
	records Records
	now     func() time.Time
}

// NewService creates the workflow. records may be nil, in which case review
// state lives only in the review message itself.
func NewService(session *discordgo.Session, cfg *config.Config, th *theme.Theme, lists Lists, records Records) *Service {
	if th == nil {
		th = theme.FromConfig(cfg)
	}
	return &Service{
		session: session,
		cfg:     cfg,
		theme:   th,
		lists:   lists,
		records: records,
		now:     time.Now,
	}
}

// Submit renders the suggestion into the review channel and returns the
// review message. The content is normalized to the single line an accepted
// entry is stored as.
func (s *Service) Submit(req Request) (*discordgo.Message, error) {
	if !s.cfg.EnableSuggestions {
		return nil, ErrSuggestionsDisabled
	}
	req.Content = messages.Normalize(req.Content)
	if req.Content == "" {
		return nil, ErrEmptyContent
	}
	if !messages.Storable(req.Content) {
		return nil, messages.ErrUnstorable
	}
	channelID, err := s.reviewChannel()
	if err != nil {
		return nil, err
	}

	send := &discordgo.MessageSend{
		Content:    s.pingLine(),
		Embeds:     []*discordgo.MessageEmbed{s.embed(req)},
		Components: s.components(),
	}
	if s.cfg.SuggestionPingRoleID != "" {
		send.AllowedMentions = &discordgo.MessageAllowedMentions{Roles: []string{s.cfg.SuggestionPingRoleID}}
	}

	var msg *discordgo.Message
	err = errutil.HandleDiscordError("suggestion_post", func() error {
		var sendErr error
		msg, sendErr = s.session.ChannelMessageSendComplex(channelID, send)
		return sendErr
	})
	if err != nil {
		return nil, fmt.Errorf("post suggestion: %w", err)
	}

	for _, emoji := range []string{"✅", "❌"} {
		if err := s.session.MessageReactionAdd(channelID, msg.ID, emoji); err != nil {
			log.DiscordLogger().Warn("Failed to add reaction to suggestion", "messageID", msg.ID, "emoji", emoji, "error", err)
		}
	}

	if s.records != nil {
		rec := storage.SuggestionRecord{
			MessageID:        msg.ID,
			ChannelID:        channelID,
			Content:          req.Content,
			SubmitterID:      req.SubmitterID,
			SubmitterName:    req.SubmitterName,
			OriginalAuthorID: req.OriginalAuthorID,
			SourceURL:        req.SourceURL,
			CreatedAt:        s.now(),
		}
		if err := s.records.SaveSuggestion(rec); err != nil {
			log.DatabaseLogger().Error("Failed to record suggestion", "messageID", msg.ID, "error", err)
		}
	}

	log.ApplicationLogger().Info("Suggestion received",
		"messageID", msg.ID,
		"submitterID", req.SubmitterID,
		"fromMessage", req.SourceURL != "",
	)
	return msg, nil
}

// SubmitReply maps the outcome of Submit to the text shown to the submitter.
func SubmitReply(err error) string {
	switch {
	case err == nil:
		return msgSubmitted
	case errors.Is(err, ErrSuggestionsDisabled):
		return msgDisabled
	case errors.Is(err, ErrEmptyContent):
		return msgEmpty
	case errors.Is(err, messages.ErrUnstorable):
		return msgUnstorable
	case errors.Is(err, ErrChannelUnavailable):
		return msgNoChannel
	default:
		return msgSubmitFailed
	}
}

func (s *Service) reviewChannel() (string, error) {
	id := s.cfg.SuggestionChannelID
	if id == "" {
		return "", ErrChannelUnavailable
	}
	if s.session.State != nil {
		if ch, err := s.session.State.Channel(id); err == nil && ch != nil {
			return ch.ID, nil
		}
	}
	ch, err := s.session.Channel(id)
	if err != nil || ch == nil {
		log.DiscordLogger().Warn("Suggestion channel lookup failed", "channelID", id, "error", err)
		return "", ErrChannelUnavailable
	}
	return id, nil
}

func (s *Service) pingLine() string {
	if s.cfg.SuggestionPingRoleID == "" {
		return "A new message suggestion has been submitted!"
	}
	return fmt.Sprintf("<@&%s> A new message suggestion has been submitted!", s.cfg.SuggestionPingRoleID)
}

func (s *Service) embed(req Request) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: "📝 Message Content", Value: truncateRunes(req.Content, maxFieldValue)},
	}
	if req.OriginalAuthorID != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "📤 Original Author", Value: "<@" + req.OriginalAuthorID + ">", Inline: true})
	}
	if req.SourceURL != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "🔗 Message Link", Value: "[Jump to Message](" + req.SourceURL + ")", Inline: true})
	}
	return &discordgo.MessageEmbed{
		Title:       "New Proposed Message Suggestion",
		Description: fmt.Sprintf("User <@%s> suggests this message for the bot:", req.SubmitterID),
		Color:       s.theme.Suggestion,
		Timestamp:   s.now().UTC().Format(time.RFC3339),
		Fields:      fields,
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Suggested by %s | User ID: %s", req.SubmitterName, req.SubmitterID)},
	}
}

func (s *Service) components() []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	var row discordgo.ActionsRow
	for i, spec := range actionSpecs {
		if i == 4 {
			rows = append(rows, row)
			row = discordgo.ActionsRow{}
		}
		b := s.cfg.Buttons[spec.button]
		row.Components = append(row.Components, discordgo.Button{
			Label:    b.Label,
			Style:    spec.style,
			CustomID: CustomIDPrefix + string(spec.action),
			Emoji:    componentEmoji(b.Emoji),
		})
	}
	return append(rows, row)
}

// componentEmoji accepts a unicode emoji or a custom emoji written as
// <:name:id> or <a:name:id>.
func componentEmoji(v string) *discordgo.ComponentEmoji {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if strings.HasPrefix(v, "<") && strings.HasSuffix(v, ">") {
		parts := strings.Split(strings.Trim(v, "<>"), ":")
		if len(parts) == 3 {
			return &discordgo.ComponentEmoji{Name: parts[1], ID: parts[2], Animated: parts[0] == "a"}
		}
	}
	return &discordgo.ComponentEmoji{Name: v}
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-3]) + "..."
}
