package events

import (
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/bruhbot/pkg/errutil"
	"github.com/small-frappuccino/bruhbot/pkg/log"
	"github.com/small-frappuccino/bruhbot/pkg/messages"
	"github.com/small-frappuccino/bruhbot/pkg/util"
)

const (
	threadNameLimit       = 100
	threadArchiveDuration = 1440
	defaultThreadName     = "Discussion"
)

func (svc *Service) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil {
		return
	}
	errutil.Guard("events.message_create", func() {
		svc.HandleMessage(m.Message)
	})
}

// HandleMessage runs every reaction the bot has to a message not sent by
// itself. Each step is independent; a failure in one is logged and the
// rest still run.
func (svc *Service) HandleMessage(m *discordgo.Message) {
	if m.Author == nil {
		return
	}
	self := svc.selfID()
	if m.Author.ID == self {
		return
	}

	if svc.cfg.EnableSpecialChannel && svc.cfg.SpecialChannelID != "" && m.ChannelID == svc.cfg.SpecialChannelID {
		svc.handleSpecialChannel(m)
	}

	if svc.cfg.EnableRandomMessages && svc.roll(svc.cfg.RandomMessageChance) {
		if text, ok := svc.pools.Random(messages.Default, svc.intn); ok {
			svc.enqueue(messages.Default, m.ChannelID, text, m.ID+":random")
		}
	}

	if svc.cfg.EnableRandomAudioMessages && svc.roll(svc.cfg.RandomAudioMessageChance) {
		if entry, ok := svc.pools.Random(messages.DefaultAudio, svc.intn); ok {
			svc.enqueue(messages.DefaultAudio, m.ChannelID, entry, m.ID+":random_audio")
		}
	}

	if mentionsUser(m, self) {
		svc.replyToMention(m)
	}
}

// roll reports a 1-in-chance hit.
func (svc *Service) roll(chance int) bool {
	if chance < 1 {
		return false
	}
	return svc.intn(chance) == 0
}

// replyToMention picks one enabled, non-empty pool and sends one entry from it.
func (svc *Service) replyToMention(m *discordgo.Message) {
	var pools []messages.Category
	if svc.cfg.EnableMentionResponses && svc.pools.Len(messages.Mention) > 0 {
		pools = append(pools, messages.Mention)
	}
	if svc.cfg.EnableMentionAudioResponses && svc.pools.Len(messages.MentionAudio) > 0 {
		pools = append(pools, messages.MentionAudio)
	}
	if len(pools) == 0 {
		return
	}
	c := pools[0]
	if len(pools) > 1 {
		c = pools[svc.intn(len(pools))]
	}
	entry, ok := svc.pools.Random(c, svc.intn)
	if !ok {
		return
	}
	svc.enqueue(c, m.ChannelID, entry, m.ID+":mention")
	log.DiscordLogger().Debug("Queued mention response", "channelID", m.ChannelID, "category", string(c))
}

func (svc *Service) enqueue(c messages.Category, channelID, entry, trigger string) {
	var err error
	if c == messages.DefaultAudio || c == messages.MentionAudio {
		err = svc.out.EnqueueAudio(channelID, entry, trigger)
	} else {
		err = svc.out.EnqueueText(channelID, entry, trigger)
	}
	if err != nil {
		log.DiscordLogger().Error("Failed to queue message", "channelID", channelID, "category", string(c), "error", err)
	}
}

// handleSpecialChannel votes on the message and opens a discussion thread
// that the author is pinged into.
func (svc *Service) handleSpecialChannel(m *discordgo.Message) {
	for _, emoji := range []string{reactionEmoji(svc.cfg.SpecialYesEmoji, "yes", "✅"), reactionEmoji(svc.cfg.SpecialNoEmoji, "no", "❌")} {
		if err := svc.session.MessageReactionAdd(m.ChannelID, m.ID, emoji); err != nil {
			log.DiscordLogger().Error("Failed to react in special channel", "messageID", m.ID, "emoji", emoji, "error", err)
		}
	}

	thread, err := svc.session.MessageThreadStart(m.ChannelID, m.ID, threadName(m.Content), threadArchiveDuration)
	if err != nil {
		log.DiscordLogger().Error("Failed to start discussion thread", "messageID", m.ID, "error", err)
		return
	}
	ping, err := svc.session.ChannelMessageSend(thread.ID, "<@"+m.Author.ID+">")
	if err != nil {
		log.DiscordLogger().Error("Failed to ping author in thread", "threadID", thread.ID, "error", err)
		return
	}
	if err := svc.session.ChannelMessageDelete(thread.ID, ping.ID); err != nil {
		log.DiscordLogger().Warn("Failed to delete thread ping", "threadID", thread.ID, "error", err)
	}
}

func threadName(content string) string {
	if strings.TrimSpace(content) == "" {
		return defaultThreadName
	}
	return util.Truncate(content, threadNameLimit, "")
}

// reactionEmoji converts a configured emoji to the form the reactions
// endpoint expects: unicode as-is, custom emoji as name:id. A bare emoji ID
// is paired with name.
func reactionEmoji(configured, name, fallback string) string {
	v := strings.TrimSpace(configured)
	if v == "" {
		return fallback
	}
	if isSnowflake(v) {
		return name + ":" + v
	}
	v = strings.Trim(v, "<>")
	v = strings.TrimPrefix(v, "a:")
	v = strings.TrimPrefix(v, ":")
	return v
}

func isSnowflake(v string) bool {
	for _, r := range v {
		if r < '0' || r > '9' {
			return false
		}
	}
	return v != ""
}

// mentionsUser follows the client's notion of being mentioned, which
// includes @everyone.
func mentionsUser(m *discordgo.Message, userID string) bool {
	if userID == "" {
		return false
	}
	if m.MentionEveryone {
		return true
	}
	for _, u := range m.Mentions {
		if u != nil && u.ID == userID {
			return true
		}
	}
	return false
}
