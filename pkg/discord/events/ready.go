package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/bruhbot/pkg/errutil"
	"github.com/small-frappuccino/bruhbot/pkg/log"
	"github.com/small-frappuccino/bruhbot/pkg/messages"
	"golang.org/x/sync/errgroup"
)

const verifyTimeout = 15 * time.Second

func (svc *Service) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r == nil {
		return
	}
	errutil.Guard("events.ready", func() {
		svc.HandleReady(r)
	})
}

// HandleReady logs the loaded lists, checks that configured channels and the
// ping role resolve, and records a heartbeat.
func (svc *Service) HandleReady(r *discordgo.Ready) {
	name := ""
	if r.User != nil {
		name = r.User.Username
	}
	counts := svc.pools.Counts()
	log.ApplicationLogger().Info("Bot is online and ready",
		"user", name,
		"guilds", len(r.Guilds),
		"default", counts[messages.Default],
		"mention", counts[messages.Mention],
		"default_audio", counts[messages.DefaultAudio],
		"mention_audio", counts[messages.MentionAudio],
	)
	for _, w := range svc.emptyListWarnings(counts) {
		log.ApplicationLogger().Warn(w)
	}

	guildIDs := make([]string, 0, len(r.Guilds))
	for _, g := range r.Guilds {
		if g != nil {
			guildIDs = append(guildIDs, g.ID)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()
	for _, p := range svc.VerifyResources(ctx, guildIDs) {
		log.ApplicationLogger().Error(p)
	}

	if svc.heartbeats != nil {
		if err := svc.heartbeats.SetHeartbeat(svc.now()); err != nil {
			log.DatabaseLogger().Warn("Failed to record heartbeat", "error", err)
		}
	}
}

func (svc *Service) emptyListWarnings(counts map[messages.Category]int) []string {
	checks := []struct {
		c       messages.Category
		enabled bool
		feature string
	}{
		{messages.Default, svc.cfg.EnableRandomMessages, "random messages"},
		{messages.Mention, svc.cfg.EnableMentionResponses, "mention responses"},
		{messages.DefaultAudio, svc.cfg.EnableRandomAudioMessages, "random audio messages"},
		{messages.MentionAudio, svc.cfg.EnableMentionAudioResponses, "mention audio responses"},
	}
	var out []string
	for _, ch := range checks {
		if ch.enabled && counts[ch.c] == 0 {
			out = append(out, fmt.Sprintf("No %s loaded, but %s are enabled", ch.c.Title(), ch.feature))
		}
	}
	return out
}

// VerifyResources checks the configured channels and the suggestion ping role
// concurrently and returns a description of everything that did not resolve.
func (svc *Service) VerifyResources(ctx context.Context, guildIDs []string) []string {
	channels := []struct{ id, label string }{
		{svc.cfg.SuggestionChannelID, "Suggestion channel"},
		{svc.cfg.SpecialChannelID, "Special message channel"},
		{svc.cfg.ChickenOutChannelID, "Chicken out channel"},
	}

	var (
		mu       sync.Mutex
		problems []string
	)
	report := func(format string, args ...any) {
		mu.Lock()
		problems = append(problems, fmt.Sprintf(format, args...))
		mu.Unlock()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, ch := range channels {
		if ch.id == "" {
			continue
		}
		g.Go(func() error {
			if svc.channelExists(ctx, ch.id) {
				log.ApplicationLogger().Info(ch.label+" found", "channelID", ch.id)
				return nil
			}
			report("%s NOT FOUND (ID: %s). Please check your config!", ch.label, ch.id)
			return nil
		})
	}
	if roleID := svc.cfg.SuggestionPingRoleID; roleID != "" {
		g.Go(func() error {
			if svc.roleExists(ctx, guildIDs, roleID) {
				log.ApplicationLogger().Info("Suggestion ping role found", "roleID", roleID)
				return nil
			}
			report("Suggestion ping role NOT FOUND (ID: %s). Please check your config!", roleID)
			return nil
		})
	}
	_ = g.Wait()
	return problems
}

func (svc *Service) channelExists(ctx context.Context, channelID string) bool {
	if svc.session.State != nil {
		if ch, err := svc.session.State.Channel(channelID); err == nil && ch != nil {
			return true
		}
	}
	ch, err := svc.session.Channel(channelID, discordgo.WithContext(ctx))
	return err == nil && ch != nil
}

func (svc *Service) roleExists(ctx context.Context, guildIDs []string, roleID string) bool {
	for _, gid := range guildIDs {
		if svc.session.State != nil {
			if role, err := svc.session.State.Role(gid, roleID); err == nil && role != nil {
				return true
			}
		}
		roles, err := svc.session.GuildRoles(gid, discordgo.WithContext(ctx))
		if err != nil {
			log.DiscordLogger().Debug("Failed to list guild roles", "guildID", gid, "error", err)
			continue
		}
		for _, r := range roles {
			if r.ID == roleID {
				return true
			}
		}
	}
	return false
}
