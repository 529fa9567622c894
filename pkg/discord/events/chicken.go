package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/bruhbot/pkg/config"
	"github.com/small-frappuccino/bruhbot/pkg/errutil"
	"github.com/small-frappuccino/bruhbot/pkg/log"
	"github.com/small-frappuccino/bruhbot/pkg/storage"
)

// JoinStore persists join times so a restart does not forget recent joins.
type JoinStore interface {
	UpsertMemberJoin(guildID, userID string, joinedAt time.Time) error
	GetMemberJoin(guildID, userID string) (time.Time, bool, error)
	DeleteMemberJoin(guildID, userID string) error
	DeleteMemberJoinsBefore(cutoff time.Time) (int64, error)
	ListMemberJoins() ([]storage.MemberJoin, error)
}

// ChickenTracker announces members who leave within the configured window
// after joining.
type ChickenTracker struct {
	cfg   *config.Config
	store JoinStore
	out   Outbound

	mu    sync.Mutex
	joins map[string]time.Time // key: guildID:userID

	now func() time.Time
}

// NewChickenTracker creates a tracker. store may be nil.
func NewChickenTracker(cfg *config.Config, store JoinStore, out Outbound) *ChickenTracker {
	return &ChickenTracker{
		cfg:   cfg,
		store: store,
		out:   out,
		joins: make(map[string]time.Time),
		now:   time.Now,
	}
}

func joinKey(guildID, userID string) string { return guildID + ":" + userID }

func (ct *ChickenTracker) onMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m == nil || m.Member == nil || m.User == nil {
		return
	}
	errutil.Guard("events.member_add", func() {
		ct.Joined(m.GuildID, m.User.ID, m.User.Bot)
	})
}

func (ct *ChickenTracker) onMemberRemove(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if m == nil || m.Member == nil || m.User == nil {
		return
	}
	errutil.Guard("events.member_remove", func() {
		ct.Left(m.GuildID, m.User.ID)
	})
}

// Joined records a join time.
func (ct *ChickenTracker) Joined(guildID, userID string, bot bool) {
	if !ct.cfg.EnableChickenOut || bot {
		return
	}
	at := ct.now()
	ct.mu.Lock()
	ct.joins[joinKey(guildID, userID)] = at
	ct.mu.Unlock()

	if ct.store != nil {
		if err := ct.store.UpsertMemberJoin(guildID, userID, at); err != nil {
			log.DatabaseLogger().Warn("Failed to persist member join", "guildID", guildID, "userID", userID, "error", err)
		}
	}
	log.DiscordLogger().Info("Member joined", "guildID", guildID, "userID", userID)
}

// Left announces a chicken out when the member joined within the window. The
// join record is dropped either way. It reports whether an announcement was
// queued.
func (ct *ChickenTracker) Left(guildID, userID string) bool {
	if !ct.cfg.EnableChickenOut {
		return false
	}
	joinedAt, ok := ct.take(guildID, userID)
	if !ok {
		return false
	}
	elapsed := ct.now().Sub(joinedAt)
	if elapsed > ct.cfg.ChickenOutTimeout {
		return false
	}

	channelID := ct.cfg.ChickenOutChannelID
	if channelID == "" {
		log.ApplicationLogger().Warn("Chicken out channel not configured", "userID", userID)
		return false
	}
	trigger := fmt.Sprintf("chicken:%s:%s:%d", guildID, userID, joinedAt.UnixMilli())
	if err := ct.out.EnqueueText(channelID, "<@"+userID+"> chickened out", trigger+":1"); err != nil {
		log.DiscordLogger().Error("Failed to queue chicken out notice", "userID", userID, "error", err)
		return false
	}
	if err := ct.out.EnqueueText(channelID, ct.cfg.ChickenedOutMsg, trigger+":2"); err != nil {
		log.DiscordLogger().Error("Failed to queue chicken out message", "userID", userID, "error", err)
	}
	log.ApplicationLogger().Info("Member chickened out", "guildID", guildID, "userID", userID, "elapsed", elapsed.Round(time.Second))
	return true
}

// take removes and returns the join time, consulting the store when the
// member is not in memory.
func (ct *ChickenTracker) take(guildID, userID string) (time.Time, bool) {
	key := joinKey(guildID, userID)
	ct.mu.Lock()
	at, ok := ct.joins[key]
	delete(ct.joins, key)
	ct.mu.Unlock()

	if ct.store == nil {
		return at, ok
	}
	if !ok {
		stored, found, err := ct.store.GetMemberJoin(guildID, userID)
		if err != nil {
			log.DatabaseLogger().Warn("Failed to read member join", "guildID", guildID, "userID", userID, "error", err)
		}
		at, ok = stored, found
	}
	if err := ct.store.DeleteMemberJoin(guildID, userID); err != nil {
		log.DatabaseLogger().Warn("Failed to delete member join", "guildID", guildID, "userID", userID, "error", err)
	}
	return at, ok
}

// Sweep drops join records older than the chicken-out window. It has the
// task router's handler signature so it can run as a scheduled job.
func (ct *ChickenTracker) Sweep(_ context.Context, _ any) error {
	cutoff := ct.now().Add(-ct.cfg.ChickenOutTimeout)
	removed := 0
	ct.mu.Lock()
	for k, at := range ct.joins {
		if at.Before(cutoff) {
			delete(ct.joins, k)
			removed++
		}
	}
	tracked := len(ct.joins)
	ct.mu.Unlock()

	var stored int64
	if ct.store != nil {
		n, err := ct.store.DeleteMemberJoinsBefore(cutoff)
		if err != nil {
			return fmt.Errorf("sweep member joins: %w", err)
		}
		stored = n
	}
	if removed > 0 || stored > 0 {
		log.ApplicationLogger().Debug("Swept stale join records", "memory", removed, "stored", stored, "tracked", tracked)
	}
	return nil
}

// Restore loads joins persisted by a previous run that are still inside the
// window. Joins already tracked in memory are kept.
func (ct *ChickenTracker) Restore() (int, error) {
	if ct.store == nil || !ct.cfg.EnableChickenOut {
		return 0, nil
	}
	joins, err := ct.store.ListMemberJoins()
	if err != nil {
		return 0, fmt.Errorf("list member joins: %w", err)
	}
	cutoff := ct.now().Add(-ct.cfg.ChickenOutTimeout)
	restored := 0
	ct.mu.Lock()
	defer ct.mu.Unlock()
	for _, j := range joins {
		if j.JoinedAt.Before(cutoff) {
			continue
		}
		key := joinKey(j.GuildID, j.UserID)
		if _, ok := ct.joins[key]; ok {
			continue
		}
		ct.joins[key] = j.JoinedAt
		restored++
	}
	return restored, nil
}

// Pending reports how many joins are being tracked in memory.
func (ct *ChickenTracker) Pending() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return len(ct.joins)
}
