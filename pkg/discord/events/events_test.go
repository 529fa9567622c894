package events

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/bruhbot/internal/discordtest"
	"github.com/small-frappuccino/bruhbot/pkg/config"
	"github.com/small-frappuccino/bruhbot/pkg/messages"
	"github.com/small-frappuccino/bruhbot/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queued struct {
	kind, channelID, content, trigger string
}

type recordingOutbound struct {
	mu    sync.Mutex
	sends []queued
}

func (r *recordingOutbound) EnqueueText(channelID, content, triggerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sends = append(r.sends, queued{"text", channelID, content, triggerID})
	return nil
}

func (r *recordingOutbound) EnqueueAudio(channelID, entry, triggerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sends = append(r.sends, queued{"audio", channelID, entry, triggerID})
	return nil
}

func (r *recordingOutbound) all() []queued {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]queued(nil), r.sends...)
}

func newPools(t *testing.T, entries map[messages.Category][]string) *messages.Store {
	t.Helper()
	dir := t.TempDir()
	paths := make(map[messages.Category]string)
	for _, c := range messages.Categories {
		paths[c] = filepath.Join(dir, string(c)+".txt")
		if lines := entries[c]; len(lines) > 0 {
			require.NoError(t, os.WriteFile(paths[c], []byte(strings.Join(lines, "\n")+"\n"), 0o644))
		}
	}
	store := messages.NewStore(paths)
	store.LoadAll()
	return store
}

func baseConfig() *config.Config {
	return &config.Config{
		RandomMessageChance:      10,
		RandomAudioMessageChance: 10,
		SpecialChannelID:         "special",
		ChickenOutChannelID:      "coop",
		ChickenOutTimeout:        5 * time.Minute,
		ChickenedOutMsg:          "bawk",
	}
}

// sequence returns an intn that replays values, clamped to the range.
func sequence(values ...int) func(int) int {
	var mu sync.Mutex
	i := 0
	return func(n int) int {
		mu.Lock()
		defer mu.Unlock()
		v := 0
		if i < len(values) {
			v = values[i]
		}
		i++
		if v >= n {
			v = n - 1
		}
		return v
	}
}

func message(id, channelID, authorID, content string) *discordgo.Message {
	return &discordgo.Message{ID: id, ChannelID: channelID, Content: content, Author: &discordgo.User{ID: authorID}}
}

func TestHandleMessageIgnoresSelf(t *testing.T) {
	session, fake := discordtest.New(t)
	cfg := baseConfig()
	cfg.EnableRandomMessages = true
	cfg.EnableSpecialChannel = true
	out := &recordingOutbound{}
	svc := NewService(session, cfg, newPools(t, map[messages.Category][]string{messages.Default: {"hi"}}), out, nil, nil)
	svc.intn = sequence()

	svc.HandleMessage(message("m1", "special", "bot", "hello"))

	assert.Empty(t, out.all())
	assert.Empty(t, fake.Requests())
}

func TestRandomRepliesRollIndependently(t *testing.T) {
	session, _ := discordtest.New(t)
	cfg := baseConfig()
	cfg.EnableRandomMessages = true
	cfg.EnableRandomAudioMessages = true
	out := &recordingOutbound{}
	pools := newPools(t, map[messages.Category][]string{
		messages.Default:      {"one", "two"},
		messages.DefaultAudio: {"https://cdn.example/a.mp3"},
	})
	svc := NewService(session, cfg, pools, out, nil, nil)

	// text roll hits and picks index 1, audio roll hits and picks index 0
	svc.intn = sequence(0, 1, 0, 0)
	svc.HandleMessage(message("m1", "general", "u1", "lol"))
	assert.Equal(t, []queued{
		{"text", "general", "two", "m1:random"},
		{"audio", "general", "https://cdn.example/a.mp3", "m1:random_audio"},
	}, out.all())

	out.sends = nil
	svc.intn = sequence(3, 7)
	svc.HandleMessage(message("m2", "general", "u1", "lol"))
	assert.Empty(t, out.all())
}

func TestRandomSkipsEmptyOrDisabledPools(t *testing.T) {
	session, _ := discordtest.New(t)
	cfg := baseConfig()
	cfg.EnableRandomMessages = true
	cfg.EnableRandomAudioMessages = false
	out := &recordingOutbound{}
	pools := newPools(t, map[messages.Category][]string{messages.DefaultAudio: {"clip.ogg"}})
	svc := NewService(session, cfg, pools, out, nil, nil)
	svc.intn = sequence()

	svc.HandleMessage(message("m1", "general", "u1", "lol"))
	assert.Empty(t, out.all())
}

func TestMentionPicksOnePool(t *testing.T) {
	session, _ := discordtest.New(t)
	cfg := baseConfig()
	cfg.EnableMentionResponses = true
	cfg.EnableMentionAudioResponses = true
	out := &recordingOutbound{}
	pools := newPools(t, map[messages.Category][]string{
		messages.Mention:      {"what"},
		messages.MentionAudio: {"huh.mp3"},
	})
	svc := NewService(session, cfg, pools, out, nil, nil)

	m := message("m1", "general", "u1", "<@bot> hey")
	m.Mentions = []*discordgo.User{{ID: "bot"}}

	svc.intn = sequence(1, 0)
	svc.HandleMessage(m)
	assert.Equal(t, []queued{{"audio", "general", "huh.mp3", "m1:mention"}}, out.all())

	out.sends = nil
	svc.intn = sequence(0, 0)
	svc.HandleMessage(m)
	assert.Equal(t, []queued{{"text", "general", "what", "m1:mention"}}, out.all())

	out.sends = nil
	m.Mentions = []*discordgo.User{{ID: "someone-else"}}
	svc.HandleMessage(m)
	assert.Empty(t, out.all())
}

func TestMentionWithSinglePoolDoesNotRollPool(t *testing.T) {
	session, _ := discordtest.New(t)
	cfg := baseConfig()
	cfg.EnableMentionResponses = true
	cfg.EnableMentionAudioResponses = true
	out := &recordingOutbound{}
	pools := newPools(t, map[messages.Category][]string{messages.Mention: {"a", "b"}})
	svc := NewService(session, cfg, pools, out, nil, nil)

	m := message("m1", "general", "u1", "@everyone")
	m.MentionEveryone = true
	svc.intn = sequence(1)
	svc.HandleMessage(m)
	assert.Equal(t, []queued{{"text", "general", "b", "m1:mention"}}, out.all())
}

func TestSpecialChannelReactsAndOpensThread(t *testing.T) {
	session, fake := discordtest.New(t)
	cfg := baseConfig()
	cfg.EnableSpecialChannel = true
	cfg.SpecialYesEmoji = "<:yes:111>"
	cfg.SpecialNoEmoji = "222"
	fake.Respond(http.MethodPost, "/channels/special/messages/m1/threads", http.StatusOK, `{"id":"thread1"}`)
	fake.Respond(http.MethodPost, "/channels/thread1/messages", http.StatusOK, `{"id":"ping1"}`)

	svc := NewService(session, cfg, newPools(t, nil), &recordingOutbound{}, nil, nil)
	svc.intn = sequence(5)
	long := strings.Repeat("x", 150)
	svc.HandleMessage(message("m1", "special", "u1", long))

	reactions := fake.Find(http.MethodPut, "/reactions/")
	require.Len(t, reactions, 2)
	assert.Contains(t, reactions[0].Path, "/reactions/yes:111/@me")
	assert.Contains(t, reactions[1].Path, "/reactions/no:222/@me")

	threads := fake.Find(http.MethodPost, "/threads")
	require.Len(t, threads, 1)
	var body struct {
		Name string `json:"name"`
	}
	threads[0].Decode(t, &body)
	assert.Equal(t, strings.Repeat("x", 100), body.Name)

	pings := fake.Find(http.MethodPost, "/channels/thread1/messages")
	require.Len(t, pings, 1)
	var ping struct {
		Content string `json:"content"`
	}
	pings[0].Decode(t, &ping)
	assert.Equal(t, "<@u1>", ping.Content)
	assert.Len(t, fake.Find(http.MethodDelete, "/channels/thread1/messages/ping1"), 1)
}

func TestSpecialChannelDisabledOrOtherChannel(t *testing.T) {
	session, fake := discordtest.New(t)
	cfg := baseConfig()
	svc := NewService(session, cfg, newPools(t, nil), &recordingOutbound{}, nil, nil)
	svc.HandleMessage(message("m1", "special", "u1", "x"))

	cfg.EnableSpecialChannel = true
	svc.HandleMessage(message("m2", "general", "u1", "x"))
	assert.Empty(t, fake.Requests())
}

func TestThreadNameAndReactionEmoji(t *testing.T) {
	assert.Equal(t, "Discussion", threadName("   "))
	assert.Equal(t, "short", threadName("short"))
	assert.Equal(t, 100, len([]rune(threadName(strings.Repeat("é", 120)))))

	assert.Equal(t, "✅", reactionEmoji("", "yes", "✅"))
	assert.Equal(t, "yes:1", reactionEmoji("<:yes:1>", "yes", "✅"))
	assert.Equal(t, "yes:1", reactionEmoji(":yes:1", "yes", "✅"))
	assert.Equal(t, "spin:2", reactionEmoji("<a:spin:2>", "yes", "✅"))
	assert.Equal(t, "👍", reactionEmoji("👍", "yes", "✅"))
	assert.Equal(t, "yes:1416494635660087467", reactionEmoji("1416494635660087467", "yes", "✅"))
	assert.Equal(t, "no:1416494635660087468", reactionEmoji(" 1416494635660087468 ", "no", "❌"))
}

func TestServiceStartStop(t *testing.T) {
	session, _ := discordtest.New(t)
	cfg := baseConfig()
	svc := NewService(session, cfg, newPools(t, nil), &recordingOutbound{}, NewChickenTracker(cfg, nil, &recordingOutbound{}), nil)

	require.NoError(t, svc.Start(context.Background()))
	assert.Error(t, svc.Start(context.Background()))
	assert.Len(t, svc.removers, 4)
	require.NoError(t, svc.Stop(context.Background()))
	assert.Empty(t, svc.removers)
	require.NoError(t, svc.Stop(context.Background()))
}

func newJoinStore(t *testing.T) *storage.Store {
	t.Helper()
	s := storage.NewStore(filepath.Join(t.TempDir(), "joins.db"))
	require.NoError(t, s.Init())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestChickenOutWithinWindow(t *testing.T) {
	cfg := baseConfig()
	cfg.EnableChickenOut = true
	out := &recordingOutbound{}
	ct := NewChickenTracker(cfg, newJoinStore(t), out)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ct.now = func() time.Time { return now }

	ct.Joined("g", "u1", false)
	now = now.Add(4 * time.Minute)
	assert.True(t, ct.Left("g", "u1"))

	sends := out.all()
	require.Len(t, sends, 2)
	assert.Equal(t, "<@u1> chickened out", sends[0].content)
	assert.Equal(t, "bawk", sends[1].content)
	assert.Equal(t, "coop", sends[0].channelID)
	assert.NotEqual(t, sends[0].trigger, sends[1].trigger)

	assert.False(t, ct.Left("g", "u1"), "record must be consumed")
	assert.Zero(t, ct.Pending())
}

func TestChickenOutAfterWindowOrDisabled(t *testing.T) {
	cfg := baseConfig()
	cfg.EnableChickenOut = true
	out := &recordingOutbound{}
	ct := NewChickenTracker(cfg, nil, out)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ct.now = func() time.Time { return now }

	ct.Joined("g", "u1", false)
	now = now.Add(6 * time.Minute)
	assert.False(t, ct.Left("g", "u1"))
	assert.Zero(t, ct.Pending())

	ct.Joined("g", "botty", true)
	assert.Zero(t, ct.Pending())

	cfg.EnableChickenOut = false
	ct.Joined("g", "u2", false)
	assert.False(t, ct.Left("g", "u2"))
	assert.Empty(t, out.all())
}

func TestChickenOutSurvivesRestart(t *testing.T) {
	cfg := baseConfig()
	cfg.EnableChickenOut = true
	store := newJoinStore(t)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	first := NewChickenTracker(cfg, store, &recordingOutbound{})
	first.now = func() time.Time { return now }
	first.Joined("g", "u1", false)

	out := &recordingOutbound{}
	second := NewChickenTracker(cfg, store, out)
	second.now = func() time.Time { return now.Add(time.Minute) }
	assert.True(t, second.Left("g", "u1"))
	assert.Len(t, out.all(), 2)

	_, found, err := store.GetMemberJoin("g", "u1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestChickenRestoreLoadsRecentJoins(t *testing.T) {
	cfg := baseConfig()
	cfg.EnableChickenOut = true
	store := newJoinStore(t)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertMemberJoin("g", "stale", now.Add(-10*time.Minute)))
	require.NoError(t, store.UpsertMemberJoin("g", "recent", now.Add(-time.Minute)))

	ct := NewChickenTracker(cfg, store, &recordingOutbound{})
	ct.now = func() time.Time { return now }
	n, err := ct.Restore()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, ct.Pending())

	n, err = ct.Restore()
	require.NoError(t, err)
	assert.Zero(t, n, "already tracked joins are not counted again")

	cfg.EnableChickenOut = false
	n, err = NewChickenTracker(cfg, store, &recordingOutbound{}).Restore()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestChickenSweepDropsStaleJoins(t *testing.T) {
	cfg := baseConfig()
	cfg.EnableChickenOut = true
	store := newJoinStore(t)
	ct := NewChickenTracker(cfg, store, &recordingOutbound{})
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ct.now = func() time.Time { return now }

	ct.Joined("g", "old", false)
	now = now.Add(10 * time.Minute)
	ct.Joined("g", "fresh", false)

	require.NoError(t, ct.Sweep(context.Background(), nil))
	assert.Equal(t, 1, ct.Pending())

	joins, err := store.ListMemberJoins()
	require.NoError(t, err)
	require.Len(t, joins, 1)
	assert.Equal(t, "fresh", joins[0].UserID)
}

func TestChannelSenderAudio(t *testing.T) {
	session, fake := discordtest.New(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clip.ogg"), []byte("OggS-data"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "huge.ogg"), []byte(strings.Repeat("x", 64)), 0o644))
	cs := NewChannelSender(session, dir)
	cs.maxSize = 32
	ctx := context.Background()

	require.NoError(t, cs.SendAudio(ctx, "c1", "https://cdn.example/a.mp3"))
	require.NoError(t, cs.SendAudio(ctx, "c1", "clip.ogg"))
	require.NoError(t, cs.SendAudio(ctx, "c1", "missing.ogg"))
	require.NoError(t, cs.SendAudio(ctx, "c1", filepath.Join(dir, "huge.ogg")))

	posts := fake.Find(http.MethodPost, "/channels/c1/messages")
	require.Len(t, posts, 3)

	var first struct {
		Content string `json:"content"`
	}
	posts[0].Decode(t, &first)
	assert.Equal(t, "https://cdn.example/a.mp3", first.Content)

	assert.Equal(t, []string{"clip.ogg"}, posts[1].Files)

	var notice struct {
		Content string `json:"content"`
	}
	posts[2].Decode(t, &notice)
	assert.Equal(t, "❌ Audio file too large to send (max 25MB): `huge.ogg`", notice.Content)
}

func TestVerifyResourcesReportsMissing(t *testing.T) {
	session, fake := discordtest.New(t)
	cfg := baseConfig()
	cfg.SuggestionChannelID = "review"
	cfg.SuggestionPingRoleID = "role1"
	fake.Respond(http.MethodGet, "/channels/special", http.StatusOK, `{"id":"special"}`)
	fake.Respond(http.MethodGet, "/channels/coop", http.StatusOK, `{"id":"coop"}`)
	fake.Respond(http.MethodGet, "/channels/review", http.StatusNotFound, `{"code":10003,"message":"Unknown Channel"}`)
	fake.Respond(http.MethodGet, "/guilds/g1/roles", http.StatusOK, `[{"id":"other"}]`)
	fake.Respond(http.MethodGet, "/guilds/g2/roles", http.StatusOK, `[{"id":"role1"}]`)

	svc := NewService(session, cfg, newPools(t, nil), &recordingOutbound{}, nil, nil)
	problems := svc.VerifyResources(context.Background(), []string{"g1", "g2"})
	assert.Equal(t, []string{"Suggestion channel NOT FOUND (ID: review). Please check your config!"}, problems)

	problems = svc.VerifyResources(context.Background(), []string{"g1"})
	assert.Len(t, problems, 2)
}

type heartbeatRecorder struct{ at time.Time }

func (h *heartbeatRecorder) SetHeartbeat(t time.Time) error { h.at = t; return nil }

func TestHandleReadyRecordsHeartbeat(t *testing.T) {
	session, _ := discordtest.New(t)
	cfg := baseConfig()
	cfg.SpecialChannelID = ""
	cfg.ChickenOutChannelID = ""
	cfg.EnableRandomMessages = true
	hb := &heartbeatRecorder{}
	svc := NewService(session, cfg, newPools(t, nil), &recordingOutbound{}, nil, hb)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	svc.HandleReady(&discordgo.Ready{User: &discordgo.User{Username: "bruhbot"}})
	assert.Equal(t, now, hb.at)
	assert.Equal(t, []string{"No Default messages loaded, but random messages are enabled"}, svc.emptyListWarnings(map[messages.Category]int{}))
}
