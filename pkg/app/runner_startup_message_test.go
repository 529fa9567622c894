package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/small-frappuccino/bruhbot/pkg/config"
	"github.com/small-frappuccino/bruhbot/pkg/messages"
	"github.com/small-frappuccino/bruhbot/pkg/storage"
)

func TestFormatStartupMessage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		appName    string
		appVersion string
		want       string
	}{
		{
			name:       "dev build omits version",
			appName:    "bruhbot",
			appVersion: "dev",
			want:       "🚀 Starting bruhbot...",
		},
		{
			name:       "empty version omits version",
			appName:    "bruhbot",
			appVersion: "",
			want:       "🚀 Starting bruhbot...",
		},
		{
			name:       "release version included",
			appName:    "bruhbot",
			appVersion: "v1.4.0",
			want:       "🚀 Starting bruhbot v1.4.0...",
		},
		{
			name:       "trims spaces",
			appName:    " bruhbot ",
			appVersion: " v1.4.0 ",
			want:       "🚀 Starting bruhbot v1.4.0...",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := formatStartupMessage(tc.appName, tc.appVersion)
			if got != tc.want {
				t.Fatalf("formatStartupMessage() mismatch\nwant: %q\ngot:  %q", tc.want, got)
			}
		})
	}
}

func TestMessagePathsResolveAgainstBaseDir(t *testing.T) {
	base := t.TempDir()
	abs := filepath.Join(t.TempDir(), "mention.txt")
	cfg := &config.Config{
		BaseDir:              base,
		DefaultMsgsFile:      "default.txt",
		MentionMsgsFile:      abs,
		DefaultAudioMsgsFile: "audio/../default_audio.txt",
	}

	paths := MessagePaths(cfg)
	if got, want := paths[messages.Default], filepath.Join(base, "default.txt"); got != want {
		t.Fatalf("default path: got %q want %q", got, want)
	}
	if got := paths[messages.Mention]; got != abs {
		t.Fatalf("absolute path changed: %q", got)
	}
	if got, want := paths[messages.DefaultAudio], filepath.Join(base, "default_audio.txt"); got != want {
		t.Fatalf("default audio path: got %q want %q", got, want)
	}
	if got := paths[messages.MentionAudio]; got != "" {
		t.Fatalf("expected unset path to stay empty, got %q", got)
	}
}

func TestVersionString(t *testing.T) {
	old := [3]string{Version, Commit, BuildDate}
	t.Cleanup(func() { Version, Commit, BuildDate = old[0], old[1], old[2] })
	Version, Commit, BuildDate = "v1.0.0", "abc123", "2026-01-02"

	if got := VersionString(); got != "version=v1.0.0 commit=abc123 built=2026-01-02" {
		t.Fatalf("unexpected version string %q", got)
	}
}

func TestPreviousRun(t *testing.T) {
	store := storage.NewStore(filepath.Join(t.TempDir(), "bruhbot.db"))
	if err := store.Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	attrs, err := previousRun(store)
	if err != nil {
		t.Fatalf("previousRun() on empty store failed: %v", err)
	}
	if len(attrs) != 4 || attrs[0] != "pendingSuggestions" || attrs[1] != 0 || attrs[3] != 0 {
		t.Fatalf("unexpected attrs for a first run: %v", attrs)
	}

	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	if err := store.SetMeta("last_start", start); err != nil {
		t.Fatalf("SetMeta() failed: %v", err)
	}
	if err := store.SetHeartbeat(start.Add(time.Hour)); err != nil {
		t.Fatalf("SetHeartbeat() failed: %v", err)
	}
	for _, id := range []string{"m1", "m2", "m3"} {
		rec := storage.SuggestionRecord{MessageID: id, ChannelID: "c", Content: id, SubmitterID: "u"}
		if err := store.SaveSuggestion(rec); err != nil {
			t.Fatalf("SaveSuggestion() failed: %v", err)
		}
	}
	if _, err := store.ResolveSuggestion("m1", "rejected", "mod", start); err != nil {
		t.Fatalf("ResolveSuggestion() failed: %v", err)
	}

	attrs, err = previousRun(store)
	if err != nil {
		t.Fatalf("previousRun() failed: %v", err)
	}
	got := map[string]any{}
	for i := 0; i+1 < len(attrs); i += 2 {
		got[attrs[i].(string)] = attrs[i+1]
	}
	if !got["lastStart"].(time.Time).Equal(start) {
		t.Fatalf("lastStart = %v, want %v", got["lastStart"], start)
	}
	if !got["lastHeartbeat"].(time.Time).Equal(start.Add(time.Hour)) {
		t.Fatalf("lastHeartbeat = %v", got["lastHeartbeat"])
	}
	if got["pendingSuggestions"] != 2 || got["reviewedSuggestions"] != 1 {
		t.Fatalf("unexpected suggestion counts: %v", got)
	}
}
