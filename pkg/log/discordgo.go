package log

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
)

var discordGoLogLevels = map[int]slog.Level{
	discordgo.LogDebug:         slog.LevelDebug,
	discordgo.LogError:         slog.LevelError,
	discordgo.LogWarning:       slog.LevelWarn,
	discordgo.LogInformational: slog.LevelInfo,
}

// DiscordgoBridge returns a function suitable for discordgo.Logger that
// forwards library messages to handler.
func DiscordgoBridge(ctx context.Context, handler slog.Handler) func(msgL int, caller int, format string, args ...any) {
	logger := slog.New(handler).With("category", string(DiscordEvents), "source", "discordgo")
	return func(msgL int, _ int, format string, args ...any) {
		level, ok := discordGoLogLevels[msgL]
		if !ok {
			level = slog.LevelInfo
		}
		logger.LogAttrs(ctx, level, strings.ReplaceAll(fmt.Sprintf(format, args...), "\n", ""))
	}
}

// InstallDiscordgoBridge routes discordgo's internal logging to the global logger.
func InstallDiscordgoBridge(ctx context.Context) {
	discordgo.Logger = DiscordgoBridge(ctx, GlobalLogger().Handler())
}
