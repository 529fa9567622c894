package events

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/bruhbot/pkg/log"
	"github.com/small-frappuccino/bruhbot/pkg/util"
)

// MaxUploadSize is the attachment limit for audio files.
const MaxUploadSize = 25 * 1024 * 1024

// ChannelSender performs the actual REST sends for the outbound queue.
type ChannelSender struct {
	session *discordgo.Session
	baseDir string
	maxSize int64
}

// NewChannelSender resolves relative audio paths against baseDir.
func NewChannelSender(session *discordgo.Session, baseDir string) *ChannelSender {
	return &ChannelSender{session: session, baseDir: baseDir, maxSize: MaxUploadSize}
}

// SendText posts content to the channel.
func (cs *ChannelSender) SendText(ctx context.Context, channelID, content string) error {
	_, err := cs.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	return err
}

// SendAudio posts an audio entry. URLs are sent as text so the client
// embeds them; anything else is treated as a file path and uploaded.
// Missing or oversized files are skipped without error.
func (cs *ChannelSender) SendAudio(ctx context.Context, channelID, entry string) error {
	if util.HasAnyPrefix(entry, "http://", "https://") {
		return cs.SendText(ctx, channelID, entry)
	}

	path := entry
	if !filepath.IsAbs(path) {
		path = filepath.Join(cs.baseDir, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.ApplicationLogger().Warn("Audio file not found", "path", path, "entry", entry, "baseDir", cs.baseDir)
			return nil
		}
		return fmt.Errorf("stat audio file: %w", err)
	}
	if info.IsDir() {
		log.ApplicationLogger().Warn("Audio entry is a directory", "path", path)
		return nil
	}

	name := filepath.Base(path)
	if info.Size() > cs.maxSize {
		log.ApplicationLogger().Warn("Audio file too large",
			"path", path,
			"sizeMB", fmt.Sprintf("%.1f", float64(info.Size())/1024/1024),
		)
		return cs.SendText(ctx, channelID, fmt.Sprintf("❌ Audio file too large to send (max 25MB): `%s`", name))
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	_, err = cs.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Files: []*discordgo.File{{Name: name, Reader: f}},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return err
	}
	log.DiscordLogger().Debug("Sent audio file", "channelID", channelID, "path", path)
	return nil
}
