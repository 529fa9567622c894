// Package events wires the bot's gateway handlers: message replies, the
// special channel, chicken-out tracking and startup checks.
package events

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/bruhbot/pkg/config"
	"github.com/small-frappuccino/bruhbot/pkg/log"
	"github.com/small-frappuccino/bruhbot/pkg/messages"
)

// Outbound queues sends so they are retried and kept in order per channel.
type Outbound interface {
	EnqueueText(channelID, content, triggerID string) error
	EnqueueAudio(channelID, entry, triggerID string) error
}

// Pools is the read side of the message store.
type Pools interface {
	Len(c messages.Category) int
	Random(c messages.Category, intn func(int) int) (string, bool)
	Counts() map[messages.Category]int
}

// Heartbeats records liveness in the runtime metadata table.
type Heartbeats interface {
	SetHeartbeat(t time.Time) error
}

// Service owns the gateway handlers.
type Service struct {
	session    *discordgo.Session
	cfg        *config.Config
	pools      Pools
	out        Outbound
	chicken    *ChickenTracker
	heartbeats Heartbeats

	intn func(int) int
	now  func() time.Time

	mu       sync.Mutex
	running  bool
	removers []func()
}

// NewService creates the event service. chicken and heartbeats may be nil.
func NewService(session *discordgo.Session, cfg *config.Config, pools Pools, out Outbound, chicken *ChickenTracker, heartbeats Heartbeats) *Service {
	return &Service{
		session:    session,
		cfg:        cfg,
		pools:      pools,
		out:        out,
		chicken:    chicken,
		heartbeats: heartbeats,
		intn:       rand.IntN,
		now:        time.Now,
	}
}

// Start registers the gateway handlers.
func (svc *Service) Start(context.Context) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.running {
		return fmt.Errorf("event service is already running")
	}
	svc.removers = append(svc.removers,
		svc.session.AddHandler(svc.onReady),
		svc.session.AddHandler(svc.onMessageCreate),
	)
	if svc.chicken != nil {
		svc.removers = append(svc.removers,
			svc.session.AddHandler(svc.chicken.onMemberAdd),
			svc.session.AddHandler(svc.chicken.onMemberRemove),
		)
	}
	svc.running = true
	log.ApplicationLogger().Info("Event service started", "handlers", len(svc.removers))
	return nil
}

// Stop removes the handlers registered by Start.
func (svc *Service) Stop(context.Context) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if !svc.running {
		return nil
	}
	for _, remove := range svc.removers {
		remove()
	}
	svc.removers = nil
	svc.running = false
	log.ApplicationLogger().Info("Event service stopped")
	return nil
}

func (svc *Service) selfID() string {
	if svc.session != nil && svc.session.State != nil && svc.session.State.User != nil {
		return svc.session.State.User.ID
	}
	return ""
}
