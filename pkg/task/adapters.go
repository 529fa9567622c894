package task

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// Sender performs the actual outbound Discord calls for queued sends.
type Sender interface {
	SendText(ctx context.Context, channelID, content string) error
	SendAudio(ctx context.Context, channelID, entry string) error
}

const (
	TaskTypeSendText  = "outbound.send_text"
	TaskTypeSendAudio = "outbound.send_audio"

	TaskTypeReloadMessages  = "messages.reload"
	TaskTypeSweepMemberJoin = "members.sweep_joins"
)

// SendPayload holds one queued outbound message.
type SendPayload struct {
	ChannelID string
	// Content is message text for TaskTypeSendText and an audio entry
	// (URL or file path) for TaskTypeSendAudio.
	Content string
	// TriggerID is the inbound message that caused the send, used for dedupe.
	TriggerID string
}

// ErrBadPayload is returned by handlers given a payload of the wrong type.
var ErrBadPayload = errors.New("unexpected task payload")

// OutboundAdapters wires a Sender to the TaskRouter behind a shared rate
// limiter so bursts of triggers never flood the REST API.
type OutboundAdapters struct {
	Router  *TaskRouter
	Sender  Sender
	Limiter *rate.Limiter
}

// NewOutboundAdapters creates adapters and registers the send handlers.
// perSecond <= 0 disables throttling.
func NewOutboundAdapters(router *TaskRouter, sender Sender, perSecond int) *OutboundAdapters {
	lim := rate.NewLimiter(rate.Inf, 0)
	if perSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(perSecond), perSecond)
	}
	ad := &OutboundAdapters{Router: router, Sender: sender, Limiter: lim}
	ad.RegisterHandlers()
	return ad
}

// RegisterHandlers registers handlers for the outbound task types.
func (a *OutboundAdapters) RegisterHandlers() {
	a.Router.RegisterHandler(TaskTypeSendText, a.handleSendText)
	a.Router.RegisterHandler(TaskTypeSendAudio, a.handleSendAudio)
}

// ---- Producer convenience methods ----

// EnqueueText queues a text message for channelID.
func (a *OutboundAdapters) EnqueueText(channelID, content, triggerID string) error {
	return a.enqueue(TaskTypeSendText, SendPayload{ChannelID: channelID, Content: content, TriggerID: triggerID})
}

// EnqueueAudio queues an audio entry for channelID.
func (a *OutboundAdapters) EnqueueAudio(channelID, entry, triggerID string) error {
	return a.enqueue(TaskTypeSendAudio, SendPayload{ChannelID: channelID, Content: entry, TriggerID: triggerID})
}

func (a *OutboundAdapters) enqueue(taskType string, p SendPayload) error {
	if p.ChannelID == "" || p.Content == "" {
		return nil
	}
	opts := TaskOptions{
		GroupKey:       p.ChannelID, // keep per-channel order
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     10 * time.Second,
	}
	if p.TriggerID != "" {
		opts.IdempotencyKey = taskType + ":" + p.TriggerID
		opts.IdempotencyTTL = 30 * time.Second
	}
	err := a.Router.Dispatch(context.Background(), Task{Type: taskType, Payload: p, Options: opts})
	if errors.Is(err, ErrDuplicateTask) {
		return nil
	}
	return err
}

// ---- Handlers ----

func (a *OutboundAdapters) handleSendText(ctx context.Context, payload any) error {
	p, ok := payload.(SendPayload)
	if !ok {
		return ErrBadPayload
	}
	if err := a.Limiter.Wait(ctx); err != nil {
		return err
	}
	return a.Sender.SendText(ctx, p.ChannelID, p.Content)
}

func (a *OutboundAdapters) handleSendAudio(ctx context.Context, payload any) error {
	p, ok := payload.(SendPayload)
	if !ok {
		return ErrBadPayload
	}
	if err := a.Limiter.Wait(ctx); err != nil {
		return err
	}
	return a.Sender.SendAudio(ctx, p.ChannelID, p.Content)
}
