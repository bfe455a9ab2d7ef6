package relay

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AzielCF/az-messenger/messenger/domain"
	"github.com/AzielCF/az-messenger/messenger/reply"
	"github.com/AzielCF/az-messenger/pkg/botmonitor"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SenderProvider returns the outbound sender of a bot's page.
type SenderProvider interface {
	Sender(ctx context.Context, botID string) (domain.IPlatformSender, error)
}

// SessionDirectory maps senders to backend conversations.
type SessionDirectory interface {
	GetOrCreate(ctx context.Context, environment, botID, senderID string) (string, error)
	Invalidate(ctx context.Context, botID, senderID string) error
}

// EventRecorder receives one event per relay stage.
type EventRecorder interface {
	Record(e botmonitor.Event)
}

// Orchestrator relays one inbound event to the backend and the replies back
// to the sender.
type Orchestrator struct {
	senders     SenderProvider
	sessions    SessionDirectory
	backend     domain.IConversationBackend
	environment string
	monitor     EventRecorder
}

func NewOrchestrator(senders SenderProvider, sessions SessionDirectory, backend domain.IConversationBackend, environment string) *Orchestrator {
	return &Orchestrator{
		senders:     senders,
		sessions:    sessions,
		backend:     backend,
		environment: environment,
	}
}

// WithMonitor records every relay stage to m.
func (o *Orchestrator) WithMonitor(m EventRecorder) *Orchestrator {
	o.monitor = m
	return o
}

type trace struct {
	monitor  EventRecorder
	id       string
	botID    string
	senderID string
}

func (t trace) record(stage, status string, started time.Time, err error, metadata map[string]string) {
	if t.monitor == nil {
		return
	}
	e := botmonitor.Event{
		TraceID:  t.id,
		BotID:    t.botID,
		SenderID: t.senderID,
		Stage:    stage,
		Status:   status,
		Metadata: metadata,
	}
	if !started.IsZero() {
		e.DurationMs = time.Since(started).Milliseconds()
	}
	if err != nil {
		e.Error = err.Error()
	}
	t.monitor.Record(e)
}

// Relay processes event for botID. Failures before the backend replied drop
// the event and are returned after being logged. Outbound failures are
// logged only.
func (o *Orchestrator) Relay(ctx context.Context, botID string, event domain.InboundEvent) error {
	text := event.Text()
	tr := trace{monitor: o.monitor, id: uuid.NewString(), botID: botID, senderID: event.SenderID}
	log := logrus.WithFields(logrus.Fields{"bot_id": botID, "sender_id": event.SenderID, "trace_id": tr.id})
	if text == "" {
		log.Debug("[RELAY] Skipping event without text")
		tr.record(botmonitor.StageInbound, botmonitor.StatusSkipped, time.Time{}, domain.ErrEmptyMessage, nil)
		return domain.ErrEmptyMessage
	}
	kind := "text"
	if event.QuickReply != nil {
		kind = "quick_reply"
	}
	tr.record(botmonitor.StageInbound, botmonitor.StatusOK, time.Time{}, nil, map[string]string{"kind": kind})

	sender, err := o.senders.Sender(ctx, botID)
	if err != nil {
		log.WithError(err).Error("[RELAY] Could not resolve page client, dropping event")
		tr.record(botmonitor.StageBackendRequest, botmonitor.StatusError, time.Time{}, err, nil)
		return err
	}

	started := time.Now()
	conversationID, err := o.sessions.GetOrCreate(ctx, o.environment, botID, event.SenderID)
	if err != nil {
		log.WithError(err).Error("[RELAY] Could not get conversation, dropping event")
		tr.record(botmonitor.StageBackendRequest, botmonitor.StatusError, started, err, nil)
		return err
	}
	log = log.WithField("conversation_id", conversationID)
	tr.record(botmonitor.StageBackendRequest, botmonitor.StatusOK, started, nil, map[string]string{"conversation_id": conversationID})

	if err := sender.SendSenderAction(ctx, event.SenderID, domain.SenderActionTypingOn); err != nil {
		log.WithError(err).Warn("[RELAY] typing_on failed")
	}

	started = time.Now()
	body, err := o.backend.Say(ctx, o.environment, botID, conversationID, text)
	if err != nil {
		log.WithError(err).Error("[RELAY] Backend call failed, dropping event")
		tr.record(botmonitor.StageBackendReply, botmonitor.StatusError, started, err, nil)
		return fmt.Errorf("relay to conversation %s: %w", conversationID, err)
	}

	decoded := reply.Decode(body)
	tr.record(botmonitor.StageBackendReply, botmonitor.StatusOK, started, nil, map[string]string{
		"segments": strconv.Itoa(len(decoded.Segments)),
		"state":    decoded.ConversationState,
	})

	if err := sender.SendSenderAction(ctx, event.SenderID, domain.SenderActionTypingOff); err != nil {
		log.WithError(err).Warn("[RELAY] typing_off failed")
	}

	for i, segment := range decoded.Segments {
		segmentMeta := map[string]string{"segment": strconv.Itoa(i)}
		if strings.TrimSpace(segment) == "" {
			log.WithField("segment", i).Debug("[RELAY] Skipping empty reply segment")
			tr.record(botmonitor.StageOutbound, botmonitor.StatusSkipped, time.Time{}, nil, segmentMeta)
			continue
		}
		started = time.Now()
		if err := sender.SendText(ctx, event.SenderID, segment, decoded.QuickReplies); err != nil {
			log.WithError(err).WithField("segment", i).Error("[RELAY] Sending reply failed")
			tr.record(botmonitor.StageOutbound, botmonitor.StatusError, started, err, segmentMeta)
			continue
		}
		tr.record(botmonitor.StageOutbound, botmonitor.StatusOK, started, nil, segmentMeta)
	}

	if decoded.EndsSession() {
		log.WithField("state", decoded.ConversationState).Info("[RELAY] Conversation left READY, dropping session")
		if err := o.sessions.Invalidate(ctx, botID, event.SenderID); err != nil {
			log.WithError(err).Warn("[RELAY] Session invalidation failed")
		}
	}
	return nil
}
