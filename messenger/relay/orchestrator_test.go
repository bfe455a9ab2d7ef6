package relay

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/AzielCF/az-messenger/messenger/domain"
	"github.com/AzielCF/az-messenger/messenger/repository"
	"github.com/AzielCF/az-messenger/messenger/session"
	"github.com/AzielCF/az-messenger/pkg/botmonitor"
	pkgError "github.com/AzielCF/az-messenger/pkg/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	action       domain.SenderAction
	text         string
	quickReplies []domain.QuickReplyOption
}

type fakeSender struct {
	mu        sync.Mutex
	calls     []sent
	failTexts map[string]bool
	failAll   bool
}

func (f *fakeSender) SendSenderAction(ctx context.Context, recipientID string, action domain.SenderAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sent{action: action})
	if f.failAll {
		return errors.New("graph down")
	}
	return nil
}

func (f *fakeSender) SendText(ctx context.Context, recipientID, text string, quickReplies []domain.QuickReplyOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sent{text: text, quickReplies: quickReplies})
	if f.failAll || f.failTexts[text] {
		return pkgError.TransportError{Op: "send text", Err: errors.New("boom")}
	}
	return nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c.action == "" {
			out = append(out, c.text)
		}
	}
	return out
}

type fakeSenders struct {
	sender *fakeSender
	err    error
}

func (f *fakeSenders) Sender(ctx context.Context, botID string) (domain.IPlatformSender, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sender, nil
}

type sayCall struct {
	env, botID, conversationID, text string
}

type fakeBackend struct {
	mu       sync.Mutex
	starts   int
	says     []sayCall
	reply    string
	sayErr   error
	startErr error
}

func (f *fakeBackend) StartConversation(ctx context.Context, environment, botID string) (domain.ConversationStart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return domain.ConversationStart{}, f.startErr
	}
	return domain.ConversationStart{StatusCode: 201, Location: "http://backend/bots/" + environment + "/" + botID + "/C1"}, nil
}

func (f *fakeBackend) Say(ctx context.Context, environment, botID, conversationID, text string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.says = append(f.says, sayCall{environment, botID, conversationID, text})
	if f.sayErr != nil {
		return nil, f.sayErr
	}
	return []byte(f.reply), nil
}

type fixture struct {
	orchestrator *Orchestrator
	sender       *fakeSender
	backend      *fakeBackend
	store        *repository.MemorySessionStore
	directory    *session.Directory
}

func newFixture(reply string) *fixture {
	sender := &fakeSender{failTexts: map[string]bool{}}
	backend := &fakeBackend{reply: reply}
	store := repository.NewMemorySessionStore(0)
	directory := session.NewDirectory(backend, store)
	return &fixture{
		orchestrator: NewOrchestrator(&fakeSenders{sender: sender}, directory, backend, "unrestricted"),
		sender:       sender,
		backend:      backend,
		store:        store,
		directory:    directory,
	}
}

func textEvent(sender, text string) domain.InboundEvent {
	return domain.InboundEvent{SenderID: sender, Message: &domain.TextMessage{Text: text}}
}

func TestRelayEndToEnd(t *testing.T) {
	f := newFixture(`{"conversationSteps":[{"conversationStep":[{"key":"output:text1","value":"Hello there"}]}],"conversationState":"READY"}`)

	require.NoError(t, f.orchestrator.Relay(context.Background(), "B1", textEvent("U1", "Hi")))

	assert.Equal(t, 1, f.backend.starts)
	assert.Equal(t, []sayCall{{"unrestricted", "B1", "C1", "Hi"}}, f.backend.says)
	assert.Equal(t, []sent{
		{action: domain.SenderActionTypingOn},
		{action: domain.SenderActionTypingOff},
		{text: "Hello there"},
	}, f.sender.calls)

	id, ok, err := f.directory.Peek(context.Background(), "B1", "U1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "C1", id)
}

func TestRelayReusesSession(t *testing.T) {
	f := newFixture(`{"conversationSteps":[],"conversationState":"READY"}`)

	require.NoError(t, f.orchestrator.Relay(context.Background(), "B1", textEvent("U1", "Hi")))
	require.NoError(t, f.orchestrator.Relay(context.Background(), "B1", textEvent("U1", "Again")))

	assert.Equal(t, 1, f.backend.starts)
	assert.Len(t, f.backend.says, 2)
	assert.Empty(t, f.sender.texts())
}

func TestRelayInvalidatesWhenStateLeavesReady(t *testing.T) {
	f := newFixture(`{"conversationSteps":[{"conversationStep":[{"key":"output:text","value":"Bye"}]}],"conversationState":"ENDED"}`)

	require.NoError(t, f.orchestrator.Relay(context.Background(), "B1", textEvent("U1", "bye")))

	assert.Equal(t, []string{"Bye"}, f.sender.texts())
	assert.Zero(t, f.store.Len())
}

func TestRelayKeepsSessionWithoutState(t *testing.T) {
	f := newFixture(`{"conversationSteps":[{"conversationStep":[{"key":"output:text","value":"Hm"}]}]}`)

	require.NoError(t, f.orchestrator.Relay(context.Background(), "B1", textEvent("U1", "?")))

	assert.Equal(t, 1, f.store.Len())
}

func TestRelayAttachesQuickRepliesToEverySegment(t *testing.T) {
	f := newFixture(`{"conversationSteps":[{"conversationStep":[
		{"key":"output:text:a","value":"First"},
		{"key":"output:text:b","value":"Second"},
		{"key":"quickReplies:q","value":[{"value":"Yes","expressions":"yes"},{"value":"No","expressions":"no"}]}
	]}],"conversationState":"READY"}`)

	require.NoError(t, f.orchestrator.Relay(context.Background(), "B1", textEvent("U1", "Hi")))

	options := []domain.QuickReplyOption{{Value: "Yes", Expressions: "yes"}, {Value: "No", Expressions: "no"}}
	texts := f.sender.calls[2:]
	require.Len(t, texts, 2)
	assert.Equal(t, sent{text: "First", quickReplies: options}, texts[0])
	assert.Equal(t, sent{text: "Second", quickReplies: options}, texts[1])
}

func TestRelaySendFailuresAreIsolated(t *testing.T) {
	f := newFixture(`{"conversationSteps":[{"conversationStep":[
		{"key":"output:text","value":"one"},
		{"key":"output:text","value":"two"},
		{"key":"output:text","value":"three"}
	]}],"conversationState":"ENDED"}`)
	f.sender.failTexts["two"] = true

	require.NoError(t, f.orchestrator.Relay(context.Background(), "B1", textEvent("U1", "Hi")))

	assert.Equal(t, []string{"one", "two", "three"}, f.sender.texts())
	assert.Zero(t, f.store.Len())
}

func TestRelayTypingFailuresAreSwallowed(t *testing.T) {
	f := newFixture(`{"conversationSteps":[{"conversationStep":[{"key":"output:text","value":"ok"}]}]}`)
	f.sender.failAll = true

	require.NoError(t, f.orchestrator.Relay(context.Background(), "B1", textEvent("U1", "Hi")))
	assert.Len(t, f.backend.says, 1)
	assert.Equal(t, []string{"ok"}, f.sender.texts())
}

func TestRelayBackendFailureDropsEvent(t *testing.T) {
	f := newFixture("")
	f.backend.sayErr = pkgError.TransportError{Op: "say", Err: errors.New("timeout")}

	err := f.orchestrator.Relay(context.Background(), "B1", textEvent("U1", "Hi"))

	assert.ErrorAs(t, err, &pkgError.TransportError{})
	assert.Equal(t, []sent{{action: domain.SenderActionTypingOn}}, f.sender.calls)
	assert.Equal(t, 1, f.store.Len())
}

func TestRelaySessionFailureDropsEvent(t *testing.T) {
	f := newFixture("")
	f.backend.startErr = pkgError.TransportError{Op: "start", Err: errors.New("refused")}

	err := f.orchestrator.Relay(context.Background(), "B1", textEvent("U1", "Hi"))

	assert.Error(t, err)
	assert.Empty(t, f.backend.says)
	assert.Empty(t, f.sender.calls)
}

func TestRelayUnknownBotDropsEvent(t *testing.T) {
	backend := &fakeBackend{}
	o := NewOrchestrator(&fakeSenders{err: pkgError.ConfigurationError("no bot")}, session.NewDirectory(backend, repository.NewMemorySessionStore(0)), backend, "unrestricted")

	err := o.Relay(context.Background(), "B1", textEvent("U1", "Hi"))

	assert.ErrorAs(t, err, new(pkgError.ConfigurationError))
	assert.Zero(t, backend.starts)
}

func TestRelayQuickReplyPayloadIsInput(t *testing.T) {
	f := newFixture(`{"conversationSteps":[]}`)
	event := domain.InboundEvent{SenderID: "U1", QuickReply: &domain.QuickReplyMessage{Payload: "confirmation(yes)"}}

	require.NoError(t, f.orchestrator.Relay(context.Background(), "B1", event))
	assert.Equal(t, "confirmation(yes)", f.backend.says[0].text)
}

func TestRelaySkipsEmptyEvents(t *testing.T) {
	f := newFixture("")

	err := f.orchestrator.Relay(context.Background(), "B1", domain.InboundEvent{SenderID: "U1"})

	assert.ErrorIs(t, err, domain.ErrEmptyMessage)
	assert.Zero(t, f.backend.starts)
}

func stagesOf(events []botmonitor.Event) []string {
	var out []string
	for _, e := range events {
		out = append(out, e.Stage+":"+e.Status)
	}
	return out
}

func TestRelayRecordsStagesToMonitor(t *testing.T) {
	f := newFixture(`{"conversationSteps":[{"conversationStep":[
		{"key":"output:text","value":"one"},
		{"key":"output:text","value":"two"}
	]}],"conversationState":"READY"}`)
	f.sender.failTexts["two"] = true
	monitor := botmonitor.New(20, 0)
	f.orchestrator.WithMonitor(monitor)

	require.NoError(t, f.orchestrator.Relay(context.Background(), "B1", textEvent("U1", "Hi")))

	stats := monitor.GetStats()
	assert.Equal(t, []string{
		"inbound:ok",
		"backend_request:ok",
		"backend_reply:ok",
		"outbound:ok",
		"outbound:error",
	}, stagesOf(stats.RecentEvents))
	assert.Equal(t, int64(1), stats.TotalOutbound)
	assert.Equal(t, int64(1), stats.TotalErrors)

	traceID := stats.RecentEvents[0].TraceID
	assert.NotEmpty(t, traceID)
	for _, e := range stats.RecentEvents {
		assert.Equal(t, traceID, e.TraceID)
		assert.Equal(t, "B1", e.BotID)
		assert.Equal(t, "U1", e.SenderID)
	}
	assert.Equal(t, "C1", stats.RecentEvents[1].Metadata["conversation_id"])
	assert.Equal(t, "2", stats.RecentEvents[2].Metadata["segments"])
}

func TestRelayRecordsBackendFailure(t *testing.T) {
	f := newFixture("")
	f.backend.sayErr = pkgError.TransportError{Op: "say", Err: errors.New("timeout")}
	monitor := botmonitor.New(20, 0)
	f.orchestrator.WithMonitor(monitor)

	require.Error(t, f.orchestrator.Relay(context.Background(), "B1", textEvent("U1", "Hi")))

	stats := monitor.GetStats()
	assert.Equal(t, []string{"inbound:ok", "backend_request:ok", "backend_reply:error"}, stagesOf(stats.RecentEvents))
	assert.Contains(t, stats.RecentEvents[2].Error, "timeout")
}

func TestRelayRecordsSkippedEvent(t *testing.T) {
	f := newFixture("")
	monitor := botmonitor.New(20, 0)
	f.orchestrator.WithMonitor(monitor)

	_ = f.orchestrator.Relay(context.Background(), "B1", domain.InboundEvent{SenderID: "U1"})

	assert.Equal(t, []string{"inbound:skipped"}, stagesOf(monitor.GetStats().RecentEvents))
}

func TestRelaySkipsEmptySegments(t *testing.T) {
	f := newFixture(`{"conversationSteps":[{"conversationStep":[
		{"key":"output:text","value":"first"},
		{"key":"output:text","value":null},
		{"key":"output:text","value":["a","b"]},
		{"key":"output:text","value":"  "},
		{"key":"output:text","value":"last"}
	]}],"conversationState":"READY"}`)
	monitor := botmonitor.New(20, 0)
	f.orchestrator.WithMonitor(monitor)

	require.NoError(t, f.orchestrator.Relay(context.Background(), "B1", textEvent("U1", "Hi")))

	assert.Equal(t, []string{"first", "last"}, f.sender.texts())
	stats := monitor.GetStats()
	assert.Equal(t, int64(2), stats.TotalOutbound)
	assert.Zero(t, stats.TotalErrors)
	assert.Contains(t, stagesOf(stats.RecentEvents), "outbound:skipped")
}
