package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tinyland-inc/omnichat/pkg/adapters"
)

type sentCall struct {
	channelID string
	content   string
	opts      adapters.SendOptions
}

type fakeIntegration struct {
	platform string
	events   chan adapters.Event

	mu      sync.Mutex
	sent    []sentCall
	sendErr error
}

func newFakeIntegration(platform string) *fakeIntegration {
	return &fakeIntegration{
		platform: platform,
		events:   make(chan adapters.Event, 16),
	}
}

func (f *fakeIntegration) Platform() string                 { return f.platform }
func (f *fakeIntegration) Connect(context.Context) error    { return nil }
func (f *fakeIntegration) Disconnect(context.Context) error { return nil }
func (f *fakeIntegration) Events() <-chan adapters.Event    { return f.events }

func (f *fakeIntegration) SendMessage(_ context.Context, channelID, content string, opts adapters.SendOptions) (*adapters.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, sentCall{channelID: channelID, content: content, opts: opts})
	return &adapters.SendResult{
		NativeMessageID: fmt.Sprintf("native-%d", len(f.sent)),
		ChannelID:       channelID,
		Timestamp:       time.Now().UTC(),
	}, nil
}

func (f *fakeIntegration) Channels(context.Context) ([]adapters.ChannelInfo, error) {
	return nil, nil
}

func (f *fakeIntegration) Messages(context.Context, string, adapters.HistoryOptions) ([]map[string]any, error) {
	return nil, nil
}

func (f *fakeIntegration) HealthCheck(context.Context) adapters.Health {
	return adapters.Health{Platform: f.platform, Connected: true}
}

func (f *fakeIntegration) sentCalls() []sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentCall, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeIntegration) waitForSent(t *testing.T, n int) []sentCall {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if calls := f.sentCalls(); len(calls) >= n {
			return calls
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d sends, got %d", n, len(f.sentCalls()))
	return nil
}

type fakeResponder struct {
	reply string
	err   error

	mu    sync.Mutex
	calls []Message
}

func (r *fakeResponder) Respond(_ context.Context, msg Message) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, msg)
	r.mu.Unlock()
	return r.reply, r.err
}

func (r *fakeResponder) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func telegramPayload(chatID int, text string) map[string]any {
	return map[string]any{
		"text":       text,
		"from":       map[string]any{"id": 7, "username": "alice"},
		"chat":       map[string]any{"id": chatID, "title": "Chat"},
		"message_id": 1,
	}
}

func TestHandleIncomingMessageAssignsUniqueIDs(t *testing.T) {
	h := New()

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		msg := h.HandleIncomingMessage("telegram", telegramPayload(1, fmt.Sprintf("msg %d", i)))
		if msg.ID == "" {
			t.Fatal("expected a generated ID")
		}
		if _, dup := seen[msg.ID]; dup {
			t.Fatalf("duplicate ID %q", msg.ID)
		}
		seen[msg.ID] = struct{}{}
	}

	if got := h.Stats().TotalMessages; got != 50 {
		t.Fatalf("expected 50 stored messages, got %d", got)
	}
}

func TestMessagesFilter(t *testing.T) {
	h := New()

	h.HandleIncomingMessage("telegram", telegramPayload(1, "one"))
	h.HandleIncomingMessage("telegram", telegramPayload(2, "two"))
	h.HandleIncomingMessage("slack", map[string]any{
		"text": "three", "user": "U1", "channel": "C1", "ts": "1700000000.0001",
	})

	if got := len(h.Messages(Filter{})); got != 3 {
		t.Fatalf("unfiltered: expected 3, got %d", got)
	}
	if got := len(h.Messages(Filter{Platform: PlatformTelegram})); got != 2 {
		t.Fatalf("platform filter: expected 2, got %d", got)
	}
	if got := len(h.Messages(Filter{Platform: PlatformTelegram, ChannelID: "1"})); got != 1 {
		t.Fatalf("channel filter: expected 1, got %d", got)
	}
	if got := len(h.Messages(Filter{Author: "7"})); got != 2 {
		t.Fatalf("author filter: expected 2, got %d", got)
	}

	limited := h.Messages(Filter{Limit: 2})
	if len(limited) != 2 {
		t.Fatalf("limit filter: expected 2, got %d", len(limited))
	}
	if limited[0].Content != "two" || limited[1].Content != "three" {
		t.Fatalf("limit should keep the newest entries, got %q then %q", limited[0].Content, limited[1].Content)
	}
}

func TestMessagesSinceIsExclusive(t *testing.T) {
	h := New()
	msg := h.HandleIncomingMessage("telegram", telegramPayload(1, "boundary"))

	if got := len(h.Messages(Filter{Since: msg.Timestamp})); got != 0 {
		t.Fatalf("message at the since boundary must be excluded, got %d", got)
	}
	if got := len(h.Messages(Filter{Since: msg.Timestamp.Add(-time.Second)})); got != 1 {
		t.Fatalf("message after since must be included, got %d", got)
	}
}

func TestSendMessageUnknownPlatform(t *testing.T) {
	h := New()

	_, err := h.SendMessage(context.Background(), "mastodon", "123", "hello", adapters.SendOptions{})
	if err == nil {
		t.Fatal("expected an error for an unregistered platform")
	}
	if !errors.Is(err, ErrNoIntegration) {
		t.Fatalf("expected ErrNoIntegration, got %v", err)
	}
}

func TestSendMessageRecordsOutbound(t *testing.T) {
	h := New()
	fake := newFakeIntegration("telegram")
	if err := h.RegisterIntegration(fake); err != nil {
		t.Fatal(err)
	}
	defer h.Close(context.Background())

	events, cancel := h.Subscribe(8)
	defer cancel()

	msg, err := h.SendMessage(context.Background(), "telegram", "42", "hi there", adapters.SendOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Author.ID != BotAuthorID {
		t.Fatalf("outbound author should be %q, got %q", BotAuthorID, msg.Author.ID)
	}
	if msg.NativeMessageID == "" {
		t.Fatal("expected the adapter's native message ID")
	}

	select {
	case evt := <-events:
		if evt.Type != EventMessageSent {
			t.Fatalf("expected %q event, got %q", EventMessageSent, evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message_sent event")
	}

	if got := len(h.Messages(Filter{Author: BotAuthorID})); got != 1 {
		t.Fatalf("outbound message should be stored, got %d", got)
	}
}

func TestRegisterIntegrationRejectsDuplicate(t *testing.T) {
	h := New()
	defer h.Close(context.Background())

	if err := h.RegisterIntegration(newFakeIntegration("telegram")); err != nil {
		t.Fatal(err)
	}
	err := h.RegisterIntegration(newFakeIntegration("telegram"))
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestAgentTriggersOnMention(t *testing.T) {
	h := New()
	fake := newFakeIntegration("telegram")
	if err := h.RegisterIntegration(fake); err != nil {
		t.Fatal(err)
	}
	defer h.Close(context.Background())

	agent := &fakeResponder{reply: "it is sunny"}
	h.RegisterAgent(GlobalAgentKey, agent)

	h.HandleIncomingMessage("telegram", telegramPayload(1, "@ai what's the weather"))

	calls := fake.waitForSent(t, 1)
	if calls[0].content != "it is sunny" {
		t.Fatalf("expected the agent reply to be sent, got %q", calls[0].content)
	}
	if calls[0].channelID != "1" {
		t.Fatalf("reply should go to the originating channel, got %q", calls[0].channelID)
	}
	if calls[0].opts.ReplyTo == "" {
		t.Fatal("reply should reference the triggering message")
	}
}

func TestAgentIgnoresPlainMessages(t *testing.T) {
	h := New()
	fake := newFakeIntegration("telegram")
	if err := h.RegisterIntegration(fake); err != nil {
		t.Fatal(err)
	}
	defer h.Close(context.Background())

	agent := &fakeResponder{reply: "should not appear"}
	h.RegisterAgent(GlobalAgentKey, agent)

	h.HandleIncomingMessage("telegram", telegramPayload(1, "hello"))

	time.Sleep(50 * time.Millisecond)
	if agent.callCount() != 0 {
		t.Fatal("a plain message must not trigger the global agent")
	}
	if len(fake.sentCalls()) != 0 {
		t.Fatal("no reply should have been sent")
	}
}

func TestChannelBoundAgentTriggersWithoutMention(t *testing.T) {
	h := New()
	fake := newFakeIntegration("telegram")
	if err := h.RegisterIntegration(fake); err != nil {
		t.Fatal(err)
	}
	defer h.Close(context.Background())

	agent := &fakeResponder{reply: "always on"}
	h.RegisterAgent("telegram:1", agent)

	h.HandleIncomingMessage("telegram", telegramPayload(1, "hello"))
	fake.waitForSent(t, 1)

	// Other channels stay quiet.
	h.HandleIncomingMessage("telegram", telegramPayload(2, "hello"))
	time.Sleep(50 * time.Millisecond)
	for _, call := range fake.sentCalls() {
		if call.channelID != "1" {
			t.Fatalf("agent replied outside its bound channel: %q", call.channelID)
		}
	}
}

func TestAgentIgnoresBotMessages(t *testing.T) {
	h := New()
	fake := newFakeIntegration("telegram")
	if err := h.RegisterIntegration(fake); err != nil {
		t.Fatal(err)
	}
	defer h.Close(context.Background())

	agent := &fakeResponder{reply: "echo"}
	h.RegisterAgent("telegram:1", agent)

	if _, err := h.SendMessage(context.Background(), "telegram", "1", "@ai hi", adapters.SendOptions{}); err != nil {
		t.Fatal(err)
	}

	time.Sleep(50 * time.Millisecond)
	if agent.callCount() != 0 {
		t.Fatal("the bot's own messages must never trigger an agent")
	}
}

func TestBroadcastIsolatesFailures(t *testing.T) {
	h := New()
	good := newFakeIntegration("telegram")
	bad := newFakeIntegration("slack")
	bad.sendErr = errors.New("slack is down")

	if err := h.RegisterIntegration(good); err != nil {
		t.Fatal(err)
	}
	if err := h.RegisterIntegration(bad); err != nil {
		t.Fatal(err)
	}
	defer h.Close(context.Background())

	opts := BroadcastOptions{Channels: []Destination{
		{Platform: "slack", ChannelID: "C1"},
		{Platform: "telegram", ChannelID: "1"},
	}}
	results := h.Broadcast(context.Background(), "announcement", opts)

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	byPlatform := make(map[string]BroadcastEntry)
	for _, r := range results {
		byPlatform[r.Platform] = r
	}
	if byPlatform["slack"].Err == nil {
		t.Fatal("slack destination should report its failure")
	}
	if byPlatform["telegram"].Err != nil {
		t.Fatalf("telegram destination should succeed, got %v", byPlatform["telegram"].Err)
	}
	if len(good.sentCalls()) != 1 {
		t.Fatal("telegram should have received the broadcast despite the slack failure")
	}
}

func TestBroadcastObservedDestinations(t *testing.T) {
	h := New()
	fake := newFakeIntegration("telegram")
	if err := h.RegisterIntegration(fake); err != nil {
		t.Fatal(err)
	}
	defer h.Close(context.Background())

	h.HandleIncomingMessage("telegram", telegramPayload(1, "a"))
	h.HandleIncomingMessage("telegram", telegramPayload(2, "b"))
	// Slack messages were observed but no slack integration is live.
	h.HandleIncomingMessage("slack", map[string]any{
		"text": "c", "user": "U1", "channel": "C1", "ts": "1700000000.0001",
	})

	results := h.Broadcast(context.Background(), "hello all", BroadcastOptions{})
	if len(results) != 2 {
		t.Fatalf("expected 2 observed telegram destinations, got %d", len(results))
	}
	if len(fake.sentCalls()) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(fake.sentCalls()))
	}
}

func TestChannelsAggregates(t *testing.T) {
	h := New()

	h.HandleIncomingMessage("telegram", telegramPayload(1, "a"))
	h.HandleIncomingMessage("telegram", telegramPayload(1, "b"))
	h.HandleIncomingMessage("telegram", telegramPayload(2, "c"))

	channels := h.Channels()
	if len(channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(channels))
	}
	for _, ch := range channels {
		switch ch.ID {
		case "1":
			if ch.MessageCount != 2 {
				t.Fatalf("channel 1: expected 2 messages, got %d", ch.MessageCount)
			}
		case "2":
			if ch.MessageCount != 1 {
				t.Fatalf("channel 2: expected 1 message, got %d", ch.MessageCount)
			}
		default:
			t.Fatalf("unexpected channel %q", ch.ID)
		}
	}
}

func TestStats(t *testing.T) {
	h := New()
	fake := newFakeIntegration("telegram")
	if err := h.RegisterIntegration(fake); err != nil {
		t.Fatal(err)
	}
	defer h.Close(context.Background())
	h.RegisterAgent(GlobalAgentKey, &fakeResponder{})

	h.HandleIncomingMessage("telegram", telegramPayload(1, "a"))
	h.HandleIncomingMessage("slack", map[string]any{
		"text": "b", "user": "U1", "channel": "C1", "ts": "1700000000.0001",
	})

	stats := h.Stats()
	if stats.TotalMessages != 2 {
		t.Fatalf("total: expected 2, got %d", stats.TotalMessages)
	}
	if stats.ChannelCount != 2 {
		t.Fatalf("channels: expected 2, got %d", stats.ChannelCount)
	}
	if stats.AgentCount != 1 {
		t.Fatalf("agents: expected 1, got %d", stats.AgentCount)
	}
	if stats.MessagesByPlatform[PlatformTelegram] != 1 || stats.MessagesByPlatform[PlatformSlack] != 1 {
		t.Fatalf("per-platform counts wrong: %v", stats.MessagesByPlatform)
	}
}

func TestPumpDeliversAdapterEvents(t *testing.T) {
	h := New()
	fake := newFakeIntegration("telegram")
	if err := h.RegisterIntegration(fake); err != nil {
		t.Fatal(err)
	}
	defer h.Close(context.Background())

	events, cancel := h.Subscribe(8)
	defer cancel()

	fake.events <- adapters.Event{
		Type:     adapters.EventMessage,
		Platform: "telegram",
		Payload:  telegramPayload(1, "via pump"),
	}

	select {
	case evt := <-events:
		if evt.Type != EventMessage {
			t.Fatalf("expected message event, got %q", evt.Type)
		}
		if evt.Message == nil || evt.Message.Content != "via pump" {
			t.Fatalf("unexpected message: %+v", evt.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pumped event")
	}
}
