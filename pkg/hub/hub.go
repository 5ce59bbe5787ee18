package hub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinyland-inc/omnichat/pkg/adapters"
	"github.com/tinyland-inc/omnichat/pkg/logger"
)

// BotAuthorID is the author ID of locally synthesized outbound messages.
const BotAuthorID = "bot"

// GlobalAgentKey binds a responder to every channel without an explicit
// per-channel binding.
const GlobalAgentKey = "global"

var (
	// ErrNoIntegration is returned when a send names a platform with no
	// registered adapter.
	ErrNoIntegration = errors.New("no integration found")
	// ErrAlreadyRegistered is returned when registering an adapter for a
	// platform that already has an active one. Unregister first.
	ErrAlreadyRegistered = errors.New("integration already registered")
)

// Responder is the AI responder boundary. An empty reply with nil error
// means "nothing to say"; no outbound message is produced.
type Responder interface {
	Respond(ctx context.Context, msg Message) (string, error)
}

type registration struct {
	integ adapters.Integration
	stop  chan struct{}
}

// Hub is the message normalization and routing core. All state is
// guarded by one mutex; adapters deliver events from their own
// goroutines via per-integration pumps, which preserves per-platform
// ordering while platforms interleave freely.
type Hub struct {
	mu           sync.Mutex
	messages     []Message
	ids          map[string]struct{}
	integrations map[string]*registration
	agents       map[string]Responder

	subs *subscribers
}

func New() *Hub {
	return &Hub{
		ids:          make(map[string]struct{}),
		integrations: make(map[string]*registration),
		agents:       make(map[string]Responder),
		subs:         newSubscribers(),
	}
}

// Subscribe returns a receive channel for hub events and a cancel
// function. Delivery is non-blocking; slow subscribers lose events.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	return h.subs.add(buffer)
}

// RegisterIntegration stores the adapter and starts consuming its event
// stream. Registering a second adapter for an already-active platform
// is rejected; callers must Unregister (which disconnects) first.
func (h *Hub) RegisterIntegration(integ adapters.Integration) error {
	platform := integ.Platform()

	h.mu.Lock()
	if _, exists := h.integrations[platform]; exists {
		h.mu.Unlock()
		return fmt.Errorf("%w for platform %q", ErrAlreadyRegistered, platform)
	}
	reg := &registration{integ: integ, stop: make(chan struct{})}
	h.integrations[platform] = reg
	h.mu.Unlock()

	go h.pump(platform, reg)

	logger.InfoCF("hub", "Integration registered", map[string]any{"platform": platform})
	return nil
}

// UnregisterIntegration detaches the event pump, disconnects the
// adapter, and removes it from the registry.
func (h *Hub) UnregisterIntegration(ctx context.Context, platform string) error {
	h.mu.Lock()
	reg, ok := h.integrations[platform]
	if ok {
		delete(h.integrations, platform)
	}
	h.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w for platform %q", ErrNoIntegration, platform)
	}

	close(reg.stop)
	return reg.integ.Disconnect(ctx)
}

// Integration returns the registered adapter for a platform.
func (h *Hub) Integration(platform string) (adapters.Integration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	reg, ok := h.integrations[platform]
	if !ok {
		return nil, false
	}
	return reg.integ, true
}

// Platforms lists the registered platform names, sorted.
func (h *Hub) Platforms() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.integrations))
	for name := range h.integrations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// pump consumes one adapter's event stream. One goroutine per
// integration keeps per-platform ordering intact.
func (h *Hub) pump(platform string, reg *registration) {
	events := reg.integ.Events()
	for {
		select {
		case <-reg.stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case adapters.EventMessage:
				h.HandleIncomingMessage(platform, ev.Payload)
			case adapters.EventStatus:
				h.subs.publish(Event{
					Type:     EventIntegrationStatus,
					Platform: Platform(platform),
					Status:   string(ev.Status),
				})
			case adapters.EventError:
				logger.ErrorCF(platform, "Adapter error", map[string]any{
					"error": ev.Err.Error(),
				})
			}
		}
	}
}

// HandleIncomingMessage normalizes a native payload, appends it to the
// store, fans it out to subscribers, and dispatches the AI responder
// when the trigger predicate matches. AI processing never blocks or
// fails this path.
func (h *Hub) HandleIncomingMessage(platform string, payload map[string]any) Message {
	msg := Normalize(Platform(platform), payload)

	h.mu.Lock()
	h.append(msg)
	agent, channelBound := h.agentForLocked(msg)
	h.mu.Unlock()

	h.subs.publish(Event{Type: EventMessage, Message: &msg})

	// The trigger predicate is evaluated synchronously, once, before any
	// asynchronous AI dispatch.
	if agent != nil && shouldTrigger(msg, channelBound) {
		go h.respond(agent, msg)
	}
	return msg
}

// shouldTrigger is the AI trigger predicate: content contains "@ai",
// starts with "/ai", or the channel has an explicit binding.
func shouldTrigger(msg Message, channelBound bool) bool {
	if msg.Author.ID == BotAuthorID {
		return false
	}
	if channelBound {
		return true
	}
	return strings.Contains(msg.Content, "@ai") || strings.HasPrefix(msg.Content, "/ai")
}

// agentForLocked resolves the responder for a message: exact channel
// binding first, then the global one. Callers hold h.mu.
func (h *Hub) agentForLocked(msg Message) (Responder, bool) {
	if agent, ok := h.agents[agentKey(msg.Platform, msg.ChannelID)]; ok {
		return agent, true
	}
	return h.agents[GlobalAgentKey], false
}

func agentKey(platform Platform, channelID string) string {
	return string(platform) + ":" + channelID
}

// respond runs one fire-and-forget AI exchange. Failures are logged and
// suppressed; the inbound message is already stored and published.
func (h *Hub) respond(agent Responder, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("hub", "Responder panic", map[string]any{"panic": fmt.Sprint(r)})
		}
	}()

	reply, err := agent.Respond(context.Background(), msg)
	if err != nil {
		logger.ErrorCF("hub", "Responder failed", map[string]any{
			"platform": string(msg.Platform),
			"channel":  msg.ChannelID,
			"error":    err.Error(),
		})
		return
	}
	if reply == "" {
		return
	}

	opts := adapters.SendOptions{ReplyTo: msg.NativeMessageID}
	if _, err := h.SendMessage(context.Background(), string(msg.Platform), msg.ChannelID, reply, opts); err != nil {
		logger.ErrorCF("hub", "Reply send failed", map[string]any{
			"platform": string(msg.Platform),
			"channel":  msg.ChannelID,
			"error":    err.Error(),
		})
	}
}

// SendMessage routes an outbound send through the platform's adapter,
// then stores a canonical record of the bot's own message and emits
// message_sent. Adapter failures propagate to the caller unchanged; no
// retry happens at this layer.
func (h *Hub) SendMessage(ctx context.Context, platform, channelID, content string, opts adapters.SendOptions) (*Message, error) {
	integ, ok := h.Integration(platform)
	if !ok {
		return nil, fmt.Errorf("%w for platform %q", ErrNoIntegration, platform)
	}

	res, err := integ.SendMessage(ctx, channelID, content, opts)
	if err != nil {
		return nil, err
	}

	ts := res.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	resolvedChannel := res.ChannelID
	if resolvedChannel == "" {
		resolvedChannel = channelID
	}

	msg := Message{
		ID:              uuid.New().String(),
		Platform:        Platform(platform),
		ChannelID:       resolvedChannel,
		Author:          Author{ID: BotAuthorID, Username: "omnichat"},
		Content:         content,
		Type:            TypeText,
		Timestamp:       ts,
		NativeMessageID: res.NativeMessageID,
		Reactions:       []Reaction{},
		Attachments:     []Attachment{},
	}

	h.mu.Lock()
	h.append(msg)
	h.mu.Unlock()

	h.subs.publish(Event{Type: EventMessageSent, Message: &msg})
	return &msg, nil
}

// Destination addresses one (platform, channel) pair for a broadcast.
type Destination struct {
	Platform  string `json:"platform"`
	ChannelID string `json:"channel_id"`
}

// BroadcastOptions controls cross-channel delivery. An explicit
// Channels list overrides the default of every channel previously
// observed per platform.
type BroadcastOptions struct {
	Channels []Destination
	Send     adapters.SendOptions
}

// BroadcastEntry records one attempted delivery. Exactly one of Result
// and Err is set.
type BroadcastEntry struct {
	Platform  string               `json:"platform"`
	ChannelID string               `json:"channel_id,omitempty"`
	Result    *adapters.SendResult `json:"result,omitempty"`
	Err       error                `json:"-"`
	Error     string               `json:"error,omitempty"`
}

// Broadcast sends content to every resolved destination. Failures are
// contained per destination: one platform's error never aborts delivery
// to the rest. The result holds one ordered entry per attempt.
func (h *Hub) Broadcast(ctx context.Context, content string, opts BroadcastOptions) []BroadcastEntry {
	destinations := opts.Channels
	if len(destinations) == 0 {
		destinations = h.observedDestinations()
	}

	entries := make([]BroadcastEntry, 0, len(destinations))
	for _, dest := range destinations {
		msg, err := h.SendMessage(ctx, dest.Platform, dest.ChannelID, content, opts.Send)
		if err != nil {
			entries = append(entries, BroadcastEntry{
				Platform:  dest.Platform,
				ChannelID: dest.ChannelID,
				Err:       err,
				Error:     err.Error(),
			})
			logger.WarnCF("hub", "Broadcast delivery failed", map[string]any{
				"platform": dest.Platform,
				"channel":  dest.ChannelID,
				"error":    err.Error(),
			})
			continue
		}
		entries = append(entries, BroadcastEntry{
			Platform:  dest.Platform,
			ChannelID: dest.ChannelID,
			Result: &adapters.SendResult{
				NativeMessageID: msg.NativeMessageID,
				ChannelID:       msg.ChannelID,
				Timestamp:       msg.Timestamp,
			},
		})
	}
	return entries
}

// observedDestinations resolves the default broadcast target set: every
// channel seen so far for each registered platform, platforms in sorted
// order for a deterministic result list.
func (h *Hub) observedDestinations() []Destination {
	h.mu.Lock()
	seen := make(map[string]map[string]struct{})
	for _, msg := range h.messages {
		p := string(msg.Platform)
		if _, ok := h.integrations[p]; !ok {
			continue
		}
		if seen[p] == nil {
			seen[p] = make(map[string]struct{})
		}
		seen[p][msg.ChannelID] = struct{}{}
	}
	h.mu.Unlock()

	platforms := make([]string, 0, len(seen))
	for p := range seen {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)

	var dests []Destination
	for _, p := range platforms {
		channels := make([]string, 0, len(seen[p]))
		for id := range seen[p] {
			channels = append(channels, id)
		}
		sort.Strings(channels)
		for _, id := range channels {
			dests = append(dests, Destination{Platform: p, ChannelID: id})
		}
	}
	return dests
}

// Messages returns stored messages matching the filter, sorted
// ascending by timestamp. Limit keeps the last N by insertion order
// before sorting.
func (h *Hub) Messages(f Filter) []Message {
	h.mu.Lock()
	matched := make([]Message, 0, len(h.messages))
	for _, msg := range h.messages {
		if f.Platform != "" && msg.Platform != f.Platform {
			continue
		}
		if f.ChannelID != "" && msg.ChannelID != f.ChannelID {
			continue
		}
		if f.Author != "" && msg.Author.ID != f.Author && msg.Author.DisplayName != f.Author {
			continue
		}
		if !f.Since.IsZero() && !msg.Timestamp.After(f.Since) {
			continue
		}
		matched = append(matched, msg)
	}
	h.mu.Unlock()

	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[len(matched)-f.Limit:]
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})
	return matched
}

// Channels derives the live channel aggregate by scanning stored
// messages once per call.
func (h *Hub) Channels() []Channel {
	h.mu.Lock()
	byKey := make(map[string]*Channel)
	order := make([]string, 0)
	for _, msg := range h.messages {
		key := agentKey(msg.Platform, msg.ChannelID)
		ch, ok := byKey[key]
		if !ok {
			ch = &Channel{Platform: msg.Platform, ID: msg.ChannelID}
			byKey[key] = ch
			order = append(order, key)
		}
		ch.MessageCount++
		if msg.Timestamp.After(ch.LastMessageAt) {
			ch.LastMessageAt = msg.Timestamp
		}
		if msg.ChannelName != "" {
			ch.Name = msg.ChannelName
		}
	}
	h.mu.Unlock()

	sort.Strings(order)
	channels := make([]Channel, 0, len(order))
	for _, key := range order {
		channels = append(channels, *byKey[key])
	}
	return channels
}

// RegisterAgent binds a responder to "global" or a "platform:channelID"
// key. A channel binding takes precedence over the global one.
func (h *Hub) RegisterAgent(key string, agent Responder) {
	h.mu.Lock()
	h.agents[key] = agent
	h.mu.Unlock()
	logger.InfoCF("hub", "AI agent registered", map[string]any{"key": key})
}

// Stats assembles the aggregate command-surface view.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	byPlatform := make(map[Platform]int)
	channels := make(map[string]struct{})
	for _, msg := range h.messages {
		byPlatform[msg.Platform]++
		channels[agentKey(msg.Platform, msg.ChannelID)] = struct{}{}
	}

	return Stats{
		TotalMessages:      len(h.messages),
		PlatformCount:      len(h.integrations),
		ChannelCount:       len(channels),
		AgentCount:         len(h.agents),
		MessagesByPlatform: byPlatform,
	}
}

// Close detaches every integration pump, disconnects the adapters, and
// closes all subscriber channels.
func (h *Hub) Close(ctx context.Context) {
	h.mu.Lock()
	regs := make(map[string]*registration, len(h.integrations))
	for name, reg := range h.integrations {
		regs[name] = reg
	}
	h.integrations = make(map[string]*registration)
	h.mu.Unlock()

	for name, reg := range regs {
		close(reg.stop)
		if err := reg.integ.Disconnect(ctx); err != nil {
			logger.WarnCF("hub", "Disconnect failed", map[string]any{
				"platform": name,
				"error":    err.Error(),
			})
		}
	}
	h.subs.closeAll()
}

// append assumes h.mu is held. IDs are uuids, so a collision would be a
// bug worth knowing about.
func (h *Hub) append(msg Message) {
	if _, dup := h.ids[msg.ID]; dup {
		logger.ErrorCF("hub", "Duplicate message ID, dropping", map[string]any{"id": msg.ID})
		return
	}
	h.ids[msg.ID] = struct{}{}
	h.messages = append(h.messages, msg)
}
