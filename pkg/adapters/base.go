package adapters

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyland-inc/omnichat/pkg/logger"
)

const eventBuffer = 128

// BaseAdapter carries the state and event plumbing shared by all
// platform adapters. Concrete adapters embed it and keep the SDK
// session themselves.
type BaseAdapter struct {
	name      string
	allowFrom []string
	events    chan Event
	running   atomic.Bool

	mu           sync.Mutex
	lastActivity time.Time
}

func NewBaseAdapter(name string, allowFrom []string) *BaseAdapter {
	return &BaseAdapter{
		name:      name,
		allowFrom: allowFrom,
		events:    make(chan Event, eventBuffer),
	}
}

func (a *BaseAdapter) Platform() string { return a.name }

func (a *BaseAdapter) Events() <-chan Event { return a.events }

func (a *BaseAdapter) IsRunning() bool { return a.running.Load() }

func (a *BaseAdapter) SetRunning(running bool) { a.running.Store(running) }

// Touch records adapter activity for health reporting.
func (a *BaseAdapter) Touch() {
	a.mu.Lock()
	a.lastActivity = time.Now()
	a.mu.Unlock()
}

func (a *BaseAdapter) LastActivity() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastActivity
}

// EmitMessage publishes an inbound message payload in platform-native
// shape. Senders failing the allowlist are dropped before emission.
func (a *BaseAdapter) EmitMessage(senderID string, payload map[string]any) {
	if !a.IsAllowed(senderID) {
		return
	}
	a.Touch()
	a.emit(Event{Type: EventMessage, Platform: a.name, Payload: payload})
}

func (a *BaseAdapter) EmitStatus(status Status) {
	a.emit(Event{Type: EventStatus, Platform: a.name, Status: status})
}

func (a *BaseAdapter) EmitError(err error) {
	a.emit(Event{Type: EventError, Platform: a.name, Err: err})
}

// emit never blocks an SDK callback: a full buffer drops the event.
func (a *BaseAdapter) emit(ev Event) {
	select {
	case a.events <- ev:
	default:
		logger.WarnCF(a.name, "Event buffer full, dropping event", map[string]any{
			"event": string(ev.Type),
		})
	}
}

// IsAllowed checks senderID against the configured allowlist. An empty
// allowlist admits everyone. Entries and sender IDs may use the
// compound "id|username" form.
func (a *BaseAdapter) IsAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	idPart := senderID
	userPart := ""
	if idx := strings.Index(senderID, "|"); idx > 0 {
		idPart = senderID[:idx]
		userPart = senderID[idx+1:]
	}

	for _, allowed := range a.allowFrom {
		trimmed := strings.TrimPrefix(allowed, "@")
		allowedID := trimmed
		allowedUser := ""
		if idx := strings.Index(trimmed, "|"); idx > 0 {
			allowedID = trimmed[:idx]
			allowedUser = trimmed[idx+1:]
		}

		if senderID == allowed ||
			idPart == allowed ||
			senderID == trimmed ||
			idPart == trimmed ||
			idPart == allowedID ||
			(allowedUser != "" && senderID == allowedUser) ||
			(userPart != "" && (userPart == allowed || userPart == trimmed || userPart == allowedUser)) {
			return true
		}
	}

	return false
}

// Health assembles the shared portion of a health-check result.
func (a *BaseAdapter) Health(errMsg string) Health {
	return Health{
		Platform:     a.name,
		Connected:    a.IsRunning(),
		LastActivity: a.LastActivity(),
		Error:        errMsg,
	}
}

// Reconnector implements the shared reconnection contract: a bounded
// number of attempts with linearly increasing backoff
// (delay = BaseDelay × attempt). After exhaustion it reports a terminal
// error and stops; there is no automatic restart.
type Reconnector struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func DefaultReconnector() Reconnector {
	return Reconnector{MaxAttempts: 5, BaseDelay: time.Second}
}

// Run calls connect until it succeeds or attempts are exhausted. The
// adapter's status stream sees "reconnecting" before each attempt and
// the per-attempt failures as error events.
func (r Reconnector) Run(ctx context.Context, base *BaseAdapter, connect func(context.Context) error) error {
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = 5
	}
	delay := r.BaseDelay
	if delay <= 0 {
		delay = time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		base.EmitStatus(StatusReconnecting)

		if err := connect(ctx); err != nil {
			lastErr = err
			base.EmitError(&PlatformError{Platform: base.Platform(), Op: "reconnect", Err: err})
			logger.WarnCF(base.Platform(), "Reconnect attempt failed", map[string]any{
				"attempt": attempt,
				"error":   err.Error(),
			})
		} else {
			base.EmitStatus(StatusConnected)
			return nil
		}

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * delay):
		}
	}

	terminal := &PlatformError{
		Platform: base.Platform(),
		Op:       "reconnect",
		Err:      fmt.Errorf("giving up after %d attempts: %w", attempts, lastErr),
	}
	base.EmitError(terminal)
	base.EmitStatus(StatusDisconnected)
	return terminal
}
