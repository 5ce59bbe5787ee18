// Package adapters defines the capability contract every platform
// binding must satisfy, plus the shared adapter plumbing (event
// emission, sender allowlists, reconnect policy).
package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotConnected is returned by operations that need a live platform
// session before Connect has succeeded.
var ErrNotConnected = errors.New("adapter not connected")

// Status describes a connectivity transition reported on the event stream.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusReconnecting Status = "reconnecting"
)

// EventType discriminates the adapter event stream.
type EventType string

const (
	// EventMessage carries a new or edited inbound message in
	// adapter-native shape; normalization is the hub's job.
	EventMessage EventType = "message"
	// EventStatus carries a connectivity transition.
	EventStatus EventType = "status"
	// EventError carries a non-fatal operational error.
	EventError EventType = "error"
)

// Event is a single entry on an adapter's event stream.
type Event struct {
	Type     EventType
	Platform string
	Payload  map[string]any // message events
	Status   Status         // status events
	Err      error          // error events
}

// SendOptions carries platform-specific delivery options.
type SendOptions struct {
	ReplyTo   string // native message ID to reply to
	ThreadID  string // thread/topic identifier where supported
	ParseMode string // markup flag, platform-interpreted
}

// SendResult reports a successful platform send.
type SendResult struct {
	NativeMessageID string    `json:"native_message_id"`
	ChannelID       string    `json:"channel_id"`
	Timestamp       time.Time `json:"timestamp"`
}

// ChannelInfo is one addressable channel known to an adapter. The
// adapter's channel cache is a convenience; the platform stays
// authoritative.
type ChannelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Kind string `json:"kind,omitempty"` // "group", "direct", "channel"
}

// HistoryOptions bounds best-effort history retrieval.
type HistoryOptions struct {
	Limit  int
	Cursor string // platform cursor/offset where supported
}

// Health is the non-throwing status probe result. Adapter-internal
// errors land in the Error field, never as a panic or return error.
type Health struct {
	Platform     string    `json:"platform"`
	Connected    bool      `json:"connected"`
	LastActivity time.Time `json:"last_activity"`
	Error        string    `json:"error,omitempty"`
}

// Integration is the capability set every platform binding exposes.
type Integration interface {
	// Platform returns the platform name this adapter binds ("telegram", ...).
	Platform() string
	// Connect establishes the platform session. A failure surfaces as an
	// error and leaves the adapter ready for a retry.
	Connect(ctx context.Context) error
	// Disconnect releases the session; safe to call even if never connected.
	Disconnect(ctx context.Context) error
	// SendMessage delivers content to a channel and reports the assigned
	// native message ID, resolved channel ID, and send timestamp.
	SendMessage(ctx context.Context, channelID, content string, opts SendOptions) (*SendResult, error)
	// Channels returns the currently known addressable channels; may be a
	// cached snapshot refreshed lazily.
	Channels(ctx context.Context) ([]ChannelInfo, error)
	// Messages retrieves historical messages best-effort, in
	// adapter-native payload shape.
	Messages(ctx context.Context, channelID string, opts HistoryOptions) ([]map[string]any, error)
	// HealthCheck never returns an error; failures are reported inside
	// the result.
	HealthCheck(ctx context.Context) Health
	// Events exposes the adapter's message/status/error stream.
	Events() <-chan Event
}

// PlatformError tags an operational failure with the platform and
// operation it came from, so consumers never see bare stack traces.
type PlatformError struct {
	Platform string
	Op       string
	Err      error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Platform, e.Op, e.Err)
}

func (e *PlatformError) Unwrap() error { return e.Err }
