// Package hub implements the message normalization and routing core.
//
// Platform adapters deliver native payloads; the hub canonicalizes them
// into one Message shape, keeps an append-only in-memory store, fans
// events out to subscribers, and routes outbound sends and broadcasts
// back through the registered adapters.
package hub

import "time"

// Platform identifies the source chat platform of a message.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformSlack    Platform = "slack"
	PlatformDiscord  Platform = "discord"
	PlatformOther    Platform = "other"
)

// MessageType classifies canonical message content.
type MessageType string

const (
	TypeText     MessageType = "text"
	TypePhoto    MessageType = "photo"
	TypeVideo    MessageType = "video"
	TypeAudio    MessageType = "audio"
	TypeVoice    MessageType = "voice"
	TypeDocument MessageType = "document"
	TypeSticker  MessageType = "sticker"
	TypeOther    MessageType = "other"
)

// Author is the platform-scoped identity of a message sender. IDs are
// only meaningful within their platform.
type Author struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
}

// Reaction is a post-creation enrichment attached by platform-specific
// code outside the core.
type Reaction struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

// Attachment is a post-creation enrichment describing non-text media.
type Attachment struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
	Name string `json:"name,omitempty"`
}

// Message is the canonical, platform-independent message representation.
// Once stored it is immutable except for the enrichment fields
// (Reactions, Attachments); an edit on the platform produces a new
// Message with IsEdit set, never an in-place rewrite.
type Message struct {
	ID              string       `json:"id"`
	Platform        Platform     `json:"platform"`
	ChannelID       string       `json:"channel_id"`
	ChannelName     string       `json:"channel_name,omitempty"`
	Author          Author       `json:"author"`
	Content         string       `json:"content"`
	Type            MessageType  `json:"type"`
	Timestamp       time.Time    `json:"timestamp"`
	NativeMessageID string       `json:"native_message_id"`
	IsEdit          bool         `json:"is_edit"`
	Reactions       []Reaction   `json:"reactions"`
	Attachments     []Attachment `json:"attachments"`
}

// Channel is a live aggregate derived by scanning stored messages.
// It is never persisted as its own entity.
type Channel struct {
	Platform      Platform  `json:"platform"`
	ID            string    `json:"id"`
	Name          string    `json:"name,omitempty"`
	LastMessageAt time.Time `json:"last_message_at"`
	MessageCount  int       `json:"message_count"`
}

// Filter narrows the result of the hub's Messages operation. Zero
// values mean "no constraint". Since is exclusive: a message whose
// timestamp equals Since is not returned.
type Filter struct {
	Platform  Platform
	ChannelID string
	Author    string // matched against author ID or display name
	Since     time.Time
	Limit     int // keep only the last N by insertion order
}

// Stats is the aggregate view exposed on the hub's command surface.
type Stats struct {
	TotalMessages      int              `json:"total_messages"`
	PlatformCount      int              `json:"platform_count"`
	ChannelCount       int              `json:"channel_count"`
	AgentCount         int              `json:"agent_count"`
	MessagesByPlatform map[Platform]int `json:"messages_by_platform"`
}
