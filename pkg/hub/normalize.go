package hub

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	mediaPlaceholder   = "[Media]"
	unknownPlaceholder = "[Unknown]"
)

// Normalize converts an adapter-native payload into a canonical Message.
// Payloads keep the platform's own field names; canonicalization happens
// here, not in the adapters. The message ID and observation timestamp
// are assigned at this point.
func Normalize(platform Platform, payload map[string]any) Message {
	msg := Message{
		ID:          uuid.New().String(),
		Platform:    platform,
		Timestamp:   time.Now().UTC(),
		Reactions:   []Reaction{},
		Attachments: []Attachment{},
	}

	switch platform {
	case PlatformTelegram:
		normalizeTelegram(&msg, payload)
	case PlatformSlack:
		normalizeSlack(&msg, payload)
	case PlatformDiscord:
		normalizeDiscord(&msg, payload)
	default:
		normalizeGeneric(&msg, payload)
	}

	if msg.Author.ID == "" {
		msg.Author.ID = "unknown"
	}
	if msg.ChannelID == "" {
		msg.ChannelID = "unknown"
	}
	if msg.NativeMessageID == "" {
		msg.NativeMessageID = uuid.New().String()
	}
	return msg
}

func normalizeTelegram(msg *Message, payload map[string]any) {
	msg.Content = firstString(payload, "text", "caption")
	msg.Type = telegramMessageType(payload)
	if msg.Content == "" && msg.Type != TypeText {
		msg.Content = mediaPlaceholder
	}

	if from, ok := payload["from"].(map[string]any); ok {
		msg.Author.ID = asString(from["id"])
		msg.Author.Username = asString(from["username"])
		name := strings.TrimSpace(asString(from["first_name"]) + " " + asString(from["last_name"]))
		msg.Author.DisplayName = name
	}
	if chat, ok := payload["chat"].(map[string]any); ok {
		msg.ChannelID = asString(chat["id"])
		msg.ChannelName = asString(chat["title"])
	}
	msg.NativeMessageID = asString(payload["message_id"])
	if _, ok := payload["edit_date"]; ok {
		msg.IsEdit = true
	}
}

func telegramMessageType(payload map[string]any) MessageType {
	for key, t := range map[string]MessageType{
		"photo":    TypePhoto,
		"video":    TypeVideo,
		"audio":    TypeAudio,
		"voice":    TypeVoice,
		"document": TypeDocument,
		"sticker":  TypeSticker,
	} {
		if v, ok := payload[key]; ok && v != nil {
			return t
		}
	}
	return TypeText
}

func normalizeSlack(msg *Message, payload map[string]any) {
	subtype := asString(payload["subtype"])
	msg.Type = slackMessageType(subtype)

	msg.Content = asString(payload["text"])
	if msg.Content == "" && msg.Type != TypeText {
		msg.Content = mediaPlaceholder
	}

	msg.Author.ID = asString(payload["user"])
	msg.Author.Username = asString(payload["username"])
	msg.ChannelID = asString(payload["channel"])
	msg.ChannelName = asString(payload["channel_name"])
	msg.NativeMessageID = asString(payload["ts"])
	msg.IsEdit = subtype == "message_changed"
}

func slackMessageType(subtype string) MessageType {
	switch subtype {
	case "", "message_changed", "thread_broadcast", "bot_message":
		return TypeText
	case "file_share":
		return TypeDocument
	default:
		return TypeOther
	}
}

func normalizeDiscord(msg *Message, payload map[string]any) {
	msg.Content = asString(payload["content"])

	if author, ok := payload["author"].(map[string]any); ok {
		msg.Author.ID = asString(author["id"])
		msg.Author.Username = asString(author["username"])
		msg.Author.DisplayName = asString(author["global_name"])
	}
	if channel, ok := payload["channel"].(map[string]any); ok {
		msg.ChannelID = asString(channel["id"])
		msg.ChannelName = asString(channel["name"])
	}
	msg.NativeMessageID = asString(payload["id"])
	msg.Type = discordMessageType(payload)
	if msg.Content == "" && msg.Type != TypeText {
		msg.Content = mediaPlaceholder
	}
	if edited, ok := payload["edited"].(bool); ok {
		msg.IsEdit = edited
	}
}

func discordMessageType(payload map[string]any) MessageType {
	attachments, ok := payload["attachments"].([]any)
	if !ok || len(attachments) == 0 {
		return TypeText
	}
	first, ok := attachments[0].(map[string]any)
	if !ok {
		return TypeDocument
	}
	ct := asString(first["content_type"])
	switch {
	case strings.HasPrefix(ct, "image/"):
		return TypePhoto
	case strings.HasPrefix(ct, "video/"):
		return TypeVideo
	case strings.HasPrefix(ct, "audio/"):
		return TypeAudio
	default:
		return TypeDocument
	}
}

func normalizeGeneric(msg *Message, payload map[string]any) {
	msg.Content = firstString(payload, "content", "text")
	if msg.Content == "" {
		msg.Content = unknownPlaceholder
	}
	msg.Type = TypeOther
	msg.Author.ID = asString(payload["sender_id"])
	msg.ChannelID = asString(payload["channel_id"])
	msg.NativeMessageID = asString(payload["message_id"])
}

// asString renders the loosely typed payload values adapters produce.
// Platform IDs arrive as int64 (telego), float64 (JSON round-trips), or
// strings; all collapse to their decimal form.
func asString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		return fmt.Sprintf("%.0f", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func firstString(payload map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := asString(payload[k]); s != "" {
			return s
		}
	}
	return ""
}
