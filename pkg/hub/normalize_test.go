package hub

import (
	"testing"
)

func TestNormalizeTelegramText(t *testing.T) {
	payload := map[string]any{
		"text":       "hi",
		"from":       map[string]any{"id": 1, "username": "bob"},
		"chat":       map[string]any{"id": 42, "title": "Team"},
		"message_id": 99,
	}

	msg := Normalize(PlatformTelegram, payload)

	if msg.Content != "hi" {
		t.Errorf("content: got %q", msg.Content)
	}
	if msg.Author.ID != "1" {
		t.Errorf("author ID: got %q", msg.Author.ID)
	}
	if msg.Author.Username != "bob" {
		t.Errorf("author username: got %q", msg.Author.Username)
	}
	if msg.ChannelID != "42" {
		t.Errorf("channel ID: got %q", msg.ChannelID)
	}
	if msg.ChannelName != "Team" {
		t.Errorf("channel name: got %q", msg.ChannelName)
	}
	if msg.NativeMessageID != "99" {
		t.Errorf("native message ID: got %q", msg.NativeMessageID)
	}
	if msg.Type != TypeText {
		t.Errorf("type: got %q", msg.Type)
	}
	if msg.ID == "" {
		t.Error("expected a generated ID")
	}
	if msg.Timestamp.IsZero() {
		t.Error("expected a timestamp")
	}
}

func TestNormalizeTelegramMedia(t *testing.T) {
	cases := []struct {
		key  string
		want MessageType
	}{
		{"photo", TypePhoto},
		{"video", TypeVideo},
		{"audio", TypeAudio},
		{"voice", TypeVoice},
		{"document", TypeDocument},
		{"sticker", TypeSticker},
	}
	for _, tc := range cases {
		payload := map[string]any{
			"from":       map[string]any{"id": 1},
			"chat":       map[string]any{"id": 42},
			"message_id": 5,
			tc.key:       map[string]any{"file_id": "abc"},
		}
		msg := Normalize(PlatformTelegram, payload)
		if msg.Type != tc.want {
			t.Errorf("%s: got type %q, want %q", tc.key, msg.Type, tc.want)
		}
		if msg.Content != "[Media]" {
			t.Errorf("%s: media without caption should use the placeholder, got %q", tc.key, msg.Content)
		}
	}
}

func TestNormalizeTelegramCaptionAndEdit(t *testing.T) {
	payload := map[string]any{
		"caption":    "look at this",
		"photo":      map[string]any{"file_id": "abc"},
		"from":       map[string]any{"id": 1},
		"chat":       map[string]any{"id": 42},
		"message_id": 7,
		"edit_date":  1700000100,
	}
	msg := Normalize(PlatformTelegram, payload)
	if msg.Content != "look at this" {
		t.Errorf("caption should become content, got %q", msg.Content)
	}
	if !msg.IsEdit {
		t.Error("edit_date should mark the message as an edit")
	}
}

func TestNormalizeSlack(t *testing.T) {
	msg := Normalize(PlatformSlack, map[string]any{
		"text":         "deploy done",
		"user":         "U123",
		"channel":      "C456",
		"channel_name": "ops",
		"ts":           "1700000000.000100",
	})

	if msg.Content != "deploy done" {
		t.Errorf("content: got %q", msg.Content)
	}
	if msg.Author.ID != "U123" {
		t.Errorf("author: got %q", msg.Author.ID)
	}
	if msg.ChannelID != "C456" {
		t.Errorf("channel: got %q", msg.ChannelID)
	}
	if msg.ChannelName != "ops" {
		t.Errorf("channel name: got %q", msg.ChannelName)
	}
	if msg.NativeMessageID != "1700000000.000100" {
		t.Errorf("native ID should be the ts, got %q", msg.NativeMessageID)
	}
	if msg.Type != TypeText {
		t.Errorf("type: got %q", msg.Type)
	}
}

func TestNormalizeSlackSubtypes(t *testing.T) {
	cases := []struct {
		subtype string
		want    MessageType
		isEdit  bool
	}{
		{"", TypeText, false},
		{"bot_message", TypeText, false},
		{"thread_broadcast", TypeText, false},
		{"message_changed", TypeText, true},
		{"file_share", TypeDocument, false},
		{"channel_join", TypeOther, false},
	}
	for _, tc := range cases {
		msg := Normalize(PlatformSlack, map[string]any{
			"text":    "x",
			"user":    "U1",
			"channel": "C1",
			"ts":      "1700000000.0001",
			"subtype": tc.subtype,
		})
		if msg.Type != tc.want {
			t.Errorf("subtype %q: got type %q, want %q", tc.subtype, msg.Type, tc.want)
		}
		if msg.IsEdit != tc.isEdit {
			t.Errorf("subtype %q: IsEdit = %v, want %v", tc.subtype, msg.IsEdit, tc.isEdit)
		}
	}
}

func TestNormalizeDiscord(t *testing.T) {
	msg := Normalize(PlatformDiscord, map[string]any{
		"id":      "111222333",
		"content": "gg",
		"author":  map[string]any{"id": "999", "username": "casey", "global_name": "Casey"},
		"channel": map[string]any{"id": "555", "name": "general"},
	})

	if msg.Content != "gg" {
		t.Errorf("content: got %q", msg.Content)
	}
	if msg.Author.ID != "999" || msg.Author.Username != "casey" || msg.Author.DisplayName != "Casey" {
		t.Errorf("author: %+v", msg.Author)
	}
	if msg.ChannelID != "555" || msg.ChannelName != "general" {
		t.Errorf("channel: %q %q", msg.ChannelID, msg.ChannelName)
	}
	if msg.NativeMessageID != "111222333" {
		t.Errorf("native ID: got %q", msg.NativeMessageID)
	}
	if msg.Type != TypeText {
		t.Errorf("type: got %q", msg.Type)
	}
}

func TestNormalizeDiscordAttachments(t *testing.T) {
	cases := []struct {
		contentType string
		want        MessageType
	}{
		{"image/png", TypePhoto},
		{"video/mp4", TypeVideo},
		{"audio/ogg", TypeAudio},
		{"application/pdf", TypeDocument},
	}
	for _, tc := range cases {
		msg := Normalize(PlatformDiscord, map[string]any{
			"id":      "1",
			"content": "",
			"author":  map[string]any{"id": "999"},
			"channel": map[string]any{"id": "555"},
			"attachments": []any{
				map[string]any{"content_type": tc.contentType, "url": "https://cdn.example/x"},
			},
		})
		if msg.Type != tc.want {
			t.Errorf("%s: got type %q, want %q", tc.contentType, msg.Type, tc.want)
		}
	}
}

func TestNormalizeDiscordEdit(t *testing.T) {
	msg := Normalize(PlatformDiscord, map[string]any{
		"id":      "1",
		"content": "fixed typo",
		"author":  map[string]any{"id": "999"},
		"channel": map[string]any{"id": "555"},
		"edited":  true,
	})
	if !msg.IsEdit {
		t.Error("edited payload should set IsEdit")
	}
}

func TestNormalizeUnknownPlatform(t *testing.T) {
	msg := Normalize(Platform("matrix"), map[string]any{"content": "hello"})
	if msg.Content != "hello" {
		t.Errorf("content: got %q", msg.Content)
	}
	if msg.Type != TypeOther {
		t.Errorf("type: got %q", msg.Type)
	}
	if msg.Author.ID != "unknown" {
		t.Errorf("missing author should default, got %q", msg.Author.ID)
	}
	if msg.NativeMessageID == "" {
		t.Error("missing native ID should be generated")
	}
}

func TestNormalizeEmptyPayload(t *testing.T) {
	msg := Normalize(PlatformTelegram, map[string]any{})
	if msg.ID == "" {
		t.Error("expected a generated ID")
	}
	if msg.Author.ID != "unknown" || msg.ChannelID != "unknown" {
		t.Errorf("defaults missing: author %q channel %q", msg.Author.ID, msg.ChannelID)
	}
}
