package telegram

import (
	"testing"

	"github.com/mymmrac/telego"

	"github.com/tinyland-inc/omnichat/pkg/config"
)

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.TelegramConfig
		want bool
	}{
		{"valid", config.TelegramConfig{Enabled: true, Token: "123:abc"}, true},
		{"disabled", config.TelegramConfig{Enabled: false, Token: "123:abc"}, false},
		{"missing token", config.TelegramConfig{Enabled: true}, false},
	}
	for _, tc := range cases {
		if got := ValidateConfig(tc.cfg); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestTranslateMessage(t *testing.T) {
	m := &telego.Message{
		MessageID: 99,
		Date:      1700000000,
		Text:      "hi",
		From: &telego.User{
			ID:        1,
			Username:  "bob",
			FirstName: "Bob",
		},
		Chat: telego.Chat{ID: 42, Title: "Team", Type: "group"},
	}

	payload := translateMessage(m, false)

	if payload["text"] != "hi" {
		t.Errorf("text: got %v", payload["text"])
	}
	if payload["message_id"] != 99 {
		t.Errorf("message_id: got %v", payload["message_id"])
	}
	from, ok := payload["from"].(map[string]any)
	if !ok || from["id"] != int64(1) || from["username"] != "bob" {
		t.Errorf("from: got %v", payload["from"])
	}
	chat, ok := payload["chat"].(map[string]any)
	if !ok || chat["id"] != int64(42) || chat["title"] != "Team" {
		t.Errorf("chat: got %v", payload["chat"])
	}
	if _, present := payload["edit_date"]; present {
		t.Error("edit_date must be absent for a fresh message")
	}
}

func TestTranslateMessageEdit(t *testing.T) {
	m := &telego.Message{
		MessageID: 5,
		Text:      "fixed",
		Chat:      telego.Chat{ID: 42},
		EditDate:  1700000100,
	}
	payload := translateMessage(m, true)
	if payload["edit_date"] != int64(1700000100) {
		t.Errorf("edit_date: got %v", payload["edit_date"])
	}
}

func TestTranslateMessageMedia(t *testing.T) {
	m := &telego.Message{
		MessageID: 6,
		Caption:   "sunset",
		Chat:      telego.Chat{ID: 42},
		Photo:     []telego.PhotoSize{{FileID: "small"}, {FileID: "big"}},
	}
	payload := translateMessage(m, false)

	photo, ok := payload["photo"].(map[string]any)
	if !ok || photo["file_id"] != "big" {
		t.Errorf("photo should carry the largest size, got %v", payload["photo"])
	}
	if payload["caption"] != "sunset" {
		t.Errorf("caption: got %v", payload["caption"])
	}
	if _, present := payload["text"]; present {
		t.Error("text must be absent for a media message")
	}
}

func TestChatName(t *testing.T) {
	if got := chatName(telego.Chat{Title: "Team"}); got != "Team" {
		t.Errorf("title: got %q", got)
	}
	if got := chatName(telego.Chat{FirstName: "Ada", LastName: "L"}); got != "Ada L" {
		t.Errorf("private chat: got %q", got)
	}
	if got := chatName(telego.Chat{Username: "somebot"}); got != "somebot" {
		t.Errorf("username fallback: got %q", got)
	}
}

func TestResolveChatID(t *testing.T) {
	id, err := resolveChatID("42")
	if err != nil || id.ID != 42 {
		t.Errorf("numeric: got %+v, %v", id, err)
	}
	id, err = resolveChatID("@channel")
	if err != nil || id.Username != "@channel" {
		t.Errorf("username: got %+v, %v", id, err)
	}
	if _, err := resolveChatID("not-a-chat"); err == nil {
		t.Error("expected an error for a malformed chat ID")
	}
}

func TestSenderID(t *testing.T) {
	m := &telego.Message{From: &telego.User{ID: 7, Username: "alice"}}
	if got := senderID(m); got != "7|alice" {
		t.Errorf("compound: got %q", got)
	}
	m = &telego.Message{From: &telego.User{ID: 7}}
	if got := senderID(m); got != "7" {
		t.Errorf("bare ID: got %q", got)
	}
	if got := senderID(&telego.Message{}); got != "" {
		t.Errorf("missing sender: got %q", got)
	}
}
