// Package telegram binds the Telegram Bot API via telego.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"

	"github.com/tinyland-inc/omnichat/pkg/adapters"
	"github.com/tinyland-inc/omnichat/pkg/config"
	"github.com/tinyland-inc/omnichat/pkg/logger"
)

const platformName = "telegram"

// historyLimit bounds the per-channel cache of observed payloads.
// Telegram bots cannot fetch chat history, so Messages serves from this
// local cache only.
const historyLimit = 100

func init() {
	adapters.Register(platformName, func(cfg *config.Config) (adapters.Integration, error) {
		if !ValidateConfig(cfg.Channels.Telegram) {
			return nil, fmt.Errorf("telegram: invalid config (enabled with bot token required)")
		}
		return New(cfg.Channels.Telegram), nil
	})
}

// ValidateConfig reports config validity without panicking: a single
// bot token is required.
func ValidateConfig(cfg config.TelegramConfig) bool {
	return cfg.Enabled && cfg.Token != ""
}

type Adapter struct {
	*adapters.BaseAdapter

	cfg config.TelegramConfig

	mu       sync.Mutex
	bot      *telego.Bot
	cancel   context.CancelFunc
	channels map[string]adapters.ChannelInfo
	history  map[string][]map[string]any
}

func New(cfg config.TelegramConfig) *Adapter {
	return &Adapter{
		BaseAdapter: adapters.NewBaseAdapter(platformName, cfg.AllowFrom),
		cfg:         cfg,
		channels:    make(map[string]adapters.ChannelInfo),
		history:     make(map[string][]map[string]any),
	}
}

// Connect establishes the bot session and starts long polling. It does
// not retry on failure; the reconnect policy only applies to sessions
// that drop after a successful connect.
func (a *Adapter) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	if err := a.establish(runCtx); err != nil {
		cancel()
		return &adapters.PlatformError{Platform: platformName, Op: "connect", Err: err}
	}

	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	a.SetRunning(true)
	a.EmitStatus(adapters.StatusConnected)
	return nil
}

func (a *Adapter) establish(ctx context.Context) error {
	bot, err := telego.NewBot(a.cfg.Token, telego.WithDiscardLogger())
	if err != nil {
		return fmt.Errorf("creating bot: %w", err)
	}

	me, err := bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("auth check: %w", err)
	}
	logger.InfoCF(platformName, "Bot authenticated", map[string]any{"username": me.Username})

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting long polling: %w", err)
	}

	a.mu.Lock()
	a.bot = bot
	a.mu.Unlock()

	go a.poll(ctx, updates)
	return nil
}

func (a *Adapter) poll(ctx context.Context, updates <-chan telego.Update) {
	for update := range updates {
		switch {
		case update.Message != nil:
			a.handleMessage(update.Message, false)
		case update.EditedMessage != nil:
			a.handleMessage(update.EditedMessage, true)
		}
	}

	if ctx.Err() != nil {
		return
	}

	// Updates channel closed while the session should still be live:
	// unexpected disconnect, apply the shared reconnect policy.
	a.SetRunning(false)
	a.EmitStatus(adapters.StatusDisconnected)
	if err := adapters.DefaultReconnector().Run(ctx, a.BaseAdapter, a.establish); err != nil {
		return
	}
	a.SetRunning(true)
}

func (a *Adapter) handleMessage(m *telego.Message, edited bool) {
	chatID := strconv.FormatInt(m.Chat.ID, 10)
	payload := translateMessage(m, edited)

	a.mu.Lock()
	a.channels[chatID] = adapters.ChannelInfo{
		ID:   chatID,
		Name: chatName(m.Chat),
		Kind: m.Chat.Type,
	}
	recent := append(a.history[chatID], payload)
	if len(recent) > historyLimit {
		recent = recent[len(recent)-historyLimit:]
	}
	a.history[chatID] = recent
	a.mu.Unlock()

	a.EmitMessage(senderID(m), payload)
}

// translateMessage preserves Telegram's own field names; the hub
// canonicalizes later.
func translateMessage(m *telego.Message, edited bool) map[string]any {
	payload := map[string]any{
		"message_id": m.MessageID,
		"date":       m.Date,
	}
	if m.Text != "" {
		payload["text"] = m.Text
	}
	if m.Caption != "" {
		payload["caption"] = m.Caption
	}
	if m.From != nil {
		payload["from"] = map[string]any{
			"id":         m.From.ID,
			"username":   m.From.Username,
			"first_name": m.From.FirstName,
			"last_name":  m.From.LastName,
		}
	}
	payload["chat"] = map[string]any{
		"id":    m.Chat.ID,
		"title": chatName(m.Chat),
		"type":  m.Chat.Type,
	}
	if len(m.Photo) > 0 {
		payload["photo"] = map[string]any{"file_id": m.Photo[len(m.Photo)-1].FileID}
	}
	if m.Video != nil {
		payload["video"] = map[string]any{"file_id": m.Video.FileID}
	}
	if m.Audio != nil {
		payload["audio"] = map[string]any{"file_id": m.Audio.FileID}
	}
	if m.Voice != nil {
		payload["voice"] = map[string]any{"file_id": m.Voice.FileID}
	}
	if m.Document != nil {
		payload["document"] = map[string]any{"file_id": m.Document.FileID, "file_name": m.Document.FileName}
	}
	if m.Sticker != nil {
		payload["sticker"] = map[string]any{"file_id": m.Sticker.FileID, "emoji": m.Sticker.Emoji}
	}
	if edited {
		payload["edit_date"] = m.EditDate
	}
	return payload
}

func chatName(chat telego.Chat) string {
	if chat.Title != "" {
		return chat.Title
	}
	name := strings.TrimSpace(chat.FirstName + " " + chat.LastName)
	if name != "" {
		return name
	}
	return chat.Username
}

func senderID(m *telego.Message) string {
	if m.From == nil {
		return ""
	}
	id := strconv.FormatInt(m.From.ID, 10)
	if m.From.Username != "" {
		return id + "|" + m.From.Username
	}
	return id
}

func (a *Adapter) Disconnect(_ context.Context) error {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.bot = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if a.IsRunning() {
		a.SetRunning(false)
		a.EmitStatus(adapters.StatusDisconnected)
	}
	return nil
}

func (a *Adapter) SendMessage(ctx context.Context, channelID, content string, opts adapters.SendOptions) (*adapters.SendResult, error) {
	a.mu.Lock()
	bot := a.bot
	a.mu.Unlock()
	if bot == nil {
		return nil, &adapters.PlatformError{Platform: platformName, Op: "send", Err: adapters.ErrNotConnected}
	}

	chatID, err := resolveChatID(channelID)
	if err != nil {
		return nil, &adapters.PlatformError{Platform: platformName, Op: "send", Err: err}
	}

	params := &telego.SendMessageParams{
		ChatID: chatID,
		Text:   content,
	}
	if opts.ParseMode != "" {
		params.ParseMode = opts.ParseMode
	}
	if opts.ReplyTo != "" {
		if replyID, err := strconv.Atoi(opts.ReplyTo); err == nil {
			params.ReplyParameters = &telego.ReplyParameters{MessageID: replyID}
		}
	}

	sent, err := bot.SendMessage(ctx, params)
	if err != nil {
		return nil, &adapters.PlatformError{Platform: platformName, Op: "send", Err: err}
	}

	a.Touch()
	resolved := strconv.FormatInt(sent.Chat.ID, 10)
	return &adapters.SendResult{
		NativeMessageID: strconv.Itoa(sent.MessageID),
		ChannelID:       resolved,
		Timestamp:       unixTime(sent.Date),
	}, nil
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Now().UTC()
	}
	return time.Unix(sec, 0).UTC()
}

// resolveChatID accepts numeric chat IDs or @username channel names.
func resolveChatID(channelID string) (telego.ChatID, error) {
	if strings.HasPrefix(channelID, "@") {
		return telego.ChatID{Username: channelID}, nil
	}
	id, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return telego.ChatID{}, fmt.Errorf("chat ID must be numeric or @username: %q", channelID)
	}
	return telego.ChatID{ID: id}, nil
}

// Channels returns the locally cached chats. The Bot API offers no chat
// listing, so the cache is populated from observed traffic.
func (a *Adapter) Channels(_ context.Context) ([]adapters.ChannelInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]adapters.ChannelInfo, 0, len(a.channels))
	for _, ch := range a.channels {
		out = append(out, ch)
	}
	return out, nil
}

// Messages serves from the local payload cache; the Bot API exposes no
// history for bots.
func (a *Adapter) Messages(_ context.Context, channelID string, opts adapters.HistoryOptions) ([]map[string]any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	recent := a.history[channelID]
	if opts.Limit > 0 && len(recent) > opts.Limit {
		recent = recent[len(recent)-opts.Limit:]
	}
	out := make([]map[string]any, len(recent))
	copy(out, recent)
	return out, nil
}

func (a *Adapter) HealthCheck(ctx context.Context) adapters.Health {
	a.mu.Lock()
	bot := a.bot
	a.mu.Unlock()
	if bot == nil {
		return a.Health("not connected")
	}
	if _, err := bot.GetMe(ctx); err != nil {
		return a.Health(err.Error())
	}
	return a.Health("")
}
