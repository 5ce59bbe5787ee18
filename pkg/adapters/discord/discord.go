// Package discord binds the Discord gateway via discordgo.
package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/tinyland-inc/omnichat/pkg/adapters"
	"github.com/tinyland-inc/omnichat/pkg/config"
	"github.com/tinyland-inc/omnichat/pkg/logger"
)

const platformName = "discord"

func init() {
	adapters.Register(platformName, func(cfg *config.Config) (adapters.Integration, error) {
		if !ValidateConfig(cfg.Channels.Discord) {
			return nil, fmt.Errorf("discord: invalid config (enabled with bot token required)")
		}
		return New(cfg.Channels.Discord), nil
	})
}

func ValidateConfig(cfg config.DiscordConfig) bool {
	return cfg.Enabled && cfg.Token != ""
}

type Adapter struct {
	*adapters.BaseAdapter

	cfg config.DiscordConfig

	mu       sync.Mutex
	session  *discordgo.Session
	botID    string
	channels map[string]adapters.ChannelInfo
	lastErr  string
}

func New(cfg config.DiscordConfig) *Adapter {
	return &Adapter{
		BaseAdapter: adapters.NewBaseAdapter(platformName, cfg.AllowFrom),
		cfg:         cfg,
		channels:    make(map[string]adapters.ChannelInfo),
	}
}

func (a *Adapter) Connect(_ context.Context) error {
	session, err := discordgo.New("Bot " + a.cfg.Token)
	if err != nil {
		return &adapters.PlatformError{Platform: platformName, Op: "connect", Err: err}
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	session.AddHandler(a.onReady)
	session.AddHandler(a.onMessageCreate)
	session.AddHandler(a.onMessageUpdate)
	session.AddHandler(a.onConnect)
	session.AddHandler(a.onDisconnect)

	if err := session.Open(); err != nil {
		return &adapters.PlatformError{Platform: platformName, Op: "connect", Err: err}
	}

	a.mu.Lock()
	a.session = session
	a.mu.Unlock()

	a.SetRunning(true)
	a.EmitStatus(adapters.StatusConnected)
	return nil
}

func (a *Adapter) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	a.mu.Lock()
	a.botID = r.User.ID
	a.mu.Unlock()
	logger.InfoCF(platformName, "Bot authenticated", map[string]any{"username": r.User.Username})
}

// onDisconnect fires on gateway drops; discordgo resumes the session on
// its own, so report reconnecting rather than applying our own policy.
func (a *Adapter) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	if a.IsRunning() {
		a.EmitStatus(adapters.StatusReconnecting)
	}
}

func (a *Adapter) onConnect(_ *discordgo.Session, _ *discordgo.Connect) {
	if a.IsRunning() {
		a.EmitStatus(adapters.StatusConnected)
	}
}

func (a *Adapter) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	a.emitMessage(m.Message, false)
}

func (a *Adapter) onMessageUpdate(_ *discordgo.Session, m *discordgo.MessageUpdate) {
	if m.Author == nil {
		return
	}
	a.emitMessage(m.Message, true)
}

func (a *Adapter) emitMessage(m *discordgo.Message, edited bool) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	a.mu.Lock()
	own := m.Author.ID == a.botID
	name := a.channels[m.ChannelID].Name
	a.mu.Unlock()
	if own {
		return
	}

	a.EmitMessage(m.Author.ID+"|"+m.Author.Username, translateMessage(m, name, edited))
}

// translateMessage keeps Discord's own field names; the hub
// canonicalizes later.
func translateMessage(m *discordgo.Message, channelName string, edited bool) map[string]any {
	payload := map[string]any{
		"id":      m.ID,
		"content": m.Content,
		"author": map[string]any{
			"id":          m.Author.ID,
			"username":    m.Author.Username,
			"global_name": m.Author.GlobalName,
		},
		"channel": map[string]any{
			"id":   m.ChannelID,
			"name": channelName,
		},
	}
	if len(m.Attachments) > 0 {
		attachments := make([]any, 0, len(m.Attachments))
		for _, att := range m.Attachments {
			attachments = append(attachments, map[string]any{
				"content_type": att.ContentType,
				"url":          att.URL,
				"filename":     att.Filename,
			})
		}
		payload["attachments"] = attachments
	}
	if edited {
		payload["edited"] = true
	}
	return payload
}

func (a *Adapter) Disconnect(_ context.Context) error {
	a.mu.Lock()
	session := a.session
	a.session = nil
	a.mu.Unlock()

	if a.IsRunning() {
		a.SetRunning(false)
		a.EmitStatus(adapters.StatusDisconnected)
	}
	if session != nil {
		return session.Close()
	}
	return nil
}

func (a *Adapter) SendMessage(_ context.Context, channelID, content string, opts adapters.SendOptions) (*adapters.SendResult, error) {
	a.mu.Lock()
	session := a.session
	a.mu.Unlock()
	if session == nil {
		return nil, &adapters.PlatformError{Platform: platformName, Op: "send", Err: adapters.ErrNotConnected}
	}

	var sent *discordgo.Message
	var err error
	if opts.ReplyTo != "" {
		ref := &discordgo.MessageReference{MessageID: opts.ReplyTo, ChannelID: channelID}
		sent, err = session.ChannelMessageSendReply(channelID, content, ref)
	} else {
		sent, err = session.ChannelMessageSend(channelID, content)
	}
	if err != nil {
		return nil, &adapters.PlatformError{Platform: platformName, Op: "send", Err: err}
	}

	a.Touch()
	ts := sent.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &adapters.SendResult{
		NativeMessageID: sent.ID,
		ChannelID:       sent.ChannelID,
		Timestamp:       ts,
	}, nil
}

// Channels lists text channels across all guilds the bot can see, and
// caches names for inbound payloads.
func (a *Adapter) Channels(_ context.Context) ([]adapters.ChannelInfo, error) {
	a.mu.Lock()
	session := a.session
	a.mu.Unlock()
	if session == nil {
		return nil, &adapters.PlatformError{Platform: platformName, Op: "channels", Err: adapters.ErrNotConnected}
	}

	var out []adapters.ChannelInfo
	for _, guild := range session.State.Guilds {
		chans, err := session.GuildChannels(guild.ID)
		if err != nil {
			logger.WarnCF(platformName, "Channel listing failed", map[string]any{
				"guild": guild.ID,
				"error": err.Error(),
			})
			continue
		}
		for _, ch := range chans {
			if ch.Type != discordgo.ChannelTypeGuildText {
				continue
			}
			info := adapters.ChannelInfo{ID: ch.ID, Name: ch.Name, Kind: "text"}
			out = append(out, info)
			a.mu.Lock()
			a.channels[ch.ID] = info
			a.mu.Unlock()
		}
	}
	return out, nil
}

func (a *Adapter) Messages(_ context.Context, channelID string, opts adapters.HistoryOptions) ([]map[string]any, error) {
	a.mu.Lock()
	session := a.session
	name := a.channels[channelID].Name
	a.mu.Unlock()
	if session == nil {
		return nil, &adapters.PlatformError{Platform: platformName, Op: "history", Err: adapters.ErrNotConnected}
	}

	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	msgs, err := session.ChannelMessages(channelID, limit, opts.Cursor, "", "")
	if err != nil {
		return nil, &adapters.PlatformError{Platform: platformName, Op: "history", Err: err}
	}

	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		if m.Author == nil {
			continue
		}
		out = append(out, translateMessage(m, name, false))
	}
	return out, nil
}

func (a *Adapter) HealthCheck(_ context.Context) adapters.Health {
	a.mu.Lock()
	session := a.session
	a.mu.Unlock()
	if session == nil {
		return a.Health("not connected")
	}
	if latency := session.HeartbeatLatency(); latency > 30*time.Second {
		return a.Health(fmt.Sprintf("heartbeat latency %s", latency))
	}
	return a.Health("")
}
