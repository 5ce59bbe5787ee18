// Package slack binds the Slack Events API over Socket Mode.
package slack

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/tinyland-inc/omnichat/pkg/adapters"
	"github.com/tinyland-inc/omnichat/pkg/config"
	"github.com/tinyland-inc/omnichat/pkg/logger"
)

const platformName = "slack"

func init() {
	adapters.Register(platformName, func(cfg *config.Config) (adapters.Integration, error) {
		if !ValidateConfig(cfg.Channels.Slack) {
			return nil, fmt.Errorf("slack: invalid config (enabled with bot and app tokens required)")
		}
		return New(cfg.Channels.Slack), nil
	})
}

// ValidateConfig reports config validity: Socket Mode needs the token
// pair, a bot token (xoxb) and an app-level token (xapp).
func ValidateConfig(cfg config.SlackConfig) bool {
	return cfg.Enabled && cfg.BotToken != "" && cfg.AppToken != ""
}

type Adapter struct {
	*adapters.BaseAdapter

	cfg config.SlackConfig

	mu        sync.Mutex
	api       *slack.Client
	client    *socketmode.Client
	cancel    context.CancelFunc
	botUserID string
	channels  map[string]adapters.ChannelInfo
}

func New(cfg config.SlackConfig) *Adapter {
	return &Adapter{
		BaseAdapter: adapters.NewBaseAdapter(platformName, cfg.AllowFrom),
		cfg:         cfg,
		channels:    make(map[string]adapters.ChannelInfo),
	}
}

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
	api := slack.New(a.cfg.BotToken, slack.OptionAppLevelToken(a.cfg.AppToken))

	auth, err := api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("auth check: %w", err)
	}
	logger.InfoCF(platformName, "Bot authenticated", map[string]any{"user": auth.User, "team": auth.Team})

	client := socketmode.New(api)

	a.mu.Lock()
	a.api = api
	a.client = client
	a.botUserID = auth.UserID
	a.mu.Unlock()

	a.refreshChannels(ctx)

	go a.run(ctx, client)
	go a.listen(ctx, client)
	return nil
}

func (a *Adapter) run(ctx context.Context, client *socketmode.Client) {
	err := client.RunContext(ctx)
	if ctx.Err() != nil {
		return
	}

	a.SetRunning(false)
	a.EmitStatus(adapters.StatusDisconnected)
	if err != nil {
		a.EmitError(&adapters.PlatformError{Platform: platformName, Op: "run", Err: err})
	}
	if err := adapters.DefaultReconnector().Run(ctx, a.BaseAdapter, a.establish); err != nil {
		return
	}
	a.SetRunning(true)
}

func (a *Adapter) listen(ctx context.Context, client *socketmode.Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-client.Events:
			if !ok {
				return
			}
			a.handleEvent(client, evt)
		}
	}
}

func (a *Adapter) handleEvent(client *socketmode.Client, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnected:
		a.EmitStatus(adapters.StatusConnected)
	case socketmode.EventTypeConnectionError:
		a.EmitStatus(adapters.StatusReconnecting)
	case socketmode.EventTypeEventsAPI:
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			client.Ack(*evt.Request)
		}
		if apiEvent.Type != slackevents.CallbackEvent {
			return
		}
		switch ev := apiEvent.InnerEvent.Data.(type) {
		case *slackevents.MessageEvent:
			a.handleMessage(ev)
		}
	}
}

func (a *Adapter) handleMessage(ev *slackevents.MessageEvent) {
	// Ignore the bot's own messages and other bot traffic.
	if ev.BotID != "" {
		return
	}
	a.mu.Lock()
	own := ev.User == a.botUserID
	name := a.channels[ev.Channel].Name
	a.mu.Unlock()
	if own {
		return
	}

	payload := map[string]any{
		"text":    ev.Text,
		"user":    ev.User,
		"channel": ev.Channel,
		"ts":      ev.TimeStamp,
	}
	if ev.SubType != "" {
		payload["subtype"] = ev.SubType
	}
	if ev.ThreadTimeStamp != "" {
		payload["thread_ts"] = ev.ThreadTimeStamp
	}
	if name != "" {
		payload["channel_name"] = name
	}

	a.EmitMessage(ev.User, payload)
}

func (a *Adapter) refreshChannels(ctx context.Context) {
	a.mu.Lock()
	api := a.api
	a.mu.Unlock()
	if api == nil {
		return
	}

	params := &slack.GetConversationsParameters{
		Limit: 200,
		Types: []string{"public_channel", "private_channel"},
	}
	for {
		chans, cursor, err := api.GetConversationsContext(ctx, params)
		if err != nil {
			logger.WarnCF(platformName, "Channel listing failed", map[string]any{"error": err.Error()})
			return
		}
		a.mu.Lock()
		for _, ch := range chans {
			kind := "public_channel"
			if ch.IsPrivate {
				kind = "private_channel"
			}
			a.channels[ch.ID] = adapters.ChannelInfo{ID: ch.ID, Name: ch.Name, Kind: kind}
		}
		a.mu.Unlock()
		if cursor == "" {
			return
		}
		params.Cursor = cursor
	}
}

func (a *Adapter) Disconnect(_ context.Context) error {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.api = nil
	a.client = nil
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
	api := a.api
	a.mu.Unlock()
	if api == nil {
		return nil, &adapters.PlatformError{Platform: platformName, Op: "send", Err: adapters.ErrNotConnected}
	}

	msgOpts := []slack.MsgOption{slack.MsgOptionText(content, false)}
	if opts.ThreadID != "" {
		msgOpts = append(msgOpts, slack.MsgOptionTS(opts.ThreadID))
	} else if opts.ReplyTo != "" {
		msgOpts = append(msgOpts, slack.MsgOptionTS(opts.ReplyTo))
	}

	channel, ts, err := api.PostMessageContext(ctx, channelID, msgOpts...)
	if err != nil {
		return nil, &adapters.PlatformError{Platform: platformName, Op: "send", Err: err}
	}

	a.Touch()
	return &adapters.SendResult{
		NativeMessageID: ts,
		ChannelID:       channel,
		Timestamp:       tsToTime(ts),
	}, nil
}

// tsToTime parses a Slack "seconds.micros" timestamp.
func tsToTime(ts string) time.Time {
	sec, _, _ := strings.Cut(ts, ".")
	n, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Now().UTC()
	}
	return time.Unix(n, 0).UTC()
}

func (a *Adapter) Channels(ctx context.Context) ([]adapters.ChannelInfo, error) {
	a.refreshChannels(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]adapters.ChannelInfo, 0, len(a.channels))
	for _, ch := range a.channels {
		out = append(out, ch)
	}
	return out, nil
}

func (a *Adapter) Messages(ctx context.Context, channelID string, opts adapters.HistoryOptions) ([]map[string]any, error) {
	a.mu.Lock()
	api := a.api
	a.mu.Unlock()
	if api == nil {
		return nil, &adapters.PlatformError{Platform: platformName, Op: "history", Err: adapters.ErrNotConnected}
	}

	params := &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     opts.Limit,
		Cursor:    opts.Cursor,
	}
	resp, err := api.GetConversationHistoryContext(ctx, params)
	if err != nil {
		return nil, &adapters.PlatformError{Platform: platformName, Op: "history", Err: err}
	}

	out := make([]map[string]any, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		payload := map[string]any{
			"text":    m.Text,
			"user":    m.User,
			"channel": channelID,
			"ts":      m.Timestamp,
		}
		if m.SubType != "" {
			payload["subtype"] = m.SubType
		}
		out = append(out, payload)
	}
	return out, nil
}

func (a *Adapter) HealthCheck(ctx context.Context) adapters.Health {
	a.mu.Lock()
	api := a.api
	a.mu.Unlock()
	if api == nil {
		return a.Health("not connected")
	}
	if _, err := api.AuthTestContext(ctx); err != nil {
		return a.Health(err.Error())
	}
	return a.Health("")
}
