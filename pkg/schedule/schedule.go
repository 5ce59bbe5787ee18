// Package schedule runs cron-driven broadcasts against the hub.
package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/tinyland-inc/omnichat/pkg/config"
	"github.com/tinyland-inc/omnichat/pkg/hub"
	"github.com/tinyland-inc/omnichat/pkg/logger"
)

// Broadcaster is the slice of the hub the scheduler needs.
type Broadcaster interface {
	Broadcast(ctx context.Context, content string, opts hub.BroadcastOptions) []hub.BroadcastEntry
}

type Scheduler struct {
	broadcaster Broadcaster
	entries     []config.BroadcastConfig
	cron        *gronx.Gronx

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func New(b Broadcaster, entries []config.BroadcastConfig) (*Scheduler, error) {
	g := gronx.New()
	for _, e := range entries {
		if !g.IsValid(e.Cron) {
			return nil, fmt.Errorf("schedule: invalid cron expression %q for %q", e.Cron, e.Name)
		}
	}
	return &Scheduler{broadcaster: b, entries: entries, cron: g}, nil
}

// Start ticks once per minute and fires every entry due at that minute.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || len(s.entries) == 0 {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(runCtx)
	logger.InfoCF("schedule", "Scheduler started", map[string]any{"broadcasts": len(s.entries)})
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.fire(ctx, now)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, now time.Time) {
	for _, entry := range s.entries {
		due, err := s.cron.IsDue(entry.Cron, now)
		if err != nil {
			logger.ErrorCF("schedule", "Cron check failed", map[string]any{
				"broadcast": entry.Name,
				"error":     err.Error(),
			})
			continue
		}
		if !due {
			continue
		}

		opts := hub.BroadcastOptions{Channels: parseDestinations(entry.Channels)}
		results := s.broadcaster.Broadcast(ctx, entry.Content, opts)

		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
			}
		}
		logger.InfoCF("schedule", "Broadcast fired", map[string]any{
			"broadcast": entry.Name,
			"sent":      len(results) - failed,
			"failed":    failed,
		})
	}
}

// parseDestinations reads "platform:channelID" entries; an empty list
// means every observed channel.
func parseDestinations(channels []string) []hub.Destination {
	var out []hub.Destination
	for _, ch := range channels {
		platform, channelID, ok := strings.Cut(ch, ":")
		if !ok || platform == "" || channelID == "" {
			logger.WarnCF("schedule", "Skipping malformed destination", map[string]any{"channel": ch})
			continue
		}
		out = append(out, hub.Destination{Platform: platform, ChannelID: channelID})
	}
	return out
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.running = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
