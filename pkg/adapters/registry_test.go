package adapters

import (
	"context"
	"testing"

	"github.com/tinyland-inc/omnichat/pkg/config"
)

type nopIntegration struct{ *BaseAdapter }

func (nopIntegration) Connect(context.Context) error    { return nil }
func (nopIntegration) Disconnect(context.Context) error { return nil }
func (nopIntegration) SendMessage(context.Context, string, string, SendOptions) (*SendResult, error) {
	return nil, ErrNotConnected
}
func (nopIntegration) Channels(context.Context) ([]ChannelInfo, error) { return nil, nil }
func (nopIntegration) Messages(context.Context, string, HistoryOptions) ([]map[string]any, error) {
	return nil, nil
}
func (n nopIntegration) HealthCheck(context.Context) Health { return n.Health("") }

func TestRegistry(t *testing.T) {
	Register("fake", func(*config.Config) (Integration, error) {
		return nopIntegration{NewBaseAdapter("fake", nil)}, nil
	})

	integ, err := New("fake", &config.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if integ.Platform() != "fake" {
		t.Fatalf("unexpected platform %q", integ.Platform())
	}

	if _, err := New("missing", &config.Config{}); err == nil {
		t.Fatal("expected an error for an unregistered name")
	}

	found := false
	for _, name := range Registered() {
		if name == "fake" {
			found = true
		}
	}
	if !found {
		t.Fatal("Registered should list the fake factory")
	}
}

func TestRegisterPanicsOnDuplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic on duplicate registration")
		}
	}()
	Register("dup", func(*config.Config) (Integration, error) { return nil, nil })
	Register("dup", func(*config.Config) (Integration, error) { return nil, nil })
}
