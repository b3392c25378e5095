package notify

import (
	"testing"
	"time"

	"github.com/operia/operia/internal/config"
)

func TestNotifyGuardsMisconfiguration(t *testing.T) {
	// Each call must return immediately without touching the network.
	Notify("", 42, "hello")
	Notify("token", 0, "hello")
	Notify("token", 42, "  ")
}

func TestDisabledNotifierIsNoOp(t *testing.T) {
	n := NewNotifier(config.TelegramConfig{Enabled: false, BotToken: "token", ChatID: 42})
	n.SyncCompleted("user-1", "notion", 2, 1)
	n.IntegrationConnected("user-1", "github")
}

func TestEnabledNotifierDoesNotBlockCaller(t *testing.T) {
	// send fires in the background; the caller returns before any delivery
	// attempt finishes.
	n := NewNotifier(config.TelegramConfig{Enabled: true})

	done := make(chan struct{})
	go func() {
		n.SyncCompleted("user-1", "notion", 2, 1)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notifier blocked the caller")
	}
}
