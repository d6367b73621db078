package app

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/flemzord/larkbridge/internal/channel"
	"github.com/flemzord/larkbridge/internal/config"
	"github.com/flemzord/larkbridge/internal/core"
	"github.com/flemzord/larkbridge/internal/gateway"
	"github.com/flemzord/larkbridge/pkg/message"
)

func newWireFixture(t *testing.T, withSession bool) (*core.App, *core.AppContext, *channel.MockChannel) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	appCtx := core.NewAppContext(logger, t.TempDir())
	app := core.NewApp(appCtx)

	mock := channel.NewMockChannel("mock", nil)
	app.AppendModule("channel.mock", mock)

	if withSession {
		appCtx.RegisterService("gateway.session", &gateway.Session{})
	}
	return app, appCtx, mock
}

func TestWireBridge_RegistersRouterAndDispatcher(t *testing.T) {
	t.Parallel()

	app, appCtx, mock := newWireFixture(t, true)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	err := wireBridge(app, appCtx, []string{"channel.mock"}, nil, logger)
	if err != nil {
		t.Fatalf("wireBridge: %v", err)
	}

	if _, ok := appCtx.GetService("bridge.router"); !ok {
		t.Error("bridge.router service not registered")
	}
	svc, ok := appCtx.GetService("channel.dispatcher")
	if !ok {
		t.Fatal("channel.dispatcher service not registered")
	}
	dispatcher := svc.(*channel.Dispatcher)
	if _, ok := dispatcher.Get("channel.mock"); !ok {
		t.Error("channel not registered under its module ID")
	}

	// The channel inbox must be wired to the router.
	err = mock.SimulateMessage(message.InboundMessage{
		Channel: "channel.mock",
		Chat:    message.Chat{ID: "c1", Kind: message.ChatGroup},
		Sender:  message.Sender{ID: "u1"},
		Text:    "hi",
	})
	if err != nil {
		t.Errorf("inbox not wired: %v", err)
	}

	if _, ok := app.Module("bridge.router"); !ok {
		t.Error("bridge.router not appended to lifecycle")
	}
	if _, ok := app.Module("cron"); !ok {
		t.Error("cron scheduler not appended to lifecycle")
	}
}

func TestWireBridge_NoChannelsSkipsWiring(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	appCtx := core.NewAppContext(logger, t.TempDir())
	app := core.NewApp(appCtx)

	if err := wireBridge(app, appCtx, nil, nil, logger); err != nil {
		t.Fatalf("wireBridge: %v", err)
	}
	if _, ok := appCtx.GetService("bridge.router"); ok {
		t.Error("router registered despite no channels")
	}
}

func TestWireBridge_RequiresGatewaySession(t *testing.T) {
	t.Parallel()

	app, appCtx, _ := newWireFixture(t, false)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	err := wireBridge(app, appCtx, []string{"channel.mock"}, nil, logger)
	if err == nil {
		t.Fatal("expected error without gateway.session service")
	}
}

func TestWireBridge_RejectsWrongSessionType(t *testing.T) {
	t.Parallel()

	app, appCtx, _ := newWireFixture(t, false)
	appCtx.RegisterService("gateway.session", "not a session")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	err := wireBridge(app, appCtx, []string{"channel.mock"}, nil, logger)
	if err == nil {
		t.Fatal("expected error for wrong service type")
	}
}

func TestWireBridge_InvalidMaxIdle(t *testing.T) {
	t.Parallel()

	app, appCtx, _ := newWireFixture(t, true)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bcfg := &config.BridgeConfig{MaxIdle: "not-a-duration"}
	err := wireBridge(app, appCtx, []string{"channel.mock"}, bcfg, logger)
	if err == nil {
		t.Fatal("expected error for invalid max_idle")
	}
}

func TestWireBridge_DuplicateChannelID(t *testing.T) {
	t.Parallel()

	app, appCtx, _ := newWireFixture(t, true)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// The same ID twice makes the second Register call fail.
	err := wireBridge(app, appCtx, []string{"channel.mock", "channel.mock"}, nil, logger)
	if err == nil {
		t.Fatal("expected error for duplicate channel registration")
	}
	if !errors.Is(err, channel.ErrDuplicateChannel) {
		t.Errorf("unexpected error kind: %v", err)
	}
}
