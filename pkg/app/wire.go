package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/larkbridge/internal/bridge"
	"github.com/flemzord/larkbridge/internal/channel"
	"github.com/flemzord/larkbridge/internal/config"
	"github.com/flemzord/larkbridge/internal/core"
	"github.com/flemzord/larkbridge/internal/cron"
	"github.com/flemzord/larkbridge/internal/gateway"
)

// bridgeModule wraps a *bridge.Router to satisfy core.Module, core.Starter,
// and core.Stopper, so the router participates in the App lifecycle.
type bridgeModule struct {
	router *bridge.Router
	ctx    context.Context
}

func (m *bridgeModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "bridge.router"}
}

func (m *bridgeModule) Start() error {
	m.router.Start(m.ctx)
	return nil
}

func (m *bridgeModule) Stop(ctx context.Context) error {
	m.router.Stop(ctx)
	return nil
}

// cronModule wraps the maintenance scheduler into the App lifecycle.
type cronModule struct {
	sched *cron.Scheduler
}

func (m *cronModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "cron"}
}

func (m *cronModule) Start() error { return m.sched.Start() }

func (m *cronModule) Stop(ctx context.Context) error { return m.sched.Stop(ctx) }

// wireBridge creates the Dispatcher and Router, connects them to every
// loaded channel and to the gateway session, and appends the router plus
// the maintenance scheduler to the app lifecycle. Must be called after
// LoadModules and before Start.
func wireBridge(
	app *core.App,
	appCtx *core.AppContext,
	ids []string,
	bcfg *config.BridgeConfig,
	logger *slog.Logger,
) error {
	if bcfg == nil {
		bcfg = &config.BridgeConfig{}
	}

	// Discover channels from loaded modules.
	dispatcher := channel.NewDispatcher()
	var channels []channel.Channel
	var channelIDs []string

	for _, id := range ids {
		mod, ok := app.Module(id)
		if !ok {
			continue
		}
		ch, ok := mod.(channel.Channel)
		if !ok {
			continue
		}
		// Register under the full module ID (e.g. "channel.lark") because
		// that is what the channel sets as msg.Channel on inbound messages.
		if err := dispatcher.Register(id, ch); err != nil {
			return fmt.Errorf("registering channel %s: %w", id, err)
		}
		channels = append(channels, ch)
		channelIDs = append(channelIDs, id)
		logger.Info("bridge: registered channel", "channel", id)
	}

	if len(channels) == 0 {
		logger.Info("bridge: no channels found, skipping bridge wiring")
		return nil
	}

	svc, ok := appCtx.GetService("gateway.session")
	if !ok {
		return fmt.Errorf("bridge: a gateway.session module is required")
	}
	session, ok := svc.(*gateway.Session)
	if !ok {
		return fmt.Errorf("bridge: unexpected gateway.session service type %T", svc)
	}

	var maxIdle time.Duration
	if bcfg.MaxIdle != "" {
		parsed, err := time.ParseDuration(bcfg.MaxIdle)
		if err != nil {
			return fmt.Errorf("bridge: invalid max_idle %q: %w", bcfg.MaxIdle, err)
		}
		maxIdle = parsed
	}

	r, err := bridge.NewRouter(bridge.Config{
		WorkerCount:   bcfg.Workers,
		InboxSize:     bcfg.InboxSize,
		MaxIdle:       maxIdle,
		HistoryWindow: bcfg.HistoryWindow,
		Dispatcher:    dispatcher,
		Agent:         session,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("creating bridge router: %w", err)
	}

	// Wire each channel's inbox to the router, and the gateway's event
	// stream back to it.
	for _, ch := range channels {
		ch.SetInbox(r.Submit)
	}
	session.OnEvent(r.HandleGatewayEvent)

	app.AppendModule("bridge.router", &bridgeModule{
		router: r,
		ctx:    context.Background(),
	})

	// Register for discovery by the ops server.
	appCtx.RegisterService("bridge.router", r)
	appCtx.RegisterService("channel.dispatcher", dispatcher)

	// Maintenance jobs: idle-window pruning plus dedup-cache resets for
	// channels that keep one.
	sched := cron.NewScheduler(logger)
	if err := sched.RegisterJob(&cron.ConversationPruneJob{
		Pruner:       r,
		Logger:       logger,
		ScheduleExpr: bcfg.PruneSchedule,
	}); err != nil {
		return fmt.Errorf("registering prune job: %w", err)
	}

	resetters := make(map[string]cron.DedupResetter)
	for i, ch := range channels {
		if dr, ok := ch.(cron.DedupResetter); ok {
			resetters[channelIDs[i]] = dr
		}
	}
	if len(resetters) > 0 {
		if err := sched.RegisterJob(&cron.DedupResetJob{
			Channels:     resetters,
			Logger:       logger,
			ScheduleExpr: bcfg.DedupSchedule,
		}); err != nil {
			return fmt.Errorf("registering dedup reset job: %w", err)
		}
	}
	app.AppendModule("cron", &cronModule{sched: sched})

	logger.Info("bridge: wired", "channels", len(channels))
	return nil
}
