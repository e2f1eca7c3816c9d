package app

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"baubot/internal/broadcast"
	"baubot/internal/commands"
	"baubot/internal/config"
	"baubot/internal/eventbus"
	"baubot/internal/protocol"
	"baubot/internal/runtime/supervisor"
	"baubot/internal/services/report"
	"baubot/internal/storage"
	kit "baubot/internal/transport"
	telegram "baubot/internal/transport/telegram/adapter"
	logx "baubot/pkg/logx"
)

type App struct {
	cfgm     *config.ConfigManager
	settings config.Settings

	sup *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter
	disp    *broadcast.Dispatcher
	server  *protocol.Server
	cmds    *commands.Manager
	report  *report.Service

	updates chan kit.Update
}

type Option func(*options)

type options struct {
	adapter kit.Adapter
	environ []string
}

// WithAdapter replaces the Telegram adapter. Tests use it to run the app
// against an in-memory gateway.
func WithAdapter(ad kit.Adapter) Option {
	return func(o *options) { o.adapter = ad }
}

// WithEnviron replaces the process environment used for BAUBOT_* overrides.
func WithEnviron(environ []string) Option {
	return func(o *options) { o.environ = environ }
}

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}

	var mopts []config.ManagerOption
	if o.environ != nil {
		mopts = append(mopts, config.WithEnviron(o.environ))
	}
	cfgm := config.NewConfigManager(cfgPath, mopts...)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	settings, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}

	ad := o.adapter
	if ad == nil {
		bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
		tg, err := telegram.New(mapAdapterConfig(settings), bootLog)
		if err != nil {
			return nil, err
		}
		ad = tg
	}

	// The adapter doubles as the chat sink for operator log forwarding.
	logSvc, log := logx.New(mapLogConfig(cfg), ad)
	if tg, ok := ad.(*telegram.Adapter); ok {
		tg.SetLogger(log.With(logx.String("comp", "telegram")))
	}

	store, err := storage.Open(mapStorageConfig(settings), log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	bus := eventbus.New()

	dopt := mapDispatchOptions(settings)
	dopt.Bus = bus
	dopt.Log = log.With(logx.String("comp", "broadcast"))
	disp := broadcast.NewDispatcher(storage.NewDirectory(store, log.With(logx.String("comp", "directory"))), ad, dopt)

	server := protocol.NewServer(mapServerConfig(settings), disp, log.With(logx.String("comp", "protocol")))

	cmds := commands.New(store, ad, disp.Router(), log.With(logx.String("comp", "commands")), commands.Options{})

	rep := report.New(settings.ReportSchedule, report.Sources{
		Pending:    disp.Pending,
		Recipients: store.Count,
	}, bus, log)

	log.Info("app configured",
		logx.String("storage", mapStorageConfig(settings).Driver),
		logx.String("listen", settings.Listen),
		logx.Duration("default_timeout", settings.PromptTimeout),
		logx.Int("max_pending", settings.MaxPending),
	)

	return &App{
		cfgm:     cfgm,
		settings: settings,
		log:      log.With(logx.String("comp", "app")),
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		disp:     disp,
		server:   server,
		cmds:     cmds,
		report:   rep,
		updates:  make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Addr is the protocol listener address once started.
func (a *App) Addr() net.Addr { return a.server.Addr() }

// Dispatcher exposes the broadcast engine.
func (a *App) Dispatcher() *broadcast.Dispatcher { return a.disp }

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	runCtx := a.sup.Context()

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return err
	}
	if mu, ok := a.adapter.(kit.CommandMenuUpdater); ok {
		a.sup.Go0("commands.menu", func(c context.Context) {
			mctx, cancel := context.WithTimeout(c, 10*time.Second)
			defer cancel()
			if err := mu.UpdateMenuCommands(mctx, a.cmds.Menu()); err != nil {
				a.log.Warn("command menu update failed", logx.Err(err))
			}
		})
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmds.Run(c, a.updates)
	})

	if err := a.server.Start(runCtx); err != nil {
		return err
	}
	if err := a.report.Start(runCtx); err != nil {
		return err
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.logEvent(e)
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.String("addr", a.server.Addr().String()))
	return nil
}

func (a *App) logEvent(e eventbus.Event) {
	fields := []logx.Field{logx.String("type", e.Type), logx.Time("time", e.Time)}
	if ev, ok := e.Data.(eventbus.RecipientEvent); ok {
		fields = append(fields,
			logx.String("rid", ev.RequestID),
			logx.String("recipient", ev.Recipient),
			logx.Int64("chat_id", ev.ChatID),
			logx.Int("message_id", ev.MessageID),
		)
		if ev.Reason != "" {
			fields = append(fields, logx.String("reason", ev.Reason))
		}
	}
	a.log.Debug("event", fields...)
}

// applyConfig hot-applies logging. Other sections are read once at startup.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.logs.Apply(mapLogConfig(newCfg))

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	if restart {
		a.log.Warn("config changes outside logging need a restart to take effect")
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	a.sup.Cancel()

	// step bounds one shutdown phase so a stuck component can't stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// The server goes first so no new prompts are opened while the gateway closes.
	step("protocol", 3*time.Second, a.server.Stop)
	step("report", 1*time.Second, a.report.Stop)
	step("adapter", 3*time.Second, a.adapter.Stop)
	step("supervisor", 3*time.Second, a.sup.Wait)
	step("storage", 1*time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped", logx.Int("pending", a.disp.Pending()))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
