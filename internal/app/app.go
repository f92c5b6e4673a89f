package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"remindbot/internal/bot"
	"remindbot/internal/config"
	"remindbot/internal/httpapi"
	"remindbot/internal/mcptools"
	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	"remindbot/internal/task/scheduler"
	kit "remindbot/internal/transport"
	"remindbot/internal/transport/telegram/adapter"
	"remindbot/internal/wallclock"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/systemd"
)

// App wires the reminder engine to its chat front end, persistence and
// operator surfaces.
type App struct {
	version string
	started time.Time

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service

	adapter *adapter.Adapter
	store   storage.Store
	clock   *wallclock.Service
	jobs    *scheduler.Service
	engine  *reminder.Engine
	notif   *notifier.Service
	bot     *bot.Bot
	mcp     *mcptools.Server
	http    *httpapi.Server
	sd      *systemd.Notifier

	updates chan kit.Update
}

// NewApp loads the configuration and builds every component without
// starting any goroutines.
func NewApp(cfgPath, version string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole(cfg.Logging.Level)
	ad, err := adapter.New(adapter.Config{Token: cfg.Telegram.Token, PollTimeout: cfg.PollTimeout()}, bootLog.Component("telegram"))
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(cfg.LogConfig(), ad)

	loc, err := cfg.Location()
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("reminders.timezone: %w", err)
	}

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	store, err := storage.Open(sc, log.Component("storage"))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	clk := clock.New()
	wc := wallclock.New(clk, loc)
	jobs := scheduler.New(clk, log.Component("scheduler"))
	eng := reminder.New(reminder.Config{
		Cadence:   cfg.CadenceDuration(),
		QueueSize: cfg.Reminders.QueueSize,
	}, wc, jobs, store, log.Component("reminder"))

	b := bot.New(botConfig(cfg), eng, ad, clk, log.Component("bot"))
	notif := notifier.New(notifierConfig(cfg), eng, b, log.Component("notifier"))

	a := &App{
		version: version,
		cfgm:    cfgm,
		log:     log,
		logs:    logs,
		adapter: ad,
		store:   store,
		clock:   wc,
		jobs:    jobs,
		engine:  eng,
		notif:   notif,
		bot:     b,
		http:    httpapi.NewServer(log.Component("http")),
		sd:      systemd.New(log.Component("systemd")),
		updates: make(chan kit.Update, 256),
	}
	if cfg.HTTP.Enabled && cfg.HTTP.MCP {
		a.mcp = mcptools.New(eng, version, log.Component("mcp"))
	}

	log.Info("app initialized",
		logx.String("version", version),
		logx.String("timezone", loc.String()),
		logx.Duration("cadence", cfg.CadenceDuration()),
		logx.String("storage", sc.Driver),
	)
	return a, nil
}

func botConfig(cfg *config.Config) bot.Config {
	return bot.Config{
		AllowedUserIDs: append([]int64(nil), cfg.Telegram.AllowedUserIDs...),
		SnoozeOptions:  append([]int(nil), cfg.Reminders.SnoozeOptions...),
		Timezone:       cfg.Reminders.Timezone,
	}
}

func notifierConfig(cfg *config.Config) notifier.Config {
	return notifier.Config{
		Workers:     cfg.Delivery.Workers,
		RatePerSec:  cfg.Delivery.RatePerSec,
		SendTimeout: cfg.SendTimeout(),
	}
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

func (a *App) Start(ctx context.Context) error {
	a.started = time.Now()
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log.Component("app")), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.Component("config"))
	a.cfgm.SetValidator(validateReload)

	n, err := a.engine.Restore(a.sup.Context())
	if err != nil {
		a.sup.Cancel()
		return fmt.Errorf("restore reminders: %w", err)
	}
	a.log.Info("reminders restored", logx.Int("count", n))

	if err := a.notif.Start(a.sup.Context(), a.engine.Deliveries()); err != nil {
		a.sup.Cancel()
		return err
	}
	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		a.sup.Cancel()
		return err
	}
	if err := a.bot.PublishMenu(a.sup.Context()); err != nil {
		a.log.Warn("failed to publish command menu", logx.Err(err))
	}
	a.sup.Go("bot.dispatch", func(c context.Context) error {
		return a.bot.DispatchLoop(c, a.updates)
	})

	if err := a.scheduleHeartbeat(); err != nil {
		a.log.Warn("heartbeat not scheduled", logx.Err(err))
	}

	cfg := a.cfgm.Get()
	if cfg.HTTP.Enabled {
		opt := httpapi.Options{
			Engine: a.engine,
			Status: func() any { return a.Status() },
			Pprof:  cfg.HTTP.Pprof,
			Log:    a.log.Component("http"),
		}
		if a.mcp != nil {
			opt.MCP = a.mcp.Handler()
		}
		if err := a.http.Start(cfg.HTTP.Addr, httpapi.NewRouter(opt)); err != nil {
			a.sup.Cancel()
			return err
		}
	}

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
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.sd.Ready()
	a.sup.Go0("systemd.watchdog", a.sd.RunWatchdog)

	a.log.Info("app started", logx.Int("reminders", a.engine.Stats().Reminders))
	return nil
}

// validateReload rejects a reloaded config that could not be applied
// without a restart or that the engine would refuse at runtime.
func validateReload(_ context.Context, cfg *config.Config) error {
	for _, m := range cfg.Reminders.SnoozeOptions {
		if m > reminder.MaxSnoozeMinutes {
			return fmt.Errorf("reminders.snooze_options: %d exceeds %d minutes", m, reminder.MaxSnoozeMinutes)
		}
	}
	if cfg.Delivery.Workers < 0 || cfg.Delivery.RatePerSec < 0 {
		return fmt.Errorf("delivery: workers and rate_per_sec must be >= 0")
	}
	return nil
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	changed, restart := config.SummarizeChange(oldCfg, newCfg)
	if len(changed) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	a.log.Info("config applied", logx.String("changed", strings.Join(changed, ",")))

	a.logs.Apply(newCfg.LogConfig())
	a.notif.Apply(notifierConfig(newCfg))
	a.bot.Apply(botConfig(newCfg))

	if len(restart) > 0 {
		a.log.Warn("config change requires restart to take effect", logx.String("sections", strings.Join(restart, ",")))
	}
}

// scheduleHeartbeat logs engine counters at the top of every hour.
func (a *App) scheduleHeartbeat() error {
	trigger, err := scheduler.Cron("@hourly", a.clock.Location())
	if err != nil {
		return err
	}
	_, err = a.jobs.Schedule(scheduler.ID{Tag: "app:heartbeat"}, trigger, func(_ scheduler.ID, at time.Time) {
		st := a.engine.Stats()
		ns := a.notif.Stats()
		a.log.Info("heartbeat",
			logx.Time("at", at),
			logx.Int("reminders", st.Reminders),
			logx.Uint64("delivered", ns.Delivered),
			logx.Uint64("suppressed", ns.Suppressed),
			logx.Uint64("failed", ns.Failed),
			logx.Uint64("dropped", st.Dropped),
			logx.Uint64("persist_failures", st.PersistFailures),
		)
		a.sd.Status(fmt.Sprintf("%d reminders, %d delivered", st.Reminders, ns.Delivered))
	})
	return err
}

// Status is the payload of GET /status.
type Status struct {
	Version        string          `json:"version"`
	Uptime         string          `json:"uptime"`
	Timezone       string          `json:"timezone"`
	Owners         int             `json:"owners"`
	Engine         reminder.Stats  `json:"engine"`
	Scheduler      scheduler.Stats `json:"scheduler"`
	Notifier       notifier.Stats  `json:"notifier"`
	Sessions       int             `json:"sessions"`
	DroppedUpdates uint64          `json:"dropped_updates"`
	DroppedLogs    uint64          `json:"dropped_logs"`
	Goroutines     rtsup.Snapshot  `json:"goroutines"`
}

func (a *App) Status() Status {
	st := Status{
		Version:        a.version,
		Timezone:       a.clock.Location().String(),
		Owners:         len(a.engine.Owners()),
		Engine:         a.engine.Stats(),
		Scheduler:      a.jobs.Stats(),
		Notifier:       a.notif.Stats(),
		Sessions:       a.bot.Sessions(),
		DroppedUpdates: a.adapter.Dropped(),
		DroppedLogs:    a.logs.Dropped(),
	}
	if !a.started.IsZero() {
		st.Uptime = time.Since(a.started).Truncate(time.Second).String()
	}
	if a.sup != nil {
		st.Goroutines = a.sup.Snapshot()
	}
	return st
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

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
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			elapsed := time.Since(start)
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", elapsed),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// Inputs first (chat updates, operator API), then timers, then delivery.
	step("adapter", 2*time.Second, a.adapter.Stop)
	step("http", 2*time.Second, a.http.Stop)
	step("scheduler", 2*time.Second, a.jobs.Stop)
	step("notifier", 2*time.Second, a.notif.Stop)
	step("engine.flush", 2*time.Second, a.engine.Flush)
	step("storage", 1*time.Second, func(context.Context) error { return a.store.Close() })

	// Finally, wait for supervised goroutines (config watch/reload, dispatcher, watchdog).
	step("supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
