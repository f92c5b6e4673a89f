package bot

import (
	"context"
	"errors"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	"remindbot/internal/wallclock"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

// ns is the callback_data namespace of every button the bot renders.
const ns = "rem"

// Engine is the set of reminder operations the chat front-end drives.
type Engine interface {
	Create(ctx context.Context, owner int64, name string, tod wallclock.TimeOfDay) (reminder.Reminder, error)
	Delete(ctx context.Context, owner int64, name string) (bool, error)
	Acknowledge(ctx context.Context, owner int64, name string) (reminder.Reminder, error)
	Snooze(ctx context.Context, owner int64, name string, minutes int) (time.Time, error)
	List(owner int64) []reminder.Reminder
}

var _ Engine = (*reminder.Engine)(nil)

type Config struct {
	// AllowedUserIDs restricts who may talk to the bot; empty allows everyone.
	AllowedUserIDs []int64
	SnoozeOptions  []int
	// Timezone is shown in time prompts.
	Timezone       string
	HandlerTimeout time.Duration
	Workers        int
	QueueSize      int
}

type Request struct {
	Update kit.Update
	Chat   kit.ChatTarget
	FromID int64
	// Owner is the reminder owner addressed by this update.
	Owner   int64
	Command string
	Args    []string
	Payload string
	ReqID   string
	Log     logx.Logger
	// Toast is shown as the callback answer, if any.
	Toast string
}

type command struct {
	name        string
	description string
	usage       string
	handle      HandlerFunc
}

type Bot struct {
	eng    Engine
	ad     kit.Adapter
	clk    clock.Clock
	log    logx.Logger
	tokens *tgui.TokenStore
	sess   *sessions

	mu  sync.RWMutex
	cfg Config

	commands []command
}

func New(cfg Config, eng Engine, ad kit.Adapter, clk clock.Clock, log logx.Logger) *Bot {
	if clk == nil {
		clk = clock.New()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &Bot{
		eng:    eng,
		ad:     ad,
		clk:    clk,
		log:    log,
		tokens: tgui.NewTokenStore().WithTTL(24 * time.Hour).WithNow(clk.Now),
		sess:   newSessions(clk, sessionTTL),
		cfg:    normalize(cfg),
	}
	b.commands = []command{
		{name: "start", description: "show the main menu", usage: "/start", handle: b.cmdStart},
		{name: "help", description: "show help", usage: "/help", handle: b.cmdHelp},
		{name: "add", description: "add a reminder", usage: "/add [name HH:MM]", handle: b.cmdAdd},
		{name: "list", description: "list your reminders", usage: "/list", handle: b.cmdList},
		{name: "delete", description: "delete a reminder", usage: "/delete [name]", handle: b.cmdDelete},
		{name: "cancel", description: "cancel the current action", usage: "/cancel", handle: b.cmdCancel},
	}
	return b
}

func normalize(cfg Config) Config {
	opts := make([]int, 0, len(cfg.SnoozeOptions))
	for _, m := range cfg.SnoozeOptions {
		if m > 0 && m <= reminder.MaxSnoozeMinutes {
			opts = append(opts, m)
		}
	}
	if len(opts) == 0 {
		opts = []int{15, 30, 60}
	}
	cfg.SnoozeOptions = opts
	cfg.AllowedUserIDs = append([]int64(nil), cfg.AllowedUserIDs...)
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return cfg
}

// Apply swaps the hot-reloadable settings (allow-list, snooze options, timeout).
func (b *Bot) Apply(cfg Config) {
	cfg = normalize(cfg)
	b.mu.Lock()
	cur := b.cfg
	cur.AllowedUserIDs = cfg.AllowedUserIDs
	cur.SnoozeOptions = cfg.SnoozeOptions
	cur.HandlerTimeout = cfg.HandlerTimeout
	cur.Timezone = cfg.Timezone
	b.cfg = cur
	b.mu.Unlock()
}

func (b *Bot) config() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cfg
}

func (b *Bot) allowed(userID int64) bool {
	ids := b.config().AllowedUserIDs
	return len(ids) == 0 || slices.Contains(ids, userID)
}

// Commands returns the command menu entries.
func (b *Bot) Commands() []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(b.commands))
	for _, c := range b.commands {
		out = append(out, kit.BotCommand{Command: c.name, Description: c.description})
	}
	return out
}

// PublishMenu pushes Commands to the platform when the adapter supports it.
func (b *Bot) PublishMenu(ctx context.Context) error {
	up, ok := b.ad.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	return up.UpdateMenuCommands(ctx, b.Commands())
}

// Sessions reports how many chats are in the middle of a conversation.
func (b *Bot) Sessions() int { return b.sess.len() }

// DispatchLoop consumes updates until ctx is done or updates is closed.
// Each update runs on a bounded worker pool.
func (b *Bot) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	cfg := b.config()
	jobs := make(chan func(), cfg.QueueSize)
	b.log.Info("dispatcher started", logx.Int("workers", cfg.Workers), logx.Int("job_queue_cap", cap(jobs)))

	var wg sync.WaitGroup
	wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		idx := i
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("panic in dispatch worker", logx.Int("worker", idx), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				}
			}()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-jobs:
					if !ok {
						return
					}
					job()
				}
			}
		}()
	}
	defer func() {
		close(jobs)
		wg.Wait()
		b.log.Info("dispatcher stopped")
	}()

	sweep := b.clk.Ticker(time.Minute)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sweep.C:
			if n := b.sess.sweep(); n > 0 {
				b.log.Debug("expired sessions dropped", logx.Int("count", n))
			}
		case up, ok := <-updates:
			if !ok {
				b.log.Info("updates channel closed")
				return nil
			}
			select {
			case jobs <- func() { _ = b.Handle(ctx, up) }:
			default:
				b.busy(ctx, up)
			}
		}
	}
}

func (b *Bot) busy(ctx context.Context, up kit.Update) {
	if up.Callback != nil {
		_ = b.ad.AnswerCallback(ctx, up.Callback.ID, "busy, try again")
		return
	}
	if to, ok := up.Target(); ok {
		_, _ = b.ad.SendText(ctx, to, "busy, try again", nil)
	}
}

// Handle processes one update synchronously.
func (b *Bot) Handle(ctx context.Context, up kit.Update) error {
	req, ok := b.newRequest(up)
	if !ok {
		return nil
	}
	h := chain(b.route,
		b.answerCallbacks(),
		recoverPanics(),
		logRequests(),
		withTimeout(b.config().HandlerTimeout),
	)
	return h(ctx, req)
}

func (b *Bot) newRequest(up kit.Update) (*Request, bool) {
	to, ok := up.Target()
	if !ok {
		return nil, false
	}
	req := &Request{Update: up, Chat: to, FromID: up.Sender(), Owner: to.ChatID, ReqID: newReqID()}
	if m := up.Message; up.Kind == kit.UpdateMessage {
		req.Command = "text"
		if cmd, args, ok := splitCommand(m.Text); ok {
			req.Command = "/" + cmd
			req.Args = args
		}
	} else {
		req.Command = "cb"
		if _, action, payload, ok := tgui.Parse(up.Callback.Data); ok {
			req.Command = "cb:" + action
			req.Payload = payload
		}
	}
	fields := []logx.Field{
		logx.String("rid", req.ReqID),
		logx.Owner(req.Owner),
		logx.Int64("from_id", req.FromID),
	}
	if m := up.Message; m != nil && m.FromUsername != "" {
		fields = append(fields, logx.String("user", m.FromUsername))
	}
	req.Log = b.log.With(fields...)
	return req, true
}

func (b *Bot) route(ctx context.Context, req *Request) error {
	if !b.allowed(req.FromID) {
		req.Log.Warn("update from user outside the allow-list")
		if req.Update.Callback != nil || strings.HasPrefix(req.Command, "/") {
			return b.reply(ctx, req, "⛔ You are not allowed to use this bot.", nil)
		}
		return nil
	}
	if req.Update.Callback != nil {
		return b.routeCallback(ctx, req)
	}
	if strings.HasPrefix(req.Command, "/") {
		name := strings.TrimPrefix(req.Command, "/")
		for _, c := range b.commands {
			if c.name == name {
				return c.handle(ctx, req)
			}
		}
		return b.reply(ctx, req, "unknown command. try /help", nil)
	}
	return b.onText(ctx, req)
}

func (b *Bot) routeCallback(ctx context.Context, req *Request) error {
	space, action, _, ok := tgui.Parse(req.Update.Callback.Data)
	if !ok || space != ns {
		return nil
	}
	switch action {
	case "add":
		return b.startAdd(ctx, req)
	case "list":
		return b.cmdList(ctx, req)
	case "del":
		return b.showDeletePicker(ctx, req)
	case "cancel":
		return b.cmdCancel(ctx, req)
	case "delpick":
		name, ok := tgui.Unpack(b.tokens, req.Payload)
		if !ok {
			return b.reply(ctx, req, textExpired, mainMenu())
		}
		b.sess.clear(req.Owner)
		return b.delete(ctx, req, name)
	case "ack":
		name, ok := tgui.Unpack(b.tokens, req.Payload)
		if !ok {
			return b.reply(ctx, req, textExpired, mainMenu())
		}
		return b.acknowledge(ctx, req, name)
	case "snooze":
		payload, ok := tgui.Unpack(b.tokens, req.Payload)
		if !ok {
			return b.reply(ctx, req, textExpired, mainMenu())
		}
		minutes, raw, ok := strings.Cut(payload, ":")
		if !ok {
			return b.reply(ctx, req, "❗ Malformed button.", mainMenu())
		}
		name, ok := tgui.Unpack(b.tokens, raw)
		if !ok {
			return b.reply(ctx, req, textExpired, mainMenu())
		}
		return b.snooze(ctx, req, name, minutes)
	default:
		req.Log.Debug("unknown callback action", logx.String("action", action))
		return nil
	}
}

func (b *Bot) onText(ctx context.Context, req *Request) error {
	text := strings.TrimSpace(req.Update.Message.Text)
	if text == "" {
		return nil
	}

	ackName, isAck := parseAck(text)
	if isAck {
		if r, found := b.findByName(req.Owner, ackName); found {
			return b.acknowledge(ctx, req, r.Name)
		}
	}

	s := b.sess.get(req.Owner)
	switch s.step {
	case stepAwaitName:
		name := strings.Join(strings.Fields(text), " ")
		if len([]rune(name)) > reminder.MaxNameLen {
			return b.reply(ctx, req, "❗ That name is too long. Enter a shorter one:", nil)
		}
		b.sess.set(req.Owner, stepAwaitTime, name)
		return b.reply(ctx, req, b.timePrompt(), nil)
	case stepAwaitTime:
		tod, err := wallclock.ParseTimeOfDay(text)
		if err != nil {
			b.sess.set(req.Owner, stepAwaitTime, s.name)
			return b.reply(ctx, req, "❗ Use HH:MM, for example 08:30. "+b.timePrompt(), nil)
		}
		b.sess.clear(req.Owner)
		return b.create(ctx, req, s.name, tod)
	case stepAwaitDelete:
		b.sess.clear(req.Owner)
		return b.delete(ctx, req, text)
	}

	if isAck {
		return b.fail(ctx, req, ackName, reminder.ErrNotFound)
	}
	return nil
}

// findByName matches names case-insensitively, as users type them.
func (b *Bot) findByName(owner int64, name string) (reminder.Reminder, bool) {
	name = strings.Join(strings.Fields(name), " ")
	for _, r := range b.eng.List(owner) {
		if r.Name == name {
			return r, true
		}
	}
	for _, r := range b.eng.List(owner) {
		if strings.EqualFold(r.Name, name) {
			return r, true
		}
	}
	return reminder.Reminder{}, false
}

func (b *Bot) reply(ctx context.Context, req *Request, text string, markup any) error {
	_, err := b.ad.SendText(ctx, req.Chat, text, htmlOptions(markup))
	return err
}

// fail renders domain errors for the user; unexpected errors are returned for logging.
func (b *Bot) fail(ctx context.Context, req *Request, name string, err error) error {
	var text string
	switch {
	case errors.Is(err, reminder.ErrNotFound):
		text = "❌ Reminder " + tgui.B(name).String() + " not found."
	case errors.Is(err, reminder.ErrInvalidDelay):
		text = "❗ Snooze delay must be between 1 minute and 7 days."
	case errors.Is(err, reminder.ErrInvalidInput):
		text = "❗ " + tgui.Esc(err.Error()).String() + "\nUsage: " + tgui.Code("/add <name> HH:MM").String()
	default:
		_ = b.reply(ctx, req, "❗ Something went wrong, try again later.", mainMenu())
		return err
	}
	return b.reply(ctx, req, text, mainMenu())
}
