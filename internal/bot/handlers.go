package bot

import (
	"context"
	"strconv"
	"strings"

	"remindbot/internal/reminder"
	"remindbot/internal/wallclock"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

func (b *Bot) cmdStart(ctx context.Context, req *Request) error {
	b.sess.clear(req.Owner)
	return b.reply(ctx, req, textWelcome, mainMenu())
}

func (b *Bot) cmdHelp(ctx context.Context, req *Request) error {
	var sb strings.Builder
	sb.WriteString(tgui.B("Commands").String())
	for _, c := range b.commands {
		sb.WriteString("\n" + tgui.Code(c.usage).String() + " " + tgui.Esc(c.description).String())
	}
	sb.WriteString("\n\nReply " + tgui.Code("<name> taken").String() + " to mark a reminder as done for today.")
	return b.reply(ctx, req, sb.String(), nil)
}

// cmdAdd accepts "/add", "/add <name>" and "/add <name> HH:MM".
func (b *Bot) cmdAdd(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		return b.startAdd(ctx, req)
	}
	last := req.Args[len(req.Args)-1]
	if tod, err := wallclock.ParseTimeOfDay(last); err == nil {
		name := strings.Join(req.Args[:len(req.Args)-1], " ")
		if name == "" {
			return b.fail(ctx, req, "", reminder.ErrInvalidInput)
		}
		b.sess.clear(req.Owner)
		return b.create(ctx, req, name, tod)
	}
	b.sess.set(req.Owner, stepAwaitTime, strings.Join(req.Args, " "))
	return b.reply(ctx, req, b.timePrompt(), nil)
}

func (b *Bot) startAdd(ctx context.Context, req *Request) error {
	b.sess.set(req.Owner, stepAwaitName, "")
	return b.reply(ctx, req, "Enter the reminder name:", nil)
}

func (b *Bot) timePrompt() string {
	tz := b.config().Timezone
	if tz == "" {
		return "Enter the time as HH:MM:"
	}
	return "Enter the time as HH:MM (" + tgui.Esc(tz).String() + "):"
}

func (b *Bot) cmdList(ctx context.Context, req *Request) error {
	return b.reply(ctx, req, renderList(b.eng.List(req.Owner)), mainMenu())
}

func (b *Bot) cmdDelete(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		return b.showDeletePicker(ctx, req)
	}
	b.sess.clear(req.Owner)
	return b.delete(ctx, req, strings.Join(req.Args, " "))
}

// showDeletePicker lists one button per reminder; typing a name also works.
func (b *Bot) showDeletePicker(ctx context.Context, req *Request) error {
	list := b.eng.List(req.Owner)
	if len(list) == 0 {
		b.sess.clear(req.Owner)
		return b.reply(ctx, req, "You have no reminders to delete.", mainMenu())
	}
	kb := tgui.NewInline()
	for _, r := range list {
		data, err := tgui.Pack(b.tokens, ns, "delpick", r.Name)
		if err != nil {
			req.Log.Warn("delete button skipped", logx.Reminder(r.Name), logx.Err(err))
			continue
		}
		kb.Row(tgui.Btn(r.Name+" at "+r.Time.String(), data))
	}
	kb.Row(tgui.Btn("Cancel", tgui.Data(ns, "cancel", "")))
	b.sess.set(req.Owner, stepAwaitDelete, "")
	return b.reply(ctx, req, "Choose a reminder to delete:", kb.Markup())
}

func (b *Bot) cmdCancel(ctx context.Context, req *Request) error {
	b.sess.clear(req.Owner)
	return b.reply(ctx, req, "Cancelled.", mainMenu())
}

func (b *Bot) create(ctx context.Context, req *Request, name string, tod wallclock.TimeOfDay) error {
	r, err := b.eng.Create(ctx, req.Owner, name, tod)
	if err != nil {
		return b.fail(ctx, req, name, err)
	}
	req.Log.Info("reminder created", logx.Reminder(r.Name), logx.String("time", r.Time.String()))
	return b.reply(ctx, req, "✅ Reminder "+tgui.B(r.Name).String()+" set for "+tgui.Esc(b.withZone(r.Time.String())).String()+".", mainMenu())
}

func (b *Bot) withZone(hhmm string) string {
	if tz := b.config().Timezone; tz != "" {
		return hhmm + " " + tz
	}
	return hhmm
}

func (b *Bot) delete(ctx context.Context, req *Request, name string) error {
	if r, ok := b.findByName(req.Owner, name); ok {
		name = r.Name
	}
	if _, err := b.eng.Delete(ctx, req.Owner, name); err != nil {
		return b.fail(ctx, req, name, err)
	}
	req.Log.Info("reminder deleted", logx.Reminder(name))
	return b.reply(ctx, req, "🗑 Reminder "+tgui.B(name).String()+" deleted.", mainMenu())
}

func (b *Bot) acknowledge(ctx context.Context, req *Request, name string) error {
	r, err := b.eng.Acknowledge(ctx, req.Owner, name)
	if err != nil {
		return b.fail(ctx, req, name, err)
	}
	req.Log.Info("reminder acknowledged", logx.Reminder(r.Name))
	req.Toast = "✅ " + tgui.TruncRunes(r.Name, 40)
	text := "✅ Great! Marked " + tgui.B(r.Name).String() + " as taken. Next reminder tomorrow at " +
		tgui.Esc(b.withZone(r.Time.String())).String() + "."
	return b.reply(ctx, req, text, mainMenu())
}

func (b *Bot) snooze(ctx context.Context, req *Request, name, rawMinutes string) error {
	minutes, err := strconv.Atoi(rawMinutes)
	if err != nil {
		return b.fail(ctx, req, name, reminder.ErrInvalidDelay)
	}
	at, err := b.eng.Snooze(ctx, req.Owner, name, minutes)
	if err != nil {
		return b.fail(ctx, req, name, err)
	}
	req.Log.Info("reminder snoozed", logx.Reminder(name), logx.Int("minutes", minutes))
	req.Toast = "⏰ +" + formatDelay(minutes)
	text := "⏰ Reminder " + tgui.B(name).String() + " snoozed for " + formatDelay(minutes) +
		" (until " + at.Format("15:04") + ")."
	return b.reply(ctx, req, text, mainMenu())
}

// SendReminder renders a due reminder with its acknowledge and snooze buttons.
func (b *Bot) SendReminder(ctx context.Context, r reminder.Reminder, d reminder.Delivery) error {
	markup, err := b.reminderMarkup(r.Name)
	if err != nil {
		return err
	}
	text := "⏰ Reminder: time to take " + tgui.B(r.Name).String() + "!"
	if d.Snooze {
		text = "⏰ Snoozed reminder: time to take " + tgui.B(r.Name).String() + "!"
	}
	_, err = b.ad.SendText(ctx, chatOf(r.Owner), text, htmlOptions(markup))
	return err
}
