package bot

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	"remindbot/pkg/tgui"
)

const (
	textWelcome = "Hi! I will remind you to take your vitamins 💊\n\nChoose an action below:"
	textExpired = "⌛ This button has expired. Open the menu again."
)

func chatOf(owner int64) kit.ChatTarget { return kit.ChatTarget{ChatID: owner} }

func htmlOptions(markup any) *kit.SendOptions {
	return &kit.SendOptions{ParseMode: "HTML", DisablePreview: true, ReplyMarkup: markup}
}

func mainMenu() *tele.ReplyMarkup {
	return tgui.NewInline().
		Row(tgui.Btn("➕ Add", tgui.Data(ns, "add", ""))).
		Row(tgui.Btn("📋 List", tgui.Data(ns, "list", ""))).
		Row(tgui.Btn("🗑 Delete", tgui.Data(ns, "del", ""))).
		Markup()
}

func (b *Bot) reminderMarkup(name string) (*tele.ReplyMarkup, error) {
	ack, err := tgui.Pack(b.tokens, ns, "ack", name)
	if err != nil {
		return nil, err
	}
	// One token for the name keeps every snooze button under the size limit.
	ref := name
	if _, _, payload, _ := tgui.Parse(ack); tgui.IsToken(payload) {
		ref = payload
	}
	snoozes := make([]tele.Btn, 0, len(b.config().SnoozeOptions))
	for _, m := range b.config().SnoozeOptions {
		data, err := tgui.Pack(b.tokens, ns, "snooze", strconv.Itoa(m)+":"+ref)
		if err != nil {
			return nil, err
		}
		snoozes = append(snoozes, tgui.Btn("⏰ "+formatDelay(m), data))
	}
	return tgui.NewInline().
		Row(tgui.Btn("✅ Taken", ack)).
		Row(snoozes...).
		Markup(), nil
}

func renderList(list []reminder.Reminder) string {
	if len(list) == 0 {
		return "❌ You have no reminders yet."
	}
	var sb strings.Builder
	sb.WriteString("📋 Your reminders:")
	for _, r := range list {
		status := "⏳ waiting"
		if r.Acknowledged {
			status = "✅ taken"
		}
		sb.WriteString("\n• " + tgui.B(r.Name).String() + " at " + r.Time.String() + " - " + status)
		if !r.Next.IsZero() {
			sb.WriteString(", next " + r.Next.Format("02 Jan 15:04"))
		}
	}
	return sb.String()
}
