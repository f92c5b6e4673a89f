// Package transport is the chat-platform contract the bot is written
// against. Platform adapters live in subpackages.
package transport

import (
	"context"
	"errors"
)

// ErrUnreachable marks sends that cannot succeed until the user acts
// (bot blocked, chat deleted, account deactivated).
var ErrUnreachable = errors.New("transport: chat unreachable")

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

// Update is one inbound event. Exactly one of Message and Callback is set,
// matching Kind.
type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

// Target returns the chat the update came from.
func (u Update) Target() (ChatTarget, bool) {
	switch {
	case u.Kind == UpdateMessage && u.Message != nil:
		return ChatTarget{ChatID: u.Message.ChatID, ThreadID: u.Message.ThreadID}, true
	case u.Kind == UpdateCallback && u.Callback != nil:
		return ChatTarget{ChatID: u.Callback.ChatID, ThreadID: u.Callback.ThreadID}, true
	}
	return ChatTarget{}, false
}

// Sender returns the user id behind the update, or 0.
func (u Update) Sender() int64 {
	switch {
	case u.Message != nil:
		return u.Message.FromID
	case u.Callback != nil:
		return u.Callback.FromID
	}
	return 0
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic, 0 if none
	FromID       int64
	FromUsername string
	Text         string
}

// Callback is an inline button press on one of the bot's messages.
type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

// ChatTarget addresses a chat, optionally a forum topic inside it.
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// MessageRef identifies a sent message for later edits.
type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

func (r MessageRef) Target() ChatTarget { return ChatTarget{ChatID: r.ChatID, ThreadID: r.ThreadID} }

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// ReplyMarkup is adapter-specific (Telegram: *telebot.ReplyMarkup).
	ReplyMarkup any
}

// Adapter connects the bot to one chat platform. Start pushes updates into
// out until ctx is done or Stop is called.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// BotCommand is one entry of the platform command menu.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters that can publish a command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
