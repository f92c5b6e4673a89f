// Package notifier delivers due reminders to the user.
//
// Workers consume the engine's delivery channel, look the reminder up again
// (absent or acknowledged reminders are skipped) and hand it to a Sender
// without holding any engine lock. Failed sends are logged and dropped: the
// next primary firing is the retry.
package notifier
