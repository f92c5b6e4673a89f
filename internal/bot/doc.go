// Package bot is the chat front-end: commands, inline menus, the per-chat
// add/delete conversation and the reminder message itself.
//
// Reminders are owned by the chat they were created in, so a group shares
// its reminders and a private chat keeps its own.
package bot
