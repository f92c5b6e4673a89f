// Package tgui holds the Telegram UI helpers the bot renders with:
// inline keyboards, "ns:action:payload" callback data (with server-side
// tokens when a payload overflows the 64-byte limit) and HTML escaping.
package tgui
