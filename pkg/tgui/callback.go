package tgui

import (
	"errors"
	"strings"
)

// MaxCallbackDataLen is Telegram's callback_data limit in bytes, counted
// over the whole "ns:action:payload" string.
const MaxCallbackDataLen = 64

var (
	ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")
	ErrTokenLikePayload    = errors.New("tgui: payload looks like a token")
)

// Data formats inline callback data as "ns:action:payload".
// Payload is kept as-is (no escaping).
func Data(ns, action, payload string) string {
	ns = strings.TrimSpace(ns)
	action = strings.TrimSpace(action)
	if payload == "" {
		return ns + ":" + action
	}
	return ns + ":" + action + ":" + payload
}

// Parse splits callback data produced by Data. The payload may itself contain ':'.
func Parse(data string) (ns, action, payload string, ok bool) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", false
	}
	if len(parts) == 3 {
		payload = parts[2]
	}
	return parts[0], parts[1], payload, true
}

// Pack returns callback data for payload. When the result would exceed
// MaxCallbackDataLen, or the payload itself reads as a token, the payload is
// kept in store and a token is sent instead.
func Pack(store *TokenStore, ns, action, payload string) (string, error) {
	tokenLike := IsToken(payload)
	if d := Data(ns, action, payload); len(d) <= MaxCallbackDataLen && !tokenLike {
		return d, nil
	}
	if store == nil {
		if tokenLike {
			return "", ErrTokenLikePayload
		}
		return "", ErrCallbackDataTooLong
	}
	d := Data(ns, action, store.PutString(payload))
	if len(d) > MaxCallbackDataLen {
		return "", ErrCallbackDataTooLong
	}
	return d, nil
}

// Unpack reverses Pack for a payload. Tokens that expired report ok=false.
func Unpack(store *TokenStore, payload string) (string, bool) {
	if !IsToken(payload) {
		return payload, true
	}
	if store == nil {
		return "", false
	}
	return store.GetString(payload)
}
