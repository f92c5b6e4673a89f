package tgui

import (
	"strings"
	"testing"
	"time"
)

func TestDataAndParse(t *testing.T) {
	t.Parallel()
	cases := []struct {
		ns, action, payload string
		want                string
	}{
		{"rem", "list", "", "rem:list"},
		{"rem", "ack", "pill", "rem:ack:pill"},
		{"rem", "snooze", "15:pill", "rem:snooze:15:pill"},
	}
	for _, tc := range cases {
		got := Data(tc.ns, tc.action, tc.payload)
		if got != tc.want {
			t.Fatalf("Data=%q want %q", got, tc.want)
		}
		ns, action, payload, ok := Parse(got)
		if !ok || ns != tc.ns || action != tc.action || payload != tc.payload {
			t.Fatalf("Parse(%q)=%q,%q,%q,%v", got, ns, action, payload, ok)
		}
	}
	if _, _, _, ok := Parse("nocolon"); ok {
		t.Fatalf("Parse accepted data without action")
	}
}

func TestPackUsesTokenForLongPayload(t *testing.T) {
	t.Parallel()
	store := NewTokenStore()

	short, err := Pack(store, "rem", "ack", "pill")
	if err != nil || short != "rem:ack:pill" {
		t.Fatalf("short=%q err=%v", short, err)
	}

	long := strings.Repeat("витамин ", 10)
	d, err := Pack(store, "rem", "ack", long)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if len(d) > MaxCallbackDataLen {
		t.Fatalf("data too long: %d", len(d))
	}
	_, _, payload, _ := Parse(d)
	if !IsToken(payload) {
		t.Fatalf("payload %q is not a token", payload)
	}
	got, ok := Unpack(store, payload)
	if !ok || got != long {
		t.Fatalf("Unpack=%q,%v", got, ok)
	}

	if _, err := Pack(nil, "rem", "ack", long); err != ErrCallbackDataTooLong {
		t.Fatalf("Pack without store err=%v", err)
	}
	tilde, err := Pack(store, "rem", "ack", "~zinc")
	if err != nil || tilde == "rem:ack:~zinc" {
		t.Fatalf("token-like payload sent raw: %q err=%v", tilde, err)
	}
	_, _, payload, _ = Parse(tilde)
	if got, ok := Unpack(store, payload); !ok || got != "~zinc" {
		t.Fatalf("Unpack=%q,%v", got, ok)
	}
	if _, err := Pack(nil, "rem", "ack", "~zinc"); err != ErrTokenLikePayload {
		t.Fatalf("Pack without store err=%v", err)
	}
}

func TestTokenStoreExpiry(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	store := NewTokenStore().WithTTL(time.Minute).WithNow(func() time.Time { return now })

	tok := store.PutString("x")
	if v, ok := store.GetString(tok); !ok || v != "x" {
		t.Fatalf("GetString=%q,%v", v, ok)
	}
	now = now.Add(2 * time.Minute)
	if _, ok := store.GetString(tok); ok {
		t.Fatalf("expired token still resolves")
	}
}

func TestTokenStoreMax(t *testing.T) {
	t.Parallel()
	store := NewTokenStore().WithMax(3)
	for i := 0; i < 10; i++ {
		store.PutString("v")
	}
	if n := store.Len(); n != 3 {
		t.Fatalf("Len=%d want 3", n)
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	if got := TruncRunes("привет", 3); got != "при…" {
		t.Fatalf("got %q", got)
	}
	if got := TruncRunes("abc", 3); got != "abc" {
		t.Fatalf("got %q", got)
	}
}

func TestEscapesHTML(t *testing.T) {
	t.Parallel()
	if got := B("<x>").String(); got != "<b>&lt;x&gt;</b>" {
		t.Fatalf("got %q", got)
	}
	if got := Code("a&b").String() + Esc(" 'q'").String(); got != "<code>a&amp;b</code> &#39;q&#39;" {
		t.Fatalf("got %q", got)
	}
}
