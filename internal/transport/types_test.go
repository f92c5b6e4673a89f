package transport

import "testing"

func TestUpdateTargetAndSender(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		up     Update
		target ChatTarget
		ok     bool
		sender int64
	}{
		{
			name:   "message",
			up:     Update{Kind: UpdateMessage, Message: &Message{ChatID: 10, ThreadID: 3, FromID: 7}},
			target: ChatTarget{ChatID: 10, ThreadID: 3}, ok: true, sender: 7,
		},
		{
			name:   "callback",
			up:     Update{Kind: UpdateCallback, Callback: &Callback{ChatID: -100, FromID: 8}},
			target: ChatTarget{ChatID: -100}, ok: true, sender: 8,
		},
		{
			name: "kind without payload",
			up:   Update{Kind: UpdateCallback},
		},
		{
			name:   "kind mismatch",
			up:     Update{Kind: UpdateCallback, Message: &Message{ChatID: 1, FromID: 2}},
			sender: 2,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := tc.up.Target()
			if ok != tc.ok || got != tc.target {
				t.Fatalf("Target()=%+v,%v want %+v,%v", got, ok, tc.target, tc.ok)
			}
			if s := tc.up.Sender(); s != tc.sender {
				t.Fatalf("Sender()=%d want %d", s, tc.sender)
			}
		})
	}

	ref := MessageRef{ChatID: 5, ThreadID: 2, MessageID: 9}
	if ref.Target() != (ChatTarget{ChatID: 5, ThreadID: 2}) {
		t.Fatalf("MessageRef.Target()=%+v", ref.Target())
	}
}
