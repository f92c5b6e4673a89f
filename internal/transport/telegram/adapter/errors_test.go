package adapter

import (
	"errors"
	"testing"

	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	if classify(nil) != nil {
		t.Fatalf("nil should stay nil")
	}
	for _, err := range []error{tele.ErrBlockedByUser, tele.ErrChatNotFound, tele.ErrUserIsDeactivated} {
		if got := classify(err); !errors.Is(got, kit.ErrUnreachable) {
			t.Fatalf("%v: not classified as unreachable: %v", err, got)
		}
	}
	other := errors.New("boom")
	if got := classify(other); got != other {
		t.Fatalf("unrelated error rewritten: %v", got)
	}
}
