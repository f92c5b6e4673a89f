package wallclock

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want TimeOfDay
		ok   bool
	}{
		{in: "08:30", want: TimeOfDay{8, 30}, ok: true},
		{in: "8:05", want: TimeOfDay{8, 5}, ok: true},
		{in: " 23:59 ", want: TimeOfDay{23, 59}, ok: true},
		{in: "00:00", want: TimeOfDay{0, 0}, ok: true},
		{in: "24:00"},
		{in: "12:60"},
		{in: "12:5"},
		{in: "123:00"},
		{in: "-1:00"},
		{in: "ab:cd"},
		{in: "0830"},
		{in: ""},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tc.in)
			if !tc.ok {
				if !errors.Is(err, ErrInvalidTime) {
					t.Fatalf("expected ErrInvalidTime, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestTimeOfDayText(t *testing.T) {
	t.Parallel()

	var v TimeOfDay
	if err := v.UnmarshalText([]byte("7:15")); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	b, _ := v.MarshalText()
	if string(b) != "07:15" {
		t.Fatalf("got %q", b)
	}
}

func TestNextOccurrence(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	tod := MustParse("08:30")

	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before", time.Date(2024, 3, 1, 8, 0, 0, 0, loc), time.Date(2024, 3, 1, 8, 30, 0, 0, loc)},
		{"exact", time.Date(2024, 3, 1, 8, 30, 0, 0, loc), time.Date(2024, 3, 1, 8, 30, 0, 0, loc)},
		{"after", time.Date(2024, 3, 1, 8, 31, 0, 0, loc), time.Date(2024, 3, 2, 8, 30, 0, 0, loc)},
		{"month end", time.Date(2024, 2, 29, 23, 0, 0, 0, loc), time.Date(2024, 3, 1, 8, 30, 0, 0, loc)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NextOccurrence(tc.now, tod); !got.Equal(tc.want) {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestNextDayOccurrenceIgnoresTodaysFiring(t *testing.T) {
	t.Parallel()

	tod := MustParse("08:30")
	for _, hour := range []int{0, 7, 9, 23} {
		now := time.Date(2024, 12, 31, hour, 0, 0, 0, time.UTC)
		want := time.Date(2025, 1, 1, 8, 30, 0, 0, time.UTC)
		if got := NextDayOccurrence(now, tod); !got.Equal(want) {
			t.Fatalf("hour=%d got %v want %v", hour, got, want)
		}
	}
}

func TestServiceUsesLocation(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+3", 3*3600)
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 5, 1, 5, 0, 0, 0, time.UTC)) // 08:00 local
	s := New(mock, loc)

	if got := s.Now().Hour(); got != 8 {
		t.Fatalf("local hour=%d want 8", got)
	}
	want := time.Date(2024, 5, 1, 8, 30, 0, 0, loc)
	if got := s.Next(MustParse("08:30")); !got.Equal(want) {
		t.Fatalf("Next=%v want %v", got, want)
	}
	want = time.Date(2024, 5, 2, 8, 30, 0, 0, loc)
	if got := s.NextDay(MustParse("08:30")); !got.Equal(want) {
		t.Fatalf("NextDay=%v want %v", got, want)
	}
}
