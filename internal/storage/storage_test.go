package storage

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	logx "remindbot/pkg/logx"
)

var sample = []Record{
	{OwnerID: 1, Name: "Magnesium", Time: "08:30"},
	{OwnerID: 1, Name: "Vitamin D", Time: "21:00", Acknowledged: true},
	{OwnerID: 42, Name: "iron|zinc_1", Time: "07:05"},
}

func sorted(in []Record) []Record {
	out := append([]Record(nil), in...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].OwnerID != out[j].OwnerID {
			return out[i].OwnerID < out[j].OwnerID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite", "memory"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "nested", "reminders.db")
			st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer st.Close()

			got, err := st.Load(ctx)
			if err != nil {
				t.Fatalf("Load empty: %v", err)
			}
			if len(got) != 0 {
				t.Fatalf("fresh store returned %v", got)
			}

			if err := st.Save(ctx, sample); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if err := st.Save(ctx, sample[:2]); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err = st.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if !reflect.DeepEqual(sorted(got), sorted(sample[:2])) {
				t.Fatalf("Load = %+v, want %+v", got, sample[:2])
			}
		})
	}
}

func TestFileMissingLoadsEmpty(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "none.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := st.Load(context.Background())
	if err != nil || len(got) != 0 {
		t.Fatalf("Load = %v, %v", got, err)
	}
}

func TestFileToleratesUnknownAndMissingFields(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "reminders.json")
	raw := `[{"owner_id": 7, "name": "fish oil", "time": "09:00", "color": "blue"}]`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	st, _ := Open(Config{Driver: "file", Path: path}, logx.Nop())
	got, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []Record{{OwnerID: 7, Name: "fish oil", Time: "09:00"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Load = %+v, want %+v", got, want)
	}
}

func TestFileCorruptIsAnError(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "reminders.json")
	if err := os.WriteFile(path, []byte(`[{"owner_id": 1,`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	st, _ := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if _, err := st.Load(context.Background()); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestFileSaveLeavesNoTempFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st, _ := Open(Config{Driver: "file", Path: filepath.Join(dir, "reminders.json")}, logx.Nop())
	for i := 0; i < 3; i++ {
		if err := st.Save(context.Background(), sample); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "reminders.json" {
		t.Fatalf("unexpected files: %v", entries)
	}
}

func TestFileSaveFailureKeepsPreviousSnapshot(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "reminders.json")
	st, _ := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err := st.Save(context.Background(), sample); err != nil {
		t.Fatalf("Save: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := st.Save(ctx, nil); err == nil {
		t.Fatalf("expected cancelled save to fail")
	}
	got, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != len(sample) {
		t.Fatalf("previous snapshot lost: %v", got)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
