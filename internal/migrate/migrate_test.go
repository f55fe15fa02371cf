package migrate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/tasknest/tasknest/internal/store"
	"github.com/tasknest/tasknest/internal/task"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	return st
}

func seed(t *testing.T, st *store.Store) (*task.Task, *task.Task, *task.Group) {
	t.Helper()
	ctx := context.Background()

	live := task.New("user-1", "Water plants")
	live.Priority = task.PriorityHigh
	dead := task.New("user-1", "Old chore")
	dead.MarkDeleted()
	g := task.NewGroup("user-1", "Garden", "home", 3)
	g.AddTask(live.ID)

	for _, tk := range []*task.Task{live, dead} {
		if err := st.UpsertTask(ctx, tk); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.UpsertGroup(ctx, g); err != nil {
		t.Fatal(err)
	}
	return live, dead, g
}

func TestExportImportRoundTrip(t *testing.T) {
	for _, ext := range []string{"jsonl", "yaml"} {
		t.Run(ext, func(t *testing.T) {
			ctx := context.Background()
			src := setupTestStore(t)
			live, dead, g := seed(t, src)

			path := filepath.Join(t.TempDir(), "archive."+ext)
			res, err := Export(ctx, src, "user-1", path, Options{IncludeDeleted: true})
			if err != nil {
				t.Fatalf("Export failed: %v", err)
			}
			if res.Tasks != 2 || res.Groups != 1 {
				t.Fatalf("export counted tasks=%d groups=%d", res.Tasks, res.Groups)
			}

			dst := setupTestStore(t)
			res, err = Import(ctx, dst, "user-2", path)
			if err != nil {
				t.Fatalf("Import failed: %v", err)
			}
			if res.Tasks != 2 || res.Groups != 1 || res.Skipped != 0 {
				t.Fatalf("import counted tasks=%d groups=%d skipped=%d", res.Tasks, res.Groups, res.Skipped)
			}

			// Records are re-owned on import.
			got, err := dst.GetTask(ctx, "user-2", live.ID)
			if err != nil {
				t.Fatalf("imported task missing: %v", err)
			}
			if got.Title != "Water plants" || got.Priority != task.PriorityHigh {
				t.Errorf("task fields lost: %+v", got)
			}

			tomb, err := dst.GetTask(ctx, "user-2", dead.ID)
			if err != nil {
				t.Fatalf("imported tombstone missing: %v", err)
			}
			if !tomb.Deleted {
				t.Error("tombstone flag lost in round trip")
			}

			gotG, err := dst.GetGroup(ctx, "user-2", g.ID)
			if err != nil {
				t.Fatalf("imported group missing: %v", err)
			}
			if len(gotG.TaskIDs) != 1 || gotG.TaskIDs[0] != live.ID {
				t.Errorf("group members lost: %v", gotG.TaskIDs)
			}
		})
	}
}

func TestExportExcludesTombstonesByDefault(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t)
	seed(t, st)

	path := filepath.Join(t.TempDir(), "archive.jsonl")
	res, err := Export(ctx, st, "user-1", path, Options{})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if res.Tasks != 1 {
		t.Errorf("exported %d tasks, want 1 live task", res.Tasks)
	}
}

func TestImportSkipsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t)

	path := filepath.Join(t.TempDir(), "archive.jsonl")
	content := `{"kind":"task","task":{"id":"t-ok","title":"Fine"}}
{"kind":"task","task":{"id":"t-bad","title":""}}
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	res, err := Import(ctx, st, "user-1", path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if res.Tasks != 1 || res.Skipped != 1 {
		t.Errorf("tasks=%d skipped=%d, want 1/1", res.Tasks, res.Skipped)
	}
	if len(res.Errors) != 1 {
		t.Errorf("expected one collected error, got %v", res.Errors)
	}
}

func TestFormatForPath(t *testing.T) {
	if _, err := FormatForPath("data.csv"); err == nil {
		t.Error("expected an error for unsupported extension")
	}
	if f, _ := FormatForPath("data.yml"); f != FormatYAML {
		t.Errorf("yml mapped to %s", f)
	}
	if f, _ := FormatForPath("data.ndjson"); f != FormatJSONL {
		t.Errorf("ndjson mapped to %s", f)
	}
}
