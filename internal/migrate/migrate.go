// Package migrate moves task data in and out of the local database as
// portable JSONL or YAML archives.
package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tasknest/tasknest/internal/store"
	"github.com/tasknest/tasknest/internal/task"
)

// Format selects the archive encoding.
type Format string

const (
	// FormatJSONL writes one record per line, tasks then groups.
	FormatJSONL Format = "jsonl"
	// FormatYAML writes a single document with tasks and groups lists.
	FormatYAML Format = "yaml"
)

// FormatForPath infers the archive format from a file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("cannot infer format from %q; use .jsonl or .yaml", path)
	}
}

// record is one JSONL line. Exactly one of Task or Group is set.
type record struct {
	Kind  string      `json:"kind"`
	Task  *task.Task  `json:"task,omitempty"`
	Group *task.Group `json:"group,omitempty"`
}

// archive is the YAML document shape.
type archive struct {
	Tasks  []*task.Task  `yaml:"tasks"`
	Groups []*task.Group `yaml:"groups"`
}

// Options configures an export or import run.
type Options struct {
	// IncludeDeleted carries tombstones through an export.
	IncludeDeleted bool
}

// Result summarizes a completed run. Per-record failures are collected
// rather than aborting the batch.
type Result struct {
	Tasks   int
	Groups  int
	Skipped int
	Errors  []string
}

// Export writes the owner's records from st to path.
func Export(ctx context.Context, st *store.Store, ownerID, path string, opts Options) (*Result, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}

	tasks, err := st.AllTasks(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks: %w", err)
	}
	groups, err := st.AllGroups(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to read groups: %w", err)
	}

	res := &Result{}
	if !opts.IncludeDeleted {
		tasks = liveTasks(tasks)
		groups = liveGroups(groups)
	}
	res.Tasks = len(tasks)
	res.Groups = len(groups)

	var data []byte
	switch format {
	case FormatJSONL:
		data, err = encodeJSONL(tasks, groups)
	case FormatYAML:
		data, err = yaml.Marshal(&archive{Tasks: tasks, Groups: groups})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode archive: %w", err)
	}

	if err := writeAtomic(path, data); err != nil {
		return nil, err
	}
	return res, nil
}

// Import reads an archive from path and upserts every valid record into
// st under ownerID. Records are re-owned on the way in; invalid ones
// are skipped and reported in the result.
func Import(ctx context.Context, st *store.Store, ownerID, path string) (*Result, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}

	// #nosec G304 - controlled path from CLI
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}

	var tasks []*task.Task
	var groups []*task.Group
	switch format {
	case FormatJSONL:
		tasks, groups, err = decodeJSONL(data)
	case FormatYAML:
		var a archive
		if err = yaml.Unmarshal(data, &a); err == nil {
			tasks, groups = a.Tasks, a.Groups
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode archive: %w", err)
	}

	res := &Result{}
	for _, t := range tasks {
		t.OwnerID = ownerID
		t.SetDefaults()
		if err := t.Validate(); err != nil {
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Sprintf("task %s: %v", t.ID, err))
			continue
		}
		if err := st.UpsertTask(ctx, t); err != nil {
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Sprintf("task %s: %v", t.ID, err))
			continue
		}
		res.Tasks++
	}
	for _, g := range groups {
		g.OwnerID = ownerID
		if err := g.Validate(); err != nil {
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Sprintf("group %s: %v", g.ID, err))
			continue
		}
		if err := st.UpsertGroup(ctx, g); err != nil {
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Sprintf("group %s: %v", g.ID, err))
			continue
		}
		res.Groups++
	}
	return res, nil
}

func encodeJSONL(tasks []*task.Task, groups []*task.Group) ([]byte, error) {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	for _, t := range tasks {
		if err := enc.Encode(&record{Kind: "task", Task: t}); err != nil {
			return nil, err
		}
	}
	for _, g := range groups {
		if err := enc.Encode(&record{Kind: "group", Group: g}); err != nil {
			return nil, err
		}
	}
	return []byte(b.String()), nil
}

func decodeJSONL(data []byte) ([]*task.Task, []*task.Group, error) {
	var tasks []*task.Task
	var groups []*task.Group

	dec := json.NewDecoder(strings.NewReader(string(data)))
	line := 0
	for {
		var rec record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, nil, fmt.Errorf("invalid JSON at record %d: %w", line+1, err)
		}
		line++

		switch rec.Kind {
		case "task":
			if rec.Task != nil {
				tasks = append(tasks, rec.Task)
			}
		case "group":
			if rec.Group != nil {
				groups = append(groups, rec.Group)
			}
		default:
			return nil, nil, fmt.Errorf("unknown record kind %q at record %d", rec.Kind, line)
		}
	}
	return tasks, groups, nil
}

// writeAtomic writes data to path via a temp file and rename.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func liveTasks(in []*task.Task) []*task.Task {
	out := in[:0]
	for _, t := range in {
		if !t.Deleted {
			out = append(out, t)
		}
	}
	return out
}

func liveGroups(in []*task.Group) []*task.Group {
	out := in[:0]
	for _, g := range in {
		if !g.Deleted {
			out = append(out, g)
		}
	}
	return out
}
