package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/tasknest/tasknest/internal/task"
	"github.com/tasknest/tasknest/internal/ui"
)

var (
	addDue      string
	addPlace    string
	addCategory string
	addPriority string
	addPoints   int
	addFocus    int
	addBreak    int

	listAll bool
)

var addCmd = &cobra.Command{
	Use:     "add <title>",
	GroupID: "tasks",
	Short:   "Create a task",
	Long: `Create a task in the local database.

The --due flag accepts natural language ("tomorrow at 9am", "next
friday") as well as plain dates.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			fail(err)
		}
		defer e.Close()

		id, err := e.identity(ctx)
		if err != nil {
			fail(err)
		}

		t := task.New(id.ID, strings.Join(args, " "))
		t.Place = addPlace
		t.Category = addCategory
		t.Points = addPoints
		if addPriority != "" {
			t.Priority = task.Priority(addPriority)
		}
		if addFocus > 0 {
			t.Focus = &task.FocusSettings{FocusMinutes: addFocus, BreakMinutes: addBreak}
		}
		if addDue != "" {
			due, err := parseDue(addDue)
			if err != nil {
				fail(err)
			}
			t.DueAt = due.UnixMilli()
		}
		if err := t.Validate(); err != nil {
			fail(err)
		}

		if err := e.store.UpsertTask(ctx, t); err != nil {
			fail(err)
		}
		fmt.Printf("%s Added %s %s\n", ui.RenderPass("✓"), ui.RenderDim(shortID(t.ID)), t.Title)
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "tasks",
	Short:   "List tasks",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			fail(err)
		}
		defer e.Close()

		id, err := e.identity(ctx)
		if err != nil {
			fail(err)
		}

		tasks, err := e.store.VisibleTasks(ctx, id.ID)
		if err != nil {
			fail(err)
		}

		shown := 0
		for _, t := range tasks {
			if t.Completed && !listAll {
				continue
			}
			fmt.Printf("%s %s\n", ui.RenderDim(shortID(t.ID)), ui.TaskLine(t))
			if t.DueAt > 0 {
				fmt.Printf("         %s\n", ui.RenderDim("due "+time.UnixMilli(t.DueAt).Format("Mon Jan 2 15:04")))
			}
			shown++
		}
		if shown == 0 {
			fmt.Println(ui.RenderDim("No tasks. Add one with 'tn add'."))
		}
	},
}

var doneCmd = &cobra.Command{
	Use:     "done <id>",
	GroupID: "tasks",
	Short:   "Mark a task complete",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			fail(err)
		}
		defer e.Close()

		id, err := e.identity(ctx)
		if err != nil {
			fail(err)
		}

		t, err := findTask(ctx, e, id.ID, args[0])
		if err != nil {
			fail(err)
		}
		t.Completed = true
		t.Touch()
		if err := e.store.UpsertTask(ctx, t); err != nil {
			fail(err)
		}
		fmt.Printf("%s Done: %s\n", ui.RenderPass("✓"), t.Title)
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <id>",
	GroupID: "tasks",
	Short:   "Delete a task",
	Long: `Delete a task.

Deletion is a tombstone, not a hard remove: it propagates to every
synced device on the next sync.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			fail(err)
		}
		defer e.Close()

		id, err := e.identity(ctx)
		if err != nil {
			fail(err)
		}

		t, err := findTask(ctx, e, id.ID, args[0])
		if err != nil {
			fail(err)
		}
		if err := e.store.SoftDeleteTask(ctx, id.ID, t.ID); err != nil {
			fail(err)
		}
		fmt.Printf("%s Deleted: %s\n", ui.RenderPass("✓"), t.Title)
	},
}

// findTask resolves a task by id prefix among the owner's records.
func findTask(ctx context.Context, e *env, ownerID, prefix string) (*task.Task, error) {
	tasks, err := e.store.AllTasks(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	var match *task.Task
	for _, t := range tasks {
		if t.Deleted || !strings.HasPrefix(t.ID, prefix) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("id %q is ambiguous", prefix)
		}
		match = t
	}
	if match == nil {
		return nil, fmt.Errorf("no task matches %q", prefix)
	}
	return match, nil
}

// parseDue parses a natural-language or literal due date.
func parseDue(s string) (time.Time, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(s, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse due date %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not understand due date %q", s)
	}
	return r.Time, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	addCmd.Flags().StringVar(&addDue, "due", "", "due date (natural language accepted)")
	addCmd.Flags().StringVar(&addPlace, "place", "", "where the task happens")
	addCmd.Flags().StringVar(&addCategory, "category", "", "task category")
	addCmd.Flags().StringVar(&addPriority, "priority", "", "high, medium, or low")
	addCmd.Flags().IntVar(&addPoints, "points", 0, "reward points")
	addCmd.Flags().IntVar(&addFocus, "focus", 0, "focus timer minutes")
	addCmd.Flags().IntVar(&addBreak, "break", 0, "focus timer break minutes")

	listCmd.Flags().BoolVar(&listAll, "all", false, "include completed tasks")
}
