package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tasknest/tasknest/internal/task"
	"github.com/tasknest/tasknest/internal/ui"
)

var (
	groupCategory string
	groupDays     int
)

var groupCmd = &cobra.Command{
	Use:     "group",
	GroupID: "tasks",
	Short:   "Manage task groups",
	Long: `Group related tasks into a unit worked on together.

Tasks assigned to a group leave the main list and are shown under the
group instead.`,
}

var groupAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a group",
	Args:  cobra.MinimumNArgs(1),
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

		g := task.NewGroup(id.ID, strings.Join(args, " "), groupCategory, groupDays)
		if err := g.Validate(); err != nil {
			fail(err)
		}
		if err := e.store.UpsertGroup(ctx, g); err != nil {
			fail(err)
		}
		fmt.Printf("%s Added group %s %s\n", ui.RenderPass("✓"), ui.RenderDim(shortID(g.ID)), g.Title)
	},
}

var groupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List groups and their tasks",
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

		groups, err := e.store.VisibleGroups(ctx, id.ID)
		if err != nil {
			fail(err)
		}
		if len(groups) == 0 {
			fmt.Println(ui.RenderDim("No groups."))
			return
		}

		for _, g := range groups {
			fmt.Printf("%s %s %s\n", ui.RenderDim(shortID(g.ID)), ui.RenderTitle(g.Title),
				ui.RenderDim(fmt.Sprintf("(%d tasks)", len(g.TaskIDs))))
			for _, taskID := range g.TaskIDs {
				t, err := e.store.GetTask(ctx, id.ID, taskID)
				if err != nil || t.Deleted {
					continue
				}
				fmt.Printf("   %s\n", ui.TaskLine(t))
			}
		}
	},
}

var groupAssignCmd = &cobra.Command{
	Use:   "assign <group-id> <task-id>",
	Short: "Move a task into a group",
	Args:  cobra.ExactArgs(2),
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

		g, err := findGroup(ctx, e, id.ID, args[0])
		if err != nil {
			fail(err)
		}
		t, err := findTask(ctx, e, id.ID, args[1])
		if err != nil {
			fail(err)
		}

		if !g.AddTask(t.ID) {
			fmt.Printf("%s already in %s\n", t.Title, g.Title)
			return
		}
		t.InGroup = true
		t.Touch()

		if err := e.store.UpsertTask(ctx, t); err != nil {
			fail(err)
		}
		if err := e.store.UpsertGroup(ctx, g); err != nil {
			fail(err)
		}
		fmt.Printf("%s Moved %q into %q\n", ui.RenderPass("✓"), t.Title, g.Title)
	},
}

var groupRmCmd = &cobra.Command{
	Use:   "rm <group-id>",
	Short: "Delete a group",
	Args:  cobra.ExactArgs(1),
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

		g, err := findGroup(ctx, e, id.ID, args[0])
		if err != nil {
			fail(err)
		}

		// Member tasks return to the main list.
		for _, taskID := range g.TaskIDs {
			t, err := e.store.GetTask(ctx, id.ID, taskID)
			if err != nil {
				continue
			}
			t.InGroup = false
			t.Touch()
			if err := e.store.UpsertTask(ctx, t); err != nil {
				fail(err)
			}
		}
		if err := e.store.SoftDeleteGroup(ctx, id.ID, g.ID); err != nil {
			fail(err)
		}
		fmt.Printf("%s Deleted group: %s\n", ui.RenderPass("✓"), g.Title)
	},
}

func findGroup(ctx context.Context, e *env, ownerID, prefix string) (*task.Group, error) {
	groups, err := e.store.AllGroups(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	var match *task.Group
	for _, g := range groups {
		if g.Deleted || !strings.HasPrefix(g.ID, prefix) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("id %q is ambiguous", prefix)
		}
		match = g
	}
	if match == nil {
		return nil, fmt.Errorf("no group matches %q", prefix)
	}
	return match, nil
}

func init() {
	groupAddCmd.Flags().StringVar(&groupCategory, "category", "", "group category")
	groupAddCmd.Flags().IntVar(&groupDays, "days", 0, "estimated days to finish")
	groupCmd.AddCommand(groupAddCmd, groupListCmd, groupAssignCmd, groupRmCmd)
}
