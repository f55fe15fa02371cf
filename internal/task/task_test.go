package task

import (
	"testing"
)

func TestNewTaskDefaults(t *testing.T) {
	tk := New("user-1", "Buy milk")

	if tk.ID == "" {
		t.Error("expected generated ID")
	}
	if tk.Priority != PriorityMedium {
		t.Errorf("expected medium priority, got %q", tk.Priority)
	}
	if tk.UpdatedAt <= 0 {
		t.Error("expected UpdatedAt to be set")
	}
	if tk.Deleted {
		t.Error("new task must not be tombstoned")
	}
	if err := tk.Validate(); err != nil {
		t.Errorf("new task should validate: %v", err)
	}
}

func TestTaskValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Task)
		wantErr bool
	}{
		{"valid", func(tk *Task) {}, false},
		{"missing id", func(tk *Task) { tk.ID = "" }, true},
		{"missing owner", func(tk *Task) { tk.OwnerID = "" }, true},
		{"missing title", func(tk *Task) { tk.Title = "" }, true},
		{"bad priority", func(tk *Task) { tk.Priority = "urgent" }, true},
		{"zero updated_at", func(tk *Task) { tk.UpdatedAt = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := New("user-1", "Test")
			tt.mutate(tk)
			err := tk.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTouchStrictlyIncreases(t *testing.T) {
	tk := New("user-1", "Test")

	prev := tk.UpdatedAt
	for i := 0; i < 100; i++ {
		tk.Touch()
		if tk.UpdatedAt <= prev {
			t.Fatalf("UpdatedAt did not increase: %d -> %d", prev, tk.UpdatedAt)
		}
		prev = tk.UpdatedAt
	}
}

func TestMarkDeleted(t *testing.T) {
	tk := New("user-1", "Test")
	before := tk.UpdatedAt

	tk.MarkDeleted()

	if !tk.Deleted {
		t.Error("expected tombstone flag")
	}
	if tk.UpdatedAt <= before {
		t.Error("soft deletion must advance UpdatedAt")
	}
}

func TestGroupMembership(t *testing.T) {
	g := NewGroup("user-1", "Move house", "life", 7)

	if !g.AddTask("t1") {
		t.Error("first add should change membership")
	}
	before := g.UpdatedAt
	if g.AddTask("t1") {
		t.Error("duplicate add must be a no-op")
	}
	if g.UpdatedAt != before {
		t.Error("no-op add must not advance UpdatedAt")
	}

	if !g.AddTask("t2") {
		t.Error("second add should change membership")
	}
	if g.UpdatedAt <= before {
		t.Error("membership mutation must advance UpdatedAt")
	}

	if !g.RemoveTask("t1") {
		t.Error("remove of member should change membership")
	}
	if g.RemoveTask("t1") {
		t.Error("remove of absent member must be a no-op")
	}
	if len(g.TaskIDs) != 1 || g.TaskIDs[0] != "t2" {
		t.Errorf("unexpected members: %v", g.TaskIDs)
	}
}

func TestGroupValidateDuplicateMembers(t *testing.T) {
	g := NewGroup("user-1", "Trip", "travel", 3)
	g.TaskIDs = []string{"a", "b", "a"}

	if err := g.Validate(); err == nil {
		t.Error("expected duplicate member error")
	}
}
