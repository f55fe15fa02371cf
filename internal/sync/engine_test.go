package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	"reflect"
	"sync"
	"syscall"
	"testing"

	"github.com/tasknest/tasknest/internal/auth"
	"github.com/tasknest/tasknest/internal/task"
)

// fakeLocal is an in-memory LocalStore.
type fakeLocal struct {
	mu     sync.Mutex
	tasks  map[string]*task.Task
	groups map[string]*task.Group

	failTaskID string // UpsertTask fails for this id
}

func newFakeLocal() *fakeLocal {
	return &fakeLocal{
		tasks:  make(map[string]*task.Task),
		groups: make(map[string]*task.Group),
	}
}

func (f *fakeLocal) AllTasks(_ context.Context, ownerID string) ([]*task.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*task.Task
	for _, t := range f.tasks {
		if t.OwnerID == ownerID {
			out = append(out, cloneTask(t))
		}
	}
	return out, nil
}

func (f *fakeLocal) UpsertTask(_ context.Context, t *task.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID == f.failTaskID {
		return fmt.Errorf("disk full")
	}
	f.tasks[t.ID] = cloneTask(t)
	return nil
}

func (f *fakeLocal) AllGroups(_ context.Context, ownerID string) ([]*task.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*task.Group
	for _, g := range f.groups {
		if g.OwnerID == ownerID {
			out = append(out, cloneGroup(g))
		}
	}
	return out, nil
}

func (f *fakeLocal) UpsertGroup(_ context.Context, g *task.Group) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups[g.ID] = cloneGroup(g)
	return nil
}

func (f *fakeLocal) get(id string) *task.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneTask(f.tasks[id])
}

func (f *fakeLocal) snapshot() map[string]task.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]task.Task, len(f.tasks))
	for id, t := range f.tasks {
		out[id] = *t
	}
	return out
}

// fakeRemote is an in-memory RemoteStore with fault injection. Both
// document maps are keyed owner id, then record id.
type fakeRemote struct {
	mu     sync.Mutex
	tasks  map[string]map[string]*task.Task
	groups map[string]map[string]*task.Group

	putErr     error
	listErr    error
	failTaskID string // PutTask fails for this id with a non-network error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		tasks:  make(map[string]map[string]*task.Task),
		groups: make(map[string]map[string]*task.Group),
	}
}

func (f *fakeRemote) PutTask(_ context.Context, ownerID string, t *task.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	if t.ID == f.failTaskID {
		return fmt.Errorf("payload too large")
	}
	if f.tasks[ownerID] == nil {
		f.tasks[ownerID] = make(map[string]*task.Task)
	}
	f.tasks[ownerID][t.ID] = cloneTask(t)
	return nil
}

func (f *fakeRemote) ListTasks(_ context.Context, ownerID string) ([]*task.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*task.Task
	for _, t := range f.tasks[ownerID] {
		out = append(out, cloneTask(t))
	}
	return out, nil
}

func (f *fakeRemote) PutGroup(_ context.Context, ownerID string, g *task.Group) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	if f.groups[ownerID] == nil {
		f.groups[ownerID] = make(map[string]*task.Group)
	}
	f.groups[ownerID][g.ID] = cloneGroup(g)
	return nil
}

func (f *fakeRemote) ListGroups(_ context.Context, ownerID string) ([]*task.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*task.Group
	for _, g := range f.groups[ownerID] {
		out = append(out, cloneGroup(g))
	}
	return out, nil
}

func (f *fakeRemote) get(ownerID, id string) *task.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneTask(f.tasks[ownerID][id])
}

func (f *fakeRemote) snapshot(ownerID string) map[string]task.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]task.Task)
	for id, t := range f.tasks[ownerID] {
		out[id] = *t
	}
	return out
}

// fakeIdentity is an IdentitySource with a settable identity.
type fakeIdentity struct {
	mu    sync.Mutex
	ident *auth.Identity
}

func (f *fakeIdentity) Current() *auth.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ident
}

func cloneTask(t *task.Task) *task.Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.Focus != nil {
		fc := *t.Focus
		c.Focus = &fc
	}
	return &c
}

func cloneGroup(g *task.Group) *task.Group {
	if g == nil {
		return nil
	}
	c := *g
	c.TaskIDs = append([]string(nil), g.TaskIDs...)
	return &c
}

func newTestEngine(local *fakeLocal, rem *fakeRemote, ident *auth.Identity) *Engine {
	return New(local, rem, &fakeIdentity{ident: ident}, log.New(os.Stderr, "[test] ", 0))
}

func authed() *auth.Identity {
	return &auth.Identity{ID: "user-1", Email: "a@b.com"}
}

func TestRunWithoutIdentityIsNoOp(t *testing.T) {
	local := newFakeLocal()
	rem := newFakeRemote()
	local.tasks["t1"] = task.New("user-1", "Unsynced")

	e := newTestEngine(local, rem, nil)
	if res := e.Run(context.Background(), "user-1"); res != Success {
		t.Errorf("expected Success for unauthenticated run, got %v", res)
	}
	if len(rem.snapshot("user-1")) != 0 {
		t.Error("no uploads expected without an identity")
	}
}

func TestUploadIncludesTombstones(t *testing.T) {
	local := newFakeLocal()
	rem := newFakeRemote()

	live := task.New("user-1", "Keep")
	dead := task.New("user-1", "Drop")
	dead.MarkDeleted()
	local.tasks[live.ID] = live
	local.tasks[dead.ID] = dead

	e := newTestEngine(local, rem, authed())
	if res := e.Run(context.Background(), "user-1"); res != Success {
		t.Fatalf("Run failed: %v", res)
	}

	doc := rem.get("user-1", dead.ID)
	if doc == nil {
		t.Fatal("tombstoned record was not uploaded")
	}
	if !doc.Deleted {
		t.Error("remote document must carry the tombstone flag")
	}
}

func TestTwoDevicesConvergeOnDeletion(t *testing.T) {
	ctx := context.Background()
	rem := newFakeRemote()

	// Device A creates and syncs a record.
	localA := newFakeLocal()
	a := task.New("user-1", "Shared")
	localA.tasks[a.ID] = a
	engineA := newTestEngine(localA, rem, authed())
	if res := engineA.Run(ctx, "user-1"); res != Success {
		t.Fatalf("device A sync failed: %v", res)
	}

	// Device B pulls it down.
	localB := newFakeLocal()
	engineB := newTestEngine(localB, rem, authed())
	if res := engineB.Run(ctx, "user-1"); res != Success {
		t.Fatalf("device B sync failed: %v", res)
	}
	if got := localB.get(a.ID); got == nil || got.Deleted {
		t.Fatalf("device B should hold the live record, got %+v", got)
	}

	// Device A deletes while B is unaware.
	tomb := localA.get(a.ID)
	tomb.MarkDeleted()
	localA.tasks[tomb.ID] = tomb
	if res := engineA.Run(ctx, "user-1"); res != Success {
		t.Fatalf("device A tombstone sync failed: %v", res)
	}

	// Device B converges on its next run.
	if res := engineB.Run(ctx, "user-1"); res != Success {
		t.Fatalf("device B convergence sync failed: %v", res)
	}
	got := localB.get(a.ID)
	if got == nil || !got.Deleted {
		t.Errorf("device B did not converge to the tombstone: %+v", got)
	}
	if got.UpdatedAt != tomb.UpdatedAt {
		t.Errorf("overwrite must carry the winner's timestamp: %d != %d", got.UpdatedAt, tomb.UpdatedAt)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	local := newFakeLocal()
	rem := newFakeRemote()

	t1 := task.New("user-1", "One")
	t2 := task.New("user-1", "Two")
	t2.MarkDeleted()
	local.tasks[t1.ID] = t1
	local.tasks[t2.ID] = t2

	e := newTestEngine(local, rem, authed())
	if res := e.Run(ctx, "user-1"); res != Success {
		t.Fatalf("first run failed: %v", res)
	}

	localBefore := local.snapshot()
	remoteBefore := rem.snapshot("user-1")

	if res := e.Run(ctx, "user-1"); res != Success {
		t.Fatalf("second run failed: %v", res)
	}

	if !reflect.DeepEqual(localBefore, local.snapshot()) {
		t.Error("second run changed local state")
	}
	if !reflect.DeepEqual(remoteBefore, rem.snapshot("user-1")) {
		t.Error("second run changed remote state")
	}
}

func TestNetworkFailureDuringUploadYieldsRetry(t *testing.T) {
	local := newFakeLocal()
	rem := newFakeRemote()
	rem.putErr = syscall.ECONNREFUSED

	tk := task.New("user-1", "Stuck")
	local.tasks[tk.ID] = tk

	e := newTestEngine(local, rem, authed())
	if res := e.Run(context.Background(), "user-1"); res != Retry {
		t.Errorf("expected Retry on network failure, got %v", res)
	}
}

func TestNetworkFailureDuringDownloadYieldsRetry(t *testing.T) {
	local := newFakeLocal()
	rem := newFakeRemote()
	rem.listErr = syscall.ETIMEDOUT

	e := newTestEngine(local, rem, authed())
	if res := e.Run(context.Background(), "user-1"); res != Retry {
		t.Errorf("expected Retry on network failure, got %v", res)
	}
}

func TestRemoteIDAssignedOnFirstUploadOnly(t *testing.T) {
	ctx := context.Background()
	local := newFakeLocal()
	rem := newFakeRemote()

	tk := task.New("user-1", "Fresh")
	local.tasks[tk.ID] = tk

	e := newTestEngine(local, rem, authed())
	if res := e.Run(ctx, "user-1"); res != Success {
		t.Fatalf("Run failed: %v", res)
	}

	got := local.get(tk.ID)
	if got.RemoteID == "" {
		t.Fatal("remote id not assigned after first upload")
	}
	if got.UpdatedAt != tk.UpdatedAt {
		t.Error("remote id stamp must not advance the modification timestamp")
	}

	first := got.RemoteID
	if res := e.Run(ctx, "user-1"); res != Success {
		t.Fatalf("second Run failed: %v", res)
	}
	if local.get(tk.ID).RemoteID != first {
		t.Error("remote id must never change once assigned")
	}
}

func TestUploadedDocumentCarriesRemoteID(t *testing.T) {
	ctx := context.Background()
	local := newFakeLocal()
	rem := newFakeRemote()

	tk := task.New("user-1", "Fresh")
	local.tasks[tk.ID] = tk

	e := newTestEngine(local, rem, authed())
	if res := e.Run(ctx, "user-1"); res != Success {
		t.Fatalf("Run failed: %v", res)
	}

	doc := rem.get("user-1", tk.ID)
	if doc == nil || doc.RemoteID != tk.ID {
		t.Fatalf("remote document must carry the assigned identifier, got %+v", doc)
	}

	// A later pull of that document must not clear the local stamp.
	if res := e.Run(ctx, "user-1"); res != Success {
		t.Fatalf("second Run failed: %v", res)
	}
	if got := local.get(tk.ID); got.RemoteID != tk.ID {
		t.Errorf("local stamp lost after re-pull: %q", got.RemoteID)
	}
}

func TestStaleLocalCopyLosesToNewerTombstone(t *testing.T) {
	ctx := context.Background()
	local := newFakeLocal()
	rem := newFakeRemote()

	// The local copy is live but stale; the remote holds a newer
	// tombstone written by another device.
	stale := task.New("user-1", "Shared")
	tomb := cloneTask(stale)
	tomb.MarkDeleted()
	local.tasks[stale.ID] = stale
	rem.tasks["user-1"] = map[string]*task.Task{tomb.ID: tomb}

	e := newTestEngine(local, rem, authed())
	if res := e.Run(ctx, "user-1"); res != Success {
		t.Fatalf("Run failed: %v", res)
	}

	got := local.get(stale.ID)
	if got == nil || !got.Deleted {
		t.Fatalf("stale live copy must lose to the newer tombstone: %+v", got)
	}
	if got.UpdatedAt != tomb.UpdatedAt {
		t.Errorf("loser must take the winner's timestamp: %d != %d", got.UpdatedAt, tomb.UpdatedAt)
	}

	doc := rem.get("user-1", stale.ID)
	if !doc.Deleted || doc.UpdatedAt != tomb.UpdatedAt {
		t.Errorf("stale copy must never overwrite the remote tombstone: %+v", doc)
	}
}

func TestNewerLocalEditOverwritesRemote(t *testing.T) {
	ctx := context.Background()
	local := newFakeLocal()
	rem := newFakeRemote()

	old := task.New("user-1", "Draft")
	rem.tasks["user-1"] = map[string]*task.Task{old.ID: cloneTask(old)}

	edited := cloneTask(old)
	edited.Title = "Final"
	edited.Touch()
	local.tasks[edited.ID] = edited

	e := newTestEngine(local, rem, authed())
	if res := e.Run(ctx, "user-1"); res != Success {
		t.Fatalf("Run failed: %v", res)
	}

	if doc := rem.get("user-1", old.ID); doc.Title != "Final" {
		t.Errorf("newer local edit must win: remote holds %q", doc.Title)
	}
	if got := local.get(old.ID); got.Title != "Final" {
		t.Errorf("older remote copy must not come back: local holds %q", got.Title)
	}
}

func TestFailedUploadLeavesLocalCopyUntouched(t *testing.T) {
	ctx := context.Background()
	local := newFakeLocal()
	rem := newFakeRemote()

	// Local edit is newer; its upload fails for a non-network reason.
	old := task.New("user-1", "Draft")
	rem.tasks["user-1"] = map[string]*task.Task{old.ID: cloneTask(old)}

	edited := cloneTask(old)
	edited.Title = "Final"
	edited.Touch()
	local.tasks[edited.ID] = edited
	rem.failTaskID = edited.ID

	e := newTestEngine(local, rem, authed())
	if res := e.Run(ctx, "user-1"); res != Success {
		t.Fatalf("a single non-network upload failure must not abort the run: %v", res)
	}

	// The losing remote copy must not be pulled over the record whose
	// upload was skipped.
	got := local.get(edited.ID)
	if got.Title != "Final" || got.UpdatedAt != edited.UpdatedAt {
		t.Errorf("skipped upload overwritten by its stale counterpart: %+v", got)
	}
}

func TestLocalPersistenceFailureSkipsRecord(t *testing.T) {
	ctx := context.Background()
	local := newFakeLocal()
	rem := newFakeRemote()

	good := task.New("user-1", "Good")
	bad := task.New("user-1", "Bad")
	rem.tasks["user-1"] = map[string]*task.Task{
		good.ID: good,
		bad.ID:  bad,
	}
	local.failTaskID = bad.ID

	e := newTestEngine(local, rem, authed())
	if res := e.Run(ctx, "user-1"); res != Success {
		t.Errorf("single-record persistence failure must not abort the run, got %v", res)
	}
	if local.get(good.ID) == nil {
		t.Error("other records must still be applied")
	}
}

func TestGroupsSyncBothWays(t *testing.T) {
	ctx := context.Background()
	local := newFakeLocal()
	rem := newFakeRemote()

	g := task.NewGroup("user-1", "Trip", "travel", 5)
	g.AddTask("t1")
	local.groups[g.ID] = g

	remoteOnly := task.NewGroup("user-1", "From elsewhere", "work", 2)
	rem.groups["user-1"] = map[string]*task.Group{remoteOnly.ID: remoteOnly}

	e := newTestEngine(local, rem, authed())
	if res := e.Run(ctx, "user-1"); res != Success {
		t.Fatalf("Run failed: %v", res)
	}

	rem.mu.Lock()
	uploaded := rem.groups["user-1"][g.ID]
	rem.mu.Unlock()
	if uploaded == nil || len(uploaded.TaskIDs) != 1 {
		t.Error("local group was not uploaded with its members")
	}

	local.mu.Lock()
	downloaded := local.groups[remoteOnly.ID]
	local.mu.Unlock()
	if downloaded == nil || downloaded.Title != "From elsewhere" {
		t.Error("remote group was not downloaded")
	}
}
