package run

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tessera-labs/tessera-go/artifact"
	"github.com/tessera-labs/tessera-go/backend"
	"github.com/tessera-labs/tessera-go/dataitem"
	"github.com/tessera-labs/tessera-go/entity"
	"github.com/tessera-labs/tessera-go/runtime"
	"github.com/tessera-labs/tessera-go/state"
	"github.com/tessera-labs/tessera-go/taskref"
)

type fakeBackend struct {
	docs    map[string]map[string]any
	creates int
	updates int
	// states records the run state at every persist, in order.
	states []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{docs: make(map[string]map[string]any)}
}

func (f *fakeBackend) record(payload map[string]any) {
	f.states = append(f.states, entity.StringValue(entity.MapValue(payload, "status"), "state"))
}

func (f *fakeBackend) CreateObject(_ context.Context, path string, payload map[string]any) (map[string]any, error) {
	f.creates++
	f.record(payload)
	id := entity.StringValue(payload, "id")
	f.docs[path+"/"+id] = entity.CloneMap(payload)
	return entity.CloneMap(payload), nil
}

func (f *fakeBackend) ReadObject(_ context.Context, path string) (map[string]any, error) {
	doc, ok := f.docs[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", backend.ErrNotFound, path)
	}
	return entity.CloneMap(doc), nil
}

func (f *fakeBackend) ReadCached(ctx context.Context, path string) (map[string]any, error) {
	return f.ReadObject(ctx, path)
}

func (f *fakeBackend) UpdateObject(_ context.Context, path string, payload map[string]any) (map[string]any, error) {
	f.updates++
	f.record(payload)
	f.docs[path] = entity.CloneMap(payload)
	return entity.CloneMap(payload), nil
}

func (f *fakeBackend) runState(id string) string {
	doc, ok := f.docs[backend.ObjectPath(entity.TypeRun, id)]
	if !ok {
		return ""
	}
	return entity.StringValue(entity.MapValue(doc, "status"), "state")
}

type stubRuntime struct {
	tasks   []string
	buildFn func(function, task, run map[string]any) (map[string]any, error)
	runFn   func(ctx context.Context, run map[string]any) (map[string]any, error)
}

func (s *stubRuntime) SupportedTasks() []string { return s.tasks }

func (s *stubRuntime) Build(function, task, run map[string]any) (map[string]any, error) {
	if s.buildFn != nil {
		return s.buildFn(function, task, run)
	}
	return entity.MergeMaps(
		entity.MapValue(function, "spec"),
		entity.MapValue(task, "spec"),
		entity.MapValue(run, "spec"),
	), nil
}

func (s *stubRuntime) Run(ctx context.Context, run map[string]any) (map[string]any, error) {
	if s.runFn != nil {
		return s.runFn(ctx, run)
	}
	return map[string]any{"state": "COMPLETED"}, nil
}

type fakeRuntimes map[string]runtime.Runtime

func (f fakeRuntimes) Resolve(kind string) (runtime.Runtime, error) {
	rt, ok := f[kind]
	if !ok {
		return nil, fmt.Errorf("%q: %w", kind, runtime.ErrUnknownRuntime)
	}
	return rt, nil
}

type fakeDataitems map[string]dataitem.Dataitem

func (f fakeDataitems) GetFromKey(_ context.Context, key string) (dataitem.Dataitem, error) {
	d, ok := f[key]
	if !ok {
		return dataitem.Dataitem{}, fmt.Errorf("dataitem %s: not found", key)
	}
	return d, nil
}

type fakeArtifacts map[string]artifact.Artifact

func (f fakeArtifacts) GetFromKey(_ context.Context, key string) (artifact.Artifact, error) {
	a, ok := f[key]
	if !ok {
		return artifact.Artifact{}, fmt.Errorf("artifact %s: not found", key)
	}
	return a, nil
}

// fixture wires a fake backend seeded with the function and task the
// canonical test reference points at, plus a merging stub runtime.
func fixture(t *testing.T) (*fakeBackend, Services, *stubRuntime) {
	t.Helper()
	fb := newFakeBackend()
	fb.docs[backend.ContextObjectPath("demo", entity.TypeFunction, "orders-clean", "f-1")] = map[string]any{
		"id": "f-1", "kind": "transform", "project": "demo", "name": "orders-clean",
		"spec": map[string]any{"sql": "c2VsZWN0IDE=", "shared": "function"},
	}
	fb.docs[backend.ObjectPath(entity.TypeTask, "t-1")] = map[string]any{
		"id": "t-1", "kind": "transform", "project": "demo",
		"spec": map[string]any{"function": "transform://demo/orders-clean:f-1", "shared": "task"},
	}
	rt := &stubRuntime{tasks: []string{"transform"}}
	svc := Services{
		Backend:  fb,
		Runtimes: fakeRuntimes{"transform": rt},
		Now:      func() time.Time { return time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC) },
	}
	return fb, svc, rt
}

func newTestRun(t *testing.T, svc Services) *Run {
	t.Helper()
	r, err := New(Params{
		Project: "demo",
		Task:    testTask,
		TaskID:  "t-1",
		Inputs:  []string{"orders"},
		Outputs: []string{"orders-clean"},
		Extra:   map[string]any{"shared": "run"},
	}, svc)
	if err != nil {
		t.Fatalf("new run: %v", err)
	}
	return r
}

func TestBuild(t *testing.T) {
	fb, svc, _ := fixture(t)
	r := newTestRun(t, svc)

	if err := r.Build(context.Background()); err != nil {
		t.Fatalf("build: %v", err)
	}
	if r.Status.State != state.Pending {
		t.Fatalf("expected pending state, got %s", r.Status.State)
	}
	if fb.creates != 1 {
		t.Fatalf("expected one create, got %d", fb.creates)
	}
	if got := fb.runState(r.ID); got != "PENDING" {
		t.Fatalf("expected PENDING persisted, got %q", got)
	}

	// Merge precedence: the run document wins over task, task over function.
	if r.Spec.Extra["shared"] != "run" {
		t.Fatalf("expected run field to win merge, got %v", r.Spec.Extra["shared"])
	}
	if r.Spec.Extra["sql"] != "c2VsZWN0IDE=" {
		t.Fatalf("expected function field merged in, got %v", r.Spec.Extra["sql"])
	}
	if r.Spec.Task != testTask || r.Spec.TaskID != "t-1" {
		t.Fatalf("expected task identity pinned, got %q %q", r.Spec.Task, r.Spec.TaskID)
	}
	if len(r.Spec.Inputs) != 1 || r.Spec.Inputs[0] != "orders" {
		t.Fatalf("expected run inputs preserved, got %v", r.Spec.Inputs)
	}
}

func TestBuildRepeatable(t *testing.T) {
	fb, svc, _ := fixture(t)
	r := newTestRun(t, svc)

	if err := r.Build(context.Background()); err != nil {
		t.Fatalf("first build: %v", err)
	}
	if err := r.Build(context.Background()); err != nil {
		t.Fatalf("second build: %v", err)
	}
	if r.Status.State != state.Pending {
		t.Fatalf("expected pending state, got %s", r.Status.State)
	}
	if fb.creates != 1 || fb.updates != 1 {
		t.Fatalf("expected create then update, got %d creates %d updates", fb.creates, fb.updates)
	}
}

func TestBuildRebuildsFinishedRun(t *testing.T) {
	_, svc, _ := fixture(t)
	r := newTestRun(t, svc)
	r.Status = Status{State: state.Error, Message: "boom"}

	if err := r.Build(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if r.Status.State != state.Pending {
		t.Fatalf("expected pending state, got %s", r.Status.State)
	}
	if r.Status.Message != "" {
		t.Fatalf("expected failure message cleared, got %q", r.Status.Message)
	}
}

func TestBuildWhileRunning(t *testing.T) {
	_, svc, _ := fixture(t)
	r := newTestRun(t, svc)
	r.Status.State = state.Running

	if err := r.Build(context.Background()); !errors.Is(err, ErrExecuting) {
		t.Fatalf("expected ErrExecuting got %v", err)
	}
}

func TestBuildUnknownRuntime(t *testing.T) {
	fb, svc, _ := fixture(t)
	svc.Runtimes = fakeRuntimes{}
	r := newTestRun(t, svc)

	if err := r.Build(context.Background()); !errors.Is(err, runtime.ErrUnknownRuntime) {
		t.Fatalf("expected ErrUnknownRuntime got %v", err)
	}
	if fb.creates != 0 {
		t.Fatalf("expected nothing persisted, got %d creates", fb.creates)
	}
}

func TestBuildMissingFunction(t *testing.T) {
	fb, svc, _ := fixture(t)
	delete(fb.docs, backend.ContextObjectPath("demo", entity.TypeFunction, "orders-clean", "f-1"))
	r := newTestRun(t, svc)

	if err := r.Build(context.Background()); !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}

func TestBuildWithoutBackend(t *testing.T) {
	r := newTestRun(t, testServices())
	if err := r.Build(context.Background()); !errors.Is(err, ErrLocalMode) {
		t.Fatalf("expected ErrLocalMode got %v", err)
	}
}

func TestExecuteRequiresPending(t *testing.T) {
	_, svc, _ := fixture(t)

	for _, st := range []state.State{state.Created, state.Completed, state.Error} {
		r := newTestRun(t, svc)
		r.Status.State = st
		_, err := r.Execute(context.Background())
		if !errors.Is(err, ErrNotPending) {
			t.Fatalf("%s: expected ErrNotPending got %v", st, err)
		}
	}

	if ErrNotPending.Error() != "Run is not in pending state. Build it again." {
		t.Fatalf("unexpected message %q", ErrNotPending.Error())
	}
}

func TestExecute(t *testing.T) {
	fb, svc, rt := fixture(t)
	r := newTestRun(t, svc)
	if err := r.Build(context.Background()); err != nil {
		t.Fatalf("build: %v", err)
	}

	// The runtime observes the persisted state at the moment it starts.
	var stateAtStart string
	rt.runFn = func(_ context.Context, run map[string]any) (map[string]any, error) {
		stateAtStart = fb.runState(entity.StringValue(run, "id"))
		return map[string]any{
			"state": "COMPLETED",
			"dataitems": []any{
				map[string]any{"key": "orders-clean", "kind": "sql", "id": "store://demo/dataitems/sql/orders-clean:d-1"},
			},
		}, nil
	}

	done, err := r.Execute(context.Background())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if stateAtStart != "RUNNING" {
		t.Fatalf("expected RUNNING persisted before the runtime started, got %q", stateAtStart)
	}
	if done.Status.State != state.Completed {
		t.Fatalf("expected completed state, got %s", done.Status.State)
	}
	if got := fb.runState(r.ID); got != "COMPLETED" {
		t.Fatalf("expected COMPLETED persisted, got %q", got)
	}
	if len(done.Status.Dataitems) != 1 || done.Status.Dataitems[0].Key != "orders-clean" {
		t.Fatalf("unexpected results %+v", done.Status.Dataitems)
	}
}

func TestExecuteFailureBecomesErrorStatus(t *testing.T) {
	fb, svc, rt := fixture(t)
	r := newTestRun(t, svc)
	if err := r.Build(context.Background()); err != nil {
		t.Fatalf("build: %v", err)
	}
	rt.runFn = func(context.Context, map[string]any) (map[string]any, error) {
		return nil, fmt.Errorf("%w: relation does not exist", runtime.ErrExecution)
	}

	done, err := r.Execute(context.Background())
	if err != nil {
		t.Fatalf("expected runtime failure to be absorbed, got %v", err)
	}
	if done.Status.State != state.Error {
		t.Fatalf("expected error state, got %s", done.Status.State)
	}
	if done.Status.Message == "" {
		t.Fatal("expected failure message recorded")
	}
	if got := fb.runState(r.ID); got != "ERROR" {
		t.Fatalf("expected ERROR persisted, got %q", got)
	}

	// A failed run must be rebuilt before it can execute again.
	if _, err := r.Execute(context.Background()); !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected ErrNotPending got %v", err)
	}
	if err := r.Build(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	rt.runFn = nil
	if _, err := r.Execute(context.Background()); err != nil {
		t.Fatalf("re-execute: %v", err)
	}
	if r.Status.State != state.Completed {
		t.Fatalf("expected completed state, got %s", r.Status.State)
	}
}

func TestExecuteRejectsUnknownStatus(t *testing.T) {
	_, svc, rt := fixture(t)
	r := newTestRun(t, svc)
	if err := r.Build(context.Background()); err != nil {
		t.Fatalf("build: %v", err)
	}
	rt.runFn = func(context.Context, map[string]any) (map[string]any, error) {
		return map[string]any{"state": "DONE-ISH"}, nil
	}

	if _, err := r.Execute(context.Background()); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus got %v", err)
	}
}

func TestRefresh(t *testing.T) {
	fb, svc, _ := fixture(t)
	r := newTestRun(t, svc)
	if err := r.Build(context.Background()); err != nil {
		t.Fatalf("build: %v", err)
	}

	// Another writer moves the backend document forward.
	path := backend.ObjectPath(entity.TypeRun, r.ID)
	doc := fb.docs[path]
	doc["status"] = map[string]any{"state": "COMPLETED"}

	if _, err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if r.Status.State != state.Completed {
		t.Fatalf("expected completed state, got %s", r.Status.State)
	}
}

func TestLocalOnlyOperations(t *testing.T) {
	r := newTestRun(t, testServices())
	ctx := context.Background()

	if _, err := r.Refresh(ctx); !errors.Is(err, ErrLocalMode) {
		t.Fatalf("refresh: expected ErrLocalMode got %v", err)
	}
	if err := r.Save(ctx); !errors.Is(err, ErrLocalMode) {
		t.Fatalf("save: expected ErrLocalMode got %v", err)
	}
	if _, err := r.Logs(ctx); !errors.Is(err, ErrLocalMode) {
		t.Fatalf("logs: expected ErrLocalMode got %v", err)
	}
}

func TestStop(t *testing.T) {
	_, svc, _ := fixture(t)
	r := newTestRun(t, svc)
	if err := r.Stop(context.Background()); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported got %v", err)
	}
}

func TestGetDataitems(t *testing.T) {
	key := "store://demo/dataitems/sql/orders-clean:d-1"
	item := dataitem.Dataitem{ID: "d-1", Project: "demo", Name: "orders-clean", Kind: "sql"}

	_, svc, rt := fixture(t)
	svc.Dataitems = fakeDataitems{key: item}
	r := newTestRun(t, svc)
	ctx := context.Background()
	if err := r.Build(ctx); err != nil {
		t.Fatalf("build: %v", err)
	}

	if _, err := r.GetDataitems(ctx); !errors.Is(err, ErrNoResult) {
		t.Fatalf("expected ErrNoResult before execution, got %v", err)
	}

	rt.runFn = func(context.Context, map[string]any) (map[string]any, error) {
		return map[string]any{
			"state":     "COMPLETED",
			"dataitems": []any{map[string]any{"key": "orders-clean", "kind": "sql", "id": key}},
		}, nil
	}
	if _, err := r.Execute(ctx); err != nil {
		t.Fatalf("execute: %v", err)
	}

	items, err := r.GetDataitems(ctx)
	if err != nil {
		t.Fatalf("get dataitems: %v", err)
	}
	if len(items) != 1 || items[0].ID != "d-1" {
		t.Fatalf("unexpected dataitems %+v", items)
	}

	item2, err := r.GetDataitem(ctx, "orders-clean")
	if err != nil {
		t.Fatalf("get dataitem: %v", err)
	}
	if item2.Name != "orders-clean" {
		t.Fatalf("unexpected dataitem %+v", item2)
	}

	if _, err := r.GetDataitem(ctx, "no-such-output"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound got %v", err)
	}
}

func TestGetDataitemsRefreshesFromBackend(t *testing.T) {
	key := "store://demo/dataitems/sql/orders-clean:d-9"
	fb, svc, _ := fixture(t)
	svc.Dataitems = fakeDataitems{key: {ID: "d-9", Name: "orders-clean", Kind: "sql"}}
	r := newTestRun(t, svc)
	ctx := context.Background()
	if err := r.Build(ctx); err != nil {
		t.Fatalf("build: %v", err)
	}

	// Results land on the backend without the local entity noticing.
	doc := fb.docs[backend.ObjectPath(entity.TypeRun, r.ID)]
	doc["status"] = map[string]any{
		"state":     "COMPLETED",
		"dataitems": []any{map[string]any{"key": "orders-clean", "kind": "sql", "id": key}},
	}

	items, err := r.GetDataitems(ctx)
	if err != nil {
		t.Fatalf("get dataitems: %v", err)
	}
	if len(items) != 1 || items[0].ID != "d-9" {
		t.Fatalf("unexpected dataitems %+v", items)
	}
	if r.Status.State != state.Completed {
		t.Fatalf("expected refresh to adopt backend state, got %s", r.Status.State)
	}
}

func TestGetArtifactsLocalRun(t *testing.T) {
	key := "store://demo/artifacts/artifact/report:a-1"
	svc := testServices()
	svc.Artifacts = fakeArtifacts{key: {ID: "a-1", Name: "report", Kind: "artifact"}}
	r := newTestRun(t, svc)
	ctx := context.Background()

	if _, err := r.GetArtifacts(ctx); !errors.Is(err, ErrNoResult) {
		t.Fatalf("expected ErrNoResult got %v", err)
	}

	// Local runs serve results straight from the in-memory status.
	r.Status = Status{
		State:     state.Completed,
		Artifacts: []ResultRef{{Key: "report", Kind: "artifact", ID: key}},
	}
	arts, err := r.GetArtifacts(ctx)
	if err != nil {
		t.Fatalf("get artifacts: %v", err)
	}
	if len(arts) != 1 || arts[0].ID != "a-1" {
		t.Fatalf("unexpected artifacts %+v", arts)
	}

	a, err := r.GetArtifact(ctx, "report")
	if err != nil {
		t.Fatalf("get artifact: %v", err)
	}
	if a.Name != "report" {
		t.Fatalf("unexpected artifact %+v", a)
	}
}

func TestRunAdoptsBackendID(t *testing.T) {
	fb, svc, _ := fixture(t)
	r := newTestRun(t, svc)
	want := r.ID
	if err := r.Build(context.Background()); err != nil {
		t.Fatalf("build: %v", err)
	}
	if r.ID != want {
		t.Fatalf("expected id %s kept, got %s", want, r.ID)
	}
	if _, ok := fb.docs[backend.ObjectPath(entity.TypeRun, want)]; !ok {
		t.Fatal("expected run document stored under its id")
	}
}

func TestUpdateSaveTouchesMetadata(t *testing.T) {
	fb, svc, _ := fixture(t)
	current := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return current }
	r := newTestRun(t, svc)
	ctx := context.Background()

	if err := r.Build(ctx); err != nil {
		t.Fatalf("build: %v", err)
	}
	if !r.Metadata.Updated.Equal(current) {
		t.Fatalf("create-save must not touch metadata, got %v", r.Metadata.Updated)
	}

	current = current.Add(5 * time.Minute)
	if err := r.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !r.Metadata.Updated.Equal(current) {
		t.Fatalf("expected Updated %v after update-save, got %v", current, r.Metadata.Updated)
	}
	if r.Metadata.Created.Equal(r.Metadata.Updated) {
		t.Fatal("expected Created to keep the original instant")
	}
	doc := fb.docs[backend.ObjectPath(entity.TypeRun, r.ID)]
	if got := entity.StringValue(entity.MapValue(doc, "metadata"), "updated"); got != current.Format(time.RFC3339) {
		t.Fatalf("persisted updated = %q, want %q", got, current.Format(time.RFC3339))
	}
}

func TestReferenceCarriesTaskID(t *testing.T) {
	_, svc, _ := fixture(t)
	r := newTestRun(t, svc)
	ref, err := r.Reference()
	if err != nil {
		t.Fatalf("reference: %v", err)
	}
	want := taskref.Ref{
		FunctionKind: "transform", TaskKind: "transform",
		Project: "demo", FunctionName: "orders-clean", FunctionID: "f-1", TaskID: "t-1",
	}
	if ref != want {
		t.Fatalf("expected %+v got %+v", want, ref)
	}
}
