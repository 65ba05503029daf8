package transform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/tessera-labs/tessera-go/dataitem"
	"github.com/tessera-labs/tessera-go/entity"
	"github.com/tessera-labs/tessera-go/run"
	"github.com/tessera-labs/tessera-go/runtime"
)

type fakeEngine struct {
	spec   ProjectSpec
	fail   bool
	err    error
	mutate func(*Result)
}

func (e *fakeEngine) Run(_ context.Context, spec ProjectSpec) (Result, error) {
	e.spec = spec
	if e.err != nil {
		return Result{}, e.err
	}
	started := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	res := Result{
		Status:       StatusSuccess,
		Project:      spec.Name,
		Output:       spec.Output.Name,
		Relation:     fmt.Sprintf(`"warehouse"."public"."%s"`, spec.Output.Relation()),
		RawCode:      spec.Output.SQL,
		CompiledCode: Compile(spec.Output.SQL, "public", spec.Inputs),
		Phases: []Phase{
			{Name: PhaseCompile, StartedAt: started, CompletedAt: started.Add(time.Second)},
			{Name: PhaseExecute, StartedAt: started.Add(time.Second), CompletedAt: started.Add(3 * time.Second)},
		},
	}
	if e.fail {
		res.Status = StatusError
		res.Message = "query failed"
	}
	if e.mutate != nil {
		e.mutate(&res)
	}
	return res, nil
}

type fakeTableStore struct {
	materialized map[string]string
	err          error
}

func (f *fakeTableStore) Materialize(_ context.Context, item dataitem.Dataitem, relation string) error {
	if f.err != nil {
		return f.err
	}
	if f.materialized == nil {
		f.materialized = make(map[string]string)
	}
	f.materialized[item.Name] = relation
	return nil
}

type fakeItems struct {
	latest  map[string]dataitem.Dataitem
	created []dataitem.Dataitem
}

func (f *fakeItems) Latest(_ context.Context, project, name string) (dataitem.Dataitem, error) {
	d, ok := f.latest[project+"/"+name]
	if !ok {
		return dataitem.Dataitem{}, fmt.Errorf("no versions of %s", name)
	}
	return d, nil
}

func (f *fakeItems) Create(_ context.Context, d dataitem.Dataitem) (dataitem.Dataitem, error) {
	f.created = append(f.created, d)
	return d, nil
}

const transformTask = "transform+transform://demo-proj/orders-clean:f-1"

func runDoc(state string, spec map[string]any) map[string]any {
	base := map[string]any{
		"task":    transformTask,
		"task_id": "t-1",
		"inputs":  []any{"orders"},
		"outputs": []any{"orders-clean"},
		"sql":     entity.EncodeSource("select * from orders"),
	}
	for k, v := range spec {
		if v == nil {
			delete(base, k)
			continue
		}
		base[k] = v
	}
	return map[string]any{
		"id":      "r-1",
		"kind":    "run",
		"project": "demo-proj",
		"spec":    base,
		"status":  map[string]any{"state": state},
	}
}

func newTestRuntime() (*Runtime, *fakeEngine, *fakeTableStore, *fakeItems) {
	engine := &fakeEngine{}
	store := &fakeTableStore{}
	items := &fakeItems{latest: map[string]dataitem.Dataitem{
		"demo-proj/orders": {
			ID: "d-in", Project: "demo-proj", Name: "orders", Kind: "table",
			Spec: dataitem.Spec{Path: "sql://postgres/warehouse/public/orders_raw"},
		},
	}}
	return New(engine, store, items, nil), engine, store, items
}

func TestBuildMergesSpecs(t *testing.T) {
	rt, _, _, _ := newTestRuntime()

	merged, err := rt.Build(
		map[string]any{"spec": map[string]any{"sql": "a", "shared": "function"}},
		map[string]any{"spec": map[string]any{"function": "transform://p/n:1", "shared": "task"}},
		map[string]any{"spec": map[string]any{"task": transformTask, "shared": "run"}},
	)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if merged["shared"] != "run" {
		t.Fatalf("expected run field to win, got %v", merged["shared"])
	}
	if merged["sql"] != "a" || merged["function"] != "transform://p/n:1" {
		t.Fatalf("unexpected merge %v", merged)
	}
}

func TestRunRejectsUnbuiltRun(t *testing.T) {
	rt, _, _, _ := newTestRuntime()

	for _, st := range []string{"CREATED", "COMPLETED", "ERROR"} {
		if _, err := rt.Run(context.Background(), runDoc(st, nil)); !errors.Is(err, run.ErrNotPending) {
			t.Fatalf("%s: expected ErrNotPending got %v", st, err)
		}
	}
}

func TestRunRejectsUnsupportedTask(t *testing.T) {
	rt, _, _, _ := newTestRuntime()

	doc := runDoc("PENDING", map[string]any{"task": "transform+export://demo-proj/orders-clean:f-1"})
	if _, err := rt.Run(context.Background(), doc); !errors.Is(err, runtime.ErrUnsupportedTask) {
		t.Fatalf("expected ErrUnsupportedTask got %v", err)
	}
}

func TestTransform(t *testing.T) {
	rt, engine, store, items := newTestRuntime()

	status, err := rt.Run(context.Background(), runDoc("RUNNING", nil))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// The engine received a sanitized project, the decoded sql and the
	// pinned input versions.
	if engine.spec.Name != "demo_proj" {
		t.Fatalf("expected sanitized project, got %q", engine.spec.Name)
	}
	if engine.spec.Output.SQL != "select * from orders" {
		t.Fatalf("expected decoded sql, got %q", engine.spec.Output.SQL)
	}
	if len(engine.spec.Inputs) != 1 || engine.spec.Inputs[0].Version != "d-in" {
		t.Fatalf("unexpected inputs %+v", engine.spec.Inputs)
	}
	if store.materialized["orders"] != "orders_vd-in" {
		t.Fatalf("expected input materialized at versioned relation, got %v", store.materialized)
	}

	if len(items.created) != 1 {
		t.Fatalf("expected one dataitem registered, got %d", len(items.created))
	}
	created := items.created[0]
	if created.Kind != "sql" || created.Name != "orders-clean" || created.Project != "demo-proj" {
		t.Fatalf("unexpected dataitem %+v", created)
	}
	if created.ID != engine.spec.Output.Version {
		t.Fatalf("expected dataitem id %q to match output version %q", created.ID, engine.spec.Output.Version)
	}
	wantPath := "sql://postgres/warehouse/public/orders-clean_v" + created.ID
	if created.Spec.Path != wantPath {
		t.Fatalf("expected path %q got %q", wantPath, created.Spec.Path)
	}
	if raw, err := entity.DecodeSource(created.Spec.RawCode); err != nil || raw != "select * from orders" {
		t.Fatalf("unexpected raw code %q (%v)", created.Spec.RawCode, err)
	}
	if compiled, err := entity.DecodeSource(created.Spec.CompiledCode); err != nil || !strings.Contains(compiled, "orders_vd-in") {
		t.Fatalf("unexpected compiled code %q (%v)", created.Spec.CompiledCode, err)
	}

	if status["state"] != "COMPLETED" {
		t.Fatalf("expected COMPLETED, got %v", status["state"])
	}
	refs, ok := status["dataitems"].([]any)
	if !ok || len(refs) != 1 {
		t.Fatalf("unexpected dataitems %v", status["dataitems"])
	}
	ref := refs[0].(map[string]any)
	if ref["key"] != "orders-clean" || ref["kind"] != "sql" || ref["id"] != created.Key() {
		t.Fatalf("unexpected result ref %v", ref)
	}
	timing, ok := status["timing"].(map[string]any)
	if !ok {
		t.Fatalf("expected timing info, got %v", status["timing"])
	}
	for _, phase := range []string{"compile", "execute"} {
		info, ok := timing[phase].(map[string]any)
		if !ok || info["started_at"] == "" || info["completed_at"] == "" {
			t.Fatalf("incomplete %s timing %v", phase, timing[phase])
		}
	}
}

func TestTransformValidatesSpec(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name string
		doc  map[string]any
	}{
		{"no inputs", runDoc("PENDING", map[string]any{"inputs": nil})},
		{"no outputs", runDoc("PENDING", map[string]any{"outputs": nil})},
		{"no sql", runDoc("PENDING", map[string]any{"sql": nil})},
		{"bad sql encoding", runDoc("PENDING", map[string]any{"sql": "not-base64!"})},
	}
	for _, tc := range cases {
		rt, _, _, _ := newTestRuntime()
		if _, err := rt.Run(ctx, tc.doc); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestTransformInputNotFound(t *testing.T) {
	rt, _, _, items := newTestRuntime()
	delete(items.latest, "demo-proj/orders")

	_, err := rt.Run(context.Background(), runDoc("PENDING", nil))
	if err == nil || !strings.Contains(err.Error(), "orders") {
		t.Fatalf("expected missing dataitem error, got %v", err)
	}
}

func TestTransformEngineFailure(t *testing.T) {
	rt, engine, _, items := newTestRuntime()
	engine.fail = true

	_, err := rt.Run(context.Background(), runDoc("PENDING", nil))
	if !errors.Is(err, runtime.ErrExecution) {
		t.Fatalf("expected ErrExecution got %v", err)
	}
	if len(items.created) != 0 {
		t.Fatalf("expected no dataitem registered on failure, got %d", len(items.created))
	}
}

func TestTransformRejectsForeignResult(t *testing.T) {
	rt, engine, _, _ := newTestRuntime()
	engine.mutate = func(r *Result) { r.Output = "something-else" }

	if _, err := rt.Run(context.Background(), runDoc("PENDING", nil)); !errors.Is(err, runtime.ErrExecution) {
		t.Fatalf("expected ErrExecution got %v", err)
	}
}

func TestTransformRequiresTimings(t *testing.T) {
	rt, engine, _, items := newTestRuntime()
	engine.mutate = func(r *Result) { r.Phases = r.Phases[:1] }

	if _, err := rt.Run(context.Background(), runDoc("PENDING", nil)); err == nil {
		t.Fatal("expected missing timing to be rejected")
	}
	if len(items.created) != 0 {
		t.Fatalf("expected no dataitem registered, got %d", len(items.created))
	}
}
