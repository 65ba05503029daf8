// Command tessera-demo walks the SDK through a complete transform flow
// against a platform endpoint: it registers a function and a task, builds
// a run, executes it on the configured warehouse, and prints the produced
// dataitems.
//
// Configuration comes from the TESSERA_* environment (see ConfigFromEnv);
// flags override the endpoint and name the demo entities. The referenced
// inputs must already exist as dataitems in the project.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tessera "github.com/tessera-labs/tessera-go"
	"github.com/tessera-labs/tessera-go/function"
	"github.com/tessera-labs/tessera-go/run"
	"github.com/tessera-labs/tessera-go/state"
	"github.com/tessera-labs/tessera-go/task"
)

func main() {
	defaultSuffix := time.Now().UTC().Format("20060102-150405")

	var (
		endpoint = flag.String("endpoint", "", "Platform base URL (defaults to TESSERA_ENDPOINT)")
		project  = flag.String("project", "demo", "Project the demo entities belong to")
		name     = flag.String("name", "demo-transform-"+defaultSuffix, "Function name")
		sqlText  = flag.String("sql", `select * from "orders"`, "Transform SQL over the input dataitems")
		inputs   = flag.String("inputs", "orders", "Comma-separated names of registered input dataitems")
		output   = flag.String("output", "demo-output-"+defaultSuffix, "Name of the produced dataitem")
	)
	flag.Parse()

	cfg, err := tessera.ConfigFromEnv()
	if err != nil {
		die("load config", err)
	}
	if strings.TrimSpace(*endpoint) != "" {
		cfg.Endpoint = *endpoint
	}

	ctx := context.Background()
	client, err := tessera.New(ctx, cfg)
	if err != nil {
		die("build client", err)
	}
	defer client.Close()

	fmt.Printf("==> tessera demo (endpoint=%s, project=%s)\n", cfg.Endpoint, *project)

	if _, err := client.Runtimes().Resolve("transform"); err != nil {
		die("resolve transform runtime", fmt.Errorf("%w (set TESSERA_DATABASE_URL to wire the warehouse)", err))
	}

	// 1) Register the transform function
	fn, err := client.NewFunction(ctx, function.Params{
		Project: *project,
		Name:    *name,
		SQL:     *sqlText,
	})
	if err != nil {
		die("create function", err)
	}
	fmt.Printf("==> created function: %s (%s)\n", fn.Name, fn.ID)

	// 2) Bind it to a transform task
	tk, err := client.NewTask(ctx, task.Params{
		Project:      *project,
		Kind:         "transform",
		FunctionKind: "transform",
		FunctionName: fn.Name,
		FunctionID:   fn.ID,
	})
	if err != nil {
		die("create task", err)
	}
	ref, err := tk.Reference()
	if err != nil {
		die("compose task reference", err)
	}
	fmt.Printf("==> created task: %s (%s)\n", tk.ID, ref.String())

	// 3) Create the run
	r, err := client.NewRun(run.Params{
		Project: *project,
		Task:    ref.String(),
		TaskID:  tk.ID,
		Inputs:  splitList(*inputs),
		Outputs: []string{*output},
	})
	if err != nil {
		die("create run", err)
	}

	// 4) Build: merge the function, task and run specs
	if err := r.Build(ctx); err != nil {
		die("build run", err)
	}
	fmt.Printf("==> built run: %s (state=%s)\n", r.ID, r.Status.State)

	// 5) Execute on the warehouse
	out, err := r.Execute(ctx)
	if err != nil {
		die("execute run", err)
	}
	fmt.Printf("==> executed run: %s (state=%s)\n", out.ID, out.Status.State)
	if out.Status.State != state.Completed {
		die("run did not complete", fmt.Errorf("state=%s message=%s", out.Status.State, out.Status.Message))
	}

	// 6) List the produced dataitems
	items, err := out.GetDataitems(ctx)
	if err != nil {
		die("get dataitems", err)
	}
	for _, item := range items {
		fmt.Printf("==> produced dataitem: %s (%s) at %s\n", item.Name, item.ID, item.Spec.Path)
	}
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func die(step string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", step, err)
	os.Exit(1)
}
