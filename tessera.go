// Package tessera is the client SDK for the tessera data platform. It
// manages the platform's entities (projects, functions, tasks, runs,
// dataitems, artifacts), validates their specs against the kind schemas
// the SDK ships, and executes runs in-process through pluggable runtimes.
//
// A client bound to a platform endpoint persists entities through the
// backend API; without one it stays in local mode, where entities exist
// in memory and can be exported, but runs cannot be built.
package tessera

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tessera-labs/tessera-go/artifact"
	"github.com/tessera-labs/tessera-go/backend"
	"github.com/tessera-labs/tessera-go/dataitem"
	"github.com/tessera-labs/tessera-go/entity"
	"github.com/tessera-labs/tessera-go/function"
	"github.com/tessera-labs/tessera-go/internal/platform/objectstore"
	"github.com/tessera-labs/tessera-go/internal/platform/postgres"
	"github.com/tessera-labs/tessera-go/project"
	"github.com/tessera-labs/tessera-go/run"
	"github.com/tessera-labs/tessera-go/runtime"
	"github.com/tessera-labs/tessera-go/task"
	"github.com/tessera-labs/tessera-go/transform"
)

// Client is the entry point of the SDK.
type Client struct {
	cfg    Config
	logger *slog.Logger
	kinds  *entity.Registry

	backend   *backend.Client
	registry  *runtime.Registry
	projects  *project.Service
	functions *function.Service
	tasks     *task.Service
	dataitems *dataitem.Service
	artifacts *artifact.Service

	warehouse *sql.DB
}

// New builds a client from the configuration. The context bounds the
// startup work: OIDC discovery and the warehouse connection ping.
func New(ctx context.Context, cfg Config) (*Client, error) {
	kinds, err := entity.Builtin()
	if err != nil {
		return nil, err
	}
	c := &Client{
		cfg:      cfg,
		logger:   cfg.logger(),
		kinds:    kinds,
		registry: runtime.NewRegistry(),
	}

	if strings.TrimSpace(cfg.Endpoint) != "" {
		tokens, err := cfg.tokens(ctx)
		if err != nil {
			return nil, fmt.Errorf("configure auth: %w", err)
		}
		api, err := backend.New(backend.Config{
			Endpoint:  cfg.Endpoint,
			Tokens:    tokens,
			Timeout:   cfg.Timeout,
			CacheSize: cfg.CacheSize,
			Logger:    c.logger,
		})
		if err != nil {
			return nil, err
		}
		c.backend = api
		c.projects = project.NewService(api)
		c.functions = function.NewService(api)
		c.tasks = task.NewService(api)
		c.dataitems = dataitem.NewService(api)
		c.artifacts = artifact.NewService(api)
	}

	if err := c.registerTransform(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// NewFromEnv builds a client from TESSERA_* environment variables.
func NewFromEnv(ctx context.Context) (*Client, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg)
}

// registerTransform wires the transform runtime when a warehouse is
// configured. The runtime registers result dataitems through the backend,
// so it also needs an endpoint.
func (c *Client) registerTransform(ctx context.Context) error {
	cfg := c.cfg.Warehouse
	if !cfg.Configured() {
		return nil
	}
	if c.dataitems == nil {
		return errors.New("transform runtime needs a platform endpoint to register dataitems")
	}
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open warehouse: %w", err)
	}
	c.warehouse = db

	var objects objectstore.Store
	if c.cfg.ObjectStore.Configured() {
		store, err := objectstore.NewMinioStore(c.cfg.ObjectStore)
		if err != nil {
			_ = db.Close()
			return fmt.Errorf("open object store: %w", err)
		}
		objects = store
	}

	engine := transform.NewPostgresEngine(db, cfg.Database(), cfg.Schema)
	tables := transform.NewPostgresTableStore(db, cfg.Schema, objects)
	dataitems := c.dataitems
	logger := c.logger
	return c.registry.Register(transform.Kind, func() runtime.Runtime {
		return transform.New(engine, tables, dataitems, logger)
	})
}

// Close releases the warehouse connection, if one was opened.
func (c *Client) Close() error {
	if c.warehouse != nil {
		return c.warehouse.Close()
	}
	return nil
}

// Local reports whether the client runs without a platform endpoint.
func (c *Client) Local() bool {
	return c.backend == nil
}

// Kinds exposes the registry of entity kinds and their spec schemas.
func (c *Client) Kinds() *entity.Registry {
	return c.kinds
}

// Runtimes exposes the runtime registry, e.g. to register additional
// function kinds.
func (c *Client) Runtimes() *runtime.Registry {
	return c.registry
}

// Projects, Functions, Tasks, Dataitems and Artifacts expose the entity
// services. They are nil in local mode.
func (c *Client) Projects() *project.Service   { return c.projects }
func (c *Client) Functions() *function.Service { return c.functions }
func (c *Client) Tasks() *task.Service         { return c.tasks }
func (c *Client) Dataitems() *dataitem.Service { return c.dataitems }
func (c *Client) Artifacts() *artifact.Service { return c.artifacts }

// NewProject validates and, when an endpoint is configured, registers a
// project.
func (c *Client) NewProject(ctx context.Context, params project.Params) (project.Project, error) {
	p, err := project.New(params)
	if err != nil {
		return project.Project{}, err
	}
	if err := c.kinds.ValidateSpec(entity.TypeProject, p.Kind, p.Spec.ToMap()); err != nil {
		return project.Project{}, err
	}
	if c.projects == nil {
		return p, nil
	}
	return c.projects.Create(ctx, p)
}

// NewFunction validates and registers a function version.
func (c *Client) NewFunction(ctx context.Context, params function.Params) (function.Function, error) {
	fn, err := function.New(params)
	if err != nil {
		return function.Function{}, err
	}
	if err := c.kinds.ValidateSpec(entity.TypeFunction, fn.Kind, fn.Spec.ToMap()); err != nil {
		return function.Function{}, err
	}
	if c.functions == nil {
		return fn, nil
	}
	return c.functions.Create(ctx, fn)
}

// NewTask validates and registers a task for a function version.
func (c *Client) NewTask(ctx context.Context, params task.Params) (task.Task, error) {
	t, err := task.New(params)
	if err != nil {
		return task.Task{}, err
	}
	if err := c.kinds.ValidateSpec(entity.TypeTask, t.Kind, t.Spec.ToMap()); err != nil {
		return task.Task{}, err
	}
	if c.tasks == nil {
		return t, nil
	}
	return c.tasks.Create(ctx, t)
}

// NewDataitem validates and registers a dataitem version.
func (c *Client) NewDataitem(ctx context.Context, params dataitem.Params) (dataitem.Dataitem, error) {
	d, err := dataitem.New(params)
	if err != nil {
		return dataitem.Dataitem{}, err
	}
	if err := c.kinds.ValidateSpec(entity.TypeDataitem, d.Kind, d.Spec.ToMap()); err != nil {
		return dataitem.Dataitem{}, err
	}
	if c.dataitems == nil {
		return d, nil
	}
	return c.dataitems.Create(ctx, d)
}

// NewArtifact validates and registers an artifact version.
func (c *Client) NewArtifact(ctx context.Context, params artifact.Params) (artifact.Artifact, error) {
	a, err := artifact.New(params)
	if err != nil {
		return artifact.Artifact{}, err
	}
	if err := c.kinds.ValidateSpec(entity.TypeArtifact, a.Kind, a.Spec.ToMap()); err != nil {
		return artifact.Artifact{}, err
	}
	if c.artifacts == nil {
		return a, nil
	}
	return c.artifacts.Create(ctx, a)
}

// NewRun builds a run bound to this client's backend and runtimes. The
// run starts in the created state; Build readies it for execution.
func (c *Client) NewRun(params run.Params) (*run.Run, error) {
	r, err := run.New(params, c.runServices())
	if err != nil {
		return nil, err
	}
	if err := c.kinds.ValidateSpec(entity.TypeRun, r.Kind, r.Spec.ToMap()); err != nil {
		return nil, err
	}
	return r, nil
}

// GetRun fetches a run from the backend and binds it to this client.
func (c *Client) GetRun(ctx context.Context, id string) (*run.Run, error) {
	if c.backend == nil {
		return nil, run.ErrLocalMode
	}
	doc, err := c.backend.ReadObject(ctx, backend.ObjectPath(entity.TypeRun, id))
	if err != nil {
		return nil, err
	}
	return run.FromMap(doc, c.runServices())
}

func (c *Client) runServices() run.Services {
	svc := run.Services{
		Runtimes: c.registry,
		Logger:   c.logger,
	}
	if c.backend != nil {
		svc.Backend = c.backend
		svc.Artifacts = c.artifacts
		svc.Dataitems = c.dataitems
	}
	return svc
}
