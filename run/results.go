package run

import (
	"context"

	"github.com/tessera-labs/tessera-go/artifact"
	"github.com/tessera-labs/tessera-go/dataitem"
)

// GetDataitems resolves every dataitem the run produced. Remote runs are
// refreshed first so the result list reflects the backend's view.
func (r *Run) GetDataitems(ctx context.Context) ([]dataitem.Dataitem, error) {
	refs, err := r.dataitemRefs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dataitem.Dataitem, 0, len(refs))
	for _, ref := range refs {
		d, err := r.svc.Dataitems.GetFromKey(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// GetDataitem resolves the single dataitem recorded under the given
// output key.
func (r *Run) GetDataitem(ctx context.Context, key string) (dataitem.Dataitem, error) {
	refs, err := r.dataitemRefs(ctx)
	if err != nil {
		return dataitem.Dataitem{}, err
	}
	for _, ref := range refs {
		if ref.Key == key {
			return r.svc.Dataitems.GetFromKey(ctx, ref.ID)
		}
	}
	return dataitem.Dataitem{}, ErrKeyNotFound
}

// GetArtifacts resolves every artifact the run produced.
func (r *Run) GetArtifacts(ctx context.Context) ([]artifact.Artifact, error) {
	refs, err := r.artifactRefs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]artifact.Artifact, 0, len(refs))
	for _, ref := range refs {
		a, err := r.svc.Artifacts.GetFromKey(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// GetArtifact resolves the single artifact recorded under the given key.
func (r *Run) GetArtifact(ctx context.Context, key string) (artifact.Artifact, error) {
	refs, err := r.artifactRefs(ctx)
	if err != nil {
		return artifact.Artifact{}, err
	}
	for _, ref := range refs {
		if ref.Key == key {
			return r.svc.Artifacts.GetFromKey(ctx, ref.ID)
		}
	}
	return artifact.Artifact{}, ErrKeyNotFound
}

func (r *Run) dataitemRefs(ctx context.Context) ([]ResultRef, error) {
	if err := r.refreshResults(ctx); err != nil {
		return nil, err
	}
	if len(r.Status.Dataitems) == 0 {
		return nil, ErrNoResult
	}
	return r.Status.Dataitems, nil
}

func (r *Run) artifactRefs(ctx context.Context) ([]ResultRef, error) {
	if err := r.refreshResults(ctx); err != nil {
		return nil, err
	}
	if len(r.Status.Artifacts) == 0 {
		return nil, ErrNoResult
	}
	return r.Status.Artifacts, nil
}

// refreshResults brings in the backend's status before results are read.
// Local runs serve whatever status they hold in memory.
func (r *Run) refreshResults(ctx context.Context) error {
	if r.local {
		return nil
	}
	_, err := r.Refresh(ctx)
	return err
}
