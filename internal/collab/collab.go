// Package collab defines the external collaborators the workflow engine
// consumes - command classifier, asset resolver, and spatial planner - plus
// their Gemini-backed implementations. The engine never trusts collaborator
// output: every response is validated at this boundary and any deviation
// surfaces as ErrMalformedResponse.
package collab

import (
	"context"
	"errors"

	"scenecraft/internal/types"
)

// ErrMalformedResponse marks a collaborator response that failed boundary
// validation (bad JSON, missing fields, unknown enum values). Timeouts are
// treated identically by the engine.
var ErrMalformedResponse = errors.New("malformed collaborator response")

// Classifier maps a free-text prompt plus recent session history into a
// command type and structured intent.
type Classifier interface {
	Classify(ctx context.Context, prompt string, recent []types.Turn) (*types.ParsedCommand, error)
}

// Resolution is the asset resolver's answer for a create/destroy intent.
// NewObjects are pending records without ids, positions, or rotations; the
// engine assigns ids at creation time. Unresolved names do not fail the
// turn - the workflow continues with whatever resolved.
type Resolution struct {
	NewObjects []types.SceneObject `json:"newObjects"`
	DeleteIDs  []string            `json:"deleteIds"`
	Unresolved []string            `json:"unresolvedNames"`
}

// Empty reports whether nothing at all resolved.
func (r *Resolution) Empty() bool {
	return len(r.NewObjects) == 0 && len(r.DeleteIDs) == 0
}

// AssetResolver turns named object references into concrete catalog-backed
// records or deletion targets.
type AssetResolver interface {
	Resolve(ctx context.Context, cmd *types.ParsedCommand, scene []types.SceneObject) (*Resolution, error)
}

// RetryFeedback describes a rejected attempt so the planner can avoid the
// same conflict on the next one.
type RetryFeedback struct {
	Attempt       int
	LastBatch     *types.PlacementBatch
	CollidingWith []string
	Message       string
}

// PlanRequest carries everything the spatial planner needs for one attempt.
type PlanRequest struct {
	Command  *types.ParsedCommand
	Scene    []types.SceneObject
	Pose     types.Pose
	Pending  []types.SceneObject // new objects awaiting first placement
	Targets  []types.SceneObject // existing objects being transformed
	Feedback *RetryFeedback      // nil on the first attempt
}

// SpatialPlanner proposes one placement per object that needs a position.
type SpatialPlanner interface {
	Plan(ctx context.Context, req *PlanRequest) (*types.PlacementBatch, error)
}
