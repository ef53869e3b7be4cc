// Package types defines the shared data model for scenecraft: scene objects,
// parsed commands, placement proposals, verification results, and turn records.
// These types cross package boundaries, so they live here to avoid import cycles.
package types

import (
	"math"
	"time"
)

// Vector3 is a 3-component vector. Axis convention follows the WebXR front end:
// X left(-)/right(+), Y down(-)/up(+) with the floor at y=-1, Z forward(-)/backward(+).
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// IsFinite reports whether all three components are finite numbers.
func (v Vector3) IsFinite() bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// VectorUpdate is a partial update of a Vector3: nil axes are left unchanged.
type VectorUpdate struct {
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`
	Z *float64 `json:"z,omitempty"`
}

// FullUpdate converts a complete vector into an update touching all three axes.
func FullUpdate(v Vector3) VectorUpdate {
	x, y, z := v.X, v.Y, v.Z
	return VectorUpdate{X: &x, Y: &y, Z: &z}
}

// ApplyTo merges the update into base, replacing only the axes that are set.
func (u VectorUpdate) ApplyTo(base Vector3) Vector3 {
	if u.X != nil {
		base.X = *u.X
	}
	if u.Y != nil {
		base.Y = *u.Y
	}
	if u.Z != nil {
		base.Z = *u.Z
	}
	return base
}

// BoundingBox is an axis-aligned extent in the object's local space,
// before scaling and translation.
type BoundingBox struct {
	Min Vector3 `json:"min"`
	Max Vector3 `json:"max"`
}

// SpatialRelations records advisory relationships between objects.
// They are hints for the planner, never enforced by the store.
type SpatialRelations struct {
	On   string   `json:"on,omitempty"`
	Near []string `json:"near,omitempty"`
}

// SceneObject is one object in the shared scene.
// An object with both Position and Rotation set is "placed"; an object with
// neither is "pending" (awaiting placement) and is invisible to collision checks.
type SceneObject struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	Category         string                 `json:"category,omitempty"`
	Subcategory      string                 `json:"subcategory,omitempty"`
	ModelPath        string                 `json:"modelPath,omitempty"`
	Position         *Vector3               `json:"position"`
	Rotation         *Vector3               `json:"rotation"`
	Scale            Vector3                `json:"scale"`
	YOffset          float64                `json:"yOffset,omitempty"`
	BoundingBox      *BoundingBox           `json:"boundingBox,omitempty"`
	Properties       map[string]interface{} `json:"properties,omitempty"`
	SpatialRelations *SpatialRelations      `json:"spatialRelations,omitempty"`
}

// Placed reports whether the object has both a position and a rotation.
func (o *SceneObject) Placed() bool {
	return o.Position != nil && o.Rotation != nil
}

// Movable reports the object's movable property, defaulting to true.
func (o *SceneObject) Movable() bool {
	if o.Properties == nil {
		return true
	}
	if m, ok := o.Properties["movable"].(bool); ok {
		return m
	}
	return true
}

// Clone returns a deep copy of the object.
func (o *SceneObject) Clone() SceneObject {
	c := *o
	if o.Position != nil {
		p := *o.Position
		c.Position = &p
	}
	if o.Rotation != nil {
		r := *o.Rotation
		c.Rotation = &r
	}
	if o.BoundingBox != nil {
		b := *o.BoundingBox
		c.BoundingBox = &b
	}
	if o.Properties != nil {
		c.Properties = make(map[string]interface{}, len(o.Properties))
		for k, v := range o.Properties {
			c.Properties[k] = v
		}
	}
	if o.SpatialRelations != nil {
		sr := SpatialRelations{On: o.SpatialRelations.On}
		sr.Near = append(sr.Near, o.SpatialRelations.Near...)
		c.SpatialRelations = &sr
	}
	return c
}

// CommandType is the high-level classification of a user command.
type CommandType string

const (
	CommandCreateOrDestroy CommandType = "create_or_destroy" // add/delete objects
	CommandTransform       CommandType = "transform"         // move/rotate existing objects
	CommandComplexOrVague  CommandType = "complex_or_vague"  // needs memory context, may need assets
)

// ParsedCommand is the structured intent produced by the command classifier.
type ParsedCommand struct {
	CommandType         CommandType `json:"commandType"`
	InvolvedObjects     []string    `json:"involvedObjects"`
	SpatialPhrases      []string    `json:"spatialPhrases"`
	IntentSummary       string      `json:"intentSummary"`
	PrimaryAction       string      `json:"primaryAction"`
	NeedsAssetSelection bool        `json:"needsAssetSelection"`
}

// Pose is the requester's position and orientation, supplied by head tracking.
// Rotation is Euler radians; a zero pose faces -Z at the origin.
type Pose struct {
	Position Vector3 `json:"position"`
	Rotation Vector3 `json:"rotation"`
}

// PlacementAction describes what a placement entry does to its object.
type PlacementAction string

const (
	ActionPlace  PlacementAction = "place"  // first placement of a pending object
	ActionMove   PlacementAction = "move"   // position update
	ActionRotate PlacementAction = "rotate" // rotation update
	ActionDelete PlacementAction = "delete" // removal (resolver-produced, never planned)
)

// Placement is one proposed object placement from the spatial planner.
type Placement struct {
	ObjectID string          `json:"objectId"`
	Position *Vector3        `json:"position"`
	Rotation *Vector3        `json:"rotation"`
	Action   PlacementAction `json:"action"`
}

// PlacementBatch is the set of placements proposed, verified, and committed
// together in one Plan→Verify cycle.
type PlacementBatch struct {
	Placements []Placement `json:"placements"`
	Reasoning  string      `json:"reasoning,omitempty"`
}

// VerificationResult is the outcome of checking a placement batch.
type VerificationResult struct {
	ValidStructure bool     `json:"validStructure"`
	HasCollision   bool     `json:"hasCollision"`
	Message        string   `json:"message,omitempty"`
	CollidingWith  []string `json:"collidingWith,omitempty"`
}

// OK reports whether the batch may be committed.
func (r *VerificationResult) OK() bool {
	return r.ValidStructure && !r.HasCollision
}

// FinalAction records the outcome of applying one batch entry to the store.
type FinalAction struct {
	ObjectID string          `json:"objectId"`
	Action   PlacementAction `json:"action"`
	Success  bool            `json:"success"`
	Message  string          `json:"message,omitempty"`
}

// Turn is the immutable record of one processed command. It is created once,
// at the end of a workflow run, and never mutated after the ledger append.
type Turn struct {
	ID              string              `json:"id"`
	SessionID       string              `json:"sessionId"`
	Number          int                 `json:"turn"`
	Timestamp       time.Time           `json:"timestamp"`
	Prompt          string              `json:"userPrompt"`
	Command         *ParsedCommand      `json:"parsedCommand,omitempty"`
	Proposed        *PlacementBatch     `json:"proposedPlacement,omitempty"`
	Verification    *VerificationResult `json:"verificationResult,omitempty"`
	Success         bool                `json:"success"`
	Error           string              `json:"error,omitempty"`
	Iterations      int                 `json:"iterations"`
	Actions         []FinalAction       `json:"finalActions,omitempty"`
	UnresolvedNames []string            `json:"unresolvedNames,omitempty"`
}

// ChangeKind identifies the kind of scene mutation behind a change event.
type ChangeKind string

const (
	ChangeAdded           ChangeKind = "added"
	ChangeRemoved         ChangeKind = "removed"
	ChangePositionUpdated ChangeKind = "positionUpdated"
	ChangeRotationUpdated ChangeKind = "rotationUpdated"
)

// ChangeEvent is emitted by the scene store after every successful mutation
// and forwarded verbatim to broadcast subscribers.
type ChangeEvent struct {
	Kind     ChangeKind  `json:"type"`
	ObjectID string      `json:"objectId"`
	Name     string      `json:"name,omitempty"`
	Payload  interface{} `json:"payload,omitempty"`
}
