// Package verification checks proposed placements before they are committed:
// structural validation of what the planner returned, then an axis-aligned
// bounding-box collision pass against the current scene. The verifier only
// reads scene state, it never mutates it.
package verification

import (
	"fmt"
	"sort"
	"strings"

	"scenecraft/internal/logging"
	"scenecraft/internal/types"
)

// Verifier validates placement batches against a scene snapshot.
type Verifier struct {
	// Allowed per-axis interpenetration before two boxes count as colliding.
	// Non-zero so flush-contact placements ("put the cup on the table") pass.
	Tolerance float64

	// Half-extent of the fallback footprint for objects without a bounding box.
	DefaultFootprint float64

	// Vertical scene bounds. Positions outside [FloorY, CeilingY] fail the
	// collision pass.
	FloorY   float64
	CeilingY float64
}

// NewVerifier returns a verifier with the given spatial parameters.
func NewVerifier(tolerance, defaultFootprint, floorY, ceilingY float64) *Verifier {
	return &Verifier{
		Tolerance:        tolerance,
		DefaultFootprint: defaultFootprint,
		FloorY:           floorY,
		CeilingY:         ceilingY,
	}
}

// aabb is a world-space axis-aligned box.
type aabb struct {
	min, max types.Vector3
}

// overlaps reports whether two boxes interpenetrate beyond tol on every axis.
// Touching or near-touching boxes (within tol) do not collide.
func (a aabb) overlaps(b aabb, tol float64) bool {
	return a.min.X < b.max.X-tol && a.max.X > b.min.X+tol &&
		a.min.Y < b.max.Y-tol && a.max.Y > b.min.Y+tol &&
		a.min.Z < b.max.Z-tol && a.max.Z > b.min.Z+tol
}

// Verify checks a proposed batch against the scene. pending holds the new
// objects resolved in this turn that the scene does not know about yet; their
// ids are valid placement targets.
//
// Structural problems short-circuit: no collision pass runs on a batch the
// planner got structurally wrong.
func (v *Verifier) Verify(batch *types.PlacementBatch, scene []types.SceneObject, pending []types.SceneObject) *types.VerificationResult {
	timer := logging.StartTimer(logging.CategoryVerify, "Verify")
	defer timer.Stop()

	if batch == nil || len(batch.Placements) == 0 {
		return &types.VerificationResult{
			ValidStructure: false,
			Message:        "empty placement batch",
		}
	}

	known := make(map[string]*types.SceneObject, len(scene)+len(pending))
	for i := range scene {
		known[scene[i].ID] = &scene[i]
	}
	for i := range pending {
		known[pending[i].ID] = &pending[i]
	}

	if msg := v.checkStructure(batch, known); msg != "" {
		logging.Verify("structural failure: %s", msg)
		return &types.VerificationResult{ValidStructure: false, Message: msg}
	}

	return v.checkCollisions(batch, scene, known)
}

// checkStructure returns a failure message, or "" when the batch is sound.
func (v *Verifier) checkStructure(batch *types.PlacementBatch, known map[string]*types.SceneObject) string {
	seen := make(map[string]bool, len(batch.Placements))
	for i, p := range batch.Placements {
		if p.ObjectID == "" {
			return fmt.Sprintf("placement %d has no objectId", i)
		}
		if _, ok := known[p.ObjectID]; !ok {
			return fmt.Sprintf("placement %d references unknown object %q", i, p.ObjectID)
		}
		if seen[p.ObjectID] {
			return fmt.Sprintf("object %q placed twice in one batch", p.ObjectID)
		}
		seen[p.ObjectID] = true
		if p.Position == nil {
			return fmt.Sprintf("placement for %q has no position", p.ObjectID)
		}
		if !p.Position.IsFinite() {
			return fmt.Sprintf("placement for %q has non-finite position", p.ObjectID)
		}
		if p.Rotation == nil {
			return fmt.Sprintf("placement for %q has no rotation", p.ObjectID)
		}
		if !p.Rotation.IsFinite() {
			return fmt.Sprintf("placement for %q has non-finite rotation", p.ObjectID)
		}
		switch p.Action {
		case types.ActionPlace, types.ActionMove, types.ActionRotate:
		default:
			return fmt.Sprintf("placement for %q has invalid action %q", p.ObjectID, p.Action)
		}
	}
	return ""
}

// checkCollisions runs the AABB pass: every placement against every placed
// scene object not being moved in this batch, and against the other batch
// entries. Floor/ceiling bounds are part of the same pass.
func (v *Verifier) checkCollisions(batch *types.PlacementBatch, scene []types.SceneObject, known map[string]*types.SceneObject) *types.VerificationResult {
	inBatch := make(map[string]bool, len(batch.Placements))
	for _, p := range batch.Placements {
		inBatch[p.ObjectID] = true
	}

	colliding := make(map[string]bool)
	var messages []string

	boxes := make([]aabb, len(batch.Placements))
	for i, p := range batch.Placements {
		boxes[i] = v.boxAt(known[p.ObjectID], *p.Position)

		if p.Position.Y < v.FloorY-v.Tolerance || p.Position.Y > v.CeilingY+v.Tolerance {
			colliding[p.ObjectID] = true
			messages = append(messages, fmt.Sprintf("%s is outside vertical bounds [%.2f, %.2f] at y=%.2f",
				p.ObjectID, v.FloorY, v.CeilingY, p.Position.Y))
		}
	}

	// Against placed scene objects, excluding anything moved in this batch.
	for i, p := range batch.Placements {
		for j := range scene {
			obj := &scene[j]
			if inBatch[obj.ID] || !obj.Placed() {
				continue
			}
			other := v.boxAt(obj, *obj.Position)
			if boxes[i].overlaps(other, v.Tolerance) {
				colliding[p.ObjectID] = true
				colliding[obj.ID] = true
				messages = append(messages, fmt.Sprintf("%s overlaps %s", p.ObjectID, obj.ID))
			}
		}
	}

	// Batch-internal overlaps.
	for i := range batch.Placements {
		for j := i + 1; j < len(batch.Placements); j++ {
			if boxes[i].overlaps(boxes[j], v.Tolerance) {
				a, b := batch.Placements[i].ObjectID, batch.Placements[j].ObjectID
				colliding[a] = true
				colliding[b] = true
				messages = append(messages, fmt.Sprintf("%s overlaps %s within the batch", a, b))
			}
		}
	}

	if len(colliding) == 0 {
		logging.VerifyDebug("batch of %d placements verified clean", len(batch.Placements))
		return &types.VerificationResult{ValidStructure: true}
	}

	ids := make([]string, 0, len(colliding))
	for id := range colliding {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	logging.Verify("collision: %s", strings.Join(messages, "; "))
	return &types.VerificationResult{
		ValidStructure: true,
		HasCollision:   true,
		Message:        strings.Join(messages, "; "),
		CollidingWith:  ids,
	}
}

// boxAt computes the world-space box for an object at the given position:
// the object's bounding box scaled by its scale, or the default footprint,
// shifted by the object's yOffset.
func (v *Verifier) boxAt(obj *types.SceneObject, pos types.Vector3) aabb {
	cy := pos.Y + obj.YOffset

	if obj.BoundingBox == nil {
		h := v.DefaultFootprint
		return aabb{
			min: types.Vector3{X: pos.X - h, Y: cy - h, Z: pos.Z - h},
			max: types.Vector3{X: pos.X + h, Y: cy + h, Z: pos.Z + h},
		}
	}

	sx, sy, sz := obj.Scale.X, obj.Scale.Y, obj.Scale.Z
	if sx == 0 {
		sx = 1
	}
	if sy == 0 {
		sy = 1
	}
	if sz == 0 {
		sz = 1
	}

	bb := obj.BoundingBox
	return aabb{
		min: types.Vector3{X: pos.X + bb.Min.X*sx, Y: cy + bb.Min.Y*sy, Z: pos.Z + bb.Min.Z*sz},
		max: types.Vector3{X: pos.X + bb.Max.X*sx, Y: cy + bb.Max.Y*sy, Z: pos.Z + bb.Max.Z*sz},
	}
}
