package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"scenecraft/internal/logging"
	"scenecraft/internal/types"
)

const plannerSystemPrompt = `You are an expert spatial reasoning AI for a 3D virtual environment.
You receive a structured command, the current scene, the user's pose, and the objects
that need positions. Calculate the EXACT final position and rotation for each of them.

COORDINATE SYSTEM:
- X-axis: left (-) to right (+)
- Y-axis: down (-) to up (+); the floor is at y=-1
- Z-axis: forward (-) to backward (+); the user faces -Z by default
- Rotations are in radians

SPATIAL REASONING RULES:
1. "next to" = about 0.5 m horizontal offset from the reference
2. "in front of" = offset in -Z relative to the reference
3. "behind" = offset in +Z
4. "on" = on top of the surface (about 0.3 m above it)
5. "between X and Y" = midpoint of the two objects
6. forward/backward/left/right are relative to the USER's facing direction
7. "a little" = 0.2 m, "a lot" = 0.6 m, unspecified = 0.3 m
8. Objects must not overlap and must stay above the floor

Respond with ONLY a JSON object:
{
  "placements": [
    {"objectId": "chair_01",
     "position": {"x": 0.0, "y": -1.0, "z": -1.5},
     "rotation": {"x": 0.0, "y": 0.0, "z": 0.0},
     "action": "place" | "move" | "rotate"}
  ],
  "reasoning": "short explanation"
}

Include exactly one placement for every object listed under OBJECTS TO PLACE.`

// GeminiPlanner turns intents into concrete placements with an LLM.
type GeminiPlanner struct {
	client LLMClient
}

// NewGeminiPlanner wraps an LLM client as a SpatialPlanner.
func NewGeminiPlanner(client LLMClient) *GeminiPlanner {
	return &GeminiPlanner{client: client}
}

// plannerResponse is the raw wire shape before boundary validation.
type plannerResponse struct {
	Placements []struct {
		ObjectID string         `json:"objectId"`
		Position *types.Vector3 `json:"position"`
		Rotation *types.Vector3 `json:"rotation"`
		Action   string         `json:"action"`
	} `json:"placements"`
	Reasoning string `json:"reasoning"`
}

// Plan proposes one placement per object needing a position. On retries the
// previous attempt and its collisions are spelled out so the planner avoids
// the same conflict. Deep structural checks are the verifier's job; this
// boundary only rejects responses that are not a placement batch at all.
func (p *GeminiPlanner) Plan(ctx context.Context, req *PlanRequest) (*types.PlacementBatch, error) {
	prompt, err := p.buildPrompt(req)
	if err != nil {
		return nil, err
	}

	raw, err := p.client.CompleteWithSystem(ctx, plannerSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	var resp plannerResponse
	if err := decodeResponse(raw, &resp); err != nil {
		return nil, err
	}
	if len(resp.Placements) == 0 {
		return nil, fmt.Errorf("%w: planner returned no placements", ErrMalformedResponse)
	}

	pending := make(map[string]bool, len(req.Pending))
	for i := range req.Pending {
		pending[req.Pending[i].ID] = true
	}

	batch := &types.PlacementBatch{Reasoning: resp.Reasoning}
	for _, pl := range resp.Placements {
		action := types.PlacementAction(strings.ToLower(strings.TrimSpace(pl.Action)))
		if action == "" {
			// Default by target kind: first placement for pending objects,
			// a move for everything else.
			if pending[pl.ObjectID] {
				action = types.ActionPlace
			} else {
				action = types.ActionMove
			}
		}
		batch.Placements = append(batch.Placements, types.Placement{
			ObjectID: pl.ObjectID,
			Position: pl.Position,
			Rotation: pl.Rotation,
			Action:   action,
		})
	}

	logging.Planner("planned %d placements (attempt context: %v)", len(batch.Placements), req.Feedback != nil)
	return batch, nil
}

// buildPrompt assembles the planner's user prompt: intent, pose, scene,
// targets, and retry feedback when present.
func (p *GeminiPlanner) buildPrompt(req *PlanRequest) (string, error) {
	var sb strings.Builder

	cmdJSON, err := json.MarshalIndent(req.Command, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal command: %w", err)
	}
	fmt.Fprintf(&sb, "USER COMMAND:\n%s\n\n", cmdJSON)

	fmt.Fprintf(&sb, "USER POSE:\nposition: (%.2f, %.2f, %.2f)\nfacing (y-rotation): %.2f radians\n\n",
		req.Pose.Position.X, req.Pose.Position.Y, req.Pose.Position.Z, req.Pose.Rotation.Y)

	sb.WriteString("SCENE OBJECTS:\n")
	for i := range req.Scene {
		obj := &req.Scene[i]
		line := map[string]interface{}{
			"id":       obj.ID,
			"name":     obj.Name,
			"category": obj.Category,
			"position": obj.Position,
			"rotation": obj.Rotation,
		}
		if obj.BoundingBox != nil {
			line["boundingBox"] = obj.BoundingBox
		}
		data, _ := json.Marshal(line)
		sb.Write(data)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	sb.WriteString("OBJECTS TO PLACE:\n")
	for i := range req.Pending {
		fmt.Fprintf(&sb, "- %s (%s, new object, needs first placement)\n", req.Pending[i].ID, req.Pending[i].Name)
	}
	for i := range req.Targets {
		fmt.Fprintf(&sb, "- %s (%s, existing object being transformed)\n", req.Targets[i].ID, req.Targets[i].Name)
	}

	if req.Feedback != nil {
		fb := req.Feedback
		fmt.Fprintf(&sb, "\nPREVIOUS ATTEMPT %d WAS REJECTED: %s\n", fb.Attempt, fb.Message)
		if len(fb.CollidingWith) > 0 {
			fmt.Fprintf(&sb, "It collided with: %s\n", strings.Join(fb.CollidingWith, ", "))
		}
		if fb.LastBatch != nil {
			data, _ := json.Marshal(fb.LastBatch)
			fmt.Fprintf(&sb, "Rejected placements: %s\n", data)
		}
		sb.WriteString("Choose clearly different positions that avoid those objects.\n")
	}

	return sb.String(), nil
}
