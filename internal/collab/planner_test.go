package collab

import (
	"context"
	"errors"
	"strings"
	"testing"

	"scenecraft/internal/types"
)

func planRequest() *PlanRequest {
	pending := types.SceneObject{ID: "chair_01", Name: "chair"}
	return &PlanRequest{
		Command: &types.ParsedCommand{
			CommandType:     types.CommandCreateOrDestroy,
			InvolvedObjects: []string{"chair"},
			PrimaryAction:   "create",
		},
		Scene:   sceneWith("table_01"),
		Pose:    types.Pose{Position: types.Vector3{Y: 0}, Rotation: types.Vector3{}},
		Pending: []types.SceneObject{pending},
	}
}

func TestGeminiPlannerParsesBatch(t *testing.T) {
	client := &fakeClient{responses: []string{`{
		"placements": [
			{"objectId": "chair_01",
			 "position": {"x": 0.5, "y": -1.0, "z": -2.0},
			 "rotation": {"x": 0, "y": 1.57, "z": 0},
			 "action": "place"}
		],
		"reasoning": "in front of the user, clear of the table"
	}`}}
	p := NewGeminiPlanner(client)

	batch, err := p.Plan(context.Background(), planRequest())
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Placements) != 1 {
		t.Fatalf("placements = %d, want 1", len(batch.Placements))
	}
	pl := batch.Placements[0]
	if pl.ObjectID != "chair_01" || pl.Action != types.ActionPlace {
		t.Errorf("placement = %+v", pl)
	}
	if pl.Position.Z != -2.0 || pl.Rotation.Y != 1.57 {
		t.Errorf("placement vectors = %+v / %+v", pl.Position, pl.Rotation)
	}
	if batch.Reasoning == "" {
		t.Error("reasoning dropped")
	}
}

func TestGeminiPlannerDefaultsAction(t *testing.T) {
	client := &fakeClient{responses: []string{`{
		"placements": [
			{"objectId": "chair_01", "position": {"x": 0, "y": -1, "z": -2}, "rotation": {"x": 0, "y": 0, "z": 0}},
			{"objectId": "table_01", "position": {"x": 1, "y": -1, "z": -2}, "rotation": {"x": 0, "y": 0, "z": 0}}
		]
	}`}}
	p := NewGeminiPlanner(client)

	req := planRequest()
	batch, err := p.Plan(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	// Pending objects default to place, existing objects to move.
	if batch.Placements[0].Action != types.ActionPlace {
		t.Errorf("pending action = %q, want place", batch.Placements[0].Action)
	}
	if batch.Placements[1].Action != types.ActionMove {
		t.Errorf("existing action = %q, want move", batch.Placements[1].Action)
	}
}

func TestGeminiPlannerEmptyBatchIsMalformed(t *testing.T) {
	client := &fakeClient{responses: []string{`{"placements": []}`}}
	p := NewGeminiPlanner(client)

	if _, err := p.Plan(context.Background(), planRequest()); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("error = %v, want ErrMalformedResponse", err)
	}
}

func TestGeminiPlannerPromptCarriesRetryFeedback(t *testing.T) {
	client := &fakeClient{responses: []string{`{
		"placements": [{"objectId": "chair_01", "position": {"x": 3, "y": -1, "z": -2},
			"rotation": {"x": 0, "y": 0, "z": 0}, "action": "place"}]
	}`}}
	p := NewGeminiPlanner(client)

	req := planRequest()
	req.Feedback = &RetryFeedback{
		Attempt: 1,
		LastBatch: &types.PlacementBatch{Placements: []types.Placement{
			{ObjectID: "chair_01", Position: &types.Vector3{Y: -1}, Rotation: &types.Vector3{}, Action: types.ActionPlace},
		}},
		CollidingWith: []string{"chair_01", "table_01"},
		Message:       "chair_01 overlaps table_01",
	}

	if _, err := p.Plan(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	prompt := client.prompts[0]
	for _, want := range []string{"PREVIOUS ATTEMPT 1 WAS REJECTED", "table_01", "OBJECTS TO PLACE", "chair_01"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
