package collab

import (
	"context"
	"errors"
	"strings"
	"testing"

	"scenecraft/internal/types"
)

func TestGeminiClassifier(t *testing.T) {
	client := &fakeClient{responses: []string{"```json\n" + `{
		"commandType": "create_or_destroy",
		"involvedObjects": ["chair", "chair"],
		"spatialPhrases": ["around the table"],
		"intentSummary": "add two chairs around the table",
		"primaryAction": "Add",
		"needsAssetSelection": true
	}` + "\n```"}}
	c := NewGeminiClassifier(client)

	cmd, err := c.Classify(context.Background(), "put 2 chairs around the table", nil)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.CommandType != types.CommandCreateOrDestroy {
		t.Errorf("type = %q", cmd.CommandType)
	}
	if len(cmd.InvolvedObjects) != 2 {
		t.Errorf("objects = %v", cmd.InvolvedObjects)
	}
	if cmd.PrimaryAction != "add" {
		t.Errorf("action = %q, want lowercased add", cmd.PrimaryAction)
	}
	if !cmd.NeedsAssetSelection {
		t.Error("needsAssetSelection lost")
	}
}

func TestGeminiClassifierIncludesRecentTurns(t *testing.T) {
	client := &fakeClient{responses: []string{
		`{"commandType": "complex_or_vague", "intentSummary": "repeat"}`,
	}}
	c := NewGeminiClassifier(client)

	recent := []types.Turn{
		{Number: 1, Prompt: "add a chair", Success: true,
			Command: &types.ParsedCommand{CommandType: types.CommandCreateOrDestroy, IntentSummary: "add one chair"}},
		{Number: 2, Prompt: "move it left", Success: false},
	}
	if _, err := c.Classify(context.Background(), "do that again", recent); err != nil {
		t.Fatal(err)
	}

	prompt := client.prompts[0]
	for _, want := range []string{"RECENT TURNS", "add a chair", "move it left", "failed", "do that again"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestGeminiClassifierRejectsUnknownType(t *testing.T) {
	client := &fakeClient{responses: []string{`{"commandType": "summon"}`}}
	c := NewGeminiClassifier(client)

	_, err := c.Classify(context.Background(), "summon a dragon", nil)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("error = %v, want ErrMalformedResponse", err)
	}
}

func TestGeminiClassifierPropagatesClientError(t *testing.T) {
	client := &fakeClient{err: errors.New("deadline exceeded")}
	c := NewGeminiClassifier(client)

	if _, err := c.Classify(context.Background(), "add a chair", nil); err == nil {
		t.Fatal("client error should propagate")
	}
}
