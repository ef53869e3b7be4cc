package collab

import (
	"context"
	"fmt"
	"strings"

	"scenecraft/internal/logging"
	"scenecraft/internal/types"
)

const classifierSystemPrompt = `You are the command classifier for a natural-language 3D scene editor.
Given a user command and the recent conversation, classify the command and extract its structure.

Command types:
- "create_or_destroy": the user adds new objects to the scene or deletes existing ones
  (e.g. "add a lamp", "put 3 chairs around the table", "remove the sofa")
- "transform": the user moves or rotates objects that already exist
  (e.g. "move the chair left", "rotate the table 90 degrees")
- "complex_or_vague": anything ambiguous, multi-step, or dependent on earlier turns
  (e.g. "make it cozier", "do that again but further away")

Respond with ONLY a JSON object:
{
  "commandType": "create_or_destroy" | "transform" | "complex_or_vague",
  "involvedObjects": ["chair", "table"],
  "spatialPhrases": ["next to", "left"],
  "intentSummary": "one sentence restating what the user wants",
  "primaryAction": "add" | "delete" | "move" | "rotate" | "arrange",
  "needsAssetSelection": true
}

For quantity phrases like "3 chairs", repeat the object name once per instance in involvedObjects.
Only list tangible objects; never list the user, rooms, or abstract words.`

// GeminiClassifier classifies commands with an LLM.
type GeminiClassifier struct {
	client LLMClient
}

// NewGeminiClassifier wraps an LLM client as a Classifier.
func NewGeminiClassifier(client LLMClient) *GeminiClassifier {
	return &GeminiClassifier{client: client}
}

// classifierResponse is the raw wire shape before boundary validation.
type classifierResponse struct {
	CommandType         string   `json:"commandType"`
	InvolvedObjects     []string `json:"involvedObjects"`
	SpatialPhrases      []string `json:"spatialPhrases"`
	IntentSummary       string   `json:"intentSummary"`
	PrimaryAction       string   `json:"primaryAction"`
	NeedsAssetSelection bool     `json:"needsAssetSelection"`
}

// Classify sends the prompt plus a bounded window of recent turns and
// validates the structured result.
func (c *GeminiClassifier) Classify(ctx context.Context, prompt string, recent []types.Turn) (*types.ParsedCommand, error) {
	var sb strings.Builder
	if len(recent) > 0 {
		sb.WriteString("RECENT TURNS (oldest first):\n")
		for _, t := range recent {
			outcome := "ok"
			if !t.Success {
				outcome = "failed"
			}
			fmt.Fprintf(&sb, "- turn %d [%s]: %q", t.Number, outcome, t.Prompt)
			if t.Command != nil {
				fmt.Fprintf(&sb, " (%s: %s)", t.Command.CommandType, t.Command.IntentSummary)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "USER COMMAND:\n%s", prompt)

	raw, err := c.client.CompleteWithSystem(ctx, classifierSystemPrompt, sb.String())
	if err != nil {
		return nil, err
	}

	var resp classifierResponse
	if err := decodeResponse(raw, &resp); err != nil {
		return nil, err
	}

	cmdType, err := normalizeCommandType(resp.CommandType)
	if err != nil {
		return nil, err
	}

	parsed := &types.ParsedCommand{
		CommandType:         cmdType,
		InvolvedObjects:     resp.InvolvedObjects,
		SpatialPhrases:      resp.SpatialPhrases,
		IntentSummary:       resp.IntentSummary,
		PrimaryAction:       strings.ToLower(strings.TrimSpace(resp.PrimaryAction)),
		NeedsAssetSelection: resp.NeedsAssetSelection,
	}

	logging.Get(logging.CategoryClassifier).Info("classified %q as %s (action=%s, objects=%v)",
		prompt, parsed.CommandType, parsed.PrimaryAction, parsed.InvolvedObjects)
	return parsed, nil
}

// normalizeCommandType maps the wire value (including the legacy labels the
// first front end used) onto a known command type.
func normalizeCommandType(raw string) (types.CommandType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "create_or_destroy", "add/delete", "createordestroy":
		return types.CommandCreateOrDestroy, nil
	case "transform", "pos/rotate":
		return types.CommandTransform, nil
	case "complex_or_vague", "vague/complex", "complexorvague":
		return types.CommandComplexOrVague, nil
	default:
		return "", fmt.Errorf("%w: unknown command type %q", ErrMalformedResponse, raw)
	}
}
