package workflow

import (
	"testing"

	"scenecraft/internal/types"

	"github.com/google/go-cmp/cmp"
)

func TestFallbackClassify(t *testing.T) {
	f := NewFallbackClassifier()

	tests := []struct {
		name        string
		prompt      string
		wantType    types.CommandType
		wantAction  string
		wantObjects []string
	}{
		{
			name:        "create single",
			prompt:      "add a chair",
			wantType:    types.CommandCreateOrDestroy,
			wantAction:  "create",
			wantObjects: []string{"chair"},
		},
		{
			name:        "create with digit quantity",
			prompt:      "add 3 chairs",
			wantType:    types.CommandCreateOrDestroy,
			wantAction:  "create",
			wantObjects: []string{"chair", "chair", "chair"},
		},
		{
			name:        "create with word quantity",
			prompt:      "place two lamps on the desk",
			wantType:    types.CommandCreateOrDestroy,
			wantAction:  "create",
			wantObjects: []string{"lamp", "lamp", "desk"},
		},
		{
			name:        "delete",
			prompt:      "remove the sofa",
			wantType:    types.CommandCreateOrDestroy,
			wantAction:  "delete",
			wantObjects: []string{"sofa"},
		},
		{
			name:        "move",
			prompt:      "move the table to the left",
			wantType:    types.CommandTransform,
			wantAction:  "move",
			wantObjects: []string{"table"},
		},
		{
			name:        "rotate",
			prompt:      "turn the chair to face me",
			wantType:    types.CommandTransform,
			wantAction:  "rotate",
			wantObjects: []string{"chair"},
		},
		{
			name:       "no verb is vague",
			prompt:     "something cozy over there",
			wantType:   types.CommandComplexOrVague,
			wantAction: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := f.Classify(tt.prompt)
			if cmd.CommandType != tt.wantType {
				t.Errorf("type = %q, want %q", cmd.CommandType, tt.wantType)
			}
			if cmd.PrimaryAction != tt.wantAction {
				t.Errorf("action = %q, want %q", cmd.PrimaryAction, tt.wantAction)
			}
			if tt.wantObjects != nil {
				if diff := cmp.Diff(tt.wantObjects, cmd.InvolvedObjects); diff != "" {
					t.Errorf("objects mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestFallbackNeverFails(t *testing.T) {
	f := NewFallbackClassifier()
	for _, prompt := range []string{"", "???", "a the of", "12345"} {
		if cmd := f.Classify(prompt); cmd == nil {
			t.Errorf("Classify(%q) returned nil", prompt)
		}
	}
}

func TestSingularize(t *testing.T) {
	cases := map[string]string{
		"chairs":  "chair",
		"boxes":   "box",
		"benches": "bench",
		"parties": "party",
		"glass":   "glass",
		"sofa":    "sofa",
	}
	for in, want := range cases {
		if got := singularize(in); got != want {
			t.Errorf("singularize(%q) = %q, want %q", in, got, want)
		}
	}
}
