package workflow

import (
	"regexp"
	"strconv"
	"strings"

	"scenecraft/internal/types"
)

// FallbackClassifier is the deterministic lexical classifier used when the
// LLM classifier is unavailable or returns garbage. It keyword-matches the
// prompt into one of the three command types and extracts object references
// with quantity expansion.
type FallbackClassifier struct {
	createWords map[string]bool
	deleteWords map[string]bool
	moveWords   map[string]bool
	rotateWords map[string]bool
	stopWords   map[string]bool
}

// NewFallbackClassifier builds the keyword tables.
func NewFallbackClassifier() *FallbackClassifier {
	return &FallbackClassifier{
		createWords: wordSet("add", "create", "spawn", "place", "put", "insert", "make"),
		deleteWords: wordSet("delete", "remove", "destroy", "clear", "erase", "drop"),
		moveWords:   wordSet("move", "shift", "push", "pull", "slide", "relocate", "bring"),
		rotateWords: wordSet("rotate", "turn", "spin", "face", "flip"),
		stopWords: wordSet("a", "an", "the", "to", "of", "in", "on", "at", "my", "me",
			"it", "them", "this", "that", "and", "with", "from", "by", "for",
			"please", "left", "right", "front", "back", "behind", "next",
			"near", "here", "there", "up", "down", "forward", "backward",
			"little", "lot", "bit", "some", "new"),
	}
}

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)

// Classify keyword-matches the prompt. It never fails; a prompt matching no
// verb at all is classified as complex_or_vague so the full pipeline with
// memory context gets a chance at it.
func (f *FallbackClassifier) Classify(prompt string) *types.ParsedCommand {
	tokens := tokenPattern.FindAllString(strings.ToLower(prompt), -1)

	var primary string
	cmdType := types.CommandComplexOrVague
	for _, tok := range tokens {
		switch {
		case f.createWords[tok]:
			cmdType = types.CommandCreateOrDestroy
			primary = "create"
		case f.deleteWords[tok]:
			cmdType = types.CommandCreateOrDestroy
			primary = "delete"
		case f.moveWords[tok]:
			cmdType = types.CommandTransform
			primary = "move"
		case f.rotateWords[tok]:
			cmdType = types.CommandTransform
			primary = "rotate"
		default:
			continue
		}
		break
	}

	objects := f.extractObjects(tokens)
	return &types.ParsedCommand{
		CommandType:         cmdType,
		InvolvedObjects:     objects,
		IntentSummary:       prompt,
		PrimaryAction:       primary,
		NeedsAssetSelection: cmdType == types.CommandCreateOrDestroy && primary == "create",
	}
}

// extractObjects pulls candidate object nouns out of the token stream,
// expanding leading quantities: "3 chairs" and "three chairs" both yield
// three "chair" entries.
func (f *FallbackClassifier) extractObjects(tokens []string) []string {
	var objects []string
	count := 1
	for _, tok := range tokens {
		if n, err := strconv.Atoi(tok); err == nil && n > 0 && n <= 50 {
			count = n
			continue
		}
		if n, ok := numberWords[tok]; ok {
			count = n
			continue
		}
		if f.stopWords[tok] || f.isVerb(tok) {
			continue
		}

		name := singularize(tok)
		for i := 0; i < count; i++ {
			objects = append(objects, name)
		}
		count = 1
	}
	return objects
}

func (f *FallbackClassifier) isVerb(tok string) bool {
	return f.createWords[tok] || f.deleteWords[tok] || f.moveWords[tok] || f.rotateWords[tok]
}

// singularize strips a plural suffix so "chairs" matches the "chair" catalog
// entry. Naive on purpose; the catalog lookup is substring-based anyway.
func singularize(word string) string {
	switch {
	case strings.HasSuffix(word, "ies") && len(word) > 4:
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "es") && len(word) > 3 &&
		(strings.HasSuffix(word, "shes") || strings.HasSuffix(word, "ches") || strings.HasSuffix(word, "xes")):
		return word[:len(word)-2]
	case strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") && len(word) > 2:
		return word[:len(word)-1]
	}
	return word
}

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
