package dna

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fable/pkg/schema"
)

type fakeInferencer struct {
	out   string
	err   error
	calls int
}

func (f *fakeInferencer) Infer(ctx context.Context, params *openai.ChatCompletionNewParams, system, user string) (string, error) {
	f.calls++
	return f.out, f.err
}

func (f *fakeInferencer) Verify(ctx context.Context, result string) (bool, error) {
	if result == "" {
		return false, errors.New("empty result")
	}
	return true, nil
}

const validDnaJSON = `{
	"scene_genetics": {"location_type": "forest", "location_description": "a mossy hollow under old oaks", "time_context": "dusk", "atmosphere": "uneasy"},
	"character_genetics": {"active_characters": ["Mira", "Tobin", "You", "Each", "This", "Wren", "Aldric", "Sella"], "character_states": {"Mira": "wounded"}},
	"emotional_genetics": {"dominant_emotions": ["fear"], "emotional_momentum": "rising", "tension_level": "high"},
	"plot_genetics": {"pending_decisions": ["cross the river"], "active_conflicts": [], "conversation_threads": []},
	"ending_genetics": {"final_scene_context": "Mira freezes at the treeline.", "last_dialogue": "\"Did you hear that?\"", "last_action": "Mira draws her knife.", "scene_status": "ongoing", "cliffhanger_type": "suspense"},
	"continuity_anchors": ["Mira carries her mother's knife"]
}`

func TestExtractFiltersDenylistAndCapsCharacters(t *testing.T) {
	e := NewExtractor(&fakeInferencer{out: validDnaJSON})
	record := e.Extract(context.Background(), "Mira walked into the forest.", 3)

	require.Equal(t, schema.ExtractionOK, record.ExtractionStatus)
	require.Equal(t, 3, record.ChapterNumber)

	for _, name := range record.CharacterGenetics.ActiveCharacters {
		_, denied := characterDenylist[name]
		assert.False(t, denied, "denylisted token %q survived filtering", name)
	}
	assert.LessOrEqual(t, len(record.CharacterGenetics.ActiveCharacters), maxActiveCharacters)
	assert.Contains(t, record.CharacterGenetics.ActiveCharacters, "Mira")
}

func TestExtractRepairsCodeFencesAndTrailingCommas(t *testing.T) {
	wrapped := "```json\n" + strings.Replace(validDnaJSON, `"continuity_anchors": ["Mira carries her mother's knife"]`, `"continuity_anchors": ["Mira carries her mother's knife",]`, 1) + "\n```"
	e := NewExtractor(&fakeInferencer{out: wrapped})

	record := e.Extract(context.Background(), "chapter text", 1)
	require.Equal(t, schema.ExtractionOK, record.ExtractionStatus)
	assert.Equal(t, []string{"Mira carries her mother's knife"}, record.ContinuityAnchors)
}

func TestExtractPartialFallbackOnMalformedJSON(t *testing.T) {
	raw := "The model rambled instead of returning JSON. " + strings.Repeat("x", 300)
	e := NewExtractor(&fakeInferencer{out: raw})

	record := e.Extract(context.Background(), "chapter text", 2)
	require.Equal(t, schema.ExtractionPartialFallback, record.ExtractionStatus)
	assert.NotEmpty(t, record.EndingGenetics.FinalSceneContext)
	assert.LessOrEqual(t, len(record.EndingGenetics.FinalSceneContext), partialContextChars+3) // "..." suffix
	assert.Empty(t, record.CharacterGenetics.ActiveCharacters)
}

func TestExtractFallbackOnInferenceError(t *testing.T) {
	text := "Mira and Tobin crossed the bridge. Wren waited. The rain kept falling on the village roofs."
	e := NewExtractor(&fakeInferencer{err: errors.New("timeout")})

	record := e.Extract(context.Background(), text, 4)
	require.Equal(t, schema.ExtractionFallback, record.ExtractionStatus)
	assert.Empty(t, record.ContinuityAnchors)
	assert.LessOrEqual(t, len(record.CharacterGenetics.ActiveCharacters), fallbackNames)
	assert.Contains(t, record.CharacterGenetics.ActiveCharacters, "Mira")
	assert.NotContains(t, record.CharacterGenetics.ActiveCharacters, "The")
	assert.Contains(t, record.EndingGenetics.FinalSceneContext, "village roofs.")
}

func TestExtractNeverPanicsOnHostileInput(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		`quotes " everywhere "" and \ backslashes`,
		"これは日本語のテキストです。彼女は森へ行った。",
		strings.Repeat("A very long chapter. ", 20000),
	}
	for _, in := range inputs {
		e := NewExtractor(&fakeInferencer{out: "not json", err: nil})
		assert.NotPanics(t, func() {
			record := e.Extract(context.Background(), in, 1)
			assert.NotEqual(t, schema.ExtractionStatus(""), record.ExtractionStatus)
		})
	}
}

func TestValidateAndCleanReplacesOverusedLocation(t *testing.T) {
	withCliche := strings.Replace(validDnaJSON, "a mossy hollow under old oaks", "at the edge of the ancient forest again", 1)
	e := NewExtractor(&fakeInferencer{out: withCliche})

	record := e.Extract(context.Background(), "chapter text", 5)
	require.Equal(t, schema.ExtractionOK, record.ExtractionStatus)
	assert.NotContains(t, strings.ToLower(record.SceneGenetics.LocationDescription), "edge of the ancient forest")
	assert.NotEmpty(t, record.SceneGenetics.LocationDescription)
}

func TestExtractVarietySafeReplacesRepeatedDescription(t *testing.T) {
	e := NewExtractor(&fakeInferencer{out: validDnaJSON})
	prior := []schema.ChapterDna{{
		SceneGenetics: schema.SceneGenetics{
			LocationType:        "forest",
			LocationDescription: "A MOSSY HOLLOW UNDER OLD OAKS",
		},
	}}

	record := e.ExtractVarietySafe(context.Background(), "chapter text", 6, prior)
	assert.False(t, strings.EqualFold("a mossy hollow under old oaks", record.SceneGenetics.LocationDescription))
	assert.NotEmpty(t, record.SceneGenetics.LocationDescription)
}

func TestExtractVarietySafePicksDistinctReplacements(t *testing.T) {
	e := NewExtractor(&fakeInferencer{out: validDnaJSON})
	prior := []schema.ChapterDna{{
		SceneGenetics: schema.SceneGenetics{LocationType: "forest", LocationDescription: "a mossy hollow under old oaks"},
	}}

	first := e.ExtractVarietySafe(context.Background(), "text", 2, prior)
	second := e.ExtractVarietySafe(context.Background(), "text", 3, prior)
	assert.NotEqual(t, first.SceneGenetics.LocationDescription, second.SceneGenetics.LocationDescription)
}

func TestFormatForPromptStructured(t *testing.T) {
	e := NewExtractor(&fakeInferencer{out: validDnaJSON})
	record := e.Extract(context.Background(), "chapter text", 7)

	formatted := FormatForPrompt(record)
	assert.Contains(t, formatted, "CHAPTER 7 DNA:")
	assert.Contains(t, formatted, "Mira")
	assert.Contains(t, formatted, "Continuity anchors:")
	assert.Contains(t, formatted, "Cliffhanger: suspense")
}

func TestExtractVarietySafeCatchesNearIdenticalSpelling(t *testing.T) {
	// Not a substring in either direction, and one word differs, but the edit
	// distance is a single character: still a repeat.
	e := NewExtractor(&fakeInferencer{out: validDnaJSON})
	prior := []schema.ChapterDna{{
		SceneGenetics: schema.SceneGenetics{
			LocationType:        "forest",
			LocationDescription: "a mossy hollow under olde oaks",
		},
	}}

	record := e.ExtractVarietySafe(context.Background(), "chapter text", 4, prior)
	assert.NotEqual(t, "a mossy hollow under old oaks", record.SceneGenetics.LocationDescription)
	assert.NotEmpty(t, record.SceneGenetics.LocationDescription)
}

func TestFormatForPromptPartialFallbackCarriesStatus(t *testing.T) {
	record := schema.ChapterDna{
		ChapterNumber:    2,
		ExtractionStatus: schema.ExtractionPartialFallback,
		EndingGenetics: schema.EndingGenetics{
			FinalSceneContext: "The model rambled instead of returning JSON.",
			SceneStatus:       "ongoing",
			CliffhangerType:   "none",
		},
	}
	formatted := FormatForPrompt(record)
	assert.Contains(t, formatted, "CHAPTER 2 DNA (partial_fallback):")
	assert.Contains(t, formatted, "The model rambled")
}

func TestFormatForPromptFallbackIsFlat(t *testing.T) {
	record := schema.ChapterDna{
		ChapterNumber:    3,
		ExtractionStatus: schema.ExtractionFallback,
		CharacterGenetics: schema.CharacterGenetics{
			ActiveCharacters: []string{"Mira"},
		},
		EndingGenetics: schema.EndingGenetics{FinalSceneContext: "the bridge collapsed"},
	}
	formatted := FormatForPrompt(record)
	assert.False(t, strings.Contains(formatted, "\n"), "fallback records render as a single line")
	assert.Contains(t, formatted, "fallback")
	assert.Contains(t, formatted, "the bridge collapsed")
}
