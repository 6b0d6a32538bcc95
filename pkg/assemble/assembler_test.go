package assemble

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fable/pkg/schema"
)

func newTestAssembler() *Assembler {
	return NewAssembler(DefaultConfig())
}

func TestValidateDnaQualityNoContexts(t *testing.T) {
	r := newTestAssembler().ValidateDnaQuality(nil)
	assert.False(t, r.IsValid)
	assert.Equal(t, []string{"no_contexts"}, r.Issues)
	assert.Equal(t, 1.0, r.EmptyRatio)
	assert.Zero(t, r.TotalItems)
}

func TestValidateDnaQualityFallbackFlagged(t *testing.T) {
	contexts := []string{
		"fallback used here",
		"normal chapter text " + strings.Repeat("ABCDEF", 50),
	}
	r := newTestAssembler().ValidateDnaQuality(contexts)
	assert.False(t, r.IsValid)
	assert.Contains(t, r.Issues, "fallback_flagged")
	assert.True(t, r.HasFallbackFlags)
}

func TestValidateDnaQualityMostlyEmpty(t *testing.T) {
	contexts := []string{"", "  ", "", strings.Repeat("real content here ", 20)}
	r := newTestAssembler().ValidateDnaQuality(contexts)
	assert.False(t, r.IsValid)
	assert.Contains(t, r.Issues, "mostly_empty")
	assert.InDelta(t, 0.75, r.EmptyRatio, 1e-9)
}

func TestValidateDnaQualityTooShort(t *testing.T) {
	r := newTestAssembler().ValidateDnaQuality([]string{"tiny", "also tiny"})
	assert.False(t, r.IsValid)
	assert.Contains(t, r.Issues, "too_short")
}

func TestValidateDnaQualityEmptyArrays(t *testing.T) {
	contexts := []string{`{"active_characters": [], "rest": "` + strings.Repeat("x", 300) + `"}`}
	r := newTestAssembler().ValidateDnaQuality(contexts)
	assert.False(t, r.IsValid)
	assert.Contains(t, r.Issues, "empty_arrays")
}

// The gate is conjunctive: valid means zero issues, and any issue invalidates.
func TestValidateDnaQualityConjunctive(t *testing.T) {
	good := []string{
		"CHAPTER 1 DNA:\nScene: a crooked lane between market stalls\nCharacters: Mira, Tobin\nEnding: Mira slams the door.",
		"CHAPTER 2 DNA:\nScene: the worn stone well\nCharacters: Mira, Wren\nEnding: a stranger calls her name.",
	}
	r := newTestAssembler().ValidateDnaQuality(good)
	require.Empty(t, r.Issues)
	assert.True(t, r.IsValid)
	assert.Equal(t, 2, r.TotalItems)
	assert.GreaterOrEqual(t, r.Length, 200)
}

func TestThresholdsConfigurable(t *testing.T) {
	a := NewAssembler(Config{MinContextLength: 10, EmptyRatioLimit: 0.9, MaxDnaChars: 8000})
	r := a.ValidateDnaQuality([]string{"a short but acceptable entry"})
	assert.True(t, r.IsValid, "relaxed thresholds accept short context: %v", r.Issues)
}

func dnaEntry(n int, desc string) DnaEntry {
	return DnaEntry{Dna: schema.ChapterDna{
		ChapterNumber:    n,
		ExtractionStatus: schema.ExtractionOK,
		SceneGenetics:    schema.SceneGenetics{LocationDescription: desc},
		CharacterGenetics: schema.CharacterGenetics{
			ActiveCharacters: []string{"Mira", "Tobin"},
			CharacterStates:  map[string]string{"Mira": "determined, " + strings.Repeat("watchful ", 20)},
		},
		EndingGenetics: schema.EndingGenetics{FinalSceneContext: "the lantern gutters out on " + desc},
	}}
}

func TestBuildContextUsesValidDna(t *testing.T) {
	entries := []Entry{
		dnaEntry(1, "a crooked lane"),
		dnaEntry(2, "the stone well"),
		SummaryBlockEntry{Block: "Chapter 1: summary"},
	}
	out := newTestAssembler().BuildContext(entries)
	assert.Contains(t, out, "STORY PROGRESSION (2 chapters):")
	assert.Contains(t, out, "CHAPTER 1 DNA:")
	assert.Contains(t, out, "CHAPTER 2 DNA:")
	assert.NotContains(t, out, SummaryBlockHeader)
}

func TestBuildContextFallsBackToSummaries(t *testing.T) {
	entries := []Entry{
		DnaEntry{Dna: schema.ChapterDna{ChapterNumber: 1, ExtractionStatus: schema.ExtractionFallback}},
		SummaryBlockEntry{Block: "Chapter 1: Mira reached the village."},
	}
	out := newTestAssembler().BuildContext(entries)
	assert.Contains(t, out, SummaryBlockHeader)
	assert.Contains(t, out, "Chapter 1: Mira reached the village.")
	assert.Contains(t, out, "Prioritize the chapter summaries")
}

// Partial-fallback records hold raw model text, not trusted structure; a run
// of them must degrade to the summary block exactly like full fallbacks do.
func TestBuildContextPartialFallbackDegradesToSummaries(t *testing.T) {
	raw := strings.Repeat("The model rambled instead of returning JSON. ", 5)
	var entries []Entry
	for n := 1; n <= 3; n++ {
		entries = append(entries, DnaEntry{Dna: schema.ChapterDna{
			ChapterNumber:    n,
			ExtractionStatus: schema.ExtractionPartialFallback,
			EndingGenetics: schema.EndingGenetics{
				FinalSceneContext: raw,
				SceneStatus:       "ongoing",
				CliffhangerType:   "none",
			},
		}})
	}
	entries = append(entries, SummaryBlockEntry{Block: "Chapter 1: Mira reached the village."})

	out := newTestAssembler().BuildContext(entries)
	assert.Contains(t, out, SummaryBlockHeader)
	assert.NotContains(t, out, "STORY PROGRESSION")
	assert.NotContains(t, out, raw)
}

func TestBuildContextOutlineOnlyLastResort(t *testing.T) {
	out := newTestAssembler().BuildContext(nil)
	assert.Contains(t, out, "story outline")
	assert.NotContains(t, out, SummaryBlockHeader)
}

func TestFormatDnaContextsSingle(t *testing.T) {
	out := newTestAssembler().FormatDnaContexts([]string{"CHAPTER 1 DNA:\nScene: x"})
	assert.NotContains(t, out, "STORY PROGRESSION")
	assert.Contains(t, out, "CHAPTER 1 DNA:")
}

func TestFormatDnaContextsSeparator(t *testing.T) {
	out := newTestAssembler().FormatDnaContexts([]string{"one", "two", "three"})
	assert.Contains(t, out, "STORY PROGRESSION (3 chapters):")
	assert.Equal(t, 2, strings.Count(out, strings.Repeat("=", 50)))
}

func TestFormatDnaContextsCeilingKeepsRecent(t *testing.T) {
	big := make([]string, 6)
	for i := range big {
		big[i] = strings.Repeat("x", 2000)
	}
	big[4] = "CHAPTER 5 " + strings.Repeat("y", 1990)
	big[5] = "CHAPTER 6 " + strings.Repeat("z", 1990)

	out := newTestAssembler().FormatDnaContexts(big)
	assert.Contains(t, out, "CHAPTER 5")
	assert.Contains(t, out, "CHAPTER 6")
	assert.NotContains(t, out, "xxxx")
	assert.Contains(t, out, "STORY PROGRESSION (2 chapters):")
}
