package generate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fable/pkg/schema"
)

// scriptedInferencer dispatches on the system prompt so one fake can answer
// outline, prose, DNA, summary, and choice calls in a single NextChapter run.
type scriptedInferencer struct {
	mu      sync.Mutex
	prose   string
	dnaJSON string
	summary string
	choices string
	outline string
	failAll bool
	systems []string
}

func (f *scriptedInferencer) Infer(ctx context.Context, params *openai.ChatCompletionNewParams, system, user string) (string, error) {
	f.mu.Lock()
	f.systems = append(f.systems, system)
	f.mu.Unlock()
	if f.failAll {
		return "", errors.New("model unavailable")
	}
	switch {
	case strings.Contains(system, "story planner"):
		return f.outline, nil
	case strings.Contains(system, "extract"):
		return f.dnaJSON, nil
	case strings.Contains(system, "Summarize the following chapter"):
		return f.summary, nil
	case strings.Contains(system, "branch points"):
		return f.choices, nil
	default:
		return f.prose, nil
	}
}

func (f *scriptedInferencer) Verify(ctx context.Context, result string) (bool, error) {
	if result == "" {
		return false, errors.New("empty result")
	}
	return true, nil
}

const testDnaJSON = `{
	"scene_genetics": {"location_type": "forest", "location_description": "a fern gully below the ridge", "time_context": "night", "atmosphere": "tense"},
	"character_genetics": {"active_characters": ["Mira"], "character_states": {"Mira": "exhausted"}},
	"emotional_genetics": {"dominant_emotions": ["dread"], "emotional_momentum": "rising", "tension_level": "high"},
	"plot_genetics": {"pending_decisions": [], "active_conflicts": ["wolves"], "conversation_threads": []},
	"ending_genetics": {"final_scene_context": "Mira hears howling.", "last_dialogue": "", "last_action": "Mira climbs a tree.", "scene_status": "ongoing", "cliffhanger_type": "danger"},
	"continuity_anchors": ["Mira is afraid of dogs"]
}`

func newScripted() *scriptedInferencer {
	return &scriptedInferencer{
		prose:   strings.Repeat("Mira ran through the trees. ", 40),
		dnaJSON: testDnaJSON,
		summary: "Mira flees into the forest and hides from the wolves.",
		choices: `{"choices": [{"label": "Climb higher", "hint": "safer"}, {"label": "Drop and run"}]}`,
		outline: `{"title": "The Hollow Road", "premise": "A courier loses the map.", "setting": "border forests", "protagonist": "Mira, a courier", "planned_beats": [{"chapter": 1, "beat": "Mira takes the job"}]}`,
	}
}

func TestConfigValidation(t *testing.T) {
	_, err := NewGenerator(newScripted(), Config{})
	assert.Error(t, err)

	bad := DefaultConfig()
	bad.EmptyRatioLimit = 1.5
	_, err = NewGenerator(newScripted(), bad)
	assert.Error(t, err)

	_, err = NewGenerator(newScripted(), DefaultConfig())
	assert.NoError(t, err)
}

func TestOutline(t *testing.T) {
	g, err := NewGenerator(newScripted(), DefaultConfig())
	require.NoError(t, err)

	outline, err := g.Outline(context.Background(), "a courier loses the map", "fantasy")
	require.NoError(t, err)
	assert.Equal(t, "The Hollow Road", outline.Title)
	require.Len(t, outline.PlannedBeats, 1)
	assert.Equal(t, 1, outline.PlannedBeats[0].Chapter)
}

func TestOutlineInferenceError(t *testing.T) {
	inf := newScripted()
	inf.failAll = true
	g, err := NewGenerator(inf, DefaultConfig())
	require.NoError(t, err)

	_, err = g.Outline(context.Background(), "idea", "")
	assert.Error(t, err)
}

func TestNextChapterFirstChapter(t *testing.T) {
	inf := newScripted()
	g, err := NewGenerator(inf, DefaultConfig())
	require.NoError(t, err)

	st := &schema.Story{ID: "s1", Outline: schema.Outline{Title: "T", Premise: "P"}}
	chapter, err := g.NextChapter(context.Background(), st, "", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, chapter.Number)
	assert.Equal(t, strings.TrimSpace(inf.prose), chapter.Content)
	assert.Equal(t, inf.summary, chapter.Summary)
	require.NotNil(t, chapter.Dna)
	assert.Equal(t, schema.ExtractionOK, chapter.Dna.ExtractionStatus)
	assert.Equal(t, 1, chapter.Dna.ChapterNumber)
	assert.Empty(t, chapter.Choices, "choices only in game mode")
}

func TestNextChapterGameModeChoices(t *testing.T) {
	g, err := NewGenerator(newScripted(), DefaultConfig())
	require.NoError(t, err)

	st := &schema.Story{ID: "s1", GameMode: true}
	chapter, err := g.NextChapter(context.Background(), st, "", nil)
	require.NoError(t, err)
	require.Len(t, chapter.Choices, 2)
	assert.Equal(t, "Climb higher", chapter.Choices[0].Label)
}

func TestNextChapterEmitsEvents(t *testing.T) {
	g, err := NewGenerator(newScripted(), DefaultConfig())
	require.NoError(t, err)

	var stages []string
	events := func(stage string, data any) { stages = append(stages, stage) }

	st := &schema.Story{ID: "s1", GameMode: true}
	_, err = g.NextChapter(context.Background(), st, "", events)
	require.NoError(t, err)
	assert.Equal(t, []string{"context", "prose", "analysis", "choices"}, stages)
}

func TestNextChapterProseFailureIsFatal(t *testing.T) {
	inf := newScripted()
	inf.failAll = true
	g, err := NewGenerator(inf, DefaultConfig())
	require.NoError(t, err)

	_, err = g.NextChapter(context.Background(), &schema.Story{ID: "s1"}, "", nil)
	assert.Error(t, err)
}

func TestNextChapterChoiceDirectiveReachesPrompt(t *testing.T) {
	inf := newScripted()
	g, err := NewGenerator(inf, DefaultConfig())
	require.NoError(t, err)

	st := &schema.Story{ID: "s1", GameMode: true, Chapters: []schema.Chapter{{
		Number:  1,
		Content: "chapter one prose",
		Summary: "Mira took the job.",
	}}}
	_, err = g.NextChapter(context.Background(), st, "Drop and run", nil)
	require.NoError(t, err)
}

func TestBuildContextPrefersDnaProgression(t *testing.T) {
	g, err := NewGenerator(newScripted(), DefaultConfig())
	require.NoError(t, err)

	var record schema.ChapterDna
	require.NoError(t, json.Unmarshal([]byte(testDnaJSON), &record))
	record.ChapterNumber = 1
	record.ExtractionStatus = schema.ExtractionOK

	st := &schema.Story{
		ID:      "s1",
		Outline: schema.Outline{Title: "T", Premise: "Premise line."},
		Chapters: []schema.Chapter{{
			Number:  1,
			Content: "prose",
			Summary: "Mira flees into the forest and hides from the wolves near the old ridge while the storm builds overhead and the couriers wait.",
			Dna:     &record,
		}},
	}
	out := g.buildContext(context.Background(), st, 2, "Climb higher")
	assert.Contains(t, out, "STORY OUTLINE:")
	assert.Contains(t, out, "CHAPTER 1 DNA:")
	assert.Contains(t, out, `The reader chose: "Climb higher"`)
	assert.Contains(t, out, "Write chapter 2.")
}

func TestBuildContextFirstChapterHasNoProgression(t *testing.T) {
	g, err := NewGenerator(newScripted(), DefaultConfig())
	require.NoError(t, err)

	st := &schema.Story{ID: "s1", Outline: schema.Outline{Title: "T", Premise: "P"}}
	out := g.buildContext(context.Background(), st, 1, "")
	assert.NotContains(t, out, "DNA:")
	// Chapter 1 has no prior context by definition; the degradation chain
	// (and its outline-only instruction) must not run at all.
	assert.NotContains(t, out, "No reliable prior-chapter context")
	assert.Contains(t, out, "Write chapter 1.")
}

func TestLastDna(t *testing.T) {
	mk := func(n int) *schema.ChapterDna {
		return &schema.ChapterDna{ChapterNumber: n, ExtractionStatus: schema.ExtractionOK}
	}
	st := &schema.Story{Chapters: []schema.Chapter{
		{Number: 1, Dna: mk(1)},
		{Number: 2, Dna: mk(2)},
		{Number: 3, Dna: mk(3)},
		{Number: 4, Dna: mk(4)},
	}}
	got := lastDna(st, 3)
	require.Len(t, got, 3)
	assert.Equal(t, 2, got[0].ChapterNumber)
	assert.Equal(t, 4, got[2].ChapterNumber)
}
