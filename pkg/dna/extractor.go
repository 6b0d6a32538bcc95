package dna

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"

	"fable/pkg/inference"
	"fable/pkg/schema"
	"fable/pkg/utils"
)

const (
	maxActiveCharacters = 5
	maxExtractionRunes  = 8192 * 4
	partialContextChars = 200
	fallbackNames       = 3
	fallbackTailWords   = 100
)

// Extractor turns finished chapter text into a schema.ChapterDna record.
// Extract never returns an error: any failure degrades to a heuristic record
// marked with the matching extraction status.
type Extractor struct {
	inf    inference.Inferencer
	recent *phraseRing
}

func NewExtractor(inf inference.Inferencer) *Extractor {
	return &Extractor{
		inf:    inf,
		recent: newPhraseRing(8),
	}
}

// Extract runs one structured-output extraction call over the chapter text.
// Model errors produce a fallback record; malformed JSON produces a partial
// fallback that keeps the raw response tail as at least some signal.
func (e *Extractor) Extract(ctx context.Context, chapterText string, chapterNumber int) schema.ChapterDna {
	chunks := utils.ChunkText(chapterText, maxExtractionRunes)
	if len(chunks) == 0 {
		log.Warn("empty chapter text, using fallback dna", "chapter", chapterNumber)
		return e.fallbackDna(chapterText, chapterNumber)
	}
	// Extraction reads the chapter's closing state, so the last chunk carries
	// the signal that matters when the text exceeds the prompt bound.
	input := chunks[len(chunks)-1]

	params := &openai.ChatCompletionNewParams{
		Temperature:    openai.Float(0.2),
		ResponseFormat: schema.DnaResponseFormat(),
	}
	out, err := e.inf.Infer(ctx, params, extractPrompt, input)
	if err != nil {
		log.Warn("dna extraction inference failed", "chapter", chapterNumber, "error", err)
		return e.fallbackDna(chapterText, chapterNumber)
	}

	out = utils.RepairJSON(utils.CleanJSON(out))

	var record schema.ChapterDna
	if err := json.Unmarshal([]byte(out), &record); err != nil {
		log.Warn("dna extraction returned malformed JSON", "chapter", chapterNumber, "error", err)
		return e.partialFallbackDna(out, chapterNumber)
	}

	record.ChapterNumber = chapterNumber
	record.ExtractionStatus = schema.ExtractionOK
	e.validateAndClean(&record)
	return record
}

// ExtractVarietySafe wraps Extract with an anti-repetition guard over the most
// recent prior records: a location description that substring-matches or
// near-duplicates a recent one (by word overlap or edit distance) is replaced
// from the variety pool.
func (e *Extractor) ExtractVarietySafe(ctx context.Context, chapterText string, chapterNumber int, prior []schema.ChapterDna) schema.ChapterDna {
	record := e.Extract(ctx, chapterText, chapterNumber)

	desc := strings.TrimSpace(record.SceneGenetics.LocationDescription)
	if desc == "" {
		return record
	}

	lower := strings.ToLower(desc)
	for _, p := range prior {
		prev := strings.ToLower(strings.TrimSpace(p.SceneGenetics.LocationDescription))
		if prev == "" {
			continue
		}
		if strings.Contains(lower, prev) || strings.Contains(prev, lower) ||
			utils.WordOverlap(desc, p.SceneGenetics.LocationDescription) >= 0.9 ||
			utils.Similarity(desc, p.SceneGenetics.LocationDescription) >= 0.9 {
			fresh := e.pickVariety(record.SceneGenetics.LocationType)
			log.Debug("repetitive location description replaced", "chapter", chapterNumber, "was", utils.LimitStr(desc, 60), "now", fresh)
			record.SceneGenetics.LocationDescription = fresh
			break
		}
	}
	return record
}

// validateAndClean enforces the record invariants the model cannot be trusted
// with: the character denylist, the character cap, overused location phrases,
// and non-nil maps so downstream formatting never needs nil checks.
func (e *Extractor) validateAndClean(record *schema.ChapterDna) {
	record.CharacterGenetics.ActiveCharacters = filterCharacterNames(record.CharacterGenetics.ActiveCharacters)
	if record.CharacterGenetics.CharacterStates == nil {
		record.CharacterGenetics.CharacterStates = map[string]string{}
	}
	if record.CharacterGenetics.CharacterRelationships == nil {
		record.CharacterGenetics.CharacterRelationships = map[string]string{}
	}

	desc := strings.ToLower(record.SceneGenetics.LocationDescription)
	for _, phrase := range overusedPhrases {
		if strings.Contains(desc, phrase) {
			record.SceneGenetics.LocationDescription = e.pickVariety(record.SceneGenetics.LocationType)
			break
		}
	}
}

// partialFallbackDna keeps the unparseable response tail so continuation still
// has an anchor, marked partial_fallback.
func (e *Extractor) partialFallbackDna(raw string, chapterNumber int) schema.ChapterDna {
	return schema.ChapterDna{
		ChapterNumber: chapterNumber,
		CharacterGenetics: schema.CharacterGenetics{
			CharacterStates:        map[string]string{},
			CharacterRelationships: map[string]string{},
		},
		EndingGenetics: schema.EndingGenetics{
			FinalSceneContext: utils.LimitStr(strings.TrimSpace(raw), partialContextChars),
			SceneStatus:       "ongoing",
			CliffhangerType:   "none",
		},
		ExtractionStatus: schema.ExtractionPartialFallback,
	}
}

var nameRX = regexp.MustCompile(`\b[A-Z][a-z]{2,}\b`)

// fallbackDna is the full local-heuristics path for when the model call itself
// fails: guessed names from a capitalized-word scan and the literal chapter
// tail as the final scene context.
func (e *Extractor) fallbackDna(chapterText string, chapterNumber int) schema.ChapterDna {
	var names []string
	seen := make(map[string]struct{})
	for _, m := range nameRX.FindAllString(chapterText, -1) {
		if _, stop := characterDenylist[m]; stop {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		names = append(names, m)
		if len(names) >= fallbackNames {
			break
		}
	}

	words := strings.Fields(chapterText)
	if len(words) > fallbackTailWords {
		words = words[len(words)-fallbackTailWords:]
	}

	return schema.ChapterDna{
		ChapterNumber: chapterNumber,
		CharacterGenetics: schema.CharacterGenetics{
			ActiveCharacters:       names,
			CharacterStates:        map[string]string{},
			CharacterRelationships: map[string]string{},
		},
		EndingGenetics: schema.EndingGenetics{
			FinalSceneContext: strings.Join(words, " "),
			SceneStatus:       "ongoing",
			CliffhangerType:   "none",
		},
		ExtractionStatus: schema.ExtractionFallback,
	}
}

// FormatForPrompt renders a record back into the labeled block spliced into
// generation requests. Fallback records render as one flat line.
func FormatForPrompt(record schema.ChapterDna) string {
	if record.ExtractionStatus == schema.ExtractionFallback {
		return fmt.Sprintf("Chapter %d (fallback): characters %s; ended with: %s",
			record.ChapterNumber,
			strings.Join(record.CharacterGenetics.ActiveCharacters, ", "),
			record.EndingGenetics.FinalSceneContext)
	}

	var b strings.Builder
	if record.ExtractionStatus == schema.ExtractionPartialFallback {
		// The status must survive into the formatted text: the quality gate
		// scans these strings for fallback markers.
		fmt.Fprintf(&b, "CHAPTER %d DNA (partial_fallback):\n", record.ChapterNumber)
	} else {
		fmt.Fprintf(&b, "CHAPTER %d DNA:\n", record.ChapterNumber)
	}

	scene := record.SceneGenetics
	if scene.LocationDescription != "" || scene.LocationType != "" {
		fmt.Fprintf(&b, "Scene: %s", scene.LocationDescription)
		if scene.TimeContext != "" {
			fmt.Fprintf(&b, " (%s)", scene.TimeContext)
		}
		if scene.Atmosphere != "" {
			fmt.Fprintf(&b, ", atmosphere: %s", scene.Atmosphere)
		}
		b.WriteString("\n")
	}

	chars := record.CharacterGenetics
	if len(chars.ActiveCharacters) > 0 {
		fmt.Fprintf(&b, "Characters: %s\n", strings.Join(chars.ActiveCharacters, ", "))
	}
	for name, state := range chars.CharacterStates {
		fmt.Fprintf(&b, "- %s: %s\n", name, state)
	}

	emo := record.EmotionalGenetics
	if len(emo.DominantEmotions) > 0 || emo.TensionLevel != "" {
		fmt.Fprintf(&b, "Emotions: %s", strings.Join(emo.DominantEmotions, ", "))
		if emo.EmotionalMomentum != "" {
			fmt.Fprintf(&b, " (%s)", emo.EmotionalMomentum)
		}
		if emo.TensionLevel != "" {
			fmt.Fprintf(&b, ", tension %s", emo.TensionLevel)
		}
		b.WriteString("\n")
	}

	plot := record.PlotGenetics
	for _, d := range plot.PendingDecisions {
		fmt.Fprintf(&b, "Pending: %s\n", d)
	}
	for _, c := range plot.ActiveConflicts {
		fmt.Fprintf(&b, "Conflict: %s\n", c)
	}
	for _, t := range plot.ConversationThreads {
		fmt.Fprintf(&b, "Thread: %s\n", t)
	}

	end := record.EndingGenetics
	if end.FinalSceneContext != "" {
		fmt.Fprintf(&b, "Ending: %s\n", end.FinalSceneContext)
	}
	if end.LastDialogue != "" {
		fmt.Fprintf(&b, "Last dialogue: %s\n", end.LastDialogue)
	}
	if end.LastAction != "" {
		fmt.Fprintf(&b, "Last action: %s\n", end.LastAction)
	}
	if end.CliffhangerType != "" && end.CliffhangerType != "none" {
		fmt.Fprintf(&b, "Cliffhanger: %s\n", end.CliffhangerType)
	}

	if len(record.ContinuityAnchors) > 0 {
		b.WriteString("Continuity anchors:\n")
		for _, a := range record.ContinuityAnchors {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func filterCharacterNames(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, name := range in {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, stop := characterDenylist[name]; stop {
			continue
		}
		if _, dup := seen[strings.ToLower(name)]; dup {
			continue
		}
		seen[strings.ToLower(name)] = struct{}{}
		out = append(out, name)
		if len(out) >= maxActiveCharacters {
			break
		}
	}
	return out
}
