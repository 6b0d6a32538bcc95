package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"

	"fable/pkg/assemble"
	"fable/pkg/dna"
	"fable/pkg/inference"
	"fable/pkg/schema"
	"fable/pkg/summary"
	"fable/pkg/utils"
)

// varietyLookback is how many prior DNA records the anti-repetition guard sees.
const varietyLookback = 3

// Generator orchestrates chapter generation: context assembly in, prose out,
// then DNA extraction and summarization of the finished chapter.
type Generator struct {
	inf        inference.Inferencer
	extractor  *dna.Extractor
	summarizer *summary.Summarizer
	assembler  *assemble.Assembler
	cfg        Config
}

func NewGenerator(inf inference.Inferencer, cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid generation config: %w", err)
	}
	return &Generator{
		inf:        inf,
		extractor:  dna.NewExtractor(inf),
		summarizer: summary.NewSummarizer(inf, cfg.SuperSummaryInterval, cfg.SlidingWindowSize),
		assembler:  assemble.NewAssembler(cfg.assemblerConfig()),
		cfg:        cfg,
	}, nil
}

// Outline plans a story from the reader's idea.
func (g *Generator) Outline(ctx context.Context, idea, genre string) (schema.Outline, error) {
	user := strings.TrimSpace(idea)
	if genre != "" {
		user += "\nGenre: " + genre
	}

	params := &openai.ChatCompletionNewParams{
		MaxCompletionTokens: openai.Int(2048),
		Temperature:         openai.Float(0.8),
		ResponseFormat:      schema.OutlineResponseFormat(),
	}
	out, err := g.inf.Infer(ctx, params, outlinePrompt, user)
	if err != nil {
		return schema.Outline{}, fmt.Errorf("outline generation: %w", err)
	}

	var outline schema.Outline
	if err := json.Unmarshal([]byte(utils.RepairJSON(utils.CleanJSON(out))), &outline); err != nil {
		return schema.Outline{}, fmt.Errorf("outline parse: %w", err)
	}
	return outline, nil
}

// Events receives progress notifications during chapter generation; any stage
// may be nil-safe skipped by passing a no-op.
type Events func(stage string, data any)

// NextChapter generates the next chapter for the story. choice is the reader's
// selected branch in game mode, empty otherwise. The returned chapter carries
// its summary and DNA record; both degrade rather than fail.
func (g *Generator) NextChapter(ctx context.Context, st *schema.Story, choice string, events Events) (schema.Chapter, error) {
	if events == nil {
		events = func(string, any) {}
	}
	number := st.NextChapterNumber()

	contextBlock := g.buildContext(ctx, st, number, choice)
	events("context", map[string]any{"chapter": number, "chars": len(contextBlock)})

	if tokens, err := utils.NumTokensFromMessages(contextBlock); err == nil {
		log.Debug("assembled chapter context", "story", st.ID, "chapter", number, "chars", len(contextBlock), "tokens", tokens)
	}

	params := &openai.ChatCompletionNewParams{
		MaxCompletionTokens: openai.Int(4096),
		Temperature:         openai.Float(0.9),
	}
	prose, err := g.inf.Infer(ctx, params, chapterPrompt, contextBlock)
	if err != nil {
		return schema.Chapter{}, fmt.Errorf("chapter %d generation: %w", number, err)
	}
	prose = strings.TrimSpace(prose)
	if ok, err := g.inf.Verify(ctx, prose); !ok {
		return schema.Chapter{}, fmt.Errorf("chapter %d verification: %w", number, err)
	}
	events("prose", map[string]any{"chapter": number, "words": len(strings.Fields(prose))})

	chapter := schema.Chapter{
		Number:    number,
		Content:   prose,
		Choice:    choice,
		CreatedAt: time.Now().UTC(),
	}

	// DNA extraction and summarization are independent calls over the same
	// immutable text; run both, and a failure in one never cancels the other.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer logPanic("dna extraction")
		record := g.extractor.ExtractVarietySafe(ctx, prose, number, lastDna(st, varietyLookback))
		chapter.Dna = &record
	}()
	go func() {
		defer wg.Done()
		defer logPanic("chapter summarization")
		chapter.Summary = g.summarizeChapter(ctx, prose, number)
	}()
	wg.Wait()
	status := schema.ExtractionFallback
	if chapter.Dna != nil {
		status = chapter.Dna.ExtractionStatus
	}
	events("analysis", map[string]any{
		"chapter": number,
		"status":  status,
		"summary": chapter.Summary != "",
	})

	if st.GameMode {
		chapter.Choices = g.chapterChoices(ctx, prose, number)
		events("choices", chapter.Choices)
	}

	return chapter, nil
}

// buildContext layers the hierarchical summary context with the DNA
// progression (or its quality-gated fallback) and the reader's choice.
func (g *Generator) buildContext(ctx context.Context, st *schema.Story, number int, choice string) string {
	hier := g.summarizer.ContextForChapter(ctx, number, st.SummariesByChapter(), st.Outline.Text())
	hier = g.summarizer.TruncateContext(hier, g.cfg.MaxContextChars)

	entries := make([]assemble.Entry, 0, len(st.Chapters)+1)
	for _, record := range st.DnaByChapter() {
		entries = append(entries, assemble.DnaEntry{Dna: record})
	}
	if hier.RecentSummaries != "" || hier.SuperSummary != "" {
		entries = append(entries, assemble.SummaryBlockEntry{
			Block: summary.FormatForLLM(summary.Context{
				SuperSummary:    hier.SuperSummary,
				RecentSummaries: hier.RecentSummaries,
			}),
		})
	}

	var b strings.Builder
	b.WriteString(summary.FormatForLLM(hier))
	if number > 1 {
		if prior := g.assembler.BuildContext(entries); prior != "" {
			b.WriteString("\n\n")
			b.WriteString(prior)
		}
	}
	if choice != "" {
		b.WriteString("\n\n")
		fmt.Fprintf(&b, choiceDirective, choice)
	}
	fmt.Fprintf(&b, "\n\nWrite chapter %d.", number)
	return b.String()
}

// summarizeChapter produces the stored per-chapter summary. On failure the
// chapter simply has no summary yet; context assembly tolerates the gap.
func (g *Generator) summarizeChapter(ctx context.Context, prose string, number int) string {
	params := &openai.ChatCompletionNewParams{
		MaxCompletionTokens: openai.Int(512),
		Temperature:         openai.Float(0.3),
	}
	out, err := g.inf.Infer(ctx, params, chapterSummaryPrompt, prose)
	if err != nil {
		log.Warn("chapter summarization failed", "chapter", number, "error", err)
		return ""
	}
	return strings.TrimSpace(out)
}

// chapterChoices asks for 2-3 branch options. Game mode degrades to a
// choiceless chapter when the call fails.
func (g *Generator) chapterChoices(ctx context.Context, prose string, number int) []schema.Choice {
	params := &openai.ChatCompletionNewParams{
		MaxCompletionTokens: openai.Int(512),
		Temperature:         openai.Float(0.8),
		ResponseFormat:      schema.ChoicesResponseFormat(),
	}
	out, err := g.inf.Infer(ctx, params, choicesPrompt, prose)
	if err != nil {
		log.Warn("choice generation failed", "chapter", number, "error", err)
		return nil
	}

	var set schema.ChoiceSet
	if err := json.Unmarshal([]byte(utils.RepairJSON(utils.CleanJSON(out))), &set); err != nil {
		log.Warn("choice parse failed", "chapter", number, "error", err)
		return nil
	}
	return set.Choices
}

func lastDna(st *schema.Story, n int) []schema.ChapterDna {
	records := st.DnaByChapter()
	if len(records) > n {
		records = records[len(records)-n:]
	}
	return records
}

func logPanic(stage string) {
	if r := recover(); r != nil {
		log.Error("panic recovered during chapter analysis", "stage", stage, "panic", r)
	}
}
