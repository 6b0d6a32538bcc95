package summary

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"

	"fable/pkg/flight"
	"fable/pkg/inference"
	"fable/pkg/utils"
)

const (
	// DefaultSuperSummaryInterval is the chapter count folded into one
	// super-summary.
	DefaultSuperSummaryInterval = 5
	// DefaultSlidingWindowSize is how many recent chapter summaries are kept
	// in full alongside the super-summary.
	DefaultSlidingWindowSize = 3
	// DefaultMaxContextChars bounds the combined assembled context.
	DefaultMaxContextChars = 8000

	aggregationInputChars = 400
	recentSummaryChars    = 300
)

const superSummaryPrompt = `You compress serialized-fiction chapter summaries. You will receive the individual summaries for a contiguous range of chapters. Rewrite them as a single 3-4 sentence paragraph covering the whole range: who did what, what changed, and what remains unresolved. Keep character names. Output only the paragraph.`

// Context is the three-part result of hierarchical assembly, ordered by how
// much losing each field hurts continuity: recency beats breadth beats premise.
type Context struct {
	StoryOutline    string `json:"story_outline"`
	SuperSummary    string `json:"super_summary"`
	RecentSummaries string `json:"recent_summaries"`
}

// Len is the combined character length across the three fields.
func (c Context) Len() int {
	return len(c.StoryOutline) + len(c.SuperSummary) + len(c.RecentSummaries)
}

// Summarizer maintains the two-tier context strategy: periodic super-summaries
// over fixed chapter intervals plus a sliding window of recent summaries.
type Summarizer struct {
	inf      inference.Inferencer
	interval int
	window   int
	cache    flight.Cache[string, string]
}

func NewSummarizer(inf inference.Inferencer, interval, window int) *Summarizer {
	if interval <= 0 {
		interval = DefaultSuperSummaryInterval
	}
	if window <= 0 {
		window = DefaultSlidingWindowSize
	}
	return &Summarizer{
		inf:      inf,
		interval: interval,
		window:   window,
		cache:    flight.NewCache[string, string](),
	}
}

// ShouldGenerateSuperSummary reports whether chapterNumber closes an interval.
func (s *Summarizer) ShouldGenerateSuperSummary(chapterNumber int) bool {
	return chapterNumber > 0 && chapterNumber%s.interval == 0
}

// SuperSummaryRange computes the interval containing chapterNumber. The range
// is stable for every chapter within the same interval.
func (s *Summarizer) SuperSummaryRange(chapterNumber int) (start, end int) {
	start = (chapterNumber-1)/s.interval*s.interval + 1
	end = min(start+s.interval-1, chapterNumber)
	return start, end
}

// GenerateSuperSummary compresses the given per-chapter summaries into one
// 3-4 sentence paragraph. Failure degrades to naive concatenation of the
// first two summaries rather than propagating the error.
func (s *Summarizer) GenerateSuperSummary(ctx context.Context, summaries []string, start, end int) string {
	var b strings.Builder
	for i, sum := range summaries {
		fmt.Fprintf(&b, "Chapter %d: %s\n", start+i, utils.Truncate(sum, aggregationInputChars))
	}
	user := fmt.Sprintf("Chapters %d-%d:\n%s", start, end, b.String())

	params := &openai.ChatCompletionNewParams{
		MaxCompletionTokens: openai.Int(512),
		Temperature:         openai.Float(0.3),
	}
	out, err := s.inf.Infer(ctx, params, superSummaryPrompt, user)
	if err != nil {
		log.Warn("super-summary aggregation failed, concatenating instead", "start", start, "end", end, "error", err)
		return naiveConcat(summaries)
	}
	return strings.TrimSpace(out)
}

// ContextForChapter assembles the outline, the most recently completed
// interval's super-summary (when every summary in the interval is present),
// and the sliding window of recent summaries. Missing data degrades the
// result instead of failing: early stories simply have no super-summary yet.
func (s *Summarizer) ContextForChapter(ctx context.Context, chapterNumber int, summaries map[int]string, storyOutline string) Context {
	out := Context{StoryOutline: storyOutline}

	completedEnd := 0
	if chapterNumber > s.interval {
		completedEnd = (chapterNumber - 1) / s.interval * s.interval
		start, end := s.SuperSummaryRange(completedEnd)

		window := make([]string, 0, end-start+1)
		complete := true
		for n := start; n <= end; n++ {
			sum, ok := summaries[n]
			if !ok {
				complete = false
				break
			}
			window = append(window, sum)
		}

		if complete {
			key := superSummaryKey(start, end, window)
			out.SuperSummary, _ = s.cache.Do(key, func() (string, error) {
				return s.GenerateSuperSummary(ctx, window, start, end), nil
			})
		} else {
			log.Warn("incomplete summary window, skipping super-summary", "chapter", chapterNumber, "start", start, "end", end)
			completedEnd = 0
		}
	}

	windowStart := max(1, chapterNumber-s.window)
	if completedEnd > 0 {
		// Never repeat chapters already folded into the super-summary.
		windowStart = max(windowStart, completedEnd+1)
	}

	var recent strings.Builder
	for n := windowStart; n < chapterNumber; n++ {
		sum, ok := summaries[n]
		if !ok {
			continue
		}
		fmt.Fprintf(&recent, "Chapter %d: %s\n", n, utils.Truncate(sum, recentSummaryChars))
	}
	out.RecentSummaries = strings.TrimRight(recent.String(), "\n")

	return out
}

// TruncateContext enforces the character budget with fixed priorities: recent
// summaries claim at most half the budget, the super-summary half of what
// remains, the outline whatever is left. The outline loses first on the theory
// that the model has internalized the premise over prior calls.
func (s *Summarizer) TruncateContext(c Context, maxChars int) Context {
	if maxChars <= 0 {
		maxChars = DefaultMaxContextChars
	}
	if c.Len() <= maxChars {
		return c
	}

	c.RecentSummaries = utils.Truncate(c.RecentSummaries, maxChars/2)
	remaining := maxChars - len(c.RecentSummaries)
	c.SuperSummary = utils.Truncate(c.SuperSummary, remaining/2)
	remaining -= len(c.SuperSummary)
	c.StoryOutline = utils.Truncate(c.StoryOutline, remaining)
	return c
}

// FormatForLLM joins the three fields under fixed headers, omitting empties.
func FormatForLLM(c Context) string {
	var parts []string
	if c.StoryOutline != "" {
		parts = append(parts, "STORY OUTLINE:\n"+c.StoryOutline)
	}
	if c.SuperSummary != "" {
		parts = append(parts, "PREVIOUS CHAPTERS SUMMARY:\n"+c.SuperSummary)
	}
	if c.RecentSummaries != "" {
		parts = append(parts, "RECENT CHAPTERS:\n"+c.RecentSummaries)
	}
	return strings.Join(parts, "\n\n")
}

func naiveConcat(summaries []string) string {
	switch len(summaries) {
	case 0:
		return ""
	case 1:
		return summaries[0]
	default:
		return summaries[0] + " " + summaries[1] + "..."
	}
}

func superSummaryKey(start, end int, window []string) string {
	h := fnv.New64a()
	for _, w := range window {
		h.Write([]byte(w))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%d-%d:%x", start, end, h.Sum64())
}
