package assemble

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"fable/pkg/dna"
	"fable/pkg/schema"
	"fable/pkg/utils"
)

// SummaryBlockHeader labels the summary block used as the safety net when
// accumulated DNA fails the quality gate.
const SummaryBlockHeader = "=== PREVIOUS CHAPTER SUMMARIES ==="

const (
	progressionSeparator = "=================================================="
	keepRecentDna        = 2
)

// Entry is one piece of prior-chapter context handed to the assembler. The two
// shapes are distinguished by type, not by sniffing the string for a header.
type Entry interface {
	contextEntry()
}

// DnaEntry carries one chapter's genetic record.
type DnaEntry struct {
	Dna schema.ChapterDna
}

// SummaryBlockEntry carries the formatted previous-chapter summary block.
type SummaryBlockEntry struct {
	Block string
}

func (DnaEntry) contextEntry()          {}
func (SummaryBlockEntry) contextEntry() {}

// Config holds the quality-gate thresholds and the DNA combining ceiling.
// The defaults are provisional heuristics, not load-bearing business rules.
type Config struct {
	EmptyRatioLimit  float64 // fraction of blank entries tolerated
	MinContextLength int     // chars below which accumulated DNA is suspect
	MaxDnaChars      int     // combined DNA ceiling before dropping old chapters
}

func DefaultConfig() Config {
	return Config{
		EmptyRatioLimit:  0.6,
		MinContextLength: 200,
		MaxDnaChars:      8000,
	}
}

// Assembler combines DNA records (or their absence) with the summary block
// into the final prior-chapter context for generation, applying the quality
// gate and the DNA -> summaries -> outline-only degradation chain.
type Assembler struct {
	cfg Config
}

func NewAssembler(cfg Config) *Assembler {
	def := DefaultConfig()
	if cfg.EmptyRatioLimit <= 0 {
		cfg.EmptyRatioLimit = def.EmptyRatioLimit
	}
	if cfg.MinContextLength <= 0 {
		cfg.MinContextLength = def.MinContextLength
	}
	if cfg.MaxDnaChars <= 0 {
		cfg.MaxDnaChars = def.MaxDnaChars
	}
	return &Assembler{cfg: cfg}
}

// Report is the result of the DNA quality gate. The gate is conjunctive:
// IsValid holds iff no issue was raised.
type Report struct {
	IsValid          bool     `json:"is_valid"`
	Issues           []string `json:"issues,omitempty"`
	EmptyRatio       float64  `json:"empty_ratio"`
	HasFallbackFlags bool     `json:"has_fallback_flags"`
	TotalItems       int      `json:"total_items"`
	Length           int      `json:"length"`
}

var fallbackMarkers = []string{"fallback", "partial_fallback", "error"}

var emptyArrayMarkers = []string{
	`"active_characters": []`,
	`"continuity_anchors": []`,
	`"pending_decisions": []`,
}

// ValidateDnaQuality runs the cheap heuristic gate over the already-formatted
// DNA context strings collected from all prior chapters.
func (a *Assembler) ValidateDnaQuality(contexts []string) Report {
	if len(contexts) == 0 {
		return Report{Issues: []string{"no_contexts"}, EmptyRatio: 1.0}
	}

	r := Report{TotalItems: len(contexts)}
	empty := 0
	for _, c := range contexts {
		if strings.TrimSpace(c) == "" {
			empty++
			continue
		}
		r.Length += len(c)
		if utils.StringContains(c, false, fallbackMarkers...) {
			r.HasFallbackFlags = true
		}
		if utils.StringContains(c, true, emptyArrayMarkers...) {
			r.Issues = appendIssue(r.Issues, "empty_arrays")
		}
	}

	r.EmptyRatio = float64(empty) / float64(len(contexts))
	if r.EmptyRatio > a.cfg.EmptyRatioLimit {
		r.Issues = appendIssue(r.Issues, "mostly_empty")
	}
	if r.Length < a.cfg.MinContextLength {
		r.Issues = appendIssue(r.Issues, "too_short")
	}
	if r.HasFallbackFlags {
		r.Issues = appendIssue(r.Issues, "fallback_flagged")
	}

	r.IsValid = len(r.Issues) == 0
	return r
}

// BuildContext resolves the degradation chain: trusted DNA when the gate
// passes, the summary block when it fails, a bare outline instruction when no
// summaries exist either. It never fails.
func (a *Assembler) BuildContext(entries []Entry) string {
	var dnaContexts []string
	var summaryBlock string
	for _, e := range entries {
		switch v := e.(type) {
		case DnaEntry:
			dnaContexts = append(dnaContexts, dna.FormatForPrompt(v.Dna))
		case SummaryBlockEntry:
			summaryBlock = v.Block
		}
	}

	report := a.ValidateDnaQuality(dnaContexts)
	if report.IsValid {
		return a.FormatDnaContexts(dnaContexts)
	}

	log.Warn("dna context failed quality gate", "issues", strings.Join(report.Issues, ","), "empty_ratio", report.EmptyRatio, "length", report.Length)

	if strings.TrimSpace(summaryBlock) != "" {
		return "The chapter-state records are unreliable. Prioritize the chapter summaries below for continuity.\n\n" +
			SummaryBlockHeader + "\n" + summaryBlock
	}
	return "No reliable prior-chapter context is available. Rely on the story outline for continuity."
}

// FormatDnaContexts joins per-chapter DNA strings under a progression header.
// When the combined length exceeds the ceiling only the most recent chapters
// survive; old DNA is the cheapest context to lose.
func (a *Assembler) FormatDnaContexts(contexts []string) string {
	if len(contexts) == 0 {
		return ""
	}

	combined := join(contexts)
	if len(combined) > a.cfg.MaxDnaChars && len(contexts) > keepRecentDna {
		log.Debug("dna context over ceiling, keeping most recent chapters", "chapters", len(contexts), "chars", len(combined), "kept", keepRecentDna)
		combined = join(contexts[len(contexts)-keepRecentDna:])
	}
	return combined
}

func join(contexts []string) string {
	body := strings.Join(contexts, "\n"+progressionSeparator+"\n")
	if len(contexts) > 1 {
		return fmt.Sprintf("STORY PROGRESSION (%d chapters):\n%s", len(contexts), body)
	}
	return body
}

func appendIssue(issues []string, issue string) []string {
	for _, i := range issues {
		if i == issue {
			return issues
		}
	}
	return append(issues, issue)
}
