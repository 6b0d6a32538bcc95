package schema

import "time"

// Story is the persisted state of one interactive fiction run.
type Story struct {
	ID        string    `json:"id"`
	Idea      string    `json:"idea"`
	Genre     string    `json:"genre,omitempty"`
	GameMode  bool      `json:"game_mode,omitempty"`
	Outline   Outline   `json:"outline"`
	Chapters  []Chapter `json:"chapters"`
	CreatedAt string    `json:"created_at"`
}

// NextChapterNumber is 1-based.
func (s *Story) NextChapterNumber() int {
	return len(s.Chapters) + 1
}

// SummariesByChapter collects the stored per-chapter summaries, skipping
// chapters that have not been summarized yet.
func (s *Story) SummariesByChapter() map[int]string {
	out := make(map[int]string, len(s.Chapters))
	for _, ch := range s.Chapters {
		if ch.Summary != "" {
			out[ch.Number] = ch.Summary
		}
	}
	return out
}

// DnaByChapter collects the stored per-chapter DNA records in chapter order.
func (s *Story) DnaByChapter() []ChapterDna {
	out := make([]ChapterDna, 0, len(s.Chapters))
	for _, ch := range s.Chapters {
		if ch.Dna != nil {
			out = append(out, *ch.Dna)
		}
	}
	return out
}

type Chapter struct {
	Number    int         `json:"number"`
	Title     string      `json:"title,omitempty"`
	Content   string      `json:"content,omitempty"`
	Condensed string      `json:"condensed,omitempty"` // gzip+base64 body for long chapters
	Summary   string      `json:"summary,omitempty"`
	Dna       *ChapterDna `json:"dna,omitempty"`
	Choice    string      `json:"choice,omitempty"` // reader choice that led into this chapter
	Choices   []Choice    `json:"choices,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Choice is one branch offered to the reader at the end of a game-mode chapter.
type Choice struct {
	Label    string `json:"label" jsonschema_description:"Short text of the choice as shown to the reader"`
	Hint     string `json:"hint,omitempty" jsonschema_description:"One-line hint at where this branch leads"`
	Selected bool   `json:"selected,omitempty" jsonschema:"-"`
}

// Outline is the story plan generated from the user's idea.
type Outline struct {
	Title        string        `json:"title" jsonschema_description:"Story title"`
	Premise      string        `json:"premise" jsonschema_description:"Two or three sentence premise"`
	Setting      string        `json:"setting" jsonschema_description:"Primary setting"`
	Protagonist  string        `json:"protagonist" jsonschema_description:"Protagonist name and one-line description"`
	PlannedBeats []PlannedBeat `json:"planned_beats" jsonschema_description:"Ordered major story beats"`
	Themes       []string      `json:"themes,omitempty" jsonschema_description:"Recurring themes"`
}

type PlannedBeat struct {
	Chapter int    `json:"chapter" jsonschema_description:"Approximate chapter where this beat lands"`
	Beat    string `json:"beat" jsonschema_description:"What happens at this beat"`
}

// Text renders the outline as the flat prompt block used in context assembly.
func (o Outline) Text() string {
	if o.Title == "" && o.Premise == "" {
		return ""
	}
	out := o.Title
	if o.Premise != "" {
		out += "\n" + o.Premise
	}
	if o.Setting != "" {
		out += "\nSetting: " + o.Setting
	}
	if o.Protagonist != "" {
		out += "\nProtagonist: " + o.Protagonist
	}
	for _, b := range o.PlannedBeats {
		out += "\n- " + b.Beat
	}
	return out
}
