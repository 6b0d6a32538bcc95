package schema

// ExtractionStatus marks how a chapter DNA record was produced.
type ExtractionStatus string

const (
	ExtractionOK              ExtractionStatus = "ok"
	ExtractionPartialFallback ExtractionStatus = "partial_fallback"
	ExtractionFallback        ExtractionStatus = "fallback"
)

// ChapterDna is the compact genetic record extracted from a finished chapter.
// It is created once per chapter and never edited afterwards; every later
// chapter's context assembly reads it.
type ChapterDna struct {
	ChapterNumber     int               `json:"chapter_number" jsonschema:"-"`
	SceneGenetics     SceneGenetics     `json:"scene_genetics" jsonschema_description:"The chapter's closing or dominant setting"`
	CharacterGenetics CharacterGenetics `json:"character_genetics" jsonschema_description:"Characters present and their states and relationships"`
	EmotionalGenetics EmotionalGenetics `json:"emotional_genetics" jsonschema_description:"Emotional tone of the chapter"`
	PlotGenetics      PlotGenetics      `json:"plot_genetics" jsonschema_description:"Open plot threads carried into the next chapter"`
	EndingGenetics    EndingGenetics    `json:"ending_genetics" jsonschema_description:"The literal final 2-3 sentences: how the chapter ends"`
	ContinuityAnchors []string          `json:"continuity_anchors" jsonschema_description:"Established facts that later chapters must never contradict"`
	ExtractionStatus  ExtractionStatus  `json:"extraction_status,omitempty" jsonschema:"-"`
}

type SceneGenetics struct {
	LocationType        string `json:"location_type" jsonschema_description:"Short category of the location (e.g., forest, village, castle)"`
	LocationDescription string `json:"location_description" jsonschema_description:"One-sentence description of the location; vary the phrasing between chapters"`
	TimeContext         string `json:"time_context" jsonschema_description:"Time of day or elapsed-time context"`
	Atmosphere          string `json:"atmosphere" jsonschema_description:"Mood of the setting"`
}

type CharacterGenetics struct {
	ActiveCharacters       []string          `json:"active_characters" jsonschema_description:"Proper names of characters active in this chapter; never pronouns or sentence-leading words"`
	CharacterStates        map[string]string `json:"character_states,omitempty" jsonschema_description:"Mapping of character name to their physical/mental state at chapter end"`
	CharacterRelationships map[string]string `json:"character_relationships,omitempty" jsonschema_description:"Mapping of 'A-B' pair keys to a short relationship description"`
}

type EmotionalGenetics struct {
	DominantEmotions  []string `json:"dominant_emotions" jsonschema_description:"The chapter's dominant emotions"`
	EmotionalMomentum string   `json:"emotional_momentum" jsonschema:"enum=rising,enum=falling,enum=stable,enum=shifting" jsonschema_description:"Direction the emotional energy is moving"`
	TensionLevel      string   `json:"tension_level" jsonschema:"enum=high,enum=medium,enum=low" jsonschema_description:"Narrative tension at chapter end"`
}

type PlotGenetics struct {
	PendingDecisions    []string `json:"pending_decisions" jsonschema_description:"Decisions characters still have to make"`
	ActiveConflicts     []string `json:"active_conflicts" jsonschema_description:"Unresolved conflicts"`
	ConversationThreads []string `json:"conversation_threads" jsonschema_description:"Conversations left unfinished"`
}

type EndingGenetics struct {
	FinalSceneContext string `json:"final_scene_context" jsonschema_description:"Where and how the final scene ends, anchored to the last 2-3 sentences"`
	LastDialogue      string `json:"last_dialogue" jsonschema_description:"The last spoken line, if any"`
	LastAction        string `json:"last_action" jsonschema_description:"The last physical action taken"`
	SceneStatus       string `json:"scene_status" jsonschema:"enum=ongoing,enum=complete,enum=transitional" jsonschema_description:"Whether the final scene is still in progress"`
	CliffhangerType   string `json:"cliffhanger_type" jsonschema:"enum=question,enum=decision,enum=suspense,enum=none" jsonschema_description:"What kind of cliffhanger, if any, the chapter ends on"`
}
