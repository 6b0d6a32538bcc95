package generate

const outlinePrompt = `You are a story planner for serialized interactive fiction. From the reader's idea, produce a single JSON object with the story outline: 'title', 'premise' (2-3 sentences), 'setting', 'protagonist', 'planned_beats' (an ordered array of {'chapter', 'beat'} covering roughly 10 chapters), and optional 'themes'. Plan beats that leave room for reader choices to bend the story. Output only the JSON object.`

const chapterPrompt = `You are the author of an ongoing serialized story. Write the next chapter as immersive prose.

**Rules**:
- Continue from exactly where the previous chapter ended; the context below tells you where that is.
- Never contradict the continuity anchors or established character facts in the context.
- Keep the chapter to roughly 800-1200 words.
- End on a hook that invites continuation.
- Output only the chapter prose, no headings or commentary.`

const choiceDirective = `The reader chose: %q. The chapter must follow directly from that choice.`

const chapterSummaryPrompt = `Summarize the following chapter in one paragraph of at most 150 words. Name the characters involved, what happened, and how the chapter ends. Output only the paragraph.`

const choicesPrompt = `You write branch points for interactive fiction. Given the chapter that was just written, return a JSON object with a 'choices' array of 2-3 options the reader can pick to steer the next chapter. Each option has a short 'label' (what the reader does) and an optional one-line 'hint'. The options must be meaningfully different. Output only the JSON object.`
