package dna

import (
	"strings"
	"sync"
)

// characterDenylist covers pronouns and capitalized sentence-leading words the
// model keeps mistaking for names.
var characterDenylist = map[string]struct{}{
	"You": {}, "Your": {}, "Each": {}, "With": {}, "This": {}, "That": {},
	"The": {}, "They": {}, "Then": {}, "There": {}, "These": {}, "Those": {},
	"When": {}, "Where": {}, "While": {}, "What": {}, "Who": {},
	"After": {}, "Before": {}, "During": {}, "Inside": {}, "Outside": {},
	"Suddenly": {}, "Meanwhile": {}, "However": {}, "Although": {},
	"Chapter": {}, "Once": {}, "Every": {}, "Some": {}, "Many": {},
	"His": {}, "Her": {}, "Their": {}, "She": {}, "Him": {},
}

// overusedPhrases are location descriptions the model re-emits verbatim in
// back-to-back chapters. Matching is lowercase-substring.
var overusedPhrases = []string{
	"edge of the ancient forest",
	"heart of the bustling village",
	"heart of the ancient forest",
	"shadow of the towering castle",
}

// varietyPool offers replacement descriptions keyed by location type bucket.
var varietyPool = map[string][]string{
	"forest": {
		"a moss-choked clearing deep among the old trees",
		"a narrow deer trail winding beneath tangled branches",
		"a stand of silver birches at the wood's dim border",
		"a hollow where roots knuckle up through wet leaves",
	},
	"village": {
		"a crooked lane between shuttered market stalls",
		"the worn stone well at the village's quiet center",
		"a row of low cottages with smoke curling from their chimneys",
		"the muddy crossroads where the village meets the fields",
	},
	"castle": {
		"a drafty gallery hung with faded banners",
		"the narrow stair spiraling up the seaward tower",
		"a torch-lit undercroft beneath the great hall",
		"the battlements slick with the evening's first rain",
	},
	"": {
		"a quiet place a little removed from where things ended",
		"unfamiliar ground just beyond the last scene",
	},
}

// phraseRing remembers the last n variety picks so replacements cycle through
// the pool deterministically instead of leaning on chance.
type phraseRing struct {
	mu   sync.Mutex
	max  int
	used []string
}

func newPhraseRing(max int) *phraseRing {
	return &phraseRing{max: max}
}

func (r *phraseRing) remember(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.used = append(r.used, s)
	if len(r.used) > r.max {
		r.used = r.used[len(r.used)-r.max:]
	}
}

func (r *phraseRing) wasUsed(s string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.used {
		if u == s {
			return true
		}
	}
	return false
}

// pickVariety returns the first pool phrase for the location bucket that has
// not been handed out recently. When the whole bucket has been used the oldest
// pick comes around again.
func (e *Extractor) pickVariety(locationType string) string {
	bucket := varietyBucket(locationType)
	pool := varietyPool[bucket]
	for _, phrase := range pool {
		if !e.recent.wasUsed(phrase) {
			e.recent.remember(phrase)
			return phrase
		}
	}
	phrase := pool[0]
	e.recent.remember(phrase)
	return phrase
}

func varietyBucket(locationType string) string {
	lt := strings.ToLower(strings.TrimSpace(locationType))
	for _, b := range []string{"forest", "village", "castle"} {
		if strings.Contains(lt, b) {
			return b
		}
	}
	return ""
}
