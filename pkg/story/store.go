package story

import (
	"errors"
	"sort"

	"github.com/charmbracelet/log"

	"fable/pkg/schema"
	"fable/pkg/utils"
)

// condenseOver is the chapter-body size beyond which content is stored
// gzip+base64 to keep the stories file manageable.
const condenseOver = 16 * 1024

var ErrNotFound = errors.New("story not found")

// Store keeps all stories in memory behind a typed lock and persists them to
// a single JSON file, the way the rest of the service persists its state.
type Store struct {
	path    string
	stories *utils.SyncMap[map[string]schema.Story, string, schema.Story]
}

func NewStore(path string) *Store {
	return &Store{
		path:    path,
		stories: utils.NewSyncMap[map[string]schema.Story, string, schema.Story](),
	}
}

// Open loads the persisted stories; a missing file is a fresh start.
func (s *Store) Open() error {
	if !utils.Exists(s.path) {
		return nil
	}
	stories, err := utils.Load[map[string]schema.Story](s.path)
	if err != nil {
		return err
	}
	for id, st := range stories {
		expand(&st)
		s.stories.Store(id, st)
	}
	log.Info("loaded stories", "count", len(stories), "path", s.path)
	return nil
}

// Save persists every story, condensing long chapter bodies.
func (s *Store) Save() error {
	out := make(map[string]schema.Story, len(s.stories.Map()))
	for id, st := range s.stories.Map() {
		condense(&st)
		out[id] = st
	}
	return utils.Save(s.path, out)
}

func (s *Store) Get(id string) (schema.Story, error) {
	st, ok := s.stories.Load(id)
	if !ok {
		return schema.Story{}, ErrNotFound
	}
	return st, nil
}

func (s *Store) Put(st schema.Story) {
	s.stories.Store(st.ID, st)
}

func (s *Store) Delete(id string) {
	s.stories.Delete(id)
}

// List returns all stories ordered by creation time.
func (s *Store) List() []schema.Story {
	m := s.stories.Map()
	out := make([]schema.Story, 0, len(m))
	for _, st := range m {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

func condense(st *schema.Story) {
	for i := range st.Chapters {
		ch := &st.Chapters[i]
		if len(ch.Content) <= condenseOver || ch.Condensed != "" {
			continue
		}
		compressed, err := utils.CompressToBase64(ch.Content)
		if err != nil {
			log.Warn("failed condensing chapter body", "story", st.ID, "chapter", ch.Number, "error", err)
			continue
		}
		ch.Condensed = compressed
		ch.Content = ""
	}
}

func expand(st *schema.Story) {
	for i := range st.Chapters {
		ch := &st.Chapters[i]
		if ch.Condensed == "" || ch.Content != "" {
			continue
		}
		content, err := utils.DecompressFromBase64(ch.Condensed)
		if err != nil {
			log.Warn("failed expanding chapter body", "story", st.ID, "chapter", ch.Number, "error", err)
			continue
		}
		ch.Content = content
		ch.Condensed = ""
	}
}
