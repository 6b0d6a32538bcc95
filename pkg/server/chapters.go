package server

import (
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"

	"fable/pkg/queue"
	"fable/pkg/schema"
	"fable/pkg/utils"
)

type chapterReq struct {
	Choice string `json:"choice,omitempty"`
}

// POST /api/stories/:id/chapters
//
// Streams generation progress as SSE events (context, prose, analysis,
// choices) and finishes with the stored chapter under "done".
func (s *Server) handlePostChapter(c echo.Context) error {
	var req chapterReq
	if err := c.Bind(&req); err != nil {
		log.Warn("invalid JSON in chapter request", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}

	st, err := s.Stories.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "story not found")
	}

	choice := strings.TrimSpace(req.Choice)
	if choice == "" && st.GameMode {
		choice = selectedChoice(&st)
	}
	if st.GameMode && len(st.Chapters) > 0 && choice == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "game mode requires a choice after the first chapter")
	}

	log.Info("starting chapter generation", "story", st.ID, "chapter", st.NextChapterNumber(), "choice", utils.LimitStr(choice, 50))
	w := utils.NewSSEWriter(c)
	defer w.Close()

	events := func(stage string, data any) {
		if err := w.Event(stage, data); err != nil {
			log.Warn("SSE write error", "stage", stage, "error", err)
		}
	}

	respCh, errCh, err := s.Queue.Add(&queue.Job{
		Ctx:     c.Request().Context(),
		StoryID: st.ID,
		Choice:  choice,
		Events:  events,
	})
	if err != nil {
		log.Error("failed enqueuing generation job", "story", st.ID, "error", err)
		return w.Event("error", utils.ErrJSON("generation queue is full"))
	}

	// The worker appends and saves the chapter; the handler only streams.
	select {
	case chapter, ok := <-respCh:
		if !ok {
			// The worker closes the response channel after reporting failure.
			genErr := <-errCh
			return w.Event("error", utils.ErrJSON(genErr.Error()))
		}
		log.Info("chapter complete", "story", st.ID, "chapter", chapter.Number, "summary", chapter.Summary != "", "choices", len(chapter.Choices))
		return w.Event("done", chapter)
	case <-c.Request().Context().Done():
		log.Warn("chapter generation cancelled by client", "story", st.ID)
		return nil
	}
}

// selectedChoice returns the branch the reader marked on the latest chapter.
func selectedChoice(st *schema.Story) string {
	if len(st.Chapters) == 0 {
		return ""
	}
	last := st.Chapters[len(st.Chapters)-1]
	for _, ch := range last.Choices {
		if ch.Selected {
			return ch.Label
		}
	}
	return ""
}
