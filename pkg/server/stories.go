package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/segmentio/ksuid"

	"fable/pkg/schema"
	"fable/pkg/story"
	"fable/pkg/utils"
)

type storyReq struct {
	Idea     string `json:"idea"`
	Genre    string `json:"genre,omitempty"`
	GameMode bool   `json:"game_mode,omitempty"`
}

// POST /api/stories
func (s *Server) handlePostStory(c echo.Context) error {
	var req storyReq
	if err := c.Bind(&req); err != nil {
		log.Warn("invalid JSON in /api/stories", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}
	req.Idea = strings.TrimSpace(req.Idea)
	if req.Idea == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "idea is required")
	}

	ctx := c.Request().Context()
	outline, err := s.Generator.Outline(ctx, req.Idea, req.Genre)
	if err != nil {
		log.Error("outline generation failed", "error", err)
		return c.JSON(http.StatusBadGateway, utils.ErrJSON("outline generation failed"))
	}

	st := schema.Story{
		ID:        ksuid.New().String(),
		Idea:      req.Idea,
		Genre:     req.Genre,
		GameMode:  req.GameMode,
		Outline:   outline,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	s.Stories.Put(st)
	if err := s.Stories.Save(); err != nil {
		log.Warn("failed saving stories", "error", err)
	}

	log.Info("story created", "id", st.ID, "title", outline.Title, "game_mode", st.GameMode)
	return c.JSON(http.StatusCreated, st)
}

// GET /api/stories
func (s *Server) handleListStories(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Stories.List())
}

// GET /api/stories/:id
func (s *Server) handleGetStory(c echo.Context) error {
	st, err := s.Stories.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, story.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "story not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed loading story")
	}
	return c.JSON(http.StatusOK, st)
}

type choiceReq struct {
	Choice string `json:"choice"`
}

// POST /api/stories/:id/choices
func (s *Server) handlePostChoice(c echo.Context) error {
	var req choiceReq
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}
	req.Choice = strings.TrimSpace(req.Choice)
	if req.Choice == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "choice is required")
	}

	st, err := s.Stories.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "story not found")
	}
	if !st.GameMode {
		return echo.NewHTTPError(http.StatusBadRequest, "story is not in game mode")
	}
	if len(st.Chapters) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no chapter to choose from")
	}

	last := &st.Chapters[len(st.Chapters)-1]
	matched := false
	for i := range last.Choices {
		selected := strings.EqualFold(last.Choices[i].Label, req.Choice)
		last.Choices[i].Selected = selected
		if selected {
			matched = true
		}
	}
	if !matched {
		return echo.NewHTTPError(http.StatusBadRequest, "choice does not match any offered branch")
	}

	s.Stories.Put(st)
	if err := s.Stories.Save(); err != nil {
		log.Warn("failed saving stories after choice", "error", err)
	}

	log.Info("choice recorded", "story", st.ID, "chapter", last.Number, "choice", req.Choice)
	return c.JSON(http.StatusOK, last)
}
