package server

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"fable/pkg/generate"
	"fable/pkg/queue"
	"fable/pkg/story"
	"fable/pkg/utils"
)

type Server struct {
	Echo      *echo.Echo
	Generator *generate.Generator
	Stories   *story.Store
	Queue     queue.Queue
	Ctx       context.Context
}

func NewServer(ctx context.Context, gen *generate.Generator, stories *story.Store) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.CORS())

	s := &Server{
		Echo:      e,
		Generator: gen,
		Stories:   stories,
		Queue:     queue.New(gen, stories),
		Ctx:       ctx,
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.Echo.GET("/", s.handleGetRoot)

	api := s.Echo.Group("/api")
	api.POST("/stories", s.handlePostStory)                // idea -> outline + new story
	api.GET("/stories", s.handleListStories)               // all stories
	api.GET("/stories/:id", s.handleGetStory)              // full story state
	api.POST("/stories/:id/chapters", s.handlePostChapter) // generate next chapter (SSE)
	api.POST("/stories/:id/choices", s.handlePostChoice)   // record reader choice
}

func (s *Server) Start(addr string) error {
	s.Queue.Start()
	utils.Logf("Server listening at %s", addr)
	return s.Echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	utils.Logf("Shutting down server...")

	s.Queue.Stop()
	saveErr := s.Stories.Save()
	shutDownErr := s.Echo.Shutdown(ctx)
	if shutDownErr != nil {
		return shutDownErr
	}

	return saveErr
}
