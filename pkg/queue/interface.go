package queue

import (
	"context"

	"fable/pkg/generate"
	"fable/pkg/schema"
)

// Job is one chapter-generation request. The worker resolves the story by ID
// at processing time, so a queued job always sees the chapters appended by the
// jobs that ran before it.
type Job struct {
	Ctx     context.Context
	StoryID string
	Choice  string
	Events  generate.Events
}

type Queue interface {
	Start()
	Stop()
	Add(job *Job) (chan schema.Chapter, chan error, error)
}
