package queue

import (
	"errors"

	"github.com/charmbracelet/log"

	"fable/pkg/generate"
	"fable/pkg/schema"
	"fable/pkg/story"
	"fable/pkg/utils"
)

// Worker serializes chapter generation. The whole read-generate-append-save
// cycle for a story runs inside the worker, so two concurrent requests for the
// same story can never both build chapter N from the same snapshot.
type Worker struct {
	gen     *generate.Generator
	stories *story.Store
	stop    chan struct{}
	items   chan *item
}

type item struct {
	job      *Job
	response chan schema.Chapter
	err      chan error
}

func New(gen *generate.Generator, stories *story.Store) *Worker {
	return &Worker{
		gen:     gen,
		stories: stories,
		items:   make(chan *item, 100),
		stop:    make(chan struct{}),
	}
}

func (q *Worker) Start() {
	go q.processLoop()
}

func (q *Worker) Stop() {
	close(q.stop)
}

func (q *Worker) Add(job *Job) (chan schema.Chapter, chan error, error) {
	respCh := make(chan schema.Chapter, 1)
	errCh := make(chan error, 1)

	select {
	case q.items <- &item{job: job, response: respCh, err: errCh}:
		return respCh, errCh, nil
	default:
		return nil, nil, errors.New("queue is full")
	}
}

func (q *Worker) processLoop() {
	log.Info("generation queue started")
	for {
		select {
		case <-q.stop:
			log.Info("generation queue stopped")
			return
		case it := <-q.items:
			q.processItem(it)
		}
	}
}

func (q *Worker) processItem(it *item) {
	job := it.job

	st, err := q.stories.Get(job.StoryID)
	if err != nil {
		log.Error("story missing at generation time", "story", job.StoryID, "error", err)
		it.err <- err
		close(it.response)
		return
	}
	log.Debug("processing generation job", "story", st.ID, "chapter", st.NextChapterNumber(), "choice", utils.LimitStr(job.Choice, 50))

	chapter, err := q.gen.NextChapter(job.Ctx, &st, job.Choice, job.Events)
	if err != nil {
		log.Error("chapter generation failed", "story", st.ID, "error", err)
		it.err <- err
		close(it.response)
		return
	}

	st.Chapters = append(st.Chapters, chapter)
	q.stories.Put(st)
	if err := q.stories.Save(); err != nil {
		log.Warn("failed saving stories after chapter", "error", err)
	}

	it.response <- chapter
	close(it.err)
}
