package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/labstack/gommon/log"

	"fable/pkg/generate"
	"fable/pkg/inference"
	"fable/pkg/server"
	"fable/pkg/story"
	"fable/pkg/utils"
)

func main() {
	ctx, done := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGKILL)

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	openAI := inference.NewOpenAIInferencer(apiKey, model)
	if apiKey == "" {
		openAI.ChangeBaseURL("http://localhost:1234/v1")
		openAI.SetModel("")
	}
	var inf inference.Inferencer = openAI

	if grokKey := os.Getenv("GROK_API_KEY"); grokKey != "" {
		inf = inference.NewGrokInferencer(grokKey, os.Getenv("GROK_MODEL"))
	}
	if geminiKey := os.Getenv("GEMINI_API_KEY"); geminiKey != "" {
		gemini, err := inference.NewGeminiInferencer(geminiKey, os.Getenv("GEMINI_MODEL"))
		if err != nil {
			log.Fatalf("failed creating Gemini client: %v", err)
		}
		inf = gemini
	}

	cfg := generate.DefaultConfig()
	if v := envInt("FABLE_SUPER_SUMMARY_INTERVAL"); v > 0 {
		cfg.SuperSummaryInterval = v
	}
	if v := envInt("FABLE_SLIDING_WINDOW"); v > 0 {
		cfg.SlidingWindowSize = v
	}
	if v := envInt("FABLE_MAX_CONTEXT_CHARS"); v > 0 {
		cfg.MaxContextChars = v
	}

	log.Debugf("generation config: %s", utils.PrettyJSON(cfg))

	gen, err := generate.NewGenerator(inf, cfg)
	if err != nil {
		log.Fatal(err)
	}

	stories := story.NewStore("Stories.json")
	if err := stories.Open(); err != nil {
		log.Warnf("Failed to load Stories.json: %v", err)
	}

	srv := server.NewServer(ctx, gen, stories)
	srv.Echo.Logger.SetLevel(log.DEBUG)

	addr := ":8080"
	if envAddr := os.Getenv("PORT"); envAddr != "" {
		addr = ":" + envAddr
	}

	finishedShutDown := make(chan struct{})
	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(ctx); err != nil {
			log.Fatal(err)
		}
		done()
		close(finishedShutDown)
	}()

	if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error(err)
	}
	<-finishedShutDown
}

func envInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}
