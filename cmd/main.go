package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"study-rag/internal/config"
	"study-rag/internal/embedding"
	"study-rag/internal/helper"
	"study-rag/internal/llmservice"
	"study-rag/internal/models"
	"study-rag/internal/parser"
	"study-rag/internal/rag"
	"study-rag/internal/server"
	"study-rag/internal/session"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	filePath := flag.String("file", "", "Path to a document to load")
	query := flag.String("query", "", "Question to ask about the document given with -file")
	dryRun := flag.Bool("dry-run", false, "Only extract and chunk the document, do not index it")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	setupLogger(&cfg.Log)
	log.Debug().Interface("config", redacted(cfg)).Msg("Loaded config")

	if *query != "" && *filePath == "" {
		log.Fatal().Msg("Please provide the document to query using the -file flag")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *filePath != "" && *dryRun {
		if err := chunkFile(*filePath, cfg); err != nil {
			log.Fatal().Err(err).Msg("Error parsing document")
		}
		return
	}

	assistant, err := newAssistant(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing assistant")
	}

	if *filePath != "" {
		if err := askFile(ctx, assistant, cfg, *filePath, *query); err != nil {
			log.Fatal().Err(err).Msg("Error querying document")
		}
		return
	}

	if err := server.New(cfg, assistant, session.NewManager()).Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}
}

func setupLogger(logConfig *config.LogConfig) {
	level, err := zerolog.ParseLevel(logConfig.Level)
	if err != nil {
		log.Warn().Str("level", logConfig.Level).Msg("Unknown log level, using debug")
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if logConfig.JSON {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()
	}
}

func newAssistant(cfg *config.Config) (*rag.Assistant, error) {
	embed, err := embedding.NewEmbeddingFunc(&cfg.EmbedLLM)
	if err != nil {
		return nil, err
	}

	model, err := llmservice.NewChatModel(&cfg.ChatLLM)
	if err != nil {
		return nil, err
	}

	generator := rag.NewGenerator(model, cfg.ChatLLM, cfg.RAG.HistoryTurns)
	return rag.NewAssistant(cfg, embed, generator), nil
}

// chunkFile prints the chunks a document would be indexed as.
func chunkFile(filePath string, cfg *config.Config) error {
	text, pages, err := parser.LoadFile(filePath)
	if err != nil {
		return err
	}

	chunks := parser.ChunkText(text, cfg.RAG.ChunkSize)
	log.Info().
		Str("file", filePath).
		Int("characters", len([]rune(text))).
		Int("pages", pages).
		Int("chunks", len(chunks)).
		Msg("Parsed document")
	helper.PrettyPrint(chunks)
	return nil
}

// askFile indexes one document in a throwaway session and answers query
// against it. Without a query only the upload status is printed.
func askFile(ctx context.Context, assistant *rag.Assistant, cfg *config.Config, filePath, query string) error {
	sess := session.NewManager().New()

	status, docs := assistant.Upload(ctx, sess, []rag.UploadFile{{Name: filePath, Path: filePath}})
	fmt.Printf("%s\n\n%s\n\n", status, docs)
	if query == "" {
		return nil
	}

	sess.Lock()
	retrieved, err := rag.Retrieve(ctx, sess.Store(), query, cfg.RAG.TopK)
	sess.Unlock()
	if err != nil {
		return err
	}

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	answer := assistant.Ask(ctx, sess, query, nil, func(fragment string) error {
		fmt.Print(fragment)
		return nil
	})
	fmt.Print("\n\n")

	resp := models.PromptResponse{Query: query, Context: retrieved, Content: answer}
	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", resp.Query)

	log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", resp.Context)

	if !cfg.ChatLLM.Stream {
		log.Info().Msg("Answer: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Printf("%s\n\n", resp.Content)
	}
	return nil
}

// redacted returns a copy of cfg safe for logging.
func redacted(cfg *config.Config) config.Config {
	c := *cfg
	if c.ChatLLM.Key != "" {
		c.ChatLLM.Key = "***"
	}
	if c.EmbedLLM.Key != "" {
		c.EmbedLLM.Key = "***"
	}
	return c
}
