package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"study-rag/internal/chromemdb"
	"study-rag/internal/config"
	"study-rag/internal/helper"
	"study-rag/internal/models"
	"study-rag/internal/parser"
	"study-rag/internal/session"
)

// UploadFile is one uploaded file. Reader and Size are used when set,
// otherwise the file is read from Path.
type UploadFile struct {
	Name   string
	Path   string
	Reader io.ReaderAt
	Size   int64
}

// Status is the sidebar view of a session.
type Status struct {
	Documents    []models.Document `json:"documents"`
	DocumentList string            `json:"document_list"`
	Chunks       int               `json:"chunks"`
	Turns        int               `json:"turns"`
	Model        string            `json:"model"`
}

// Assistant implements the upload, ask, clear and export actions. Every
// action returns display strings; failures never escape as errors.
type Assistant struct {
	cfg       *config.Config
	embed     chromem.EmbeddingFunc
	generator *Generator
	now       func() time.Time
}

func NewAssistant(cfg *config.Config, embed chromem.EmbeddingFunc, generator *Generator) *Assistant {
	return &Assistant{
		cfg:       cfg,
		embed:     embed,
		generator: generator,
		now:       time.Now,
	}
}

// Upload extracts, chunks and indexes files, replacing the session's knowledge
// store. It returns a status message and the document list display.
func (a *Assistant) Upload(ctx context.Context, sess *session.Session, files []UploadFile) (string, string) {
	sess.Lock()
	defer sess.Unlock()

	if len(files) == 0 {
		return models.MsgNoFiles, DocumentList(sess.Documents())
	}

	var (
		docs    []models.Document
		allText strings.Builder
	)
	for _, f := range files {
		name := helper.BaseName(f.Name)
		log.Info().Str("file", name).Msg("Processing upload")

		if !a.allowed(name) {
			return models.MsgErrorPrefix + fmt.Sprintf("%s: unsupported file type", name), DocumentList(sess.Documents())
		}

		text, pages, err := loadUpload(f, name)
		if err != nil {
			log.Error().Err(err).Str("file", name).Msg("Error loading document")
			return models.MsgErrorPrefix + fmt.Sprintf("%s: %v", name, err), DocumentList(sess.Documents())
		}
		if pages <= 0 {
			pages = parser.EstimatePages(text)
		}

		docs = append(docs, models.Document{
			Name:       name,
			Text:       text,
			Characters: utf8.RuneCountInString(text),
			Pages:      pages,
		})
		allText.WriteString(text)
		allText.WriteString("\n\n")
	}

	chunks := parser.ChunkText(allText.String(), a.cfg.RAG.ChunkSize)
	log.Info().Int("documents", len(docs)).Int("chunks", len(chunks)).Msg("Creating knowledge base")

	store := sess.Store()
	if store == nil {
		store = chromemdb.NewKnowledgeStore(a.embed, a.cfg.RAG.CollectionName, a.cfg.RAG.EmbedConcurrency)
	}
	if err := store.Build(ctx, chunks); err != nil {
		log.Error().Err(err).Msg("Error building knowledge base")
		sess.SetStore(nil)
		sess.SetDocuments(nil)
		return models.MsgErrorPrefix + err.Error() + "\n\n" + fmt.Sprintf(models.MsgCheckBackend, a.cfg.EmbedLLM.Model), DocumentList(nil)
	}
	sess.SetStore(store)
	sess.SetDocuments(docs)

	return uploadStatus(docs, len(chunks)), DocumentList(docs)
}

// Ask answers question from the session's documents. history, when supplied
// by the caller, takes precedence over the session transcript for the
// recent-conversation part of the prompt.
func (a *Assistant) Ask(ctx context.Context, sess *session.Session, question string, history []models.Turn, onFragment func(string) error) string {
	question = strings.TrimSpace(question)
	if question == "" {
		return ""
	}

	sess.Lock()
	defer sess.Unlock()

	store := sess.Store()
	if store == nil {
		return models.MsgUploadFirst
	}

	recent := session.LastTurns(history, a.cfg.RAG.HistoryTurns)
	if len(history) == 0 {
		recent = sess.RecentTurns(a.cfg.RAG.HistoryTurns)
	}

	retrieved, err := Retrieve(ctx, store, question, a.cfg.RAG.TopK)
	if err != nil {
		log.Error().Err(err).Msg("Error retrieving context")
		return models.MsgErrorPrefix + err.Error() + "\n\n" + fmt.Sprintf(models.MsgCheckBackend, a.cfg.EmbedLLM.Model)
	}

	answer, err := a.generator.Generate(ctx, retrieved, question, recent, onFragment)
	if errors.Is(err, ErrEmptyAnswer) {
		log.Warn().Str("model", a.generator.ModelName()).Msg("Model returned an empty answer")
		return models.MsgEmptyAnswer
	}
	if err != nil {
		log.Error().Err(err).Msg("Error generating answer")
		return models.MsgErrorPrefix + err.Error() + "\n\n" + fmt.Sprintf(models.MsgCheckOllama, a.generator.ModelName())
	}

	sess.AppendTurn(models.Turn{
		Question:  question,
		Answer:    answer,
		Timestamp: a.now(),
	})
	return answer
}

// Clear resets the session.
func (a *Assistant) Clear(sess *session.Session) string {
	sess.Lock()
	defer sess.Unlock()

	sess.Clear()
	log.Info().Str("session_id", sess.ID).Msg("Session cleared")
	return models.MsgCleared
}

// Export renders the transcript as Markdown.
func (a *Assistant) Export(sess *session.Session) string {
	sess.Lock()
	turns := sess.AllTurns()
	sess.Unlock()

	if len(turns) == 0 {
		return models.MsgNothingExport
	}

	var sb strings.Builder
	sb.WriteString("# 📚 Study Assistant - Conversation Export\n\n")
	sb.WriteString(fmt.Sprintf("*Exported: %s*\n\n", a.now().Format(models.TimestampLayout)))
	sb.WriteString("---\n\n")
	for i, t := range turns {
		sb.WriteString(fmt.Sprintf("## Question %d\n\n", i+1))
		sb.WriteString(fmt.Sprintf("*%s*\n\n", t.Timestamp.Format(models.TimestampLayout)))
		sb.WriteString(fmt.Sprintf("**Q:** %s\n\n", t.Question))
		sb.WriteString(fmt.Sprintf("**A:** %s\n\n", t.Answer))
		sb.WriteString("---\n\n")
	}
	return sb.String()
}

func (a *Assistant) Status(sess *session.Session) Status {
	sess.Lock()
	defer sess.Unlock()

	docs := sess.Documents()
	return Status{
		Documents:    docs,
		DocumentList: DocumentList(docs),
		Chunks:       sess.Store().Count(),
		Turns:        len(sess.AllTurns()),
		Model:        a.generator.ModelName(),
	}
}

// DocumentList renders one line per loaded document.
func DocumentList(docs []models.Document) string {
	if len(docs) == 0 {
		return models.MsgNoDocuments
	}
	var sb strings.Builder
	for _, d := range docs {
		sb.WriteString(fmt.Sprintf("📄 %s (%d chars, %d pages)\n", d.Name, d.Characters, d.Pages))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func uploadStatus(docs []models.Document, chunks int) string {
	names := make([]string, 0, len(docs))
	for _, d := range docs {
		names = append(names, d.Name)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("✅ Successfully loaded %d PDF(s): %s\n\n", len(docs), strings.Join(names, ", ")))
	for _, d := range docs {
		sb.WriteString(fmt.Sprintf("- %s: %d characters, %d pages\n", d.Name, d.Characters, d.Pages))
	}
	sb.WriteString(fmt.Sprintf("\nIndexed %d chunks.\n\n", chunks))
	sb.WriteString(models.MsgReady)
	return sb.String()
}

func (a *Assistant) allowed(name string) bool {
	return slices.Contains(a.cfg.RAG.AllowedExtensions, strings.ToLower(filepath.Ext(name)))
}

func loadUpload(f UploadFile, name string) (string, int, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case f.Reader != nil && ext == ".pdf":
		return parser.LoadPDF(f.Reader, f.Size)
	case f.Reader == nil:
		return parser.LoadFile(f.Path)
	}

	// the office readers only open paths
	tmp, err := os.CreateTemp("", "upload-*"+ext)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, io.NewSectionReader(f.Reader, 0, f.Size)); err != nil {
		return "", 0, fmt.Errorf("failed to save upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", 0, err
	}
	return parser.LoadFile(tmp.Name())
}
