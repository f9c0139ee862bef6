package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"study-rag/internal/helper"
	"study-rag/internal/models"
	"study-rag/internal/rag"
	"study-rag/internal/session"
)

// TurnDTO is one prior exchange as held by the chat widget.
type TurnDTO struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type AskRequest struct {
	Question string    `json:"question"`
	History  []TurnDTO `json:"history"`
}

type AskResponse struct {
	Answer string `json:"answer"`
	HTML   string `json:"html,omitempty"`
}

type UploadResponse struct {
	Status    string `json:"status"`
	Documents string `json:"documents"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}

func (s *Server) index(c *gin.Context) {
	st := s.assistant.Status(s.session(c))
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Model":  st.Model,
		"Status": st,
	})
}

// upload indexes the multipart "files" field.
func (s *Server) upload(c *gin.Context) {
	sess := s.session(c)

	limit := s.cfg.Server.MaxUploadMB << 20
	if c.Request.ContentLength > limit {
		s.uploadTooLarge(c, sess)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	var headers []*multipart.FileHeader
	if form, err := c.MultipartForm(); err == nil {
		headers = form.File["files"]
	} else {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.uploadTooLarge(c, sess)
			return
		}
		log.Debug().Err(err).Msg("No multipart form in upload")
	}

	files := make([]rag.UploadFile, 0, len(headers))
	var opened []io.Closer
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusOK, UploadResponse{
				Status:    models.MsgErrorPrefix + fmt.Sprintf("%s: %v", helper.BaseName(fh.Filename), err),
				Documents: s.assistant.Status(sess).DocumentList,
			})
			return
		}
		opened = append(opened, f)
		files = append(files, rag.UploadFile{Name: fh.Filename, Reader: f, Size: fh.Size})
	}

	status, docs := s.assistant.Upload(c.Request.Context(), sess, files)
	c.JSON(http.StatusOK, UploadResponse{Status: status, Documents: docs})
}

func (s *Server) uploadTooLarge(c *gin.Context, sess *session.Session) {
	log.Warn().Int64("content_length", c.Request.ContentLength).Int64("max_upload_mb", s.cfg.Server.MaxUploadMB).Msg("Upload rejected")
	c.JSON(http.StatusRequestEntityTooLarge, UploadResponse{
		Status:    models.MsgErrorPrefix + fmt.Sprintf(models.MsgUploadTooLarge, s.cfg.Server.MaxUploadMB),
		Documents: s.assistant.Status(sess).DocumentList,
	})
}

func (s *Server) ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})
		return
	}

	answer := s.assistant.Ask(c.Request.Context(), s.session(c), req.Question, toTurns(req.History), nil)

	html, err := helper.MarkdownToHTML(answer)
	if err != nil {
		log.Warn().Err(err).Msg("Error rendering answer")
	}
	c.JSON(http.StatusOK, AskResponse{Answer: answer, HTML: html})
}

// askStream sends every model fragment as an SSE "fragment" event and the
// assembled answer as a final "done" event.
func (s *Server) askStream(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})
		return
	}
	sess := s.session(c)

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	answer := s.assistant.Ask(c.Request.Context(), sess, req.Question, toTurns(req.History), func(fragment string) error {
		c.SSEvent("fragment", fragment)
		c.Writer.Flush()
		return c.Request.Context().Err()
	})

	html, _ := helper.MarkdownToHTML(answer)
	c.SSEvent("done", AskResponse{Answer: answer, HTML: html})
	c.Writer.Flush()
}

func (s *Server) clear(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": s.assistant.Clear(s.session(c))})
}

// export returns the transcript as a Markdown attachment, or rendered HTML
// with ?format=html.
func (s *Server) export(c *gin.Context) {
	sess := s.session(c)
	transcript := s.assistant.Export(sess)

	if c.Query("format") == "html" {
		html, err := helper.MarkdownToHTML(transcript)
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Message: err.Error()})
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
		return
	}

	filename := fmt.Sprintf("conversation_%s.md", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(transcript))
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.assistant.Status(s.session(c)))
}

func toTurns(history []TurnDTO) []models.Turn {
	turns := make([]models.Turn, 0, len(history))
	for _, h := range history {
		turns = append(turns, models.Turn{Question: h.Question, Answer: h.Answer})
	}
	return turns
}
