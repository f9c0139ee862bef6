package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"study-rag/internal/config"
	"study-rag/internal/embedding"
	"study-rag/internal/models"
	"study-rag/internal/rag"
	"study-rag/internal/session"
)

type streamingModel struct{}

func (streamingModel) GenerateContent(ctx context.Context, _ []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}
	if opts.StreamingFunc != nil {
		for _, f := range []string{"Mito", "chondria."} {
			if err := opts.StreamingFunc(ctx, []byte(f)); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "Mitochondria."}}}, nil
}

func (m streamingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

type testClient struct {
	t       *testing.T
	handler http.Handler
	cookies []*http.Cookie
}

func newTestClient(t *testing.T, opts ...func(*config.Config)) *testClient {
	cfg := config.Default()
	cfg.Server.Mode = "test"
	cfg.RAG.AllowedExtensions = []string{".pdf", ".txt"}
	for _, opt := range opts {
		opt(cfg)
	}
	generator := rag.NewGenerator(streamingModel{}, cfg.ChatLLM, cfg.RAG.HistoryTurns)
	assistant := rag.NewAssistant(cfg, embedding.NewHashFunc(128), generator)
	srv := New(cfg, assistant, session.NewManager())
	return &testClient{t: t, handler: srv.Handler()}
}

func (tc *testClient) do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range tc.cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	tc.handler.ServeHTTP(w, req)
	if cs := w.Result().Cookies(); len(cs) > 0 {
		tc.cookies = cs
	}
	return w
}

func (tc *testClient) postJSON(path string, body any) *httptest.ResponseRecorder {
	b, err := json.Marshal(body)
	require.NoError(tc.t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return tc.do(req)
}

func (tc *testClient) upload(files map[string]string) UploadResponse {
	w := tc.postFiles(files)
	require.Equal(tc.t, http.StatusOK, w.Code)

	var resp UploadResponse
	require.NoError(tc.t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func (tc *testClient) postFiles(files map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(tc.t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(tc.t, err)
	}
	require.NoError(tc.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return tc.do(req)
}

func (tc *testClient) ask(question string) AskResponse {
	w := tc.postJSON("/api/ask", AskRequest{Question: question})
	require.Equal(tc.t, http.StatusOK, w.Code)
	var resp AskResponse
	require.NoError(tc.t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthAndIndex(t *testing.T) {
	tc := newTestClient(t)

	w := tc.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	w = tc.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Study Assistant")
	assert.Contains(t, w.Body.String(), config.DefaultChatModel)
	require.NotEmpty(t, tc.cookies)
	assert.Equal(t, "study_session", tc.cookies[0].Name)
}

func TestAskBeforeUpload(t *testing.T) {
	tc := newTestClient(t)

	assert.Equal(t, models.MsgUploadFirst, tc.ask("What is ATP?").Answer)
	assert.Equal(t, "", tc.ask("  ").Answer)
}

func TestAskBadRequest(t *testing.T) {
	tc := newTestClient(t)
	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")

	w := tc.do(req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadErrors(t *testing.T) {
	tc := newTestClient(t)

	w := tc.do(httptest.NewRequest(http.MethodPost, "/api/upload", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), models.MsgNoFiles)

	resp := tc.upload(map[string]string{"broken.pdf": "not really a pdf"})
	assert.True(t, strings.HasPrefix(resp.Status, models.MsgErrorPrefix), resp.Status)
	assert.Equal(t, models.MsgNoDocuments, resp.Documents)
}

func TestUploadTooLarge(t *testing.T) {
	tc := newTestClient(t, func(cfg *config.Config) { cfg.Server.MaxUploadMB = 1 })

	w := tc.postFiles(map[string]string{"big.txt": strings.Repeat("a", 2<<20)})

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	var resp UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.MsgErrorPrefix+"upload exceeds the 1 MB limit", resp.Status)
	assert.Equal(t, models.MsgNoDocuments, resp.Documents)

	up := tc.upload(map[string]string{"small.txt": "Mitochondria are the powerhouse of the cell."})
	assert.True(t, strings.HasPrefix(up.Status, "✅"), up.Status)
}

func TestConversationFlow(t *testing.T) {
	tc := newTestClient(t)

	up := tc.upload(map[string]string{"cells.txt": "Mitochondria are the powerhouse of the cell."})
	assert.True(t, strings.HasPrefix(up.Status, "✅"), up.Status)
	assert.Contains(t, up.Documents, "cells.txt")

	answer := tc.ask("What is the powerhouse of the cell?")
	assert.Equal(t, "Mitochondria."+models.SourceSuffix, answer.Answer)
	assert.Contains(t, answer.HTML, "<em>Answer based on your uploaded documents.</em>")

	w := tc.postJSON("/api/ask/stream", AskRequest{
		Question: "And again?",
		History:  []TurnDTO{{Question: "What is the powerhouse of the cell?", Answer: "Mitochondria."}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "event:fragment")
	assert.Contains(t, body, "data:Mito")
	assert.Contains(t, body, "event:done")

	w = tc.do(httptest.NewRequest(http.MethodGet, "/api/status", nil))
	var st rag.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 2, st.Turns)
	assert.Equal(t, 1, st.Chunks)

	w = tc.do(httptest.NewRequest(http.MethodGet, "/api/export", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/markdown")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, w.Body.String(), "## Question 2")

	w = tc.do(httptest.NewRequest(http.MethodGet, "/api/export?format=html", nil))
	assert.Contains(t, w.Body.String(), "<h2>Question 1</h2>")

	w = tc.do(httptest.NewRequest(http.MethodPost, "/api/clear", nil))
	assert.Contains(t, w.Body.String(), "cleared")

	assert.Equal(t, models.MsgUploadFirst, tc.ask("Still there?").Answer)
	w = tc.do(httptest.NewRequest(http.MethodGet, "/api/export", nil))
	assert.Equal(t, models.MsgNothingExport, w.Body.String())
}

func TestSessionsAreIsolated(t *testing.T) {
	alice := newTestClient(t)
	bob := &testClient{t: t, handler: alice.handler}

	alice.upload(map[string]string{"cells.txt": "Mitochondria are the powerhouse of the cell."})

	assert.Equal(t, "Mitochondria."+models.SourceSuffix, alice.ask("powerhouse?").Answer)
	assert.Equal(t, models.MsgUploadFirst, bob.ask("powerhouse?").Answer)
}
