package models

import "time"

// Document is an uploaded file after text extraction.
type Document struct {
	Name       string `json:"name"`
	Text       string `json:"-"`
	Characters int    `json:"characters"`
	Pages      int    `json:"pages"`
}

// Chunk represents a fixed-size slice of document text
type Chunk struct {
	ID      string
	Index   int
	Content string
}

// Turn is one question/answer exchange in the session transcript.
type Turn struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// PromptResponse is a one-shot answer with the context it was built from.
type PromptResponse struct {
	Query   string `json:"query"`
	Context string `json:"context"`
	Content string `json:"content"`
}
