package models

const (
	ThinkTag         = `(?s)<think>.*?</think>`
	ThinkOpenTag     = "<think>"
	ContextSeparator = "\n\n"
	ChunkIDFormat    = "chunk_%d"
	TimestampLayout  = "2006-01-02 15:04:05"
)

// User facing messages.
const (
	MsgNoFiles       = "❌ No files uploaded!"
	MsgErrorPrefix   = "❌ Error: "
	MsgUploadFirst   = "⚠️ Please upload PDF files first using the upload section above!"
	MsgNoResults     = "No relevant information found."
	MsgCleared       = "🗑️ All documents and conversation history cleared. Upload new PDFs to start again."
	MsgNothingExport = "No conversation to export yet."
	MsgNoDocuments   = "No documents loaded."
	MsgReady         = "You can now ask questions!"
	MsgEmptyAnswer   = "⚠️ The model returned an empty answer. Try rephrasing the question."

	MsgUploadTooLarge = "upload exceeds the %d MB limit"

	MsgCheckOllama  = "Make sure Ollama is running (ollama serve) and the model '%s' is available."
	MsgCheckBackend = "Make sure the embedding service is running and the model '%s' is available."

	SourceSuffix = "\n\n---\n📚 *Answer based on your uploaded documents.*"
)

var (
	PromptTemplate = `Based on the following information from the uploaded documents:

%s
%s
Instructions:
- Answer the question using only the information provided above.
- Cite or quote the relevant part of the context when you can.
- If the information doesn't contain the answer, say so clearly.
- Keep the answer concise.
- Use the recent conversation if it is relevant to the question.

Question: %s

Answer:`

	HistoryHeader = "Recent conversation:\n"
)
