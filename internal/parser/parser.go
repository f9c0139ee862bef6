package parser

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
)

var xmlTagRe = regexp.MustCompile(`<[^>]+>`)

// LoadFile extracts the text of the file at filePath, choosing a reader by extension.
// It returns the concatenated text and the number of pages (or sheets/slides).
func LoadFile(filePath string) (string, int, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		f, err := os.Open(filePath)
		if err != nil {
			return "", 0, err
		}
		defer f.Close()

		stat, err := f.Stat()
		if err != nil {
			return "", 0, err
		}
		return LoadPDF(f, stat.Size())
	case ".docx":
		return loadDOCX(filePath)
	case ".pptx":
		return loadPPTX(filePath)
	case ".xlsx":
		return loadXLSX(filePath)
	case ".ods":
		return loadODS(filePath)
	case ".txt", ".md":
		return loadText(filePath)
	default:
		return "", 0, fmt.Errorf("unsupported file format: %s", ext)
	}
}

// LoadPDF extracts plain text from every page, each page followed by a newline.
func LoadPDF(r io.ReaderAt, size int64) (text string, pages int, err error) {
	// the pdf reader panics on some malformed inputs
	defer func() {
		if rec := recover(); rec != nil {
			text, pages, err = "", 0, fmt.Errorf("failed to read pdf: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read pdf: %w", err)
	}

	var sb strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			sb.WriteString("\n")
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", 0, fmt.Errorf("failed to extract page %d: %w", i, err)
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}

	log.Debug().Int("pages", numPages).Int("bytes", sb.Len()).Msg("Extracted pdf text")
	return sb.String(), numPages, nil
}

func loadDOCX(filePath string) (string, int, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return "", 0, err
	}
	defer r.Close()

	content := r.Editable().GetContent()
	// paragraphs end with </w:p>; keep them as line breaks before stripping markup
	content = strings.ReplaceAll(content, "</w:p>", "\n")
	return strings.TrimSpace(xmlTagRe.ReplaceAllString(content, "")) + "\n", 1, nil
}

func loadPPTX(filePath string) (string, int, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	var sb strings.Builder
	slides := 0
	for _, file := range f.File {
		if !strings.HasPrefix(file.Name, "ppt/slides/slide") {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		slides++
		sb.WriteString(extractTextFromXML(string(data)))
		sb.WriteString("\n")
	}
	return sb.String(), slides, nil
}

func loadXLSX(filePath string) (string, int, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return "", 0, err
	}

	var sb strings.Builder
	for _, sheet := range f.Sheets {
		sb.WriteString(fmt.Sprintf("## Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			for _, cell := range row.Cells {
				sb.WriteString(cell.String() + "\t")
			}
			sb.WriteString("\n")
		}
	}
	return sb.String(), len(f.Sheets), nil
}

func loadODS(filePath string) (string, int, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	var sb strings.Builder
	sheets := f.GetSheetList()
	for _, sheetName := range sheets {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		sb.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			for _, cell := range row {
				sb.WriteString(cell + "\t")
			}
			sb.WriteString("\n")
		}
	}
	return sb.String(), len(sheets), nil
}

func loadText(filePath string) (string, int, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", 0, err
	}
	text := string(data)
	return text, EstimatePages(text), nil
}

func extractTextFromXML(xmlContent string) string {
	var text strings.Builder
	parts := strings.Split(xmlContent, "<a:t>")
	for i, part := range parts {
		if i == 0 {
			continue
		}
		endIdx := strings.Index(part, "</a:t>")
		if endIdx >= 0 {
			text.WriteString(part[:endIdx] + " ")
		}
	}
	return text.String()
}

// EstimatePages counts form-feed page breaks. Best effort only: most extractors never emit them.
func EstimatePages(text string) int {
	if text == "" {
		return 0
	}
	return strings.Count(text, "\f") + 1
}
