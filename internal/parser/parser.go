package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"

	"document-chat/internal/models"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrCorruptFile       = errors.New("corrupt or unreadable file")
)

// ExtractionError reports a document that could not be turned into text
type ExtractionError struct {
	Name  string
	Cause error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract text from %s: %v", e.Name, e.Cause)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

// Loader extracts ordered text segments from in-memory documents. The
// format is picked from the file extension.
type Loader struct{}

func NewLoader() *Loader {
	return &Loader{}
}

const defaultPageNumber = 1

var slideNameRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// SupportedExtensions lists the extensions Parse understands
func SupportedExtensions() []string {
	return []string{".pdf", ".docx", ".pptx", ".xlsx", ".xlsm", ".xltx", ".md", ".markdown", ".txt"}
}

// Parse returns the text of the document page by page. A document without
// any text gives an empty slice and no error.
func (l *Loader) Parse(name string, data []byte) (segments []models.Segment, err error) {
	ext := strings.ToLower(filepath.Ext(name))

	// the PDF decoder panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("file", name).Interface("panic", r).Msg("Parser panicked")
			segments = nil
			err = &ExtractionError{Name: name, Cause: fmt.Errorf("%w: %v", ErrCorruptFile, r)}
		}
	}()

	switch ext {
	case ".pdf":
		segments, err = parsePDF(data)
	case ".docx":
		segments, err = parseDOCX(data)
	case ".pptx":
		segments, err = parsePPTX(data)
	case ".xlsx":
		segments, err = parseXLSX(data)
	case ".xlsm", ".xltx":
		segments, err = parseExcelize(data)
	case ".md", ".markdown":
		segments, err = parseMarkdown(data)
	case ".txt":
		segments = parseText(data)
	default:
		return nil, &ExtractionError{Name: name, Cause: fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)}
	}
	if err != nil {
		return nil, &ExtractionError{Name: name, Cause: fmt.Errorf("%w: %v", ErrCorruptFile, err)}
	}

	log.Debug().Str("file", name).Int("segments", len(segments)).Msg("Parsed document")
	return segments, nil
}

// ParseFile reads path from disk and parses it
func (l *Loader) ParseFile(path string) ([]models.Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ExtractionError{Name: path, Cause: err}
	}
	return l.Parse(path, data)
}

func parsePDF(data []byte) ([]models.Segment, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	var segments []models.Segment
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		segments = appendSegment(segments, i, pageText)
	}
	return segments, nil
}

func parseDOCX(data []byte) ([]models.Segment, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content, err := extractTextFromXML(r.Editable().GetContent())
	if err != nil {
		return nil, err
	}
	return appendSegment(nil, defaultPageNumber, content), nil
}

func parsePPTX(data []byte) ([]models.Segment, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, file := range zr.File {
		m := slideNameRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: num, file: file})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var segments []models.Segment
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			return nil, err
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		slideText, err := extractTextFromXML(string(raw))
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", s.num, err)
		}
		segments = appendSegment(segments, s.num, slideText)
	}
	return segments, nil
}

func parseXLSX(data []byte) ([]models.Segment, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, err
	}

	var segments []models.Segment
	for sheetNum, sheet := range f.Sheets {
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			for _, cell := range row.Cells {
				text.WriteString(cell.String() + "\t")
			}
			text.WriteString("\n")
		}
		segments = appendSegment(segments, sheetNum+1, text.String())
	}
	return segments, nil
}

func parseExcelize(data []byte) ([]models.Segment, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var segments []models.Segment
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheetName, err)
		}
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			for _, cell := range row {
				text.WriteString(cell + "\t")
			}
			text.WriteString("\n")
		}
		segments = appendSegment(segments, sheetNum+1, text.String())
	}
	return segments, nil
}

func parseText(data []byte) []models.Segment {
	return appendSegment(nil, defaultPageNumber, string(data))
}

// appendSegment skips pages that carry no text
func appendSegment(segments []models.Segment, page int, text string) []models.Segment {
	if strings.TrimSpace(text) == "" {
		return segments
	}
	return append(segments, models.Segment{PageNumber: page, Text: text})
}

// extractTextFromXML collects the text runs (<w:t>, <a:t>) of an OOXML part,
// one line per paragraph.
func extractTextFromXML(xmlContent string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(xmlContent))
	var text strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				text.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				text.Write(t)
			}
		}
	}
	return text.String(), nil
}
