package ingest

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	rpdf "rsc.io/pdf"
)

// Labels that anchor the session date inside an edital. A date near one of
// these beats any other date in the document.
var closingLabelHints = []string{
	"abertura das propostas", "data de abertura", "sessão pública",
	"sessao publica", "início da sessão", "recebimento das propostas",
	"data do certame", "abertura da licitação",
}

// "14h30" style times normalize to "14:30" before parsing.
var hourMark = regexp.MustCompile(`(\d{1,2})h(\d{2})`)

var dateSnippetRegexes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b\d{1,2}/\d{1,2}/20\d{2}(\s+\d{1,2}[:h]\d{2})?\b`),
	regexp.MustCompile(`(?i)\b20\d{2}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}\s+de\s+(janeiro|fevereiro|março|marco|abril|maio|junho|julho|agosto|setembro|outubro|novembro|dezembro)\s+de\s+20\d{2}\b`),
}

// ExtractClosingDate pulls the bid session date out of an edital PDF.
func ExtractClosingDate(content []byte) (time.Time, error) {
	text, err := extractPDFText(content)
	if err != nil {
		return time.Time{}, err
	}
	return ClosingDateFromText(text)
}

// ClosingDateFromText is the pure half of the extraction, separated so the
// ranking logic is testable without building PDFs. Dates within reach of a
// session label win; otherwise the latest date in the document is taken,
// since editais open with publication dates and end with the schedule.
func ClosingDateFromText(text string) (time.Time, error) {
	lower := strings.ToLower(text)

	type candidate struct {
		date    time.Time
		labeled bool
	}
	var candidates []candidate

	for _, expr := range dateSnippetRegexes {
		for _, loc := range expr.FindAllStringIndex(text, -1) {
			token := strings.TrimSpace(text[loc[0]:loc[1]])
			token = hourMark.ReplaceAllString(token, "$1:$2")
			parsed, err := ParseDateBR(token)
			if err != nil {
				continue
			}
			candidates = append(candidates, candidate{
				date:    parsed,
				labeled: nearLabel(lower, loc[0]),
			})
		}
	}

	if len(candidates) == 0 {
		return time.Time{}, fmt.Errorf("no date found in document")
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].labeled != candidates[j].labeled {
			return candidates[i].labeled
		}
		return candidates[i].date.After(candidates[j].date)
	})
	return candidates[0].date, nil
}

// nearLabel reports whether a session label occurs in the 120 characters
// before the date match.
func nearLabel(lower string, pos int) bool {
	start := pos - 120
	if start < 0 {
		start = 0
	}
	window := lower[start:pos]
	for _, hint := range closingLabelHints {
		if strings.Contains(window, hint) {
			return true
		}
	}
	return false
}

func extractPDFText(content []byte) (text string, err error) {
	// rsc.io/pdf panics on malformed files; contain it.
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("pdf parser panic: %v", recovered)
			text = ""
		}
	}()

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, fragment := range page.Content().Text {
			b.WriteString(fragment.S)
			b.WriteString(" ")
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}
