// Package reference extracts lighting schedule rows, general notes and raw
// emergency symbol hits from the text of a blueprint page.
//
// The extracted rows are classification context only; nothing here feeds
// back into detection or association.
package reference

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/MeKo-Tech/elscan/internal/ocr"
	"github.com/MeKo-Tech/elscan/internal/utils"
)

// Kind distinguishes reference rows.
type Kind string

const (
	KindNote     Kind = "note"
	KindTableRow Kind = "table_row"
)

// Row is one piece of reference material: either a general note (Text) or a
// lighting schedule row (Symbol, Description, Mount, Voltage, Lumens).
type Row struct {
	Kind        Kind   `json:"type"`
	Text        string `json:"text,omitempty"`
	Symbol      string `json:"symbol,omitempty"`
	Description string `json:"description,omitempty"`
	Mount       string `json:"mount,omitempty"`
	Voltage     string `json:"voltage,omitempty"`
	Lumens      string `json:"lumens,omitempty"`
	SourceSheet string `json:"source_sheet,omitempty"`
}

// RowThreshold is the maximum top-edge difference, in pixels, for two blocks
// to share a schedule row.
const RowThreshold = 20

var (
	scheduleKeywords    = []string{"LUMINAIRE", "MOUNT", "VOLTAGE", "LUMENS"}
	descriptionKeywords = []string{"LUMINAIRE", "FIXTURE", "LIGHT", "EMERGENCY"}
	mountKeywords       = []string{"CEILING", "WALL", "RECESSED", "SURFACE"}
	noteKeywords        = []string{"NOTE:", "GENERAL", "SPECIFICATION", "REQUIREMENT"}

	voltagePattern = regexp.MustCompile(`\d+V`)
	lumensPattern  = regexp.MustCompile(`\d+lm`)
	elPattern      = regexp.MustCompile(`EL\d+`)
)

// SheetName formats a 1-based page number as a source sheet label.
func SheetName(page int) string {
	return fmt.Sprintf("Page %d", page)
}

// Extract returns the general notes of a page followed by its schedule rows.
func Extract(blocks []ocr.TextBlock, page int) []Row {
	sheet := SheetName(page)
	rows := []Row{}
	for _, note := range Notes(blocks) {
		rows = append(rows, Row{Kind: KindNote, Text: note, SourceSheet: sheet})
	}
	for _, r := range TableRows(blocks) {
		r.SourceSheet = sheet
		rows = append(rows, r)
	}
	return rows
}

// Notes returns text that looks like a general note: it carries a note
// keyword, or it is longer than 50 characters with confidence above 0.7.
func Notes(blocks []ocr.TextBlock) []string {
	var notes []string
	for _, b := range blocks {
		text := strings.TrimSpace(b.Text)
		if text == "" {
			continue
		}
		if containsAny(strings.ToUpper(text), noteKeywords) || (len(text) > 50 && b.Confidence > 0.7) {
			notes = append(notes, text)
		}
	}
	return notes
}

// TableRows groups blocks into rows by top edge and parses the rows that look
// like a lighting schedule. Blocks are grouped in input order: a block joins
// the current row while its top is within RowThreshold of the row's first block.
func TableRows(blocks []ocr.TextBlock) []Row {
	var (
		out     []Row
		current []ocr.TextBlock
	)
	flush := func() {
		if r, ok := parseRow(current); ok {
			out = append(out, r)
		}
		current = nil
	}
	for _, b := range blocks {
		if !b.Box.Valid() {
			continue
		}
		if len(current) > 0 && math.Abs(b.Box.MinY-current[0].Box.MinY) > RowThreshold {
			flush()
		}
		current = append(current, b)
	}
	flush()
	return out
}

func parseRow(row []ocr.TextBlock) (Row, bool) {
	if len(row) < 2 {
		return Row{}, false
	}
	sorted := append([]ocr.TextBlock(nil), row...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Box.MinX < sorted[j].Box.MinX })

	texts := make([]string, len(sorted))
	for i, b := range sorted {
		texts[i] = strings.TrimSpace(b.Text)
	}
	rowText := strings.Join(texts, " ")
	if !containsAny(strings.ToUpper(rowText), scheduleKeywords) {
		return Row{}, false
	}

	return Row{
		Kind:        KindTableRow,
		Symbol:      texts[0],
		Description: firstWith(texts, descriptionKeywords),
		Mount:       firstWith(texts, mountKeywords),
		Voltage:     voltagePattern.FindString(rowText),
		Lumens:      lumensPattern.FindString(rowText),
	}, true
}

func firstWith(texts []string, keywords []string) string {
	for _, t := range texts {
		if containsAny(strings.ToUpper(t), keywords) {
			return t
		}
	}
	return ""
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// Symbol is an emergency symbol found directly in recognized text.
type Symbol struct {
	Symbol     string    `json:"symbol"`
	Text       string    `json:"text"`
	Box        utils.Box `json:"bounding_box"`
	Confidence float64   `json:"confidence"`
}

// knownSymbols are checked in order; the first one contained in a block wins.
var knownSymbols = []string{"EL", "A1", "A1E", "A2", "A2E", "W", "E1", "E2", "EM", "EXIT"}

// EmergencySymbols scans blocks for known symbol codes. A block yields at most
// one code from the known list plus its first EL<digits> token, if any.
func EmergencySymbols(blocks []ocr.TextBlock) []Symbol {
	var out []Symbol
	for _, b := range blocks {
		upper := strings.ToUpper(b.Text)
		for _, code := range knownSymbols {
			if strings.Contains(upper, code) {
				out = append(out, Symbol{Symbol: code, Text: b.Text, Box: b.Box, Confidence: b.Confidence})
				break
			}
		}
		if m := elPattern.FindString(upper); m != "" {
			out = append(out, Symbol{Symbol: m, Text: b.Text, Box: b.Box, Confidence: b.Confidence})
		}
	}
	return out
}
