package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MeKo-Tech/elscan/internal/classifier"
)

// ToJSON serializes a classification result to pretty JSON.
func ToJSON(res classifier.Result) (string, error) {
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToJSONDocument serializes the full document result to pretty JSON.
func ToJSONDocument(doc *DocumentResult) (string, error) {
	if doc == nil {
		return "", errors.New("nil result")
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToCSV exports the detailed detections as CSV with a header row.
func ToCSV(res classifier.Result) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"symbol", "type", "description", "x1", "y1", "x2", "y2", "confidence", "source_sheet", "text_nearby"})
	for _, d := range res.DetailedDetections {
		b := d.Box.Ints()
		_ = w.Write([]string{
			d.Symbol,
			string(d.Type),
			d.Description,
			fmt.Sprint(b[0]), fmt.Sprint(b[1]), fmt.Sprint(b[2]), fmt.Sprint(b[3]),
			fmt.Sprintf("%.3f", d.Confidence),
			d.SourceSheet,
			strings.Join(d.TextNearby, " | "),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ToText renders the summary groups one per line in label order.
func ToText(res classifier.Result) string {
	if len(res.Summary) == 0 {
		return "no fixtures detected"
	}
	var sb strings.Builder
	for _, label := range res.Labels() {
		g := res.Summary[label]
		fmt.Fprintf(&sb, "%s: %d x %s", label, g.Count, g.Description)
		if len(g.Symbols) > 0 {
			fmt.Fprintf(&sb, " [%s]", strings.Join(g.Symbols, ", "))
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Format renders res in the named output format: json, csv or text.
func Format(res classifier.Result, format string) (string, error) {
	switch strings.ToLower(format) {
	case "", "json":
		return ToJSON(res)
	case "csv":
		return ToCSV(res)
	case "text":
		return ToText(res), nil
	default:
		return "", fmt.Errorf("unsupported output format %q", format)
	}
}
