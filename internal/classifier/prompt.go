package classifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/MeKo-Tech/elscan/internal/reference"
)

const systemPrompt = "You are an expert electrical engineer specializing in emergency lighting systems. " +
	"Provide accurate, technical classifications and groupings."

var promptTemplate = template.Must(template.New("prompt").Funcs(template.FuncMap{
	"inc":    func(i int) int { return i + 1 },
	"box":    func(d Detection) string { b := d.Box.Ints(); return fmt.Sprintf("[%d, %d, %d, %d]", b[0], b[1], b[2], b[3]) },
	"texts":  jsonList,
	"symbol": func(s string) string { return orDefault(s, "Unknown") },
	"sheet":  func(s string) string { return orDefault(s, "Unknown") },
	"isNote": func(r reference.Row) bool { return r.Kind == reference.KindNote },
}).Parse(`
You are an expert electrical engineer specializing in emergency lighting systems. Analyze the detected emergency lighting fixtures and group them by type with accurate counts and descriptions.

DETECTED EMERGENCY LIGHTING FIXTURES:
{{range $i, $d := .Detections}}Detection {{inc $i}}:
  Symbol: {{symbol $d.Symbol}}
  Type: {{$d.Type}}
  Description: {{$d.Description}}
  Bounding Box: {{box $d}}
  Nearby Text: {{texts $d.TextNearby}}
  Source Sheet: {{sheet $d.SourceSheet}}
  Confidence: {{printf "%.2f" $d.Confidence}}

{{end}}
REFERENCE INFORMATION (General Notes and Lighting Schedule):
{{range .References}}{{if isNote .}}Note: {{.Text}}
{{else}}Table Row - Symbol: {{.Symbol}}, Description: {{.Description}}, Mount: {{.Mount}}, Voltage: {{.Voltage}}, Lumens: {{.Lumens}}
{{end}}{{end}}
TASK:
1. Analyze all detected emergency lighting fixtures
2. Group them by fixture type and symbol
3. Count how many of each type were detected
4. Provide accurate descriptions based on the reference information
5. Create a structured summary with counts and descriptions

OUTPUT FORMAT:
Return a JSON object with the following structure:
{
  "summary": {
    "Lights01": { "count": <number>, "description": "<description>", "symbols": ["<symbol1>", "<symbol2>"] },
    "Lights02": { "count": <number>, "description": "<description>", "symbols": ["<symbol1>", "<symbol2>"] },
    ...
  },
  "detailed_detections": [
    {
      "symbol": "<symbol>",
      "type": "<fixture_type>",
      "description": "<description>",
      "bounding_box": [x1, y1, x2, y2],
      "text_nearby": ["<text1>", "<text2>"],
      "source_sheet": "<sheet_name>",
      "confidence": <confidence_score>
    }
  ]
}

CLASSIFICATION RULES:
- Group by fixture type: Recessed LED, Wallpack, Exit/Emergency, etc.
- Count each detection separately
- Use the lighting schedule table to understand fixture specifications
- Provide clear, technical descriptions
- Include all relevant symbols in the grouping
- Ensure counts match the actual number of detections ({{len .Detections}} in total)

Please provide the JSON response only, no additional text.
`))

// BuildPrompt renders the user prompt listing every detection and reference row.
func BuildPrompt(detections []Detection, refs []reference.Row) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Detections []Detection
		References []reference.Row
	}{detections, refs}
	if err := promptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func jsonList(items []string) string {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
