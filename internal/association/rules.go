package association

import (
	"regexp"
	"sort"
	"strings"
)

// FixtureType is the closed vocabulary of inferred fixture kinds.
type FixtureType string

const (
	TypeRecessedLED    FixtureType = "recessed_led"
	TypeWallpack       FixtureType = "wallpack"
	TypeEmergencyExit  FixtureType = "emergency_exit"
	TypeEmergencyLight FixtureType = "emergency_light"
	TypePhotocell      FixtureType = "photocell"
	TypeUnknown        FixtureType = "unknown"
)

// Rule maps a text pattern to a fixture type and its catalog description.
type Rule struct {
	Type        FixtureType
	Pattern     *regexp.Regexp
	Description string
}

// Rules is the ordered classification table. The first rule whose pattern
// matches the joined nearby text decides the fixture type.
var Rules = []Rule{
	{
		Type:        TypeRecessedLED,
		Pattern:     regexp.MustCompile(`(?i)(2\s*['"]?\s*[xX]\s*4\s*['"]?\s*RECESSED\s*LED|LED\s*LUMINAIRE)`),
		Description: "2' X 4' RECESSED LED LUMINAIRE",
	},
	{
		Type:        TypeWallpack,
		Pattern:     regexp.MustCompile(`(?i)(WALLPACK|WALL\s*PACK|WALL\s*MOUNTED)`),
		Description: "WALLPACK WITH BUILT IN PHOTOCELL",
	},
	{
		Type:        TypeEmergencyExit,
		Pattern:     regexp.MustCompile(`(?i)(EXIT|EMERGENCY\s*EXIT|A1E|A\d+E)`),
		Description: "Exit/Emergency Combo Unit",
	},
	{
		Type:        TypeEmergencyLight,
		Pattern:     regexp.MustCompile(`(?i)(EMERGENCY|EM|EL\d+|E\d+)`),
		Description: "Emergency Lighting Fixture",
	},
	{
		Type:    TypePhotocell,
		Pattern: regexp.MustCompile(`(?i)(PHOTOCELL|PHOTO\s*CELL)`),
	},
}

// symbolPatterns are matched against upper-cased text; every match is kept.
// Specific and generic patterns overlap on purpose, so "EL502" also yields "L502".
var symbolPatterns = []*regexp.Regexp{
	regexp.MustCompile(`EL\d+`),
	regexp.MustCompile(`A\d+E?`),
	regexp.MustCompile(`E\d+`),
	regexp.MustCompile(`[A-Z]\d+`),
	regexp.MustCompile(`EXIT`),
	regexp.MustCompile(`EMERGENCY`),
	regexp.MustCompile(`EM`),
}

// ExtractSymbols returns the sorted, de-duplicated symbol tokens found in texts.
// Each text contributes all symbol pattern matches plus the first match of
// every classification rule.
func ExtractSymbols(texts []string) []string {
	seen := make(map[string]struct{})
	for _, text := range texts {
		upper := strings.ToUpper(text)
		for _, re := range symbolPatterns {
			for _, m := range re.FindAllString(upper, -1) {
				seen[m] = struct{}{}
			}
		}
		for _, rule := range Rules {
			if m := rule.Pattern.FindString(upper); m != "" {
				seen[m] = struct{}{}
			}
		}
	}

	symbols := make([]string, 0, len(seen))
	for s := range seen {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// ClassifyType infers the fixture type from nearby text. Rules are tried in
// order against the joined text; without a rule match, EXIT and then EMERGENCY
// substrings decide, and anything else is TypeUnknown.
func ClassifyType(texts []string) FixtureType {
	combined := strings.ToUpper(strings.Join(texts, " "))
	for _, rule := range Rules {
		if rule.Pattern.MatchString(combined) {
			return rule.Type
		}
	}
	for _, t := range texts {
		if strings.Contains(strings.ToUpper(t), "EXIT") {
			return TypeEmergencyExit
		}
	}
	for _, t := range texts {
		if strings.Contains(strings.ToUpper(t), "EMERGENCY") {
			return TypeEmergencyLight
		}
	}
	return TypeUnknown
}

// Describe returns the catalog description for a fixture type, or "" when the
// type has none.
func Describe(t FixtureType) string {
	for _, rule := range Rules {
		if rule.Type == t {
			return rule.Description
		}
	}
	return ""
}
