package classifier

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/MeKo-Tech/elscan/internal/association"
	"github.com/MeKo-Tech/elscan/internal/reference"
)

// Fallback groups fixtures by type without any network access. Groups are
// labeled Lights01, Lights02, ... in the order their type first appears.
// It never fails and holds no state, so it is safe for concurrent use.
type Fallback struct{}

type groupAcc struct {
	count        int
	symbols      map[string]struct{}
	descriptions []string
}

// Classify implements Classifier. The reference rows are not used.
func (Fallback) Classify(_ context.Context, fixtures []association.Fixture, _ []reference.Row) (Result, error) {
	result := EmptyResult()
	if len(fixtures) == 0 {
		return result, nil
	}

	var order []association.FixtureType
	groups := make(map[association.FixtureType]*groupAcc)
	for _, f := range fixtures {
		acc, ok := groups[f.Type]
		if !ok {
			acc = &groupAcc{symbols: make(map[string]struct{})}
			groups[f.Type] = acc
			order = append(order, f.Type)
		}
		acc.count++
		for _, s := range f.Symbols {
			acc.symbols[s] = struct{}{}
		}
		if f.PrimarySymbol != "" {
			acc.symbols[f.PrimarySymbol] = struct{}{}
		}
		if f.Description != "" && !contains(acc.descriptions, f.Description) {
			acc.descriptions = append(acc.descriptions, f.Description)
		}
		result.DetailedDetections = append(result.DetailedDetections, NewDetection(f))
	}

	for i, kind := range order {
		acc := groups[kind]
		symbols := make([]string, 0, len(acc.symbols))
		for s := range acc.symbols {
			symbols = append(symbols, s)
		}
		sort.Strings(symbols)

		description := defaultDescription(kind)
		if len(acc.descriptions) > 0 {
			description = acc.descriptions[0]
		}
		result.Summary[GroupLabel(i+1)] = Group{Count: acc.count, Description: description, Symbols: symbols}
	}
	return result, nil
}

// GroupLabel returns the summary label for the n-th group, starting at 1.
func GroupLabel(n int) string {
	return fmt.Sprintf("Lights%02d", n)
}

func defaultDescription(kind association.FixtureType) string {
	name := strings.ReplaceAll(string(kind), "_", " ")
	return cases.Title(language.English).String(name) + " Fixture"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
