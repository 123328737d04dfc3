package classifier

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/fyrsmithlabs/grievanced/internal/grievance"
)

// maxKeywordCategories caps how many categories the heuristic suggests.
const maxKeywordCategories = 3

// KeywordClassifier matches taxonomy keywords in the details. It needs no
// network and never fails on non-empty text.
type KeywordClassifier struct {
	tax TaxonomySource
}

// NewKeyword creates a KeywordClassifier over tax.
func NewKeyword(tax TaxonomySource) *KeywordClassifier {
	return &KeywordClassifier{tax: tax}
}

// Classify scores each category by keyword hits and returns the best
// matches, highest score first.
func (k *KeywordClassifier) Classify(ctx context.Context, text string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrEmptyText
	}

	fold := cases.Fold()
	folded := words(fold.String(text))

	type scored struct {
		tag   grievance.CategoryTag
		score int
		order int
	}
	var hits []scored
	for i, c := range k.tax.Current().Categories {
		score := 0
		for _, kw := range c.Keywords {
			score += strings.Count(folded, words(fold.String(kw)))
		}
		if score > 0 {
			hits = append(hits, scored{tag: grievance.CategoryTag(c.Name), score: score, order: i})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].order < hits[j].order
	})

	res := Result{Categories: []grievance.CategoryTag{}, Summary: summarize(text)}
	for i := 0; i < len(hits) && i < maxKeywordCategories; i++ {
		res.Categories = append(res.Categories, hits[i].tag)
	}
	return res, nil
}

// words reduces s to its letters and digits, space separated and padded so
// keywords only match whole words.
func words(s string) string {
	f := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.Is(unicode.Mn, r) && !unicode.Is(unicode.Mc, r)
	})
	return " " + strings.Join(f, " ") + " "
}
