// Package classifier suggests grievance categories and a summary for the
// free-text details.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/grievanced/internal/config"
	"github.com/fyrsmithlabs/grievanced/internal/grievance"
	"github.com/fyrsmithlabs/grievanced/internal/taxonomy"
)

var (
	// ErrEmptyText indicates there was nothing to classify.
	ErrEmptyText = errors.New("nothing to classify")

	// ErrUnknownProvider indicates an unsupported classifier.provider.
	ErrUnknownProvider = errors.New("unknown classifier provider")

	// ErrBadResponse indicates the model answer could not be parsed.
	ErrBadResponse = errors.New("unparseable classifier response")
)

// Result is a classification of grievance details.
type Result struct {
	Categories []grievance.CategoryTag `json:"categories"`
	Summary    string                  `json:"summary"`
}

// Classifier derives categories and a summary from text.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

// TaxonomySource returns the current taxonomy snapshot.
type TaxonomySource interface {
	Current() *taxonomy.Taxonomy
}

// New builds the classifier selected by cfg.
func New(cfg config.ClassifierConfig, tax TaxonomySource, logger *zap.Logger) (Classifier, error) {
	switch cfg.Provider {
	case "", "keyword":
		return NewKeyword(tax), nil
	case "llm":
		return NewLLMFromConfig(cfg, tax, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

const maxSummaryRunes = 160

// summarize returns the first sentence of text, capped in length.
func summarize(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if i := strings.IndexAny(text, ".!?।"); i >= 0 {
		_, size := utf8.DecodeRuneInString(text[i:])
		text = text[:i+size]
	}
	if utf8.RuneCountInString(text) <= maxSummaryRunes {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxSummaryRunes-1])) + "…"
}
