package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/grievanced/internal/config"
	"github.com/fyrsmithlabs/grievanced/internal/grievance"
	"github.com/fyrsmithlabs/grievanced/internal/redact"
)

const (
	defaultLLMRateLimit = 2.0
	defaultLLMBurst     = 4
	maxPromptDetails    = 4000
)

const promptTemplate = `You triage citizen grievances for a municipal office.
Choose up to 3 categories for the grievance below, using ONLY names from this list:
%s

Write a one sentence neutral summary in the grievance's language.
Answer with JSON only, shaped as {"categories": ["..."], "summary": "..."}.

Grievance:
"""
%s
"""`

// LLMClassifier asks an OpenAI-compatible model for categories. Contact
// data and credentials are scrubbed from the text first.
type LLMClassifier struct {
	model   llms.Model
	tax     TaxonomySource
	scrub   *redact.Scrubber
	limiter *rate.Limiter
	logger  *zap.Logger
}

// LLMOption configures an LLMClassifier.
type LLMOption func(*LLMClassifier)

// WithRateLimit overrides the request rate.
func WithRateLimit(perSecond float64, burst int) LLMOption {
	return func(c *LLMClassifier) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) LLMOption {
	return func(c *LLMClassifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewLLM wraps model.
func NewLLM(model llms.Model, tax TaxonomySource, opts ...LLMOption) *LLMClassifier {
	c := &LLMClassifier{
		model:   model,
		tax:     tax,
		scrub:   redact.MustNew(redact.DefaultConfig()),
		limiter: rate.NewLimiter(rate.Limit(defaultLLMRateLimit), defaultLLMBurst),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewLLMFromConfig connects to the model endpoint in cfg.
func NewLLMFromConfig(cfg config.ClassifierConfig, tax TaxonomySource, logger *zap.Logger) (*LLMClassifier, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("classifier.api_key is required for the llm provider")
	}
	opts := []openai.Option{openai.WithToken(cfg.APIKey.Value())}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}

	llmOpts := []LLMOption{WithLogger(logger)}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		llmOpts = append(llmOpts, WithRateLimit(cfg.RateLimit, burst))
	}
	return NewLLM(model, tax, llmOpts...), nil
}

type llmAnswer struct {
	Categories []string `json:"categories"`
	Summary    string   `json:"summary"`
}

// Classify sends the scrubbed details to the model. Categories outside the
// taxonomy are dropped.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrEmptyText
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limiter: %w", err)
	}

	scrubbed := c.scrub.Scrub(text)
	if scrubbed.Total() > 0 {
		c.logger.Debug("scrubbed details before classification", zap.Any("by_rule", scrubbed.ByRule))
	}
	details := []rune(scrubbed.Scrubbed)
	if len(details) > maxPromptDetails {
		details = details[:maxPromptDetails]
	}

	tax := c.tax.Current()
	names := make([]string, 0, len(tax.Categories))
	for _, cat := range tax.Categories {
		names = append(names, "- "+cat.Name)
	}
	prompt := fmt.Sprintf(promptTemplate, strings.Join(names, "\n"), string(details))

	start := time.Now()
	raw, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt,
		llms.WithTemperature(0),
		llms.WithMaxTokens(300),
	)
	if err != nil {
		return Result{}, fmt.Errorf("classify: %w", err)
	}
	c.logger.Debug("llm classification done", zap.Duration("duration", time.Since(start)))

	ans, err := parseAnswer(raw)
	if err != nil {
		return Result{}, err
	}

	res := Result{Categories: []grievance.CategoryTag{}, Summary: strings.TrimSpace(ans.Summary)}
	for _, name := range ans.Categories {
		tag, ok := tax.Canonical(grievance.CategoryTag(name))
		if !ok {
			c.logger.Debug("dropping unknown category from llm", zap.String("category", name))
			continue
		}
		if !grievance.Contains(res.Categories, tag) {
			res.Categories = append(res.Categories, tag)
		}
	}
	return res, nil
}

// parseAnswer extracts the first JSON object from the model output, which
// may be wrapped in prose or a code fence.
func parseAnswer(raw string) (llmAnswer, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < start {
		return llmAnswer{}, fmt.Errorf("%w: no JSON object", ErrBadResponse)
	}
	var ans llmAnswer
	if err := json.Unmarshal([]byte(raw[start:end+1]), &ans); err != nil {
		return llmAnswer{}, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return ans, nil
}
