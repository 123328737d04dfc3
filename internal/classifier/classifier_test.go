package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/grievanced/internal/grievance"
	"github.com/fyrsmithlabs/grievanced/internal/tasks"
	"github.com/fyrsmithlabs/grievanced/internal/taxonomy"
)

type staticTaxonomy struct{ t *taxonomy.Taxonomy }

func (s staticTaxonomy) Current() *taxonomy.Taxonomy { return s.t }

func defaultTax() TaxonomySource { return staticTaxonomy{taxonomy.Default()} }

// fakeModel records the prompt and returns a canned answer.
type fakeModel struct {
	answer string
	err    error
	prompt string
}

func (f *fakeModel) GenerateContent(ctx context.Context, msgs []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, m := range msgs {
		for _, p := range m.Parts {
			if tc, ok := p.(llms.TextContent); ok {
				f.prompt += tc.Text
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.answer}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, opts...)
}

func TestKeyword_LostHarvest(t *testing.T) {
	k := NewKeyword(defaultTax())

	res, err := k.Classify(context.Background(),
		"Our paddy harvest was lost because the irrigation canal broke. Nobody came to help.")
	require.NoError(t, err)

	assert.Equal(t, []grievance.CategoryTag{"Agriculture"}, res.Categories)
	assert.Equal(t, "Our paddy harvest was lost because the irrigation canal broke.", res.Summary)
}

func TestKeyword_WholeWordsOnly(t *testing.T) {
	k := NewKeyword(defaultTax())

	res, err := k.Classify(context.Background(), "A landslide blocked the road near the bridge")
	require.NoError(t, err)

	assert.Equal(t, []grievance.CategoryTag{"Roads and Transport", "Disaster Relief"}, res.Categories)
}

func TestKeyword_NoMatch(t *testing.T) {
	k := NewKeyword(defaultTax())

	res, err := k.Classify(context.Background(), "something odd happened")
	require.NoError(t, err)
	assert.Empty(t, res.Categories)

	_, err = k.Classify(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestSummarize_Truncates(t *testing.T) {
	long := ""
	for i := 0; i < 50; i++ {
		long += "word "
	}
	s := summarize(long)
	assert.LessOrEqual(t, len([]rune(s)), maxSummaryRunes)
	assert.Contains(t, s, "…")
}

func TestLLM_ScrubsAndFiltersCategories(t *testing.T) {
	model := &fakeModel{answer: "```json\n{\"categories\": [\"water supply\", \"Aliens\"], \"summary\": \" Tap is dry. \"}\n```"}
	c := NewLLM(model, defaultTax())

	res, err := c.Classify(context.Background(), "The tap is dry for a week. Call 9812345678 or ram@example.com")
	require.NoError(t, err)

	assert.Equal(t, []grievance.CategoryTag{"Water Supply"}, res.Categories)
	assert.Equal(t, "Tap is dry.", res.Summary)
	assert.NotContains(t, model.prompt, "9812345678")
	assert.NotContains(t, model.prompt, "ram@example.com")
	assert.Contains(t, model.prompt, "- Agriculture")
}

func TestLLM_BadResponse(t *testing.T) {
	c := NewLLM(&fakeModel{answer: "I cannot help with that"}, defaultTax())

	_, err := c.Classify(context.Background(), "the bridge fell")
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestLLM_ModelError(t *testing.T) {
	c := NewLLM(&fakeModel{err: errors.New("503")}, defaultTax())

	_, err := c.Classify(context.Background(), "the bridge fell")
	assert.Error(t, err)
}

type slowClassifier struct{ delay time.Duration }

func (s slowClassifier) Classify(ctx context.Context, text string) (Result, error) {
	select {
	case <-time.After(s.delay):
		return Result{Categories: []grievance.CategoryTag{"Health"}}, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func TestDispatcher_DegradesOnTimeout(t *testing.T) {
	var reasons []string
	d := NewDispatcher(slowClassifier{delay: time.Second}, tasks.NewQueue(2, nil), 20*time.Millisecond, nil,
		OnDegraded(func(r string) { reasons = append(reasons, r) }))

	out := d.Classify(context.Background(), "draft-1", "clinic closed")

	assert.True(t, out.Degraded)
	assert.Empty(t, out.Result.Categories)
	assert.Empty(t, out.Result.Summary)
	assert.ErrorIs(t, out.Err, tasks.ErrTimeout)
	assert.Equal(t, []string{"timeout"}, reasons)
}

func TestDispatcher_DegradesOnError(t *testing.T) {
	var reasons []string
	d := NewDispatcher(NewLLM(&fakeModel{err: errors.New("down")}, defaultTax()), tasks.NewQueue(2, nil), time.Second, nil,
		OnDegraded(func(r string) { reasons = append(reasons, r) }))

	out := d.Classify(context.Background(), "draft-1", "clinic closed")
	assert.True(t, out.Degraded)
	assert.Equal(t, []string{"error"}, reasons)
}

func TestDispatcher_Success(t *testing.T) {
	d := NewDispatcher(slowClassifier{delay: time.Millisecond}, tasks.NewQueue(2, nil), time.Second, nil)

	out := d.Classify(context.Background(), "draft-1", "clinic closed")
	require.False(t, out.Degraded)
	assert.Equal(t, []grievance.CategoryTag{"Health"}, out.Result.Categories)
	assert.True(t, out.Accept("draft-1"))
	assert.False(t, out.Accept("draft-2"))
}
