package redact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrub_ContactData(t *testing.T) {
	s := MustNew(DefaultConfig())

	res := s.Scrub("Call me on +977 9812345678 or 9801234567, mail ram@example.com")

	assert.Equal(t, "Call me on [REDACTED] or [REDACTED], mail [REDACTED]", res.Scrubbed)
	assert.Equal(t, 2, res.ByRule["phone-np"])
	assert.Equal(t, 1, res.ByRule["email"])
	assert.Equal(t, 3, res.Total())
}

func TestScrub_Credentials(t *testing.T) {
	s := MustNew(DefaultConfig())

	res := s.Scrub("header Authorization: Bearer abc.def-ghi and api_key=ZXCVBNMASDF123")

	assert.NotContains(t, res.Scrubbed, "abc.def-ghi")
	assert.NotContains(t, res.Scrubbed, "ZXCVBNMASDF123")
	assert.Equal(t, 1, res.ByRule["bearer-token"])
	assert.Equal(t, 1, res.ByRule["generic-api-key"])
}

func TestScrub_LeavesPlainTextAlone(t *testing.T) {
	s := MustNew(DefaultConfig())

	text := "The irrigation canal in ward 4 collapsed and 12 farmers lost their harvest."
	res := s.Scrub(text)

	assert.Equal(t, text, res.Scrubbed)
	assert.Empty(t, res.Findings)
}

func TestScrub_OverlappingRulesCollapse(t *testing.T) {
	s := MustNew(Config{Rules: []Rule{
		{ID: "a", Pattern: `abc`},
		{ID: "b", Pattern: `bcd`},
	}})

	res := s.Scrub("xabcdx")

	assert.Equal(t, "x[REDACTED]x", res.Scrubbed)
	assert.Equal(t, 2, res.Total())
}

func TestScrub_AllowList(t *testing.T) {
	s := MustNew(Config{
		Rules:     DefaultRules(),
		AllowList: []string{`@example\.gov\.np$`},
		Marker:    "***",
	})

	res := s.Scrub("write to office@example.gov.np or me@mail.com")
	assert.Equal(t, "write to office@example.gov.np or ***", res.Scrubbed)
}

func TestNew_RejectsBadRules(t *testing.T) {
	_, err := New(Config{Rules: []Rule{{ID: "", Pattern: "x"}}})
	require.Error(t, err)

	_, err = New(Config{Rules: []Rule{{ID: "bad", Pattern: "("}}})
	require.Error(t, err)

	_, err = New(Config{AllowList: []string{"["}})
	require.Error(t, err)
}
