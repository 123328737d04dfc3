package redact

// Rule is one detection pattern.
type Rule struct {
	ID          string `koanf:"id"`
	Description string `koanf:"description"`
	Pattern     string `koanf:"pattern"`
	// Keywords, when set, must appear (case-insensitive) before the rule runs.
	Keywords []string `koanf:"keywords"`
}

// DefaultRules returns the rules applied to citizen text before it leaves
// the process.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "phone-np",
			Description: "Nepali mobile number",
			Pattern:     `(?:\+977[\s-]?|\b)9\d{9}\b`,
		},
		{
			ID:          "email",
			Description: "Email address",
			Pattern:     `[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`,
		},
		{
			ID:          "bearer-token",
			Description: "Bearer authorization token",
			Pattern:     `(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`,
			Keywords:    []string{"bearer"},
		},
		{
			ID:          "generic-api-key",
			Description: "Assigned API key or token",
			Pattern:     `(?i)(?:api[_-]?key|access[_-]?token|secret)\s*[:=]\s*['"]?[A-Za-z0-9_\-]{8,}['"]?`,
			Keywords:    []string{"key", "token", "secret"},
		},
		{
			ID:          "openai-key",
			Description: "OpenAI style secret key",
			Pattern:     `\bsk-[A-Za-z0-9_\-]{16,}\b`,
		},
		{
			ID:          "private-key",
			Description: "PEM private key block",
			Pattern:     `-----BEGIN[A-Z ]*PRIVATE KEY-----[\s\S]*?-----END[A-Z ]*PRIVATE KEY-----`,
			Keywords:    []string{"PRIVATE KEY"},
		},
	}
}
