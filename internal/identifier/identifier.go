// Package identifier generates grievance identifiers of the form
// <PREFIX>-<YYYYMMDD>-<SUFFIX>, where SUFFIX is Crockford base32.
package identifier

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/fyrsmithlabs/grievanced/internal/grievance"
)

// crockford omits I, L, O and U.
const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// ErrInvalidConfig indicates an unusable prefix, suffix length or timezone.
var ErrInvalidConfig = errors.New("invalid identifier config")

// Config controls identifier shape.
type Config struct {
	Prefix       string
	SuffixLength int
	Location     *time.Location
}

// Generator draws identifiers. It is safe for concurrent use when its
// random source is.
type Generator struct {
	cfg     Config
	rand    io.Reader
	now     func() time.Time
	pattern *regexp.Regexp
}

// Option configures a Generator.
type Option func(*Generator)

// WithRandom overrides the entropy source.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) { g.rand = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// New validates cfg and returns a Generator.
func New(cfg Config, opts ...Option) (*Generator, error) {
	if cfg.Prefix == "" || strings.ContainsAny(cfg.Prefix, "- ") {
		return nil, fmt.Errorf("%w: prefix %q", ErrInvalidConfig, cfg.Prefix)
	}
	if cfg.SuffixLength <= 0 {
		return nil, fmt.Errorf("%w: suffix length %d", ErrInvalidConfig, cfg.SuffixLength)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	g := &Generator{
		cfg:  cfg,
		rand: rand.Reader,
		now:  time.Now,
		pattern: regexp.MustCompile(fmt.Sprintf(`^%s-\d{8}-[%s]{%d}$`,
			regexp.QuoteMeta(cfg.Prefix), crockford, cfg.SuffixLength)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Next returns a new identifier dated today in the configured timezone.
func (g *Generator) Next() (grievance.ID, error) {
	buf := make([]byte, g.cfg.SuffixLength)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return "", fmt.Errorf("read identifier entropy: %w", err)
	}
	for i, b := range buf {
		buf[i] = crockford[b&0x1f]
	}
	date := g.now().In(g.cfg.Location).Format("20060102")
	return grievance.ID(g.cfg.Prefix + "-" + date + "-" + string(buf)), nil
}

// Valid reports whether id has the configured shape.
func (g *Generator) Valid(id grievance.ID) bool {
	return g.pattern.MatchString(string(id))
}

// Pattern returns the regular expression identifiers match.
func (g *Generator) Pattern() *regexp.Regexp {
	return g.pattern
}
