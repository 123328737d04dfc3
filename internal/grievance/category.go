package grievance

import (
	"strings"

	"golang.org/x/text/cases"
)

// CategoryTag is a user-visible category label.
type CategoryTag string

// Normalize returns the comparison key for a tag: Unicode case folded with
// whitespace collapsed.
func (t CategoryTag) Normalize() string {
	return cases.Fold().String(strings.Join(strings.Fields(string(t)), " "))
}

// Clean returns the tag with surrounding and repeated whitespace removed.
func (t CategoryTag) Clean() CategoryTag {
	return CategoryTag(strings.Join(strings.Fields(string(t)), " "))
}

// Equal compares two tags by normalized form.
func (t CategoryTag) Equal(o CategoryTag) bool {
	return t.Normalize() == o.Normalize()
}

// IndexOf returns the index of tag in tags by normalized equality, or -1.
func IndexOf(tags []CategoryTag, tag CategoryTag) int {
	key := tag.Normalize()
	for i, t := range tags {
		if t.Normalize() == key {
			return i
		}
	}
	return -1
}

// Contains reports whether tags holds tag by normalized equality.
func Contains(tags []CategoryTag, tag CategoryTag) bool {
	return IndexOf(tags, tag) >= 0
}

// Remove returns tags without tag. The input slice is not modified.
func Remove(tags []CategoryTag, tag CategoryTag) []CategoryTag {
	i := IndexOf(tags, tag)
	if i < 0 {
		return tags
	}
	out := make([]CategoryTag, 0, len(tags)-1)
	out = append(out, tags[:i]...)
	return append(out, tags[i+1:]...)
}

// Dedupe drops blank tags and later duplicates, keeping first-seen order.
func Dedupe(tags []CategoryTag) []CategoryTag {
	out := make([]CategoryTag, 0, len(tags))
	for _, t := range tags {
		t = t.Clean()
		if t == "" || Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}
