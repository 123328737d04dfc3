// Package category implements the add/delete/change loop over suggested
// grievance categories.
//
// The loop is stateless: every call receives the category Set and the
// EditSession, both persisted by the caller between turns.
//
//	idle --change(tag)--> modifying --change()--> changing --change(new)--> idle
//	                          |--delete()--> idle
//	                          |--change(new)--> idle
//	any --cancel--> idle
package category

import (
	"fmt"

	"github.com/fyrsmithlabs/grievanced/internal/grievance"
)

// Mode is the edit loop state.
type Mode string

const (
	ModeIdle      Mode = "idle"
	ModeModifying Mode = "modifying"
	ModeChanging  Mode = "changing"
)

// Action is a user command in the loop.
type Action string

const (
	ActionAdd      Action = "add"
	ActionDelete   Action = "delete"
	ActionChange   Action = "change"
	ActionCancel   Action = "cancel"
	ActionFinalize Action = "finalize"
)

// ParseAction maps a command word to an Action.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionAdd, ActionDelete, ActionChange, ActionCancel, ActionFinalize:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// Set is the ordered category list plus the dismissed tags. Categories and
// Dismissed never share a tag.
type Set struct {
	Categories []grievance.CategoryTag `json:"categories"`
	Dismissed  []grievance.CategoryTag `json:"dismissed"`
}

// Change remembers the last swap so an exact revert can restore the
// dismissed tags as they were.
type Change struct {
	From            grievance.CategoryTag   `json:"from"`
	To              grievance.CategoryTag   `json:"to"`
	DismissedBefore []grievance.CategoryTag `json:"dismissed_before"`
}

// EditSession is the ephemeral loop state. Target is set only when Mode is
// not idle.
type EditSession struct {
	Mode       Mode                  `json:"mode"`
	Target     grievance.CategoryTag `json:"target,omitempty"`
	Edits      int                   `json:"edits"`
	LastChange *Change               `json:"last_change,omitempty"`
}

// Outcome describes what an Apply call did.
type Outcome string

const (
	OutcomeAdded           Outcome = "added"
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeDismissedTag    Outcome = "dismissed_tag"
	OutcomeDeleted         Outcome = "deleted"
	OutcomeTargetSelected  Outcome = "target_selected"
	OutcomeAwaitingNewName Outcome = "awaiting_new_name"
	OutcomeChanged         Outcome = "changed"
	OutcomeReverted        Outcome = "reverted"
	OutcomeMerged          Outcome = "merged"
	OutcomeUnchanged       Outcome = "unchanged"
	OutcomeCancelled       Outcome = "cancelled"
	OutcomeFinalized       Outcome = "finalized"
)

// Result reports the effect of one action.
type Result struct {
	Outcome Outcome               `json:"outcome"`
	Mode    Mode                  `json:"mode"`
	Target  grievance.CategoryTag `json:"target,omitempty"`
	// EditsLeft is -1 when the loop is unbounded.
	EditsLeft int `json:"edits_left"`
}

// Loop applies edit actions. MaxEdits of zero means unbounded.
type Loop struct {
	MaxEdits int
}

// Propose merges suggested tags into set, skipping dismissed and duplicate
// tags, and opens an idle edit session.
func Propose(set *Set, suggested []grievance.CategoryTag) *EditSession {
	cats := append([]grievance.CategoryTag(nil), set.Categories...)
	for _, t := range grievance.Dedupe(suggested) {
		if grievance.Contains(set.Dismissed, t) || grievance.Contains(cats, t) {
			continue
		}
		cats = append(cats, t)
	}
	set.Categories = cats
	if set.Dismissed == nil {
		set.Dismissed = []grievance.CategoryTag{}
	}
	return &EditSession{Mode: ModeIdle}
}

// Apply runs one action against set and es. On error neither is modified.
func (l Loop) Apply(set *Set, es *EditSession, action Action, payload grievance.CategoryTag) (Result, error) {
	payload = payload.Clean()

	var (
		out Outcome
		err error
	)
	switch action {
	case ActionAdd:
		out, err = l.add(set, es, payload)
	case ActionDelete:
		out, err = l.delete(set, es, payload)
	case ActionChange:
		out, err = l.change(set, es, payload)
	case ActionCancel:
		es.Mode, es.Target = ModeIdle, ""
		out = OutcomeCancelled
	case ActionFinalize:
		if es.Mode != ModeIdle {
			err = ErrEditInProgress
		} else {
			out = OutcomeFinalized
		}
	default:
		err = fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	if err != nil {
		return Result{}, err
	}
	return l.result(es, out), nil
}

// LimitReached reports whether no mutating action is left.
func (l Loop) LimitReached(es *EditSession) bool {
	return l.MaxEdits > 0 && es.Edits >= l.MaxEdits
}

func (l Loop) result(es *EditSession, out Outcome) Result {
	left := -1
	if l.MaxEdits > 0 {
		left = max(l.MaxEdits-es.Edits, 0)
	}
	return Result{Outcome: out, Mode: es.Mode, Target: es.Target, EditsLeft: left}
}

func (l Loop) add(set *Set, es *EditSession, tag grievance.CategoryTag) (Outcome, error) {
	if es.Mode != ModeIdle {
		return "", ErrEditInProgress
	}
	if tag == "" {
		return "", ErrEmptyTag
	}
	if grievance.Contains(set.Dismissed, tag) {
		return OutcomeDismissedTag, nil
	}
	if grievance.Contains(set.Categories, tag) {
		return OutcomeDuplicate, nil
	}
	if l.LimitReached(es) {
		return "", ErrEditLimitReached
	}

	set.Categories = append(append([]grievance.CategoryTag(nil), set.Categories...), tag)
	es.Edits++
	es.LastChange = nil
	return OutcomeAdded, nil
}

func (l Loop) delete(set *Set, es *EditSession, tag grievance.CategoryTag) (Outcome, error) {
	switch es.Mode {
	case ModeIdle:
	case ModeModifying:
		if tag != "" && !tag.Equal(es.Target) {
			return "", ErrEditInProgress
		}
		tag = es.Target
	default:
		return "", ErrEditInProgress
	}
	if tag == "" {
		return "", ErrEmptyTag
	}
	idx := grievance.IndexOf(set.Categories, tag)
	if idx < 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, tag)
	}
	if l.LimitReached(es) {
		return "", ErrEditLimitReached
	}

	removed := set.Categories[idx]
	set.Categories = grievance.Remove(set.Categories, removed)
	set.Dismissed = appendUnique(set.Dismissed, removed)
	es.Mode, es.Target = ModeIdle, ""
	es.Edits++
	es.LastChange = nil
	return OutcomeDeleted, nil
}

func (l Loop) change(set *Set, es *EditSession, tag grievance.CategoryTag) (Outcome, error) {
	switch es.Mode {
	case ModeIdle:
		if tag == "" {
			return "", ErrEmptyTag
		}
		idx := grievance.IndexOf(set.Categories, tag)
		if idx < 0 {
			return "", fmt.Errorf("%w: %q", ErrUnknownCategory, tag)
		}
		if l.LimitReached(es) {
			return "", ErrEditLimitReached
		}
		es.Mode, es.Target = ModeModifying, set.Categories[idx]
		return OutcomeTargetSelected, nil

	case ModeModifying:
		if tag == "" {
			es.Mode = ModeChanging
			return OutcomeAwaitingNewName, nil
		}
		return l.swap(set, es, tag)

	case ModeChanging:
		if tag == "" {
			return "", ErrEmptyTag
		}
		return l.swap(set, es, tag)
	}
	return "", fmt.Errorf("%w: mode %q", ErrInvalidAction, es.Mode)
}

// swap replaces es.Target with tag in place and dismisses only the old tag.
func (l Loop) swap(set *Set, es *EditSession, tag grievance.CategoryTag) (Outcome, error) {
	old := es.Target
	idx := grievance.IndexOf(set.Categories, old)
	if idx < 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, old)
	}
	if l.LimitReached(es) {
		return "", ErrEditLimitReached
	}
	old = set.Categories[idx]

	if tag.Equal(old) {
		es.Mode, es.Target = ModeIdle, ""
		return OutcomeUnchanged, nil
	}

	cats := append([]grievance.CategoryTag(nil), set.Categories...)
	var out Outcome

	switch lc := es.LastChange; {
	case lc != nil && lc.To.Equal(old) && lc.From.Equal(tag):
		cats[idx] = lc.From
		set.Categories = cats
		set.Dismissed = append([]grievance.CategoryTag{}, lc.DismissedBefore...)
		es.LastChange = nil
		out = OutcomeReverted

	case grievance.Contains(cats, tag):
		set.Categories = grievance.Remove(cats, old)
		set.Dismissed = appendUnique(grievance.Remove(set.Dismissed, tag), old)
		es.LastChange = nil
		out = OutcomeMerged

	default:
		before := append([]grievance.CategoryTag{}, set.Dismissed...)
		cats[idx] = tag
		set.Categories = cats
		set.Dismissed = appendUnique(grievance.Remove(set.Dismissed, tag), old)
		es.LastChange = &Change{From: old, To: tag, DismissedBefore: before}
		out = OutcomeChanged
	}

	es.Mode, es.Target = ModeIdle, ""
	es.Edits++
	return out, nil
}

func appendUnique(tags []grievance.CategoryTag, tag grievance.CategoryTag) []grievance.CategoryTag {
	if grievance.Contains(tags, tag) {
		return tags
	}
	return append(append([]grievance.CategoryTag{}, tags...), tag)
}
