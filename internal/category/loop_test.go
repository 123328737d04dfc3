package category

import (
	"testing"

	"github.com/fyrsmithlabs/grievanced/internal/grievance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tags = []grievance.CategoryTag

func newSet(cats ...grievance.CategoryTag) (*Set, *EditSession) {
	set := &Set{}
	return set, Propose(set, cats)
}

func TestPropose_SkipsDismissedAndDuplicates(t *testing.T) {
	set := &Set{Dismissed: tags{"Roads"}}
	es := Propose(set, tags{"Agriculture", "roads", " agriculture ", "Water"})

	assert.Equal(t, tags{"Agriculture", "Water"}, set.Categories)
	assert.Equal(t, ModeIdle, es.Mode)
}

func TestApply_Add(t *testing.T) {
	loop := Loop{}
	set, es := newSet("Agriculture")

	res, err := loop.Apply(set, es, ActionAdd, "Water Supply")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdded, res.Outcome)
	assert.Equal(t, -1, res.EditsLeft)

	res, err = loop.Apply(set, es, ActionAdd, "water  supply")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, res.Outcome)
	assert.Equal(t, tags{"Agriculture", "Water Supply"}, set.Categories)

	_, err = loop.Apply(set, es, ActionAdd, "  ")
	assert.ErrorIs(t, err, ErrEmptyTag)
}

func TestApply_DeleteDismissesAndBlocksReAdd(t *testing.T) {
	loop := Loop{}
	set, es := newSet("Agriculture", "Water")

	res, err := loop.Apply(set, es, ActionDelete, "agriculture")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeleted, res.Outcome)
	assert.Equal(t, tags{"Water"}, set.Categories)
	assert.Equal(t, tags{"Agriculture"}, set.Dismissed)

	res, err = loop.Apply(set, es, ActionAdd, "Agriculture")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDismissedTag, res.Outcome)
	assert.Equal(t, tags{"Water"}, set.Categories)

	_, err = loop.Apply(set, es, ActionDelete, "Roads")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestApply_TwoPhaseChange(t *testing.T) {
	loop := Loop{}
	set, es := newSet("Agriculture", "Water")

	res, err := loop.Apply(set, es, ActionChange, "agriculture")
	require.NoError(t, err)
	assert.Equal(t, OutcomeTargetSelected, res.Outcome)
	assert.Equal(t, ModeModifying, es.Mode)
	assert.Equal(t, grievance.CategoryTag("Agriculture"), es.Target)

	res, err = loop.Apply(set, es, ActionChange, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAwaitingNewName, res.Outcome)
	assert.Equal(t, ModeChanging, es.Mode)

	_, err = loop.Apply(set, es, ActionFinalize, "")
	assert.ErrorIs(t, err, ErrEditInProgress)

	res, err = loop.Apply(set, es, ActionChange, "Irrigation")
	require.NoError(t, err)
	assert.Equal(t, OutcomeChanged, res.Outcome)
	assert.Equal(t, tags{"Irrigation", "Water"}, set.Categories, "swap keeps position")
	assert.Equal(t, tags{"Agriculture"}, set.Dismissed)
	assert.Equal(t, ModeIdle, es.Mode)
	assert.Empty(t, es.Target)
}

func TestApply_ModifyingDeleteWithoutPayloadDeletesTarget(t *testing.T) {
	loop := Loop{}
	set, es := newSet("Agriculture", "Water")

	_, err := loop.Apply(set, es, ActionChange, "Water")
	require.NoError(t, err)

	res, err := loop.Apply(set, es, ActionDelete, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeleted, res.Outcome)
	assert.Equal(t, tags{"Agriculture"}, set.Categories)
	assert.Equal(t, tags{"Water"}, set.Dismissed)
	assert.Equal(t, ModeIdle, es.Mode)
}

func TestApply_ChangeToDismissedTagUnmarksIt(t *testing.T) {
	loop := Loop{}
	set, es := newSet("Agriculture", "Water")

	_, err := loop.Apply(set, es, ActionDelete, "Water")
	require.NoError(t, err)

	_, err = loop.Apply(set, es, ActionChange, "Agriculture")
	require.NoError(t, err)
	res, err := loop.Apply(set, es, ActionChange, "water")
	require.NoError(t, err)

	assert.Equal(t, OutcomeChanged, res.Outcome)
	assert.Equal(t, tags{"water"}, set.Categories)
	assert.Equal(t, tags{"Agriculture"}, set.Dismissed)
}

func TestApply_ChangeRevertRestoresDismissed(t *testing.T) {
	loop := Loop{}
	set, es := newSet("Agriculture", "Water")
	set.Dismissed = tags{"Irrigation"}
	wantCats := append(tags(nil), set.Categories...)
	wantDismissed := append(tags(nil), set.Dismissed...)

	for _, step := range []struct {
		action  Action
		payload grievance.CategoryTag
	}{
		{ActionChange, "Agriculture"},
		{ActionChange, "Irrigation"},
		{ActionChange, "Irrigation"},
		{ActionChange, "Agriculture"},
	} {
		_, err := loop.Apply(set, es, step.action, step.payload)
		require.NoError(t, err)
	}

	assert.Equal(t, wantCats, set.Categories)
	assert.Equal(t, wantDismissed, set.Dismissed)
	assert.Nil(t, es.LastChange)
}

func TestApply_ChangeToExistingTagMerges(t *testing.T) {
	loop := Loop{}
	set, es := newSet("Agriculture", "Water")

	_, err := loop.Apply(set, es, ActionChange, "Agriculture")
	require.NoError(t, err)
	res, err := loop.Apply(set, es, ActionChange, "WATER")
	require.NoError(t, err)

	assert.Equal(t, OutcomeMerged, res.Outcome)
	assert.Equal(t, tags{"Water"}, set.Categories)
	assert.Equal(t, tags{"Agriculture"}, set.Dismissed)
}

func TestApply_CancelDiscardsModeOnly(t *testing.T) {
	loop := Loop{}
	set, es := newSet("Agriculture")

	_, err := loop.Apply(set, es, ActionChange, "Agriculture")
	require.NoError(t, err)
	res, err := loop.Apply(set, es, ActionCancel, "")
	require.NoError(t, err)

	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.Equal(t, ModeIdle, es.Mode)
	assert.Empty(t, es.Target)
	assert.Equal(t, tags{"Agriculture"}, set.Categories)
	assert.Empty(t, set.Dismissed)

	res, err = loop.Apply(set, es, ActionFinalize, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFinalized, res.Outcome)
}

func TestApply_EditLimit(t *testing.T) {
	loop := Loop{MaxEdits: 2}
	set, es := newSet("Agriculture")

	res, err := loop.Apply(set, es, ActionAdd, "Water")
	require.NoError(t, err)
	assert.Equal(t, 1, res.EditsLeft)

	res, err = loop.Apply(set, es, ActionDelete, "Water")
	require.NoError(t, err)
	assert.Equal(t, 0, res.EditsLeft)
	assert.True(t, loop.LimitReached(es))

	before := *set
	_, err = loop.Apply(set, es, ActionAdd, "Roads")
	assert.ErrorIs(t, err, ErrEditLimitReached)
	_, err = loop.Apply(set, es, ActionChange, "Agriculture")
	assert.ErrorIs(t, err, ErrEditLimitReached)
	assert.Equal(t, before, *set)

	res, err = loop.Apply(set, es, ActionFinalize, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFinalized, res.Outcome)
}

func TestApply_AddDuringEditRejected(t *testing.T) {
	loop := Loop{}
	set, es := newSet("Agriculture")

	_, err := loop.Apply(set, es, ActionChange, "Agriculture")
	require.NoError(t, err)
	_, err = loop.Apply(set, es, ActionAdd, "Water")
	assert.ErrorIs(t, err, ErrEditInProgress)
	assert.Equal(t, ModeModifying, es.Mode)
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("change")
	require.NoError(t, err)
	assert.Equal(t, ActionChange, a)

	_, err = ParseAction("rename")
	assert.ErrorIs(t, err, ErrInvalidAction)
}
