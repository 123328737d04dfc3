package grievance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func TestNewDraft_FreshIDs(t *testing.T) {
	a, b := NewDraft(now), NewDraft(now)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, StatusDrafting, a.Status)
	assert.Empty(t, a.Categories)
}

func TestAppendDetails(t *testing.T) {
	d := NewDraft(now)
	d.AppendDetails("  my harvest was lost ")
	d.AppendDetails("")
	d.AppendDetails("because of the flood")
	assert.Equal(t, "my harvest was lost\nbecause of the flood", d.Details)
}

func TestAdvance_ForwardOnly(t *testing.T) {
	d := NewDraft(now)
	require.NoError(t, d.Advance(StatusAwaitingVerification))
	require.NoError(t, d.Advance(StatusSubmitted))
	assert.ErrorIs(t, d.Advance(StatusDrafting), ErrInvalidTransition)
	assert.ErrorIs(t, d.Advance(StatusAwaitingVerification), ErrInvalidTransition)
}

func TestAdvance_DraftingToSubmittedNeedsNoPhone(t *testing.T) {
	d := NewDraft(now)
	d.Contact.Phone = Provided("+9779812345678")
	assert.ErrorIs(t, d.Advance(StatusSubmitted), ErrInvalidTransition)

	d.WithdrawPhone()
	require.NoError(t, d.Advance(StatusSubmitted))
	assert.Equal(t, ReasonConsentWithdrawn, d.Contact.Phone.Reason)
}

func TestFillUnset_KeepsResolvedFields(t *testing.T) {
	d := NewDraft(now)
	d.Location.Municipality = Provided("Bharatpur")
	d.Location.Village = Skipped(ReasonUserSkipped)
	d.FillUnset(ReasonSubmittedAsIs)

	assert.Equal(t, Provided("Bharatpur"), d.Location.Municipality)
	assert.Equal(t, FieldSkipped, d.Location.Village.State)
	assert.Equal(t, NotProvided(ReasonSubmittedAsIs), d.Location.Address)
	assert.Equal(t, NotProvided(ReasonSubmittedAsIs), d.Contact.Email)
	assert.Empty(t, d.Contact.Email.Value)
}

func TestFreeze(t *testing.T) {
	t.Run("empty details rejected", func(t *testing.T) {
		d := NewDraft(now)
		_, err := d.Freeze("GR-20250314-AAAAAA", now)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "details", verr.Field)
	})

	t.Run("unverified phone rejected", func(t *testing.T) {
		d := NewDraft(now)
		d.AppendDetails("road is broken")
		d.Contact.Phone = Provided("+9779812345678")
		require.NoError(t, d.Advance(StatusAwaitingVerification))
		_, err := d.Freeze("GR-20250314-AAAAAA", now)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "contact.phone", verr.Field)
	})

	t.Run("freeze leaves draft untouched", func(t *testing.T) {
		d := NewDraft(now)
		d.AppendDetails("road is broken")
		d.Categories = []CategoryTag{"Infrastructure"}

		rec, err := d.Freeze("GR-20250314-AAAAAA", now)
		require.NoError(t, err)
		assert.Equal(t, StatusSubmitted, rec.Status)
		assert.Equal(t, ID("GR-20250314-AAAAAA"), rec.ID)
		assert.Equal(t, NotProvided(ReasonNotReached), rec.Location.Municipality)
		assert.Equal(t, StatusDrafting, d.Status)
		assert.False(t, d.Location.Municipality.IsSet())

		rec.Categories[0] = "mutated"
		assert.Equal(t, CategoryTag("Infrastructure"), d.Categories[0])

		d.MarkSubmitted()
		_, err = d.Freeze("GR-20250314-BBBBBB", now)
		assert.ErrorIs(t, err, ErrAlreadySubmitted)
	})
}

func TestCategoryTag_Normalize(t *testing.T) {
	assert.True(t, CategoryTag("  Crop   Damage ").Equal("crop damage"))
	assert.True(t, CategoryTag("ΣΊΣΥΦΟΣ").Equal("σίσυφος"))
	assert.False(t, CategoryTag("water").Equal("waters"))

	tags := Dedupe([]CategoryTag{"Water", " water ", "", "Roads"})
	assert.Equal(t, []CategoryTag{"Water", "Roads"}, tags)
	assert.Equal(t, []CategoryTag{"Roads"}, Remove(tags, "WATER"))
	assert.Len(t, tags, 2)
}
