package resolution_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/resolution"
)

func TestBuildClusterView_PrimaryValuesFirst(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	one := int64(1)
	primary := models.Contact{ID: 1, Email: str("p@x.com"), PhoneNumber: str("100"), LinkPrecedence: models.LinkPrecedencePrimary, CreatedAt: at}
	members := []models.Contact{
		// Deliberately out of order; the builder sorts by created_at.
		{ID: 3, Email: str("late@x.com"), PhoneNumber: str("300"), LinkedID: &one, LinkPrecedence: models.LinkPrecedenceSecondary, CreatedAt: at.Add(2 * time.Second)},
		primary,
		{ID: 2, Email: str("early@x.com"), PhoneNumber: str("200"), LinkedID: &one, LinkPrecedence: models.LinkPrecedenceSecondary, CreatedAt: at.Add(time.Second)},
	}

	view := resolution.BuildClusterView(&primary, members)

	assert.Equal(t, int64(1), view.PrimaryContactID)
	assert.Equal(t, []string{"p@x.com", "early@x.com", "late@x.com"}, view.Emails)
	assert.Equal(t, []string{"100", "200", "300"}, view.PhoneNumbers)
	assert.Equal(t, []int64{2, 3}, view.SecondaryContactIDs)
}

func TestBuildClusterView_DeduplicatesValues(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	one := int64(1)
	primary := models.Contact{ID: 1, Email: str("p@x.com"), PhoneNumber: str("100"), LinkPrecedence: models.LinkPrecedencePrimary, CreatedAt: at}
	members := []models.Contact{
		primary,
		{ID: 2, Email: str("p@x.com"), PhoneNumber: str("200"), LinkedID: &one, LinkPrecedence: models.LinkPrecedenceSecondary, CreatedAt: at.Add(time.Second)},
		{ID: 3, PhoneNumber: str("200"), LinkedID: &one, LinkPrecedence: models.LinkPrecedenceSecondary, CreatedAt: at.Add(2 * time.Second)},
	}

	view := resolution.BuildClusterView(&primary, members)

	assert.Equal(t, []string{"p@x.com"}, view.Emails)
	assert.Equal(t, []string{"100", "200"}, view.PhoneNumbers)
	assert.Equal(t, []int64{2, 3}, view.SecondaryContactIDs)
}

func TestBuildClusterView_NilFieldsAndEmptySlices(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	primary := models.Contact{ID: 1, PhoneNumber: str("100"), LinkPrecedence: models.LinkPrecedencePrimary, CreatedAt: at}

	view := resolution.BuildClusterView(&primary, []models.Contact{primary})

	// Slices marshal as [] rather than null.
	assert.NotNil(t, view.Emails)
	assert.NotNil(t, view.SecondaryContactIDs)
	assert.Empty(t, view.Emails)
	assert.Equal(t, []string{"100"}, view.PhoneNumbers)
}
