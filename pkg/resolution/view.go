package resolution

import (
	"sort"

	"github.com/Ramsey-B/clover/pkg/models"
)

// BuildClusterView projects a resolved cluster into its external summary.
// Emails and phone numbers are order-preserving and duplicate-free: the
// primary's own values first, then each secondary's in created_at order.
// Secondary ids are listed in created_at order and exclude the primary.
func BuildClusterView(primary *models.Contact, members []models.Contact) models.ClusterView {
	view := models.ClusterView{
		PrimaryContactID:    primary.ID,
		Emails:              []string{},
		PhoneNumbers:        []string{},
		SecondaryContactIDs: []int64{},
	}

	seenEmails := map[string]struct{}{}
	seenPhones := map[string]struct{}{}

	appendValues := func(c *models.Contact) {
		if c.Email != nil {
			if _, ok := seenEmails[*c.Email]; !ok {
				seenEmails[*c.Email] = struct{}{}
				view.Emails = append(view.Emails, *c.Email)
			}
		}
		if c.PhoneNumber != nil {
			if _, ok := seenPhones[*c.PhoneNumber]; !ok {
				seenPhones[*c.PhoneNumber] = struct{}{}
				view.PhoneNumbers = append(view.PhoneNumbers, *c.PhoneNumber)
			}
		}
	}

	appendValues(primary)

	ordered := make([]models.Contact, len(members))
	copy(ordered, members)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	for i := range ordered {
		if ordered[i].ID == primary.ID {
			continue
		}
		view.SecondaryContactIDs = append(view.SecondaryContactIDs, ordered[i].ID)
		appendValues(&ordered[i])
	}

	return view
}
