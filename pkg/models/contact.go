// Package models defines the contact data model and the boundary request and
// response shapes.
package models

import "time"

// LinkPrecedence is the closed set of cluster roles a contact can hold.
type LinkPrecedence string

const (
	LinkPrecedencePrimary   LinkPrecedence = "primary"
	LinkPrecedenceSecondary LinkPrecedence = "secondary"
)

// Valid reports whether the value is one of the two known variants.
func (p LinkPrecedence) Valid() bool {
	return p == LinkPrecedencePrimary || p == LinkPrecedenceSecondary
}

// Contact is a single observed contact record. A cluster is one primary row
// plus every row whose linked_id points at it.
// Field order matches schema: id, email, phone_number, linked_id, link_precedence, ...
type Contact struct {
	ID             int64          `json:"id" db:"id"`
	Email          *string        `json:"email" db:"email"`
	PhoneNumber    *string        `json:"phoneNumber" db:"phone_number"`
	LinkedID       *int64         `json:"linkedId" db:"linked_id"`
	LinkPrecedence LinkPrecedence `json:"linkPrecedence" db:"link_precedence"`
	CreatedAt      time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time      `json:"updatedAt" db:"updated_at"`
	DeletedAt      *time.Time     `json:"deletedAt,omitempty" db:"deleted_at"`
}

// IsPrimary reports whether this contact heads its cluster.
func (c *Contact) IsPrimary() bool {
	return c.LinkPrecedence == LinkPrecedencePrimary
}

// PrimaryID returns the id of the cluster's primary: the contact's own id
// when it is primary, otherwise the contact it links to.
func (c *Contact) PrimaryID() int64 {
	if c.LinkedID != nil {
		return *c.LinkedID
	}
	return c.ID
}

// HasPair reports whether the contact carries exactly the given
// (email, phone) pair. A nil request field matches only a NULL column.
func (c *Contact) HasPair(email, phone *string) bool {
	return ptrEqual(c.Email, email) && ptrEqual(c.PhoneNumber, phone)
}

func ptrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// IdentifyRequest is the observation submitted for resolution. At least one
// of the two fields must be non-empty.
type IdentifyRequest struct {
	Email       *string `json:"email" validate:"omitempty,email"`
	PhoneNumber *string `json:"phoneNumber" validate:"omitempty,max=20"`
}

// ClusterView is the consolidated projection of a resolved cluster.
type ClusterView struct {
	PrimaryContactID    int64    `json:"primaryContactId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []int64  `json:"secondaryContactIds"`
}

// IdentifyResponse wraps the cluster view in the envelope the API exposes.
type IdentifyResponse struct {
	Contact ClusterView `json:"contact"`
}
