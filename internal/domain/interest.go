/**
 * @description
 * This file defines the core domain models for the interest-service.
 * It includes the Interest and Subscription structs that map to the database
 * tables, the FilterData type with its equality contract, and related DTOs.
 */
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Interest types. A "search" interest tracks a keyword query; an "item"
// interest follows a single identified item.
const (
	InterestTypeSearch = "search"
	InterestTypeItem   = "item"
)

// Delivery types for interest alerts.
const (
	DeliveryEmailDaily     = "email_daily"
	DeliveryEmailImmediate = "email_immediate"
	DeliveryNone           = "none"
)

// User is the owner of interests and subscriptions. Users are created by the
// auth system; this service only reads them.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Interest represents one distinct thing a user wants to track. For a given
// user at most one interest exists per (interest_type, in) pair.
type Interest struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	InterestType string    `json:"interest_type"`
	In           string    `json:"in"`
	DeliveryType string    `json:"delivery_type"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Subscriptions is populated for list responses only.
	Subscriptions []Subscription `json:"subscriptions,omitempty"`
}

// Subscription represents one feed a user wants alerts from, scoped under an
// interest. InterestIn is a denormalized copy of the parent interest's
// subject so duplicate lookups never need a join; interests are never
// renamed, so the copy is written once at creation. For a given user at most
// one subscription exists per (subscription_type, interest_in, filter_data).
type Subscription struct {
	ID               uuid.UUID  `json:"id"`
	UserID           uuid.UUID  `json:"user_id"`
	InterestID       uuid.UUID  `json:"interest_id"`
	SubscriptionType string     `json:"subscription_type"`
	InterestIn       string     `json:"interest_in"`
	FilterData       FilterData `json:"filter_data"`
	CreatedAt        time.Time  `json:"created_at"`
}

// FilterData holds the type-specific key/value parameters of a subscription,
// e.g. {"state": "DE"} for a jurisdiction filter. Two filters are equal iff
// they contain the same keys with the same values; key order is irrelevant
// and a nil map is equal to an empty one. An empty-string value is a present
// key and participates in identity.
type FilterData map[string]string

// Equal reports whether f and other describe the same filter.
func (f FilterData) Equal(other FilterData) bool {
	if len(f) != len(other) {
		return false
	}
	for k, v := range f {
		ov, ok := other[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// IsEmpty reports whether the filter carries no parameters.
func (f FilterData) IsEmpty() bool {
	return len(f) == 0
}

// Canonical returns the canonical JSON encoding of the filter: keys sorted,
// nil rendered as "{}". This is the form stored in the jsonb column and the
// form compared by the dedup lookup.
func (f FilterData) Canonical() string {
	if len(f) == 0 {
		return "{}"
	}
	// encoding/json marshals map keys in sorted order, which is exactly the
	// canonical form we want. A flat map of strings cannot fail to marshal.
	b, err := json.Marshal(f)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// SubscribeRequest is the DTO for an incoming create-subscription request.
// The optional filter arrives keyed by the subscription type, mirroring the
// wire format (`state_bills: {state: "DE"}`).
type SubscribeRequest struct {
	SubscriptionType string     `json:"subscription_type"`
	Query            string     `json:"query"`
	Filter           FilterData `json:"-"`
}

// UpdateInterestRequest is the DTO for changing an interest's delivery type.
type UpdateInterestRequest struct {
	DeliveryType string `json:"delivery_type"`
}
