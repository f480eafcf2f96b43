/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all data access operations required by the interest-service. Defining
 * an interface decouples the business logic from the PostgreSQL
 * implementation and lets tests substitute in-memory stubs.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/scoutalerts/interest-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// User methods. Users are created by the auth system; the service only
	// resolves them.
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)

	// Interest methods
	// FindOrCreateInterest returns the user's existing interest for
	// (interestType, subject) or creates one. It never creates a duplicate,
	// even under concurrent identical calls.
	FindOrCreateInterest(ctx context.Context, userID uuid.UUID, interestType, subject string) (*domain.Interest, error)
	FindInterestByID(ctx context.Context, interestID uuid.UUID) (*domain.Interest, error)
	FindInterestBySubject(ctx context.Context, userID uuid.UUID, interestType, subject string) (*domain.Interest, error)
	ListInterestsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Interest, error)
	UpdateInterestDeliveryType(ctx context.Context, interestID uuid.UUID, deliveryType string) error
	// DeleteInterestCascade removes the interest and every subscription that
	// references it in a single transaction.
	DeleteInterestCascade(ctx context.Context, interestID uuid.UUID) error

	// Subscription methods
	// FindOrCreateSubscription returns the user's existing subscription for
	// (subscriptionType, interestIn, filter) or creates one under the given
	// interest. Filter data participates in the identity.
	FindOrCreateSubscription(ctx context.Context, userID, interestID uuid.UUID, subscriptionType, interestIn string, filter domain.FilterData) (*domain.Subscription, error)
	FindSubscriptionByID(ctx context.Context, subscriptionID uuid.UUID) (*domain.Subscription, error)
	ListSubscriptionsByInterestID(ctx context.Context, interestID uuid.UUID) ([]domain.Subscription, error)
	// DeleteSubscriptionAndPrune removes one subscription and, when it was
	// the last one under its interest, removes the interest too, all in one
	// transaction. It reports whether the interest was removed.
	DeleteSubscriptionAndPrune(ctx context.Context, subscriptionID uuid.UUID) (interestRemoved bool, err error)
}
