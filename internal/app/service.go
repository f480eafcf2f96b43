/**
 * @description
 * This file contains the core business logic for the interest-service. The
 * Service layer owns the subscription aggregation flow (find-or-create the
 * interest, then find-or-create the subscription under it), the
 * ownership-checked deletes, and event publication.
 */

package app

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/scoutalerts/interest-service/internal/domain"
	"github.com/scoutalerts/interest-service/internal/store"
	"github.com/scoutalerts/interest-service/pkg/rabbitmq"
)

var (
	ErrMissingSubscriptionType = errors.New("subscription_type is required")
	ErrMissingQuery            = errors.New("query is required")
	ErrInvalidDeliveryType     = errors.New("invalid delivery type")
)

// Service provides the business logic for interest and subscription management.
type Service struct {
	repo      store.Repository
	events    rabbitmq.Publisher
	itemFeeds []string
}

// NewService creates a new interest service. itemFeeds lists the
// subscription types attached when a user follows an item.
func NewService(repo store.Repository, events rabbitmq.Publisher, itemFeeds []string) *Service {
	return &Service{repo: repo, events: events, itemFeeds: itemFeeds}
}

// Subscribe resolves a create-subscription request: the query is aggregated
// into exactly one interest per distinct subject, and the (feed, filter)
// pair into exactly one subscription under it. Repeating an identical
// request returns the existing records unchanged.
func (s *Service) Subscribe(ctx context.Context, userID uuid.UUID, req domain.SubscribeRequest) (*domain.Interest, *domain.Subscription, error) {
	subscriptionType := strings.TrimSpace(req.SubscriptionType)
	if subscriptionType == "" {
		return nil, nil, ErrMissingSubscriptionType
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, nil, ErrMissingQuery
	}

	interest, err := s.repo.FindOrCreateInterest(ctx, userID, domain.InterestTypeSearch, query)
	if err != nil {
		return nil, nil, err
	}

	sub, err := s.repo.FindOrCreateSubscription(ctx, userID, interest.ID, subscriptionType, interest.In, req.Filter)
	if err != nil {
		return nil, nil, err
	}

	s.publishSubscriptionCreated(ctx, sub)
	return interest, sub, nil
}

// FollowItem creates an item-follow interest for the given item and a
// subscription per configured item feed. Idempotent like Subscribe.
func (s *Service) FollowItem(ctx context.Context, userID uuid.UUID, itemID string) (*domain.Interest, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return nil, store.ErrInterestNotFound
	}

	interest, err := s.repo.FindOrCreateInterest(ctx, userID, domain.InterestTypeItem, itemID)
	if err != nil {
		return nil, err
	}

	for _, feed := range s.itemFeeds {
		sub, err := s.repo.FindOrCreateSubscription(ctx, userID, interest.ID, feed, interest.In, nil)
		if err != nil {
			return nil, err
		}
		s.publishSubscriptionCreated(ctx, sub)
	}

	subs, err := s.repo.ListSubscriptionsByInterestID(ctx, interest.ID)
	if err != nil {
		return nil, err
	}
	interest.Subscriptions = subs
	return interest, nil
}

// UnfollowItem destroys the user's item-follow interest for the item, along
// with all of its subscriptions.
func (s *Service) UnfollowItem(ctx context.Context, userID uuid.UUID, itemID string) error {
	interest, err := s.repo.FindInterestBySubject(ctx, userID, domain.InterestTypeItem, strings.TrimSpace(itemID))
	if err != nil {
		return err
	}
	return s.deleteInterest(ctx, interest)
}

// DeleteInterest removes the interest and every subscription referencing it,
// provided the acting user owns it. An interest owned by someone else is
// reported exactly like a missing one so that existence never leaks.
func (s *Service) DeleteInterest(ctx context.Context, actingUserID, interestID uuid.UUID) error {
	interest, err := s.authorizeInterest(ctx, actingUserID, interestID)
	if err != nil {
		return err
	}
	return s.deleteInterest(ctx, interest)
}

func (s *Service) deleteInterest(ctx context.Context, interest *domain.Interest) error {
	if err := s.repo.DeleteInterestCascade(ctx, interest.ID); err != nil {
		return err
	}
	s.publishInterestDeleted(ctx, interest)
	return nil
}

// UpdateInterestDelivery changes how an interest's alerts are delivered,
// under the same ownership rules as deletion.
func (s *Service) UpdateInterestDelivery(ctx context.Context, actingUserID, interestID uuid.UUID, deliveryType string) (*domain.Interest, error) {
	switch deliveryType {
	case domain.DeliveryEmailDaily, domain.DeliveryEmailImmediate, domain.DeliveryNone:
	default:
		return nil, ErrInvalidDeliveryType
	}

	interest, err := s.authorizeInterest(ctx, actingUserID, interestID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateInterestDeliveryType(ctx, interest.ID, deliveryType); err != nil {
		return nil, err
	}
	interest.DeliveryType = deliveryType
	return interest, nil
}

// Unsubscribe removes a single subscription. When it was the last one under
// its interest, the interest goes with it in the same transaction.
func (s *Service) Unsubscribe(ctx context.Context, actingUserID, subscriptionID uuid.UUID) error {
	sub, err := s.repo.FindSubscriptionByID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if sub.UserID != actingUserID {
		return store.ErrSubscriptionNotFound
	}

	_, err = s.repo.DeleteSubscriptionAndPrune(ctx, sub.ID)
	return err
}

// ListInterests returns the user's interests with their subscriptions attached.
func (s *Service) ListInterests(ctx context.Context, userID uuid.UUID) ([]domain.Interest, error) {
	interests, err := s.repo.ListInterestsByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range interests {
		subs, err := s.repo.ListSubscriptionsByInterestID(ctx, interests[i].ID)
		if err != nil {
			return nil, err
		}
		interests[i].Subscriptions = subs
	}
	return interests, nil
}

// authorizeInterest is the guard composed before every mutating interest
// operation: it resolves the interest and collapses an ownership mismatch
// into the same ErrInterestNotFound an absent interest produces.
func (s *Service) authorizeInterest(ctx context.Context, actingUserID, interestID uuid.UUID) (*domain.Interest, error) {
	interest, err := s.repo.FindInterestByID(ctx, interestID)
	if err != nil {
		return nil, err
	}
	if interest.UserID != actingUserID {
		return nil, store.ErrInterestNotFound
	}
	return interest, nil
}

// Event publication is best-effort: downstream consumers drive alert
// delivery, but a broker outage must never fail the user-facing request.
func (s *Service) publishSubscriptionCreated(ctx context.Context, sub *domain.Subscription) {
	if s.events == nil {
		return
	}
	event := rabbitmq.SubscriptionEvent{
		SubscriptionID:   sub.ID,
		InterestID:       sub.InterestID,
		UserID:           sub.UserID,
		SubscriptionType: sub.SubscriptionType,
		InterestIn:       sub.InterestIn,
		CreatedAt:        sub.CreatedAt,
	}
	if err := s.events.PublishSubscriptionCreated(ctx, event); err != nil {
		log.Printf("level=warn component=app msg=\"subscription created event publish failed\" subscription_id=%s err=%v", sub.ID, err)
	}
}

func (s *Service) publishInterestDeleted(ctx context.Context, interest *domain.Interest) {
	if s.events == nil {
		return
	}
	event := rabbitmq.InterestEvent{
		InterestID:   interest.ID,
		UserID:       interest.UserID,
		InterestType: interest.InterestType,
		In:           interest.In,
	}
	if err := s.events.PublishInterestDeleted(ctx, event); err != nil {
		log.Printf("level=warn component=app msg=\"interest deleted event publish failed\" interest_id=%s err=%v", interest.ID, err)
	}
}
