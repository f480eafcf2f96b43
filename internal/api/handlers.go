/**
 * @description
 * This file contains the HTTP handlers for the interest-service's API
 * endpoints. Handlers parse incoming requests (form-encoded or JSON), call
 * the application service, and map service errors onto HTTP status codes.
 * Ownership failures surface as 404 exactly like absence.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/scoutalerts/interest-service/internal/app"
	"github.com/scoutalerts/interest-service/internal/domain"
	"github.com/scoutalerts/interest-service/internal/store"
)

// InterestHandlers holds the application service and rate limiter the
// handlers use.
type InterestHandlers struct {
	service *app.Service
	limiter app.SubscribeRateLimiter

	subscribeLimitPerMinute int
}

// NewInterestHandlers creates a new instance of InterestHandlers. limiter
// may be nil, which disables rate limiting.
func NewInterestHandlers(service *app.Service, limiter app.SubscribeRateLimiter, subscribeLimitPerMinute int) *InterestHandlers {
	return &InterestHandlers{
		service:                 service,
		limiter:                 limiter,
		subscribeLimitPerMinute: subscribeLimitPerMinute,
	}
}

// subscribeResponse is returned from the subscription-creating endpoints.
type subscribeResponse struct {
	Interest     *domain.Interest     `json:"interest"`
	Subscription *domain.Subscription `json:"subscription"`
}

// SubscribeHandler handles POST /subscriptions. Repeating an identical
// request is a 200 no-op; filter data participates in the duplicate check.
func (h *InterestHandlers) SubscribeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	if !h.consumeSubscribeBudget(w, r, userID) {
		return
	}

	req, err := parseSubscribeRequest(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Malformed subscription request")
		return
	}

	interest, sub, err := h.service.Subscribe(r.Context(), userID, req)
	if err != nil {
		if errors.Is(err, app.ErrMissingSubscriptionType) || errors.Is(err, app.ErrMissingQuery) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api msg=\"subscribe failed\" user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to create subscription")
		return
	}

	respondWithJSON(w, http.StatusOK, subscribeResponse{Interest: interest, Subscription: sub})
}

// DeleteInterestHandler handles DELETE /interest/{id}. An interest that does
// not exist and one owned by another user produce the same 404.
func (h *InterestHandlers) DeleteInterestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	interestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, "Interest not found")
		return
	}

	if err := h.service.DeleteInterest(r.Context(), userID, interestID); err != nil {
		if errors.Is(err, store.ErrInterestNotFound) {
			h.writeError(w, http.StatusNotFound, "Interest not found")
			return
		}
		log.Printf("level=error component=api msg=\"interest delete failed\" user_id=%s interest_id=%s err=%v", userID, interestID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to delete interest")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Interest deleted"})
}

// UpdateInterestHandler handles PUT /interest/{id} for delivery type changes.
func (h *InterestHandlers) UpdateInterestHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	interestID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, "Interest not found")
		return
	}

	var req domain.UpdateInterestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	interest, err := h.service.UpdateInterestDelivery(r.Context(), userID, interestID, req.DeliveryType)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidDeliveryType):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrInterestNotFound):
			h.writeError(w, http.StatusNotFound, "Interest not found")
		default:
			log.Printf("level=error component=api msg=\"interest update failed\" user_id=%s interest_id=%s err=%v", userID, interestID, err)
			h.writeError(w, http.StatusInternalServerError, "Unable to update interest")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, interest)
}

// UnsubscribeHandler handles DELETE /subscriptions/{id}. Removing an
// interest's last subscription removes the interest too.
func (h *InterestHandlers) UnsubscribeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	subscriptionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, "Subscription not found")
		return
	}

	if err := h.service.Unsubscribe(r.Context(), userID, subscriptionID); err != nil {
		if errors.Is(err, store.ErrSubscriptionNotFound) {
			h.writeError(w, http.StatusNotFound, "Subscription not found")
			return
		}
		log.Printf("level=error component=api msg=\"unsubscribe failed\" user_id=%s subscription_id=%s err=%v", userID, subscriptionID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to remove subscription")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Subscription removed"})
}

// FollowItemHandler handles POST /item/{item_id}/follow.
func (h *InterestHandlers) FollowItemHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	if !h.consumeSubscribeBudget(w, r, userID) {
		return
	}

	itemID := chi.URLParam(r, "item_id")
	interest, err := h.service.FollowItem(r.Context(), userID, itemID)
	if err != nil {
		if errors.Is(err, store.ErrInterestNotFound) {
			h.writeError(w, http.StatusNotFound, "Item not found")
			return
		}
		log.Printf("level=error component=api msg=\"item follow failed\" user_id=%s item_id=%s err=%v", userID, itemID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to follow item")
		return
	}

	respondWithJSON(w, http.StatusOK, interest)
}

// UnfollowItemHandler handles DELETE /item/{item_id}/follow.
func (h *InterestHandlers) UnfollowItemHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	itemID := chi.URLParam(r, "item_id")
	if err := h.service.UnfollowItem(r.Context(), userID, itemID); err != nil {
		if errors.Is(err, store.ErrInterestNotFound) {
			h.writeError(w, http.StatusNotFound, "Item not found")
			return
		}
		log.Printf("level=error component=api msg=\"item unfollow failed\" user_id=%s item_id=%s err=%v", userID, itemID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to unfollow item")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Item unfollowed"})
}

// ListInterestsHandler handles GET /interests.
func (h *InterestHandlers) ListInterestsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	interests, err := h.service.ListInterests(r.Context(), userID)
	if err != nil {
		log.Printf("level=error component=api msg=\"interest list failed\" user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to list interests")
		return
	}
	if interests == nil {
		interests = []domain.Interest{}
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{"interests": interests})
}

// consumeSubscribeBudget applies the per-user rate limit to the
// subscription-creating endpoints. Limiter failures fail open: a Redis
// outage must not block subscribing.
func (h *InterestHandlers) consumeSubscribeBudget(w http.ResponseWriter, r *http.Request, userID uuid.UUID) bool {
	if h.limiter == nil || h.subscribeLimitPerMinute <= 0 {
		return true
	}

	count, retryAfter, err := h.limiter.ConsumeRateLimit(r.Context(), "subscribe", userID.String(), h.subscribeLimitPerMinute, time.Minute)
	if err != nil {
		log.Printf("level=warn component=api msg=\"rate limiter unavailable; allowing request\" user_id=%s err=%v", userID, err)
		return true
	}
	if count > h.subscribeLimitPerMinute {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
		h.writeError(w, http.StatusTooManyRequests, "Too many subscription requests. Please wait and try again.")
		return false
	}
	return true
}

// parseSubscribeRequest reads a create-subscription request from either a
// JSON body or a form post. The optional filter arrives keyed by the
// subscription type: `{"state_bills": {"state": "DE"}}` in JSON, or
// `state_bills[state]=DE` as a form field.
func parseSubscribeRequest(r *http.Request) (domain.SubscribeRequest, error) {
	var req domain.SubscribeRequest

	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if contentType == "application/json" {
		var body map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return req, err
		}
		if raw, ok := body["subscription_type"]; ok {
			if err := json.Unmarshal(raw, &req.SubscriptionType); err != nil {
				return req, err
			}
		}
		if raw, ok := body["query"]; ok {
			if err := json.Unmarshal(raw, &req.Query); err != nil {
				return req, err
			}
		}
		if raw, ok := body[req.SubscriptionType]; ok && req.SubscriptionType != "" {
			if err := json.Unmarshal(raw, &req.Filter); err != nil {
				return req, err
			}
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.SubscriptionType = r.PostForm.Get("subscription_type")
	req.Query = r.PostForm.Get("query")
	req.Filter = parseFormFilter(r.PostForm, req.SubscriptionType)
	return req, nil
}

// parseFormFilter extracts `<subscriptionType>[key]=value` form fields.
func parseFormFilter(form map[string][]string, subscriptionType string) domain.FilterData {
	if subscriptionType == "" {
		return nil
	}
	prefix := subscriptionType + "["
	var filter domain.FilterData
	for name, values := range form {
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, "]") || len(values) == 0 {
			continue
		}
		key := name[len(prefix) : len(name)-1]
		if key == "" {
			continue
		}
		if filter == nil {
			filter = domain.FilterData{}
		}
		filter[key] = values[0]
	}
	return filter
}

// writeError writes a JSON error response.
func (h *InterestHandlers) writeError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON is a helper function to write JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
