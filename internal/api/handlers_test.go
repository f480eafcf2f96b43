package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/scoutalerts/interest-service/internal/app"
	"github.com/scoutalerts/interest-service/internal/domain"
	"github.com/scoutalerts/interest-service/internal/store"
)

// fakeRepo is an in-memory Repository backing the handler tests.
type fakeRepo struct {
	users         map[uuid.UUID]domain.User
	interests     map[uuid.UUID]domain.Interest
	subscriptions map[uuid.UUID]domain.Subscription
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:         make(map[uuid.UUID]domain.User),
		interests:     make(map[uuid.UUID]domain.Interest),
		subscriptions: make(map[uuid.UUID]domain.Subscription),
	}
}

func (f *fakeRepo) addUser(email string) uuid.UUID {
	id := uuid.New()
	f.users[id] = domain.User{ID: id, Email: email, CreatedAt: time.Now()}
	return id
}

func (f *fakeRepo) counts(userID uuid.UUID) (interests, subscriptions int) {
	for _, interest := range f.interests {
		if interest.UserID == userID {
			interests++
		}
	}
	for _, sub := range f.subscriptions {
		if sub.UserID == userID {
			subscriptions++
		}
	}
	return interests, subscriptions
}

func (f *fakeRepo) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, ok := f.users[userID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return &user, nil
}

func (f *fakeRepo) FindInterestBySubject(ctx context.Context, userID uuid.UUID, interestType, subject string) (*domain.Interest, error) {
	for _, interest := range f.interests {
		if interest.UserID == userID && interest.InterestType == interestType && interest.In == subject {
			found := interest
			return &found, nil
		}
	}
	return nil, store.ErrInterestNotFound
}

func (f *fakeRepo) FindOrCreateInterest(ctx context.Context, userID uuid.UUID, interestType, subject string) (*domain.Interest, error) {
	if interest, err := f.FindInterestBySubject(ctx, userID, interestType, subject); err == nil {
		return interest, nil
	}
	interest := domain.Interest{
		ID:           uuid.New(),
		UserID:       userID,
		InterestType: interestType,
		In:           subject,
		DeliveryType: domain.DeliveryEmailDaily,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	f.interests[interest.ID] = interest
	found := interest
	return &found, nil
}

func (f *fakeRepo) FindInterestByID(ctx context.Context, interestID uuid.UUID) (*domain.Interest, error) {
	interest, ok := f.interests[interestID]
	if !ok {
		return nil, store.ErrInterestNotFound
	}
	return &interest, nil
}

func (f *fakeRepo) ListInterestsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Interest, error) {
	var interests []domain.Interest
	for _, interest := range f.interests {
		if interest.UserID == userID {
			interests = append(interests, interest)
		}
	}
	return interests, nil
}

func (f *fakeRepo) UpdateInterestDeliveryType(ctx context.Context, interestID uuid.UUID, deliveryType string) error {
	interest, ok := f.interests[interestID]
	if !ok {
		return store.ErrInterestNotFound
	}
	interest.DeliveryType = deliveryType
	f.interests[interestID] = interest
	return nil
}

func (f *fakeRepo) DeleteInterestCascade(ctx context.Context, interestID uuid.UUID) error {
	if _, ok := f.interests[interestID]; !ok {
		return store.ErrInterestNotFound
	}
	for id, sub := range f.subscriptions {
		if sub.InterestID == interestID {
			delete(f.subscriptions, id)
		}
	}
	delete(f.interests, interestID)
	return nil
}

func (f *fakeRepo) FindOrCreateSubscription(ctx context.Context, userID, interestID uuid.UUID, subscriptionType, interestIn string, filter domain.FilterData) (*domain.Subscription, error) {
	for _, sub := range f.subscriptions {
		if sub.UserID == userID && sub.SubscriptionType == subscriptionType &&
			sub.InterestIn == interestIn && sub.FilterData.Equal(filter) {
			found := sub
			return &found, nil
		}
	}
	if filter == nil {
		filter = domain.FilterData{}
	}
	sub := domain.Subscription{
		ID:               uuid.New(),
		UserID:           userID,
		InterestID:       interestID,
		SubscriptionType: subscriptionType,
		InterestIn:       interestIn,
		FilterData:       filter,
		CreatedAt:        time.Now(),
	}
	f.subscriptions[sub.ID] = sub
	found := sub
	return &found, nil
}

func (f *fakeRepo) FindSubscriptionByID(ctx context.Context, subscriptionID uuid.UUID) (*domain.Subscription, error) {
	sub, ok := f.subscriptions[subscriptionID]
	if !ok {
		return nil, store.ErrSubscriptionNotFound
	}
	return &sub, nil
}

func (f *fakeRepo) ListSubscriptionsByInterestID(ctx context.Context, interestID uuid.UUID) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	for _, sub := range f.subscriptions {
		if sub.InterestID == interestID {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (f *fakeRepo) DeleteSubscriptionAndPrune(ctx context.Context, subscriptionID uuid.UUID) (bool, error) {
	sub, ok := f.subscriptions[subscriptionID]
	if !ok {
		return false, store.ErrSubscriptionNotFound
	}
	delete(f.subscriptions, subscriptionID)
	for _, sibling := range f.subscriptions {
		if sibling.InterestID == sub.InterestID {
			return false, nil
		}
	}
	delete(f.interests, sub.InterestID)
	return true, nil
}

func newTestRouter(repo *fakeRepo, limiter app.SubscribeRateLimiter, limit int) http.Handler {
	service := app.NewService(repo, nil, []string{"item_actions"})
	handlers := NewInterestHandlers(service, limiter, limit)
	return NewRouter(handlers, testSessionSecret, "/login")
}

func postForm(t *testing.T, router http.Handler, userID uuid.UUID, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(sessionCookie(t, userID))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func assertRepoCounts(t *testing.T, repo *fakeRepo, userID uuid.UUID, interests, subscriptions int) {
	t.Helper()
	gotInterests, gotSubs := repo.counts(userID)
	if gotInterests != interests || gotSubs != subscriptions {
		t.Fatalf("expected %d interests / %d subscriptions, got %d / %d",
			interests, subscriptions, gotInterests, gotSubs)
	}
}

// Mirrors the canonical subscribe flow: identical requests are idempotent,
// new feeds share the interest, new keywords and new filters do not.
func TestSubscribeEndpointAggregation(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(repo, nil, 0)
	userID := repo.addUser("user@example.com")

	rec := postForm(t, router, userID, "/subscriptions", url.Values{
		"subscription_type": {"federal_bills"},
		"query":             {"environment"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	assertRepoCounts(t, repo, userID, 1, 1)

	rec = postForm(t, router, userID, "/subscriptions", url.Values{
		"subscription_type": {"state_bills"},
		"query":             {"environment"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	assertRepoCounts(t, repo, userID, 1, 2)

	rec = postForm(t, router, userID, "/subscriptions", url.Values{
		"subscription_type": {"state_bills"},
		"query":             {"copyright"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	assertRepoCounts(t, repo, userID, 2, 3)

	// Posting the same subscription again returns 200 but changes nothing.
	rec = postForm(t, router, userID, "/subscriptions", url.Values{
		"subscription_type": {"state_bills"},
		"query":             {"copyright"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	assertRepoCounts(t, repo, userID, 2, 3)

	// Filter data makes it a different subscription.
	rec = postForm(t, router, userID, "/subscriptions", url.Values{
		"subscription_type":  {"state_bills"},
		"query":              {"copyright"},
		"state_bills[state]": {"DE"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	assertRepoCounts(t, repo, userID, 2, 4)

	// And the filter is part of the duplicate check.
	rec = postForm(t, router, userID, "/subscriptions", url.Values{
		"subscription_type":  {"state_bills"},
		"query":              {"copyright"},
		"state_bills[state]": {"DE"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	assertRepoCounts(t, repo, userID, 2, 4)
}

func TestSubscribeEndpointJSONBody(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(repo, nil, 0)
	userID := repo.addUser("user@example.com")

	body := `{"subscription_type":"state_bills","query":"copyright","state_bills":{"state":"DE"}}`
	req := httptest.NewRequest(http.MethodPost, "/subscriptions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(sessionCookie(t, userID))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	assertRepoCounts(t, repo, userID, 1, 1)

	for _, sub := range repo.subscriptions {
		if !sub.FilterData.Equal(domain.FilterData{"state": "DE"}) {
			t.Fatalf("expected filter {state: DE}, got %v", sub.FilterData)
		}
	}
}

func TestSubscribeEndpointMissingFields(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(repo, nil, 0)
	userID := repo.addUser("user@example.com")

	rec := postForm(t, router, userID, "/subscriptions", url.Values{
		"query": {"environment"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = postForm(t, router, userID, "/subscriptions", url.Values{
		"subscription_type": {"federal_bills"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	assertRepoCounts(t, repo, userID, 0, 0)
}

func seedInterestWithTwoSubscriptions(t *testing.T, repo *fakeRepo, userID uuid.UUID) (domain.Interest, domain.Subscription, domain.Subscription) {
	t.Helper()
	ctx := context.Background()
	interest, err := repo.FindOrCreateInterest(ctx, userID, domain.InterestTypeSearch, "environment")
	if err != nil {
		t.Fatalf("seed interest failed: %v", err)
	}
	s1, err := repo.FindOrCreateSubscription(ctx, userID, interest.ID, "federal_bills", interest.In, nil)
	if err != nil {
		t.Fatalf("seed subscription failed: %v", err)
	}
	s2, err := repo.FindOrCreateSubscription(ctx, userID, interest.ID, "state_bills", interest.In, nil)
	if err != nil {
		t.Fatalf("seed subscription failed: %v", err)
	}
	return *interest, *s1, *s2
}

func TestDeleteInterestEndpoint(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(repo, nil, 0)
	userID := repo.addUser("user@example.com")
	interest, s1, s2 := seedInterestWithTwoSubscriptions(t, repo, userID)

	req := httptest.NewRequest(http.MethodDelete, "/interest/"+interest.ID.String(), nil)
	req.AddCookie(sessionCookie(t, userID))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	ctx := context.Background()
	if _, err := repo.FindInterestByID(ctx, interest.ID); err == nil {
		t.Fatal("expected interest to be gone")
	}
	if _, err := repo.FindSubscriptionByID(ctx, s1.ID); err == nil {
		t.Fatal("expected first subscription to be gone")
	}
	if _, err := repo.FindSubscriptionByID(ctx, s2.ID); err == nil {
		t.Fatal("expected second subscription to be gone")
	}
}

func TestDeleteInterestEndpointNotUsersOwn(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(repo, nil, 0)
	owner := repo.addUser("owner@example.com")
	other := repo.addUser("other@example.com")
	interest, s1, s2 := seedInterestWithTwoSubscriptions(t, repo, owner)

	req := httptest.NewRequest(http.MethodDelete, "/interest/"+interest.ID.String(), nil)
	req.AddCookie(sessionCookie(t, other))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	// Everything is still there.
	ctx := context.Background()
	if _, err := repo.FindInterestByID(ctx, interest.ID); err != nil {
		t.Fatalf("expected interest intact, got %v", err)
	}
	if _, err := repo.FindSubscriptionByID(ctx, s1.ID); err != nil {
		t.Fatalf("expected first subscription intact, got %v", err)
	}
	if _, err := repo.FindSubscriptionByID(ctx, s2.ID); err != nil {
		t.Fatalf("expected second subscription intact, got %v", err)
	}
}

func TestDeleteInterestEndpointNotLoggedIn(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(repo, nil, 0)
	userID := repo.addUser("user@example.com")
	interest, s1, s2 := seedInterestWithTwoSubscriptions(t, repo, userID)

	req := httptest.NewRequest(http.MethodDelete, "/interest/"+interest.ID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}

	ctx := context.Background()
	if _, err := repo.FindInterestByID(ctx, interest.ID); err != nil {
		t.Fatalf("expected interest intact, got %v", err)
	}
	if _, err := repo.FindSubscriptionByID(ctx, s1.ID); err != nil {
		t.Fatalf("expected first subscription intact, got %v", err)
	}
	if _, err := repo.FindSubscriptionByID(ctx, s2.ID); err != nil {
		t.Fatalf("expected second subscription intact, got %v", err)
	}
}

func TestDeleteInterestEndpointAbsent(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(repo, nil, 0)
	userID := repo.addUser("user@example.com")

	req := httptest.NewRequest(http.MethodDelete, "/interest/"+uuid.NewString(), nil)
	req.AddCookie(sessionCookie(t, userID))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestUnsubscribeEndpointPrunesInterest(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(repo, nil, 0)
	userID := repo.addUser("user@example.com")
	interest, s1, s2 := seedInterestWithTwoSubscriptions(t, repo, userID)

	for i, subID := range []uuid.UUID{s1.ID, s2.ID} {
		req := httptest.NewRequest(http.MethodDelete, "/subscriptions/"+subID.String(), nil)
		req.AddCookie(sessionCookie(t, userID))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("unsubscribe %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	// The last unsubscribe took the empty interest with it.
	if _, err := repo.FindInterestByID(context.Background(), interest.ID); err == nil {
		t.Fatal("expected interest to be pruned with its last subscription")
	}
}

// fixedLimiter always reports the same count, simulating a user over budget.
type fixedLimiter struct {
	count      int
	retryAfter int
}

func (l *fixedLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return l.count, l.retryAfter, nil
}

func TestSubscribeEndpointRateLimited(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(repo, &fixedLimiter{count: 11, retryAfter: 42}, 10)
	userID := repo.addUser("user@example.com")

	rec := postForm(t, router, userID, "/subscriptions", url.Values{
		"subscription_type": {"federal_bills"},
		"query":             {"environment"},
	})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "42" {
		t.Fatalf("expected Retry-After 42, got %q", got)
	}
	assertRepoCounts(t, repo, userID, 0, 0)
}

func TestParseFormFilter(t *testing.T) {
	tests := []struct {
		name             string
		subscriptionType string
		form             url.Values
		want             domain.FilterData
	}{
		{
			name:             "no filter fields",
			subscriptionType: "state_bills",
			form:             url.Values{"query": {"copyright"}},
			want:             nil,
		},
		{
			name:             "single filter field",
			subscriptionType: "state_bills",
			form:             url.Values{"state_bills[state]": {"DE"}},
			want:             domain.FilterData{"state": "DE"},
		},
		{
			name:             "fields for another type ignored",
			subscriptionType: "state_bills",
			form:             url.Values{"federal_bills[stage]": {"passed"}},
			want:             nil,
		},
		{
			name:             "multiple filter fields",
			subscriptionType: "state_bills",
			form: url.Values{
				"state_bills[state]":   {"DE"},
				"state_bills[chamber]": {"senate"},
			},
			want: domain.FilterData{"state": "DE", "chamber": "senate"},
		},
		{
			name:             "malformed field names ignored",
			subscriptionType: "state_bills",
			form: url.Values{
				"state_bills[":   {"x"},
				"state_bills[]":  {"y"},
				"state_bills[a]": {"z"},
			},
			want: domain.FilterData{"a": "z"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseFormFilter(tt.form, tt.subscriptionType)
			if !got.Equal(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
