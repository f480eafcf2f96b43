/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the SQL queries for interests, subscriptions
 * and users, including the race-safe find-or-create sequences backed by the
 * unique dedup indexes and the transactional cascade delete.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scoutalerts/interest-service/internal/domain"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrInterestNotFound     = errors.New("interest not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

const uniqueViolationCode = "23505"

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation. That is the expected signal when two identical find-or-create
// requests race; the loser refetches instead of failing.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// FindUserByID retrieves a user by their internal UUID.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var user domain.User
	query := `SELECT id, email, created_at FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(&user.ID, &user.Email, &user.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindInterestBySubject looks up the user's interest matching the dedup key
// (interest_type, in_subject) exactly. Absence is reported as
// ErrInterestNotFound; callers on the find-or-create path treat that as the
// create branch, not a failure.
func (r *PostgresRepository) FindInterestBySubject(ctx context.Context, userID uuid.UUID, interestType, subject string) (*domain.Interest, error) {
	var interest domain.Interest
	query := `
        SELECT id, user_id, interest_type, in_subject, delivery_type, created_at, updated_at
        FROM interests
        WHERE user_id = $1 AND interest_type = $2 AND in_subject = $3
    `
	err := r.db.QueryRow(ctx, query, userID, interestType, subject).Scan(
		&interest.ID, &interest.UserID, &interest.InterestType,
		&interest.In, &interest.DeliveryType, &interest.CreatedAt, &interest.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrInterestNotFound
		}
		return nil, err
	}
	return &interest, nil
}

// FindOrCreateInterest returns the existing interest for the dedup key or
// creates it. A concurrent identical request can win the insert race; the
// unique index rejects the duplicate and we refetch the winner's row.
func (r *PostgresRepository) FindOrCreateInterest(ctx context.Context, userID uuid.UUID, interestType, subject string) (*domain.Interest, error) {
	interest, err := r.FindInterestBySubject(ctx, userID, interestType, subject)
	if err == nil {
		return interest, nil
	}
	if !errors.Is(err, ErrInterestNotFound) {
		return nil, err
	}

	var created domain.Interest
	query := `
        INSERT INTO interests (user_id, interest_type, in_subject)
        VALUES ($1, $2, $3)
        RETURNING id, user_id, interest_type, in_subject, delivery_type, created_at, updated_at
    `
	err = r.db.QueryRow(ctx, query, userID, interestType, subject).Scan(
		&created.ID, &created.UserID, &created.InterestType,
		&created.In, &created.DeliveryType, &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return r.FindInterestBySubject(ctx, userID, interestType, subject)
		}
		return nil, err
	}
	return &created, nil
}

// FindInterestByID retrieves an interest by its ID regardless of owner.
// Ownership is enforced by the service layer so that a mismatch can be
// reported exactly like absence.
func (r *PostgresRepository) FindInterestByID(ctx context.Context, interestID uuid.UUID) (*domain.Interest, error) {
	var interest domain.Interest
	query := `
        SELECT id, user_id, interest_type, in_subject, delivery_type, created_at, updated_at
        FROM interests
        WHERE id = $1
    `
	err := r.db.QueryRow(ctx, query, interestID).Scan(
		&interest.ID, &interest.UserID, &interest.InterestType,
		&interest.In, &interest.DeliveryType, &interest.CreatedAt, &interest.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrInterestNotFound
		}
		return nil, err
	}
	return &interest, nil
}

// ListInterestsByUserID returns all of a user's interests, newest first.
func (r *PostgresRepository) ListInterestsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Interest, error) {
	query := `
        SELECT id, user_id, interest_type, in_subject, delivery_type, created_at, updated_at
        FROM interests
        WHERE user_id = $1
        ORDER BY created_at DESC
    `
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var interests []domain.Interest
	for rows.Next() {
		var interest domain.Interest
		if err := rows.Scan(
			&interest.ID, &interest.UserID, &interest.InterestType,
			&interest.In, &interest.DeliveryType, &interest.CreatedAt, &interest.UpdatedAt); err != nil {
			return nil, err
		}
		interests = append(interests, interest)
	}
	return interests, rows.Err()
}

// UpdateInterestDeliveryType changes how alerts for an interest are delivered.
func (r *PostgresRepository) UpdateInterestDeliveryType(ctx context.Context, interestID uuid.UUID, deliveryType string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE interests SET delivery_type = $2, updated_at = NOW() WHERE id = $1`,
		interestID, deliveryType)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInterestNotFound
	}
	return nil
}

// DeleteInterestCascade removes an interest together with every subscription
// that references it. The two deletes run in one transaction: either the
// interest and all of its subscriptions are gone, or nothing is.
func (r *PostgresRepository) DeleteInterestCascade(ctx context.Context, interestID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM subscriptions WHERE interest_id = $1`, interestID); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM interests WHERE id = $1`, interestID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInterestNotFound
	}

	return tx.Commit(ctx)
}

// findSubscriptionByDedupKey looks up a subscription matching the full dedup
// key. The filter comparison happens on the jsonb column, whose equality
// ignores key order, so any ordering of the same keys matches.
func (r *PostgresRepository) findSubscriptionByDedupKey(ctx context.Context, userID uuid.UUID, subscriptionType, interestIn string, filter domain.FilterData) (*domain.Subscription, error) {
	query := `
        SELECT id, user_id, interest_id, subscription_type, interest_in, filter_data, created_at
        FROM subscriptions
        WHERE user_id = $1 AND subscription_type = $2 AND interest_in = $3 AND filter_data = $4::jsonb
    `
	return r.scanSubscription(r.db.QueryRow(ctx, query, userID, subscriptionType, interestIn, filter.Canonical()))
}

// FindOrCreateSubscription returns the existing subscription for the dedup
// key or creates one under the given interest, copying the interest's
// subject into interest_in. Same refetch-on-conflict strategy as interests.
func (r *PostgresRepository) FindOrCreateSubscription(ctx context.Context, userID, interestID uuid.UUID, subscriptionType, interestIn string, filter domain.FilterData) (*domain.Subscription, error) {
	sub, err := r.findSubscriptionByDedupKey(ctx, userID, subscriptionType, interestIn, filter)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, err
	}

	query := `
        INSERT INTO subscriptions (user_id, interest_id, subscription_type, interest_in, filter_data)
        VALUES ($1, $2, $3, $4, $5::jsonb)
        RETURNING id, user_id, interest_id, subscription_type, interest_in, filter_data, created_at
    `
	created, err := r.scanSubscription(r.db.QueryRow(ctx, query,
		userID, interestID, subscriptionType, interestIn, filter.Canonical()))
	if err != nil {
		if isUniqueViolation(err) {
			return r.findSubscriptionByDedupKey(ctx, userID, subscriptionType, interestIn, filter)
		}
		return nil, err
	}
	return created, nil
}

// FindSubscriptionByID retrieves a subscription by its ID regardless of owner.
func (r *PostgresRepository) FindSubscriptionByID(ctx context.Context, subscriptionID uuid.UUID) (*domain.Subscription, error) {
	query := `
        SELECT id, user_id, interest_id, subscription_type, interest_in, filter_data, created_at
        FROM subscriptions
        WHERE id = $1
    `
	return r.scanSubscription(r.db.QueryRow(ctx, query, subscriptionID))
}

// ListSubscriptionsByInterestID returns all subscriptions under an interest.
func (r *PostgresRepository) ListSubscriptionsByInterestID(ctx context.Context, interestID uuid.UUID) ([]domain.Subscription, error) {
	query := `
        SELECT id, user_id, interest_id, subscription_type, interest_in, filter_data, created_at
        FROM subscriptions
        WHERE interest_id = $1
        ORDER BY created_at ASC
    `
	rows, err := r.db.Query(ctx, query, interestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		var sub domain.Subscription
		var filterRaw []byte
		if err := rows.Scan(
			&sub.ID, &sub.UserID, &sub.InterestID, &sub.SubscriptionType,
			&sub.InterestIn, &filterRaw, &sub.CreatedAt); err != nil {
			return nil, err
		}
		if err := decodeFilter(filterRaw, &sub.FilterData); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeleteSubscriptionAndPrune removes a subscription; when no sibling
// subscriptions remain the parent interest is removed in the same
// transaction, since an interest without subscriptions is considered gone.
func (r *PostgresRepository) DeleteSubscriptionAndPrune(ctx context.Context, subscriptionID uuid.UUID) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var interestID uuid.UUID
	err = tx.QueryRow(ctx,
		`DELETE FROM subscriptions WHERE id = $1 RETURNING interest_id`,
		subscriptionID).Scan(&interestID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, ErrSubscriptionNotFound
		}
		return false, err
	}

	var remaining int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE interest_id = $1`,
		interestID).Scan(&remaining)
	if err != nil {
		return false, err
	}

	interestRemoved := false
	if remaining == 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM interests WHERE id = $1`, interestID); err != nil {
			return false, err
		}
		interestRemoved = true
	}

	return interestRemoved, tx.Commit(ctx)
}

// scanSubscription scans one subscription row, translating pgx.ErrNoRows
// into ErrSubscriptionNotFound and decoding the jsonb filter column.
func (r *PostgresRepository) scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	var filterRaw []byte
	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.InterestID, &sub.SubscriptionType,
		&sub.InterestIn, &filterRaw, &sub.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	if err := decodeFilter(filterRaw, &sub.FilterData); err != nil {
		return nil, err
	}
	return &sub, nil
}

func decodeFilter(raw []byte, into *domain.FilterData) error {
	if len(raw) == 0 {
		*into = domain.FilterData{}
		return nil
	}
	return json.Unmarshal(raw, into)
}
