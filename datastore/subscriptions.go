package datastore

import (
	"context"
	"fmt"

	"github.com/coreybb/horoscope/models"
	"github.com/jmoiron/sqlx"
)

// SubscriptionRepository reads the billing-owned subscriptions table.
type SubscriptionRepository struct {
	db *sqlx.DB
}

func NewSubscriptionRepository(db *sqlx.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// ActiveSubscriberIDs returns the user_id of every active subscription.
// A user holding several active subscriptions appears once per row.
func (r *SubscriptionRepository) ActiveSubscriberIDs(ctx context.Context) ([]string, error) {
	query := `
		SELECT user_id
		FROM subscriptions
		WHERE status = $1 AND user_id IS NOT NULL
	`
	userIDs := []string{}
	if err := r.db.SelectContext(ctx, &userIDs, query, string(models.SubscriptionStatusActive)); err != nil {
		return nil, fmt.Errorf("failed to query active subscriptions: %w", err)
	}
	return userIDs, nil
}
