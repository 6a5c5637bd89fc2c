package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"push-dispatch-go/internal/models"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// RunMigrations creates tables if they don't exist and applies schema updates
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return err
	}

	// The notifications table may predate this service.
	migrations := []string{
		`ALTER TABLE notifications ADD COLUMN IF NOT EXISTS push_dispatched_at TIMESTAMP WITH TIME ZONE;`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_pending_check ON notifications (related_check_id, created_at) WHERE push_dispatched_at IS NULL;`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_pending_squad ON notifications (related_squad_id, created_at) WHERE push_dispatched_at IS NULL;`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Subscription methods

var subscriptionColumns = []string{"id", "user_id", "endpoint", "p256dh", "auth", "created_at", "updated_at"}

func listSubscriptionsQuery(userID string) (string, []any, error) {
	return psql.Select(subscriptionColumns...).
		From("push_subscriptions").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("id").
		ToSql()
}

func deleteSubscriptionsQuery(userID string, endpoints []string) (string, []any, error) {
	return psql.Delete("push_subscriptions").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Eq{"endpoint": endpoints}).
		ToSql()
}

func upsertSubscriptionQuery(sub models.Subscription) (string, []any, error) {
	return psql.Insert("push_subscriptions").
		Columns("user_id", "endpoint", "p256dh", "auth").
		Values(sub.UserID, sub.Endpoint, sub.P256dh, sub.Auth).
		Suffix("ON CONFLICT (user_id, endpoint) DO UPDATE SET p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth, updated_at = NOW()").
		ToSql()
}

func (s *PostgresStore) ListSubscriptions(ctx context.Context, userID string) ([]models.Subscription, error) {
	query, args, err := listSubscriptionsQuery(userID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		var sub models.Subscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

// DeleteSubscriptions removes exactly the given endpoints of one user in a single statement.
func (s *PostgresStore) DeleteSubscriptions(ctx context.Context, userID string, endpoints []string) error {
	if len(endpoints) == 0 {
		return nil
	}

	query, args, err := deleteSubscriptionsQuery(userID, endpoints)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *PostgresStore) UpsertSubscription(ctx context.Context, sub models.Subscription) error {
	query, args, err := upsertSubscriptionQuery(sub)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *PostgresStore) DeleteSubscription(ctx context.Context, userID, endpoint string) error {
	return s.DeleteSubscriptions(ctx, userID, []string{endpoint})
}

// Notification methods

var notificationColumns = []string{
	"id", "user_id", "title", "body", "type",
	"related_squad_id", "related_check_id", "related_user_id", "created_at",
}

func pendingNotificationsQuery(filter models.NotificationFilter) (string, []any, error) {
	q := psql.Select(notificationColumns...).
		From("notifications").
		Where("push_dispatched_at IS NULL")

	if filter.CheckID != "" {
		q = q.Where(sq.Eq{"related_check_id": filter.CheckID})
	}
	if filter.SquadID != "" {
		q = q.Where(sq.Eq{"related_squad_id": filter.SquadID})
	}
	if filter.Since != nil {
		q = q.Where(sq.GtOrEq{"created_at": *filter.Since})
	}

	return q.OrderBy("created_at ASC").ToSql()
}

func markDispatchedQuery(ids []string) (string, []any, error) {
	return psql.Update("notifications").
		Set("push_dispatched_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": ids}).
		Where("push_dispatched_at IS NULL").
		ToSql()
}

func (s *PostgresStore) ListPendingNotifications(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error) {
	query, args, err := pendingNotificationsQuery(filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		var title, body, squadID, checkID, relatedUserID sql.NullString

		if err := rows.Scan(&n.ID, &n.UserID, &title, &body, &n.Type, &squadID, &checkID, &relatedUserID, &n.CreatedAt); err != nil {
			return nil, err
		}

		n.Title = title.String
		n.Body = body.String
		n.RelatedSquadID = squadID.String
		n.RelatedCheckID = checkID.String
		n.RelatedUserID = relatedUserID.String
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

func (s *PostgresStore) MarkNotificationsDispatched(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := markDispatchedQuery(ids)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}
