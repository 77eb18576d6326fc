package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"freelance/internal/models"
)

const notificationColumns = `id, recipient_id, event_id, type, title, message, link, read, created_at`

func scanNotification(row rowScanner) (models.Notification, error) {
	var n models.Notification
	err := row.Scan(&n.Id, &n.RecipientId, &n.EventId, &n.Type, &n.Title, &n.Message, &n.Link, &n.Read, &n.CreatedAt)
	return n, err
}

// AddNotification stores n unless the recipient already got a notification
// for the same event. The boolean result reports whether a row was written.
func (repo *Repository) AddNotification(ctx context.Context, n models.Notification) (models.Notification, bool, error) {
	query := `
	INSERT INTO notifications (recipient_id, event_id, type, title, message, link)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (event_id, recipient_id) DO NOTHING
	RETURNING ` + notificationColumns

	stored, err := scanNotification(repo.db.QueryRowContext(ctx, query, n.RecipientId, n.EventId, n.Type, n.Title, n.Message, n.Link))
	if errors.Is(err, sql.ErrNoRows) {
		return n, false, nil
	} else if err != nil {
		return n, false, fmt.Errorf("repository.Repository.AddNotification: %w", err)
	}
	return stored, true, nil
}

func (repo *Repository) GetNotifications(ctx context.Context, recipientId string, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	query := `
	SELECT ` + notificationColumns + `
	FROM notifications
	$conditions$
	ORDER BY created_at DESC, id
	LIMIT $1
	OFFSET $2
	`

	c := newConditions(limit, offset)
	c.add("recipient_id = $$", recipientId)
	if unreadOnly {
		c.parts = append(c.parts, "NOT read")
	}

	rows, err := repo.db.QueryContext(ctx, c.apply(query), c.params...)
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.GetNotifications: %w", err)
	}
	defer rows.Close()

	result := make([]models.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("repository.Repository.GetNotifications: rows scan error: %w", err)
		}
		result = append(result, n)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("repository.Repository.GetNotifications: %w", rows.Err())
	}

	return result, nil
}

// MarkNotificationRead marks one of the recipient's notifications as read.
// Notifications of other users are reported as missing.
func (repo *Repository) MarkNotificationRead(ctx context.Context, UUID, recipientId string) (models.Notification, error) {
	if !validUUID(UUID) {
		return models.Notification{}, fmt.Errorf("repository.Repository.MarkNotificationRead: %w", models.ErrNoNotification)
	}

	query := `
	UPDATE notifications
	SET read = TRUE
	WHERE id = $1 AND recipient_id = $2
	RETURNING ` + notificationColumns

	n, err := scanNotification(repo.db.QueryRowContext(ctx, query, UUID, recipientId))
	if errors.Is(err, sql.ErrNoRows) {
		return n, fmt.Errorf("repository.Repository.MarkNotificationRead: %w", models.ErrNoNotification)
	} else if err != nil {
		return n, fmt.Errorf("repository.Repository.MarkNotificationRead: %w", err)
	}
	return n, nil
}

func (repo *Repository) MarkAllNotificationsRead(ctx context.Context, recipientId string) (int64, error) {
	res, err := repo.db.ExecContext(ctx, "UPDATE notifications SET read = TRUE WHERE recipient_id = $1 AND NOT read", recipientId)
	if err != nil {
		return 0, fmt.Errorf("repository.Repository.MarkAllNotificationsRead: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("repository.Repository.MarkAllNotificationsRead: %w", err)
	}
	return n, nil
}

// DeleteReadNotifications removes read notifications created before cutoff.
func (repo *Repository) DeleteReadNotifications(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := repo.db.ExecContext(ctx, "DELETE FROM notifications WHERE read AND created_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("repository.Repository.DeleteReadNotifications: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("repository.Repository.DeleteReadNotifications: %w", err)
	}
	return n, nil
}
