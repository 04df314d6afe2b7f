package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/circulo/surplus-gateway-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ListNotifications fetches the caller's notification feed, newest first.
// Implements port.NotificationAPI.
func (c *Client) ListNotifications(ctx context.Context, token string) ([]domain.Notification, error) {
	ctx, span := tracer.Start(ctx, "Marketplace.ListNotifications")
	defer span.End()

	raw, err := c.get(ctx, token, "/notifications?sort=createdAt,desc")
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return []domain.Notification{}, nil
	}

	var notifications []domain.Notification
	if err := json.Unmarshal(raw, &notifications); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}
	return notifications, nil
}

// UnreadCount fetches the upstream unread counter.
func (c *Client) UnreadCount(ctx context.Context, token string) (int, error) {
	ctx, span := tracer.Start(ctx, "Marketplace.UnreadCount")
	defer span.End()

	raw, err := c.get(ctx, token, "/notifications/unread-count")
	if err != nil {
		return 0, err
	}

	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, fmt.Errorf("decode unread count: %w", err)
	}
	return resp.Count, nil
}

// MarkNotificationRead flags one notification as read upstream.
func (c *Client) MarkNotificationRead(ctx context.Context, token string, id int64) error {
	ctx, span := tracer.Start(ctx, "Marketplace.MarkNotificationRead")
	defer span.End()
	span.SetAttributes(attribute.Int64("notification.id", id))

	_, err := c.send(ctx, token, http.MethodPost, fmt.Sprintf("/notifications/%d/read", id), nil)
	return err
}

// MarkAllNotificationsRead flags the whole feed as read upstream.
func (c *Client) MarkAllNotificationsRead(ctx context.Context, token string) error {
	ctx, span := tracer.Start(ctx, "Marketplace.MarkAllNotificationsRead")
	defer span.End()

	_, err := c.send(ctx, token, http.MethodPost, "/notifications/read-all", nil)
	return err
}

// DeleteNotification removes one notification upstream.
func (c *Client) DeleteNotification(ctx context.Context, token string, id int64) error {
	ctx, span := tracer.Start(ctx, "Marketplace.DeleteNotification")
	defer span.End()
	span.SetAttributes(attribute.Int64("notification.id", id))

	_, err := c.send(ctx, token, http.MethodDelete, fmt.Sprintf("/notifications/%d", id), nil)
	return err
}
