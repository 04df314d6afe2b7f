package handler

import (
	"net/http"

	"github.com/circulo/surplus-gateway-go/internal/domain"
	"github.com/circulo/surplus-gateway-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Notifications — /v1/notifications
// ============================================================

func listNotificationsHandler(notify *service.Dispatcher, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/notifications")
		defer span.End()

		session := SessionFromContext(ctx)
		feed := notify.Feed(session.User.ID)

		// An empty feed usually means the session predates the process;
		// seed it before answering.
		if len(feed.Snapshot()) == 0 {
			if err := notify.Sync(ctx, session.Token, session.User.ID); err != nil {
				logger.Warn("notifications: seed failed", zap.Error(err))
			}
		}

		items := feed.Snapshot()
		if items == nil {
			items = []domain.Notification{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"notifications": items,
			"unreadCount":   feed.UnreadCount(),
		})
	}
}

func unreadCountHandler(notify *service.Dispatcher, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/notifications/unread-count")
		defer span.End()

		session := SessionFromContext(ctx)
		writeJSON(w, http.StatusOK, map[string]int{
			"unreadCount": notify.Feed(session.User.ID).UnreadCount(),
		})
	}
}

func markNotificationReadHandler(notify *service.Dispatcher, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/notifications/{notificationId}/read")
		defer span.End()

		id, err := idParam(r, "notificationId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		session := SessionFromContext(ctx)
		if err := notify.MarkRead(ctx, session.Token, session.User.ID, id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func markAllNotificationsReadHandler(notify *service.Dispatcher, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/notifications/read-all")
		defer span.End()

		session := SessionFromContext(ctx)
		if err := notify.MarkAllRead(ctx, session.Token, session.User.ID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func deleteNotificationHandler(notify *service.Dispatcher, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/notifications/{notificationId}")
		defer span.End()

		id, err := idParam(r, "notificationId")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		session := SessionFromContext(ctx)
		if err := notify.Delete(ctx, session.Token, session.User.ID, id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
