package controllers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/phillip/volunteer-events-go/apperrors"
	"github.com/phillip/volunteer-events-go/realtime"
	"github.com/phillip/volunteer-events-go/services"
)

const streamHeartbeat = 25 * time.Second

func ListNotifications(svc *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		unreadOnly := c.Query("unread") == "true"

		page, err := svc.List(c.Request.Context(), actor, unreadOnly, pageQuery(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

func UnreadNotificationCount(svc *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		count, err := svc.UnreadCount(c.Request.Context(), actor)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": count})
	}
}

func MarkNotificationRead(svc *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		id, ok := paramID(c, "id")
		if !ok {
			return
		}

		n, err := svc.MarkRead(c.Request.Context(), actor, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, n)
	}
}

func MarkAllNotificationsRead(svc *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		changed, err := svc.MarkAllRead(c.Request.Context(), actor)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"modified_count": changed})
	}
}

func DeleteNotification(svc *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		if err := svc.Delete(c.Request.Context(), actor, id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "notification deleted"})
	}
}

func ClearNotifications(svc *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		deleted, err := svc.Clear(c.Request.Context(), actor)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted_count": deleted})
	}
}

// StreamNotifications pushes the caller's new notifications as server-sent
// events until the client disconnects.
func StreamNotifications(sub realtime.Subscriber) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		live, err := sub.Subscribe(ctx, actor.ID)
		if err != nil {
			respondError(c, apperrors.Internal("subscribe", err))
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.SSEvent("ready", gin.H{"user_id": actor.ID.Hex()})
		c.Writer.Flush()

		heartbeat := time.NewTicker(streamHeartbeat)
		defer heartbeat.Stop()

		c.Stream(func(io.Writer) bool {
			select {
			case n, open := <-live:
				if !open {
					return false
				}
				c.SSEvent("notification", n)
				return true
			case t := <-heartbeat.C:
				c.SSEvent("ping", t.UTC().Format(time.RFC3339))
				return true
			case <-ctx.Done():
				return false
			}
		})
	}
}
