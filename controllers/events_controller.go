package controllers

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap/zapcore"

	"github.com/phillip/volunteer-events-go/apperrors"
	"github.com/phillip/volunteer-events-go/logger"
	"github.com/phillip/volunteer-events-go/models"
	"github.com/phillip/volunteer-events-go/policy"
	"github.com/phillip/volunteer-events-go/repository"
	"github.com/phillip/volunteer-events-go/services"
)

const maxImagesPerUpload = 10

// ImageStore keeps uploaded event images.
type ImageStore interface {
	Upload(ctx context.Context, file io.Reader) (string, error)
	Delete(ctx context.Context, url string) error
}

// ---------------- CREATE ----------------
func CreateEvent(svc *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		var input services.EventInput
		if !bindJSON(c, &input, false) {
			return
		}

		event, err := svc.Create(c.Request.Context(), actor, input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, event)
	}
}

// ---------------- LIST ----------------
func ListEvents(svc *services.EventService) gin.HandlerFunc {
	return listEvents(svc.List)
}

// ListMyEvents lists the events organized by the caller.
func ListMyEvents(svc *services.EventService) gin.HandlerFunc {
	return listEvents(svc.ListMine)
}

func eventKey(e models.Event) (primitive.ObjectID, time.Time) { return e.ID, e.UpdatedAt }

type eventLister func(ctx context.Context, actor models.Actor, filter repository.EventFilter) (services.Paged[models.Event], error)

func listEvents(list eventLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		filter, err := eventFilter(c)
		if err != nil {
			respondError(c, err)
			return
		}

		page, err := list(c.Request.Context(), actor, filter)
		if err != nil {
			respondError(c, err)
			return
		}

		if listNotModified(c, page.Total, page.Items, eventKey) {
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

func eventFilter(c *gin.Context) (repository.EventFilter, error) {
	filter := repository.EventFilter{
		Category: models.Category(c.Query("category")),
		Search:   strings.TrimSpace(c.Query("search")),
		Page:     pageQuery(c),
	}
	if filter.Category != "" && !filter.Category.Valid() {
		return filter, apperrors.Validation("invalid query", map[string]string{"category": "unknown category"})
	}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := models.EventStatus(strings.TrimSpace(s))
			if !status.Valid() {
				return filter, apperrors.Validation("invalid query", map[string]string{"status": "unknown status " + string(status)})
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	for key, dst := range map[string]**time.Time{"from": &filter.StartFrom, "to": &filter.StartTo} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		t, err := parseDate(raw)
		if err != nil {
			return filter, apperrors.Validation("invalid query", map[string]string{key: "use RFC3339 or YYYY-MM-DD"})
		}
		*dst = &t
	}
	return filter, nil
}

// parseDate accepts RFC3339 and the short layouts used by the web client.
func parseDate(raw string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339, raw)
	if err == nil {
		return parsed, nil
	}
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04", "2006-01-02 15:04:05"} {
		if t, e := time.Parse(layout, raw); e == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// ---------------- READ ----------------
func GetEvent(svc *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		id, ok := paramID(c, "id")
		if !ok {
			return
		}

		event, err := svc.Get(c.Request.Context(), actor, id)
		if err != nil {
			respondError(c, err)
			return
		}
		if notModified(c, event.ID, event.UpdatedAt) {
			return
		}
		c.JSON(http.StatusOK, event)
	}
}

// ---------------- UPDATE ----------------
func UpdateEvent(svc *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var patch services.EventPatch
		if !bindJSON(c, &patch, false) {
			return
		}

		event, err := svc.Update(c.Request.Context(), actor, id, patch)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "event updated successfully",
			"event":   event,
		})
	}
}

// ---------------- IMAGES ----------------

// UploadEventImages stores the multipart "images" files and attaches them to
// the event. Uploads are removed again when attaching fails.
func UploadEventImages(svc *services.EventService, images ImageStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		if images == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage is not configured", "code": apperrors.CodeInternal})
			return
		}

		// --- Check access before uploading anything ---
		event, err := svc.Get(c.Request.Context(), actor, id)
		if err != nil {
			respondError(c, err)
			return
		}
		if err := policy.Authorize(actor, policy.ActionUpdateEvent, policy.Resource{Event: event}); err != nil {
			respondError(c, err)
			return
		}

		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form data", "code": apperrors.CodeValidationFailed})
			return
		}
		files := form.File["images"] // key must be "images"
		if len(files) == 0 || len(files) > maxImagesPerUpload {
			c.JSON(http.StatusBadRequest, gin.H{"error": "between 1 and 10 images are required", "code": apperrors.CodeValidationFailed})
			return
		}

		ctx := c.Request.Context()
		var urls []string
		cleanup := func() {
			for _, u := range urls {
				if err := images.Delete(context.WithoutCancel(ctx), u); err != nil {
					logger.Log(zapcore.WarnLevel, "cleanup upload: "+err.Error(), "EventImages", "upload")
				}
			}
		}

		for _, fileHeader := range files {
			file, err := fileHeader.Open()
			if err != nil {
				cleanup()
				c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open file", "file": fileHeader.Filename})
				return
			}
			url, err := images.Upload(ctx, file)
			file.Close()
			if err != nil {
				cleanup()
				c.JSON(http.StatusBadGateway, gin.H{
					"error":   "image upload failed",
					"details": err.Error(),
					"file":    fileHeader.Filename,
				})
				return
			}
			urls = append(urls, url)
		}

		event, err = svc.AttachImages(ctx, actor, id, urls)
		if err != nil {
			cleanup()
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, event)
	}
}

// ---------------- STATUS ----------------
type statusRequest struct {
	Status models.EventStatus `json:"status" binding:"required"`
	Reason string             `json:"reason"`
}

func TransitionEventStatus(svc *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var req statusRequest
		if !bindJSON(c, &req, false) {
			return
		}

		event, err := svc.TransitionStatus(c.Request.Context(), actor, id, req.Status, req.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, event)
	}
}

type decisionRequest struct {
	Decision services.Decision `json:"decision" binding:"required"`
	Reason   string            `json:"reason"`
}

// ApproveEvent records the admin decision on a pending event.
func ApproveEvent(svc *services.EventService) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var req decisionRequest
		if !bindJSON(c, &req, false) {
			return
		}

		event, err := svc.ApproveOrReject(c.Request.Context(), actor, id, req.Decision, req.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, event)
	}
}

// ---------------- DELETE ----------------
func DeleteEvent(svc *services.EventService) gin.HandlerFunc {
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
		c.JSON(http.StatusOK, gin.H{"message": "event deleted successfully"})
	}
}
