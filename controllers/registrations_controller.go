package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/volunteer-events-go/apperrors"
	"github.com/phillip/volunteer-events-go/models"
	"github.com/phillip/volunteer-events-go/repository"
	"github.com/phillip/volunteer-events-go/services"
)

func registrationFilter(c *gin.Context) (repository.RegistrationFilter, bool) {
	filter := repository.RegistrationFilter{Page: pageQuery(c)}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := models.RegistrationStatus(strings.TrimSpace(s))
			if !status.Valid() {
				respondError(c, apperrors.Validation("invalid query", map[string]string{"status": "unknown status " + string(status)}))
				return filter, false
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	return filter, true
}

type registerRequest struct {
	Notes string `json:"notes"`
}

// RegisterForEvent signs the caller up for an event.
func RegisterForEvent(svc *services.RegistrationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		eventID, ok := paramID(c, "eventId")
		if !ok {
			return
		}
		var req registerRequest
		if !bindJSON(c, &req, true) {
			return
		}

		reg, err := svc.Register(c.Request.Context(), actor, eventID, req.Notes)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, reg)
	}
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func CancelRegistration(svc *services.RegistrationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var req cancelRequest
		if !bindJSON(c, &req, true) {
			return
		}

		reg, err := svc.Cancel(c.Request.Context(), actor, id, req.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, reg)
	}
}

type feedbackRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func SubmitFeedback(svc *services.RegistrationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var req feedbackRequest
		if !bindJSON(c, &req, false) {
			return
		}

		reg, err := svc.SubmitFeedback(c.Request.Context(), actor, id, req.Rating, req.Comment)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, reg)
	}
}

func ListMyRegistrations(svc *services.RegistrationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		filter, ok := registrationFilter(c)
		if !ok {
			return
		}

		page, err := svc.ListMine(c.Request.Context(), actor, filter)
		if err != nil {
			respondError(c, err)
			return
		}
		if listNotModified(c, page.Total, page.Items, registrationKey) {
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

func GetRegistration(svc *services.RegistrationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		id, ok := paramID(c, "id")
		if !ok {
			return
		}

		reg, err := svc.Get(c.Request.Context(), actor, id)
		if err != nil {
			respondError(c, err)
			return
		}
		if notModified(c, reg.ID, reg.UpdatedAt) {
			return
		}
		c.JSON(http.StatusOK, reg)
	}
}

func registrationKey(r models.Registration) (primitive.ObjectID, time.Time) {
	return r.ID, r.UpdatedAt
}

// ---------------- MANAGER ----------------

type reviewRequest struct {
	Decision services.Decision `json:"decision" binding:"required"`
	Reason   string            `json:"reason"`
	Notes    string            `json:"notes"`
}

// ReviewRegistration confirms or rejects a pending registration.
func ReviewRegistration(svc *services.RegistrationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var req reviewRequest
		if !bindJSON(c, &req, false) {
			return
		}

		reg, err := svc.Review(c.Request.Context(), actor, id, req.Decision, req.Reason, req.Notes)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, reg)
	}
}

type completeRequest struct {
	Attendance *services.AttendanceInput `json:"attendance"`
}

func CompleteRegistration(svc *services.RegistrationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var req completeRequest
		if !bindJSON(c, &req, true) {
			return
		}

		reg, err := svc.Complete(c.Request.Context(), actor, id, req.Attendance)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, reg)
	}
}

func MarkNoShow(svc *services.RegistrationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		id, ok := paramID(c, "id")
		if !ok {
			return
		}

		reg, err := svc.MarkNoShow(c.Request.Context(), actor, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, reg)
	}
}

type batchCompleteRequest struct {
	RegistrationIDs []string                  `json:"registration_ids"`
	Attendance      *services.AttendanceInput `json:"attendance"`
}

// CompleteRegistrationsBatch completes several confirmed registrations of one
// event at once.
func CompleteRegistrationsBatch(svc *services.RegistrationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		eventID, ok := paramID(c, "eventId")
		if !ok {
			return
		}
		var req batchCompleteRequest
		if !bindJSON(c, &req, false) {
			return
		}
		ids := make([]primitive.ObjectID, 0, len(req.RegistrationIDs))
		for _, raw := range req.RegistrationIDs {
			id, err := primitive.ObjectIDFromHex(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid registration id " + raw, "code": apperrors.CodeInvalidID})
				return
			}
			ids = append(ids, id)
		}

		res, err := svc.CompleteBatch(c.Request.Context(), actor, eventID, ids, req.Attendance)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func ListEventRegistrations(svc *services.RegistrationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok {
			return
		}
		eventID, ok := paramID(c, "eventId")
		if !ok {
			return
		}
		filter, ok := registrationFilter(c)
		if !ok {
			return
		}

		page, err := svc.ListForEvent(c.Request.Context(), actor, eventID, filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}
