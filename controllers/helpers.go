package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap/zapcore"

	"github.com/phillip/volunteer-events-go/apperrors"
	"github.com/phillip/volunteer-events-go/logger"
	"github.com/phillip/volunteer-events-go/middleware"
	"github.com/phillip/volunteer-events-go/models"
	"github.com/phillip/volunteer-events-go/repository"
	"github.com/phillip/volunteer-events-go/utils"
)

// respondError writes err in the {"error", "code"} shape. Internal failures
// are logged and reported without details.
func respondError(c *gin.Context, err error) {
	code := apperrors.GetCode(err)
	status := code.Kind().HTTPStatus()

	if code == apperrors.CodeInternal {
		logger.Log(zapcore.ErrorLevel, err.Error(), "HTTP", c.Request.Method+" "+c.FullPath())
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "internal server error", "code": code})
		return
	}

	body := gin.H{"error": err.Error(), "code": code}
	var e *apperrors.Error
	if errors.As(err, &e) {
		body["error"] = e.Message
		if len(e.Fields) > 0 {
			body["fields"] = e.Fields
		}
	}
	c.JSON(status, body)
}

func currentActor(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "UNAUTHORIZED"})
	}
	return actor, ok
}

func paramID(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name, "code": apperrors.CodeInvalidID})
		return primitive.NilObjectID, false
	}
	return id, true
}

// bindJSON decodes the body. An empty body is allowed when optional is set.
func bindJSON(c *gin.Context, dst any, optional bool) bool {
	if optional && c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error(), "code": apperrors.CodeValidationFailed})
		return false
	}
	return true
}

func pageQuery(c *gin.Context) repository.Page {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(repository.DefaultLimit)))
	return repository.Page{Page: page, Limit: limit}.Normalize()
}

// notModified sets ETag and Last-Modified and reports whether the client
// copy is still fresh, in which case 304 has been written.
func notModified(c *gin.Context, id primitive.ObjectID, updatedAt time.Time) bool {
	return checkFresh(c, utils.GenerateETag(id, updatedAt), updatedAt)
}

// listNotModified is notModified for a page of items. The validator covers
// every item and the total; Last-Modified is the newest update time.
func listNotModified[T any](c *gin.Context, total int64, items []T, key func(T) (primitive.ObjectID, time.Time)) bool {
	versions := make([]utils.Version, 0, len(items))
	var newest time.Time
	for _, it := range items {
		id, at := key(it)
		versions = append(versions, utils.Version{ID: id, UpdatedAt: at})
		if at.After(newest) {
			newest = at
		}
	}
	return checkFresh(c, utils.GenerateListETag(total, versions), newest)
}

func checkFresh(c *gin.Context, etag string, lastModified time.Time) bool {
	c.Header("ETag", etag)
	if !lastModified.IsZero() {
		c.Header("Last-Modified", lastModified.UTC().Format(http.TimeFormat))
	}
	if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}
