package utils

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GenerateETag derives a strong validator from a document id and its last
// update time.
func GenerateETag(id primitive.ObjectID, updatedAt time.Time) string {
	sum := sha1.Sum([]byte(id.Hex() + ":" + strconv.FormatInt(updatedAt.UnixNano(), 10)))
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

// Version identifies one revision of a listed document.
type Version struct {
	ID        primitive.ObjectID
	UpdatedAt time.Time
}

// GenerateListETag derives a validator for a page of documents. It covers
// every document on the page, in order, and the size of the full result.
func GenerateListETag(total int64, versions []Version) string {
	h := sha1.New()
	h.Write([]byte("total:" + strconv.FormatInt(total, 10)))
	for _, v := range versions {
		h.Write([]byte("|" + v.ID.Hex() + ":" + strconv.FormatInt(v.UpdatedAt.UnixNano(), 10)))
	}
	return `"` + hex.EncodeToString(h.Sum(nil)) + `"`
}
