package utils

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/phillip/volunteer-events-go/config"
)

const EventImagesFolder = "events"

// Cloudinary stores event images.
type Cloudinary struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinary(cfg *config.Config) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary config error: %v", err)
	}
	return &Cloudinary{cld: cld, folder: EventImagesFolder}, nil
}

// Upload stores one image in the events folder and returns its secure URL.
func (c *Cloudinary) Upload(ctx context.Context, file io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	resp, err := c.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder: c.folder,
	})
	if err != nil {
		return "", fmt.Errorf("upload error: %v", err)
	}
	if resp.Error.Message != "" {
		return "", fmt.Errorf("upload error: %s", resp.Error.Message)
	}
	return resp.SecureURL, nil
}

// Delete removes an image by its delivery URL.
func (c *Cloudinary) Delete(ctx context.Context, imageURL string) error {
	publicID, err := ExtractPublicID(imageURL)
	if err != nil {
		return fmt.Errorf("could not extract public ID: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID}); err != nil {
		return fmt.Errorf("delete error: %v", err)
	}
	return nil
}

// ExtractPublicID returns the folder/name part of a delivery URL such as
// https://res.cloudinary.com/demo/image/upload/v1234567890/events/abc123.jpg.
func ExtractPublicID(imageURL string) (string, error) {
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return "", err
	}

	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	idx := -1
	for i, p := range parts {
		if p == "upload" {
			idx = i
			break
		}
	}
	if idx < 0 || idx == len(parts)-1 {
		return "", fmt.Errorf("invalid cloudinary URL format")
	}

	rest := parts[idx+1:]
	if len(rest) > 1 && isVersion(rest[0]) {
		rest = rest[1:]
	}
	last := rest[len(rest)-1]
	rest[len(rest)-1] = strings.TrimSuffix(last, path.Ext(last))
	return strings.Join(rest, "/"), nil
}

func isVersion(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
