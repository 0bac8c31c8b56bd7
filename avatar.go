package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"gitea.kood.tech/petrkubec/purpose-match/backend/config"
	"gitea.kood.tech/petrkubec/purpose-match/backend/logging"
	"gitea.kood.tech/petrkubec/purpose-match/backend/matching"
)

const imageKeyPrefix = "profile-pics/"

// Allowed upload types and the extension the object key gets.
var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Swappable in tests.
var loadAWSConfig = awsconfig.LoadDefaultConfig

// presigner is the subset of *s3.PresignClient the image endpoints use.
type presigner interface {
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// imageStore hands out presigned S3 URLs for profile images. The backend
// never proxies image bytes; profiles store the object key.
type imageStore struct {
	presigner presigner
	bucket    string
	ttl       time.Duration
}

// newImageStore returns nil when no bucket is configured.
func newImageStore(ctx context.Context, cfg config.StorageConfig) (*imageStore, error) {
	if cfg.S3Bucket == "" {
		return nil, nil
	}
	awsCfg, err := loadAWSConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &imageStore{
		presigner: s3.NewPresignClient(s3.NewFromConfig(awsCfg)),
		bucket:    cfg.S3Bucket,
		ttl:       cfg.PresignTTL,
	}, nil
}

func (s *imageStore) uploadURL(ctx context.Context, userID int64, contentType string) (url, key string, err error) {
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", "", fmt.Errorf("unsupported content type %q", contentType)
	}
	key = fmt.Sprintf("%s%d/%s%s", imageKeyPrefix, userID, uuid.NewString(), ext)
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", "", err
	}
	return req.URL, key, nil
}

func (s *imageStore) readURL(ctx context.Context, key string) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// POST /api/profile/image-upload-url
func imageUploadURLHandler(images *imageStore, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if images == nil {
			writeError(w, http.StatusServiceUnavailable, "storage_disabled", "Image storage is not configured.")
			return
		}
		var req struct {
			FileType string `json:"fileType"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if _, ok := imageExtensions[req.FileType]; !ok {
			writeError(w, http.StatusBadRequest, "unsupported_type", "Only JPEG, PNG, WebP and GIF images are allowed.")
			return
		}

		url, key, err := images.uploadURL(r.Context(), currentUser(r), req.FileType)
		if err != nil {
			log.Error(r.Context(), "presign upload", "error", err)
			writeError(w, http.StatusInternalServerError, "server_error", "Server error.")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"uploadUrl":  url,
			"key":        key,
			"expires_in": int(images.ttl.Seconds()),
		})
	}
}

// GET /api/profile/{userId}/image-url
func imageReadURLHandler(svc *matching.Service, images *imageStore, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := pathID(w, r, "userId")
		if !ok {
			return
		}
		view, err := svc.Profile(r.Context(), userID)
		if err != nil {
			writeServiceError(r.Context(), w, log, err)
			return
		}

		switch {
		case view.ImageURL == "":
			writeError(w, http.StatusNotFound, "not_found", "Profile has no image.")
		case !strings.HasPrefix(view.ImageURL, imageKeyPrefix):
			// an external URL saved by the client
			writeJSON(w, http.StatusOK, map[string]any{"url": view.ImageURL})
		case images == nil:
			writeError(w, http.StatusServiceUnavailable, "storage_disabled", "Image storage is not configured.")
		default:
			url, err := images.readURL(r.Context(), view.ImageURL)
			if err != nil {
				log.Error(r.Context(), "presign read", "error", err, "user_id", userID)
				writeError(w, http.StatusInternalServerError, "server_error", "Server error.")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"url": url, "expires_in": int(images.ttl.Seconds())})
		}
	}
}
