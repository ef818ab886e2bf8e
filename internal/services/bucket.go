package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/bespoken/bespoken-backend/internal/config"
	"github.com/bespoken/bespoken-backend/internal/logger"
	"github.com/bespoken/bespoken-backend/internal/utils"
)

// BucketService is the blob upload adapter. Upload returns a fully
// qualified public URL; callers never know whether it is CDN-fronted or
// the default virtual-hosted form.
type BucketService interface {
	Upload(ctx context.Context, data []byte, key, contentType string) (string, error)
	ObjectKey(userID, scenarioID, ext string) string
	PublicURL(key string) string
}

type bucketService struct {
	log           *logger.Logger
	storageClient *storage.Client
	bucketName    string
	cdnDomain     string
}

func NewBucketService(log *logger.Logger, cfg *config.Config) (BucketService, error) {
	serviceLog := log.With("service", "BucketService")
	if cfg.GCSBucketName == "" {
		return nil, fmt.Errorf("missing GCS bucket name")
	}
	saPath := utils.GetEnv("GOOGLE_APPLICATION_CREDENTIALS_JSON", "", log)

	ctx := context.Background()
	var stClient *storage.Client
	var err error
	if saPath != "" {
		stClient, err = storage.NewClient(ctx, option.WithCredentialsFile(saPath), option.WithScopes(storage.ScopeReadWrite))
	} else {
		stClient, err = storage.NewClient(ctx, option.WithScopes(storage.ScopeReadWrite))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &bucketService{
		log:           serviceLog,
		storageClient: stClient,
		bucketName:    cfg.GCSBucketName,
		cdnDomain:     cfg.CDNDomain,
	}, nil
}

func (bs *bucketService) Upload(ctx context.Context, data []byte, key, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := bs.storageClient.Bucket(bs.bucketName).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", &UploadError{Err: fmt.Errorf("write object %q: %w", key, err)}
	}
	if err := w.Close(); err != nil {
		return "", &UploadError{Err: fmt.Errorf("close writer for %q: %w", key, err)}
	}
	return bs.PublicURL(key), nil
}

// ObjectKey namespaces uploads per user and scenario; the random suffix
// avoids collisions across resubmissions of the same turn.
func (bs *bucketService) ObjectKey(userID, scenarioID, ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("uploads/%s/%s/%s.%s", userID, scenarioID, suffix, ext)
}

func (bs *bucketService) PublicURL(key string) string {
	if bs.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", strings.TrimSuffix(bs.cdnDomain, "/"), key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bs.bucketName, key)
}
