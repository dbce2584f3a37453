// Package media resolves stored object keys to browser-usable URLs.
package media

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Service presigns organization logo objects out of S3-compatible storage.
type Service struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// New connects to the object store. endpoint is host:port without scheme.
func New(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to object store: %w", err)
	}
	return &Service{
		client: client,
		bucket: bucket,
		expiry: 1 * time.Hour,
	}, nil
}

// ResolveLogoURL turns a stored logo key into a presigned URL. Keys that are
// already absolute URLs pass through untouched; failures degrade to an empty
// string so thread metadata never blocks on the object store.
func (s *Service) ResolveLogoURL(ctx context.Context, key string) string {
	if key == "" {
		return ""
	}
	if strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return key
	}

	reqParams := make(url.Values)
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.expiry, reqParams)
	if err != nil {
		log.Printf("media: presign logo %s: %v", key, err)
		return ""
	}
	return presigned.String()
}
