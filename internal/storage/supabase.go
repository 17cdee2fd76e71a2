package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	storage_go "github.com/supabase-community/storage-go"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
)

// bucketClient is the subset of the Supabase storage client the store uses.
type bucketClient interface {
	UploadFile(bucketID, relativePath string, data io.Reader, fileOptions ...storage_go.FileOptions) (storage_go.FileUploadResponse, error)
	RemoveFile(bucketID string, paths []string) ([]storage_go.FileUploadResponse, error)
	GetPublicUrl(bucketID, filePath string, urlOptions ...storage_go.UrlOptions) storage_go.SignedUrlResponse
	DownloadFile(bucketID, filePath string, urlOptions ...storage_go.UrlOptions) ([]byte, error)
}

// SupabaseStore keeps objects in a Supabase Storage bucket.
type SupabaseStore struct {
	client bucketClient
	bucket string
}

// NewSupabaseStore connects to the storage API of the project at projectURL
// using a service key.
func NewSupabaseStore(projectURL, serviceKey, bucket string) (*SupabaseStore, error) {
	projectURL = strings.TrimRight(strings.TrimSpace(projectURL), "/")
	if projectURL == "" || serviceKey == "" {
		return nil, fmt.Errorf("storage: supabase url and service key are required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("storage: supabase bucket is required")
	}
	client := storage_go.NewClient(projectURL+"/storage/v1", serviceKey, map[string]string{
		"apikey": serviceKey,
	})
	return &SupabaseStore{client: client, bucket: bucket}, nil
}

// Upload stores data and returns the bucket path and its public URL.
func (s *SupabaseStore) Upload(ctx context.Context, data []byte, folder, contentType string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	key := NewKey(folder, contentType)
	upsert := false
	if _, err := s.client.UploadFile(s.bucket, key, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	}); err != nil {
		return Object{}, fmt.Errorf("%w: supabase upload %s: %v", domain.ErrStorageFailure, key, err)
	}
	url := s.client.GetPublicUrl(s.bucket, key).SignedURL
	return Object{ID: key, URL: url}, nil
}

// Delete removes the object from the bucket.
func (s *SupabaseStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.client.RemoveFile(s.bucket, []string{id}); err != nil {
		return fmt.Errorf("%w: supabase delete %s: %v", domain.ErrStorageFailure, id, err)
	}
	return nil
}

// Read downloads the object from the bucket.
func (s *SupabaseStore) Read(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.client.DownloadFile(s.bucket, id)
	if err != nil {
		return nil, fmt.Errorf("%w: supabase download %s: %v", domain.ErrStorageFailure, id, err)
	}
	return data, nil
}

var (
	_ Store  = (*SupabaseStore)(nil)
	_ Reader = (*SupabaseStore)(nil)
)
