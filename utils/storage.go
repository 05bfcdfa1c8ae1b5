package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MediaStorage persists generated and inbound media in an S3-compatible
// bucket and hands out public URLs for the transport to reference.
type MediaStorage struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string

	httpClient *http.Client
}

func NewMediaStorage(ctx context.Context, bucket, region, endpoint, publicBaseURL string) (*MediaStorage, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	if publicBaseURL == "" {
		publicBaseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	}

	return &MediaStorage{
		client:        client,
		bucket:        bucket,
		publicBaseURL: publicBaseURL,
		httpClient:    &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

// Upload stores body under key and returns the public URL.
func (m *MediaStorage) Upload(ctx context.Context, key, contentType string, body []byte) (string, error) {
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return m.PublicURL(key), nil
}

// PublicURL returns the URL an uploaded key is reachable under.
func (m *MediaStorage) PublicURL(key string) string {
	return strings.TrimSuffix(m.publicBaseURL, "/") + "/" + strings.TrimPrefix(key, "/")
}

// Download fetches a remote media URL fully into memory. Pipeline inputs
// are short audio files, so buffering is fine.
func (m *MediaStorage) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: unexpected status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
