package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

// MediaService stores campaign media (token art, QR code images) in a
// Spaces/S3 bucket and hands back public URLs.
type MediaService struct {
	client *s3.Client
	bucket string
	region string
	root   string
}

func NewMediaService(key, secret, region, bucket, root string) (*MediaService, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.digitaloceanspaces.com", region),
		}, nil
	})

	cfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithEndpointResolverWithOptions(resolver),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(key, secret, "")),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load spaces config: %w", err)
	}

	return &MediaService{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		region: region,
		root:   strings.Trim(root, "/"),
	}, nil
}

// UploadCampaignMedia stores one media object under the campaign's prefix
// and returns its public URL. The stored name is randomized; only the
// extension of the client filename survives.
func (m *MediaService) UploadCampaignMedia(ctx context.Context, campaignID, filename, contentType string, body io.Reader) (string, error) {
	if campaignID == "" {
		return "", fmt.Errorf("%w: campaign id is required", ErrInvalidArgument)
	}

	ext := strings.ToLower(path.Ext(filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".mp4", ".json":
	default:
		return "", fmt.Errorf("%w: unsupported media extension %q", ErrInvalidArgument, ext)
	}

	key := fmt.Sprintf("%s/%s/%s%s", m.root, campaignID, uuid.NewString(), ext)
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &m.bucket,
		Key:         &key,
		Body:        body,
		ContentType: &contentType,
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload media: %w", err)
	}

	return m.PublicURL(key), nil
}

// DeleteCampaignMedia removes one object by its key within the bucket.
func (m *MediaService) DeleteCampaignMedia(ctx context.Context, key string) error {
	_, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &m.bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("failed to delete media %s: %w", key, err)
	}
	return nil
}

func (m *MediaService) PublicURL(key string) string {
	return fmt.Sprintf("https://%s.%s.digitaloceanspaces.com/%s", m.bucket, m.region, key)
}

func (m *MediaService) GetBucket() string {
	return m.bucket
}
