package storage

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDesigns(t *testing.T) *S3Designs {
	t.Helper()
	d, err := NewS3Designs(context.Background(), S3Config{
		Region:          "us-east-1",
		Bucket:          "fab-designs",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		Endpoint:        "http://127.0.0.1:9000",
		UsePathStyle:    true,
		PresignTTL:      5 * time.Minute,
	})
	require.NoError(t, err)
	return d
}

func TestPresignUploadIsSigned(t *testing.T) {
	d := newTestDesigns(t)
	raw, err := d.PresignUpload(context.Background(), "designs/o1/abc-plan.pdf", "application/pdf")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", u.Host)
	assert.Equal(t, "/fab-designs/designs/o1/abc-plan.pdf", u.Path)
	assert.Equal(t, "300", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestPresignDownloadIsSigned(t *testing.T) {
	d := newTestDesigns(t)
	raw, err := d.PresignDownload(context.Background(), "designs/o1/abc-plan.pdf")
	require.NoError(t, err)
	assert.Contains(t, raw, "X-Amz-Signature=")
}

func TestBucketRequired(t *testing.T) {
	_, err := NewS3Designs(context.Background(), S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}
