package cmd

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"dnsmedic/internal/config"
	"dnsmedic/internal/logging"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryBucket struct {
	mu     sync.Mutex
	bodies [][]byte
}

func (b *memoryBucket) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.bodies = append(b.bodies, body)
	b.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (b *memoryBucket) uploaded(t *testing.T) string {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()

	var all strings.Builder
	for _, body := range b.bodies {
		gr, err := gzip.NewReader(bytes.NewReader(body))
		require.NoError(t, err)
		raw, err := io.ReadAll(gr)
		require.NoError(t, err)
		all.Write(raw)
	}
	return all.String()
}

func auditConfig(dir string) *config.Config {
	cfg := &config.Config{}
	cfg.Audit.Dir = dir
	cfg.Audit.S3 = config.S3AuditConfig{Enabled: true, Bucket: "audit-bucket", Prefix: "dnsmedic/"}
	return cfg
}

func TestAuditTrailCloseArchivesStopEvent(t *testing.T) {
	bucket := &memoryBucket{}
	trail := openAuditTrail(context.Background(), auditConfig(t.TempDir()), func(context.Context, *config.S3AuditConfig) (logging.ObjectPutter, error) {
		return bucket, nil
	})
	require.NotNil(t, trail.archiver)

	trail.Close()

	uploaded := bucket.uploaded(t)
	assert.Contains(t, uploaded, "SERVICE_START")
	assert.Contains(t, uploaded, "SERVICE_STOP")
}

func TestAuditTrailSkipsArchiveWithoutAuditLog(t *testing.T) {
	// a regular file where the audit directory should be
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))

	called := false
	trail := openAuditTrail(context.Background(), auditConfig(filepath.Join(blocker, "audit")), func(context.Context, *config.S3AuditConfig) (logging.ObjectPutter, error) {
		called = true
		return &memoryBucket{}, nil
	})

	assert.False(t, called)
	assert.False(t, trail.enabled)
	assert.Nil(t, trail.archiver)
	trail.Close()
}
