package logging

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"dnsmedic/internal/audit"
	"dnsmedic/internal/config"
	"dnsmedic/internal/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultArchiveInterval is how often buffered audit events are uploaded
	DefaultArchiveInterval = time.Hour

	archiveBufferSize = 10000
	archiveBatchSize  = 1000
)

// ObjectPutter is the subset of the S3 API used by the archiver
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client creates an S3 client for the audit archive bucket
func NewS3Client(ctx context.Context, cfg *config.S3AuditConfig) (*s3.Client, error) {
	creds, err := config.GetAWSCredentials(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to get AWS credentials: %w", err)
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	switch creds.Source {
	case config.CredentialSourceEnvironment, config.CredentialSourceConfig:
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logrus.Infof("Using AWS credentials from: %s", creds.Source)
	return s3.NewFromConfig(awsCfg), nil
}

// Archiver buffers audit events in memory and uploads them to S3 as gzipped
// JSON lines. It implements audit.Sink.
type Archiver struct {
	client   ObjectPutter
	bucket   string
	prefix   string
	interval time.Duration
	host     string
	now      func() time.Time

	buffer *RingBuffer
	seq    atomic.Uint64

	startOnce  sync.Once
	stopOnce   sync.Once
	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

// NewArchiver creates an archiver writing to cfg.Bucket under cfg.Prefix
func NewArchiver(client ObjectPutter, cfg *config.S3AuditConfig, interval time.Duration) *Archiver {
	if interval <= 0 {
		interval = DefaultArchiveInterval
	}
	return &Archiver{
		client:     client,
		bucket:     cfg.Bucket,
		prefix:     cfg.Prefix,
		interval:   interval,
		host:       getHostname(),
		now:        time.Now,
		buffer:     NewRingBuffer(archiveBufferSize),
		shutdownCh: make(chan struct{}),
	}
}

// Log queues an event for the next upload
func (a *Archiver) Log(event audit.Event) {
	a.buffer.Push(event)
}

// Start launches the periodic upload worker
func (a *Archiver) Start() {
	a.startOnce.Do(func() {
		a.wg.Add(1)
		go a.worker()
	})
}

func (a *Archiver) worker() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.shutdownCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := a.Flush(ctx); err != nil {
				logrus.WithError(err).Error("Failed to upload audit events to S3")
			}
			cancel()
		}
	}
}

// Flush uploads everything currently buffered. Events are put back when the
// upload fails.
func (a *Archiver) Flush(ctx context.Context) error {
	for {
		events := a.buffer.PopN(archiveBatchSize)
		if len(events) == 0 {
			return nil
		}

		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		encoder := json.NewEncoder(gw)
		for _, event := range events {
			if err := encoder.Encode(event); err != nil {
				logrus.WithError(err).Error("Failed to encode audit event for S3")
			}
		}
		if err := gw.Close(); err != nil {
			a.requeue(events)
			return fmt.Errorf("failed to compress audit events: %w", err)
		}

		key := fmt.Sprintf("%saudit-%s-%s-%d.jsonl.gz", a.prefix, a.host, a.now().UTC().Format("20060102-150405"), a.seq.Add(1))
		if err := a.put(ctx, key, buf.Bytes()); err != nil {
			a.requeue(events)
			return err
		}
		logrus.WithFields(logrus.Fields{
			"count": len(events),
			"key":   key,
		}).Info("Uploaded audit events to S3")
	}
}

func (a *Archiver) requeue(events []audit.Event) {
	for _, event := range events {
		a.buffer.Push(event)
	}
}

// UploadFile compresses a local audit file and uploads it, returning the object key
func (a *Archiver) UploadFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open audit file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	n, err := io.Copy(gw, utils.LimitedReader(f, utils.MaxAuditFileSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to compress audit file: %w", err)
	}
	if n > utils.MaxAuditFileSize {
		return "", fmt.Errorf("audit file %s %w of %d bytes", path, utils.ErrTooLarge, utils.MaxAuditFileSize)
	}
	if err := gw.Close(); err != nil {
		return "", fmt.Errorf("failed to compress audit file: %w", err)
	}

	key := fmt.Sprintf("%s%s/%s.gz", a.prefix, a.host, filepath.Base(path))
	if err := a.put(ctx, key, buf.Bytes()); err != nil {
		return "", err
	}
	return key, nil
}

func (a *Archiver) put(ctx context.Context, key string, body []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(a.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentType:     aws.String("application/x-ndjson"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to s3://%s: %w", key, a.bucket, err)
	}
	return nil
}

// Shutdown stops the worker and makes a final upload attempt
func (a *Archiver) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() { close(a.shutdownCh) })
	a.wg.Wait()
	return a.Flush(ctx)
}

// RingBuffer is a bounded FIFO of audit events that overwrites the oldest
// entry when full.
type RingBuffer struct {
	mu     sync.Mutex
	events []audit.Event
	head   int
	tail   int
	count  int
}

func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{events: make([]audit.Event, size)}
}

func (rb *RingBuffer) Push(event audit.Event) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	size := len(rb.events)
	rb.events[rb.head] = event
	rb.head = (rb.head + 1) % size
	if rb.count < size {
		rb.count++
	} else {
		rb.tail = (rb.tail + 1) % size
	}
}

// PopN removes up to n events, oldest first
func (rb *RingBuffer) PopN(n int) []audit.Event {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if n > rb.count {
		n = rb.count
	}
	out := make([]audit.Event, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, rb.events[rb.tail])
		rb.events[rb.tail] = audit.Event{}
		rb.tail = (rb.tail + 1) % len(rb.events)
	}
	rb.count -= n
	return out
}

// Len returns the number of buffered events
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
