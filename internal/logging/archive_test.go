package logging

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dnsmedic/internal/audit"
	"dnsmedic/internal/config"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePutter struct {
	mu      sync.Mutex
	fail    bool
	objects map[string][]byte
	inputs  []*s3.PutObjectInput
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("access denied")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[*in.Key] = body
	f.inputs = append(f.inputs, in)
	return &s3.PutObjectOutput{}, nil
}

func gunzipLines(t *testing.T, data []byte) []string {
	t.Helper()
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	raw, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("gunzip: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(raw)), "\n")
}

func TestArchiverFlush(t *testing.T) {
	putter := &fakePutter{}
	a := NewArchiver(putter, &config.S3AuditConfig{Bucket: "audit-bucket", Prefix: "dnsmedic-audit/"}, time.Hour)

	a.Log(audit.Event{Type: audit.EventWhitelistUpdate, Message: "Added 1 whitelist rule(s)"})
	a.Log(audit.Event{Type: audit.EventTokenRefresh, Message: "Access token refreshed"})

	if err := a.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if len(putter.inputs) != 1 {
		t.Fatalf("Expected 1 upload, got %d", len(putter.inputs))
	}

	in := putter.inputs[0]
	if *in.Bucket != "audit-bucket" {
		t.Errorf("Bucket = %q", *in.Bucket)
	}
	if !strings.HasPrefix(*in.Key, "dnsmedic-audit/audit-") || !strings.HasSuffix(*in.Key, ".jsonl.gz") {
		t.Errorf("Key = %q", *in.Key)
	}

	lines := gunzipLines(t, putter.objects[*in.Key])
	if len(lines) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(lines))
	}
	var first audit.Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("Invalid event: %v", err)
	}
	if first.Type != audit.EventWhitelistUpdate {
		t.Errorf("First event type = %s", first.Type)
	}

	if a.buffer.Len() != 0 {
		t.Errorf("Buffer not drained: %d", a.buffer.Len())
	}
}

func TestArchiverRequeuesOnFailure(t *testing.T) {
	putter := &fakePutter{fail: true}
	a := NewArchiver(putter, &config.S3AuditConfig{Bucket: "b"}, time.Hour)
	a.Log(audit.Event{Type: audit.EventServiceStart})

	if err := a.Flush(context.Background()); err == nil {
		t.Fatal("Expected upload error")
	}
	if a.buffer.Len() != 1 {
		t.Errorf("Expected event to be requeued, buffer has %d", a.buffer.Len())
	}

	putter.fail = false
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if len(putter.inputs) != 1 {
		t.Errorf("Expected final upload on shutdown, got %d", len(putter.inputs))
	}
}

func TestArchiverUploadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit-2026-03-01.jsonl")
	if err := os.WriteFile(path, []byte("{\"type\":\"SERVICE_START\"}\n"), 0600); err != nil {
		t.Fatal(err)
	}

	putter := &fakePutter{}
	a := NewArchiver(putter, &config.S3AuditConfig{Bucket: "b", Prefix: "p/"}, 0)

	key, err := a.UploadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("UploadFile failed: %v", err)
	}
	if !strings.HasPrefix(key, "p/") || !strings.HasSuffix(key, "/audit-2026-03-01.jsonl.gz") {
		t.Errorf("key = %q", key)
	}
	if lines := gunzipLines(t, putter.objects[key]); lines[0] != `{"type":"SERVICE_START"}` {
		t.Errorf("content = %q", lines)
	}
}

func TestRingBuffer(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := 0; i < 5; i++ {
		rb.Push(audit.Event{Message: string(rune('a' + i))})
	}

	if rb.Len() != 3 {
		t.Fatalf("Len = %d, want 3", rb.Len())
	}

	got := rb.PopN(10)
	var msgs []string
	for _, e := range got {
		msgs = append(msgs, e.Message)
	}
	if strings.Join(msgs, "") != "cde" {
		t.Errorf("PopN = %v, want oldest entries dropped", msgs)
	}
	if rb.Len() != 0 {
		t.Errorf("Len after drain = %d", rb.Len())
	}
}
