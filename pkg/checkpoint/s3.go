// Package checkpoint provides S3-backed checkpoint persistence for gears
// running without durable local storage.
package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config configures the S3 checkpoint backend.
type S3Config struct {
	// Bucket is the S3 bucket for storing checkpoints
	Bucket string

	// Prefix is prepended to all checkpoint keys (e.g., "checkpoints/")
	Prefix string

	// Region is the AWS region
	Region string

	// Endpoint overrides the default S3 endpoint (for S3-compatible services)
	Endpoint string

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// UsePathStyle forces path-style addressing (for MinIO, LocalStack)
	UsePathStyle bool

	// Timeout for S3 operations
	Timeout time.Duration

	// StorageClass for checkpoint objects (default: STANDARD)
	StorageClass types.StorageClass

	// ServerSideEncryption enables SSE-S3 encryption
	ServerSideEncryption bool
}

// DefaultS3Config returns sensible defaults.
func DefaultS3Config(bucket string) S3Config {
	return S3Config{
		Bucket:       bucket,
		Prefix:       "checkpoints/",
		Timeout:      30 * time.Second,
		StorageClass: types.StorageClassStandard,
	}
}

// S3Backend stores pass checkpoints in S3.
type S3Backend struct {
	cfg    S3Config
	client *s3.Client
}

// NewS3Backend creates a new S3 checkpoint backend.
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Opts := []func(*s3.Options){}

	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)

	return &S3Backend{
		cfg:    cfg,
		client: client,
	}, nil
}

// key returns the S3 key for a pass ID.
func (b *S3Backend) key(id string) string {
	return b.cfg.Prefix + id + ".json"
}

// Save persists a checkpoint to S3.
func (b *S3Backend) Save(ctx context.Context, cp *Checkpoint) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	data, err := cp.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket:       aws.String(b.cfg.Bucket),
		Key:          aws.String(b.key(cp.ID)),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String("application/json"),
		StorageClass: b.cfg.StorageClass,
	}

	if b.cfg.ServerSideEncryption {
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	}

	_, err = b.client.PutObject(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint to S3: %w", err)
	}

	return nil
}

// Load retrieves a checkpoint from S3.
func (b *S3Backend) Load(ctx context.Context, id string) (*Checkpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	output, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(id)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint from S3: %w", err)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint data: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	if cp.Dispatched == nil {
		cp.Dispatched = make(map[string][]string)
	}

	return &cp, nil
}

// Delete removes a checkpoint from S3.
func (b *S3Backend) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(id)),
	})
	return err
}

// List returns all checkpoints with the given prefix.
func (b *S3Backend) List(ctx context.Context, prefix string) ([]*Checkpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	fullPrefix := b.cfg.Prefix
	if prefix != "" {
		fullPrefix += prefix
	}

	var checkpoints []*Checkpoint
	var continuationToken *string

	for {
		output, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.cfg.Bucket),
			Prefix:            aws.String(fullPrefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list checkpoints: %w", err)
		}

		for _, obj := range output.Contents {
			key := aws.ToString(obj.Key)
			id := strings.TrimPrefix(key, b.cfg.Prefix)
			id = strings.TrimSuffix(id, ".json")

			cp, err := b.Load(ctx, id)
			if err != nil {
				continue // Skip invalid checkpoints
			}
			checkpoints = append(checkpoints, cp)
		}

		if !aws.ToBool(output.IsTruncated) {
			break
		}
		continuationToken = output.NextContinuationToken
	}

	return checkpoints, nil
}

// ListIncomplete returns all passes that haven't completed.
func (b *S3Backend) ListIncomplete(ctx context.Context) ([]*Checkpoint, error) {
	all, err := b.List(ctx, "")
	if err != nil {
		return nil, err
	}

	var incomplete []*Checkpoint
	for _, cp := range all {
		if cp.Phase != PhaseComplete {
			incomplete = append(incomplete, cp)
		}
	}

	return incomplete, nil
}

// FindByProject finds an incomplete pass for the given project.
func (b *S3Backend) FindByProject(ctx context.Context, project string) (*Checkpoint, error) {
	incomplete, err := b.ListIncomplete(ctx)
	if err != nil {
		return nil, err
	}

	for _, cp := range incomplete {
		if cp.Project == project {
			return cp, nil
		}
	}

	return nil, os.ErrNotExist
}

// Name returns "s3".
func (b *S3Backend) Name() string {
	return "s3"
}

// --- Pass Manager ---

// PassManager ties a Backend to the find-or-create lifecycle a scheduler
// gear runs at startup.
type PassManager struct {
	backend Backend
}

// NewPassManager creates a pass manager over any backend.
func NewPassManager(backend Backend) *PassManager {
	return &PassManager{backend: backend}
}

// FindOrCreate resumes an incomplete pass for the project or starts a new
// one. The bool result reports whether an existing pass was resumed.
func (m *PassManager) FindOrCreate(ctx context.Context, id, project string, modules []string) (*Checkpoint, bool, error) {
	existing, err := m.backend.FindByProject(ctx, project)
	if err == nil && existing.ShouldResume() {
		return existing, true, nil
	}

	cp := &Checkpoint{
		ID:         id,
		Project:    project,
		Modules:    append([]string(nil), modules...),
		Phase:      PhaseCollecting,
		StartedAt:  time.Now(),
		UpdatedAt:  time.Now(),
		Dispatched: make(map[string][]string),
		Metadata:   make(map[string]interface{}),
	}

	if err := m.backend.Save(ctx, cp); err != nil {
		return nil, false, err
	}

	return cp, false, nil
}

// Save saves a checkpoint through the backend.
func (m *PassManager) Save(ctx context.Context, cp *Checkpoint) error {
	cp.touch()
	return m.backend.Save(ctx, cp)
}

// LockProject takes the project lock when the backend supports distributed
// locking; other backends get a no-op lock. Callers hold the lock for the
// dispatch loop and Release it when the pass ends.
func (m *PassManager) LockProject(ctx context.Context, project string, ttl time.Duration) (ProjectLock, error) {
	if locker, ok := m.backend.(projectLocker); ok {
		return locker.AcquireLock(ctx, project, ttl)
	}
	return noopLock{}, nil
}

// StartAutoSave persists the checkpoint through the backend every interval
// until the returned stop function is called. Stop performs a final save, so
// dispatch progress marked between ticks is not lost.
func (m *PassManager) StartAutoSave(ctx context.Context, cp *Checkpoint, interval time.Duration) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := m.Save(ctx, cp); err != nil {
					log.Printf("checkpoint: auto-save of pass %s failed: %v", cp.ID, err)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			if err := m.Save(ctx, cp); err != nil {
				log.Printf("checkpoint: final save of pass %s failed: %v", cp.ID, err)
			}
		})
	}
}

// Complete marks a pass as complete and persists it.
func (m *PassManager) Complete(ctx context.Context, cp *Checkpoint) error {
	cp.SetPhase(PhaseComplete)
	return m.backend.Save(ctx, cp)
}

// Cleanup removes completed passes older than maxAge.
func (m *PassManager) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	all, err := m.backend.List(ctx, "")
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, cp := range all {
		if cp.Phase == PhaseComplete && cp.UpdatedAt.Before(cutoff) {
			if err := m.backend.Delete(ctx, cp.ID); err == nil {
				removed++
			}
		}
	}

	return removed, nil
}
