package s3

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	awsconfig "github.com/scttfrdmn/cargoship/pkg/aws/config"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"

	"github.com/tiercycle/tiercycle/pkg/errors"
	"github.com/tiercycle/tiercycle/pkg/types"
)

// Backend implements types.Store on top of S3. Containers are bucket names.
type Backend struct {
	client *s3.Client
	config Config
	logger *slog.Logger

	mu           sync.Mutex
	transporters map[string]*cargoships3.Transporter
}

// NewBackend creates an S3 client from cfg. Static keys are used when present, the default
// AWS credential chain otherwise.
func NewBackend(ctx context.Context, cfg Config, logger *slog.Logger) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, err.Error()).WithComponent("s3")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(cfg.MaxRetries))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeConfigLoad, "failed to load AWS config").
			WithComponent("s3").
			WithCause(err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	b := &Backend{
		client:       client,
		config:       cfg,
		logger:       logger.With("component", "s3-backend", "region", cfg.Region),
		transporters: make(map[string]*cargoships3.Transporter),
	}
	if cfg.CargoShip.Enabled {
		b.logger.Info("CargoShip uploads enabled",
			"threshold", cfg.CargoShip.Threshold,
			"chunk_size", cfg.CargoShip.ChunkSize,
			"concurrency", cfg.CargoShip.Concurrency)
	}
	return b, nil
}

func (b *Backend) List(ctx context.Context, container string) iter.Seq2[types.ObjectRef, error] {
	return func(yield func(types.ObjectRef, error) bool) {
		paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(container),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield(types.ObjectRef{}, b.translateError(err, "list", types.ObjectRef{Container: container}))
				return
			}
			for _, obj := range page.Contents {
				key := aws.ToString(obj.Key)
				if key == "" || strings.HasSuffix(key, "/") {
					continue
				}
				if !yield(types.ObjectRef{Container: container, Key: key}, nil) {
					return
				}
			}
		}
	}
}

func (b *Backend) Stat(ctx context.Context, ref types.ObjectRef) (types.ObjectMetadata, error) {
	head, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(ref.Container),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		return types.ObjectMetadata{}, b.translateError(err, "stat", ref)
	}
	return metadataFromHead(head), nil
}

// Copy performs a server-side copy. The source creation time and content type are
// written onto the destination so retention sees the original age.
func (b *Backend) Copy(ctx context.Context, src, dst types.ObjectRef) error {
	meta, err := b.Stat(ctx, src)
	if err != nil {
		return err
	}

	_, err = b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(dst.Container),
		Key:               aws.String(dst.Key),
		CopySource:        aws.String(copySource(src)),
		MetadataDirective: s3types.MetadataDirectiveReplace,
		ContentType:       aws.String(meta.ContentType),
		Metadata: map[string]string{
			types.CreatedAtMetadataKey: types.FormatCreatedAt(meta.CreatedAt),
		},
	})
	if err != nil {
		return b.translateError(err, "copy", src)
	}
	return nil
}

func (b *Backend) Get(ctx context.Context, ref types.ObjectRef) ([]byte, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ref.Container),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		return nil, b.translateError(err, "get", ref)
	}
	defer func() { _ = result.Body.Close() }()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, errors.Transient("failed to read object body", err).
			WithComponent("s3").
			WithOperation("get")
	}
	return data, nil
}

// Put stores data, going through CargoShip for objects above the configured threshold
// and falling back to a plain PutObject if that fails.
func (b *Backend) Put(ctx context.Context, ref types.ObjectRef, data []byte, contentType string) error {
	if contentType == "" {
		contentType = detectContentType(ref.Key)
	}

	if t := b.transporter(ref.Container, int64(len(data))); t != nil {
		result, err := t.Upload(ctx, cargoships3.Archive{
			Key:          ref.Key,
			Reader:       bytes.NewReader(data),
			Size:         int64(len(data)),
			StorageClass: awsconfig.StorageClassStandard,
			Metadata: map[string]string{
				"content-type": contentType,
			},
		})
		if err == nil {
			b.logger.Debug("CargoShip upload completed",
				"ref", ref.String(),
				"size", len(data),
				"throughput", result.Throughput,
				"duration", result.Duration)
			return nil
		}
		b.logger.Warn("CargoShip upload failed, falling back to PutObject", "ref", ref.String(), "error", err)
	}

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(ref.Container),
		Key:           aws.String(ref.Key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return b.translateError(err, "put", ref)
	}
	return nil
}

// Delete removes ref. S3 deletes are silent on missing keys, so existence is checked first.
func (b *Backend) Delete(ctx context.Context, ref types.ObjectRef) error {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(ref.Container),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		return b.translateError(err, "delete", ref)
	}

	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(ref.Container),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		return b.translateError(err, "delete", ref)
	}
	return nil
}

// Ping verifies the bucket exists and is reachable with the configured credentials.
func (b *Backend) Ping(ctx context.Context, container string) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(container),
	})
	if err != nil {
		return b.translateError(err, "ping", types.ObjectRef{Container: container})
	}
	return nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (b *Backend) Close() error {
	return nil
}

func (b *Backend) transporter(bucket string, size int64) *cargoships3.Transporter {
	cs := b.config.CargoShip
	if !cs.Enabled || size < cs.Threshold {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.transporters[bucket]; ok {
		return t
	}
	t := cargoships3.NewTransporter(b.client, awsconfig.S3Config{
		Bucket:             bucket,
		StorageClass:       awsconfig.StorageClassStandard,
		MultipartThreshold: cs.Threshold,
		MultipartChunkSize: cs.ChunkSize,
		Concurrency:        cs.Concurrency,
	})
	b.transporters[bucket] = t
	return t
}

func metadataFromHead(head *s3.HeadObjectOutput) types.ObjectMetadata {
	meta := types.ObjectMetadata{
		Size:        aws.ToInt64(head.ContentLength),
		CreatedAt:   aws.ToTime(head.LastModified),
		ContentType: aws.ToString(head.ContentType),
	}
	if t, ok := types.ParseCreatedAt(head.Metadata[types.CreatedAtMetadataKey]); ok {
		meta.CreatedAt = t
	}
	// CargoShip uploads record the type as user metadata
	if ct := head.Metadata["content-type"]; ct != "" && (meta.ContentType == "" || meta.ContentType == "binary/octet-stream") {
		meta.ContentType = ct
	}
	return meta
}

func copySource(src types.ObjectRef) string {
	return src.Container + "/" + url.PathEscape(src.Key)
}

// translateError maps SDK failures onto tiercycle error codes.
func (b *Backend) translateError(err error, operation string, ref types.ObjectRef) error {
	wrap := func(e *errors.TierError) error {
		return e.WithComponent("s3").WithOperation(operation).WithCause(err)
	}

	switch {
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return wrap(errors.NewError(errors.ErrCodeOperationCanceled, operation+" interrupted"))
	case isErrorType[*s3types.NoSuchKey](err), isErrorType[*s3types.NotFound](err):
		if ref.Key == "" {
			return wrap(errors.NewError(errors.ErrCodeContainerNotFound, "bucket not found: "+ref.Container))
		}
		return wrap(errors.NotFound(ref.Container, ref.Key))
	case isErrorType[*s3types.NoSuchBucket](err):
		return wrap(errors.NewError(errors.ErrCodeContainerNotFound, "bucket not found: "+ref.Container))
	}

	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "Forbidden":
			return wrap(errors.NewError(errors.ErrCodeAccessDenied, apiErr.ErrorMessage()))
		case "SlowDown", "Throttling", "ThrottlingException", "RequestLimitExceeded", "TooManyRequests":
			return wrap(errors.NewError(errors.ErrCodeThrottled, apiErr.ErrorMessage()))
		case "InternalError", "ServiceUnavailable", "RequestTimeout":
			return wrap(errors.Transient(apiErr.ErrorMessage(), nil))
		}
	}

	var respErr *awshttp.ResponseError
	if stderrors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		switch {
		case status == http.StatusNotFound && ref.Key != "":
			return wrap(errors.NotFound(ref.Container, ref.Key))
		case status == http.StatusNotFound:
			return wrap(errors.NewError(errors.ErrCodeContainerNotFound, "bucket not found: "+ref.Container))
		case status == http.StatusForbidden:
			return wrap(errors.NewError(errors.ErrCodeAccessDenied, fmt.Sprintf("%s denied for %s", operation, ref)))
		case status == http.StatusTooManyRequests:
			return wrap(errors.NewError(errors.ErrCodeThrottled, fmt.Sprintf("%s throttled for %s", operation, ref)))
		case status >= http.StatusInternalServerError:
			return wrap(errors.Transient(fmt.Sprintf("%s failed for %s with status %d", operation, ref, status), nil))
		}
		return wrap(errors.Permanent(fmt.Sprintf("%s failed for %s with status %d", operation, ref, status), nil))
	}

	if apiErr != nil {
		return wrap(errors.Permanent(fmt.Sprintf("%s failed for %s", operation, ref), nil))
	}
	// no response at all: connection refused, DNS, reset
	return wrap(errors.Transient(fmt.Sprintf("%s failed for %s", operation, ref), nil))
}

func detectContentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(key, ".xml"):
		return "application/xml"
	case strings.HasSuffix(key, ".html"):
		return "text/html"
	case strings.HasSuffix(key, ".txt"):
		return "text/plain"
	case strings.HasSuffix(key, ".jpg"), strings.HasSuffix(key, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(key, ".png"):
		return "image/png"
	case strings.HasSuffix(key, ".pdf"):
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// isErrorType checks if an error is of a specific type
func isErrorType[T error](err error) bool {
	var target T
	return stderrors.As(err, &target)
}

var (
	_ types.Store  = (*Backend)(nil)
	_ types.Pinger = (*Backend)(nil)
	_ types.Closer = (*Backend)(nil)
)
