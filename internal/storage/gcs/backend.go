// Package gcs implements the tiercycle object store on Google Cloud Storage.
package gcs

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/tiercycle/tiercycle/pkg/errors"
	"github.com/tiercycle/tiercycle/pkg/types"
)

// Config represents Google Cloud Storage backend configuration
type Config struct {
	// CredentialsFile points at a service account key. Empty means application default
	// credentials.
	CredentialsFile string `yaml:"credentials_file"`
	CredentialsJSON string `yaml:"credentials_json"`

	// Endpoint overrides the JSON API endpoint, e.g. for fake-gcs-server. Requests are sent
	// unauthenticated when set without credentials.
	Endpoint string `yaml:"endpoint"`
}

// Validate checks the settings NewBackend relies on.
func (c Config) Validate() error {
	if c.CredentialsFile != "" && c.CredentialsJSON != "" {
		return fmt.Errorf("gcs credentials_file and credentials_json are mutually exclusive")
	}
	return nil
}

func (c Config) clientOptions() []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case c.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(c.CredentialsJSON)))
	case c.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(c.CredentialsFile))
	case c.Endpoint != "":
		opts = append(opts, option.WithoutAuthentication())
	}
	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.Endpoint))
	}
	return opts
}

// Backend implements types.Store on GCS. Containers are bucket names.
type Backend struct {
	client *storage.Client
	logger *slog.Logger
}

// NewBackend creates a GCS client.
func NewBackend(ctx context.Context, cfg Config, logger *slog.Logger) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, err.Error()).WithComponent("gcs")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := storage.NewClient(ctx, cfg.clientOptions()...)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeConfigLoad, "failed to create GCS client").
			WithComponent("gcs").
			WithCause(err)
	}
	return &Backend{
		client: client,
		logger: logger.With("component", "gcs-backend"),
	}, nil
}

func (b *Backend) object(ref types.ObjectRef) *storage.ObjectHandle {
	return b.client.Bucket(ref.Container).Object(ref.Key)
}

func (b *Backend) List(ctx context.Context, container string) iter.Seq2[types.ObjectRef, error] {
	return func(yield func(types.ObjectRef, error) bool) {
		it := b.client.Bucket(container).Objects(ctx, nil)
		for {
			attrs, err := it.Next()
			if stderrors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				yield(types.ObjectRef{}, translateError(err, "list", types.ObjectRef{Container: container}))
				return
			}
			if !yield(types.ObjectRef{Container: container, Key: attrs.Name}, nil) {
				return
			}
		}
	}
}

func (b *Backend) Stat(ctx context.Context, ref types.ObjectRef) (types.ObjectMetadata, error) {
	attrs, err := b.object(ref).Attrs(ctx)
	if err != nil {
		return types.ObjectMetadata{}, translateError(err, "stat", ref)
	}
	return metadataFromAttrs(attrs), nil
}

// Copy rewrites src into dst server side, replacing metadata with the source creation time.
func (b *Backend) Copy(ctx context.Context, src, dst types.ObjectRef) error {
	meta, err := b.Stat(ctx, src)
	if err != nil {
		return err
	}

	copier := b.object(dst).CopierFrom(b.object(src))
	copier.ContentType = meta.ContentType
	copier.Metadata = map[string]string{
		types.CreatedAtMetadataKey: types.FormatCreatedAt(meta.CreatedAt),
	}
	if _, err := copier.Run(ctx); err != nil {
		return translateError(err, "copy", src)
	}
	return nil
}

func (b *Backend) Get(ctx context.Context, ref types.ObjectRef) ([]byte, error) {
	r, err := b.object(ref).NewReader(ctx)
	if err != nil {
		return nil, translateError(err, "get", ref)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Transient("failed to read object body", err).
			WithComponent("gcs").
			WithOperation("get")
	}
	return data, nil
}

func (b *Backend) Put(ctx context.Context, ref types.ObjectRef, data []byte, contentType string) error {
	// Cancelling the writer's context aborts the upload; Close alone would commit it.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := b.object(ref).NewWriter(wctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		cancel()
		_ = w.Close()
		return translateError(err, "put", ref)
	}
	if err := w.Close(); err != nil {
		return translateError(err, "put", ref)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, ref types.ObjectRef) error {
	if err := b.object(ref).Delete(ctx); err != nil {
		return translateError(err, "delete", ref)
	}
	return nil
}

// Ping reads the bucket's attributes.
func (b *Backend) Ping(ctx context.Context, container string) error {
	if _, err := b.client.Bucket(container).Attrs(ctx); err != nil {
		return translateError(err, "ping", types.ObjectRef{Container: container})
	}
	return nil
}

func (b *Backend) Close() error {
	return b.client.Close()
}

func metadataFromAttrs(attrs *storage.ObjectAttrs) types.ObjectMetadata {
	meta := types.ObjectMetadata{
		Size:        attrs.Size,
		CreatedAt:   attrs.Created,
		ContentType: attrs.ContentType,
	}
	if t, ok := types.ParseCreatedAt(attrs.Metadata[types.CreatedAtMetadataKey]); ok {
		meta.CreatedAt = t
	}
	return meta
}

func translateError(err error, operation string, ref types.ObjectRef) error {
	wrap := func(e *errors.TierError) error {
		return e.WithComponent("gcs").WithOperation(operation).WithCause(err)
	}

	switch {
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return wrap(errors.NewError(errors.ErrCodeOperationCanceled, operation+" interrupted"))
	case stderrors.Is(err, storage.ErrObjectNotExist):
		return wrap(errors.NotFound(ref.Container, ref.Key))
	case stderrors.Is(err, storage.ErrBucketNotExist):
		return wrap(errors.NewError(errors.ErrCodeContainerNotFound, "bucket not found: "+ref.Container))
	}

	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusNotFound && ref.Key != "":
			return wrap(errors.NotFound(ref.Container, ref.Key))
		case apiErr.Code == http.StatusNotFound:
			return wrap(errors.NewError(errors.ErrCodeContainerNotFound, "bucket not found: "+ref.Container))
		case apiErr.Code == http.StatusForbidden, apiErr.Code == http.StatusUnauthorized:
			return wrap(errors.NewError(errors.ErrCodeAccessDenied, fmt.Sprintf("%s denied for %s", operation, ref)))
		case apiErr.Code == http.StatusTooManyRequests:
			return wrap(errors.NewError(errors.ErrCodeThrottled, fmt.Sprintf("%s throttled for %s", operation, ref)))
		case apiErr.Code >= http.StatusInternalServerError, apiErr.Code == http.StatusRequestTimeout:
			return wrap(errors.Transient(fmt.Sprintf("%s failed for %s with status %d", operation, ref, apiErr.Code), nil))
		}
		return wrap(errors.Permanent(fmt.Sprintf("%s failed for %s with status %d", operation, ref, apiErr.Code), nil))
	}

	return wrap(errors.Transient(fmt.Sprintf("%s failed for %s", operation, ref), nil))
}

var (
	_ types.Store  = (*Backend)(nil)
	_ types.Pinger = (*Backend)(nil)
	_ types.Closer = (*Backend)(nil)
)
