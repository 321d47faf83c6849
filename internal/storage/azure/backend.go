// Package azure implements the tiercycle object store on Azure Blob Storage.
//
// Containers map to blob containers in one storage account. Copies run server side with
// StartCopyFromURL and are polled to completion; when the service refuses the copy the
// backend falls back to download and upload.
package azure

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/tiercycle/tiercycle/pkg/errors"
	"github.com/tiercycle/tiercycle/pkg/types"
)

// createdAtKey is types.CreatedAtMetadataKey spelled as a valid Azure metadata name.
var createdAtKey = strings.ReplaceAll(types.CreatedAtMetadataKey, "-", "_")

// Backend implements types.Store on Azure Blob Storage.
type Backend struct {
	client *azblob.Client
	config Config
	logger *slog.Logger
}

// NewBackend creates a blob client. A connection string wins, then a shared key, then
// azidentity's default credential chain.
func NewBackend(_ context.Context, cfg Config, logger *slog.Logger) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, err.Error()).WithComponent("azure")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CopyPollInterval == 0 {
		cfg.CopyPollInterval = DefaultConfig().CopyPollInterval
	}
	if cfg.CopyTimeout == 0 {
		cfg.CopyTimeout = DefaultConfig().CopyTimeout
	}

	opts := &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: cfg.MaxRetries},
		},
	}

	var (
		client *azblob.Client
		err    error
	)
	switch {
	case cfg.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, opts)
	case cfg.AccountKey != "":
		cred, credErr := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if credErr != nil {
			return nil, errors.NewError(errors.ErrCodeInvalidConfig, "failed to create shared key credential").
				WithComponent("azure").
				WithCause(credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(cfg.serviceURL(), cred, opts)
	default:
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, errors.NewError(errors.ErrCodeConfigLoad, "failed to create Azure credential").
				WithComponent("azure").
				WithCause(credErr)
		}
		client, err = azblob.NewClient(cfg.serviceURL(), cred, opts)
	}
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeConfigLoad, "failed to create Azure client").
			WithComponent("azure").
			WithCause(err)
	}

	return &Backend{
		client: client,
		config: cfg,
		logger: logger.With("component", "azure-backend", "account", cfg.AccountName),
	}, nil
}

func (b *Backend) blobClient(ref types.ObjectRef) *blob.Client {
	return b.client.ServiceClient().NewContainerClient(ref.Container).NewBlobClient(ref.Key)
}

func (b *Backend) List(ctx context.Context, container string) iter.Seq2[types.ObjectRef, error] {
	return func(yield func(types.ObjectRef, error) bool) {
		pager := b.client.NewListBlobsFlatPager(container, nil)
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				yield(types.ObjectRef{}, translateError(err, "list", types.ObjectRef{Container: container}))
				return
			}
			for _, item := range page.Segment.BlobItems {
				if item.Name == nil {
					continue
				}
				if !yield(types.ObjectRef{Container: container, Key: *item.Name}, nil) {
					return
				}
			}
		}
	}
}

func (b *Backend) Stat(ctx context.Context, ref types.ObjectRef) (types.ObjectMetadata, error) {
	props, err := b.blobClient(ref).GetProperties(ctx, nil)
	if err != nil {
		return types.ObjectMetadata{}, translateError(err, "stat", ref)
	}

	meta := types.ObjectMetadata{
		Size:        deref(props.ContentLength),
		ContentType: deref(props.ContentType),
	}
	switch {
	case props.CreationTime != nil:
		meta.CreatedAt = *props.CreationTime
	case props.LastModified != nil:
		meta.CreatedAt = *props.LastModified
	}
	if t, ok := types.ParseCreatedAt(metadataValue(props.Metadata, createdAtKey)); ok {
		meta.CreatedAt = t
	}
	return meta, nil
}

// Copy starts a server-side copy carrying the source creation time and waits for it.
func (b *Backend) Copy(ctx context.Context, src, dst types.ObjectRef) error {
	meta, err := b.Stat(ctx, src)
	if err != nil {
		return err
	}
	metadata := map[string]*string{
		createdAtKey: ptr(types.FormatCreatedAt(meta.CreatedAt)),
	}

	dstClient := b.blobClient(dst)
	resp, err := dstClient.StartCopyFromURL(ctx, b.blobClient(src).URL(), &blob.StartCopyFromURLOptions{
		Metadata: metadata,
	})
	if err != nil {
		if bloberror.HasCode(err, bloberror.CannotVerifyCopySource, bloberror.AuthorizationFailure) {
			b.logger.Warn("server-side copy refused, copying through the client", "src", src.String(), "error", err)
			return b.copyThrough(ctx, src, dst, meta.ContentType, metadata)
		}
		return translateError(err, "copy", src)
	}

	status := deref(resp.CopyStatus)
	if status == blob.CopyStatusTypeSuccess {
		return nil
	}
	return b.waitForCopy(ctx, dst, status)
}

func (b *Backend) waitForCopy(ctx context.Context, dst types.ObjectRef, status blob.CopyStatusType) error {
	ctx, cancel := context.WithTimeout(ctx, b.config.CopyTimeout)
	defer cancel()

	ticker := time.NewTicker(b.config.CopyPollInterval)
	defer ticker.Stop()

	for status == blob.CopyStatusTypePending {
		select {
		case <-ctx.Done():
			return errors.Transient("copy still pending for "+dst.String(), ctx.Err()).
				WithComponent("azure").
				WithOperation("copy")
		case <-ticker.C:
		}
		props, err := b.blobClient(dst).GetProperties(ctx, nil)
		if err != nil {
			return translateError(err, "copy", dst)
		}
		status = deref(props.CopyStatus)
	}

	if status != blob.CopyStatusTypeSuccess && status != "" {
		return errors.Transient(fmt.Sprintf("copy to %s ended with status %s", dst, status), nil).
			WithComponent("azure").
			WithOperation("copy")
	}
	return nil
}

func (b *Backend) copyThrough(ctx context.Context, src, dst types.ObjectRef, contentType string, metadata map[string]*string) error {
	data, err := b.Get(ctx, src)
	if err != nil {
		return err
	}
	return b.upload(ctx, dst, data, contentType, metadata)
}

func (b *Backend) Get(ctx context.Context, ref types.ObjectRef) ([]byte, error) {
	resp, err := b.client.DownloadStream(ctx, ref.Container, ref.Key, nil)
	if err != nil {
		return nil, translateError(err, "get", ref)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Transient("failed to read blob body", err).
			WithComponent("azure").
			WithOperation("get")
	}
	return data, nil
}

func (b *Backend) Put(ctx context.Context, ref types.ObjectRef, data []byte, contentType string) error {
	return b.upload(ctx, ref, data, contentType, nil)
}

func (b *Backend) upload(ctx context.Context, ref types.ObjectRef, data []byte, contentType string, metadata map[string]*string) error {
	opts := &azblob.UploadBufferOptions{Metadata: metadata}
	if contentType != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: ptr(contentType)}
	}
	if _, err := b.client.UploadBuffer(ctx, ref.Container, ref.Key, data, opts); err != nil {
		return translateError(err, "put", ref)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, ref types.ObjectRef) error {
	if _, err := b.client.DeleteBlob(ctx, ref.Container, ref.Key, nil); err != nil {
		return translateError(err, "delete", ref)
	}
	return nil
}

// Ping reads the container's properties.
func (b *Backend) Ping(ctx context.Context, container string) error {
	_, err := b.client.ServiceClient().NewContainerClient(container).GetProperties(ctx, nil)
	if err != nil {
		return translateError(err, "ping", types.ObjectRef{Container: container})
	}
	return nil
}

func (b *Backend) Close() error {
	return nil
}

func translateError(err error, operation string, ref types.ObjectRef) error {
	wrap := func(e *errors.TierError) error {
		return e.WithComponent("azure").WithOperation(operation).WithCause(err)
	}

	switch {
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return wrap(errors.NewError(errors.ErrCodeOperationCanceled, operation+" interrupted"))
	case bloberror.HasCode(err, bloberror.BlobNotFound):
		return wrap(errors.NotFound(ref.Container, ref.Key))
	case bloberror.HasCode(err, bloberror.ContainerNotFound):
		return wrap(errors.NewError(errors.ErrCodeContainerNotFound, "container not found: "+ref.Container))
	case bloberror.HasCode(err, bloberror.AuthorizationFailure, bloberror.AuthenticationFailed,
		bloberror.AuthorizationPermissionMismatch, bloberror.InsufficientAccountPermissions):
		return wrap(errors.NewError(errors.ErrCodeAccessDenied, fmt.Sprintf("%s denied for %s", operation, ref)))
	case bloberror.HasCode(err, bloberror.ServerBusy):
		return wrap(errors.NewError(errors.ErrCodeThrottled, fmt.Sprintf("%s throttled for %s", operation, ref)))
	case bloberror.HasCode(err, bloberror.InternalError, bloberror.OperationTimedOut):
		return wrap(errors.Transient(fmt.Sprintf("%s failed for %s", operation, ref), nil))
	}

	var respErr *azcore.ResponseError
	if stderrors.As(err, &respErr) {
		status := respErr.StatusCode
		switch {
		case status == http.StatusNotFound && ref.Key != "":
			return wrap(errors.NotFound(ref.Container, ref.Key))
		case status == http.StatusNotFound:
			return wrap(errors.NewError(errors.ErrCodeContainerNotFound, "container not found: "+ref.Container))
		case status == http.StatusForbidden:
			return wrap(errors.NewError(errors.ErrCodeAccessDenied, fmt.Sprintf("%s denied for %s", operation, ref)))
		case status == http.StatusTooManyRequests:
			return wrap(errors.NewError(errors.ErrCodeThrottled, fmt.Sprintf("%s throttled for %s", operation, ref)))
		case status >= http.StatusInternalServerError:
			return wrap(errors.Transient(fmt.Sprintf("%s failed for %s with status %d", operation, ref, status), nil))
		}
		return wrap(errors.Permanent(fmt.Sprintf("%s failed for %s with status %d", operation, ref, status), nil))
	}

	return wrap(errors.Transient(fmt.Sprintf("%s failed for %s", operation, ref), nil))
}

// metadataValue looks name up case-insensitively; the service canonicalizes header casing.
func metadataValue(metadata map[string]*string, name string) string {
	for k, v := range metadata {
		if strings.EqualFold(k, name) && v != nil {
			return *v
		}
	}
	return ""
}

func ptr[T any](v T) *T { return &v }

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

var (
	_ types.Store  = (*Backend)(nil)
	_ types.Pinger = (*Backend)(nil)
	_ types.Closer = (*Backend)(nil)
)
