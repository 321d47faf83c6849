package azure

import (
	"context"
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiercycle/tiercycle/pkg/errors"
	"github.com/tiercycle/tiercycle/pkg/logging"
	"github.com/tiercycle/tiercycle/pkg/types"
)

// azuriteConnectionString is the well-known local emulator account.
const azuriteConnectionString = "DefaultEndpointsProtocol=http;" +
	"AccountName=devstoreaccount1;" +
	"AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;" +
	"BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1;"

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"account name", Config{AccountName: "acct"}, false},
		{"service url", Config{ServiceURL: "http://127.0.0.1:10000/devstoreaccount1"}, false},
		{"connection string", Config{ConnectionString: azuriteConnectionString}, false},
		{"nothing", Config{}, true},
		{"negative retries", Config{AccountName: "acct", MaxRetries: -1}, true},
		{"negative timeout", Config{AccountName: "acct", CopyTimeout: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ServiceURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://acct.blob.core.windows.net", Config{AccountName: "acct"}.serviceURL())
	assert.Equal(t, "http://localhost:10000/x", Config{AccountName: "acct", ServiceURL: "http://localhost:10000/x"}.serviceURL())
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	t.Run("invalid config", func(t *testing.T) {
		b, err := NewBackend(context.Background(), Config{}, nil)
		assert.Nil(t, b)
		assert.Equal(t, errors.ErrCodeInvalidConfig, errors.CodeOf(err))
	})

	t.Run("connection string applies defaults", func(t *testing.T) {
		b, err := NewBackend(context.Background(), Config{ConnectionString: azuriteConnectionString}, logging.Discard())
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig().CopyPollInterval, b.config.CopyPollInterval)
		assert.Equal(t, DefaultConfig().CopyTimeout, b.config.CopyTimeout)
		assert.Contains(t, b.blobClient(types.ObjectRef{Container: "intake", Key: "a.txt"}).URL(), "/intake/a.txt")
		assert.NoError(t, b.Close())
	})
}

func responseError(code bloberror.Code, status int) error {
	return &azcore.ResponseError{ErrorCode: string(code), StatusCode: status}
}

func TestTranslateError(t *testing.T) {
	t.Parallel()

	obj := types.ObjectRef{Container: "backup", Key: "a.txt"}
	tests := []struct {
		name string
		err  error
		ref  types.ObjectRef
		want errors.ErrorCode
	}{
		{"blob not found", responseError(bloberror.BlobNotFound, 404), obj, errors.ErrCodeObjectNotFound},
		{"container not found", responseError(bloberror.ContainerNotFound, 404), obj, errors.ErrCodeContainerNotFound},
		{"head 404 on blob", responseError("", http.StatusNotFound), obj, errors.ErrCodeObjectNotFound},
		{"head 404 on container", responseError("", http.StatusNotFound), types.ObjectRef{Container: "backup"}, errors.ErrCodeContainerNotFound},
		{"auth failure", responseError(bloberror.AuthorizationFailure, 403), obj, errors.ErrCodeAccessDenied},
		{"server busy", responseError(bloberror.ServerBusy, 503), obj, errors.ErrCodeThrottled},
		{"internal", responseError(bloberror.InternalError, 500), obj, errors.ErrCodeTransient},
		{"unknown 5xx", responseError("", http.StatusBadGateway), obj, errors.ErrCodeTransient},
		{"bad request", responseError(bloberror.InvalidHeaderValue, 400), obj, errors.ErrCodePermanent},
		{"deadline", context.DeadlineExceeded, obj, errors.ErrCodeOperationCanceled},
		{"network", stderrors.New("connection reset by peer"), obj, errors.ErrCodeTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := translateError(tt.err, "stat", tt.ref)
			assert.Equal(t, tt.want, errors.CodeOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestMetadataValue(t *testing.T) {
	t.Parallel()

	v := "2026-04-01T08:00:00Z"
	md := map[string]*string{"Tiercycle_created_at": &v, "Other": nil}

	assert.Equal(t, "tiercycle_created_at", createdAtKey)
	assert.Equal(t, v, metadataValue(md, createdAtKey))
	assert.Empty(t, metadataValue(md, "other"))
	assert.Empty(t, metadataValue(nil, createdAtKey))
}
