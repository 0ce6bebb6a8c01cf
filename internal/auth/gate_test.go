package auth

import (
	"context"
	"errors"
	"testing"

	"wisefido-smartwake/internal/repository"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeAccessReader struct {
	access *repository.DeviceAccess
	err    error
}

func (f *fakeAccessReader) GetDeviceAccess(ctx context.Context, tenantID, deviceID string) (*repository.DeviceAccess, error) {
	return f.access, f.err
}

func TestDeviceGate_Authorize(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		reader  *fakeAccessReader
		wantErr error
	}{
		{
			name:   "approved and monitoring",
			reader: &fakeAccessReader{access: &repository.DeviceAccess{BusinessAccess: "approved", MonitoringEnabled: true}},
		},
		{
			name:    "pending",
			reader:  &fakeAccessReader{access: &repository.DeviceAccess{BusinessAccess: "pending", MonitoringEnabled: true}},
			wantErr: ErrNotAuthorized,
		},
		{
			name:    "monitoring disabled",
			reader:  &fakeAccessReader{access: &repository.DeviceAccess{BusinessAccess: "approved"}},
			wantErr: ErrNotAuthorized,
		},
		{
			name:    "device not found",
			reader:  &fakeAccessReader{},
			wantErr: ErrNotAuthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewDeviceGate(tt.reader, zap.NewNop())
			err := gate.Authorize(ctx, "tenant-1", "dev-1")
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDeviceGate_RepositoryError(t *testing.T) {
	gate := NewDeviceGate(&fakeAccessReader{err: errors.New("db down")}, zap.NewNop())
	err := gate.Authorize(context.Background(), "tenant-1", "dev-1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotAuthorized)
}

func TestStaticGate(t *testing.T) {
	assert.NoError(t, StaticGate(true).Authorize(context.Background(), "t", "d"))
	assert.ErrorIs(t, StaticGate(false).Authorize(context.Background(), "t", "d"), ErrNotAuthorized)
}
