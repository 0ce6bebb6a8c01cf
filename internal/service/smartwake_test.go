package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"wisefido-smartwake/internal/auth"
	"wisefido-smartwake/internal/models"
	"wisefido-smartwake/internal/repository"
	"wisefido-smartwake/internal/scheduler"
	"wisefido-smartwake/internal/trigger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var armTime = time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)

func at(hour, min int) time.Time {
	return time.Date(2026, 3, 11, hour, min, 0, 0, time.UTC)
}

type fakeTrigger struct {
	mu      sync.Mutex
	seq     int
	entries map[trigger.Handle]trigger.FireFunc
}

func (f *fakeTrigger) ScheduleAt(ctx context.Context, at time.Time, fn trigger.FireFunc) (trigger.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entries == nil {
		f.entries = make(map[trigger.Handle]trigger.FireFunc)
	}
	f.seq++
	h := trigger.Handle(fmt.Sprintf("h%d", f.seq))
	f.entries[h] = func(h trigger.Handle, _ time.Time) { fn(h, at) }
	return h, nil
}

func (f *fakeTrigger) Cancel(h trigger.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, h)
}

func (f *fakeTrigger) fireAll() {
	f.mu.Lock()
	entries := f.entries
	f.entries = nil
	f.mu.Unlock()
	for h, fn := range entries {
		fn(h, time.Time{})
	}
}

type fakeRecordStore struct {
	mu      sync.Mutex
	records []*models.AlarmRecord
	err     error
}

func (f *fakeRecordStore) CreateAlarmRecord(ctx context.Context, record *models.AlarmRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	r := *record
	f.records = append(f.records, &r)
	return nil
}

func (f *fakeRecordStore) ListAlarmRecords(ctx context.Context, tenantID, deviceID string, limit int) ([]*models.AlarmRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.AlarmRecord
	for _, r := range f.records {
		if r.TenantID == tenantID && r.DeviceID == deviceID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeSettingsStore map[string]*repository.WakeSettingsConfig

func (f fakeSettingsStore) GetWakeSettings(ctx context.Context, tenantID, deviceID string) (*repository.WakeSettingsConfig, error) {
	return f[deviceID], nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []models.AlarmRecord
}

func (f *fakePublisher) Publish(ctx context.Context, record models.AlarmRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, record)
	return nil
}

type fakeStatusCache struct {
	mu     sync.Mutex
	latest map[string]scheduler.Status
}

func (f *fakeStatusCache) Put(ctx context.Context, status scheduler.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest == nil {
		f.latest = make(map[string]scheduler.Status)
	}
	f.latest[status.DeviceID] = status
	return nil
}

func (f *fakeStatusCache) get(deviceID string) scheduler.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest[deviceID]
}

type harness struct {
	now       time.Time
	trig      *fakeTrigger
	records   *fakeRecordStore
	publisher *fakePublisher
	cache     *fakeStatusCache
	svc       *SmartWakeService
}

func newHarness(gate auth.Gate, settings fakeSettingsStore, emitCancelled bool) *harness {
	h := &harness{
		now:       armTime,
		trig:      &fakeTrigger{},
		records:   &fakeRecordStore{},
		publisher: &fakePublisher{},
		cache:     &fakeStatusCache{},
	}
	h.svc = NewSmartWakeService(
		Options{
			TenantID:      "tenant-1",
			Defaults:      repository.SettingsDefaults{WindowLookback: 30 * time.Minute, SmartEnabled: true, Location: time.UTC},
			EmitCancelled: emitCancelled,
		},
		h.trig,
		gate,
		zap.NewNop(),
		WithRecordStore(h.records),
		WithSettingsStore(settings),
		WithPublisher(h.publisher),
		WithStatusCache(h.cache),
		WithClock(func() time.Time { return h.now }),
	)
	return h
}

func explicitSettings() *models.AlarmSettings {
	return &models.AlarmSettings{
		TargetTime:     models.TimeOfDay{Hour: 7},
		WindowLookback: 30 * time.Minute,
		SmartEnabled:   true,
	}
}

func (h *harness) sessionCount() int {
	h.svc.mu.Lock()
	defer h.svc.mu.Unlock()
	return len(h.svc.sessions)
}

func (h *harness) ingest(t *testing.T, deviceID string, ts time.Time, phase models.PhaseKind) {
	t.Helper()
	h.now = ts
	require.NoError(t, h.svc.Ingest(context.Background(), "", deviceID, models.PhaseSample{Timestamp: ts, Phase: phase}))
}

func TestSmartWake_EarlyFireFlow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(auth.StaticGate(true), nil, false)

	st, err := h.svc.Arm(ctx, "", "dev-1", explicitSettings())
	require.NoError(t, err)
	assert.Equal(t, scheduler.StateArmed, st.State)
	assert.Equal(t, "tenant-1", st.TenantID)

	st, err = h.svc.Activate(ctx, "", "dev-1")
	require.NoError(t, err)
	assert.Equal(t, scheduler.StateMonitoring, st.State)
	assert.Equal(t, scheduler.StateMonitoring, h.cache.get("dev-1").State)

	h.ingest(t, "dev-1", at(6, 20), models.PhaseDeep)
	h.ingest(t, "dev-1", at(6, 45), models.PhaseLight)

	require.Len(t, h.records.records, 1)
	rec := h.records.records[0]
	assert.True(t, rec.FiredEarly)
	assert.Equal(t, at(6, 45), *rec.ActualFireTime)
	assert.Equal(t, "tenant-1", rec.TenantID)

	require.Len(t, h.publisher.published, 1)
	assert.Equal(t, rec.RecordID, h.publisher.published[0].RecordID)
	assert.Equal(t, scheduler.StateFired, h.cache.get("dev-1").State)

	records, err := h.svc.Records(ctx, "", "dev-1", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	// 终态下样本被拒收
	err = h.svc.Ingest(ctx, "", "dev-1", models.PhaseSample{Timestamp: at(6, 50), Phase: models.PhaseREM})
	assert.ErrorIs(t, err, scheduler.ErrInvalidState)
}

func TestSmartWake_DeadlineFlow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(auth.StaticGate(true), nil, false)

	_, err := h.svc.Arm(ctx, "", "dev-1", explicitSettings())
	require.NoError(t, err)
	_, err = h.svc.Activate(ctx, "", "dev-1")
	require.NoError(t, err)

	h.now = at(7, 0)
	h.trig.fireAll()

	require.Len(t, h.records.records, 1)
	assert.False(t, h.records.records[0].FiredEarly)
	assert.Equal(t, at(7, 0), *h.records.records[0].ActualFireTime)
}

func TestSmartWake_ActivateRequiresAuthorization(t *testing.T) {
	ctx := context.Background()
	h := newHarness(auth.StaticGate(false), nil, false)

	_, err := h.svc.Arm(ctx, "", "dev-1", explicitSettings())
	require.NoError(t, err)

	_, err = h.svc.Activate(ctx, "", "dev-1")
	assert.ErrorIs(t, err, auth.ErrNotAuthorized)

	st, err := h.svc.Status(ctx, "", "dev-1")
	require.NoError(t, err)
	assert.Equal(t, scheduler.StateArmed, st.State)
}

func TestSmartWake_UnknownSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(auth.StaticGate(true), nil, false)

	_, err := h.svc.Activate(ctx, "", "dev-x")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = h.svc.Cancel(ctx, "", "dev-x")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = h.svc.Reset(ctx, "", "dev-x")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = h.svc.Status(ctx, "", "dev-x")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// 没有会话的样本直接忽略
	assert.NoError(t, h.svc.Ingest(ctx, "", "dev-x", models.PhaseSample{Timestamp: at(6, 45), Phase: models.PhaseLight}))
}

func TestSmartWake_ArmFromStoredSettings(t *testing.T) {
	ctx := context.Background()
	window := 20
	settings := fakeSettingsStore{
		"dev-1": {TargetTime: "06:30", WindowMinutes: &window, Timezone: "UTC"},
	}
	h := newHarness(auth.StaticGate(true), settings, false)

	st, err := h.svc.Arm(ctx, "", "dev-1", nil)
	require.NoError(t, err)
	require.NotNil(t, st.Window)
	assert.Equal(t, at(6, 30), st.Window.HardDeadline)
	assert.Equal(t, at(6, 10), st.Window.EarliestFire)
	assert.True(t, st.SmartEnabled)

	_, err = h.svc.Arm(ctx, "", "dev-2", nil)
	assert.ErrorIs(t, err, ErrSettingsNotFound)
}

func TestSmartWake_ArmInvalidStoredSettings(t *testing.T) {
	settings := fakeSettingsStore{"dev-1": {TargetTime: "25:99"}}
	h := newHarness(auth.StaticGate(true), settings, false)

	_, err := h.svc.Arm(context.Background(), "", "dev-1", nil)
	assert.ErrorIs(t, err, scheduler.ErrInvalidSettings)
}

func TestSmartWake_CancelResetAndRearm(t *testing.T) {
	ctx := context.Background()
	h := newHarness(auth.StaticGate(true), nil, true)

	_, err := h.svc.Arm(ctx, "", "dev-1", explicitSettings())
	require.NoError(t, err)
	_, err = h.svc.Activate(ctx, "", "dev-1")
	require.NoError(t, err)

	st, err := h.svc.Cancel(ctx, "", "dev-1")
	require.NoError(t, err)
	assert.Equal(t, scheduler.StateCancelled, st.State)

	// EmitCancelled 时取消也会输出记录
	require.Len(t, h.records.records, 1)
	assert.True(t, h.records.records[0].Cancelled)
	assert.Nil(t, h.records.records[0].ActualFireTime)

	st, err = h.svc.Reset(ctx, "", "dev-1")
	require.NoError(t, err)
	assert.Equal(t, scheduler.StateIdle, st.State)
	assert.Equal(t, scheduler.StateIdle, h.cache.get("dev-1").State)

	// Reset 后会话被移除
	_, err = h.svc.Status(ctx, "", "dev-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0, h.sessionCount())

	st, err = h.svc.Arm(ctx, "", "dev-1", explicitSettings())
	require.NoError(t, err)
	assert.Equal(t, scheduler.StateArmed, st.State)
	assert.Equal(t, 1, h.sessionCount())
}

func TestSmartWake_ResetRequiresFinishedCycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(auth.StaticGate(true), nil, false)

	_, err := h.svc.Arm(ctx, "", "dev-1", explicitSettings())
	require.NoError(t, err)

	_, err = h.svc.Reset(ctx, "", "dev-1")
	assert.ErrorIs(t, err, scheduler.ErrInvalidState)
	assert.Equal(t, 1, h.sessionCount())
}

func TestSmartWake_SessionsEvictedAcrossDevices(t *testing.T) {
	ctx := context.Background()
	h := newHarness(auth.StaticGate(true), nil, false)

	for i := 0; i < 20; i++ {
		deviceID := fmt.Sprintf("dev-%d", i)
		_, err := h.svc.Arm(ctx, "", deviceID, explicitSettings())
		require.NoError(t, err)
		_, err = h.svc.Cancel(ctx, "", deviceID)
		require.NoError(t, err)
		_, err = h.svc.Reset(ctx, "", deviceID)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, h.sessionCount())
}

func TestSmartWake_SinkFailureDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(auth.StaticGate(true), nil, false)
	h.records.err = errors.New("db down")

	_, err := h.svc.Arm(ctx, "", "dev-1", explicitSettings())
	require.NoError(t, err)
	_, err = h.svc.Activate(ctx, "", "dev-1")
	require.NoError(t, err)
	h.ingest(t, "dev-1", at(6, 40), models.PhaseLight)

	assert.Empty(t, h.records.records)
	assert.Len(t, h.publisher.published, 1)
	assert.Equal(t, scheduler.StateFired, h.cache.get("dev-1").State)
}

func TestSmartWake_RecordsWithoutStore(t *testing.T) {
	ctx := context.Background()
	now := armTime
	svc := NewSmartWakeService(
		Options{TenantID: "tenant-1", Defaults: repository.SettingsDefaults{Location: time.UTC}},
		&fakeTrigger{},
		auth.StaticGate(true),
		zap.NewNop(),
		WithClock(func() time.Time { return now }),
	)

	records, err := svc.Records(ctx, "", "dev-1", 10)
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = svc.Arm(ctx, "", "dev-1", explicitSettings())
	require.NoError(t, err)
	_, err = svc.Activate(ctx, "", "dev-1")
	require.NoError(t, err)
	now = at(6, 50)
	require.NoError(t, svc.Ingest(ctx, "", "dev-1", models.PhaseSample{Timestamp: at(6, 50), Phase: models.PhaseLight}))

	records, err = svc.Records(ctx, "", "dev-1", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].FiredEarly)
}

func TestSmartWake_SampleAheadOfClockDoesNotFire(t *testing.T) {
	ctx := context.Background()
	h := newHarness(auth.StaticGate(true), nil, false)

	_, err := h.svc.Arm(ctx, "", "dev-1", explicitSettings())
	require.NoError(t, err)
	_, err = h.svc.Activate(ctx, "", "dev-1")
	require.NoError(t, err)

	h.now = armTime.Add(time.Hour)
	require.NoError(t, h.svc.Ingest(ctx, "", "dev-1", models.PhaseSample{Timestamp: at(6, 45), Phase: models.PhaseLight}))

	assert.Empty(t, h.records.records)
	st, err := h.svc.Status(ctx, "", "dev-1")
	require.NoError(t, err)
	assert.Equal(t, scheduler.StateMonitoring, st.State)
}

func TestSmartWake_ShutdownCancelsSessions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(auth.StaticGate(true), nil, false)

	_, err := h.svc.Arm(ctx, "", "dev-1", explicitSettings())
	require.NoError(t, err)
	_, err = h.svc.Activate(ctx, "", "dev-1")
	require.NoError(t, err)

	h.svc.Shutdown(ctx)

	st, err := h.svc.Status(ctx, "", "dev-1")
	require.NoError(t, err)
	assert.Equal(t, scheduler.StateCancelled, st.State)
}
