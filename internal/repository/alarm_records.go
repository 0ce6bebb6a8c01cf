package repository

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-smartwake/internal/models"

	"go.uber.org/zap"
)

// AlarmRecordRepository 唤醒记录仓库（smart_wake_records 表）
type AlarmRecordRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlarmRecordRepository 创建唤醒记录仓库
func NewAlarmRecordRepository(db *sql.DB, logger *zap.Logger) *AlarmRecordRepository {
	return &AlarmRecordRepository{
		db:     db,
		logger: logger,
	}
}

// CreateAlarmRecord 写入一条唤醒记录
func (r *AlarmRecordRepository) CreateAlarmRecord(ctx context.Context, record *models.AlarmRecord) error {
	if record.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if record.RecordID == "" {
		return fmt.Errorf("record_id is required")
	}

	query := `
		INSERT INTO smart_wake_records (
			record_id,
			tenant_id,
			device_id,
			bedtime,
			target_time,
			actual_fire_time,
			score,
			fired_early,
			cancelled,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	var fireTime interface{}
	if record.ActualFireTime != nil {
		fireTime = *record.ActualFireTime
	}

	_, err := r.db.ExecContext(ctx, query,
		record.RecordID,
		record.TenantID,
		record.DeviceID,
		record.Bedtime,
		record.TargetTime,
		fireTime,
		record.Score,
		record.FiredEarly,
		record.Cancelled,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert smart_wake_record: %w", err)
	}

	r.logger.Debug("Smart wake record stored",
		zap.String("record_id", record.RecordID),
		zap.String("device_id", record.DeviceID),
	)
	return nil
}

// GetAlarmRecord 查询单条唤醒记录
func (r *AlarmRecordRepository) GetAlarmRecord(ctx context.Context, tenantID, recordID string) (*models.AlarmRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}

	query := `
		SELECT
			record_id,
			tenant_id,
			device_id,
			bedtime,
			target_time,
			actual_fire_time,
			score,
			fired_early,
			cancelled,
			created_at
		FROM smart_wake_records
		WHERE record_id = $1 AND tenant_id = $2
	`

	record, err := scanAlarmRecord(r.db.QueryRowContext(ctx, query, recordID, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("smart wake record not found: %s", recordID)
		}
		return nil, fmt.Errorf("failed to query smart_wake_record: %w", err)
	}
	return record, nil
}

// ListAlarmRecords 查询设备最近的唤醒记录（按创建时间倒序）
func (r *AlarmRecordRepository) ListAlarmRecords(ctx context.Context, tenantID, deviceID string, limit int) ([]*models.AlarmRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `
		SELECT
			record_id,
			tenant_id,
			device_id,
			bedtime,
			target_time,
			actual_fire_time,
			score,
			fired_early,
			cancelled,
			created_at
		FROM smart_wake_records
		WHERE tenant_id = $1 AND device_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query smart_wake_records: %w", err)
	}
	defer rows.Close()

	var records []*models.AlarmRecord
	for rows.Next() {
		record, err := scanAlarmRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan smart_wake_record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate smart_wake_records: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlarmRecord(row rowScanner) (*models.AlarmRecord, error) {
	var record models.AlarmRecord
	var fireTime sql.NullTime
	err := row.Scan(
		&record.RecordID,
		&record.TenantID,
		&record.DeviceID,
		&record.Bedtime,
		&record.TargetTime,
		&fireTime,
		&record.Score,
		&record.FiredEarly,
		&record.Cancelled,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if fireTime.Valid {
		t := fireTime.Time
		record.ActualFireTime = &t
	}
	return &record, nil
}
