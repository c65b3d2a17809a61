package repository

import (
	"database/sql"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"

	"riskcore/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Ошибки репозитория риск-событий
var (
	ErrRiskEventNotFound = errors.New("risk event not found")
)

// RiskEventRepository - работа с таблицей risk_events.
//
// Журнал append-only: события пишутся callback'ом риск-ядра и
// читаются API. Метаданные хранятся как JSONB.
type RiskEventRepository struct {
	db *sql.DB
}

// NewRiskEventRepository создает новый экземпляр репозитория
func NewRiskEventRepository(db *sql.DB) *RiskEventRepository {
	return &RiskEventRepository{db: db}
}

// Insert записывает риск-событие в журнал
func (r *RiskEventRepository) Insert(event *models.RiskEvent) error {
	query := `
		INSERT INTO risk_events (tenant_id, event_type, severity, strategy_id, asset_id, description, trigger_condition, action_taken, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	var metadata []byte
	if event.Metadata != nil {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return err
		}
	}

	err := r.db.QueryRow(
		query,
		event.TenantID,
		event.EventType,
		event.Severity,
		event.StrategyID,
		event.AssetID,
		event.Description,
		event.TriggerCondition,
		event.ActionTaken,
		metadata,
		event.CreatedAt,
	).Scan(&event.ID)

	if err != nil {
		return err
	}

	return nil
}

// GetByID возвращает событие по ID
func (r *RiskEventRepository) GetByID(id int) (*models.RiskEvent, error) {
	query := `
		SELECT id, tenant_id, event_type, severity, strategy_id, asset_id, description, trigger_condition, action_taken, metadata, created_at
		FROM risk_events
		WHERE id = $1`

	event := &models.RiskEvent{}
	var metadata []byte
	err := r.db.QueryRow(query, id).Scan(
		&event.ID,
		&event.TenantID,
		&event.EventType,
		&event.Severity,
		&event.StrategyID,
		&event.AssetID,
		&event.Description,
		&event.TriggerCondition,
		&event.ActionTaken,
		&metadata,
		&event.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRiskEventNotFound
		}
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
			return nil, err
		}
	}

	return event, nil
}

// GetRecent возвращает последние N событий тенанта
func (r *RiskEventRepository) GetRecent(tenantID string, limit int) ([]*models.RiskEvent, error) {
	query := `
		SELECT id, tenant_id, event_type, severity, strategy_id, asset_id, description, trigger_condition, action_taken, metadata, created_at
		FROM risk_events
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(query, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRiskEvents(rows)
}

// GetBySeverity возвращает события тенанта с указанной важностью
func (r *RiskEventRepository) GetBySeverity(tenantID, severity string, limit int) ([]*models.RiskEvent, error) {
	query := `
		SELECT id, tenant_id, event_type, severity, strategy_id, asset_id, description, trigger_condition, action_taken, metadata, created_at
		FROM risk_events
		WHERE tenant_id = $1 AND severity = $2
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := r.db.Query(query, tenantID, severity, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRiskEvents(rows)
}

// CountBySeverity возвращает количество событий тенанта по важности
// за период
func (r *RiskEventRepository) CountBySeverity(tenantID, severity string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM risk_events
		WHERE tenant_id = $1 AND severity = $2 AND created_at >= $3`

	var count int
	err := r.db.QueryRow(query, tenantID, severity, since).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// DeleteOlderThan удаляет события старше указанной даты
func (r *RiskEventRepository) DeleteOlderThan(timestamp time.Time) (int64, error) {
	query := `DELETE FROM risk_events WHERE created_at < $1`

	result, err := r.db.Exec(query, timestamp)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func scanRiskEvents(rows *sql.Rows) ([]*models.RiskEvent, error) {
	var events []*models.RiskEvent
	for rows.Next() {
		event := &models.RiskEvent{}
		var metadata []byte
		err := rows.Scan(
			&event.ID,
			&event.TenantID,
			&event.EventType,
			&event.Severity,
			&event.StrategyID,
			&event.AssetID,
			&event.Description,
			&event.TriggerCondition,
			&event.ActionTaken,
			&metadata,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, err
			}
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}
