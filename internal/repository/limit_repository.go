package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"riskcore/internal/models"
)

// Ошибки репозитория лимитов
var (
	ErrLimitNotFound = errors.New("position limit not found")
	ErrLimitExists   = errors.New("position limit already exists for this scope")
)

// uniqueViolation - код ошибки Postgres "duplicate key value"
const uniqueViolation = "23505"

// LimitRepository - работа с таблицей position_limits.
//
// Реализует risk.LimitSource поверх Postgres.
type LimitRepository struct {
	db *sql.DB
}

// NewLimitRepository создает новый экземпляр репозитория
func NewLimitRepository(db *sql.DB) *LimitRepository {
	return &LimitRepository{db: db}
}

// Create создает лимит позиции
func (r *LimitRepository) Create(limit *models.PositionLimit) error {
	query := `
		INSERT INTO position_limits (tenant_id, scope, asset_id, strategy_id, limit_type, max_value, current_value, utilization_percent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	now := time.Now()
	limit.CreatedAt = now
	limit.UpdatedAt = now

	err := r.db.QueryRow(
		query,
		limit.TenantID,
		limit.Scope,
		limit.AssetID,
		limit.StrategyID,
		limit.LimitType,
		limit.MaxValue,
		limit.CurrentValue,
		limit.UtilizationPercent,
		limit.CreatedAt,
		limit.UpdatedAt,
	).Scan(&limit.ID)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return ErrLimitExists
		}
		return err
	}

	return nil
}

// GetLimit возвращает лимит по ID
func (r *LimitRepository) GetLimit(limitID int) (*models.PositionLimit, error) {
	query := `
		SELECT id, tenant_id, scope, asset_id, strategy_id, limit_type, max_value, current_value, utilization_percent, created_at, updated_at
		FROM position_limits
		WHERE id = $1`

	limit := &models.PositionLimit{}
	err := r.db.QueryRow(query, limitID).Scan(
		&limit.ID,
		&limit.TenantID,
		&limit.Scope,
		&limit.AssetID,
		&limit.StrategyID,
		&limit.LimitType,
		&limit.MaxValue,
		&limit.CurrentValue,
		&limit.UtilizationPercent,
		&limit.CreatedAt,
		&limit.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLimitNotFound
		}
		return nil, err
	}

	return limit, nil
}

// FindApplicableLimits возвращает лимиты, применимые к ордеру:
// ASSET лимиты инструмента, STRATEGY лимиты стратегии и все
// PORTFOLIO лимиты тенанта
func (r *LimitRepository) FindApplicableLimits(tenantID, assetID, strategyID string) ([]models.PositionLimit, error) {
	query := `
		SELECT id, tenant_id, scope, asset_id, strategy_id, limit_type, max_value, current_value, utilization_percent, created_at, updated_at
		FROM position_limits
		WHERE tenant_id = $1
		  AND (scope = 'PORTFOLIO'
		   OR (scope = 'ASSET' AND asset_id = $2)
		   OR (scope = 'STRATEGY' AND strategy_id = $3))
		ORDER BY id`

	rows, err := r.db.Query(query, tenantID, assetID, strategyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var limits []models.PositionLimit
	for rows.Next() {
		var limit models.PositionLimit
		err := rows.Scan(
			&limit.ID,
			&limit.TenantID,
			&limit.Scope,
			&limit.AssetID,
			&limit.StrategyID,
			&limit.LimitType,
			&limit.MaxValue,
			&limit.CurrentValue,
			&limit.UtilizationPercent,
			&limit.CreatedAt,
			&limit.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		limits = append(limits, limit)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return limits, nil
}

// GetByTenant возвращает все лимиты тенанта
func (r *LimitRepository) GetByTenant(tenantID string) ([]models.PositionLimit, error) {
	query := `
		SELECT id, tenant_id, scope, asset_id, strategy_id, limit_type, max_value, current_value, utilization_percent, created_at, updated_at
		FROM position_limits
		WHERE tenant_id = $1
		ORDER BY id`

	rows, err := r.db.Query(query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var limits []models.PositionLimit
	for rows.Next() {
		var limit models.PositionLimit
		err := rows.Scan(
			&limit.ID,
			&limit.TenantID,
			&limit.Scope,
			&limit.AssetID,
			&limit.StrategyID,
			&limit.LimitType,
			&limit.MaxValue,
			&limit.CurrentValue,
			&limit.UtilizationPercent,
			&limit.CreatedAt,
			&limit.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		limits = append(limits, limit)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return limits, nil
}

// UpdateCurrentValue обновляет текущее значение лимита.
//
// Утилизация пересчитывается на стороне БД и ограничивается 100:
// значение выше потолка остаётся breach'ем, но утилизация не уходит
// за шкалу.
func (r *LimitRepository) UpdateCurrentValue(limitID int, currentValue float64) error {
	query := `
		UPDATE position_limits
		SET current_value = $1,
		    utilization_percent = LEAST($1 / NULLIF(max_value, 0) * 100, 100),
		    updated_at = $2
		WHERE id = $3`

	result, err := r.db.Exec(query, currentValue, time.Now(), limitID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrLimitNotFound
	}

	return nil
}

// UpdateMaxValue обновляет потолок лимита
func (r *LimitRepository) UpdateMaxValue(limitID int, maxValue float64) error {
	query := `
		UPDATE position_limits
		SET max_value = $1, updated_at = $2
		WHERE id = $3`

	result, err := r.db.Exec(query, maxValue, time.Now(), limitID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrLimitNotFound
	}

	return nil
}

// Delete удаляет лимит
func (r *LimitRepository) Delete(limitID int) error {
	query := `DELETE FROM position_limits WHERE id = $1`

	result, err := r.db.Exec(query, limitID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrLimitNotFound
	}

	return nil
}

// CountByTenant возвращает количество лимитов тенанта
func (r *LimitRepository) CountByTenant(tenantID string) (int, error) {
	query := `SELECT COUNT(*) FROM position_limits WHERE tenant_id = $1`

	var count int
	err := r.db.QueryRow(query, tenantID).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}
