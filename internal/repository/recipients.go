package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/frankss230/AFE-PLUS.2-sub001/internal/models"

	"go.uber.org/zap"
)

// RecipientRepository 通知收件人查询
type RecipientRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRecipientRepository 创建收件人仓库
func NewRecipientRepository(db *sql.DB, logger *zap.Logger) *RecipientRepository {
	return &RecipientRepository{
		db:     db,
		logger: logger,
	}
}

// CaregiverAddress 被监护人绑定照护人的 LINE 地址
func (r *RecipientRepository) CaregiverAddress(ctx context.Context, dependentID string) (*models.Recipient, error) {
	query := `
		SELECT c.caregiver_id, c.line_user_id
		FROM dependents d
		JOIN caregivers c ON c.caregiver_id = d.caregiver_id
		WHERE d.dependent_id = $1
		  AND c.line_user_id IS NOT NULL
		  AND c.line_user_id <> ''
	`

	var rcpt models.Recipient
	err := r.db.QueryRowContext(ctx, query, dependentID).Scan(&rcpt.OwnerID, &rcpt.Address)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrRecipientNotFound
		}
		return nil, fmt.Errorf("failed to get caregiver address: %w", err)
	}
	rcpt.Source = models.RecipientCaregiver
	return &rcpt, nil
}

// FallbackAdminAddress 最早创建的启用管理员的 LINE 地址
func (r *RecipientRepository) FallbackAdminAddress(ctx context.Context) (*models.Recipient, error) {
	query := `
		SELECT admin_id, line_user_id
		FROM admins
		WHERE is_active = TRUE
		  AND line_user_id IS NOT NULL
		  AND line_user_id <> ''
		ORDER BY created_at ASC, admin_id ASC
		LIMIT 1
	`

	var rcpt models.Recipient
	err := r.db.QueryRowContext(ctx, query).Scan(&rcpt.OwnerID, &rcpt.Address)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrRecipientNotFound
		}
		return nil, fmt.Errorf("failed to get fallback admin address: %w", err)
	}
	rcpt.Source = models.RecipientAdmin
	return &rcpt, nil
}
