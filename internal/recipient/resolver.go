package recipient

import (
	"context"
	"errors"
	"fmt"

	"github.com/frankss230/AFE-PLUS.2-sub001/internal/models"

	"go.uber.org/zap"
)

// Store 收件人查询
type Store interface {
	// CaregiverAddress 被监护人绑定的照护人通知地址；无绑定或无地址时返回 models.ErrRecipientNotFound
	CaregiverAddress(ctx context.Context, dependentID string) (*models.Recipient, error)
	// FallbackAdminAddress 最早创建且启用、有通知地址的管理员；没有时返回 models.ErrRecipientNotFound
	FallbackAdminAddress(ctx context.Context) (*models.Recipient, error)
}

// Resolver 收件人解析：优先照护人，其次管理员兜底
type Resolver struct {
	store  Store
	logger *zap.Logger
}

// NewResolver 创建收件人解析器
func NewResolver(store Store, logger *zap.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// Resolve 解析被监护人的通知收件人；两级都找不到时返回 models.ErrRecipientNotFound
func (r *Resolver) Resolve(ctx context.Context, dependentID string) (*models.Recipient, error) {
	rcpt, err := r.store.CaregiverAddress(ctx, dependentID)
	if err == nil {
		return rcpt, nil
	}
	if !errors.Is(err, models.ErrRecipientNotFound) {
		return nil, fmt.Errorf("failed to resolve caregiver: %w", err)
	}

	rcpt, err = r.store.FallbackAdminAddress(ctx)
	if err != nil {
		if errors.Is(err, models.ErrRecipientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to resolve fallback admin: %w", err)
	}

	r.logger.Info("No caregiver address, falling back to admin",
		zap.String("dependent_id", dependentID),
		zap.String("admin_id", rcpt.OwnerID),
	)
	return rcpt, nil
}
