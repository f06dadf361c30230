// Package activity appends best-effort activity log entries.
package activity

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActivityLog struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	Actor      string            `gorm:"type:text;not null"`
	Action     string            `gorm:"type:text;not null;index"`
	EntityType string            `gorm:"type:text;not null"`
	EntityID   snowflake.ID      `gorm:"not null;index"`
	Detail     datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ActivityLog) TableName() string { return "activity_logs" }

type Service interface {
	Record(ctx context.Context, actor, action, entityType string, entityID snowflake.ID, detail map[string]any)
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) Service {
	return &service{
		db:    p.DB,
		log:   p.Log.Named("activity.service"),
		genID: p.GenID,
	}
}

// Record never fails the caller; a lost activity row is a log line.
func (s *service) Record(ctx context.Context, actor, action, entityType string, entityID snowflake.ID, detail map[string]any) {
	entry := ActivityLog{
		ID:         s.genID.Generate(),
		Actor:      actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     datatypes.JSONMap(detail),
		CreatedAt:  time.Now().UTC(),
	}
	if entry.Detail == nil {
		entry.Detail = datatypes.JSONMap{}
	}

	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.log.Warn("activity log write failed",
			zap.String("action", action),
			zap.String("entity_id", entityID.String()),
			zap.Error(err),
		)
	}
}

var Module = fx.Module("activity",
	fx.Provide(NewService),
)
