package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ScheduleJob is one persisted recurring job. CronExpression is always a
// 5-field expression in UTC; Metadata carries everything the tick handler
// needs to invoke the billing service.
type ScheduleJob struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Name           string         `gorm:"type:varchar(255);not null" json:"name"`
	CronExpression string         `gorm:"type:varchar(100);not null" json:"cron_expression"`
	Description    string         `gorm:"type:text" json:"description"`
	IsActive       bool           `gorm:"default:true" json:"is_active"`
	Metadata       datatypes.JSON `gorm:"type:jsonb;not null" json:"metadata"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (ScheduleJob) TableName() string {
	return "schedule_jobs"
}

type GetScheduleJobParam struct {
	IDs      []uint `json:"ids"`
	IsActive *bool  `json:"is_active"`
	Limit    *int   `json:"limit"`
}
