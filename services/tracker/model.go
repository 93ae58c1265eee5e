package tracker

import (
	"time"

	"gorm.io/datatypes"
)

type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
	RunStatusSkipped RunStatus = "skipped"
)

// Run is the execution record of one tracking run. Metadata holds the final
// Report.
type Run struct {
	ID         string         `gorm:"column:id;primaryKey;type:varchar(32)"`
	Trigger    string         `gorm:"column:triggered_by;type:varchar(50)"`
	Status     RunStatus      `gorm:"column:status;type:varchar(20);not null;default:'running';index"`
	StopReason StopReason     `gorm:"column:stop_reason;type:varchar(20)"`
	ErrorMsg   string         `gorm:"column:error_msg;type:text"`
	StartedAt  *time.Time     `gorm:"column:started_at"`
	FinishedAt *time.Time     `gorm:"column:finished_at"`
	Metadata   datatypes.JSON `gorm:"column:metadata"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Run) TableName() string {
	return "tracking_runs"
}
