package model

import "time"

const (
	ActivityDataSourceAdded   = "datasource.added"
	ActivityDataSourceRemoved = "datasource.removed"
	ActivityReportGenerated   = "report.generated"
)

type Activity struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Kind      string    `gorm:"size:64;not null;index" json:"kind"`
	Subject   string    `gorm:"size:256;not null" json:"subject"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
