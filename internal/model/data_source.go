package model

import "time"

type DataSourceType string

const (
	DataSourceCSV      DataSourceType = "csv"
	DataSourceJSON     DataSourceType = "json"
	DataSourceExcel    DataSourceType = "excel"
	DataSourceDatabase DataSourceType = "database"
)

type DataSourceStatus string

const (
	DataSourceProcessing DataSourceStatus = "processing"
	DataSourceReady      DataSourceStatus = "ready"
	DataSourceError      DataSourceStatus = "error"
)

// DataSource is an uploaded file plus the metadata derived from it.
// Records are never mutated after they are persisted.
type DataSource struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Type        DataSourceType   `json:"type"`
	Size        int64            `json:"size"`
	UploadedAt  time.Time        `json:"uploadedAt"`
	Status      DataSourceStatus `json:"status"`
	RecordCount *int             `json:"recordCount,omitempty"`
	Columns     []string         `json:"columns,omitempty"`
	Description string           `json:"description,omitempty"`
	FileURL     string           `json:"fileUrl,omitempty"`
	UserID      uint             `json:"userId"`
}

func (d DataSource) Records() int {
	if d.RecordCount == nil {
		return 0
	}
	return *d.RecordCount
}
