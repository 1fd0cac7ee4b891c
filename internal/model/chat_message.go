package model

import "time"

type ChatRole string

const (
	ChatRoleUser   ChatRole = "user"
	ChatRoleAI     ChatRole = "ai"
	ChatRoleSystem ChatRole = "system"
)

// ChatMessage is one entry of a data-chat transcript. Transcripts live in
// memory only.
type ChatMessage struct {
	ID           string      `json:"id"`
	Content      string      `json:"content"`
	Type         ChatRole    `json:"type"`
	Timestamp    time.Time   `json:"timestamp"`
	DataSourceID string      `json:"dataSourceId,omitempty"`
	Analysis     interface{} `json:"analysis,omitempty"`
}
