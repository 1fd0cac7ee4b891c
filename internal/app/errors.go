package app

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUsernameExists    = errors.New("username already exists")
	ErrEmailExists       = errors.New("email already exists")
	ErrInvalidCredential = errors.New("invalid username or password")
	ErrAuthRequired      = errors.New("authentication required")

	ErrUpload             = errors.New("upload failed")
	ErrExtraction         = errors.New("content extraction failed")
	ErrAnalysis           = errors.New("data analysis failed")
	ErrPersistence        = errors.New("data source persistence failed")
	ErrDataSourceNotFound = errors.New("data source not found")

	ErrAIRequest        = errors.New("ai request failed")
	ErrNoSelection      = errors.New("no data source selected")
	ErrSelectionChanged = errors.New("data source selection changed")

	ErrChannelNotFound = errors.New("channel not found")
	ErrNoChannel       = errors.New("no channel joined")
	ErrSessionClosed   = errors.New("session closed")
)
