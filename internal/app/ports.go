package app

import (
	"context"

	"datasteward/internal/extract"
	"datasteward/internal/model"
)

type Extractor interface {
	FromBlob(ctx context.Context, name string, data []byte, opts extract.Options) (*extract.Result, error)
	FromURL(ctx context.Context, url string, opts extract.Options) (*extract.Result, error)
}

type ActivityPublisher interface {
	Publish(ctx context.Context, activity model.Activity) error
}

type ActivityLister interface {
	ListRecentByUserID(userID uint, limit int) ([]model.Activity, error)
}
