package app

import (
	"context"
	"errors"
	"log"

	"datasteward/internal/model"
)

const recentActivityLimit = 20

type Dashboard struct {
	DataSources    int                          `json:"dataSources"`
	TotalRecords   int                          `json:"totalRecords"`
	ByType         map[model.DataSourceType]int `json:"byType"`
	Degraded       bool                         `json:"degraded"`
	RecentActivity []model.Activity             `json:"recentActivity"`
}

type DashboardService struct {
	catalog    *CatalogService
	activities ActivityLister
}

func NewDashboardService(catalog *CatalogService, activities ActivityLister) *DashboardService {
	return &DashboardService{catalog: catalog, activities: activities}
}

// Summary aggregates the user's catalog and recent activity. Either part
// failing degrades the result instead of failing it.
func (s *DashboardService) Summary(ctx context.Context, userID uint) (Dashboard, error) {
	out := Dashboard{
		ByType:         map[model.DataSourceType]int{},
		RecentActivity: []model.Activity{},
	}

	sources, err := s.catalog.Load(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrPersistence) {
			return Dashboard{}, err
		}
		out.Degraded = true
	}
	out.DataSources = len(sources)
	for _, src := range sources {
		out.TotalRecords += src.Records()
		out.ByType[src.Type]++
	}

	if s.activities != nil {
		recent, err := s.activities.ListRecentByUserID(userID, recentActivityLimit)
		if err != nil {
			log.Printf("list recent activity failed, user=%d: %v", userID, err)
			out.Degraded = true
		} else if recent != nil {
			out.RecentActivity = recent
		}
	}
	return out, nil
}
