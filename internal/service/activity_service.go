package service

import (
	"context"

	"github.com/sahasand/site-tracker/internal/model"
	"github.com/sahasand/site-tracker/internal/repository"
)

const (
	DefaultActivityLimit = 50
	MaxActivityLimit     = 500
)

// ActivityService serves a site's activation timeline, written by the
// worker from milestone.updated events.
type ActivityService struct {
	sites    repository.SiteStore
	activity repository.ActivityStore
}

func NewActivityService(sites repository.SiteStore, activity repository.ActivityStore) *ActivityService {
	return &ActivityService{sites: sites, activity: activity}
}

// ForSite returns the newest entries first.
func (s *ActivityService) ForSite(ctx context.Context, siteID string, limit int) ([]model.MilestoneActivity, error) {
	switch {
	case limit <= 0:
		limit = DefaultActivityLimit
	case limit > MaxActivityLimit:
		limit = MaxActivityLimit
	}
	if _, err := s.sites.GetSite(ctx, siteID); err != nil {
		return nil, storeErr(err, "get site")
	}
	out, err := s.activity.ListActivity(ctx, siteID, limit)
	if err != nil {
		return nil, storeErr(err, "list activity")
	}
	return out, nil
}
