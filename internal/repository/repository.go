// Package repository persists studies, sites, milestones, performance
// rollups and the activity log, in PostgreSQL or in memory.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sahasand/site-tracker/internal/model"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is a second site with the same number in one study.
	ErrDuplicate = errors.New("duplicate record")
)

// Milestone write sources carried on milestone.updated events.
const (
	SourceEdit = "edit"
	SourceMove = "move"
	SourceBulk = "bulk"
)

type StudyStore interface {
	CreateStudy(ctx context.Context, in model.CreateStudyInput) (*model.Study, error)
	GetStudy(ctx context.Context, id string) (*model.Study, error)
	// ListStudies returns newest first; an empty status means all.
	ListStudies(ctx context.Context, status model.StudyStatus) ([]model.Study, error)
	UpdateStudy(ctx context.Context, id string, in model.UpdateStudyInput) (*model.Study, error)
	// DeleteStudy cascades to the study's sites and milestones.
	DeleteStudy(ctx context.Context, id string) error
}

type SiteStore interface {
	// CreateSites creates each site with its eight pending milestones,
	// all or nothing.
	CreateSites(ctx context.Context, in []model.CreateSiteInput) ([]model.SiteWithMilestones, error)
	GetSite(ctx context.Context, id string) (*model.SiteWithMilestones, error)
	// ListSitesByStudy orders sites by site number, numerically aware.
	ListSitesByStudy(ctx context.Context, studyID string) ([]model.SiteWithMilestones, error)
	UpdateSite(ctx context.Context, id string, in model.UpdateSiteInput) (*model.Site, error)
	DeleteSite(ctx context.Context, id string) error
}

type MilestoneStore interface {
	GetMilestone(ctx context.Context, id string) (*model.Milestone, error)
	// UpdateMilestone replaces the mutable fields and queues a
	// milestone.updated event in the same write.
	UpdateMilestone(ctx context.Context, id string, in model.UpdateMilestoneInput, source string) (*model.Milestone, error)
}

type PerformanceFilter struct {
	StudyID string
	SiteID  string
}

type PerformanceStore interface {
	ListPerformance(ctx context.Context, f PerformanceFilter) ([]model.PerformanceMetric, error)
}

type ActivityStore interface {
	// AppendActivity ignores an entry whose event id was already stored.
	AppendActivity(ctx context.Context, a *model.MilestoneActivity) (bool, error)
	ListActivity(ctx context.Context, siteID string, limit int) ([]model.MilestoneActivity, error)
}

// Stores bundles one implementation of every store.
type Stores struct {
	Studies     StudyStore
	Sites       SiteStore
	Milestones  MilestoneStore
	Performance PerformanceStore
	Activity    ActivityStore
}

// translate maps driver errors onto the package sentinels.
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%s: %w", what, ErrDuplicate)
	}
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}
