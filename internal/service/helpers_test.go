package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sahasand/site-tracker/internal/model"
	"github.com/sahasand/site-tracker/internal/pipeline"
	"github.com/sahasand/site-tracker/internal/repository"
	"github.com/sahasand/site-tracker/pkg/outbox"
)

var now = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

type fixture struct {
	mem    *repository.MemoryStore
	outbox *outbox.MemoryStore
	stores repository.Stores
	log    *zap.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ob := outbox.NewMemoryStore()
	mem := repository.NewMemoryStore().WithOutbox(ob).WithClock(clock)
	return &fixture{mem: mem, outbox: ob, stores: mem.Stores(), log: zap.NewNop()}
}

func (f *fixture) study(t *testing.T, name string) *model.Study {
	t.Helper()
	st, err := f.mem.CreateStudy(context.Background(), model.CreateStudyInput{
		Name:           name,
		ProtocolNumber: "P-" + name,
		Phase:          model.PhaseII,
	})
	require.NoError(t, err)
	return st
}

func (f *fixture) site(t *testing.T, studyID, number string) model.SiteWithMilestones {
	t.Helper()
	out, err := f.mem.CreateSites(context.Background(), []model.CreateSiteInput{{
		StudyID:               studyID,
		SiteNumber:            number,
		Name:                  "Site " + number,
		PrincipalInvestigator: "Dr. A",
		Country:               "Germany",
		TargetEnrollment:      20,
	}})
	require.NoError(t, err)
	return out[0]
}

// setMilestone writes a milestone directly and backdates its stage clock.
func (f *fixture) setMilestone(t *testing.T, site model.SiteWithMilestones, mt model.MilestoneType, status model.MilestoneStatus, updated time.Time) {
	t.Helper()
	m := model.FindMilestone(site.Milestones, mt)
	require.NotNil(t, m)
	in := model.InputFrom(*m)
	in.Status = status
	if status == model.MilestoneCompleted {
		d := updated
		in.ActualDate = &d
	}
	_, err := f.mem.UpdateMilestone(context.Background(), m.ID, in, repository.SourceEdit)
	require.NoError(t, err)
	require.NoError(t, f.mem.SetMilestoneUpdatedAt(m.ID, updated))

	fresh, err := f.mem.GetSite(context.Background(), site.ID)
	require.NoError(t, err)
	derived := pipeline.RecomputeSiteStatus(fresh.Milestones)
	_, err = f.mem.UpdateSite(context.Background(), site.ID, model.UpdateSiteInput{Status: &derived})
	require.NoError(t, err)
}

func (f *fixture) completeThrough(t *testing.T, site model.SiteWithMilestones, last model.MilestoneType, at time.Time) {
	t.Helper()
	for _, mt := range model.MilestoneOrder {
		f.setMilestone(t, site, mt, model.MilestoneCompleted, at)
		if mt == last {
			return
		}
	}
}

// failingMilestones fails updates of the listed milestone ids.
type failingMilestones struct {
	repository.MilestoneStore
	fail map[string]bool
}

var errWriteFailed = errors.New("write failed")

func (f *failingMilestones) UpdateMilestone(ctx context.Context, id string, in model.UpdateMilestoneInput, source string) (*model.Milestone, error) {
	if f.fail[id] {
		return nil, errWriteFailed
	}
	return f.MilestoneStore.UpdateMilestone(ctx, id, in, source)
}

// failingStatusWrites fails every site update, so milestone writes land
// but the derived status never does.
type failingStatusWrites struct {
	repository.SiteStore
}

var errSiteWriteFailed = errors.New("site write failed")

func (f *failingStatusWrites) UpdateSite(context.Context, string, model.UpdateSiteInput) (*model.Site, error) {
	return nil, errSiteWriteFailed
}

// missingMilestone hides one milestone type of the listed sites.
type missingMilestone struct {
	repository.SiteStore
	siteID string
	hide   model.MilestoneType
}

func (m *missingMilestone) GetSite(ctx context.Context, id string) (*model.SiteWithMilestones, error) {
	s, err := m.SiteStore.GetSite(ctx, id)
	if err != nil || id != m.siteID {
		return s, err
	}
	kept := s.Milestones[:0]
	for _, ms := range s.Milestones {
		if ms.MilestoneType != m.hide {
			kept = append(kept, ms)
		}
	}
	s.Milestones = kept
	return s, nil
}

func daysAgo(n int) time.Time {
	return now.Add(-time.Duration(n) * 24 * time.Hour)
}
