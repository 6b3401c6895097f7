package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	contracts "github.com/sahasand/site-tracker/contracts/mq"
	"github.com/sahasand/site-tracker/internal/model"
	"github.com/sahasand/site-tracker/pkg/outbox"
)

// MemoryStore keeps everything in maps behind one mutex. It backs the
// "memory" storage driver and the service tests. Returned values are
// copies; callers never alias stored state.
type MemoryStore struct {
	mu sync.RWMutex

	studies     map[string]model.Study
	sites       map[string]model.Site
	milestones  map[string]model.Milestone
	performance []model.PerformanceMetric
	activity    []model.MilestoneActivity
	seenEvents  map[string]struct{}

	outbox *outbox.MemoryStore
	now    func() time.Time
	seq    int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		studies:    make(map[string]model.Study),
		sites:      make(map[string]model.Site),
		milestones: make(map[string]model.Milestone),
		seenEvents: make(map[string]struct{}),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithOutbox queues site.created and milestone.updated events in ob.
func (s *MemoryStore) WithOutbox(ob *outbox.MemoryStore) *MemoryStore {
	s.outbox = ob
	return s
}

// WithClock replaces the time source used for created_at and updated_at.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Stores exposes s through every store interface.
func (s *MemoryStore) Stores() Stores {
	return Stores{
		Studies:     s,
		Sites:       s,
		Milestones:  s,
		Performance: s,
		Activity:    s,
	}
}

func (s *MemoryStore) queue(ctx context.Context, aggregateID, routingKey string, payload any) error {
	if s.outbox == nil {
		return nil
	}
	e, err := outbox.SiteEvent(aggregateID, routingKey, payload)
	if err != nil {
		return err
	}
	return s.outbox.Append(ctx, e)
}

func notFound(what, id string) error {
	return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
}

// Studies

func (s *MemoryStore) CreateStudy(_ context.Context, in model.CreateStudyInput) (*model.Study, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	st := model.Study{
		ID:                  uuid.NewString(),
		Name:                in.Name,
		ProtocolNumber:      in.ProtocolNumber,
		SponsorName:         in.SponsorName,
		Phase:               in.Phase,
		Status:              model.StudyActive,
		TargetEnrollment:    in.TargetEnrollment,
		EnrollmentStartDate: in.EnrollmentStartDate,
		PlannedEndDate:      in.PlannedEndDate,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	s.studies[st.ID] = st
	return &st, nil
}

func (s *MemoryStore) GetStudy(_ context.Context, id string) (*model.Study, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.studies[id]
	if !ok {
		return nil, notFound("study", id)
	}
	return &st, nil
}

func (s *MemoryStore) ListStudies(_ context.Context, status model.StudyStatus) ([]model.Study, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.Study{}
	for _, st := range s.studies {
		if status == "" || st.Status == status {
			out = append(out, st)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) UpdateStudy(_ context.Context, id string, in model.UpdateStudyInput) (*model.Study, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.studies[id]
	if !ok {
		return nil, notFound("study", id)
	}
	in.Apply(&st)
	st.UpdatedAt = s.now()
	s.studies[id] = st
	return &st, nil
}

func (s *MemoryStore) DeleteStudy(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.studies[id]; !ok {
		return notFound("study", id)
	}
	delete(s.studies, id)
	for siteID, site := range s.sites {
		if site.StudyID == id {
			s.deleteSiteLocked(siteID)
		}
	}
	return nil
}

// Sites

func (s *MemoryStore) CreateSites(ctx context.Context, in []model.CreateSiteInput) ([]model.SiteWithMilestones, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// validate the whole batch first so a failure writes nothing
	taken := make(map[string]struct{})
	for _, site := range s.sites {
		taken[site.StudyID+"\x00"+strings.ToLower(site.SiteNumber)] = struct{}{}
	}
	for _, c := range in {
		if _, ok := s.studies[c.StudyID]; !ok {
			return nil, notFound("study", c.StudyID)
		}
		key := c.StudyID + "\x00" + strings.ToLower(c.SiteNumber)
		if _, dup := taken[key]; dup {
			return nil, fmt.Errorf("site number %q: %w", c.SiteNumber, ErrDuplicate)
		}
		taken[key] = struct{}{}
	}

	now := s.now()
	out := make([]model.SiteWithMilestones, 0, len(in))
	for _, c := range in {
		site := model.Site{
			ID:                    uuid.NewString(),
			StudyID:               c.StudyID,
			SiteNumber:            c.SiteNumber,
			Name:                  c.Name,
			PrincipalInvestigator: c.PrincipalInvestigator,
			Country:               c.Country,
			Region:                c.Region,
			Status:                model.SitePlanned,
			TargetEnrollment:      c.TargetEnrollment,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		s.sites[site.ID] = site
		ms := model.NewMilestones(site.ID, uuid.NewString, now)
		for _, m := range ms {
			s.milestones[m.ID] = m
		}
		if err := s.queue(ctx, site.ID, contracts.RoutingKeySiteCreated, siteCreatedEvent(ctx, site)); err != nil {
			return nil, err
		}
		out = append(out, model.SiteWithMilestones{Site: site, Milestones: ms})
	}
	return out, nil
}

func (s *MemoryStore) milestonesOfLocked(siteID string) []model.Milestone {
	var ms []model.Milestone
	for _, m := range s.milestones {
		if m.SiteID == siteID {
			ms = append(ms, m)
		}
	}
	model.SortMilestones(ms)
	return ms
}

func (s *MemoryStore) GetSite(_ context.Context, id string) (*model.SiteWithMilestones, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[id]
	if !ok {
		return nil, notFound("site", id)
	}
	return &model.SiteWithMilestones{Site: site, Milestones: s.milestonesOfLocked(id)}, nil
}

func (s *MemoryStore) ListSitesByStudy(_ context.Context, studyID string) ([]model.SiteWithMilestones, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.SiteWithMilestones{}
	for _, site := range s.sites {
		if site.StudyID == studyID {
			out = append(out, model.SiteWithMilestones{Site: site, Milestones: s.milestonesOfLocked(site.ID)})
		}
	}
	model.SortSiteViews(out)
	return out, nil
}

func (s *MemoryStore) UpdateSite(_ context.Context, id string, in model.UpdateSiteInput) (*model.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[id]
	if !ok {
		return nil, notFound("site", id)
	}
	if in.SiteNumber != nil && !strings.EqualFold(*in.SiteNumber, site.SiteNumber) {
		for otherID, other := range s.sites {
			if otherID != id && other.StudyID == site.StudyID && strings.EqualFold(other.SiteNumber, *in.SiteNumber) {
				return nil, fmt.Errorf("site number %q: %w", *in.SiteNumber, ErrDuplicate)
			}
		}
	}
	in.Apply(&site)
	site.UpdatedAt = s.now()
	s.sites[id] = site
	return &site, nil
}

func (s *MemoryStore) DeleteSite(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[id]; !ok {
		return notFound("site", id)
	}
	s.deleteSiteLocked(id)
	return nil
}

func (s *MemoryStore) deleteSiteLocked(id string) {
	delete(s.sites, id)
	for mid, m := range s.milestones {
		if m.SiteID == id {
			delete(s.milestones, mid)
		}
	}
}

// Milestones

func (s *MemoryStore) GetMilestone(_ context.Context, id string) (*model.Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.milestones[id]
	if !ok {
		return nil, notFound("milestone", id)
	}
	return &m, nil
}

func (s *MemoryStore) UpdateMilestone(ctx context.Context, id string, in model.UpdateMilestoneInput, source string) (*model.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before, ok := s.milestones[id]
	if !ok {
		return nil, notFound("milestone", id)
	}

	after := before
	after.Status = in.Status
	after.PlannedDate = in.PlannedDate
	after.ActualDate = in.ActualDate
	after.Notes = in.Notes
	after.UpdatedAt = s.now()
	s.milestones[id] = after

	studyID := s.sites[after.SiteID].StudyID
	if err := s.queue(ctx, after.SiteID, contracts.RoutingKeyMilestoneUpdated,
		milestoneUpdatedEvent(ctx, studyID, before, after, source)); err != nil {
		return nil, err
	}
	return &after, nil
}

// SetMilestoneUpdatedAt backdates a milestone's stage clock so tests can
// age a site past the stalled threshold.
func (s *MemoryStore) SetMilestoneUpdatedAt(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.milestones[id]
	if !ok {
		return notFound("milestone", id)
	}
	m.UpdatedAt = at
	s.milestones[id] = m
	return nil
}

// Performance

// SeedPerformance adds read-only rollups; performance data is produced
// outside this service.
func (s *MemoryStore) SeedPerformance(metrics ...model.PerformanceMetric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range metrics {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		s.performance = append(s.performance, m)
	}
}

func (s *MemoryStore) ListPerformance(_ context.Context, f PerformanceFilter) ([]model.PerformanceMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.PerformanceMetric{}
	for _, m := range s.performance {
		if f.SiteID != "" && m.SiteID != f.SiteID {
			continue
		}
		if f.StudyID != "" && s.sites[m.SiteID].StudyID != f.StudyID {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].PerformanceScore, out[j].PerformanceScore
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return *a > *b
	})
	return out, nil
}

// Activity

func (s *MemoryStore) AppendActivity(_ context.Context, a *model.MilestoneActivity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seenEvents[a.EventID]; dup {
		return false, nil
	}
	s.seenEvents[a.EventID] = struct{}{}
	s.seq++
	a.ID = s.seq
	s.activity = append(s.activity, *a)
	return true, nil
}

func (s *MemoryStore) ListActivity(_ context.Context, siteID string, limit int) ([]model.MilestoneActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.MilestoneActivity{}
	for i := len(s.activity) - 1; i >= 0; i-- {
		if s.activity[i].SiteID == siteID {
			out = append(out, s.activity[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
