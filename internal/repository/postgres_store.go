package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sahasand/site-tracker/pkg/outbox"
)

// NewPostgresStores wires every store to one pool. Site and milestone
// writes queue their events in ob.
func NewPostgresStores(db *pgxpool.Pool, ob *outbox.Repository, logger *zap.Logger) Stores {
	return Stores{
		Studies:     NewStudyRepository(db, logger),
		Sites:       NewSiteRepository(db, ob, logger),
		Milestones:  NewMilestoneRepository(db, ob, logger),
		Performance: NewPerformanceRepository(db, logger),
		Activity:    NewActivityRepository(db, logger),
	}
}
