package inmemdb

import (
	"context"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/movement"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

type movementRepository struct {
	db *DB
}

var _ movement.Repository = (*movementRepository)(nil) // interface compliance check

func NewMovementRepository(db *DB) *movementRepository {
	return &movementRepository{db: db}
}

func (repo *movementRepository) load(m *movement.Movement) movement.Movement {
	mv := *m
	mv.RequesterID = copyInt64(m.RequesterID)
	mv.DestinationSchoolID = copyInt64(m.DestinationSchoolID)
	mv.ExpectedReturnAt = copyTime(m.ExpectedReturnAt)
	mv.ReturnedAt = copyTime(m.ReturnedAt)
	mv.ConcludedAt = copyTime(m.ConcludedAt)
	return mv
}

func (repo *movementRepository) CreateMovement(_ context.Context, m movement.Movement) (movement.Movement, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	m.ID = repo.db.nextPK()
	stored := repo.load(&m)
	repo.db.movements[m.ID] = &stored
	return m, nil
}

func (repo *movementRepository) GetMovement(_ context.Context, id int64, scope tenant.Scope) (movement.Movement, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if m, ok := repo.db.movements[id]; ok && scope.Allows(m.SchoolID) {
		return repo.load(m), nil
	}
	return movement.Movement{}, movement.ErrNotFound
}

var movementComparers = comparers[movement.Movement]{
	"id":                 byID(func(m movement.Movement) int64 { return m.ID }),
	"kind":               func(a, b movement.Movement) int { return cmpFold(string(a.Kind), string(b.Kind)) },
	"status":             func(a, b movement.Movement) int { return cmpFold(string(a.Status), string(b.Status)) },
	"occurred_at":        func(a, b movement.Movement) int { return cmpTime(a.OccurredAt, b.OccurredAt) },
	"expected_return_at": func(a, b movement.Movement) int { return cmpTimePtr(a.ExpectedReturnAt, b.ExpectedReturnAt) },
	"created_at":         func(a, b movement.Movement) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
}

func (repo *movementRepository) QueryMovements(_ context.Context, filter movement.QueryFilter, scope tenant.Scope, ordering []core.DBOrdering, page core.Page) ([]movement.Movement, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	movs := make([]movement.Movement, 0)
	for _, m := range repo.db.movements {
		if !scope.Allows(m.SchoolID) {
			continue
		}
		if filter.DossierID != 0 && m.DossierID != filter.DossierID {
			continue
		}
		if filter.Kind != "" && m.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && m.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !containsFold(filter.Search, m.RequesterName, m.RequesterDocument, m.Reason) {
			continue
		}
		if !filter.OverdueAt.IsZero() && !m.IsOverdue(filter.OverdueAt) {
			continue
		}
		movs = append(movs, repo.load(m))
	}
	sortRows(movs, ordering, movementComparers, desc("occurred_at"), desc("id"))
	return paginate(movs, page), nil
}

func (repo *movementRepository) UpdateMovement(_ context.Context, m movement.Movement) (movement.Movement, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.movements[m.ID]; !ok {
		return movement.Movement{}, movement.ErrNotFound
	}
	stored := repo.load(&m)
	repo.db.movements[m.ID] = &stored
	return m, nil
}

func (repo *movementRepository) DeleteMovement(_ context.Context, id int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.movements[id]; !ok {
		return movement.ErrNotFound
	}
	delete(repo.db.movements, id)
	return nil
}

func (repo *movementRepository) CountMovementsByStatus(_ context.Context, scope tenant.Scope) (map[movement.Status]int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	counts := make(map[movement.Status]int)
	for _, m := range repo.db.movements {
		if scope.Allows(m.SchoolID) {
			counts[m.Status]++
		}
	}
	return counts, nil
}
