package inmemdb

import (
	"context"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/director"
)

type directorRepository struct {
	db *DB
}

var _ director.Repository = (*directorRepository)(nil) // interface compliance check

func NewDirectorRepository(db *DB) *directorRepository {
	return &directorRepository{db: db}
}

func (repo *directorRepository) CheckDirectorUniqueness(_ context.Context, cpf string, excl ...director.Director) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ids := make([]int64, 0, len(excl))
	for _, d := range excl {
		ids = append(ids, d.ID)
	}
	for _, d := range repo.db.directors {
		if cpf != "" && d.CPF == cpf && !isExcluded(d.ID, ids) {
			return director.ErrCPFExists
		}
	}
	return nil
}

func (repo *directorRepository) CreateDirector(_ context.Context, d director.Director) (director.Director, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	d.ID = repo.db.nextPK()
	repo.db.directors[d.ID] = &d
	return d, nil
}

func (repo *directorRepository) GetDirector(_ context.Context, id int64) (director.Director, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if d, ok := repo.db.directors[id]; ok {
		return *d, nil
	}
	return director.Director{}, director.ErrNotFound
}

var directorComparers = comparers[director.Director]{
	"id":         byID(func(d director.Director) int64 { return d.ID }),
	"name":       func(a, b director.Director) int { return cmpFold(a.Name, b.Name) },
	"status":     func(a, b director.Director) int { return cmpFold(string(a.Status), string(b.Status)) },
	"created_at": func(a, b director.Director) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
}

func (repo *directorRepository) QueryDirectors(_ context.Context, filter director.QueryFilter, ordering []core.DBOrdering, page core.Page) ([]director.Director, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	directors := make([]director.Director, 0)
	for _, d := range repo.db.directors {
		if filter.Search != "" && !containsFold(filter.Search, d.Name, d.CPF, d.City, d.Mandate) {
			continue
		}
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		directors = append(directors, *d)
	}
	sortRows(directors, ordering, directorComparers, asc("name"), asc("id"))
	return paginate(directors, page), nil
}

func (repo *directorRepository) UpdateDirector(_ context.Context, d director.Director) (director.Director, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.directors[d.ID]; !ok {
		return director.Director{}, director.ErrNotFound
	}
	repo.db.directors[d.ID] = &d
	return d, nil
}

func (repo *directorRepository) DeleteDirector(_ context.Context, id int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.directors[id]; !ok {
		return director.ErrNotFound
	}
	delete(repo.db.directors, id)
	return nil
}

func (repo *directorRepository) CountDirectorSchools(_ context.Context, id int64) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	n := 0
	for _, s := range repo.db.schools {
		if s.DirectorID != nil && *s.DirectorID == id {
			n++
		}
	}
	return n, nil
}

func (repo *directorRepository) DirectorStats(_ context.Context) (director.Stats, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	stats := director.Stats{ByMandate: make(map[string]int)}
	for _, d := range repo.db.directors {
		stats.Total++
		if d.IsActive() {
			stats.Active++
		} else {
			stats.Inactive++
		}
		if d.Mandate != "" {
			stats.ByMandate[d.Mandate]++
		}
	}
	return stats, nil
}
