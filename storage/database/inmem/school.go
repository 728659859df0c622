package inmemdb

import (
	"context"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/school"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

type schoolRepository struct {
	db *DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *DB) *schoolRepository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) CheckSchoolUniqueness(_ context.Context, cnpj, inep string, excl ...school.School) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ids := make([]int64, 0, len(excl))
	for _, s := range excl {
		ids = append(ids, s.ID)
	}
	for _, s := range repo.db.schools {
		if isExcluded(s.ID, ids) {
			continue
		}
		if cnpj != "" && s.CNPJ == cnpj {
			return school.ErrCNPJExists
		}
		if inep != "" && s.INEP == inep {
			return school.ErrINEPExists
		}
	}
	return nil
}

func (repo *schoolRepository) CreateSchool(_ context.Context, s school.School) (school.School, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s.ID = repo.db.nextPK()
	repo.db.schools[s.ID] = &s
	return s, nil
}

func (repo *schoolRepository) GetSchool(_ context.Context, id int64) (school.School, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.schools[id]; ok {
		return *s, nil
	}
	return school.School{}, school.ErrNotFound
}

var schoolComparers = comparers[school.School]{
	"id":         byID(func(s school.School) int64 { return s.ID }),
	"name":       func(a, b school.School) int { return cmpFold(a.Name, b.Name) },
	"uf":         func(a, b school.School) int { return cmpFold(a.UF, b.UF) },
	"status":     func(a, b school.School) int { return cmpFold(string(a.Status), string(b.Status)) },
	"created_at": func(a, b school.School) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
}

func (repo *schoolRepository) QuerySchools(_ context.Context, filter school.QueryFilter, scope tenant.Scope, ordering []core.DBOrdering, page core.Page) ([]school.School, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	schools := make([]school.School, 0)
	for _, s := range repo.db.schools {
		if !scope.Allows(s.ID) {
			continue
		}
		if filter.Search != "" && !containsFold(filter.Search, s.Name, s.CNPJ, s.INEP, s.DirectorName) {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.CityID != 0 && (s.CityID == nil || *s.CityID != filter.CityID) {
			continue
		}
		if filter.UF != "" && s.UF != filter.UF {
			continue
		}
		schools = append(schools, *s)
	}
	sortRows(schools, ordering, schoolComparers, asc("name"), asc("id"))
	return paginate(schools, page), nil
}

func (repo *schoolRepository) UpdateSchool(_ context.Context, s school.School) (school.School, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.schools[s.ID]; !ok {
		return school.School{}, school.ErrNotFound
	}
	repo.db.schools[s.ID] = &s
	return s, nil
}

func (repo *schoolRepository) DeleteSchool(_ context.Context, id int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.schools[id]; !ok {
		return school.ErrNotFound
	}
	delete(repo.db.schools, id)
	return nil
}

func (repo *schoolRepository) CountSchoolDependents(_ context.Context, id int64) (school.Dependents, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var deps school.Dependents
	for _, u := range repo.db.users {
		if u.SchoolID == id {
			deps.Users++
		}
	}
	for _, d := range repo.db.dossiers {
		if d.SchoolID == id {
			deps.Dossiers++
		}
	}
	return deps, nil
}
