package inmemdb

import (
	"context"
	"strings"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/city"
)

type cityRepository struct {
	db *DB
}

var _ city.Repository = (*cityRepository)(nil) // interface compliance check

func NewCityRepository(db *DB) *cityRepository {
	return &cityRepository{db: db}
}

func (repo *cityRepository) CheckCityUniqueness(_ context.Context, name, uf string, excl ...city.City) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ids := make([]int64, 0, len(excl))
	for _, c := range excl {
		ids = append(ids, c.ID)
	}
	for _, c := range repo.db.cities {
		if strings.EqualFold(c.Name, name) && c.UF == uf && !isExcluded(c.ID, ids) {
			return city.ErrExists
		}
	}
	return nil
}

func (repo *cityRepository) CreateCity(_ context.Context, c city.City) (city.City, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	c.ID = repo.db.nextPK()
	repo.db.cities[c.ID] = &c
	return c, nil
}

func (repo *cityRepository) GetCity(_ context.Context, id int64) (city.City, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.cities[id]; ok {
		return *c, nil
	}
	return city.City{}, city.ErrNotFound
}

var cityComparers = comparers[city.City]{
	"id":         byID(func(c city.City) int64 { return c.ID }),
	"name":       func(a, b city.City) int { return cmpFold(a.Name, b.Name) },
	"uf":         func(a, b city.City) int { return cmpFold(a.UF, b.UF) },
	"created_at": func(a, b city.City) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
}

func (repo *cityRepository) QueryCities(_ context.Context, filter city.QueryFilter, ordering []core.DBOrdering, page core.Page) ([]city.City, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	cities := make([]city.City, 0)
	for _, c := range repo.db.cities {
		if filter.Search != "" && !containsFold(filter.Search, c.Name) {
			continue
		}
		if filter.UF != "" && c.UF != filter.UF {
			continue
		}
		cities = append(cities, *c)
	}
	sortRows(cities, ordering, cityComparers, asc("name"), asc("uf"))
	return paginate(cities, page), nil
}

func (repo *cityRepository) UpdateCity(_ context.Context, c city.City) (city.City, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.cities[c.ID]; !ok {
		return city.City{}, city.ErrNotFound
	}
	repo.db.cities[c.ID] = &c
	return c, nil
}

func (repo *cityRepository) DeleteCity(_ context.Context, id int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.cities[id]; !ok {
		return city.ErrNotFound
	}
	delete(repo.db.cities, id)
	return nil
}

func (repo *cityRepository) CountCityReferences(_ context.Context, id int64) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	n := 0
	for _, s := range repo.db.schools {
		if s.CityID != nil && *s.CityID == id {
			n++
		}
	}
	for _, r := range repo.db.requesters {
		if r.CityID != nil && *r.CityID == id {
			n++
		}
	}
	return n, nil
}
