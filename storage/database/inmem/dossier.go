package inmemdb

import (
	"context"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/dossier"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

type dossierRepository struct {
	db *DB
}

var _ dossier.Repository = (*dossierRepository)(nil) // interface compliance check

func NewDossierRepository(db *DB) *dossierRepository {
	return &dossierRepository{db: db}
}

func (repo *dossierRepository) CheckDossierUniqueness(_ context.Context, schoolID int64, number, cpf string, year int, excl ...dossier.Dossier) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ids := make([]int64, 0, len(excl))
	for _, d := range excl {
		ids = append(ids, d.ID)
	}
	for _, d := range repo.db.dossiers {
		if d.SchoolID != schoolID || isExcluded(d.ID, ids) {
			continue
		}
		if d.Number == number {
			return dossier.ErrNumberExists
		}
		if cpf != "" && d.CPF == cpf && d.Year == year {
			return dossier.ErrCPFYearExists
		}
	}
	return nil
}

func (repo *dossierRepository) CreateDossier(_ context.Context, d dossier.Dossier) (dossier.Dossier, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	d.ID = repo.db.nextPK()
	repo.db.dossiers[d.ID] = &d
	return d, nil
}

func (repo *dossierRepository) GetDossier(_ context.Context, id int64, scope tenant.Scope) (dossier.Dossier, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if d, ok := repo.db.dossiers[id]; ok && scope.Allows(d.SchoolID) {
		return *d, nil
	}
	return dossier.Dossier{}, dossier.ErrNotFound
}

var dossierComparers = comparers[dossier.Dossier]{
	"id":         byID(func(d dossier.Dossier) int64 { return d.ID }),
	"number":     func(a, b dossier.Dossier) int { return cmpFold(a.Number, b.Number) },
	"name":       func(a, b dossier.Dossier) int { return cmpFold(a.Name, b.Name) },
	"year":       func(a, b dossier.Dossier) int { return a.Year - b.Year },
	"status":     func(a, b dossier.Dossier) int { return cmpFold(string(a.Status), string(b.Status)) },
	"created_at": func(a, b dossier.Dossier) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
}

func (repo *dossierRepository) QueryDossiers(_ context.Context, filter dossier.QueryFilter, scope tenant.Scope, ordering []core.DBOrdering, page core.Page) ([]dossier.Dossier, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	dossiers := make([]dossier.Dossier, 0)
	for _, d := range repo.db.dossiers {
		if !scope.Allows(d.SchoolID) {
			continue
		}
		if filter.Search != "" && !containsFold(filter.Search, d.Name, d.Number, d.CPF, d.FatherName, d.MotherName) {
			continue
		}
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		if filter.Year != 0 && d.Year != filter.Year {
			continue
		}
		if filter.DocumentType != "" && d.DocumentType != filter.DocumentType {
			continue
		}
		dossiers = append(dossiers, *d)
	}
	sortRows(dossiers, ordering, dossierComparers, desc("created_at"), desc("id"))
	return paginate(dossiers, page), nil
}

func (repo *dossierRepository) UpdateDossier(_ context.Context, d dossier.Dossier) (dossier.Dossier, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.dossiers[d.ID]; !ok {
		return dossier.Dossier{}, dossier.ErrNotFound
	}
	repo.db.dossiers[d.ID] = &d
	return d, nil
}

// DeleteDossier cascades to attachments and movements, like the foreign keys do.
func (repo *dossierRepository) DeleteDossier(_ context.Context, id int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.dossiers[id]; !ok {
		return dossier.ErrNotFound
	}
	delete(repo.db.dossiers, id)
	for aid, a := range repo.db.attachments {
		if a.DossierID == id {
			delete(repo.db.attachments, aid)
		}
	}
	for mid, m := range repo.db.movements {
		if m.DossierID == id {
			delete(repo.db.movements, mid)
		}
	}
	return nil
}

func (repo *dossierRepository) CountDossiersByStatus(_ context.Context, scope tenant.Scope) (map[dossier.Status]int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	counts := make(map[dossier.Status]int)
	for _, d := range repo.db.dossiers {
		if scope.Allows(d.SchoolID) {
			counts[d.Status]++
		}
	}
	return counts, nil
}
