package inmemdb

import (
	"context"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/requester"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

type requesterRepository struct {
	db *DB
}

var _ requester.Repository = (*requesterRepository)(nil) // interface compliance check

func NewRequesterRepository(db *DB) *requesterRepository {
	return &requesterRepository{db: db}
}

func (repo *requesterRepository) CheckRequesterUniqueness(_ context.Context, schoolID int64, cpf string, excl ...requester.Requester) error {
	if cpf == "" {
		return nil
	}
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ids := make([]int64, 0, len(excl))
	for _, r := range excl {
		ids = append(ids, r.ID)
	}
	for _, r := range repo.db.requesters {
		if r.SchoolID == schoolID && r.CPF == cpf && !isExcluded(r.ID, ids) {
			return requester.ErrCPFExists
		}
	}
	return nil
}

func (repo *requesterRepository) CreateRequester(_ context.Context, r requester.Requester) (requester.Requester, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	r.ID = repo.db.nextPK()
	repo.db.requesters[r.ID] = &r
	return r, nil
}

func (repo *requesterRepository) GetRequester(_ context.Context, id int64, scope tenant.Scope) (requester.Requester, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if r, ok := repo.db.requesters[id]; ok && scope.Allows(r.SchoolID) {
		return *r, nil
	}
	return requester.Requester{}, requester.ErrNotFound
}

var requesterComparers = comparers[requester.Requester]{
	"id":         byID(func(r requester.Requester) int64 { return r.ID }),
	"name":       func(a, b requester.Requester) int { return cmpFold(a.Name, b.Name) },
	"status":     func(a, b requester.Requester) int { return cmpFold(string(a.Status), string(b.Status)) },
	"created_at": func(a, b requester.Requester) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
}

func (repo *requesterRepository) QueryRequesters(_ context.Context, filter requester.QueryFilter, scope tenant.Scope, ordering []core.DBOrdering, page core.Page) ([]requester.Requester, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	reqs := make([]requester.Requester, 0)
	for _, r := range repo.db.requesters {
		if !scope.Allows(r.SchoolID) {
			continue
		}
		if filter.Search != "" && !containsFold(filter.Search, r.Name, r.CPF, r.Email) {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		reqs = append(reqs, *r)
	}
	sortRows(reqs, ordering, requesterComparers, asc("name"), asc("id"))
	return paginate(reqs, page), nil
}

func (repo *requesterRepository) UpdateRequester(_ context.Context, r requester.Requester) (requester.Requester, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.requesters[r.ID]; !ok {
		return requester.Requester{}, requester.ErrNotFound
	}
	repo.db.requesters[r.ID] = &r
	return r, nil
}

// DeleteRequester detaches the requester from its movements, which keep their snapshot.
func (repo *requesterRepository) DeleteRequester(_ context.Context, id int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.requesters[id]; !ok {
		return requester.ErrNotFound
	}
	delete(repo.db.requesters, id)
	for _, m := range repo.db.movements {
		if m.RequesterID != nil && *m.RequesterID == id {
			m.RequesterID = nil
		}
	}
	return nil
}
