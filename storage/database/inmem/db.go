// Package inmemdb keeps every repository in mutex-guarded maps. Used by tests and local runs.
package inmemdb

import (
	"cmp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/attachment"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/audit"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/city"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/director"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/dossier"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/movement"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/requester"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/school"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/setting"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/user"
)

// DB is one lock over every table, so cross-table counts stay consistent.
type DB struct {
	mutex sync.RWMutex
	pk    int64

	roles       map[int64]*role.Role
	permissions map[string]*role.Permission // by name
	grants      map[int64]map[string]bool   // role id -> permission names
	users       map[int64]*user.User
	schools     map[int64]*school.School
	cities      map[int64]*city.City
	directors   map[int64]*director.Director
	dossiers    map[int64]*dossier.Dossier
	attachments map[int64]*attachment.Attachment
	requesters  map[int64]*requester.Requester
	movements   map[int64]*movement.Movement
	auditLogs   []audit.Log
	systemLogs  []audit.SystemLog
	settings    map[int64]*setting.Setting
	history     []setting.History
}

func Open() *DB {
	return &DB{
		roles:       make(map[int64]*role.Role),
		permissions: make(map[string]*role.Permission),
		grants:      make(map[int64]map[string]bool),
		users:       make(map[int64]*user.User),
		schools:     make(map[int64]*school.School),
		cities:      make(map[int64]*city.City),
		directors:   make(map[int64]*director.Director),
		dossiers:    make(map[int64]*dossier.Dossier),
		attachments: make(map[int64]*attachment.Attachment),
		requesters:  make(map[int64]*requester.Requester),
		movements:   make(map[int64]*movement.Movement),
		settings:    make(map[int64]*setting.Setting),
	}
}

// nextPK must be called with the write lock held.
func (db *DB) nextPK() int64 {
	db.pk++
	return db.pk
}

// comparers maps an ordering field to a three-way comparison of two rows.
type comparers[T any] map[string]func(a, b T) int

// sortRows orders rows by the known fields of ordering, or by fallback when none is known.
func sortRows[T any](rows []T, ordering []core.DBOrdering, cmps comparers[T], fallback ...core.DBOrdering) {
	ords := make([]core.DBOrdering, 0, len(ordering))
	for _, ord := range ordering {
		if _, ok := cmps[ord.Field]; ok {
			ords = append(ords, ord)
		}
	}
	if len(ords) == 0 {
		ords = fallback
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, ord := range ords {
			c := cmps[ord.Field](rows[i], rows[j])
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func paginate[T any](rows []T, page core.Page) []T {
	start, end := page.Window(len(rows))
	return rows[start:end]
}

func asc(field string) core.DBOrdering  { return core.DBOrdering{Field: field, Ascending: true} }
func desc(field string) core.DBOrdering { return core.DBOrdering{Field: field} }

func cmpFold(a, b string) int { return strings.Compare(strings.ToLower(a), strings.ToLower(b)) }

func cmpTime(a, b time.Time) int { return a.Compare(b) }

func cmpTimePtr(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Compare(*b)
}

func byID[T any](id func(T) int64) func(a, b T) int {
	return func(a, b T) int { return cmp.Compare(id(a), id(b)) }
}

// containsFold reports whether any of values contains term, ignoring case.
func containsFold(term string, values ...string) bool {
	term = strings.ToLower(term)
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), term) {
			return true
		}
	}
	return false
}

func isExcluded(id int64, excl []int64) bool {
	for _, e := range excl {
		if e == id {
			return true
		}
	}
	return false
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
