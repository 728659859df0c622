package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
)

var (
	orderingParam = "ordering"
	fromParam     = "from"
	toParam       = "to"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindPage reads `limit` and `offset`. Garbage values fall back to the defaults.
func bindPage(ctx echo.Context) core.Page {
	var page core.Page
	page.Limit, _ = strconv.Atoi(ctx.QueryParam("limit"))
	page.Offset, _ = strconv.Atoi(ctx.QueryParam("offset"))
	return page.Clean()
}

// TimeRange is a `from`/`to` pair, RFC 3339 or plain dates. A plain `to` date covers the whole day.
type TimeRange struct {
	From time.Time
	To   time.Time
}

func (tr *TimeRange) Bind(ctx echo.Context) {
	tr.From, _ = parseTime(ctx.QueryParam(fromParam), false)
	tr.To, _ = parseTime(ctx.QueryParam(toParam), true)
}

func parseTime(s string, endOfDay bool) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return t, true
	}
	return time.Time{}, false
}
