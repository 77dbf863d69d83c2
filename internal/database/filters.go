package database

import (
	"time"

	"shareit/internal/domain"
	"shareit/internal/models"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
)

// categoryFilters renders each classification category as a predicate over the "b" booking alias.
// They must select exactly what domain.Category.Matches accepts.
var categoryFilters = map[domain.Category]func(nowMs int64) exp.Expression{
	domain.CategoryAll: func(int64) exp.Expression { return nil },
	domain.CategoryCurrent: func(nowMs int64) exp.Expression {
		return goqu.And(
			goqu.I("b.start_at").Lte(nowMs),
			goqu.I("b.end_at").Gte(nowMs),
		)
	},
	domain.CategoryPast: func(nowMs int64) exp.Expression {
		return goqu.I("b.end_at").Lt(nowMs)
	},
	domain.CategoryFuture: func(nowMs int64) exp.Expression {
		return goqu.I("b.start_at").Gt(nowMs)
	},
	domain.CategoryWaiting: func(int64) exp.Expression {
		return goqu.I("b.status").Eq(string(models.StatusWaiting))
	},
	domain.CategoryRejected: func(int64) exp.Expression {
		return goqu.I("b.status").Eq(string(models.StatusRejected))
	},
}

// categoryFilter returns the WHERE fragment for c at now; nil means no restriction.
func categoryFilter(c domain.Category, now time.Time) (exp.Expression, error) {
	build, ok := categoryFilters[c]
	if !ok {
		return nil, domain.InvalidRequest("Unknown state: %s", c)
	}
	return build(toMillis(now)), nil
}
