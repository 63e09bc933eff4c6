package datastore

import (
	"context"
	"math"
	"regexp"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fieldscan/fieldscan/internal/observability/metrics"
)

// identifierPattern limits order columns to plain SQL identifiers.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Condition is a SQL boolean fragment with positional arguments.
type Condition struct {
	SQL  string
	Args []any
}

// Where builds a Condition, e.g. Where("analyzed_at IS NULL").
func Where(sql string, args ...any) *Condition {
	return &Condition{SQL: sql, Args: args}
}

// OrderKey is one ORDER BY term.
type OrderKey struct {
	Column string
	Desc   bool
}

// Asc orders by column ascending.
func Asc(column string) OrderKey { return OrderKey{Column: column} }

// Desc orders by column descending.
func Desc(column string) OrderKey { return OrderKey{Column: column, Desc: true} }

// Query describes one paged find-and-count call.
//
// A nil Condition matches every row. Orderings are applied in order and the
// primary key ascending is always appended as the final tie breaker, so pages
// never overlap or skip rows. PageSize 0 returns all rows and ignores
// PageNumber; otherwise PageNumber is 1-based.
type Query struct {
	Condition  *Condition
	Orderings  []OrderKey
	PageSize   int
	PageNumber int
}

// Validate checks paging bounds and order columns.
func (q Query) Validate() error {
	if q.PageSize < 0 {
		return validationError("page size must not be negative", "page_size", q.PageSize)
	}
	if q.PageSize > 0 && q.PageNumber < 1 {
		return validationError("page number must be at least 1", "page_number", q.PageNumber)
	}
	for _, key := range q.Orderings {
		if !identifierPattern.MatchString(key.Column) {
			return validationError("invalid order column", "column", key.Column)
		}
	}
	if q.Condition != nil && q.Condition.SQL == "" {
		return validationError("condition must not be empty", "condition", "")
	}
	return nil
}

// Offset returns the number of rows skipped before the page. Offsets that do
// not fit in an int saturate at math.MaxInt, which is past any table.
func (q Query) Offset() int {
	if q.PageSize <= 0 || q.PageNumber <= 1 {
		return 0
	}
	if q.PageNumber-1 > math.MaxInt/q.PageSize {
		return math.MaxInt
	}
	return q.PageSize * (q.PageNumber - 1)
}

// PagedFindAndCount returns how many rows of T match q.Condition and the
// requested page of them. Both the count and the page are read under the
// store lock in one call, so they describe the same table state. On error no
// items are returned.
func PagedFindAndCount[T any](ctx context.Context, store Interface, q Query) (total int64, items []T, err error) {
	if err := q.Validate(); err != nil {
		return 0, nil, err
	}

	var table string
	err = store.WithLock(ctx, metrics.OpPagedFind, func(db *gorm.DB) error {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(new(T)); err != nil {
			return dbError(err, metrics.OpPagedFind, "unknown")
		}
		table = stmt.Schema.Table

		base := db.Model(new(T))
		if q.Condition != nil {
			base = base.Where(q.Condition.SQL, q.Condition.Args...)
		}
		base = base.Session(&gorm.Session{})

		if err := base.Count(&total).Error; err != nil {
			return dbError(err, metrics.OpPagedFind, table, "phase", "count")
		}

		page := make([]T, 0)
		if q.PageSize > 0 && int64(q.Offset()) >= total {
			items = page
			return nil
		}

		find := base
		if order := orderByClause(q.Orderings, primaryKeyColumn(stmt)); len(order.Columns) > 0 {
			find = find.Order(order)
		}
		if q.PageSize > 0 {
			find = find.Offset(q.Offset()).Limit(q.PageSize)
		}

		if err := find.Find(&page).Error; err != nil {
			return dbError(err, metrics.OpPagedFind, table, "phase", "find")
		}
		items = page
		return nil
	})
	if err != nil {
		return 0, nil, err
	}

	if s, ok := store.(metricsSource); ok {
		if m := s.getMetrics(); m != nil {
			m.RecordQueryResultSize(metrics.OpPagedFind, table, len(items))
		}
	}
	return total, items, nil
}

type metricsSource interface {
	getMetrics() *metrics.DatastoreMetrics
}

func primaryKeyColumn(stmt *gorm.Statement) string {
	if stmt.Schema == nil || stmt.Schema.PrioritizedPrimaryField == nil {
		return ""
	}
	return stmt.Schema.PrioritizedPrimaryField.DBName
}

// orderByClause renders the keys plus the primary key tie breaker. Columns
// are quoted by the dialect.
func orderByClause(keys []OrderKey, pk string) clause.OrderBy {
	columns := make([]clause.OrderByColumn, 0, len(keys)+1)
	hasPK := false
	for _, key := range keys {
		if key.Column == pk {
			hasPK = true
		}
		columns = append(columns, clause.OrderByColumn{
			Column: clause.Column{Name: key.Column},
			Desc:   key.Desc,
		})
	}
	if pk != "" && !hasPK {
		columns = append(columns, clause.OrderByColumn{Column: clause.Column{Name: pk}})
	}
	return clause.OrderBy{Columns: columns}
}
