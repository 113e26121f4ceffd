// Package pagination implements generic keyset pagination over goqu select
// datasets.
//
// A listing declares an ordered list of sort keys. A page is selected by
// ordering over exactly that key list and restricting to rows whose
// composite key tuple is strictly beyond the cursor tuple under
// lexicographic comparison. The next cursor is built from the key tuple of
// the last returned row, so following cursors reproduces the complete
// ordered result set with no duplicate and no missing row, and stays stable
// under insertions occurring after the cursor position.
package pagination

import (
	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
)

// DefaultLimit is applied when no page limit is given.
const DefaultLimit = 50

// MaxLimit caps the page size a caller may request.
const MaxLimit = 500

// Key is one sort key: its cursor name and the column it orders by.
type Key struct {
	Name   string
	Column exp.IdentifierExpression
}

// Col is a convenience constructor for a Key ordering by a plain column.
func Col(name string, column string) Key {
	return Key{Name: name, Column: goqu.C(column)}
}

// Options control page size and direction. The row ordering of the
// underlying query always follows the key list, ascending or descending as
// a whole.
type Options struct {
	Limit      uint
	Descending bool
}

// EffectiveLimit returns the clamped page limit.
func (o Options) EffectiveLimit() uint {
	switch {
	case o.Limit == 0:
		return DefaultLimit
	case o.Limit > MaxLimit:
		return MaxLimit
	default:
		return o.Limit
	}
}

// Page is one page of a listing plus the cursor selecting the next one.
// NextCursor is nil when the page was short, i.e. the end of the data.
type Page[T any] struct {
	Data       []T
	NextCursor Cursor
}

// Apply appends ordering, the cursor predicate and the limit to ds.
//
// The cursor may cover any prefix of the key list; an empty or nil cursor
// selects the first page.
func Apply(ds *goqu.SelectDataset, keys []Key, cursor Cursor, opts Options) *goqu.SelectDataset {
	ordered := make([]exp.OrderedExpression, 0, len(keys))
	for _, key := range keys {
		if opts.Descending {
			ordered = append(ordered, key.Column.Desc())
		} else {
			ordered = append(ordered, key.Column.Asc())
		}
	}

	ds = ds.Order(ordered...)

	if predicate := cursorPredicate(keys, cursor, opts.Descending); predicate != nil {
		ds = ds.Where(predicate)
	}

	return ds.Limit(opts.EffectiveLimit())
}

// NextCursor builds the cursor from the key tuple of the last returned row.
// lastRow maps key names to the row's values; keys absent from lastRow are
// skipped, truncating the cursor to a prefix.
func NextCursor(keys []Key, lastRow map[string]any) Cursor {
	cursor := make(Cursor, len(keys))

	for _, key := range keys {
		value, ok := lastRow[key.Name]
		if !ok {
			break
		}

		cursor[key.Name] = value
	}

	return cursor
}

// cursorPredicate builds the lexicographic strictly-beyond predicate:
// for keys (a, b, c) and cursor (x, y, z) descending it expands to
//
//	a < x OR (a = x AND b < y) OR (a = x AND b = y AND c < z)
//
// and the mirrored > form ascending. Returns nil for an empty cursor.
func cursorPredicate(keys []Key, cursor Cursor, descending bool) exp.ExpressionList {
	branches := make([]goqu.Expression, 0, len(keys))

	for i, key := range keys {
		value, ok := cursor[key.Name]
		if !ok {
			break
		}

		branch := make([]goqu.Expression, 0, i+1)
		for _, prefixKey := range keys[:i] {
			branch = append(branch, prefixKey.Column.Eq(cursor[prefixKey.Name]))
		}

		if descending {
			branch = append(branch, key.Column.Lt(value))
		} else {
			branch = append(branch, key.Column.Gt(value))
		}

		branches = append(branches, goqu.And(branch...))
	}

	if len(branches) == 0 {
		return nil
	}

	return goqu.Or(branches...)
}
