package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
)

// Filter selects and orders rows. The zero value selects every row in
// insertion order.
type Filter struct {
	// Where is a condition without the WHERE keyword, such as "Event = ?".
	Where string
	Args  []any

	// OrderBy is a column list without the ORDER BY keywords.
	OrderBy string

	// Limit caps the number of rows. 0 means no limit.
	Limit  int
	Offset int
}

func (f Filter) clause() string {
	var b strings.Builder

	if f.Where != "" {
		b.WriteString(" WHERE " + f.Where)
	}

	orderBy := f.OrderBy
	if orderBy == "" {
		orderBy = "rowid"
	}

	b.WriteString(" ORDER BY " + orderBy)

	if f.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d OFFSET %d", f.Limit, f.Offset)
	}

	return b.String()
}

// Reader reads back a database written by a DataRecorder.
type Reader struct {
	db *sql.DB
}

// OpenReader opens the database of the recorder created with name.
func OpenReader(name string) (*Reader, error) {
	db, err := sql.Open("sqlite3", Filename(name))
	if err != nil {
		return nil, err
	}

	return &Reader{db: db}, nil
}

// NewReaderWithDB creates a Reader over an open database.
func NewReaderWithDB(db *sql.DB) *Reader {
	return &Reader{db: db}
}

// Tables lists the tables in the database.
func (r *Reader) Tables(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}

		names = append(names, name)
	}

	return names, rows.Err()
}

// Count returns how many rows of a table match the filter. Ordering and
// paging are ignored.
func (r *Reader) Count(ctx context.Context, table string, f Filter) (int, error) {
	query := "SELECT COUNT(*) FROM " + table
	if f.Where != "" {
		query += " WHERE " + f.Where
	}

	var n int

	err := r.db.QueryRowContext(ctx, query, f.Args...).Scan(&n)

	return n, err
}

// Packets returns the recorded packet events.
func (r *Reader) Packets(ctx context.Context, f Filter) ([]PacketEntry, error) {
	return Query[PacketEntry](ctx, r, PacketTable, f)
}

// Jobs returns the recorded job executions.
func (r *Reader) Jobs(ctx context.Context, f Filter) ([]JobEntry, error) {
	return Query[JobEntry](ctx, r, JobTable, f)
}

// RunInfo returns the properties of the recorded run.
func (r *Reader) RunInfo(ctx context.Context) (map[string]string, error) {
	entries, err := Query[RunInfo](ctx, r, RunInfoTable, Filter{})
	if err != nil {
		return nil, err
	}

	props := make(map[string]string, len(entries))
	for _, e := range entries {
		props[e.Property] = e.Value
	}

	return props, nil
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.db.Close()
}

// Query reads the rows of a table into entries of type T. Columns are
// matched to fields by name; columns without a field are skipped.
func Query[T any](
	ctx context.Context,
	r *Reader,
	table string,
	f Filter,
) ([]T, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT * FROM "+table+f.clause(), f.Args...)
	if err != nil {
		return nil, fmt.Errorf("datarecording: query %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	structType := reflect.TypeOf((*T)(nil)).Elem()
	if structType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("datarecording: %s is not a struct", structType)
	}

	var entries []T

	for rows.Next() {
		var entry T

		v := reflect.ValueOf(&entry).Elem()
		targets := make([]any, len(columns))

		for i, col := range columns {
			if field := v.FieldByName(col); field.IsValid() && field.CanSet() {
				targets[i] = field.Addr().Interface()
			} else {
				targets[i] = new(any)
			}
		}

		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("datarecording: scan %s: %w", table, err)
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
