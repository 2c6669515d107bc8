// Package datarecording stores traces of an emulation run in SQLite.
package datarecording

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/structs"
	logging "github.com/ipfs/go-log/v2"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
	"go.uber.org/multierr"
)

var log = logging.Logger("netemu/datarecording")

// DataRecorder is a backend that can record and store data
type DataRecorder interface {
	// CreateTable creates a new table whose columns are the fields of
	// sampleEntry.
	CreateTable(tableName string, sampleEntry any)

	// InsertData buffers an entry for a table that already exists.
	InsertData(tableName string, entry any)

	// ListTables returns the names of all tables.
	ListTables() []string

	// Flush writes all the buffered entries into the database.
	Flush()

	// Close flushes and closes the database.
	Close() error
}

// DefaultBatchSize is the number of buffered entries that triggers a flush.
const DefaultBatchSize = 10000

// Filename returns the database file of a recorder created with name.
func Filename(name string) string {
	return name + ".sqlite3"
}

// New creates a DataRecorder that writes to Filename(name). An empty name
// picks a unique one. The file must not exist yet. The recorder is flushed
// at exit.
func New(name string) DataRecorder {
	if name == "" {
		name = "netemu_trace_" + xid.New().String()
	}

	filename := Filename(name)
	if _, err := os.Stat(filename); err == nil {
		panic(fmt.Errorf("file %s already exists", filename))
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		panic(err)
	}

	log.Infof("recording to %s", filename)

	return NewWithDB(db)
}

// NewWithDB creates a DataRecorder over an open database.
func NewWithDB(db *sql.DB) DataRecorder {
	r := &sqliteRecorder{
		db:        db,
		batchSize: DefaultBatchSize,
		tables:    make(map[string]*recordTable),
	}

	atexit.Register(r.Flush)

	return r
}

// recordTable buffers the rows of one table.
type recordTable struct {
	entryType reflect.Type
	insertSQL string
	rows      [][]any
}

// sqliteRecorder writes entries into a SQLite database. Nodes record from
// their own goroutines, so every method locks.
type sqliteRecorder struct {
	lock      sync.Mutex
	db        *sql.DB
	tables    map[string]*recordTable
	batchSize int
	buffered  int
	closed    bool
}

func recordable(kind reflect.Kind) bool {
	switch kind {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Uint64, reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// columns returns the column names of an entry type.
func columns(entryType reflect.Type) ([]string, error) {
	if entryType == nil || entryType.Kind() != reflect.Struct {
		return nil, errors.New("entry must be a struct")
	}

	for i := 0; i < entryType.NumField(); i++ {
		f := entryType.Field(i)
		if !f.IsExported() || !recordable(f.Type.Kind()) {
			return nil, fmt.Errorf("field %s cannot be recorded", f.Name)
		}
	}

	return structs.Names(reflect.New(entryType).Elem().Interface()), nil
}

func (r *sqliteRecorder) CreateTable(tableName string, sampleEntry any) {
	r.lock.Lock()
	defer r.lock.Unlock()

	entryType := reflect.TypeOf(sampleEntry)

	cols, err := columns(entryType)
	if err != nil {
		panic(fmt.Errorf("table %s: %w", tableName, err))
	}

	_, err = r.db.Exec(fmt.Sprintf("CREATE TABLE %s (%s)",
		tableName, strings.Join(cols, ", ")))
	if err != nil {
		panic(fmt.Errorf("create table %s: %w", tableName, err))
	}

	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	r.tables[tableName] = &recordTable{
		entryType: entryType,
		insertSQL: fmt.Sprintf("INSERT INTO %s VALUES (%s)", tableName, marks),
	}
}

func (r *sqliteRecorder) InsertData(tableName string, entry any) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.closed {
		return
	}

	t, ok := r.tables[tableName]
	if !ok {
		panic(fmt.Sprintf("table %s does not exist", tableName))
	}

	if reflect.TypeOf(entry) != t.entryType {
		panic(fmt.Sprintf("entry of type %T does not fit table %s",
			entry, tableName))
	}

	t.rows = append(t.rows, structs.Values(entry))
	r.buffered++

	if r.buffered >= r.batchSize {
		r.flushOrLog()
	}
}

func (r *sqliteRecorder) ListTables() []string {
	r.lock.Lock()
	defer r.lock.Unlock()

	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (r *sqliteRecorder) Flush() {
	r.lock.Lock()
	defer r.lock.Unlock()

	if !r.closed {
		r.flushOrLog()
	}
}

func (r *sqliteRecorder) flushOrLog() {
	if err := r.flush(); err != nil {
		log.Errorf("flush: %v", err)
	}
}

// flush writes every buffered row in one transaction. Rows are discarded
// even if writing fails so that a broken database cannot grow the buffer
// without bound.
func (r *sqliteRecorder) flush() (err error) {
	if r.buffered == 0 {
		return nil
	}

	defer func() {
		for _, t := range r.tables {
			t.rows = nil
		}

		r.buffered = 0
	}()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}

	for _, t := range r.tables {
		if err = insertRows(tx, t); err != nil {
			return multierr.Append(err, tx.Rollback())
		}
	}

	return tx.Commit()
}

func insertRows(tx *sql.Tx, t *recordTable) error {
	if len(t.rows) == 0 {
		return nil
	}

	stmt, err := tx.Prepare(t.insertSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range t.rows {
		if _, err := stmt.Exec(row...); err != nil {
			return err
		}
	}

	return nil
}

func (r *sqliteRecorder) Close() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true

	return multierr.Append(r.flush(), r.db.Close())
}
