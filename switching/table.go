package switching

import (
	"errors"
)

// DefaultTableCapacity is the number of hosts a switch can learn.
const DefaultTableCapacity = 100

// ErrTableFull is returned when a host cannot be learned because every
// entry is in use. It is not fatal: traffic to that host is flooded.
var ErrTableFull = errors.New("forwarding table full")

// ForwardingEntry maps a host to the port it was seen on.
type ForwardingEntry struct {
	HostID int  `json:"host_id"`
	Port   int  `json:"port"`
	Valid  bool `json:"valid"`
}

// Table is a fixed-capacity forwarding table. Entries are never updated or
// evicted once learned.
type Table struct {
	entries []ForwardingEntry
}

// NewTable creates a table with room for capacity hosts.
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		panic("forwarding table capacity must be positive")
	}

	return &Table{entries: make([]ForwardingEntry, capacity)}
}

// Capacity returns the number of entries.
func (t *Table) Capacity() int {
	return len(t.entries)
}

// Lookup returns the port a host was learned on.
func (t *Table) Lookup(host int) (int, bool) {
	for _, e := range t.entries {
		if e.Valid && e.HostID == host {
			return e.Port, true
		}
	}

	return 0, false
}

// Learn records that host sits behind port. A known host is left as it is.
func (t *Table) Learn(host, port int) error {
	if _, ok := t.Lookup(host); ok {
		return nil
	}

	for i := range t.entries {
		if !t.entries[i].Valid {
			t.entries[i] = ForwardingEntry{HostID: host, Port: port, Valid: true}
			return nil
		}
	}

	return ErrTableFull
}

// Entries returns a copy of the valid entries.
func (t *Table) Entries() []ForwardingEntry {
	var out []ForwardingEntry

	for _, e := range t.entries {
		if e.Valid {
			out = append(out, e)
		}
	}

	return out
}
