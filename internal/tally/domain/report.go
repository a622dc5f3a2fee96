package domain

import (
	"slices"
	"strconv"
	"strings"
	"time"
)

// Snapshot is an independent point-in-time copy of the counter store.
type Snapshot map[ClientAddress]uint64

// Total returns the sum of all counts in the snapshot.
func (s Snapshot) Total() uint64 {
	var total uint64
	for _, c := range s {
		total += c
	}
	return total
}

// ReportEntry is one ranked (address, count) pair.
type ReportEntry struct {
	Address ClientAddress
	Count   uint64
}

// String renders the entry as "<address>: <count>".
func (e ReportEntry) String() string {
	return e.Address.String() + ": " + strconv.FormatUint(e.Count, 10)
}

// Rank orders the snapshot by descending count. Equal counts are ordered by
// ascending address (IPv4 before IPv6) so output is reproducible.
func Rank(s Snapshot) []ReportEntry {
	entries := make([]ReportEntry, 0, len(s))
	for addr, count := range s {
		entries = append(entries, ReportEntry{Address: addr, Count: count})
	}
	slices.SortFunc(entries, func(a, b ReportEntry) int {
		switch {
		case a.Count > b.Count:
			return -1
		case a.Count < b.Count:
			return 1
		}
		return a.Address.Compare(b.Address)
	})
	return entries
}

// Report is a ranked view of one snapshot.
type Report struct {
	GeneratedAt time.Time
	Entries     []ReportEntry
}

// NewReport ranks the snapshot into a Report stamped with at.
func NewReport(s Snapshot, at time.Time) Report {
	return Report{GeneratedAt: at, Entries: Rank(s)}
}

// Lines renders each entry as "<address>: <count>", in rank order.
func (r Report) Lines() []string {
	lines := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		lines[i] = e.String()
	}
	return lines
}

// String joins the entries with newlines. An empty report renders as "".
func (r Report) String() string {
	return strings.Join(r.Lines(), "\n")
}
