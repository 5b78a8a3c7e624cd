// Package route maps recipient addresses to Discord user ids.
package route

import (
	"fmt"
	"strings"
)

// Table is an immutable address to user id lookup with a fallback for
// unmapped addresses. Lookups are exact and case-sensitive.
type Table struct {
	routes   map[string]string
	fallback string
}

// New copies routes so later changes to the caller's map are not seen.
func New(routes map[string]string, fallback string) *Table {
	copied := make(map[string]string, len(routes))
	for address, user := range routes {
		copied[address] = user
	}
	return &Table{routes: copied, fallback: fallback}
}

// Resolve returns the user id for address and whether it was mapped.
// Unmapped addresses resolve to the fallback.
func (t *Table) Resolve(address string) (string, bool) {
	if user, ok := t.routes[address]; ok {
		return user, true
	}
	return t.fallback, false
}

func (t *Table) Fallback() string {
	return t.fallback
}

func (t *Table) Len() int {
	return len(t.routes)
}

// ParseEntry splits an "address:userid" entry.
func ParseEntry(entry string) (address, user string, err error) {
	parts := strings.Split(entry, ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("route entry %q: want address:userid", entry)
	}
	address = strings.TrimSpace(parts[0])
	user = strings.TrimSpace(parts[1])
	if address == "" || user == "" {
		return "", "", fmt.Errorf("route entry %q: empty address or user id", entry)
	}
	return address, user, nil
}
