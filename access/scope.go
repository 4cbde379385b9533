package access

import (
	"encoding/json"
	"sort"
)

// Scope is the set of entity ids a user may reach: either every entity, or
// an explicit subset. The zero value is an empty subset.
type Scope struct {
	all bool
	ids map[string]struct{}
}

// All is the unrestricted scope.
func All() Scope {
	return Scope{all: true}
}

// Subset is a scope limited to ids. Duplicates collapse.
func Subset(ids ...string) Scope {
	s := Scope{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

func (s Scope) IsAll() bool {
	return s.all
}

// Contains reports whether id is inside the scope. An All scope contains
// every id; entity existence is the caller's concern.
func (s Scope) Contains(id string) bool {
	if s.all {
		return true
	}
	_, ok := s.ids[id]
	return ok
}

// IDs returns the sorted ids of a subset scope, or nil for All.
func (s Scope) IDs() []string {
	if s.all {
		return nil
	}
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Empty is true for a subset with no ids. All is never empty.
func (s Scope) Empty() bool {
	return !s.all && len(s.ids) == 0
}

func (s Scope) Equal(other Scope) bool {
	if s.all || other.all {
		return s.all == other.all
	}
	if len(s.ids) != len(other.ids) {
		return false
	}
	for id := range s.ids {
		if _, ok := other.ids[id]; !ok {
			return false
		}
	}
	return true
}

// MarshalJSON renders All as the string "all" and a subset as an id array.
func (s Scope) MarshalJSON() ([]byte, error) {
	if s.all {
		return json.Marshal("all")
	}
	return json.Marshal(s.IDs())
}
