// Package model defines the data structures used throughout the
// application: accounts and their tag sets, posts with their review
// state history, resources, and notifications.
package model

import (
	"encoding/json"
	"sort"
)

// Entry is a tag category. Within one entry, tag values form a set.
type Entry string

const (
	EntryPermission Entry = "permission"
	EntryDepartment Entry = "department"
	EntryHouse      Entry = "house"
)

// Permission is a tag value within the permission entry, granting one
// specific action.
type Permission string

const (
	PermNewPost        Permission = "post-new"
	PermReviewPost     Permission = "post-review"
	PermGetPubPost     Permission = "post-get-pub"
	PermRemovePost     Permission = "post-remove"
	PermUploadResource Permission = "resource-upload"
	PermSetPermissions Permission = "account-set-permissions"
	PermViewSimple     Permission = "account-view-simple"
	PermViewFull       Permission = "account-view-full"
	PermManageNotif    Permission = "notification-manage"
	PermGetPubNotif    Permission = "notification-get-pub"
	PermMaintenance    Permission = "maintenance"
)

// userDefinableEntries are the entries a user may self-assign at
// registration. Everything else (notably the permission entry) is
// stripped before an unverified account is materialized.
var userDefinableEntries = map[Entry]bool{
	EntryDepartment: true,
	EntryHouse:      true,
}

// Tags maps entries to sets of tag values. The model does not enforce
// per-entry arity; callers that want a singleton entry (e.g. the
// permission assignment flow) clear the entry before refilling it.
//
// The zero value is usable.
type Tags struct {
	entries map[Entry]map[string]struct{}
}

// NewTags returns an empty tag collection.
func NewTags() Tags {
	return Tags{entries: make(map[Entry]map[string]struct{})}
}

// Insert adds a value to an entry, creating the entry if needed.
// Inserting an existing value is a no-op: entries are sets.
func (t *Tags) Insert(entry Entry, value string) {
	if t.entries == nil {
		t.entries = make(map[Entry]map[string]struct{})
	}
	set, ok := t.entries[entry]
	if !ok {
		set = make(map[string]struct{})
		t.entries[entry] = set
	}
	set[value] = struct{}{}
}

// FromEntry returns the values of an entry in sorted order, and whether
// the entry exists at all. An absent entry and an empty entry are
// distinct: absent means "no restriction ever established".
func (t *Tags) FromEntry(entry Entry) ([]string, bool) {
	set, ok := t.entries[entry]
	if !ok {
		return nil, false
	}
	values := make([]string, 0, len(set))
	for v := range set {
		values = append(values, v)
	}
	sort.Strings(values)
	return values, true
}

// ClearEntry empties an entry's set without removing the entry itself.
func (t *Tags) ClearEntry(entry Entry) {
	if set, ok := t.entries[entry]; ok {
		clear(set)
	}
}

// ContainsPermission reports whether the permission entry holds the
// given value.
func (t *Tags) ContainsPermission(p Permission) bool {
	set, ok := t.entries[EntryPermission]
	if !ok {
		return false
	}
	_, ok = set[string(p)]
	return ok
}

// RetainUserDefinable drops every entry a user must not self-assign.
// Called on the tag set supplied with a registration request.
func (t *Tags) RetainUserDefinable() {
	for entry := range t.entries {
		if !userDefinableEntries[entry] {
			delete(t.entries, entry)
		}
	}
}

// InitializePermissions ensures the permission entry exists (empty if
// absent) so a freshly verified account starts with an explicit empty
// grant rather than "unrestricted".
func (t *Tags) InitializePermissions() {
	if t.entries == nil {
		t.entries = make(map[Entry]map[string]struct{})
	}
	if _, ok := t.entries[EntryPermission]; !ok {
		t.entries[EntryPermission] = make(map[string]struct{})
	}
}

// Permissions returns the permission entry as a set. A nil map means
// the entry is absent.
func (t *Tags) Permissions() map[Permission]struct{} {
	set, ok := t.entries[EntryPermission]
	if !ok {
		return nil
	}
	out := make(map[Permission]struct{}, len(set))
	for v := range set {
		out[Permission(v)] = struct{}{}
	}
	return out
}

// SetPermissions replaces the permission entry with exactly the given
// set (clear-then-refill; permission assignment is total replacement).
func (t *Tags) SetPermissions(perms []Permission) {
	t.InitializePermissions()
	t.ClearEntry(EntryPermission)
	for _, p := range perms {
		t.Insert(EntryPermission, string(p))
	}
}

// PermissionsSubsetOf reports whether every permission in t is also
// held by other. An absent permission entry in other counts as
// unrestricted; an absent entry in t is the empty set.
func (t *Tags) PermissionsSubsetOf(other *Tags) bool {
	if _, ok := other.entries[EntryPermission]; !ok {
		return true
	}
	theirs := other.entries[EntryPermission]
	for v := range t.entries[EntryPermission] {
		if _, ok := theirs[v]; !ok {
			return false
		}
	}
	return true
}

// MarshalJSON encodes entries as sorted value lists for stable output.
func (t Tags) MarshalJSON() ([]byte, error) {
	out := make(map[Entry][]string, len(t.entries))
	for entry := range t.entries {
		values, _ := t.FromEntry(entry)
		out[entry] = values
	}
	return json.Marshal(out)
}

func (t *Tags) UnmarshalJSON(data []byte) error {
	var raw map[Entry][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.entries = make(map[Entry]map[string]struct{}, len(raw))
	for entry, values := range raw {
		set := make(map[string]struct{}, len(values))
		for _, v := range values {
			set[v] = struct{}{}
		}
		t.entries[entry] = set
	}
	return nil
}
