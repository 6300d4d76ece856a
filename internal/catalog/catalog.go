// Package catalog holds the per-device mapping from numeric UID to feature
// metadata, and the validation policy applied to outbound writes and
// program selections. See spec.md §4.3.
//
// Grounded on the teacher's commands/types.go pattern of small typed enums
// layered over constants (CommandType, ErrorCode, Algorithm), applied here
// to Access, and on authkey/authkey.go's style of a minimal value type with
// a couple of accessor methods.
package catalog

import (
	"strconv"
	"strings"
	"sync"
)

// Access is a feature's read/write permission, case-insensitive on the
// wire (spec.md §3).
type Access string

const (
	AccessRead      Access = "read"
	AccessReadWrite Access = "readWrite"
	AccessWriteOnly Access = "writeOnly"
	AccessNone      Access = "none"
)

func normalizeAccess(s string) Access {
	switch strings.ToLower(s) {
	case "read":
		return AccessRead
	case "readwrite":
		return AccessReadWrite
	case "writeonly":
		return AccessWriteOnly
	case "none":
		return AccessNone
	default:
		return Access(s)
	}
}

func (a Access) writable() bool {
	switch normalizeAccess(string(a)) {
	case AccessReadWrite, AccessWriteOnly:
		return true
	default:
		return false
	}
}

// Feature holds the metadata for a single UID, per spec.md §3.
type Feature struct {
	Name      string
	Access    Access
	Available *bool
	RefCID    string
	RefDID    string
	Values    map[string]string // enum index (string) -> display string
	InitValue string
	Min       *int
	Max       *int
	StepSize  *int
	Handling  string // non-empty marks the feature as an event
}

// IsEvent reports whether the feature represents a transient event rather
// than persistent state (spec.md §3: "handling — presence marks the
// feature as an event").
func (f *Feature) IsEvent() bool {
	return f.Handling != ""
}

// valueKeyForDisplay reverse-looks-up a numeric key from its display
// string. If several keys share the same display string, which one is
// returned is not defined (Go map iteration order).
func (f *Feature) valueKeyForDisplay(display string) (string, bool) {
	for k, v := range f.Values {
		if v == display {
			return k, true
		}
	}
	return "", false
}

// Catalog is the thread-safe, per-device feature store. Reads come from
// the session's decode path and the bridge's validation path; writes come
// only from description-change merges on the session's receive path
// (spec.md §5: "Shared resources").
type Catalog struct {
	mu sync.RWMutex
	// order preserves insertion order for findUidByName's "first-match
	// order over insertion order" contract (spec.md §4.3).
	order    []string
	features map[string]*Feature
}

// New builds a Catalog from a device's UID->feature map, preserving the
// iteration order callers provide (callers should pass an order-stable
// source, e.g. decoded from a JSON array of [uid, feature] pairs).
func New(order []string, features map[string]*Feature) *Catalog {
	c := &Catalog{
		order:    append([]string(nil), order...),
		features: make(map[string]*Feature, len(features)),
	}
	for uid, f := range features {
		c.features[uid] = f
	}
	return c
}

// Resolve looks up a feature by its decimal-string UID.
func (c *Catalog) Resolve(uid string) (*Feature, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.features[uid]
	return f, ok
}

// ResolveName is a convenience over Resolve that returns just the dotted
// name, absent for UIDs discovered dynamically with no name.
func (c *Catalog) ResolveName(uid string) (string, bool) {
	f, ok := c.Resolve(uid)
	if !ok || f.Name == "" {
		return "", false
	}
	return f.Name, true
}

// FindUIDByName returns the first UID (in insertion order) whose feature
// name contains substr.
func (c *Catalog) FindUIDByName(substr string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, uid := range c.order {
		f, ok := c.features[uid]
		if ok && strings.Contains(f.Name, substr) {
			return uid, true
		}
	}
	// fall back to scanning every feature, which reaches UIDs that were
	// passed to New without a place in order (UIDs created by description
	// changes are appended to order and are already covered above)
	for uid, f := range c.features {
		if strings.Contains(f.Name, substr) {
			return uid, true
		}
	}
	return "", false
}

// DescriptionChange is the mergeable subset of a notification payload, per
// spec.md §4.4 ("/ro/descriptionChange, /ro/allDescriptionChanges ... merge
// access/available/min/max into the catalog").
type DescriptionChange struct {
	UID       string
	Access    *string
	Available *bool
	Min       *int
	Max       *int
	Default   *string
}

// ApplyDescriptionChange merges change into the catalog, creating a new
// entry if the UID is unknown (spec.md §4.3).
func (c *Catalog) ApplyDescriptionChange(change DescriptionChange) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.features[change.UID]
	if !ok {
		f = &Feature{}
		c.features[change.UID] = f
		c.order = append(c.order, change.UID)
	}

	if change.Access != nil {
		f.Access = normalizeAccess(*change.Access)
	}
	if change.Available != nil {
		f.Available = change.Available
	}
	if change.Min != nil {
		f.Min = change.Min
	}
	if change.Max != nil {
		f.Max = change.Max
	}
	if change.Default != nil {
		f.InitValue = *change.Default
	}
}

// snapshotAccessWarning reports whether a write to uid should be logged as
// a warning-but-allowed access mismatch (spec.md §4.3 policy step 4).
func (c *Catalog) snapshotAccessWarning(uid string) (warn bool, feature *Feature) {
	f := c.features[uid]
	if f.Access == "" {
		return true, f
	}
	if !f.Access.writable() {
		return true, f
	}
	return false, f
}

// parseIntLoose accepts both a JSON number (float64) and a digit string,
// the two shapes the appliance/MQTT payloads use interchangeably.
func parseIntLoose(v interface{}) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func isDigitString(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
