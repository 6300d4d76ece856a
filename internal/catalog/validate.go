package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Validation error taxonomy, per spec.md §7. These are raised synchronously
// from the command path, reported to the operator, and never sent.
var (
	ErrInvalidUID     = errors.New("catalog: invalid or unknown uid")
	ErrInvalidAccess  = errors.New("catalog: feature is not writable")
	ErrInvalidValue   = errors.New("catalog: value rejected by feature constraints")
	ErrInvalidProgram = errors.New("catalog: invalid or unknown program")
	ErrInvalidOption  = errors.New("catalog: invalid or unknown program option")
)

// ValidateWrite implements the write validation policy of spec.md §4.3 for
// a single POST /ro/values item. It returns the normalized {uid, value}
// item to place on the wire (integer uid; enum display strings translated
// back to their numeric key).
func (c *Catalog) ValidateWrite(item map[string]interface{}) (map[string]interface{}, error) {
	rawUID, ok := item["uid"]
	if !ok {
		return nil, fmt.Errorf("%w: uid is required", ErrInvalidUID)
	}
	uidInt, ok := parseIntLoose(rawUID)
	if !ok {
		return nil, fmt.Errorf("%w: uid must be an integer", ErrInvalidUID)
	}

	value, hasValue := item["value"]
	if !hasValue {
		return nil, fmt.Errorf("%w: value is required", ErrInvalidValue)
	}

	uid := strconv.Itoa(uidInt)

	c.mu.Lock()
	feature, exists := c.features[uid]
	if !exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: uid %s", ErrInvalidUID, uid)
	}
	warn, _ := c.snapshotAccessWarning(uid)
	c.mu.Unlock()
	_ = warn // the access mismatch is not logged or returned; it never blocks the write

	normalized, err := c.normalizeValue(feature, value)
	if err != nil {
		return nil, err
	}

	out := map[string]interface{}{"uid": uidInt, "value": normalized}
	return out, nil
}

// normalizeValue applies steps 5-6 of the write validation policy: enum
// translation and min/max bounds checking.
func (c *Catalog) normalizeValue(feature *Feature, value interface{}) (interface{}, error) {
	if len(feature.Values) > 0 {
		switch v := value.(type) {
		case float64:
			key := strconv.Itoa(int(v))
			if _, ok := feature.Values[key]; !ok {
				return nil, fmt.Errorf("%w: %v not in allowed values", ErrInvalidValue, v)
			}
			return int(v), nil
		case int:
			key := strconv.Itoa(v)
			if _, ok := feature.Values[key]; !ok {
				return nil, fmt.Errorf("%w: %v not in allowed values", ErrInvalidValue, v)
			}
			return v, nil
		case string:
			if isDigitString(v) {
				if _, ok := feature.Values[v]; !ok {
					return nil, fmt.Errorf("%w: %v not in allowed values", ErrInvalidValue, v)
				}
				n, _ := strconv.Atoi(v)
				return n, nil
			}
			key, ok := feature.valueKeyForDisplay(v)
			if !ok {
				return nil, fmt.Errorf("%w: %q not in allowed values %v", ErrInvalidValue, v, feature.Values)
			}
			n, _ := strconv.Atoi(key)
			return n, nil
		default:
			return nil, fmt.Errorf("%w: unsupported value type %T", ErrInvalidValue, value)
		}
	}

	if feature.Min != nil && feature.Max != nil {
		n, ok := parseIntLoose(value)
		if !ok || n < *feature.Min || n > *feature.Max {
			return nil, fmt.Errorf("%w: value must be an integer in [%d, %d]", ErrInvalidValue, *feature.Min, *feature.Max)
		}
		return n, nil
	}

	return value, nil
}

// ValidateProgram implements the program validation policy of spec.md
// §4.3 for POST /ro/activeProgram and /ro/selectedProgram. It mutates item
// in place, substituting a resolved numeric UID for a name reference, and
// validates any option UIDs.
func (c *Catalog) ValidateProgram(item map[string]interface{}) error {
	rawProgram, ok := item["program"]
	if !ok {
		return fmt.Errorf("%w: program is required", ErrInvalidProgram)
	}

	uid, err := c.resolveProgramUID(rawProgram)
	if err != nil {
		return err
	}
	item["program"] = uid

	rawOptions, ok := item["options"]
	if !ok {
		return nil
	}
	options, ok := rawOptions.([]interface{})
	if !ok {
		return nil
	}
	for _, raw := range options {
		opt, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		rawUID, ok := opt["uid"]
		if !ok {
			return fmt.Errorf("%w: option missing uid", ErrInvalidOption)
		}
		n, ok := parseIntLoose(rawUID)
		if !ok {
			return fmt.Errorf("%w: option uid must be an integer", ErrInvalidOption)
		}
		c.mu.RLock()
		_, exists := c.features[strconv.Itoa(n)]
		c.mu.RUnlock()
		if !exists {
			return fmt.Errorf("%w: option uid %d", ErrInvalidOption, n)
		}
	}
	return nil
}

func (c *Catalog) resolveProgramUID(raw interface{}) (int, error) {
	switch v := raw.(type) {
	case float64:
		return c.resolveNumericProgram(int(v))
	case int:
		return c.resolveNumericProgram(v)
	case string:
		if isDigitString(v) {
			n, _ := strconv.Atoi(v)
			return c.resolveNumericProgram(n)
		}
		uid, ok := c.FindUIDByName(v)
		if !ok {
			return 0, fmt.Errorf("%w: %q is not a known program", ErrInvalidProgram, v)
		}
		n, _ := strconv.Atoi(uid)
		return n, nil
	default:
		return 0, fmt.Errorf("%w: unsupported program reference type %T", ErrInvalidProgram, raw)
	}
}

func (c *Catalog) resolveNumericProgram(n int) (int, error) {
	name, ok := c.ResolveName(strconv.Itoa(n))
	if !ok {
		return 0, fmt.Errorf("%w: program uid %d is not valid for this device", ErrInvalidProgram, n)
	}
	if !strings.Contains(name, ".Program.") {
		return 0, fmt.Errorf("%w: uid %d (%s) is not a program", ErrInvalidProgram, n, name)
	}
	return n, nil
}
