package catalog

import (
	"strconv"
	"strings"
)

const (
	nameSelectedProgram = "BSH.Common.Root.SelectedProgram"
	nameActiveProgram   = "BSH.Common.Root.ActiveProgram"
)

// DecodeValues translates a list of {uid, value} items from an inbound
// /ro/values or /ro/allMandatoryValues payload into a name->value map, per
// the decoding rules of spec.md §4.3. Items without a value field are
// silently dropped.
func (c *Catalog) DecodeValues(items []map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(items))

	for _, item := range items {
		rawUID, ok := item["uid"]
		if !ok {
			continue
		}
		value, ok := item["value"]
		if !ok {
			continue
		}

		n, ok := parseIntLoose(rawUID)
		if !ok {
			continue
		}
		uid := strconv.Itoa(n)
		valueStr := stringify(value)

		c.mu.RLock()
		feature, known := c.features[uid]
		c.mu.RUnlock()

		name := uid
		decoded := value

		if known {
			if feature.Name != "" {
				name = feature.Name
			}
			if len(feature.Values) > 0 {
				if display, ok := feature.Values[valueStr]; ok {
					decoded = display
				}
			}
			if feature.RefCID == "01" && feature.RefDID == "00" {
				lower := strings.ToLower(valueStr)
				decoded = lower == "1" || lower == "true" || lower == "on"
			}
			if name == nameSelectedProgram || name == nameActiveProgram {
				if programName, ok := c.ResolveName(valueStr); ok {
					decoded = programName
				}
			}
		}

		result[name] = decoded
	}

	return result
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}
