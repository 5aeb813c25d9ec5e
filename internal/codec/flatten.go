package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"partymaker/internal/models"
)

const DefaultMaxDepth = 32

// FlattenKeys turns a membership value into a set. Objects are walked
// recursively: the key "nameValuePairs" descends into its value, any other
// key is a member when its value is true or "true", and nested objects under
// a member key are walked as well. A bare string or an array of strings is
// accepted as a list of members.
func FlattenKeys(v any, maxDepth int) (models.KeySet, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	out := models.KeySet{}
	if err := flatten(v, out, 0, maxDepth); err != nil {
		return nil, err
	}
	return out, nil
}

func flatten(v any, out models.KeySet, depth, maxDepth int) error {
	if depth > maxDepth {
		return fmt.Errorf("%w (limit %d)", ErrTooDeep, maxDepth)
	}
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if k == envelopeKey {
				if err := flatten(val, out, depth+1, maxDepth); err != nil {
					return err
				}
				continue
			}
			switch inner := val.(type) {
			case map[string]any:
				if err := flatten(inner, out, depth+1, maxDepth); err != nil {
					return err
				}
			default:
				if truthy(inner) {
					out.Add(k)
				}
			}
		}
	case map[string]bool:
		for k, ok := range t {
			if ok {
				out.Add(k)
			}
		}
	case models.KeySet:
		for k := range t {
			out.Add(k)
		}
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				out.Add(s)
			}
		}
	case string:
		out.Add(t)
	}
	return nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "true")
	}
	return false
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func asInt(v any) int {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n)
		}
		if f, err := t.Float64(); err == nil {
			return int(math.Trunc(f))
		}
	case float64:
		return int(t)
	case int:
		return t
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	return 0
}

func asBool(v any) bool {
	return truthy(v)
}
