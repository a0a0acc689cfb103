package syncengine

import (
	"encoding/json"
	"math"
	"strings"

	domain "bistrosync/internal/domain/sync"
)

func decodeRecord(serialized string) (domain.Record, error) {
	dec := json.NewDecoder(strings.NewReader(serialized))
	dec.UseNumber()

	var rec domain.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		if t == math.Trunc(t) {
			return int64(t), true
		}
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
	}
	return 0, false
}
