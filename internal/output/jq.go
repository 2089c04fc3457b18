package output

import (
	"github.com/itchyny/gojq"
)

// ApplyJQ runs a jq expression over data. A single result is returned as-is;
// multiple results are collected into a slice.
func ApplyJQ(expr string, data any) (any, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, ErrUsageHint("Invalid --jq expression", err.Error())
	}

	var results []any
	iter := query.Run(normalizeData(data))
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			if halt, ok := err.(*gojq.HaltError); ok && halt.Value() == nil {
				break
			}
			return nil, ErrUsageHint("jq evaluation failed", err.Error())
		}
		results = append(results, v)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}
