package metrics

import "sort"

// StatusBucket is the failure count for one operation and HTTP status.
type StatusBucket struct {
	Operation string `json:"operation"`
	Code      string `json:"code"`
	Count     int    `json:"count"`
}

// FlattenStatusBuckets converts a nested operation->status map into rows
// sorted by descending count, then by operation and code.
func FlattenStatusBuckets(buckets map[string]map[string]int) []StatusBucket {
	if len(buckets) == 0 {
		return nil
	}
	rows := make([]StatusBucket, 0)
	for op, codes := range buckets {
		for code, count := range codes {
			rows = append(rows, StatusBucket{Operation: op, Code: code, Count: count})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			if rows[i].Operation == rows[j].Operation {
				return rows[i].Code < rows[j].Code
			}
			return rows[i].Operation < rows[j].Operation
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
