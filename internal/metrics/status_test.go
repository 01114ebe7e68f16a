package metrics

import (
	"reflect"
	"testing"
)

func TestFlattenStatusBuckets(t *testing.T) {
	tests := []struct {
		name    string
		buckets map[string]map[string]int
		want    []StatusBucket
	}{
		{
			name:    "nil buckets",
			buckets: nil,
			want:    nil,
		},
		{
			name:    "empty buckets",
			buckets: map[string]map[string]int{},
			want:    nil,
		},
		{
			name: "single bucket",
			buckets: map[string]map[string]int{
				"StartRun": {"500": 2},
			},
			want: []StatusBucket{
				{Operation: "StartRun", Code: "500", Count: 2},
			},
		},
		{
			name: "sorted by count desc",
			buckets: map[string]map[string]int{
				"ListActiveRuns": {"503": 7, "500": 1},
				"StartRun":       {"409": 3},
			},
			want: []StatusBucket{
				{Operation: "ListActiveRuns", Code: "503", Count: 7},
				{Operation: "StartRun", Code: "409", Count: 3},
				{Operation: "ListActiveRuns", Code: "500", Count: 1},
			},
		},
		{
			name: "tie breaking by operation then code",
			buckets: map[string]map[string]int{
				"StartRun":       {"500": 4, "404": 4},
				"ListActiveRuns": {"502": 4},
			},
			want: []StatusBucket{
				{Operation: "ListActiveRuns", Code: "502", Count: 4},
				{Operation: "StartRun", Code: "404", Count: 4},
				{Operation: "StartRun", Code: "500", Count: 4},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlattenStatusBuckets(tt.buckets)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FlattenStatusBuckets() = %v, want %v", got, tt.want)
			}
		})
	}
}
