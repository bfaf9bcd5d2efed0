package types_test

import (
	"testing"
	"time"

	"github.com/quarrydev/quarry/types"
)

func TestAsTime(t *testing.T) {
	ref := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

	cases := []struct {
		name string
		in   interface{}
		want time.Time
		ok   bool
	}{
		{"time.Time", ref, ref, true},
		{"rfc3339", "2024-03-15T09:30:00Z", ref, true},
		{"rfc3339 nano", "2024-03-15T09:30:00.000000000Z", ref, true},
		{"unix int64", ref.Unix(), ref, true},
		{"unix int", int(ref.Unix()), ref, true},
		{"unix float", float64(ref.Unix()), ref, true},
		{"garbage string", "not a time", time.Time{}, false},
		{"bool", true, time.Time{}, false},
		{"nil", nil, time.Time{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := types.AsTime(tc.in)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if ok && !got.Equal(tc.want) {
				t.Errorf("AsTime = %v, want %v", got, tc.want)
			}
		})
	}
}
