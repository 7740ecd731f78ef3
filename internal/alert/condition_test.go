package alert

import (
	"bond-alert-bot/internal/types"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		current, target float64
		want            types.Condition
	}{
		{101, 100, types.ConditionAbove},
		{99.99, 100, types.ConditionBelow},
		{100, 100, types.ConditionEqual},
		{100.000001, 100, types.ConditionAbove},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.current, tt.target), "current %v target %v", tt.current, tt.target)
	}
}

func TestShouldNotify(t *testing.T) {
	above, below, equal := types.ConditionAbove, types.ConditionBelow, types.ConditionEqual

	tests := []struct {
		name           string
		previous, next types.Condition
		want           bool
	}{
		{"below to above", below, above, true},
		{"above to below", above, below, true},
		{"equal to above", equal, above, true},
		{"equal to below", equal, below, true},
		{"below to equal", below, equal, false},
		{"above to equal", above, equal, false},
		{"stays above", above, above, false},
		{"stays below", below, below, false},
		{"stays equal", equal, equal, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldNotify(tt.previous, tt.next))
		})
	}
}

// Leaving the target after touching it counts as a crossing, staying on one
// side does not.
func TestConditionSequence(t *testing.T) {
	target := 100.0
	prices := []float64{99, 101, 102, 100, 101, 98, 97, 100, 99}
	wantNotify := []bool{false, true, false, false, true, true, false, false, true}

	last := Classify(99.5, target)
	for i, p := range prices {
		next := Classify(p, target)
		assert.Equal(t, wantNotify[i], ShouldNotify(last, next), "step %d price %v", i, p)
		last = next
	}
}
