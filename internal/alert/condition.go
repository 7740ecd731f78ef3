package alert

import "bond-alert-bot/internal/types"

// Classify places the current price relative to the target
func Classify(currentPrice, targetPrice float64) types.Condition {
	switch {
	case currentPrice > targetPrice:
		return types.ConditionAbove
	case currentPrice < targetPrice:
		return types.ConditionBelow
	}
	return types.ConditionEqual
}

// ShouldNotify reports whether moving from previous to next is a threshold
// crossing. Touching the target exactly is not one, and staying in the same
// condition never notifies again.
func ShouldNotify(previous, next types.Condition) bool {
	return next != previous && next != types.ConditionEqual
}
