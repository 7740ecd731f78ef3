package commands

import (
	"bond-alert-bot/internal/types"
	"bond-alert-bot/lib/translation"
)

func bold(text string) string {
	return "*" + text + "*"
}

// labelOf falls back to the ISIN for instruments without a name
func labelOf(a types.Alert) string {
	if a.Label == "" {
		return a.ISIN
	}
	return a.Label
}

func conditionText(c types.Condition) string {
	switch c {
	case types.ConditionAbove:
		return translation.Translate("condition_above")
	case types.ConditionBelow:
		return translation.Translate("condition_below")
	case types.ConditionEqual:
		return translation.Translate("condition_equal")
	}
	return "-"
}
