package types

import "time"

// Condition is the position of a price relative to an alert target
type Condition string

const (
	ConditionAbove Condition = "above"
	ConditionBelow Condition = "below"
	ConditionEqual Condition = "equal"
)

func (c Condition) Valid() bool {
	switch c {
	case ConditionAbove, ConditionBelow, ConditionEqual:
		return true
	}
	return false
}

func (c Condition) String() string {
	return string(c)
}

type Alert struct {
	ID             string    `json:"id"`
	UserID         int64     `json:"user_id"`
	ISIN           string    `json:"isin"`
	Label          string    `json:"label"`
	TargetPrice    float64   `json:"target_price"`
	LastCondition  Condition `json:"last_condition"`
	LastCheckPrice float64   `json:"last_check_price"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type User struct {
	TelegramID int64     `json:"telegram_id"`
	Name       string    `json:"name"`
	Username   *string   `json:"username"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PricePoint is one intraday trade point of an instrument
type PricePoint struct {
	Time  time.Time
	Price float64
}

// PriceQuote is the latest price of an instrument as returned by one fetch
type PriceQuote struct {
	ISIN     string
	Label    string
	Currency string
	Price    float64
	Points   []PricePoint
}

// CycleReport summarizes one run of the alert refresh engine
type CycleReport struct {
	Alerts       int
	Instruments  int
	Resolved     int
	Unresolved   int
	Failed       int
	Notified     int
	NotifyFailed int
	Updated      int
	UpdateFailed int
	Skipped      int
	Duration     time.Duration
}
