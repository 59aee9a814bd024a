package strategy

import "time"

// PreviousTradingDay returns the trading day whose levels apply to the
// given date. Monday looks back to Friday, Sunday to Friday, any other
// day to the previous calendar day.
func PreviousTradingDay(day time.Time) time.Time {
	switch day.Weekday() {
	case time.Monday:
		return day.AddDate(0, 0, -3)
	case time.Sunday:
		return day.AddDate(0, 0, -2)
	default:
		return day.AddDate(0, 0, -1)
	}
}
