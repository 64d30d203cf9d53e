package record

import "time"

// fiscalStartMonth is the first month of the utility's fiscal year.
const fiscalStartMonth = time.September

// FiscalYear maps a calendar date to the Sept 1 – Aug 31 fiscal year, which
// is named after the calendar year it ends in.
func FiscalYear(d time.Time) int {
	if d.Month() >= fiscalStartMonth {
		return d.Year() + 1
	}
	return d.Year()
}
