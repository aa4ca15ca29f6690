// Package calendar provides the proleptic Gregorian date arithmetic used by
// the DST rule and the brightness curve.
//
// A Timestamp carries no zone. Whether it is UTC or Stockholm local time is
// decided by the caller and never mixed.
package calendar

import (
	"fmt"
	"time"
)

// Timestamp is a civil date and time with second resolution.
type Timestamp struct {
	Year   int
	Month  int // 1-12
	Day    int
	Hour   int
	Minute int
	Second int
}

// Date is a shorthand for building a Timestamp.
func Date(year, month, day, hour, minute, second int) Timestamp {
	return Timestamp{Year: year, Month: month, Day: day, Hour: hour, Minute: minute, Second: second}
}

// IsLeapYear reports whether year is a leap year.
func IsLeapYear(year int) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}

var monthDays = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// DaysInMonth returns the number of days in month (1-12) of year.
func DaysInMonth(year, month int) int {
	if month == 2 && IsLeapYear(year) {
		return 29
	}
	return monthDays[month-1]
}

// sakamoto month offsets
var weekdayOffsets = [12]int{0, 3, 2, 5, 0, 3, 5, 1, 4, 6, 2, 4}

// WeekdaySundayZero returns the weekday of the given date, 0 = Sunday.
func WeekdaySundayZero(year, month, day int) int {
	if month < 3 {
		year--
	}
	w := (year + floorDiv(year, 4) - floorDiv(year, 100) + floorDiv(year, 400) + weekdayOffsets[month-1] + day) % 7
	if w < 0 {
		w += 7
	}
	return w
}

// LastSundayOfMonth returns the day of month of the last Sunday.
func LastSundayOfMonth(year, month int) int {
	last := DaysInMonth(year, month)
	return last - WeekdaySundayZero(year, month, last)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// ToEpoch converts a UTC timestamp to Unix seconds.
func ToEpoch(ts Timestamp) int64 {
	return ts.Time().Unix()
}

// FromEpoch converts Unix seconds to a UTC timestamp.
func FromEpoch(epoch int64) Timestamp {
	return FromTime(time.Unix(epoch, 0))
}

// FromTime truncates t to whole seconds and returns its UTC fields.
func FromTime(t time.Time) Timestamp {
	t = t.UTC()
	return Timestamp{
		Year:   t.Year(),
		Month:  int(t.Month()),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
	}
}

// Time returns ts as a time.Time in UTC.
func (ts Timestamp) Time() time.Time {
	return time.Date(ts.Year, time.Month(ts.Month), ts.Day, ts.Hour, ts.Minute, ts.Second, 0, time.UTC)
}

// SecondOfDay returns the time of day in seconds, 0-86399.
func (ts Timestamp) SecondOfDay() int {
	return ts.Hour*3600 + ts.Minute*60 + ts.Second
}

// Validate reports whether every field is in range for its calendar position.
func (ts Timestamp) Validate() error {
	if ts.Month < 1 || ts.Month > 12 {
		return fmt.Errorf("month %d out of range", ts.Month)
	}
	if ts.Day < 1 || ts.Day > DaysInMonth(ts.Year, ts.Month) {
		return fmt.Errorf("day %d out of range for %04d-%02d", ts.Day, ts.Year, ts.Month)
	}
	if ts.Hour < 0 || ts.Hour > 23 {
		return fmt.Errorf("hour %d out of range", ts.Hour)
	}
	if ts.Minute < 0 || ts.Minute > 59 {
		return fmt.Errorf("minute %d out of range", ts.Minute)
	}
	if ts.Second < 0 || ts.Second > 59 {
		return fmt.Errorf("second %d out of range", ts.Second)
	}
	return nil
}

func (ts Timestamp) String() string {
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d", ts.Year, ts.Month, ts.Day, ts.Hour, ts.Minute, ts.Second)
}
