package calendar

import (
	"testing"
	"time"
)

func TestIsLeapYear(t *testing.T) {
	tests := []struct {
		year int
		want bool
	}{
		{2000, true},
		{1900, false},
		{2024, true},
		{2023, false},
		{2100, false},
		{1600, true},
	}
	for _, tt := range tests {
		if got := IsLeapYear(tt.year); got != tt.want {
			t.Errorf("IsLeapYear(%d) = %v, want %v", tt.year, got, tt.want)
		}
	}
}

func TestDaysInMonth(t *testing.T) {
	tests := []struct {
		year, month, want int
	}{
		{2024, 2, 29},
		{2023, 2, 28},
		{1900, 2, 28},
		{2000, 2, 29},
		{2024, 1, 31},
		{2024, 4, 30},
		{2024, 9, 30},
		{2024, 12, 31},
	}
	for _, tt := range tests {
		if got := DaysInMonth(tt.year, tt.month); got != tt.want {
			t.Errorf("DaysInMonth(%d, %d) = %d, want %d", tt.year, tt.month, got, tt.want)
		}
	}
}

func TestWeekdayMatchesTimePackage(t *testing.T) {
	day := time.Date(1960, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2080, time.January, 1, 0, 0, 0, 0, time.UTC)
	for ; day.Before(end); day = day.AddDate(0, 0, 3) {
		got := WeekdaySundayZero(day.Year(), int(day.Month()), day.Day())
		if got != int(day.Weekday()) {
			t.Fatalf("WeekdaySundayZero(%s) = %d, want %d", day.Format("2006-01-02"), got, day.Weekday())
		}
	}
}

func TestLastSundayOfMonth(t *testing.T) {
	tests := []struct {
		year, month, want int
	}{
		{2024, 3, 31},
		{2024, 10, 27},
		{2023, 3, 26},
		{2023, 10, 29},
		{2025, 3, 30},
		{2025, 10, 26},
		{2026, 3, 29},
		{2026, 10, 25},
	}
	for _, tt := range tests {
		if got := LastSundayOfMonth(tt.year, tt.month); got != tt.want {
			t.Errorf("LastSundayOfMonth(%d, %d) = %d, want %d", tt.year, tt.month, got, tt.want)
		}
	}
}

func TestEpochRoundTrip(t *testing.T) {
	for year := 1970; year <= 2060; year++ {
		for month := 1; month <= 12; month++ {
			for _, day := range []int{1, 15, 28, DaysInMonth(year, month)} {
				ts := Date(year, month, day, (year+month)%24, (day*7)%60, (year*13)%60)
				epoch := ToEpoch(ts)
				if got := FromEpoch(epoch); got != ts {
					t.Fatalf("FromEpoch(ToEpoch(%s)) = %s", ts, got)
				}
				if back := ToEpoch(FromEpoch(epoch)); back != epoch {
					t.Fatalf("ToEpoch(FromEpoch(%d)) = %d", epoch, back)
				}
			}
		}
	}
}

func TestToEpochKnownValues(t *testing.T) {
	tests := []struct {
		ts   Timestamp
		want int64
	}{
		{Date(1970, 1, 1, 0, 0, 0), 0},
		{Date(2000, 3, 1, 0, 0, 0), 951868800},
		{Date(2024, 7, 15, 10, 0, 0), 1721037600},
	}
	for _, tt := range tests {
		if got := ToEpoch(tt.ts); got != tt.want {
			t.Errorf("ToEpoch(%s) = %d, want %d", tt.ts, got, tt.want)
		}
	}
}

func TestSecondOfDay(t *testing.T) {
	if got := Date(2024, 1, 1, 13, 15, 0).SecondOfDay(); got != 47700 {
		t.Errorf("SecondOfDay = %d, want 47700", got)
	}
	if got := Date(2024, 1, 1, 23, 59, 59).SecondOfDay(); got != 86399 {
		t.Errorf("SecondOfDay = %d, want 86399", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		ts      Timestamp
		wantErr bool
	}{
		{"ordinary", Date(2024, 7, 15, 10, 0, 0), false},
		{"leap day", Date(2024, 2, 29, 0, 0, 0), false},
		{"no leap day", Date(2023, 2, 29, 0, 0, 0), true},
		{"century no leap", Date(1900, 2, 29, 0, 0, 0), true},
		{"month zero", Date(2024, 0, 1, 0, 0, 0), true},
		{"month 13", Date(2024, 13, 1, 0, 0, 0), true},
		{"april 31", Date(2024, 4, 31, 0, 0, 0), true},
		{"hour 24", Date(2024, 1, 1, 24, 0, 0), true},
		{"second 60", Date(2024, 1, 1, 0, 0, 60), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ts.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%s) error = %v, wantErr %v", tt.ts, err, tt.wantErr)
			}
		})
	}
}

func TestString(t *testing.T) {
	if got := Date(2024, 3, 5, 1, 2, 3).String(); got != "2024-03-05T01:02:03" {
		t.Errorf("String() = %q", got)
	}
}
