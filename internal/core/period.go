package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Period is the month key expenses are bucketed by, written MM-YYYY.
type Period struct {
	Year  int
	Month int
}

// ParsePeriod accepts "MM-YYYY" (and the unpadded "M-YYYY").
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, "-")
	if len(parts) != 2 || len(parts[1]) != 4 {
		return Period{}, fmt.Errorf("%w: %w %q, want MM-YYYY", ErrInvalidInput, ErrInvalidPeriod, s)
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil {
		return Period{}, fmt.Errorf("%w: %w %q", ErrInvalidInput, ErrInvalidPeriod, s)
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return Period{}, fmt.Errorf("%w: %w %q", ErrInvalidInput, ErrInvalidPeriod, s)
	}
	p := Period{Year: year, Month: month}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// PeriodOf returns the period containing d.
func PeriodOf(d Date) Period {
	return Period{Year: d.Year(), Month: int(d.Month())}
}

func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 || p.Year < 1 {
		return fmt.Errorf("%w: %w %02d-%04d", ErrInvalidInput, ErrInvalidPeriod, p.Month, p.Year)
	}
	return nil
}

func (p Period) IsZero() bool { return p.Year == 0 && p.Month == 0 }

func (p Period) String() string {
	return fmt.Sprintf("%02d-%04d", p.Month, p.Year)
}

// FirstDay returns the first calendar day of the period.
func (p Period) FirstDay() Date {
	return NewDate(p.Year, p.Month, 1)
}

// Next returns the following period.
func (p Period) Next() Period {
	return PeriodOf(p.FirstDay().AddMonthsClamped(1))
}

// Prev returns the preceding period.
func (p Period) Prev() Period {
	return PeriodOf(p.FirstDay().AddMonthsClamped(-1))
}

func (p Period) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Period) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParsePeriod(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
