package core

import (
	"fmt"
	"sync"
	"time"
)

// fixedHolidays are the Brazilian national holidays with fixed dates,
// keyed by MM-DD.
var fixedHolidays = map[string]string{
	"01-01": "Confraternização Universal",
	"04-21": "Tiradentes",
	"05-01": "Dia do Trabalho",
	"09-07": "Independência do Brasil",
	"10-12": "Nossa Senhora Aparecida",
	"11-02": "Finados",
	"11-15": "Proclamação da República",
	"11-20": "Dia da Consciência Negra",
	"12-25": "Natal",
}

// EasterSunday computes Easter for a year using the Meeus/Jones/Butcher
// algorithm (integer arithmetic only). Years outside [1, 9999] fail with
// ErrYearOutOfRange instead of producing garbage dates.
func EasterSunday(year int) (time.Time, error) {
	if year < 1 || year > 9999 {
		return time.Time{}, fmt.Errorf("%w: %d", ErrYearOutOfRange, year)
	}
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return NewDate(year, month, day), nil
}

// HolidayCalendar answers per-day holiday queries. A year's table is computed
// once and cached because callers probe day by day during business-day walks.
// Safe for concurrent readers.
type HolidayCalendar struct {
	mu     sync.RWMutex
	byYear map[int]map[string]string
}

func NewHolidayCalendar() *HolidayCalendar {
	return &HolidayCalendar{byYear: make(map[int]map[string]string)}
}

// HolidayName returns the holiday name for a date, or the empty string when
// the date is a regular day.
func (c *HolidayCalendar) HolidayName(d time.Time) (string, error) {
	table, err := c.Holidays(d.Year())
	if err != nil {
		return "", err
	}
	return table[d.Format("01-02")], nil
}

// Holidays returns the MM-DD → name table for a year, computing and caching
// it on first use.
func (c *HolidayCalendar) Holidays(year int) (map[string]string, error) {
	c.mu.RLock()
	table, ok := c.byYear[year]
	c.mu.RUnlock()
	if ok {
		return table, nil
	}

	easter, err := EasterSunday(year)
	if err != nil {
		return nil, err
	}

	table = make(map[string]string, len(fixedHolidays)+4)
	for k, v := range fixedHolidays {
		table[k] = v
	}
	table[easter.AddDate(0, 0, -47).Format("01-02")] = "Carnaval"
	table[easter.AddDate(0, 0, -2).Format("01-02")] = "Sexta-feira Santa"
	table[easter.Format("01-02")] = "Páscoa"
	table[easter.AddDate(0, 0, 60).Format("01-02")] = "Corpus Christi"

	c.mu.Lock()
	c.byYear[year] = table
	c.mu.Unlock()
	return table, nil
}
