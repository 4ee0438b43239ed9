package locator

import (
	"fmt"
	"iter"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/faults"
)

// InvalidRangeError is returned when the date range is inverted.
type InvalidRangeError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid date range: start %s is after end %s",
		e.Start.Format(DateLayout), e.End.Format(DateLayout))
}

// Enumerator walks genders x divisions x dates, date-major.
type Enumerator struct {
	genders   []Gender
	divisions []Division
	start     time.Time
	end       time.Time
}

// NewEnumerator validates every input up front so no locator is produced from bad input.
func NewEnumerator(genders, divisions []string, start, end time.Time) (*Enumerator, error) {
	if len(genders) == 0 {
		return nil, faults.Validationf("at least one gender is required")
	}
	if len(divisions) == 0 {
		return nil, faults.Validationf("at least one division is required")
	}
	e := &Enumerator{
		genders:   make([]Gender, 0, len(genders)),
		divisions: make([]Division, 0, len(divisions)),
		start:     truncateDay(start),
		end:       truncateDay(end),
	}
	for _, raw := range genders {
		g, err := ParseGender(raw)
		if err != nil {
			return nil, err
		}
		e.genders = append(e.genders, g)
	}
	for _, raw := range divisions {
		d, err := ParseDivision(raw)
		if err != nil {
			return nil, err
		}
		e.divisions = append(e.divisions, d)
	}
	if e.start.After(e.end) {
		return nil, errors.Mark(&InvalidRangeError{Start: e.start, End: e.end}, faults.ErrValidation)
	}
	return e, nil
}

// Len is |genders| x |divisions| x days in range.
func (e *Enumerator) Len() int {
	days := int(e.end.Sub(e.start).Hours()/24) + 1
	return len(e.genders) * len(e.divisions) * days
}

// All yields every locator: all divisions for a gender before the next gender,
// all genders for a date before the next date. Each call starts over.
func (e *Enumerator) All() iter.Seq[Locator] {
	return func(yield func(Locator) bool) {
		for day := e.start; !day.After(e.end); day = day.AddDate(0, 0, 1) {
			for _, g := range e.genders {
				for _, d := range e.divisions {
					if !yield(Locator{Gender: g, Division: d, Date: day}) {
						return
					}
				}
			}
		}
	}
}
