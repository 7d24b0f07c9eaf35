package season

import (
	"database/sql"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/lox/snowseason/internal/models"
)

// ErrInvalidQuery marks a scan parameter error. These come from the static
// marker menu, so they indicate a coding defect rather than bad data.
var ErrInvalidQuery = errors.New("invalid scan query")

// Mode selects how the values of one span are evaluated.
type Mode int

const (
	// ModeAny tests only the first value of the span.
	ModeAny Mode = iota
	// ModeAll requires every value of the span to satisfy the comparator.
	ModeAll
	// ModeMean compares the mean of the non-null values of the span.
	ModeMean
)

func (m Mode) String() string {
	switch m {
	case ModeAny:
		return "any"
	case ModeAll:
		return "all"
	case ModeMean:
		return "mean"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode resolves "any", "all" or "mean".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "any", "":
		return ModeAny, nil
	case "all":
		return ModeAll, nil
	case "mean":
		return ModeMean, nil
	}
	return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidQuery, s)
}

// Comparator is an ordering test of a value against a threshold.
type Comparator int

const (
	GT Comparator = iota + 1
	LT
	GE
	LE
)

func (c Comparator) String() string {
	switch c {
	case GT:
		return "gt"
	case LT:
		return "lt"
	case GE:
		return "ge"
	case LE:
		return "le"
	}
	return fmt.Sprintf("Comparator(%d)", int(c))
}

// ParseComparator resolves gt, lt, ge, le or their symbolic forms.
func ParseComparator(s string) (Comparator, error) {
	switch s {
	case "gt", ">":
		return GT, nil
	case "lt", "<":
		return LT, nil
	case "ge", ">=":
		return GE, nil
	case "le", "<=":
		return LE, nil
	}
	return 0, fmt.Errorf("%w: unknown comparator %q", ErrInvalidQuery, s)
}

// Holds reports whether v compares true against threshold. Null and NaN
// never satisfy any comparator.
func (c Comparator) Holds(v sql.NullFloat64, threshold float64) bool {
	if !v.Valid {
		return false
	}
	return c.holds(v.Float64, threshold)
}

func (c Comparator) holds(v, threshold float64) bool {
	if math.IsNaN(v) || math.IsNaN(threshold) {
		return false
	}
	switch c {
	case GT:
		return v > threshold
	case LT:
		return v < threshold
	case GE:
		return v >= threshold
	case LE:
		return v <= threshold
	}
	return false
}

// Query is one parameterisation of the window scan.
type Query struct {
	Span       int
	Column     models.Column
	Mode       Mode
	Threshold  float64
	Comparator Comparator
	OffsetDays int
}

// Validate checks the query parameters, not the data they will be applied to.
func (q Query) Validate() error {
	if q.Span < 1 {
		return fmt.Errorf("%w: span %d must be positive", ErrInvalidQuery, q.Span)
	}
	if _, err := models.ParseColumn(string(q.Column)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	switch q.Mode {
	case ModeAny, ModeAll, ModeMean:
	default:
		return fmt.Errorf("%w: unknown mode %v", ErrInvalidQuery, q.Mode)
	}
	switch q.Comparator {
	case GT, LT, GE, LE:
	default:
		return fmt.Errorf("%w: unknown comparator %v", ErrInvalidQuery, q.Comparator)
	}
	return nil
}

// Scan slides a span-long window over w one day at a time, in w's order, and
// returns the date of the first position where the query holds, shifted by
// OffsetDays. For ModeMean the reported date is the span's midpoint
// ((Span-1)/2 days in) before the offset is applied. A window shorter than
// Span, or one with no satisfying position, yields an invalid NullTime.
func Scan(w Window, q Query) (sql.NullTime, error) {
	if err := q.Validate(); err != nil {
		return sql.NullTime{}, err
	}

	var buf []float64
	if q.Mode == ModeMean {
		buf = make([]float64, 0, q.Span)
	}

	for i := 0; i+q.Span <= w.Len(); i++ {
		at := i
		var ok bool
		switch q.Mode {
		case ModeAny:
			ok = q.Comparator.Holds(w.At(i).Value(q.Column), q.Threshold)
		case ModeAll:
			ok = true
			for j := i; j < i+q.Span; j++ {
				if !q.Comparator.Holds(w.At(j).Value(q.Column), q.Threshold) {
					ok = false
					break
				}
			}
		case ModeMean:
			buf = buf[:0]
			for j := i; j < i+q.Span; j++ {
				if v := w.At(j).Value(q.Column); v.Valid && !math.IsNaN(v.Float64) {
					buf = append(buf, v.Float64)
				}
			}
			if len(buf) > 0 {
				ok = q.Comparator.holds(stat.Mean(buf, nil), q.Threshold)
			}
			if ok {
				at = i + (q.Span-1)/2
			}
		}
		if ok {
			return sql.NullTime{Time: w.At(at).Date.AddDate(0, 0, q.OffsetDays), Valid: true}, nil
		}
	}
	return sql.NullTime{}, nil
}
