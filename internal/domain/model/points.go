package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Points is a fixed-point amount with two fractional digits, stored as hundredths.
// It backs both question weights and submission scores.
type Points int64

const pointsScale = 100

// PointsFromFloat rounds f to the nearest hundredth.
func PointsFromFloat(f float64) Points {
	return Points(math.Round(f * pointsScale))
}

// WholePoints is a convenience for integral amounts.
func WholePoints(n int64) Points {
	return Points(n * pointsScale)
}

func (p Points) Float64() float64 {
	return float64(p) / pointsScale
}

func (p Points) String() string {
	return strconv.FormatFloat(p.Float64(), 'f', 2, 64)
}

func (p Points) MarshalJSON() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Points) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("points must be a number: %w", err)
	}
	parsed, err := ParsePoints(n.String())
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePoints reads a decimal string such as "12", "12.5" or "12.50".
// Values are exact: anything finer than a hundredth is rejected, not rounded.
func ParsePoints(s string) (Points, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsRune(s, '/') {
		return 0, fmt.Errorf("invalid points value %q", s)
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return 0, fmt.Errorf("invalid points value %q", s)
	}
	r.Mul(r, big.NewRat(pointsScale, 1))
	if !r.IsInt() {
		return 0, fmt.Errorf("points value %q has more than two decimal places", s)
	}
	n := r.Num()
	if !n.IsInt64() {
		return 0, fmt.Errorf("points value %q is out of range", s)
	}
	return Points(n.Int64()), nil
}

// Value stores points as a NUMERIC-compatible string.
func (p Points) Value() (driver.Value, error) {
	return p.String(), nil
}

func (p *Points) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*p = 0
		return nil
	case int64:
		*p = WholePoints(v)
		return nil
	case float64:
		*p = PointsFromFloat(v)
		return nil
	case []byte:
		parsed, err := ParsePoints(string(v))
		if err != nil {
			return err
		}
		*p = parsed
		return nil
	case string:
		parsed, err := ParsePoints(v)
		if err != nil {
			return err
		}
		*p = parsed
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Points", src)
	}
}

// NullPoints scans a nullable NUMERIC column into a *Points.
type NullPoints struct {
	Points *Points
}

func (n *NullPoints) Scan(src interface{}) error {
	if src == nil {
		n.Points = nil
		return nil
	}
	var p Points
	if err := p.Scan(src); err != nil {
		return err
	}
	n.Points = &p
	return nil
}

func (n NullPoints) Value() (driver.Value, error) {
	if n.Points == nil {
		return nil, nil
	}
	return n.Points.Value()
}
