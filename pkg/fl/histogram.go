package fl

import (
	"fmt"
	"strconv"
	"strings"
)

// ClassRange is an inclusive range of class labels, e.g. 4-6.
type ClassRange struct {
	Lo int `json:"lo" toml:"lo"`
	Hi int `json:"hi" toml:"hi"`
}

func (c ClassRange) String() string {
	if c.Lo == c.Hi {
		return strconv.Itoa(c.Lo)
	}

	return fmt.Sprintf("%d-%d", c.Lo, c.Hi)
}

func (c ClassRange) Contains(class int) bool {
	return class >= c.Lo && class <= c.Hi
}

// Classes lists every label inside the range.
func (c ClassRange) Classes() []int {
	classes := make([]int, 0, c.Hi-c.Lo+1)
	for i := c.Lo; i <= c.Hi; i++ {
		classes = append(classes, i)
	}

	return classes
}

// ParseClassRanges parses "0-3,4-6,7-9" style lists.
func ParseClassRanges(s string) ([]ClassRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var ranges []ClassRange
	for part := range strings.SplitSeq(s, ",") {
		r, err := ParseClassRange(part)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}

	return ranges, nil
}

func ParseClassRange(s string) (ClassRange, error) {
	s = strings.TrimSpace(s)
	lo, hi, found := strings.Cut(s, "-")
	l, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return ClassRange{}, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}
	h := l
	if found {
		if h, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
			return ClassRange{}, fmt.Errorf("%w: %q", ErrInvalidRange, s)
		}
	}
	if l < 0 || h < l {
		return ClassRange{}, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}

	return ClassRange{Lo: l, Hi: h}, nil
}

// RangeShares returns, for every range, the percentage of predictions
// that fell inside it.
func RangeShares(histogram []uint64, ranges []ClassRange) []float64 {
	var total uint64
	for _, n := range histogram {
		total += n
	}

	shares := make([]float64, len(ranges))
	if total == 0 {
		return shares
	}
	for i, r := range ranges {
		var n uint64
		for class, count := range histogram {
			if r.Contains(class) {
				n += count
			}
		}
		shares[i] = 100 * float64(n) / float64(total)
	}

	return shares
}
