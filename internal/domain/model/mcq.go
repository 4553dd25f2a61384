package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParseAnswerIndices decodes a comma-separated list of option indices such as "0,2".
// The result is sorted and free of duplicates.
func ParseAnswerIndices(encoded string) ([]int, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, nil
	}
	seen := make(map[int]struct{})
	var out []int
	for _, part := range strings.Split(encoded, ",") {
		part = strings.TrimSpace(part)
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid option index %q", part)
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

// FormatAnswerIndices is the inverse of ParseAnswerIndices.
func FormatAnswerIndices(indices []int) string {
	sorted := append([]int(nil), indices...)
	sort.Ints(sorted)
	parts := make([]string, 0, len(sorted))
	for i, n := range sorted {
		if i > 0 && sorted[i-1] == n {
			continue
		}
		parts = append(parts, strconv.Itoa(n))
	}
	return strings.Join(parts, ",")
}

// CheckSelection verifies that selected indices fit the option set.
func (o *McqOption) CheckSelection(selected []int) error {
	if len(selected) == 0 {
		return fmt.Errorf("at least one option must be selected")
	}
	if !o.MultiSelect && len(selected) > 1 {
		return fmt.Errorf("only one option may be selected")
	}
	seen := make(map[int]struct{}, len(selected))
	for _, idx := range selected {
		if idx < 0 || idx >= len(o.Options) {
			return fmt.Errorf("option index %d is out of range", idx)
		}
		if _, dup := seen[idx]; dup {
			return fmt.Errorf("option index %d is selected twice", idx)
		}
		seen[idx] = struct{}{}
	}
	return nil
}

// IsCorrect compares a selection with the answer key as sets.
func (o *McqOption) IsCorrect(selected []int) bool {
	key, err := ParseAnswerIndices(o.CorrectAnswers)
	if err != nil || len(key) == 0 {
		return false
	}
	return FormatAnswerIndices(selected) == FormatAnswerIndices(key)
}
