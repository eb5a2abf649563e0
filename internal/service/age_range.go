package service

import (
	"regexp"
	"strconv"
	"strings"
)

// OpenEndedAgeCeiling bounds "<min>+" tokens from above.
const OpenEndedAgeCeiling = 200

var (
	boundedAgePattern = regexp.MustCompile(`^(\d+)\s*-\s*(\d+)$`)
	openAgePattern    = regexp.MustCompile(`^(\d+)\s*\+$`)
)

// AgeRange is an inclusive age interval.
type AgeRange struct {
	Min int
	Max int
}

// ParseAgeRange parses "<min>-<max>" or "<min>+". The second return is false for any other
// form, including min > max.
func ParseAgeRange(token string) (AgeRange, bool) {
	token = strings.TrimSpace(token)
	if m := boundedAgePattern.FindStringSubmatch(token); m != nil {
		lo, err1 := strconv.Atoi(m[1])
		hi, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil || lo > hi {
			return AgeRange{}, false
		}
		return AgeRange{Min: lo, Max: hi}, true
	}
	if m := openAgePattern.FindStringSubmatch(token); m != nil {
		lo, err := strconv.Atoi(m[1])
		if err != nil || lo > OpenEndedAgeCeiling {
			return AgeRange{}, false
		}
		return AgeRange{Min: lo, Max: OpenEndedAgeCeiling}, true
	}
	return AgeRange{}, false
}

// Overlaps reports whether the two inclusive ranges share at least one age.
func (r AgeRange) Overlaps(other AgeRange) bool {
	return max(r.Min, other.Min) <= min(r.Max, other.Max)
}
