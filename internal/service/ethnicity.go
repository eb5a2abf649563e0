package service

import (
	"sort"
	"strings"
)

// ethnicityGroups maps a normalized group name to the substrings that identify it in free text.
var ethnicityGroups = map[string][]string{
	"white":            {"white", "caucasian", "european"},
	"black":            {"black", "afric"},
	"asian":            {"asian", "chinese", "japanese", "korean", "indian", "filipino", "vietnam"},
	"hispanic":         {"hispanic", "latin"},
	"latino":           {"hispanic", "latin"},
	"middle eastern":   {"middle east", "arab", "persian"},
	"native american":  {"native", "indigenous", "first nation", "aborig", "alaska"},
	"indigenous":       {"native", "indigenous", "first nation", "aborig", "alaska"},
	"pacific islander": {"pacific", "hawai", "samoa", "tonga"},
	"mixed":            {"mixed", "multi", "biracial"},
	"multiracial":      {"mixed", "multi", "biracial"},
}

// isUnconstrained reports whether a demographic filter value means "no filter".
func isUnconstrained(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, "any")
}

// KnownEthnicityGroup reports whether group is "Any"/empty or one of the closed set of groups.
func KnownEthnicityGroup(group string) bool {
	if isUnconstrained(group) {
		return true
	}
	_, ok := ethnicityGroups[strings.ToLower(strings.TrimSpace(group))]
	return ok
}

// EthnicityGroups returns the accepted group names in sorted order.
func EthnicityGroups() []string {
	names := make([]string, 0, len(ethnicityGroups))
	for name := range ethnicityGroups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MatchesEthnicityGroup tests a stored free-text ethnicity against a requested group.
// Unknown groups never match; callers reject them during validation.
func MatchesEthnicityGroup(ethnicity, group string) bool {
	if isUnconstrained(group) {
		return true
	}
	tokens, ok := ethnicityGroups[strings.ToLower(strings.TrimSpace(group))]
	if !ok {
		return false
	}
	text := strings.ToLower(strings.TrimSpace(ethnicity))
	for _, tok := range tokens {
		if strings.Contains(text, tok) {
			return true
		}
	}
	return false
}
