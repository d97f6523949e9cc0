package model

import (
	"encoding/json"
	"sort"
	"strings"
)

// Frequency controls how often the backend delivers alerts.
type Frequency string

const (
	FrequencyRealtime Frequency = "realtime"
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
)

// StringSet is an ordered, de-duplicated set of strings. It encodes as a
// JSON array.
type StringSet []string

// NewStringSet trims, de-duplicates and sorts values. Empty strings are
// dropped.
func NewStringSet(values ...string) StringSet {
	seen := make(map[string]struct{}, len(values))
	out := make(StringSet, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether v is in the set.
func (s StringSet) Contains(v string) bool {
	i := sort.SearchStrings(s, v)
	return i < len(s) && s[i] == v
}

// UnmarshalJSON accepts an array of strings or null.
func (s *StringSet) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = NewStringSet(values...)
	return nil
}

// AlertPreferences configures which market alerts the backend sends and
// through which channels.
type AlertPreferences struct {
	Commodities StringSet `json:"commodities" validate:"dive,required,max=32"`
	Regions     StringSet `json:"regions" validate:"dive,required,max=64"`
	Currencies  StringSet `json:"currencies" validate:"dive,required,len=3,uppercase"`

	Frequency Frequency `json:"frequency" validate:"required,oneof=realtime daily weekly"`
	Threshold Severity  `json:"threshold" validate:"required,oneof=low medium high"`

	PushEnabled  bool `json:"push_enabled"`
	EmailEnabled bool `json:"email_enabled"`
}

// DefaultPreferences is used before the backend has ever answered.
func DefaultPreferences() AlertPreferences {
	return AlertPreferences{
		Commodities: StringSet{},
		Regions:     StringSet{},
		Currencies:  StringSet{},
		Frequency:   FrequencyRealtime,
		Threshold:   SeverityMedium,
		PushEnabled: true,
	}
}

// Normalize canonicalizes the sets and lower-cases the enums.
func (p *AlertPreferences) Normalize() {
	p.Commodities = NewStringSet(p.Commodities...)
	p.Regions = NewStringSet(p.Regions...)

	currencies := make([]string, len(p.Currencies))
	for i, c := range p.Currencies {
		currencies[i] = strings.ToUpper(strings.TrimSpace(c))
	}
	p.Currencies = NewStringSet(currencies...)

	p.Frequency = Frequency(strings.ToLower(strings.TrimSpace(string(p.Frequency))))
	p.Threshold = Severity(strings.ToLower(strings.TrimSpace(string(p.Threshold))))
}
