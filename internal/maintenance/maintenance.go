// Package maintenance detects periodic maintenance work on a work order and
// computes due and overdue warnings for a vehicle from its odometer.
package maintenance

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"motoshop/internal/domain"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Rule describes one maintenance class. A line of text matches the rule when
// it contains any keyword and none of the excludes. Matching ignores case
// and Vietnamese diacritics.
type Rule struct {
	Type       domain.MaintenanceType
	Label      string
	IntervalKm int
	WarningKm  int
	Keywords   []string
	Excludes   []string
}

// DefaultRules returns the built-in rule table
func DefaultRules() []Rule {
	return []Rule{
		{
			Type:       domain.MaintenanceOilChange,
			Label:      "Thay nhớt máy",
			IntervalKm: 1500,
			WarningKm:  1300,
			Keywords:   []string{"nhớt", "dầu máy", "thay dầu", "engine oil", "oil change"},
			Excludes:   []string{"hộp số", "nhớt láp", "dầu láp", "gear"},
		},
		{
			Type:       domain.MaintenanceGearboxOil,
			Label:      "Thay nhớt hộp số",
			IntervalKm: 5000,
			WarningKm:  4500,
			Keywords:   []string{"nhớt hộp số", "dầu hộp số", "nhớt láp", "dầu láp", "gear oil", "gearbox oil"},
		},
		{
			Type:       domain.MaintenanceThrottleCleaning,
			Label:      "Vệ sinh kim phun, họng ga",
			IntervalKm: 20000,
			WarningKm:  18000,
			Keywords:   []string{"kim phun", "họng ga", "súc béc", "buồng đốt", "throttle", "injector"},
		},
	}
}

// Override replaces the interval and warning threshold of a rule
type Override struct {
	IntervalKm int `json:"intervalKm"`
	WarningKm  int `json:"warningKm"`
}

// WithOverrides applies per-type overrides to rules. Zero values keep the
// rule's own setting.
func WithOverrides(rules []Rule, overrides map[string]Override) []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	for i := range out {
		o, ok := overrides[string(out[i].Type)]
		if !ok {
			continue
		}
		if o.IntervalKm > 0 {
			out[i].IntervalKm = o.IntervalKm
		}
		if o.WarningKm > 0 {
			out[i].WarningKm = o.WarningKm
		}
	}
	return out
}

type compiledRule struct {
	Rule
	keywords []string
	excludes []string
}

func (r compiledRule) matches(folded string) bool {
	if folded == "" {
		return false
	}
	for _, ex := range r.excludes {
		if strings.Contains(folded, ex) {
			return false
		}
	}
	for _, kw := range r.keywords {
		if strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}

// Engine evaluates a rule table
type Engine struct {
	rules []compiledRule
}

// NewEngine creates an engine over rules
func NewEngine(rules []Rule) *Engine {
	e := &Engine{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		e.rules = append(e.rules, compiledRule{
			Rule:     r,
			keywords: foldAll(r.Keywords),
			excludes: foldAll(r.Excludes),
		})
	}
	return e
}

// Rules returns the engine's rule table
func (e *Engine) Rules() []Rule {
	out := make([]Rule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r.Rule)
	}
	return out
}

// Set is a set of maintenance types
type Set map[domain.MaintenanceType]struct{}

// Has reports whether t is in the set
func (s Set) Has(t domain.MaintenanceType) bool {
	_, ok := s[t]
	return ok
}

// Detect returns the maintenance types performed according to the part
// names, service descriptions and issue text of a work order
func (e *Engine) Detect(parts []domain.PartLine, services []domain.ServiceLine, issue string) Set {
	texts := make([]string, 0, len(parts)+len(services)+1)
	for _, p := range parts {
		texts = append(texts, fold(p.Name))
	}
	for _, s := range services {
		texts = append(texts, fold(s.Description))
	}
	texts = append(texts, fold(issue))

	found := make(Set)
	for _, r := range e.rules {
		for _, t := range texts {
			if r.matches(t) {
				found[r.Type] = struct{}{}
				break
			}
		}
	}
	return found
}

// Warning describes a maintenance type that is due soon or overdue
type Warning struct {
	Type               domain.MaintenanceType `json:"type"`
	Label              string                 `json:"label"`
	IntervalKm         int                    `json:"intervalKm"`
	LastServiceKm      int                    `json:"lastServiceKm"`
	LastServiceDate    *time.Time             `json:"lastServiceDate,omitempty"`
	KmSinceLastService int                    `json:"kmSinceLastService"`
	KmRemaining        int                    `json:"kmRemaining"`
	IsOverdue          bool                   `json:"isOverdue"`
	IsDueSoon          bool                   `json:"isDueSoon"`
}

// Check returns the warnings for a vehicle, overdue first, then by the
// distance left until due
func (e *Engine) Check(v *domain.Vehicle) []Warning {
	var warnings []Warning
	for _, r := range e.rules {
		last, seen := v.LastMaintenances[r.Type]
		since := v.CurrentKm - last.Km
		if since < 0 {
			since = 0
		}

		w := Warning{
			Type:               r.Type,
			Label:              r.Label,
			IntervalKm:         r.IntervalKm,
			LastServiceKm:      last.Km,
			KmSinceLastService: since,
			KmRemaining:        r.IntervalKm - since,
			IsOverdue:          since >= r.IntervalKm,
			IsDueSoon:          since >= r.WarningKm && since < r.IntervalKm,
		}
		if seen && !last.Date.IsZero() {
			d := last.Date
			w.LastServiceDate = &d
		}
		if w.IsOverdue || w.IsDueSoon {
			warnings = append(warnings, w)
		}
	}

	sort.SliceStable(warnings, func(i, j int) bool {
		if warnings[i].IsOverdue != warnings[j].IsOverdue {
			return warnings[i].IsOverdue
		}
		return warnings[i].KmRemaining < warnings[j].KmRemaining
	})
	return warnings
}

// Apply records the detected maintenance types at currentKm and returns the
// updated vehicle. CurrentKm is always set, even when nothing was detected.
// The input vehicle is not modified.
func Apply(v domain.Vehicle, detected Set, currentKm int, now time.Time) domain.Vehicle {
	history := make(map[domain.MaintenanceType]domain.MaintenanceRecord, len(v.LastMaintenances)+len(detected))
	for t, rec := range v.LastMaintenances {
		history[t] = rec
	}
	for t := range detected {
		history[t] = domain.MaintenanceRecord{Km: currentKm, Date: now}
	}
	v.LastMaintenances = history
	v.CurrentKm = currentKm
	v.UpdatedAt = now
	return v
}

func foldAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, fold(s))
	}
	return out
}

var dStroke = strings.NewReplacer("đ", "d", "Đ", "d")

// fold lowercases s and strips diacritics so "Thay NHỚT" matches "thay nhot"
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, dStroke.Replace(s))
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}
