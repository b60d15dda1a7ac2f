package recipients

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/leadchat/internal/provider"
)

// Criteria is a conjunction of status, service and date filters.
// From and To are dates; an unparsable bound is no constraint.
type Criteria struct {
	Statuses []string
	Services []string
	From     string
	To       string
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"02/01/2006",
	"02/01/2006 15:04",
}

// ParseDate parses a record or bound date leniently in loc. Unix seconds are
// accepted as well.
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && len(s) >= 9 {
		return time.Unix(secs, 0).In(loc), true
	}
	return time.Time{}, false
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func endOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, loc)
}

// compiled is Criteria with sets and resolved bounds.
type compiled struct {
	statuses map[string]bool
	services map[string]bool
	from, to *time.Time
}

func (c Criteria) compile(loc *time.Location) compiled {
	out := compiled{
		statuses: toSet(c.Statuses),
		services: toSet(c.Services),
	}
	if t, ok := ParseDate(c.From, loc); ok {
		start := startOfDay(t, loc)
		out.from = &start
	}
	if t, ok := ParseDate(c.To, loc); ok {
		end := endOfDay(t, loc)
		out.to = &end
	}
	return out
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			set[v] = true
		}
	}
	return set
}

func (c compiled) accepts(rec *provider.LinkedRecord, loc *time.Location) bool {
	var status, service, date string
	if rec != nil {
		status = strings.TrimSpace(rec.Status)
		service = strings.TrimSpace(rec.Service)
		date = rec.Date
	}
	// A record without a resolvable status bypasses status and service
	// filters; only the date range applies to it.
	if status != "" {
		if !c.statuses[status] {
			return false
		}
		if service != "" && len(c.services) > 0 && !c.services[service] {
			return false
		}
	}
	if c.from == nil && c.to == nil {
		return true
	}
	t, ok := ParseDate(date, loc)
	if !ok {
		return false
	}
	if c.from != nil && t.Before(*c.from) {
		return false
	}
	if c.to != nil && t.After(*c.to) {
		return false
	}
	return true
}

// Matches reports whether a single record passes the criteria.
func (c Criteria) Matches(rec *provider.LinkedRecord, loc *time.Location) bool {
	if loc == nil {
		loc = time.Local
	}
	return c.compile(loc).accepts(rec, loc)
}

// Filter returns the entries that pass the criteria, in order.
func Filter(entries []Entry, c Criteria, loc *time.Location) []Entry {
	if loc == nil {
		loc = time.Local
	}
	cc := c.compile(loc)
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if cc.accepts(e.Record, loc) {
			out = append(out, e)
		}
	}
	return out
}

// Statuses returns the distinct resolvable statuses of entries, sorted.
func Statuses(entries []Entry) []string {
	return distinct(entries, func(r *provider.LinkedRecord) string { return r.Status })
}

// Services returns the distinct resolvable services of entries, sorted.
func Services(entries []Entry) []string {
	return distinct(entries, func(r *provider.LinkedRecord) string { return r.Service })
}

func distinct(entries []Entry, field func(*provider.LinkedRecord) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range entries {
		if e.Record == nil {
			continue
		}
		v := strings.TrimSpace(field(e.Record))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// Permissive returns criteria enabling every status and service present in entries.
func Permissive(entries []Entry) Criteria {
	return Criteria{Statuses: Statuses(entries), Services: Services(entries)}
}
