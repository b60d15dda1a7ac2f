package recipients

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/matheus3301/leadchat/internal/provider"
)

var u1 = provider.Session{OwnerID: "U1"}

type fakeGroups struct {
	groups []provider.Group
	linked []provider.Member
	err    error
}

func (f *fakeGroups) Groups(context.Context, provider.Session) ([]provider.Group, error) {
	return f.groups, f.err
}

func (f *fakeGroups) AllLinked(context.Context, provider.Session) ([]provider.Member, error) {
	return f.linked, f.err
}

func rec(status, service, date string) *provider.LinkedRecord {
	return &provider.LinkedRecord{Status: status, Service: service, Date: date}
}

func member(id string, r *provider.LinkedRecord) provider.Member {
	return provider.Member{ChannelID: id, LinkedRecord: r}
}

func TestResolveDeduplicatesFirstWins(t *testing.T) {
	src := &fakeGroups{
		groups: []provider.Group{{ID: "g1", Members: []provider.Member{
			member("a", rec("new", "", "")),
			member("b", nil),
			member("a", rec("lost", "", "")),
			member(" ", nil),
		}}},
		linked: []provider.Member{member("x", nil), member("x", nil), member("y", nil)},
	}
	r := NewResolver(src, time.UTC, nil)

	entries, err := r.Resolve(context.Background(), u1, Source{GroupID: "g1"})
	if err != nil {
		t.Fatal(err)
	}
	if got := ChannelIDs(entries); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("group entries = %v", got)
	}
	if entries[0].Record.Status != "new" {
		t.Errorf("first occurrence lost: %+v", entries[0].Record)
	}

	entries, err = r.Resolve(context.Background(), u1, Source{AllLinked: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := ChannelIDs(entries); !slices.Equal(got, []string{"x", "y"}) {
		t.Errorf("linked entries = %v", got)
	}
}

func TestResolveErrors(t *testing.T) {
	boom := errors.New("down")
	r := NewResolver(&fakeGroups{}, nil, nil)
	if _, err := r.Resolve(context.Background(), u1, Source{GroupID: "nope"}); !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("unknown group error = %v", err)
	}
	if _, err := r.Resolve(context.Background(), u1, Source{}); !errors.Is(err, ErrNoSource) {
		t.Errorf("empty source error = %v", err)
	}
	if _, err := r.Resolve(context.Background(), u1, Source{GroupID: "g1", AllLinked: true}); !errors.Is(err, ErrAmbiguousSource) {
		t.Errorf("group plus all linked error = %v", err)
	}
	r = NewResolver(&fakeGroups{err: boom}, nil, nil)
	if _, err := r.Resolve(context.Background(), u1, Source{AllLinked: true}); !errors.Is(err, boom) {
		t.Errorf("transport error = %v", err)
	}
}

func TestCriteriaMatches(t *testing.T) {
	base := Criteria{Statuses: []string{"new", "won"}, Services: []string{"solar"}}
	tests := []struct {
		name string
		c    Criteria
		rec  *provider.LinkedRecord
		want bool
	}{
		{"no record", base, nil, true},
		{"no status accepted", base, rec("", "solar", ""), true},
		{"no status skips service", base, rec("", "wind", ""), true},
		{"no status with disabled service still date filtered", Criteria{Services: []string{"solar"}, From: "2024-05-01"}, rec("", "wind", "2024-04-30"), false},
		{"status enabled", base, rec("new", "solar", ""), true},
		{"status disabled", base, rec("lost", "solar", ""), false},
		{"empty status set rejects resolvable status", Criteria{}, rec("new", "", ""), false},
		{"service not enabled", base, rec("new", "wind", ""), false},
		{"no service accepted", base, rec("new", "", ""), true},
		{"empty service set means no restriction", Criteria{Statuses: []string{"new"}}, rec("new", "wind", ""), true},
		{"start of day inclusive", Criteria{From: "2024-03-10"}, rec("", "", "2024-03-10 00:00:00"), true},
		{"before start", Criteria{From: "2024-03-10"}, rec("", "", "2024-03-09 23:59:59"), false},
		{"end of day inclusive", Criteria{To: "2024-03-10"}, rec("", "", "2024-03-10 23:59:59"), true},
		{"after end", Criteria{To: "2024-03-10"}, rec("", "", "2024-03-11"), false},
		{"bound with time normalized", Criteria{From: "2024-03-10T18:00:00Z", To: "2024-03-10T08:00:00Z"}, rec("", "", "2024-03-10T12:00:00Z"), true},
		{"unparsable bound is no constraint", Criteria{From: "someday", To: "later"}, rec("", "", "1999-01-01"), true},
		{"no date excluded when bound active", Criteria{From: "2024-01-01"}, rec("", "", ""), false},
		{"bad date excluded when bound active", Criteria{To: "2024-01-01"}, rec("", "", "n/a"), false},
		{"no date accepted without bounds", Criteria{}, rec("", "", "n/a"), true},
		{"no status still date filtered", Criteria{From: "2024-05-01", To: "2024-05-31"}, rec("", "", "2024-06-01"), false},
		{"brazilian date", Criteria{From: "2024-03-01", To: "2024-03-31"}, rec("", "", "15/03/2024"), true},
		{"unix seconds", Criteria{From: "2023-11-14"}, rec("", "", "1700000000"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Matches(tt.rec, time.UTC); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterUsesLocation(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	entries := []Entry{{ChannelID: "late", Record: rec("", "", "2024-03-11T01:00:00Z")}}

	if got := Filter(entries, Criteria{To: "2024-03-10"}, loc); len(got) != 1 {
		t.Errorf("in BRT the record falls on the 10th, got %v", got)
	}
	if got := Filter(entries, Criteria{To: "2024-03-10"}, time.UTC); len(got) != 0 {
		t.Errorf("in UTC the record falls on the 11th, got %v", got)
	}
}

func TestFilterMonotonic(t *testing.T) {
	statuses := []string{"", "new", "contacted", "won", "lost"}
	services := []string{"", "solar", "wind", "hydro"}
	dates := []string{"", "bad", "2024-01-05", "2024-02-10", "2024-03-15", "2024-04-20"}
	bounds := []string{"", "2024-01-01", "2024-02-01", "2024-03-01", "2024-05-01", "junk"}

	rng := rand.New(rand.NewPCG(7, 11))
	pick := func(pool []string) []string {
		var out []string
		for _, v := range pool {
			if v != "" && rng.IntN(2) == 0 {
				out = append(out, v)
			}
		}
		return out
	}

	entries := make([]Entry, 60)
	for i := range entries {
		entries[i] = Entry{
			ChannelID: fmt.Sprintf("c%d", i),
			Record:    rec(statuses[rng.IntN(len(statuses))], services[rng.IntN(len(services))], dates[rng.IntN(len(dates))]),
		}
	}

	for range 200 {
		a := Criteria{Statuses: pick(statuses), Services: pick(services)}
		b := Criteria{
			Statuses: append(slices.Clone(a.Statuses), pick(statuses)...),
			Services: append(slices.Clone(a.Services), pick(services)...),
		}
		if len(a.Services) == 0 {
			b.Services = nil
		}
		a.From = bounds[rng.IntN(len(bounds))]
		a.To = bounds[rng.IntN(len(bounds))]
		b.From, b.To = a.From, a.To
		if rng.IntN(2) == 0 {
			b.From = ""
		}
		if rng.IntN(2) == 0 {
			b.To = ""
		}

		narrow := ChannelIDs(Filter(entries, a, time.UTC))
		wide := ChannelIDs(Filter(entries, b, time.UTC))
		for _, id := range narrow {
			if !slices.Contains(wide, id) {
				t.Fatalf("widening %+v to %+v removed %s", a, b, id)
			}
		}
	}
}

func TestPickerSelectionLaw(t *testing.T) {
	entries := []Entry{
		{ChannelID: "a", Record: rec("new", "solar", "")},
		{ChannelID: "b", Record: rec("won", "solar", "")},
		{ChannelID: "c", Record: rec("new", "wind", "")},
		{ChannelID: "d", Record: nil},
	}
	p := NewPicker(entries, time.UTC)

	if got := p.Criteria(); !slices.Equal(got.Statuses, []string{"new", "won"}) || !slices.Equal(got.Services, []string{"solar", "wind"}) {
		t.Fatalf("initial criteria = %+v", got)
	}
	if len(p.Filtered()) != 4 || len(p.Selected()) != 0 {
		t.Fatalf("initial filtered/selected = %d/%d", len(p.Filtered()), len(p.Selected()))
	}

	p.SelectAll()
	p.SetCriteria(Criteria{Statuses: []string{"new"}, Services: []string{"solar", "wind"}})
	if got := ChannelIDs(p.Selected()); !slices.Equal(got, []string{"a", "c", "d"}) {
		t.Errorf("after narrowing = %v, want [a c d]", got)
	}

	p.SetCriteria(Criteria{Statuses: []string{"new", "won"}, Services: []string{"solar", "wind"}})
	if got := ChannelIDs(p.Selected()); !slices.Equal(got, []string{"a", "c", "d"}) {
		t.Errorf("widening added selections: %v", got)
	}
	if got := ChannelIDs(p.Filtered()); len(got) != 4 {
		t.Errorf("filtered after widening = %v", got)
	}

	if !p.Toggle("b") || !p.IsSelected("b") {
		t.Error("Toggle(b) did not select")
	}
	if p.Toggle("b") {
		t.Error("second Toggle(b) should deselect")
	}

	p.SetCriteria(Criteria{Statuses: []string{"won"}})
	if p.Toggle("a") {
		t.Error("selected a channel outside the filtered set")
	}
	p.Select("a", "b")
	if got := ChannelIDs(p.Selected()); !slices.Equal(got, []string{"b", "d"}) {
		t.Errorf("selected = %v, want [b d]", got)
	}

	p.Clear()
	if len(p.Selected()) != 0 {
		t.Error("Clear left selections")
	}
}

func TestPickerSetEntriesKeepsSurvivors(t *testing.T) {
	p := NewPicker([]Entry{{ChannelID: "a"}, {ChannelID: "b"}}, nil)
	p.SelectAll()
	p.SetEntries([]Entry{{ChannelID: "b"}, {ChannelID: "c"}})
	if got := ChannelIDs(p.Selected()); !slices.Equal(got, []string{"b"}) {
		t.Errorf("selected = %v, want [b]", got)
	}
}

func TestSubstitutions(t *testing.T) {
	entries := []Entry{
		{ChannelID: "a", Record: &provider.LinkedRecord{Name: "Maria Silva"}},
		{ChannelID: "b", Record: &provider.LinkedRecord{Name: "João Souza", FirstName: "Jota"}},
		{ChannelID: "c", Record: &provider.LinkedRecord{}},
		{ChannelID: "d"},
	}
	subs := Substitutions(entries)
	if len(subs) != 2 {
		t.Fatalf("subs = %v", subs)
	}
	if subs["a"]["firstName"] != "Maria" || subs["a"]["fullName"] != "Maria Silva" || subs["a"]["name"] != "Maria Silva" {
		t.Errorf("a = %v", subs["a"])
	}
	if subs["b"]["firstName"] != "Jota" {
		t.Errorf("b firstName = %q", subs["b"]["firstName"])
	}
}
