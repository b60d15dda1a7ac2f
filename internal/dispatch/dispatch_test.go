package dispatch

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/matheus3301/leadchat/internal/provider"
)

var u1 = provider.Session{OwnerID: "U1"}

type fakeBatcher struct {
	calls []provider.BatchRequest
	err   error
}

func (f *fakeBatcher) Batch(_ context.Context, _ provider.Session, req provider.BatchRequest) (provider.BatchAck, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return provider.BatchAck{}, f.err
	}
	return provider.BatchAck{JobID: "job-1", Accepted: true}, nil
}

func TestSecondsToMillis(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1.2", 1200, false},
		{"1,5", 1500, false},
		{" 3 ", 3000, false},
		{"0.0004", 0, false},
		{"", 0, false},
		{"0", 0, false},
		{"-2", 0, false},
		{"abc", 0, true},
		{"NaN", 0, true},
		{"Inf", 0, true},
		{"86400", MaxTimingMs, false},
		{"86400.001", 0, true},
		{"1e300", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := SecondsToMillis(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidTiming) {
				t.Errorf("error = %v, want ErrInvalidTiming", err)
			}
			if got != tt.want {
				t.Errorf("SecondsToMillis(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestSendConvertsTiming(t *testing.T) {
	f := &fakeBatcher{}
	d := New(f, nil, nil)

	ack, err := d.Send(context.Background(), u1, Request{
		Items:      []provider.Item{{Text: "Olá {{firstName}}"}},
		Recipients: []string{"c1", "c2"},
		Timing:     Timing{Interval: "1.2", BigInterval: "10", MessagesUntilBigInterval: 20},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !ack.Accepted || ack.Recipients != 2 {
		t.Errorf("ack = %+v", ack)
	}
	if len(f.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(f.calls))
	}
	got := f.calls[0]
	if got.IntervalMs != 1200 || got.BigIntervalMs != 10000 || got.MessagesUntilBigInterval != 20 {
		t.Errorf("timing = %d/%d/%d", got.IntervalMs, got.BigIntervalMs, got.MessagesUntilBigInterval)
	}
}

func TestSendRejectsLocally(t *testing.T) {
	media := &provider.Media{Data: []byte{0xff}, MimeType: "image/jpeg"}
	tests := []struct {
		name    string
		session provider.Session
		req     Request
		want    error
	}{
		{"no items", u1, Request{Recipients: []string{"c1"}}, ErrNoItems},
		{"all items empty", u1, Request{Items: []provider.Item{{Text: " "}, {Media: &provider.Media{}}}, Recipients: []string{"c1"}}, ErrEmptyMessage},
		{"no recipients", u1, Request{Items: []provider.Item{{Text: "hi"}}}, ErrNoRecipients},
		{"blank recipients", u1, Request{Items: []provider.Item{{Media: media}}, Recipients: []string{"", "  "}}, ErrNoRecipients},
		{"bad interval", u1, Request{Items: []provider.Item{{Text: "hi"}}, Recipients: []string{"c1"}, Timing: Timing{Interval: "soon"}}, ErrInvalidTiming},
		{"bad big interval", u1, Request{Items: []provider.Item{{Text: "hi"}}, Recipients: []string{"c1"}, Timing: Timing{BigInterval: "x"}}, ErrInvalidTiming},
		{"no session", provider.Session{}, Request{Items: []provider.Item{{Text: "hi"}}, Recipients: []string{"c1"}}, ErrNoSession},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeBatcher{}
			_, err := New(f, nil, nil).Send(context.Background(), tt.session, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Send() error = %v, want %v", err, tt.want)
			}
			if len(f.calls) != 0 {
				t.Errorf("provider called %d times on local rejection", len(f.calls))
			}
		})
	}
}

func TestBuildNormalizesRequest(t *testing.T) {
	media := &provider.Media{Data: []byte{1, 2}, MimeType: "image/png", Caption: "promo"}
	req := Request{
		Items:      []provider.Item{{Text: "first"}, {Text: "   "}, {Media: media}, {Text: "last"}},
		Recipients: []string{"c2", "c1", "c2", " c3 "},
		Timing:     Timing{Interval: "0", MessagesUntilBigInterval: -1},
		Substitutions: map[string]map[string]string{
			"c1":       {"firstName": "Ana"},
			"stranger": {"firstName": "Zé"},
			"c3":       {},
		},
	}
	got, err := Build(req)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got.ChatIDs, []string{"c2", "c1", "c3"}) {
		t.Errorf("ChatIDs = %v", got.ChatIDs)
	}
	if len(got.Items) != 3 || got.Items[0].Text != "first" || got.Items[1].Media != media || got.Items[2].Text != "last" {
		t.Errorf("Items = %+v", got.Items)
	}
	if got.IntervalMs != 0 || got.BigIntervalMs != 0 || got.MessagesUntilBigInterval != 0 {
		t.Errorf("timing should be omitted: %+v", got)
	}
	if len(got.ParamsByChatID) != 1 || got.ParamsByChatID["c1"]["firstName"] != "Ana" {
		t.Errorf("ParamsByChatID = %v", got.ParamsByChatID)
	}
}

func TestSendWrapsProviderError(t *testing.T) {
	boom := errors.New("502 bad gateway")
	f := &fakeBatcher{err: boom}
	_, err := New(f, nil, nil).Send(context.Background(), u1, Request{
		Items:      []provider.Item{{Text: "hi"}},
		Recipients: []string{"c1"},
	})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped provider error", err)
	}
}

func TestExpand(t *testing.T) {
	vars := map[string]string{"firstName": "Ana", "name": "Ana Lima"}
	tests := []struct {
		tmpl string
		vars map[string]string
		want string
	}{
		{"Oi {{firstName}}!", vars, "Oi Ana!"},
		{"{{ name }} / {{firstName}}", vars, "Ana Lima / Ana"},
		{"Oi {{company}}", vars, "Oi {{company}}"},
		{"Oi {{firstName}}", nil, "Oi {{firstName}}"},
		{"no placeholders", vars, "no placeholders"},
		{"{{firstName", vars, "{{firstName"},
	}
	for _, tt := range tests {
		if got := Expand(tt.tmpl, tt.vars); got != tt.want {
			t.Errorf("Expand(%q) = %q, want %q", tt.tmpl, got, tt.want)
		}
	}
}
