package tui

import (
	"slices"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in       string
		wantName string
		wantArgs string
	}{
		{"q", "q", ""},
		{"  Search   hello world ", "search", "hello world"},
		{"broadcast group=g1 status=open", "broadcast", "group=g1 status=open"},
		{"", "", ""},
	}
	for _, tt := range tests {
		got := ParseCommand(tt.in)
		if got.Name != tt.wantName || got.Args != tt.wantArgs {
			t.Errorf("ParseCommand(%q) = %+v, want {%s %s}", tt.in, got, tt.wantName, tt.wantArgs)
		}
	}
}

func TestParseBroadcastArgs(t *testing.T) {
	req, err := ParseBroadcastArgs("group=g1 status=open,won service=gym from=2024-01-01 to=2024-02-01")
	if err != nil {
		t.Fatal(err)
	}
	if req.GroupID != "g1" || req.AllLinked {
		t.Errorf("group = %q all = %v", req.GroupID, req.AllLinked)
	}
	if !slices.Equal(req.Statuses, []string{"open", "won"}) {
		t.Errorf("Statuses = %v", req.Statuses)
	}
	if !slices.Equal(req.Services, []string{"gym"}) {
		t.Errorf("Services = %v", req.Services)
	}
	if req.From != "2024-01-01" || req.To != "2024-02-01" {
		t.Errorf("range = %s..%s", req.From, req.To)
	}

	req, err = ParseBroadcastArgs("")
	if err != nil {
		t.Fatal(err)
	}
	if !req.AllLinked {
		t.Error("empty args should target all linked records")
	}

	for _, bad := range []string{"status", "color=red", "group=", "all group=g1"} {
		if _, err := ParseBroadcastArgs(bad); err == nil {
			t.Errorf("ParseBroadcastArgs(%q) expected error", bad)
		}
	}
}
