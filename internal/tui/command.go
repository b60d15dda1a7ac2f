package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/matheus3301/leadchat/internal/api"
)

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses a command string (without the leading ':').
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd
}

// ParseBroadcastArgs turns ":broadcast" arguments into a resolve request.
// Accepted terms are "all", group=<id>, status=a,b, service=a,b, from=<date>
// and to=<date>. Without a group the whole linked set is targeted.
func ParseBroadcastArgs(args string) (*api.ResolveRequest, error) {
	req := &api.ResolveRequest{}
	for _, term := range strings.Fields(args) {
		if term == "all" {
			req.AllLinked = true
			continue
		}
		key, value, ok := strings.Cut(term, "=")
		if !ok || value == "" {
			return nil, fmt.Errorf("bad broadcast term %q", term)
		}
		switch strings.ToLower(key) {
		case "group":
			req.GroupID = value
		case "status":
			req.Statuses = splitList(value)
		case "service":
			req.Services = splitList(value)
		case "from":
			req.From = value
		case "to":
			req.To = value
		default:
			return nil, fmt.Errorf("unknown broadcast filter %q", key)
		}
	}
	if req.GroupID != "" && req.AllLinked {
		return nil, errors.New("broadcast takes either group=<id> or all, not both")
	}
	if req.GroupID == "" {
		req.AllLinked = true
	}
	return req, nil
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
