// Package recipients turns groups and linked records into a deduplicated,
// filterable set of batch recipients.
package recipients

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/leadchat/internal/provider"
)

// ErrUnknownGroup is returned when the source names a group the provider does not have.
var ErrUnknownGroup = errors.New("unknown group")

// ErrNoSource is returned when a Source names neither a group nor all linked records.
var ErrNoSource = errors.New("recipient source is empty")

// ErrAmbiguousSource is returned when a Source names both a group and all
// linked records.
var ErrAmbiguousSource = errors.New("recipient source names both a group and all linked records")

// Source selects where recipients come from: exactly one of GroupID or
// AllLinked must be set.
type Source struct {
	GroupID   string
	AllLinked bool
}

// Entry is one addressable recipient.
type Entry struct {
	ChannelID string
	Record    *provider.LinkedRecord
}

// GroupSource lists groups and the linked-record universe.
type GroupSource interface {
	Groups(ctx context.Context, s provider.Session) ([]provider.Group, error)
	AllLinked(ctx context.Context, s provider.Session) ([]provider.Member, error)
}

// Resolver resolves a Source into entries.
type Resolver struct {
	source GroupSource
	loc    *time.Location
	logger *zap.Logger
}

// NewResolver creates a resolver. loc is used for record dates and criteria
// bounds; nil means time.Local.
func NewResolver(source GroupSource, loc *time.Location, logger *zap.Logger) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{source: source, loc: loc, logger: logger}
}

// Location returns the location dates are interpreted in.
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// Resolve fetches the source's members and deduplicates them by channel id.
func (r *Resolver) Resolve(ctx context.Context, s provider.Session, src Source) ([]Entry, error) {
	switch {
	case src.AllLinked && src.GroupID != "":
		return nil, ErrAmbiguousSource

	case src.AllLinked:
		members, err := r.source.AllLinked(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("load linked records for %s: %w", s.OwnerID, err)
		}
		return Dedupe(members), nil

	case src.GroupID != "":
		groups, err := r.source.Groups(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("load groups for %s: %w", s.OwnerID, err)
		}
		for _, g := range groups {
			if g.ID == src.GroupID {
				entries := Dedupe(g.Members)
				r.logger.Debug("resolved group",
					zap.String("group", g.ID),
					zap.Int("members", len(g.Members)),
					zap.Int("recipients", len(entries)))
				return entries, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownGroup, src.GroupID)

	default:
		return nil, ErrNoSource
	}
}

// Dedupe converts members to entries keyed by channel id. The first
// occurrence wins and empty channel ids are dropped.
func Dedupe(members []provider.Member) []Entry {
	out := make([]Entry, 0, len(members))
	seen := make(map[string]bool, len(members))
	for _, m := range members {
		id := strings.TrimSpace(m.ChannelID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, Entry{ChannelID: id, Record: m.LinkedRecord})
	}
	return out
}

// ChannelIDs returns the channel ids of entries, in order.
func ChannelIDs(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ChannelID
	}
	return out
}

// Substitutions builds per-channel template variables from linked records.
// Entries without a named record are left out so their templates stay literal.
func Substitutions(entries []Entry) map[string]map[string]string {
	out := make(map[string]map[string]string)
	for _, e := range entries {
		if e.Record == nil {
			continue
		}
		name := strings.TrimSpace(e.Record.Name)
		if name == "" {
			continue
		}
		first := strings.TrimSpace(e.Record.FirstName)
		if first == "" {
			first = strings.Fields(name)[0]
		}
		out[e.ChannelID] = map[string]string{
			"name":      name,
			"fullName":  name,
			"firstName": first,
		}
	}
	return out
}
