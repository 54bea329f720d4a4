// Package housekeeping removes records the application no longer needs:
// history entries past a maximum age, and server-owned records whose server
// is gone.
package housekeeping

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/homestore/internal/metrics"
	"github.com/roach88/homestore/internal/record"
	"github.com/roach88/homestore/internal/store"
)

// DefaultMaxAge is how long history records are kept.
const DefaultMaxAge = 256 * time.Hour

// Rule selects which records of a kind a Definition removes.
type Rule int

const (
	// RuleAge removes records whose creation time is older than MaxAge.
	RuleAge Rule = iota

	// RuleOrphaned removes records whose server is not a known server.
	RuleOrphaned
)

func (r Rule) String() string {
	switch r {
	case RuleAge:
		return "age"
	case RuleOrphaned:
		return "orphaned"
	default:
		return fmt.Sprintf("Rule(%d)", int(r))
	}
}

// Definition is one cleanup pass over one kind.
type Definition struct {
	Kind string
	Rule Rule

	// CreatedField holds the creation time for RuleAge: unix seconds as
	// Int or Double, or an RFC 3339 String.
	CreatedField string
	MaxAge       time.Duration

	// ServerField holds the owning server id for RuleOrphaned.
	ServerField string

	// EligibleField, when set, limits RuleOrphaned to records where this
	// field is Bool(true). Records the user created locally are kept.
	EligibleField string
}

// ByAge removes records of kind created more than maxAge ago.
func ByAge(kind, createdField string, maxAge time.Duration) Definition {
	return Definition{Kind: kind, Rule: RuleAge, CreatedField: createdField, MaxAge: maxAge}
}

// OrphansOf removes records of kind owned by servers that no longer exist.
func OrphansOf(kind, serverField string) Definition {
	return Definition{Kind: kind, Rule: RuleOrphaned, ServerField: serverField}
}

// Defaults are the cleanups the application runs after startup.
func Defaults() []Definition {
	serverControlled := OrphansOf(record.KindAction, "serverIdentifier")
	serverControlled.EligibleField = "isServerControlled"

	return []Definition{
		ByAge(record.KindLocationHistoryEntry, "CreatedAt", DefaultMaxAge),
		ByAge(record.KindLocationError, "CreatedAt", DefaultMaxAge),
		ByAge(record.KindClientEvent, "date", DefaultMaxAge),
		serverControlled,
		OrphansOf(record.KindNotificationCategory, "serverIdentifier"),
		OrphansOf(record.KindZone, "serverIdentifier"),
		OrphansOf(record.KindScene, "serverIdentifier"),
	}
}

// Cleaner runs Definitions against a store.
type Cleaner struct {
	store   *store.Store
	now     func() time.Time
	servers []string
	metrics *metrics.Metrics
	log     *slog.Logger
}

// Option configures a Cleaner.
type Option func(*Cleaner)

// WithClock sets the time source for age rules.
func WithClock(now func() time.Time) Option {
	return func(c *Cleaner) { c.now = now }
}

// WithServers fixes the set of known server ids. Without it the ids of the
// store's server records are used, read inside each cleanup transaction.
func WithServers(ids ...string) Option {
	return func(c *Cleaner) { c.servers = append([]string{}, ids...) }
}

// WithMetrics counts deleted records.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cleaner) { c.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Cleaner) {
		if l != nil {
			c.log = l
		}
	}
}

// NewCleaner creates a cleaner for s.
func NewCleaner(s *store.Store, opts ...Option) *Cleaner {
	c := &Cleaner{
		store: s,
		now:   time.Now,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Report maps each kind to the number of records deleted from it.
type Report map[string]int

// Total returns the number of records deleted.
func (r Report) Total() int {
	n := 0
	for _, v := range r {
		n += v
	}
	return n
}

// String lists kinds with deletions, sorted.
func (r Report) String() string {
	kinds := make([]string, 0, len(r))
	for k, n := range r {
		if n > 0 {
			kinds = append(kinds, k)
		}
	}
	sort.Strings(kinds)
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%s=%d", k, r[k])
	}
	return strings.Join(parts, " ")
}

// Run applies every definition, each in its own write. When ctx already
// carries a write transaction on the store, the definitions run inside it.
// Run waits for all of them; failures are collected, not short-circuited.
func (c *Cleaner) Run(ctx context.Context, defs ...Definition) (Report, error) {
	if len(defs) == 0 {
		defs = Defaults()
	}

	futures := make([]*store.Future[int], len(defs))
	for i, def := range defs {
		def := def
		futures[i] = store.Write(ctx, c.store, func(tx *store.Tx) (int, error) {
			return c.apply(tx, def)
		})
	}

	report := make(Report)
	var result *multierror.Error
	for i, f := range futures {
		n, err := f.Wait(ctx)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("cleanup %s (%s): %w", defs[i].Kind, defs[i].Rule, err))
			continue
		}
		report[defs[i].Kind] += n
		c.metrics.ObserveCleanup(defs[i].Kind, n)
	}
	return report, result.ErrorOrNil()
}

func (c *Cleaner) apply(tx *store.Tx, def Definition) (int, error) {
	var match func(id string) (bool, error)
	switch def.Rule {
	case RuleAge:
		cutoff := c.now().Add(-def.MaxAge)
		match = func(id string) (bool, error) {
			v, err := tx.GetField(def.Kind, id, def.CreatedField)
			if err != nil {
				return false, err
			}
			created, ok := timeOf(v)
			return ok && created.Before(cutoff), nil
		}
	case RuleOrphaned:
		known, err := c.knownServers(tx)
		if err != nil {
			return 0, err
		}
		match = func(id string) (bool, error) {
			if def.EligibleField != "" {
				v, err := tx.GetField(def.Kind, id, def.EligibleField)
				if err != nil {
					return false, err
				}
				if !record.Equal(v, record.Bool(true)) {
					return false, nil
				}
			}
			v, err := tx.GetField(def.Kind, id, def.ServerField)
			if err != nil {
				return false, err
			}
			server, _ := record.AsString(v)
			_, ok := known[server]
			return !ok, nil
		}
	default:
		return 0, fmt.Errorf("unknown cleanup rule %d", def.Rule)
	}

	ids, err := tx.Enumerate(def.Kind)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, id := range ids {
		ok, err := match(id)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		if err := tx.Delete(def.Kind, id); err != nil {
			return 0, err
		}
		deleted++
	}
	if deleted > 0 {
		c.log.Info("cleaned up records", "kind", def.Kind, "rule", def.Rule.String(), "deleted", deleted)
	}
	return deleted, nil
}

func (c *Cleaner) knownServers(tx *store.Tx) (map[string]struct{}, error) {
	ids := c.servers
	if ids == nil {
		var err error
		ids, err = tx.Enumerate(record.KindServer)
		if err != nil {
			return nil, err
		}
	}
	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}
	return known, nil
}

// timeOf reads a creation time. Missing or unreadable times report false,
// so such records are never removed by age.
func timeOf(v record.Value) (time.Time, bool) {
	switch val := v.(type) {
	case record.Int:
		return time.Unix(int64(val), 0), true
	case record.Double:
		sec := float64(val)
		return time.Unix(0, int64(sec*float64(time.Second))), true
	case record.String:
		t, err := time.Parse(time.RFC3339Nano, string(val))
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}
