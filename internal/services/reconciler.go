package services

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/spxlabs/command-core/internal/models"
)

const (
	// DefaultRetention is how long a setup missing from the incoming batch
	// survives before it is pruned. Long enough to tolerate one missed tick.
	DefaultRetention = 30 * time.Second
	// DefaultDowngradeGrace protects a triggered record against a stale
	// ready/forming update arriving out of order.
	DefaultDowngradeGrace = 12 * time.Second
)

// MergeOptions parameterizes one reconciliation pass. Now must be supplied so
// the pass stays pure.
type MergeOptions struct {
	Now            time.Time
	Retention      time.Duration
	DowngradeGrace time.Duration
}

func (o MergeOptions) withDefaults() MergeOptions {
	if o.Retention <= 0 {
		o.Retention = DefaultRetention
	}
	if o.DowngradeGrace <= 0 {
		o.DowngradeGrace = DefaultDowngradeGrace
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	return o
}

// mergeSetup arbitrates between an existing and an incoming record sharing an
// id. The more advanced and at least as recent side wins; a triggered record
// additionally resists a ready/forming downgrade until the incoming epoch
// exceeds it by more than the grace window. The winner inherits the loser's
// contract recommendation when it has none of its own.
func mergeSetup(existing, incoming models.Setup, grace time.Duration) models.Setup {
	existingEpoch := existing.LifecycleEpoch()
	incomingEpoch := incoming.LifecycleEpoch()
	existingPriority := existing.Status.Priority()
	incomingPriority := incoming.Status.Priority()

	keepExisting := false
	switch {
	case existing.Status == models.StatusTriggered &&
		(incoming.Status == models.StatusReady || incoming.Status == models.StatusForming):
		keepExisting = incomingEpoch-existingEpoch <= grace.Milliseconds()
	case existingPriority < incomingPriority && existingEpoch >= incomingEpoch:
		keepExisting = true
	case existingPriority == incomingPriority && existingEpoch > incomingEpoch:
		keepExisting = true
	}

	winner, loser := incoming, existing
	if keepExisting {
		winner, loser = existing, incoming
	}
	if winner.Contract == nil {
		winner.Contract = loser.Contract
	}
	return winner
}

// semanticKey collapses records that describe the same opportunity under
// different ids: same type, direction, regime and tick-rounded geometry.
func semanticKey(s *models.Setup) string {
	tick := func(v float64) float64 { return math.Round(v*4) / 4 }
	return fmt.Sprintf("%s|%s|%s|%.2f|%.2f|%.2f|%.2f|%.2f",
		s.Type, s.Direction, s.Regime,
		tick(s.EntryZone.Low), tick(s.EntryZone.High),
		tick(s.Stop), tick(s.Target1.Price), tick(s.Target2.Price))
}

// moreAdvanced ranks two records by status priority then lifecycle epoch then
// id, and is the tiebreak used by both the dedupe pass and output ordering.
func moreAdvanced(a, b *models.Setup) bool {
	ap, bp := a.Status.Priority(), b.Status.Priority()
	if ap != bp {
		return ap < bp
	}
	ae, be := a.LifecycleEpoch(), b.LifecycleEpoch()
	if ae != be {
		return ae > be
	}
	return a.ID < b.ID
}

// MergeActionableSetups reconciles an incoming batch into the previous live
// set. Pure and total: identical inputs always produce identical output, and
// merging the same batch twice is a no-op.
func MergeActionableSetups(existing, incoming []models.Setup, opts MergeOptions) []models.Setup {
	opts = opts.withDefaults()
	nowMs := opts.Now.UnixMilli()

	live := make(map[string]models.Setup, len(existing)+len(incoming))
	for _, s := range existing {
		live[s.ID] = s
	}

	seen := make(map[string]bool, len(incoming))
	for _, inc := range incoming {
		seen[inc.ID] = true
		merged := inc
		if prev, ok := live[inc.ID]; ok {
			merged = mergeSetup(prev, inc, opts.DowngradeGrace)
		}
		if merged.Status.IsActionable() {
			live[merged.ID] = merged
		} else {
			delete(live, merged.ID)
		}
	}

	// prune survivors the feed stopped mentioning
	for id, s := range live {
		if seen[id] {
			continue
		}
		if !s.Status.IsActionable() || nowMs-s.LifecycleEpoch() > opts.Retention.Milliseconds() {
			delete(live, id)
		}
	}

	// collapse duplicate emissions that differ only in id
	byKey := make(map[string]models.Setup, len(live))
	for _, s := range live {
		s := s
		key := semanticKey(&s)
		if best, ok := byKey[key]; !ok || moreAdvanced(&s, &best) {
			byKey[key] = s
		}
	}

	out := make([]models.Setup, 0, len(byKey))
	for _, s := range byKey {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return moreAdvanced(&out[i], &out[j])
	})
	return out
}

// RankSetups orders enriched setups for display: lifecycle first, then tier,
// then the expected-value and scoring signals, newest first on ties.
func RankSetups(setups []models.Setup) []models.Setup {
	ranked := make([]models.Setup, len(setups))
	copy(ranked, setups)
	sort.Slice(ranked, func(i, j int) bool {
		a, b := &ranked[i], &ranked[j]
		if ap, bp := a.Status.Priority(), b.Status.Priority(); ap != bp {
			return ap < bp
		}
		if ap, bp := a.Tier.Priority(), b.Tier.Priority(); ap != bp {
			return ap < bp
		}
		if a.EVR != b.EVR {
			return a.EVR > b.EVR
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.ConfluenceScore != b.ConfluenceScore {
			return a.ConfluenceScore > b.ConfluenceScore
		}
		if a.Probability != b.Probability {
			return a.Probability > b.Probability
		}
		if ae, be := a.LifecycleEpoch(), b.LifecycleEpoch(); ae != be {
			return ae > be
		}
		return a.ID < b.ID
	})
	return ranked
}
