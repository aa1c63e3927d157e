// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package reactor

import (
	"math/rand"
	"time"

	"github.com/juju/errors"

	"github.com/swarmlab/reactor/internal/reactor/config"
)

// MutexGroupState tracks one mutex group's selection history. It is
// owned by the reactor and advanced only after a tick's batch has
// executed, which is what gives round-robin its fairness.
type MutexGroupState struct {
	LastSelectedID string
	SelectionCount uint64
	LastExecutedAt time.Time
}

// ResolutionConfig holds the dependencies and tuning of a
// MutexResolutionEngine.
type ResolutionConfig struct {
	Logger   Logger
	Strategy config.MutexStrategy

	// Rand drives the weighted_random strategy. Tests inject a
	// seeded source.
	Rand *rand.Rand
}

// Validate returns an error if the config cannot drive an engine.
func (c ResolutionConfig) Validate() error {
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	switch c.Strategy {
	case config.StrategyPriorityBased, config.StrategyRoundRobin, config.StrategyWeightedRandom:
	default:
		return errors.NotValidf("mutex strategy %q", c.Strategy)
	}
	if c.Strategy == config.StrategyWeightedRandom && c.Rand == nil {
		return errors.NotValidf("weighted_random strategy without Rand")
	}
	return nil
}

// MutexResolutionEngine collapses each contested mutex group to at
// most one winner per tick.
type MutexResolutionEngine struct {
	config ResolutionConfig
}

// NewMutexResolutionEngine returns an engine backed by config.
func NewMutexResolutionEngine(config ResolutionConfig) (*MutexResolutionEngine, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &MutexResolutionEngine{config: config}, nil
}

// ResolveMutexCollisions returns the units that may coexist within
// one tick: every groupless unit, plus exactly one winner from each
// contested group. The result is priority-descending, stable on
// registration order. Group state is not advanced here; the caller
// does that after execution via UpdateMutexGroupState.
func (e *MutexResolutionEngine) ResolveMutexCollisions(
	triggered []TriggeredUnit,
	groups map[string]*MutexGroupState,
) []TriggeredUnit {
	resolved := make([]TriggeredUnit, 0, len(triggered))
	buckets := make(map[string][]TriggeredUnit)
	var bucketOrder []string

	for _, record := range triggered {
		if record.MutexGroup == "" {
			resolved = append(resolved, record)
			continue
		}
		if _, ok := buckets[record.MutexGroup]; !ok {
			bucketOrder = append(bucketOrder, record.MutexGroup)
		}
		buckets[record.MutexGroup] = append(buckets[record.MutexGroup], record)
	}

	for _, group := range bucketOrder {
		members := buckets[group]
		if len(members) == 1 {
			resolved = append(resolved, members[0])
			continue
		}
		winner := e.pickWinner(group, members, groups[group])
		e.config.Logger.Debugf(
			"mutex group %q contested by %d units, selected %q (%s)",
			group, len(members), winner.Unit.Identity().ID, e.config.Strategy)
		resolved = append(resolved, winner)
	}

	sortByPriority(resolved)
	return resolved
}

// UpdateMutexGroupState advances the group's selection history after
// the winner has executed.
func (e *MutexResolutionEngine) UpdateMutexGroupState(
	group, winnerID string,
	groups map[string]*MutexGroupState,
	now time.Time,
) {
	state := groups[group]
	if state == nil {
		state = &MutexGroupState{}
		groups[group] = state
	}
	state.LastSelectedID = winnerID
	state.SelectionCount++
	state.LastExecutedAt = now
}

func (e *MutexResolutionEngine) pickWinner(
	group string,
	members []TriggeredUnit,
	state *MutexGroupState,
) TriggeredUnit {
	switch e.config.Strategy {
	case config.StrategyRoundRobin:
		return pickRoundRobin(members, state)
	case config.StrategyWeightedRandom:
		return e.pickWeightedRandom(members)
	default:
		return pickPriority(members)
	}
}

// pickPriority selects the highest-priority member, ties broken by
// registration order.
func pickPriority(members []TriggeredUnit) TriggeredUnit {
	best := members[0]
	for _, member := range members[1:] {
		if member.Priority > best.Priority ||
			(member.Priority == best.Priority && member.order < best.order) {
			best = member
		}
	}
	return best
}

// pickRoundRobin selects the member after the group's last-selected
// id, wrapping; the first member if there is no prior selection or
// the last winner has left the group.
func pickRoundRobin(members []TriggeredUnit, state *MutexGroupState) TriggeredUnit {
	if state == nil || state.LastSelectedID == "" {
		return members[0]
	}
	for i, member := range members {
		if member.Unit.Identity().ID == state.LastSelectedID {
			return members[(i+1)%len(members)]
		}
	}
	return members[0]
}

// pickWeightedRandom draws uniformly over cumulative weight, where a
// member's weight is max(1, priority).
func (e *MutexResolutionEngine) pickWeightedRandom(members []TriggeredUnit) TriggeredUnit {
	var total int64
	for _, member := range members {
		total += weightOf(member)
	}
	draw := e.config.Rand.Int63n(total) + 1
	var cumulative int64
	for _, member := range members {
		cumulative += weightOf(member)
		if cumulative >= draw {
			return member
		}
	}
	return members[len(members)-1]
}

func weightOf(member TriggeredUnit) int64 {
	if member.Priority < 1 {
		return 1
	}
	return int64(member.Priority)
}
