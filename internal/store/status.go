package store

import "fmt"

// SignalStatus is the lifecycle state of a captured signal. Values are stored
// as-is and must stay stable across releases.
type SignalStatus string

const (
	SignalQueued   SignalStatus = "QUEUED"
	SignalEnriched SignalStatus = "ENRICHED"
	SignalPending  SignalStatus = "PENDING"
	SignalUsed     SignalStatus = "USED"
	SignalSkipped  SignalStatus = "SKIPPED"
	SignalFailed   SignalStatus = "FAILED"
)

var allSignalStatuses = []SignalStatus{
	SignalQueued,
	SignalEnriched,
	SignalPending,
	SignalUsed,
	SignalSkipped,
	SignalFailed,
}

var signalStatusSet = func() map[SignalStatus]struct{} {
	set := make(map[SignalStatus]struct{}, len(allSignalStatuses))
	for _, s := range allSignalStatuses {
		set[s] = struct{}{}
	}
	return set
}()

// claimableSignalStatuses are the states a signal may be claimed from.
var claimableSignalStatuses = map[SignalStatus]struct{}{
	SignalQueued:   {},
	SignalEnriched: {},
}

type signalTransition struct {
	from SignalStatus
	to   SignalStatus
}

// signalTransitions is the exhaustive set of legal signal moves. Anything not
// listed here is rejected rather than written.
var signalTransitions = map[signalTransition]struct{}{
	{SignalQueued, SignalEnriched}:  {},
	{SignalQueued, SignalPending}:   {},
	{SignalQueued, SignalSkipped}:   {},
	{SignalEnriched, SignalPending}: {},
	{SignalEnriched, SignalSkipped}: {},
	{SignalPending, SignalUsed}:     {},
	{SignalPending, SignalQueued}:   {},
	{SignalPending, SignalFailed}:   {},
	{SignalFailed, SignalQueued}:    {},
}

// ParseSignalStatus validates a raw status string.
func ParseSignalStatus(raw string) (SignalStatus, error) {
	s := SignalStatus(raw)
	if _, ok := signalStatusSet[s]; !ok {
		return "", fmt.Errorf("unknown signal status %q", raw)
	}
	return s, nil
}

// Claimable reports whether a signal in this status may be bound to an episode.
func (s SignalStatus) Claimable() bool {
	_, ok := claimableSignalStatuses[s]
	return ok
}

// CanTransitionTo reports whether the move is listed in the transition table.
func (s SignalStatus) CanTransitionTo(to SignalStatus) bool {
	_, ok := signalTransitions[signalTransition{from: s, to: to}]
	return ok
}

// EpisodeStatus is the lifecycle state of an episode. Values are stored as-is
// and must stay stable across releases.
type EpisodeStatus string

const (
	EpisodeGenerating   EpisodeStatus = "GENERATING"
	EpisodeSynthesizing EpisodeStatus = "SYNTHESIZING"
	EpisodeReady        EpisodeStatus = "READY"
	EpisodeFailed       EpisodeStatus = "FAILED"
	EpisodeArchived     EpisodeStatus = "ARCHIVED"
)

var allEpisodeStatuses = []EpisodeStatus{
	EpisodeGenerating,
	EpisodeSynthesizing,
	EpisodeReady,
	EpisodeFailed,
	EpisodeArchived,
}

var episodeStatusSet = func() map[EpisodeStatus]struct{} {
	set := make(map[EpisodeStatus]struct{}, len(allEpisodeStatuses))
	for _, s := range allEpisodeStatuses {
		set[s] = struct{}{}
	}
	return set
}()

// inFlightEpisodeStatuses are the non-terminal states the reaper watches.
var inFlightEpisodeStatuses = map[EpisodeStatus]struct{}{
	EpisodeGenerating:   {},
	EpisodeSynthesizing: {},
}

type episodeTransition struct {
	from EpisodeStatus
	to   EpisodeStatus
}

// episodeTransitions is the exhaustive set of legal episode moves. ARCHIVED is
// reachable from anywhere because an administrator may delete an in-flight
// episode; that path releases the bound signals first.
var episodeTransitions = map[episodeTransition]struct{}{
	{EpisodeGenerating, EpisodeSynthesizing}: {},
	{EpisodeGenerating, EpisodeFailed}:       {},
	{EpisodeGenerating, EpisodeArchived}:     {},
	{EpisodeSynthesizing, EpisodeReady}:      {},
	{EpisodeSynthesizing, EpisodeFailed}:     {},
	{EpisodeSynthesizing, EpisodeArchived}:   {},
	{EpisodeReady, EpisodeArchived}:          {},
	{EpisodeFailed, EpisodeArchived}:         {},
}

// ParseEpisodeStatus validates a raw status string.
func ParseEpisodeStatus(raw string) (EpisodeStatus, error) {
	s := EpisodeStatus(raw)
	if _, ok := episodeStatusSet[s]; !ok {
		return "", fmt.Errorf("unknown episode status %q", raw)
	}
	return s, nil
}

// InFlight reports whether the episode is still being generated.
func (s EpisodeStatus) InFlight() bool {
	_, ok := inFlightEpisodeStatuses[s]
	return ok
}

// Terminal reports whether no further pipeline transitions are possible.
func (s EpisodeStatus) Terminal() bool {
	return s == EpisodeReady || s == EpisodeFailed || s == EpisodeArchived
}

// CanTransitionTo reports whether the move is listed in the transition table.
func (s EpisodeStatus) CanTransitionTo(to EpisodeStatus) bool {
	_, ok := episodeTransitions[episodeTransition{from: s, to: to}]
	return ok
}
