package model

import (
	"fmt"
	"strings"
)

// PipelineState is the persisted job lifecycle. States are stored by name;
// keep them stable, the HTTP API and the job documents depend on them.
type PipelineState string

const (
	StateInit                  PipelineState = "INIT"
	StateResolvingIdentity     PipelineState = "RESOLVING_IDENTITY"
	StateUserIntentSelection   PipelineState = "USER_INTENT_SELECTION"
	StateSearching             PipelineState = "SEARCHING"
	StateDownloading           PipelineState = "DOWNLOADING"
	StateExtracting            PipelineState = "EXTRACTING"
	StateMatchingMetadata      PipelineState = "MATCHING_METADATA"
	StateUserMetadataSelection PipelineState = "USER_METADATA_SELECTION"
	StateTagging               PipelineState = "TAGGING"
	StateStoring               PipelineState = "STORING"
	StateArchiving             PipelineState = "ARCHIVING"
	StateFinalized             PipelineState = "FINALIZED"
	StateFailed                PipelineState = "FAILED"
	StateCancelled             PipelineState = "CANCELLED"
)

// allStates indexes every known state for parsing.
var allStates = map[PipelineState]struct{}{
	StateInit:                  {},
	StateResolvingIdentity:     {},
	StateUserIntentSelection:   {},
	StateSearching:             {},
	StateDownloading:           {},
	StateExtracting:            {},
	StateMatchingMetadata:      {},
	StateUserMetadataSelection: {},
	StateTagging:               {},
	StateStoring:               {},
	StateArchiving:             {},
	StateFinalized:             {},
	StateFailed:                {},
	StateCancelled:             {},
}

// ParseState validates a state name read from a persisted document.
func ParseState(name string) (PipelineState, error) {
	s := PipelineState(name)
	if _, ok := allStates[s]; !ok {
		return "", fmt.Errorf("unknown pipeline state %q", name)
	}
	return s, nil
}

// IsTerminal reports whether the state is final. Terminal jobs are never
// mutated again except to release their lock.
func (s PipelineState) IsTerminal() bool {
	switch s {
	case StateFinalized, StateFailed, StateCancelled:
		return true
	}
	return false
}

// IsPause reports whether the state requires controller input to advance.
func (s PipelineState) IsPause() bool {
	return strings.HasPrefix(string(s), "USER_")
}
