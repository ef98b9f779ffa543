package cosign

// Outcome is the result of handling one candidate.
type Outcome int

const (
	// OutcomeSkipped: not a multisig transfer.
	OutcomeSkipped Outcome = iota
	// OutcomeDuplicate: already signed, or being signed right now.
	OutcomeDuplicate
	// OutcomeRejected: failed allow-list, account or signature verification.
	OutcomeRejected
	// OutcomeRateLimited: would exceed the configured ceiling.
	OutcomeRateLimited
	// OutcomeDryRun: passed every check but signing is disabled.
	OutcomeDryRun
	// OutcomeSigned: announced with SUCCESS and recorded.
	OutcomeSigned
	// OutcomeBroadcastNeutral: announce returned NEUTRAL, nothing recorded.
	OutcomeBroadcastNeutral
	// OutcomeBroadcastFailed: announce failed, nothing recorded.
	OutcomeBroadcastFailed
	// OutcomeError: store, key or serialization failure.
	OutcomeError
)

var outcomeNames = [...]string{
	OutcomeSkipped:          "skipped",
	OutcomeDuplicate:        "duplicate",
	OutcomeRejected:         "rejected",
	OutcomeRateLimited:      "rate_limited",
	OutcomeDryRun:           "dry_run",
	OutcomeSigned:           "signed",
	OutcomeBroadcastNeutral: "broadcast_neutral",
	OutcomeBroadcastFailed:  "broadcast_failed",
	OutcomeError:            "error",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}
