package checkpoint

import (
	"time"

	"github.com/pkg/errors"

	"github.com/platform-net/validator-core/errs"
)

func ageExceededErr(age, max time.Duration) error {
	return errors.Errorf("checkpoint age %s exceeds max age %s", age, max)
}

func epochOutOfRangeErr(epoch uint64) error {
	return errors.Errorf("epoch %d exceeds sane maximum %d", epoch, maxSaneEpoch)
}

func emptySubmissionIDErr() error {
	return errors.New("pending evaluation has an empty submission id")
}

// RestoreOptions configures restore_latest/restore_from_sequence filtering.
type RestoreOptions struct {
	// MaxAge skips restoration (returns an error) if the checkpoint is
	// older than this, relative to time.Now(). Zero disables the check.
	MaxAge time.Duration
	// ChallengeFilter, if non-nil, drops pending/completed evaluations
	// whose ChallengeID is not in the set.
	ChallengeFilter map[string]bool
	// SkipStaleEvaluations is accepted but, matching the original's
	// documented behavior, does not currently filter anything — see
	// DESIGN.md's Open Question decision. All pending entries are
	// preserved regardless of this flag.
	SkipStaleEvaluations bool
	// ValidateState enables the epoch/submission-id/netuid sanity checks below.
	ValidateState bool
}

// Result carries the outcome of a restore operation.
type Result struct {
	Sequence           uint64
	Epoch              uint64
	PendingCount       int
	CompletedCount     int
	Warnings           []string
	ElapsedMs          int64
}

const maxSaneEpoch = 1_000_000

// RestoreLatest loads the newest checkpoint and applies opts, per spec.md §4.6.
func (m *Manager) RestoreLatest(opts RestoreOptions) (Result, Body, error) {
	return m.restore(m.currentSequence, opts)
}

// RestoreFromSequence is the targeted variant of RestoreLatest.
func (m *Manager) RestoreFromSequence(seq uint64, opts RestoreOptions) (Result, Body, error) {
	return m.restore(seq, opts)
}

func (m *Manager) restore(seq uint64, opts RestoreOptions) (Result, Body, error) {
	const op = "checkpoint.restore"
	start := time.Now()

	header, body, err := m.LoadCheckpoint(seq)
	if err != nil {
		return Result{}, Body{}, err
	}

	if opts.MaxAge > 0 {
		age := time.Since(time.UnixMilli(header.CreatedAtMs))
		if age > opts.MaxAge {
			return Result{}, Body{}, errs.E(op, errs.Validation, ageExceededErr(age, opts.MaxAge))
		}
	}

	var warnings []string

	if opts.ChallengeFilter != nil {
		body.PendingEvaluations = filterPending(body.PendingEvaluations, opts.ChallengeFilter)
		body.CompletedEvaluations = filterCompleted(body.CompletedEvaluations, opts.ChallengeFilter)
	}

	// SkipStaleEvaluations intentionally preserves all pending entries
	// regardless of threshold; see the type's doc comment.

	if opts.ValidateState {
		if body.Epoch > maxSaneEpoch {
			return Result{}, Body{}, errs.E(op, errs.Validation, epochOutOfRangeErr(body.Epoch))
		}
		for _, p := range body.PendingEvaluations {
			if p.SubmissionID == "" {
				return Result{}, Body{}, errs.E(op, errs.Validation, emptySubmissionIDErr())
			}
		}
		if body.Netuid == 0 {
			warnings = append(warnings, "netuid is 0")
		}
		if body.WeightVotes != nil && body.WeightVotes.Epoch != body.Epoch {
			warnings = append(warnings, "weight vote epoch diverges from body epoch")
		}
	}

	result := Result{
		Sequence:       header.Sequence,
		Epoch:          body.Epoch,
		PendingCount:   len(body.PendingEvaluations),
		CompletedCount: len(body.CompletedEvaluations),
		Warnings:       warnings,
		ElapsedMs:      time.Since(start).Milliseconds(),
	}
	return result, body, nil
}

func filterPending(in []PendingEvaluationState, allowed map[string]bool) []PendingEvaluationState {
	out := in[:0:0]
	for _, p := range in {
		if allowed[p.ChallengeID] {
			out = append(out, p)
		}
	}
	return out
}

func filterCompleted(in []CompletedEvaluationState, allowed map[string]bool) []CompletedEvaluationState {
	out := in[:0:0]
	for _, c := range in {
		if allowed[c.ChallengeID] {
			out = append(out, c)
		}
	}
	return out
}
