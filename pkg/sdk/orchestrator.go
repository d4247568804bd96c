package sdk

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vnftlabs/vnft-sdk-go/pkg/ledger"
	"github.com/vnftlabs/vnft-sdk-go/pkg/model"
	"github.com/vnftlabs/vnft-sdk-go/pkg/principal"
	"go.uber.org/zap"
)

// Stage labels the workflow step a failure is attributed to. Stage context is
// never downgraded: the caller needs it to decide whether retrying is
// financially safe.
type Stage string

const (
	StageValidation      Stage = "validation"
	StageExtracting      Stage = "extracting"
	StageAwaitingPayment Stage = "awaiting_payment"
	StagePaying          Stage = "paying"
	StageRegistering     Stage = "registering"
)

// Failure is the typed workflow error. PostPayment marks failures that occur
// after the ledger transfer settled: the payment has been spent, no automatic
// retry happens, and the caller must pursue manual remediation.
type Failure struct {
	Stage       Stage
	PostPayment bool
	Err         error
}

func (f *Failure) Error() string {
	if f.PostPayment {
		return fmt.Sprintf("registration failed at stage %s (payment already spent): %v", f.Stage, f.Err)
	}
	return fmt.Sprintf("registration failed at stage %s: %v", f.Stage, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Submission is the per-submission context object: everything one workflow
// run needs, with no state shared across concurrent submissions.
type Submission struct {
	// Sample is the uploaded audio (required).
	Sample model.AudioSample
	// Owner is the submitting identity: payment payer and record owner (required).
	Owner principal.Principal
	// Name is the human-readable record name (required).
	Name string
	// Amount is the payment amount in major units (string, int, int64,
	// float64 or decimal.Decimal; must be positive).
	Amount any
	// MultiSpeaker selects per-speaker extraction instead of the
	// single-speaker endpoint.
	MultiSpeaker bool
}

// workflowState is the registration state machine position.
type workflowState int

const (
	stateIdle workflowState = iota
	stateExtracting
	stateAwaitingPayment
	statePaying
	stateRegistering
	stateCompleted
	stateFailed
)

func (s workflowState) String() string {
	switch s {
	case stateIdle:
		return "Idle"
	case stateExtracting:
		return "Extracting"
	case stateAwaitingPayment:
		return "AwaitingPayment"
	case statePaying:
		return "Paying"
	case stateRegistering:
		return "Registering"
	case stateCompleted:
		return "Completed"
	case stateFailed:
		return "Failed"
	}
	return "Unknown"
}

// legalTransitions encodes the only permitted forward edges; Failed is
// additionally reachable from every non-terminal state.
var legalTransitions = map[workflowState]workflowState{
	stateIdle:            stateExtracting,
	stateExtracting:      stateAwaitingPayment,
	stateAwaitingPayment: statePaying,
	statePaying:          stateRegistering,
	stateRegistering:     stateCompleted,
}

// registration tracks one submission through the state machine.
type registration struct {
	id    uuid.UUID
	state workflowState

	sub         Submission
	fingerprint model.Fingerprint
	receipt     model.PaymentReceipt
}

// transition advances the state machine, panicking on an illegal edge: an
// illegal transition means the orchestrator itself is broken, and continuing
// could pay or register out of order.
func (r *registration) transition(to workflowState) {
	if to != stateFailed && legalTransitions[r.state] != to {
		panic(fmt.Sprintf("illegal registration transition %s -> %s", r.state, to))
	}
	zap.L().Debug("registration transition",
		zap.String("submission", r.id.String()),
		zap.String("from", r.state.String()),
		zap.String("to", to.String()))
	r.state = to
}

// fail moves the machine to Failed and wraps the cause with stage context.
func (r *registration) fail(stage Stage, postPayment bool, err error) *Failure {
	r.transition(stateFailed)
	f := &Failure{Stage: stage, PostPayment: postPayment, Err: err}
	zap.L().Error("registration failed",
		zap.String("submission", r.id.String()),
		zap.String("stage", string(stage)),
		zap.Bool("post_payment", postPayment),
		zap.Error(err))
	return f
}

// memo derives the ledger transfer memo from the submission's idempotency
// token, so every intent carries a distinct, correlatable memo.
func (r *registration) memo() uint64 {
	return binary.BigEndian.Uint64(r.id[:8])
}

// Register runs the full workflow for one submission. Steps execute strictly
// in order (extraction, then payment, then registration) and each step's
// failure aborts before the next step's remote call:
//
//   - no payment is ever attempted without a non-empty fingerprint in hand;
//   - no registration is ever submitted without a settled payment receipt;
//   - a registration failure after settlement is reported as a distinct
//     post-payment Failure and is never retried automatically, since the
//     backend may not be idempotent and payment would not be re-spent.
//
// Cancellation via ctx is honored only before the payment begins; once the
// transfer is in flight the workflow runs to completion so payment state is
// never left ambiguous.
func (c *Core) Register(ctx context.Context, sub Submission) (model.NftRecord, error) {
	r := &registration{id: uuid.New(), state: stateIdle, sub: sub}

	if err := r.validate(); err != nil {
		return model.NftRecord{}, r.fail(StageValidation, false, err)
	}

	zap.L().Info("registration submitted",
		zap.String("submission", r.id.String()),
		zap.String("owner", sub.Owner.Encode()),
		zap.String("name", sub.Name))

	// Extracting.
	r.transition(stateExtracting)
	if err := ctx.Err(); err != nil {
		return model.NftRecord{}, r.fail(StageExtracting, false, err)
	}

	var err error
	if sub.MultiSpeaker {
		r.fingerprint, err = c.extractor.ExtractSpeakers(ctx, sub.Sample)
	} else {
		r.fingerprint, err = c.extractor.Extract(ctx, sub.Sample)
	}
	if err != nil {
		return model.NftRecord{}, r.fail(StageExtracting, false, err)
	}
	if r.fingerprint.IsEmpty() {
		return model.NftRecord{}, r.fail(StageExtracting, false, errors.New("extraction returned an empty fingerprint"))
	}

	// AwaitingPayment: last point where cancellation is honored.
	r.transition(stateAwaitingPayment)
	if err := ctx.Err(); err != nil {
		return model.NftRecord{}, r.fail(StageAwaitingPayment, false, err)
	}

	// Archival is best effort and strictly pre-payment: a missing archive
	// never costs money, and an unreachable IPFS node must not block
	// registration.
	var fingerprintURI string
	if c.archiver != nil {
		fingerprintURI, err = c.archiver.UploadJSON(ctx, r.fingerprint.Canonical())
		if err != nil {
			zap.L().Warn("fingerprint archival failed, continuing without URI",
				zap.String("submission", r.id.String()),
				zap.Error(err))
			fingerprintURI = ""
		}
	}

	// A cancel may have landed during archival; money has not moved yet.
	if err := ctx.Err(); err != nil {
		return model.NftRecord{}, r.fail(StageAwaitingPayment, false, err)
	}

	// Paying: from here on the workflow runs to completion regardless of ctx.
	r.transition(statePaying)
	ctx = context.WithoutCancel(ctx)

	r.receipt, err = c.payments.Pay(ctx, sub.Owner, c.payee, sub.Amount, r.memo())
	if err != nil {
		return model.NftRecord{}, r.fail(StagePaying, false, err)
	}

	// Registering: payment has been spent.
	r.transition(stateRegistering)

	request := model.RegistrationRequest{
		Owner:          sub.Owner.Encode(),
		Name:           sub.Name,
		SpeakerMap:     r.fingerprint.Canonical(),
		IdempotencyKey: r.id.String(),
		FingerprintURI: fingerprintURI,
	}

	record, err := c.registry.Register(ctx, request, r.receipt)
	if err != nil {
		return model.NftRecord{}, r.fail(StageRegistering, true, err)
	}

	r.transition(stateCompleted)
	zap.L().Info("registration completed",
		zap.String("submission", r.id.String()),
		zap.Uint64("nft_id", record.ID),
		zap.Uint64("block_height", r.receipt.BlockHeight))
	return record, nil
}

// validate checks the submission preconditions before any remote call: the
// sample and owner must be present, the name non-empty, and the amount
// convertible to a positive e8s value.
func (r *registration) validate() error {
	if r.sub.Sample.IsEmpty() {
		return errors.New("audio sample is required")
	}
	if r.sub.Owner.IsZero() {
		return errors.New("owner identity is required")
	}
	if r.sub.Name == "" {
		return errors.New("record name is required")
	}
	if _, err := ledger.IcpToE8s(r.sub.Amount); err != nil {
		return err
	}
	return nil
}
