// Package ledger implements the payment side of the registration workflow:
// deterministic account derivation for payer and payee, transaction fee
// queries, fixed-point amount conversion (1 token = 10^8 e8s), and transfer
// submission through the canister gateway.
//
// A transfer is never retried automatically. A failed payment surfaces as
// PaymentFailedError and retry requires explicit caller action with a fresh
// intent, since a blind resubmission risks double payment.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vnftlabs/vnft-sdk-go/pkg/model"
	"github.com/vnftlabs/vnft-sdk-go/pkg/principal"
	"go.uber.org/zap"
)

// E8sPerToken is the fixed-point scale of the ledger: minor units per token.
const E8sPerToken = 100_000_000

// InvalidAmountError reports a payment amount that cannot be settled on the
// ledger: non-positive, finer than one e8s, or beyond the uint64 range.
type InvalidAmountError struct {
	Amount string
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid payment amount %s", e.Amount)
}

// PaymentFailedError reports a ledger rejection or a transport failure while
// paying. No registration may be attempted after this error.
type PaymentFailedError struct {
	Reason string
}

func (e *PaymentFailedError) Error() string {
	return "payment failed: " + e.Reason
}

// gatewayCaller is the slice of the gateway client the authorizer needs.
type gatewayCaller interface {
	CallWithJSON(ctx context.Context, method string, body []byte) ([]byte, error)
}

// Authorizer submits payments to the ledger canister through the gateway.
type Authorizer struct {
	gateway          gatewayCaller
	ledgerCanisterID string
	readTimeout      time.Duration
	transferTimeout  time.Duration
}

// NewAuthorizer creates a payment authorizer for the given ledger canister.
// Zero timeouts disable the per-call deadlines.
func NewAuthorizer(gateway gatewayCaller, ledgerCanisterID string, readTimeout, transferTimeout time.Duration) *Authorizer {
	return &Authorizer{
		gateway:          gateway,
		ledgerCanisterID: ledgerCanisterID,
		readTimeout:      readTimeout,
		transferTimeout:  transferTimeout,
	}
}

// IcpToE8s converts a token amount in major units to e8s minor units.
//
// Supported input types for iamount: string, float64, int64, int,
// decimal.Decimal, *decimal.Decimal. Non-positive amounts, amounts with a
// fraction finer than 10^-8, and amounts exceeding the uint64 range are
// rejected with InvalidAmountError.
func IcpToE8s(iamount any) (uint64, error) {
	var amount decimal.Decimal
	var err error
	switch v := iamount.(type) {
	case string:
		amount, err = decimal.NewFromString(v)
		if err != nil {
			return 0, &InvalidAmountError{Amount: v}
		}
	case float64:
		amount = decimal.NewFromFloat(v)
	case int64:
		amount = decimal.NewFromInt(v)
	case int:
		amount = decimal.NewFromInt(int64(v))
	case decimal.Decimal:
		amount = v
	case *decimal.Decimal:
		amount = *v
	default:
		return 0, &InvalidAmountError{Amount: fmt.Sprintf("%v", iamount)}
	}

	if !amount.IsPositive() {
		return 0, &InvalidAmountError{Amount: amount.String()}
	}

	e8s := amount.Mul(decimal.NewFromInt(E8sPerToken))
	if !e8s.IsInteger() {
		return 0, &InvalidAmountError{Amount: amount.String()}
	}
	if e8s.Cmp(decimal.NewFromUint64(math.MaxUint64)) > 0 {
		return 0, &InvalidAmountError{Amount: amount.String()}
	}

	return e8s.BigInt().Uint64(), nil
}

// E8sToIcp converts an e8s amount back to major units with exact precision.
func E8sToIcp(e8s uint64) decimal.Decimal {
	return decimal.NewFromUint64(e8s).Div(decimal.NewFromInt(E8sPerToken))
}

// transactionFeeReply mirrors TransactionFeeReply (uint64 fields travel as
// strings in protojson).
type transactionFeeReply struct {
	E8s uint64 `json:"e8s,string"`
}

// TransactionFee queries the ledger's current transfer fee in e8s. The value
// may change between calls and must be fetched per payment attempt.
func (a *Authorizer) TransactionFee(ctx context.Context) (uint64, error) {
	if a.readTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.readTimeout)
		defer cancel()
	}

	req, err := json.Marshal(map[string]string{"ledger_canister_id": a.ledgerCanisterID})
	if err != nil {
		return 0, err
	}

	body, err := a.gateway.CallWithJSON(ctx, "TransactionFee", req)
	if err != nil {
		return 0, &PaymentFailedError{Reason: "fee query: " + err.Error()}
	}

	var reply transactionFeeReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return 0, &PaymentFailedError{Reason: "fee query: malformed reply: " + err.Error()}
	}
	return reply.E8s, nil
}

// transferRequest mirrors TransferRequest.
type transferRequest struct {
	LedgerCanisterID  string `json:"ledger_canister_id"`
	FromAccount       string `json:"from_account"`
	ToAccount         string `json:"to_account"`
	AmountE8s         uint64 `json:"amount_e8s,string"`
	FeeE8s            uint64 `json:"fee_e8s,string"`
	Memo              uint64 `json:"memo,string"`
	CreatedAtTimeNano uint64 `json:"created_at_time_nanos,string"`
}

// transferReply mirrors TransferReply.
type transferReply struct {
	BlockHeight uint64 `json:"block_height,string"`
	Err         string `json:"err"`
}

// Transfer submits a prepared payment intent to the ledger and returns the
// settlement receipt. Ledger rejections and transport failures both surface
// as PaymentFailedError.
func (a *Authorizer) Transfer(ctx context.Context, intent model.PaymentIntent) (model.PaymentReceipt, error) {
	if a.transferTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.transferTimeout)
		defer cancel()
	}

	var createdAt uint64
	if !intent.CreatedAt.IsZero() {
		createdAt = uint64(intent.CreatedAt.UnixNano())
	}

	req, err := json.Marshal(transferRequest{
		LedgerCanisterID:  a.ledgerCanisterID,
		FromAccount:       intent.FromAccount,
		ToAccount:         intent.ToAccount,
		AmountE8s:         intent.AmountE8s,
		FeeE8s:            intent.FeeE8s,
		Memo:              intent.Memo,
		CreatedAtTimeNano: createdAt,
	})
	if err != nil {
		return model.PaymentReceipt{}, err
	}

	zap.L().Debug("submitting ledger transfer",
		zap.String("to", intent.ToAccount),
		zap.Uint64("amount_e8s", intent.AmountE8s),
		zap.Uint64("fee_e8s", intent.FeeE8s),
		zap.Uint64("memo", intent.Memo))

	body, err := a.gateway.CallWithJSON(ctx, "Transfer", req)
	if err != nil {
		return model.PaymentReceipt{}, &PaymentFailedError{Reason: err.Error()}
	}

	var reply transferReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return model.PaymentReceipt{}, &PaymentFailedError{Reason: "malformed transfer reply: " + err.Error()}
	}
	if reply.Err != "" {
		return model.PaymentReceipt{}, &PaymentFailedError{Reason: reply.Err}
	}

	zap.L().Info("ledger transfer settled", zap.Uint64("block_height", reply.BlockHeight))
	return model.PaymentReceipt{BlockHeight: reply.BlockHeight}, nil
}

// NewIntent derives a fresh single-use payment intent: payer and payee
// accounts are derived from their principals (default subaccounts), and the
// creation timestamp is taken now so a retried submission never reuses a
// stale intent.
func NewIntent(payer, payee principal.Principal, amountE8s, feeE8s, memo uint64) model.PaymentIntent {
	return model.PaymentIntent{
		FromAccount: payer.AccountIdentifier(principal.SubAccount{}).Hex(),
		ToAccount:   payee.AccountIdentifier(principal.SubAccount{}).Hex(),
		AmountE8s:   amountE8s,
		FeeE8s:      feeE8s,
		Memo:        memo,
		CreatedAt:   time.Now(),
	}
}

// Pay performs one complete payment attempt: convert the amount, fetch the
// current fee, derive a fresh intent, and submit the transfer. The fee is
// fetched inside the attempt and never cached across attempts.
func (a *Authorizer) Pay(ctx context.Context, payer, payee principal.Principal, amount any, memo uint64) (model.PaymentReceipt, error) {
	amountE8s, err := IcpToE8s(amount)
	if err != nil {
		return model.PaymentReceipt{}, err
	}

	feeE8s, err := a.TransactionFee(ctx)
	if err != nil {
		return model.PaymentReceipt{}, err
	}

	intent := NewIntent(payer, payee, amountE8s, feeE8s, memo)
	return a.Transfer(ctx, intent)
}
