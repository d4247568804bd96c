// Package registry implements the client for the voice-NFT registry canister,
// reached through the gateway: registering a fingerprint as an NFT record,
// listing a caller's records, matching speakers against registered
// fingerprints, and the total record count.
//
// The backend answers Result values: a rejection reported by the canister
// (RejectedError) is distinct from a transport failure (TransportError), and
// rejection messages are surfaced verbatim.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/vnftlabs/vnft-sdk-go/pkg/model"
	"go.uber.org/zap"
)

// RejectedError is a registration rejection reported by the backend itself
// (e.g., a duplicate name). Payment has already settled when this surfaces.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return "registration rejected: " + e.Message
}

// TransportError is a failure to reach the backend or to parse its reply
// during registration. Payment has already settled when this surfaces.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return "registration transport failure: " + e.Cause.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// ListFailedError is a failure on the read path. Listing is always safe to
// retry.
type ListFailedError struct {
	Message string
}

func (e *ListFailedError) Error() string {
	return "list failed: " + e.Message
}

// gatewayCaller is the slice of the gateway client the registry needs.
type gatewayCaller interface {
	CallWithJSON(ctx context.Context, method string, body []byte) ([]byte, error)
}

// Client talks to the registry canister through the gateway.
type Client struct {
	gateway            gatewayCaller
	registryCanisterID string
	registerTimeout    time.Duration
	queryTimeout       time.Duration
}

// NewClient creates a registry client for the given canister.
// Zero timeouts disable the per-call deadlines.
func NewClient(gateway gatewayCaller, registryCanisterID string, registerTimeout, queryTimeout time.Duration) *Client {
	return &Client{
		gateway:            gateway,
		registryCanisterID: registryCanisterID,
		registerTimeout:    registerTimeout,
		queryTimeout:       queryTimeout,
	}
}

// registerRequest mirrors RegisterVoiceNftRequest.
type registerRequest struct {
	RegistryCanisterID string                `json:"registry_canister_id"`
	Owner              string                `json:"owner"`
	Name               string                `json:"name"`
	SpeakerMap         []model.SpeakerVector `json:"speaker_map"`
	IdempotencyKey     string                `json:"idempotency_key"`
	PaidBlockHeight    uint64                `json:"paid_block_height,string"`
	FingerprintURI     string                `json:"fingerprint_uri"`
}

// nftRecord mirrors the gateway's NftRecord message (uint64 as string).
type nftRecord struct {
	ID          uint64    `json:"id,string"`
	Owner       string    `json:"owner"`
	Name        string    `json:"name"`
	Fingerprint []float64 `json:"fingerprint"`
}

func (r nftRecord) toModel() model.NftRecord {
	return model.NftRecord{
		ID:          r.ID,
		Owner:       r.Owner,
		Name:        r.Name,
		Fingerprint: r.Fingerprint,
	}
}

// registerReply mirrors RegisterVoiceNftReply.
type registerReply struct {
	Ok  *nftRecord `json:"ok"`
	Err string     `json:"err"`
}

// Register submits a registration request together with its settlement
// receipt. The receipt is carried for audit correlation; the request's
// fingerprint must already be in canonical form (model.Fingerprint.Canonical).
// Exactly one record is created per successful call; callers must not invoke
// Register twice for one receipt.
func (c *Client) Register(ctx context.Context, request model.RegistrationRequest, receipt model.PaymentReceipt) (model.NftRecord, error) {
	if c.registerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.registerTimeout)
		defer cancel()
	}

	body, err := json.Marshal(registerRequest{
		RegistryCanisterID: c.registryCanisterID,
		Owner:              request.Owner,
		Name:               request.Name,
		SpeakerMap:         request.SpeakerMap,
		IdempotencyKey:     request.IdempotencyKey,
		PaidBlockHeight:    receipt.BlockHeight,
		FingerprintURI:     request.FingerprintURI,
	})
	if err != nil {
		return model.NftRecord{}, &TransportError{Cause: err}
	}

	zap.L().Debug("registering voice NFT",
		zap.String("owner", request.Owner),
		zap.String("name", request.Name),
		zap.Uint64("paid_block_height", receipt.BlockHeight))

	replyJSON, err := c.gateway.CallWithJSON(ctx, "RegisterVoiceNft", body)
	if err != nil {
		return model.NftRecord{}, &TransportError{Cause: err}
	}

	var reply registerReply
	if err := json.Unmarshal(replyJSON, &reply); err != nil {
		return model.NftRecord{}, &TransportError{Cause: err}
	}
	if reply.Err != "" {
		return model.NftRecord{}, &RejectedError{Message: reply.Err}
	}
	if reply.Ok == nil {
		// A reply carrying neither value is malformed, not a backend rejection.
		return model.NftRecord{}, &TransportError{Cause: errors.New("reply carries neither a record nor an error")}
	}

	record := reply.Ok.toModel()
	zap.L().Info("voice NFT registered",
		zap.Uint64("id", record.ID),
		zap.String("owner", record.Owner),
		zap.String("name", record.Name))
	return record, nil
}

// listRequest mirrors ListNftsRequest.
type listRequest struct {
	RegistryCanisterID string `json:"registry_canister_id"`
	Owner              string `json:"owner"`
}

// listReply mirrors ListNftsReply.
type listReply struct {
	Ok  []nftRecord `json:"ok"`
	Err string      `json:"err"`
}

// List returns the records registered by the given owner. Zero records is a
// valid, non-error result.
func (c *Client) List(ctx context.Context, owner string) ([]model.NftRecord, error) {
	if c.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.queryTimeout)
		defer cancel()
	}

	body, err := json.Marshal(listRequest{
		RegistryCanisterID: c.registryCanisterID,
		Owner:              owner,
	})
	if err != nil {
		return nil, &ListFailedError{Message: err.Error()}
	}

	replyJSON, err := c.gateway.CallWithJSON(ctx, "ListNfts", body)
	if err != nil {
		return nil, &ListFailedError{Message: err.Error()}
	}

	var reply listReply
	if err := json.Unmarshal(replyJSON, &reply); err != nil {
		return nil, &ListFailedError{Message: err.Error()}
	}
	if reply.Err != "" {
		return nil, &ListFailedError{Message: reply.Err}
	}

	records := make([]model.NftRecord, 0, len(reply.Ok))
	for _, r := range reply.Ok {
		records = append(records, r.toModel())
	}
	return records, nil
}

// matchRequest mirrors MatchSpeakersRequest.
type matchRequest struct {
	RegistryCanisterID string                `json:"registry_canister_id"`
	SpeakerMap         []model.SpeakerVector `json:"speaker_map"`
}

// matchReply mirrors MatchSpeakersReply.
type matchReply struct {
	Matches map[string]string `json:"matches"`
}

// MatchSpeakers asks the backend to match the given fingerprint against all
// registered records. The reply maps each submitted speaker label to the
// backend's verdict (owner and record name, or a no-match marker).
func (c *Client) MatchSpeakers(ctx context.Context, fp model.Fingerprint) (map[string]string, error) {
	if c.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.queryTimeout)
		defer cancel()
	}

	body, err := json.Marshal(matchRequest{
		RegistryCanisterID: c.registryCanisterID,
		SpeakerMap:         fp.Canonical(),
	})
	if err != nil {
		return nil, err
	}

	replyJSON, err := c.gateway.CallWithJSON(ctx, "MatchSpeakers", body)
	if err != nil {
		return nil, &TransportError{Cause: err}
	}

	var reply matchReply
	if err := json.Unmarshal(replyJSON, &reply); err != nil {
		return nil, &TransportError{Cause: err}
	}
	return reply.Matches, nil
}

// countReply mirrors CountAllReply.
type countReply struct {
	Count uint64 `json:"count,string"`
}

// CountAll returns the total number of registered records across all owners.
func (c *Client) CountAll(ctx context.Context) (uint64, error) {
	if c.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.queryTimeout)
		defer cancel()
	}

	body, err := json.Marshal(map[string]string{"registry_canister_id": c.registryCanisterID})
	if err != nil {
		return 0, err
	}

	replyJSON, err := c.gateway.CallWithJSON(ctx, "CountAll", body)
	if err != nil {
		return 0, &TransportError{Cause: err}
	}

	var reply countReply
	if err := json.Unmarshal(replyJSON, &reply); err != nil {
		return 0, &TransportError{Cause: err}
	}
	return reply.Count, nil
}
