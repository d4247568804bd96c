package registry

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/vnftlabs/vnft-sdk-go/pkg/model"
)

type fakeGateway struct {
	calls     []string
	bodies    map[string][]byte
	responses map[string][]byte
	errs      map[string]error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		bodies:    map[string][]byte{},
		responses: map[string][]byte{},
		errs:      map[string]error{},
	}
}

func (f *fakeGateway) CallWithJSON(ctx context.Context, method string, body []byte) ([]byte, error) {
	f.calls = append(f.calls, method)
	f.bodies[method] = body
	if err := f.errs[method]; err != nil {
		return nil, err
	}
	return f.responses[method], nil
}

func request() model.RegistrationRequest {
	return model.RegistrationRequest{
		Owner: "w7x7r-cok77-xa",
		Name:  "voice1",
		SpeakerMap: []model.SpeakerVector{
			{Speaker: "SPEAKER_00", Fingerprint: []float64{0.1, 0.2}},
		},
		IdempotencyKey: "b7f2c0e8-0000-4000-8000-000000000000",
	}
}

func TestRegisterSuccess(t *testing.T) {
	gw := newFakeGateway()
	gw.responses["RegisterVoiceNft"] = []byte(`{"ok": {"id": "7", "owner": "w7x7r-cok77-xa", "name": "voice1", "fingerprint": [0.1, 0.2]}, "err": ""}`)

	c := NewClient(gw, "bd3sg-teaaa-aaaaa-qaaba-cai", 0, 0)
	record, err := c.Register(context.Background(), request(), model.PaymentReceipt{BlockHeight: 42})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	want := model.NftRecord{ID: 7, Owner: "w7x7r-cok77-xa", Name: "voice1", Fingerprint: []float64{0.1, 0.2}}
	if !reflect.DeepEqual(record, want) {
		t.Fatalf("record = %+v, want %+v", record, want)
	}

	var sent registerRequest
	if err := json.Unmarshal(gw.bodies["RegisterVoiceNft"], &sent); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	if sent.PaidBlockHeight != 42 {
		t.Fatalf("receipt not forwarded: %+v", sent)
	}
	if sent.IdempotencyKey == "" {
		t.Fatal("idempotency key not forwarded")
	}
	if sent.RegistryCanisterID != "bd3sg-teaaa-aaaaa-qaaba-cai" {
		t.Fatalf("unexpected canister id %q", sent.RegistryCanisterID)
	}
}

func TestRegisterRejected(t *testing.T) {
	gw := newFakeGateway()
	gw.responses["RegisterVoiceNft"] = []byte(`{"ok": null, "err": "You have already registered an NFT for this name."}`)

	c := NewClient(gw, "registry", 0, 0)
	_, err := c.Register(context.Background(), request(), model.PaymentReceipt{BlockHeight: 42})

	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	// The backend message must be surfaced verbatim.
	if rejected.Message != "You have already registered an NFT for this name." {
		t.Fatalf("message = %q", rejected.Message)
	}
}

func TestRegisterTransportFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.errs["RegisterVoiceNft"] = errors.New("connection reset")

	c := NewClient(gw, "registry", 0, 0)
	_, err := c.Register(context.Background(), request(), model.PaymentReceipt{})

	var transport *TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected TransportError, got %v", err)
	}

	gw2 := newFakeGateway()
	gw2.responses["RegisterVoiceNft"] = []byte(`not json`)
	_, err = NewClient(gw2, "registry", 0, 0).Register(context.Background(), request(), model.PaymentReceipt{})
	if !errors.As(err, &transport) {
		t.Fatalf("expected TransportError for malformed reply, got %v", err)
	}

	// A reply with neither a record nor an error is malformed, not a
	// backend rejection.
	gw3 := newFakeGateway()
	gw3.responses["RegisterVoiceNft"] = []byte(`{"ok": null, "err": ""}`)
	_, err = NewClient(gw3, "registry", 0, 0).Register(context.Background(), request(), model.PaymentReceipt{})
	if !errors.As(err, &transport) {
		t.Fatalf("expected TransportError for empty reply, got %v", err)
	}
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		t.Fatalf("empty reply surfaced as RejectedError: %v", err)
	}
}

func TestListReturnsRecords(t *testing.T) {
	gw := newFakeGateway()
	gw.responses["ListNfts"] = []byte(`{"ok": [{"id": "0", "owner": "alice", "name": "a", "fingerprint": [1]}, {"id": "1", "owner": "alice", "name": "b", "fingerprint": [2]}], "err": ""}`)

	c := NewClient(gw, "registry", 0, 0)
	records, err := c.List(context.Background(), "alice")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 || records[1].Name != "b" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestListEmptyIsNotAnError(t *testing.T) {
	gw := newFakeGateway()
	gw.responses["ListNfts"] = []byte(`{"ok": [], "err": ""}`)

	c := NewClient(gw, "registry", 0, 0)
	records, err := c.List(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty result, got %+v", records)
	}
}

func TestListFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.responses["ListNfts"] = []byte(`{"ok": [], "err": "backend unavailable"}`)

	_, err := NewClient(gw, "registry", 0, 0).List(context.Background(), "alice")
	var failed *ListFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected ListFailedError, got %v", err)
	}
	if failed.Message != "backend unavailable" {
		t.Fatalf("message = %q", failed.Message)
	}

	gw2 := newFakeGateway()
	gw2.errs["ListNfts"] = errors.New("dial timeout")
	_, err = NewClient(gw2, "registry", 0, 0).List(context.Background(), "alice")
	if !errors.As(err, &failed) {
		t.Fatalf("expected ListFailedError for transport failure, got %v", err)
	}
}

func TestMatchSpeakers(t *testing.T) {
	gw := newFakeGateway()
	gw.responses["MatchSpeakers"] = []byte(`{"matches": {"SPEAKER_00": "Owner: alice, Name: voice1"}}`)

	c := NewClient(gw, "registry", 0, 0)
	fp := model.Fingerprint{Speakers: map[string][]float64{"SPEAKER_00": {0.1}}}
	matches, err := c.MatchSpeakers(context.Background(), fp)
	if err != nil {
		t.Fatalf("MatchSpeakers: %v", err)
	}
	if matches["SPEAKER_00"] != "Owner: alice, Name: voice1" {
		t.Fatalf("unexpected matches: %v", matches)
	}

	// The fingerprint must travel in canonical form.
	var sent matchRequest
	if err := json.Unmarshal(gw.bodies["MatchSpeakers"], &sent); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	if !reflect.DeepEqual(sent.SpeakerMap, fp.Canonical()) {
		t.Fatalf("speaker map not canonical: %+v", sent.SpeakerMap)
	}
}

func TestCountAll(t *testing.T) {
	gw := newFakeGateway()
	gw.responses["CountAll"] = []byte(`{"count": "12"}`)

	count, err := NewClient(gw, "registry", 0, 0).CountAll(context.Background())
	if err != nil {
		t.Fatalf("CountAll: %v", err)
	}
	if count != 12 {
		t.Fatalf("count = %d, want 12", count)
	}
}
