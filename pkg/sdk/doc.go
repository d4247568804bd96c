// Package sdk exposes the high-level entry points of the voice-NFT SDK.
//
// The SDK turns an uploaded audio sample into a registered voice NFT in one
// call. It wires together four collaborators and drives them as an explicit
// state machine:
//
//   - fingerprint: HTTP client of the external voice fingerprinting service
//   - ledger: payment authorizer (account derivation, fee query, transfer)
//   - registry: voice-NFT registry client (register, list, match, count)
//   - storage: optional IPFS archival of the canonical fingerprint payload
//
// # Registration Workflow
//
// Register moves one submission through a fixed sequence of states:
//
//	Idle -> Extracting -> AwaitingPayment -> Paying -> Registering -> Completed
//
// with Failed reachable from every non-terminal state. The order is strict:
// no payment is attempted without a non-empty fingerprint, and no
// registration is submitted without a settled payment receipt.
//
// Failures carry the stage they occurred in via the Failure type. A failure
// in Registering is marked PostPayment: the transfer has settled, the SDK
// never retries it automatically, and the caller must reconcile manually
// (the receipt's block height identifies the spent payment).
//
// Cancellation through the submitted context is honored up to and including
// AwaitingPayment. Once Paying begins, the workflow detaches from the
// caller's context and runs to completion so that payment state is never
// left ambiguous.
//
// # Usage
//
//	c := config.Config{
//		FingerprintURL:     "http://localhost:8001",
//		GatewayAddr:        "http://localhost:9090",
//		RegistryCanisterID: "your_registry_canister_id",
//	}
//
//	vnftSDK := sdk.NewSDK(&c)
//	defer vnftSDK.Close()
//
//	record, err := vnftSDK.Register(ctx, sdk.Submission{
//		Sample: model.AudioSample{Data: wav, MimeType: "audio/wav", Filename: "voice.wav"},
//		Owner:  principal.MustDecode("your_principal_id"),
//		Name:   "my voice",
//		Amount: "0.1",
//	})
//
// Set Submission.MultiSpeaker to extract one fingerprint per detected
// speaker instead of a single vector.
//
// # Error Handling
//
// Workflow errors unwrap to their cause, so errors.As reaches the typed
// errors of the collaborating packages:
//
//	var failure *sdk.Failure
//	if errors.As(err, &failure) {
//		if failure.PostPayment {
//			// payment spent, do not resubmit blindly
//		}
//	}
//
//	var rejected *registry.RejectedError
//	if errors.As(err, &rejected) {
//		// backend refused the record, message is verbatim
//	}
//
// # Logging
//
// The package installs a console zap logger as the global logger at init.
// Applications that manage their own logging should call
// zap.ReplaceGlobals with their configured logger after importing the SDK.
package sdk
