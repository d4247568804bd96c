package sdk

import (
	"context"
	"os"

	"github.com/vnftlabs/vnft-sdk-go/pkg/config"
	"github.com/vnftlabs/vnft-sdk-go/pkg/fingerprint"
	"github.com/vnftlabs/vnft-sdk-go/pkg/icgrpc"
	"github.com/vnftlabs/vnft-sdk-go/pkg/ledger"
	"github.com/vnftlabs/vnft-sdk-go/pkg/model"
	"github.com/vnftlabs/vnft-sdk-go/pkg/principal"
	"github.com/vnftlabs/vnft-sdk-go/pkg/registry"
	"github.com/vnftlabs/vnft-sdk-go/pkg/storage"
	"go.uber.org/zap"
)

// VnftSDK is the public interface of the SDK: one coherent registration
// operation plus the registry read surface.
type VnftSDK interface {
	// Register runs the full workflow for one submission: fingerprint
	// extraction, payment, and registration. It returns the created record or
	// a Failure carrying the stage that failed.
	Register(ctx context.Context, sub Submission) (model.NftRecord, error)

	// ListNfts returns the records registered by the given owner. An owner
	// with zero records yields an empty slice, not an error.
	ListNfts(ctx context.Context, owner principal.Principal) ([]model.NftRecord, error)

	// MatchSpeakers matches a fingerprint against all registered records.
	MatchSpeakers(ctx context.Context, fp model.Fingerprint) (map[string]string, error)

	// CountAll returns the total number of registered records.
	CountAll(ctx context.Context) (uint64, error)

	// Close releases resources associated with the SDK instance.
	Close()
}

// init configures a default global zap logger for the SDK. Applications may
// replace it with zap.ReplaceGlobals(...) if they need custom logging.
func init() {
	c := zap.Config{
		Level:            zap.NewAtomicLevelAt(zap.InfoLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := c.Build()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(logger)
}

// extractor is the fingerprint service surface the orchestrator consumes.
type extractor interface {
	Extract(ctx context.Context, sample model.AudioSample) (model.Fingerprint, error)
	ExtractSpeakers(ctx context.Context, sample model.AudioSample) (model.Fingerprint, error)
}

// payer is the ledger surface the orchestrator consumes.
type payer interface {
	Pay(ctx context.Context, payer, payee principal.Principal, amount any, memo uint64) (model.PaymentReceipt, error)
}

// registrar is the registry surface the orchestrator consumes.
type registrar interface {
	Register(ctx context.Context, request model.RegistrationRequest, receipt model.PaymentReceipt) (model.NftRecord, error)
	List(ctx context.Context, owner string) ([]model.NftRecord, error)
	MatchSpeakers(ctx context.Context, fp model.Fingerprint) (map[string]string, error)
	CountAll(ctx context.Context) (uint64, error)
}

// Core is the concrete SDK implementation.
type Core struct {
	*config.Config

	gateway   *icgrpc.Client
	extractor extractor
	payments  payer
	registry  registrar
	archiver  storage.Archiver
	payee     principal.Principal
}

// NewSDK initializes the SDK Core with validated configuration and connected
// clients. It applies default timeout values and aborts the process if the
// configuration is invalid or the gateway client cannot be initialized.
func NewSDK(cfg *config.Config) VnftSDK {
	err := cfg.Validate()
	if err != nil {
		zap.L().Fatal("Invalid config", zap.Error(err))
	}

	cfg.Timeouts = cfg.Timeouts.WithDefaults()

	if cfg.Debug {
		if dev, err := zap.NewDevelopment(); err == nil {
			zap.ReplaceGlobals(dev)
		}
	}

	payee, err := principal.Decode(cfg.RegistryCanisterID)
	if err != nil {
		zap.L().Fatal("Invalid registry canister principal", zap.Error(err))
	}

	gateway := icgrpc.NewClient(cfg.GatewayAddr)
	if gateway == nil {
		zap.L().Error("Init gateway client failed", zap.String("addr", cfg.GatewayAddr))
		os.Exit(-1)
	}

	var archiver storage.Archiver
	if cfg.IpfsURL != "" {
		ipfsClient, err := storage.NewClient(cfg.IpfsURL, cfg.Timeouts.IpfsArchive)
		if err != nil {
			zap.L().Warn("fingerprint archival disabled: IPFS client failed", zap.Error(err))
		} else {
			archiver = ipfsClient
		}
	}

	return &Core{
		Config:    cfg,
		gateway:   gateway,
		extractor: fingerprint.NewClient(cfg.FingerprintURL, cfg.Timeouts.Extract),
		payments:  ledger.NewAuthorizer(gateway, cfg.LedgerCanisterID, cfg.Timeouts.LedgerRead, cfg.Timeouts.Transfer),
		registry:  registry.NewClient(gateway, cfg.RegistryCanisterID, cfg.Timeouts.Register, cfg.Timeouts.Query),
		archiver:  archiver,
		payee:     payee,
	}
}

// ListNfts returns the records registered by the given owner.
func (c *Core) ListNfts(ctx context.Context, owner principal.Principal) ([]model.NftRecord, error) {
	return c.registry.List(ctx, owner.Encode())
}

// MatchSpeakers matches a fingerprint against all registered records.
func (c *Core) MatchSpeakers(ctx context.Context, fp model.Fingerprint) (map[string]string, error) {
	return c.registry.MatchSpeakers(ctx, fp)
}

// CountAll returns the total number of registered records.
func (c *Core) CountAll(ctx context.Context) (uint64, error) {
	return c.registry.CountAll(ctx)
}

// Close shuts down the underlying gateway connection.
func (c *Core) Close() {
	if err := c.gateway.Close(); err != nil {
		zap.L().Error("failed to close gateway connection", zap.Error(err))
	}
}
