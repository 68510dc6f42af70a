package liquidations

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	ethclients "github.com/Iwinswap/iwinswap-ethclients"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aknirmal90/liquidations-v2-sub000/kinds"
	"github.com/aknirmal90/liquidations-v2-sub000/oracle"
	"github.com/aknirmal90/liquidations-v2-sub000/projector"
)

// Logger defines a standard interface for structured, leveled logging,
// compatible with the standard library's slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// --- Function Type Definitions for Dependencies ---

// These named types create a clear, maintainable contract for the system's dependencies.

type GetClientFunc func() (ethclients.ETHClient, error)
type ResolveFunc func(ctx context.Context, asset, source common.Address, obs oracle.Observation) (oracle.Components, error)
type RefreshCapFunc func(ctx context.Context, source common.Address, k kinds.Kind, obs oracle.Observation) (*big.Int, error)
type ContractKindFunc func(ctx context.Context, source common.Address) (kinds.Kind, error)
type UnderlyingSourcesFunc func(ctx context.Context, source common.Address) ([]common.Address, error)
type UpdatedInBlockFunc func(logs []types.Log, blockTimestamp time.Time) (obs []oracle.EventObservation, dropped int)
type ApplyPositionsFunc func(logs []types.Log) (applied, dropped int)
type ProjectFunc func(updatedAssets map[common.Address]struct{}, predictedPrices map[common.Address]*big.Int) (atRisk []projector.AtRiskUser, skipped int)
type RefreshHealthFunc func(assets map[common.Address]struct{}) (refreshed, skipped int)
type RecordDetectionsFunc func(source common.Address, txHash common.Hash, updatedAssets []common.Address, users []projector.AtRiskUser) int
type AppendAuditFunc func(records []oracle.ComponentRecord) error
type VerifyUsersFunc func(ctx context.Context, users []common.Address) (drifts int, err error)
type InDelistedListFunc func(asset common.Address) bool

type ErrorHandlerFunc func(err error)
type TestBloomFunc func(types.Bloom) bool

// Config holds all the dependencies and settings for the LiquidationSystem.
// Using a configuration struct makes initialization cleaner and more extensible.
type Config struct {
	SystemName           string
	PrometheusReg        prometheus.Registerer
	NewBlockEventer      chan *types.Block
	PendingTransmissions chan oracle.TransactionObservation
	GetClient            GetClientFunc
	Resolve              ResolveFunc
	RefreshCap           RefreshCapFunc
	ContractKind         ContractKindFunc
	UnderlyingSources    UnderlyingSourcesFunc
	UpdatedInBlock       UpdatedInBlockFunc
	ApplyPositions       ApplyPositionsFunc
	Project              ProjectFunc
	RefreshHealth        RefreshHealthFunc
	RecordDetections     RecordDetectionsFunc
	AppendAudit          AppendAuditFunc
	VerifyUsers          VerifyUsersFunc
	InDelistedList       InDelistedListFunc
	ErrorHandler         ErrorHandlerFunc
	TestBloom            TestBloomFunc
	FilterTopics         [][]common.Hash
	PruneFrequency       time.Duration
	VerifyFrequency      time.Duration
	LogMaxRetries        int
	LogRetryDelay        time.Duration
	Logger               Logger
}

// validate checks that all essential fields in the Config are provided.
func (c *Config) validate() error {
	if c.SystemName == "" {
		return errors.New("system name is required")
	}
	if c.NewBlockEventer == nil {
		return errors.New("new block eventer channel is required")
	}
	if c.PendingTransmissions == nil {
		return errors.New("pending transmissions channel is required")
	}
	if c.GetClient == nil {
		return errors.New("get client function is required")
	}
	if c.Resolve == nil {
		return errors.New("resolve function is required")
	}
	if c.RefreshCap == nil {
		return errors.New("refresh cap function is required")
	}
	if c.ContractKind == nil {
		return errors.New("contract kind function is required")
	}
	if c.UnderlyingSources == nil {
		return errors.New("underlying sources function is required")
	}
	if c.UpdatedInBlock == nil {
		return errors.New("updated in block function is required")
	}
	if c.ApplyPositions == nil {
		return errors.New("apply positions function is required")
	}
	if c.Project == nil {
		return errors.New("project function is required")
	}
	if c.RefreshHealth == nil {
		return errors.New("refresh health function is required")
	}
	if c.RecordDetections == nil {
		return errors.New("record detections function is required")
	}
	if c.AppendAudit == nil {
		return errors.New("append audit function is required")
	}
	if c.VerifyUsers == nil {
		return errors.New("verify users function is required")
	}
	if c.InDelistedList == nil {
		return errors.New("in delisted list function is required")
	}
	if c.ErrorHandler == nil {
		return errors.New("error handler function is required")
	}
	if c.TestBloom == nil {
		return errors.New("test bloom function is required")
	}
	if len(c.FilterTopics) == 0 {
		return errors.New("filter topics are required for performance")
	}

	return nil
}

// LiquidationSystem is the main orchestrator that connects the price
// registry and position store to the live blockchain. It serves confirmed
// prices from on-chain events, projects account health under pending
// transmissions, and manages state with thread-safety.
type LiquidationSystem struct {
	systemName           string
	newBlockEventer      chan *types.Block
	pendingTransmissions chan oracle.TransactionObservation
	getClient            GetClientFunc
	resolve              ResolveFunc
	refreshCap           RefreshCapFunc
	contractKind         ContractKindFunc
	underlyingSources    UnderlyingSourcesFunc
	updatedInBlock       UpdatedInBlockFunc
	applyPositions       ApplyPositionsFunc
	project              ProjectFunc
	refreshHealth        RefreshHealthFunc
	recordDetections     RecordDetectionsFunc
	appendAudit          AppendAuditFunc
	verifyUsers          VerifyUsersFunc
	inDelistedList       InDelistedListFunc
	cachedView           atomic.Pointer[[]PriceView]
	lastUpdatedAtBlock   atomic.Uint64
	errorHandler         ErrorHandlerFunc
	testBloom            TestBloomFunc
	filterTopics         [][]common.Hash // Store topics for use in handleNewBlock
	pruneFrequency       time.Duration
	verifyFrequency      time.Duration
	pendingVerify        map[common.Address]struct{}
	logMaxRetries        int
	logRetryDelay        time.Duration
	mu                   sync.RWMutex
	registry             *priceRegistry
	// components holds the latest confirmed component snapshot per asset,
	// so cap-only events can reassemble a price without a full resolve.
	components map[common.Address]oracle.Components
	metrics    *Metrics
	logger     Logger
}

// NewLiquidationSystem constructs and returns a new, fully initialized system.
// It starts all background goroutines, making it a self-contained, "live" service upon creation.
func NewLiquidationSystem(ctx context.Context, cfg *Config) (*LiquidationSystem, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid liquidation system configuration: %w", err)
	}

	metrics := NewMetrics(cfg.PrometheusReg, cfg.SystemName)

	system := &LiquidationSystem{
		systemName:           cfg.SystemName,
		newBlockEventer:      cfg.NewBlockEventer,
		pendingTransmissions: cfg.PendingTransmissions,
		getClient:            cfg.GetClient,
		resolve:              cfg.Resolve,
		refreshCap:           cfg.RefreshCap,
		contractKind:         cfg.ContractKind,
		underlyingSources:    cfg.UnderlyingSources,
		updatedInBlock:       cfg.UpdatedInBlock,
		applyPositions:       cfg.ApplyPositions,
		project:              cfg.Project,
		refreshHealth:        cfg.RefreshHealth,
		recordDetections:     cfg.RecordDetections,
		appendAudit:          cfg.AppendAudit,
		verifyUsers:          cfg.VerifyUsers,
		inDelistedList:       cfg.InDelistedList,
		errorHandler: func(err error) {
			errorType := determineErrorType(err)
			cfg.Logger.Error("LiquidationSystem internal error", "system", cfg.SystemName, "type", errorType, "error", err)
			metrics.ErrorsTotal.WithLabelValues(errorType).Inc()

			// Call the user's external handler.
			cfg.ErrorHandler(err)
		},
		testBloom:       cfg.TestBloom,
		filterTopics:    cfg.FilterTopics,
		pruneFrequency:  cfg.PruneFrequency,
		verifyFrequency: cfg.VerifyFrequency,
		registry:        newPriceRegistry(),
		components:      make(map[common.Address]oracle.Components),
		pendingVerify:   make(map[common.Address]struct{}),
		logMaxRetries:   cfg.LogMaxRetries,
		logRetryDelay:   cfg.LogRetryDelay,
		metrics:         metrics,
		logger:          cfg.Logger,
	}

	system.cachedView.Store(&[]PriceView{})
	system.logger.Info("LiquidationSystem started", "system", system.systemName)
	go system.listenBlockEventer(ctx)
	go system.listenPendingTransmissions(ctx)
	go system.startPruner(ctx)
	go system.startVerifier(ctx)

	return system, nil
}

// RegisterAsset adds an asset and its price source to the registry. The
// source's archetype and full underlying aggregator set are resolved up
// front so later event routing is a pure map lookup.
func (s *LiquidationSystem) RegisterAsset(ctx context.Context, asset, source common.Address) error {
	kind, err := s.contractKind(ctx, source)
	if err != nil {
		return fmt.Errorf("failed to classify source %s: %w", source.Hex(), err)
	}

	underlying, err := s.underlyingSources(ctx, source)
	if err != nil {
		return fmt.Errorf("failed to resolve underlying sources for %s: %w", source.Hex(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := addAsset(asset, source, kind, underlying, s.registry); err != nil {
		return err
	}
	s.updateCachedView()
	return nil
}

// View returns a copy of the latest registry view. This operation is lock-free.
func (s *LiquidationSystem) View() []PriceView {
	viewPtr := s.cachedView.Load()
	if viewPtr == nil {
		return nil
	}
	view := *viewPtr
	viewCopy := make([]PriceView, len(view))
	copy(viewCopy, view)
	return viewCopy
}

// Price returns the latest confirmed price view for one asset.
func (s *LiquidationSystem) Price(asset common.Address) (PriceView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAsset(asset, s.registry)
}

// HistoricalPrice is the confirmed-price lookup used by the projector. An
// asset with no confirmed observation yet reports no price.
func (s *LiquidationSystem) HistoricalPrice(asset common.Address) (*big.Int, bool) {
	view, err := s.Price(asset)
	if err != nil || view.UpdatedAt.IsZero() {
		return nil, false
	}
	return view.Price, true
}

// LastUpdatedAtBlock returns the block number of the last successfully processed block.
func (s *LiquidationSystem) LastUpdatedAtBlock() uint64 {
	return s.lastUpdatedAtBlock.Load()
}

// NoteDegradedResolution counts a resolution that fell back to a stale
// cached parameter after a failed live refresh. The resolver raises the
// signal; routing it through the system lands it on the system's metrics.
func (s *LiquidationSystem) NoteDegradedResolution() {
	s.metrics.DegradedResolutions.WithLabelValues().Inc()
}

// updateCachedView generates a fresh view from the registry and atomically updates the pointer.
// This method MUST be called from within a write lock (s.mu.Lock).
func (s *LiquidationSystem) updateCachedView() {
	newView := viewRegistry(s.registry)
	s.cachedView.Store(&newView)
	s.metrics.AssetsInRegistry.WithLabelValues().Set(float64(len(newView)))
}

// listenBlockEventer is the main event loop for the confirmed path.
func (s *LiquidationSystem) listenBlockEventer(ctx context.Context) {
	for {
		select {
		case b := <-s.newBlockEventer:
			timer := prometheus.NewTimer(s.metrics.BlockProcessingDur.WithLabelValues())

			if !s.testBloom(b.Bloom()) {
				s.lastUpdatedAtBlock.Store(b.NumberU64())
				s.metrics.LastProcessedBlock.WithLabelValues().Set(float64(b.NumberU64()))
				timer.ObserveDuration()
				continue
			}
			if err := s.handleNewBlock(ctx, b); err != nil {
				s.errorHandler(err)
			}
			timer.ObserveDuration()
		case <-ctx.Done():
			s.logger.Info("LiquidationSystem stopping due to context cancellation.")
			return
		}
	}
}

// getLogsWithRetry attempts to fetch logs for a specific block, using a
// high-frequency polling strategy to account for potential node indexing delays.
//
// This function is called only after a block's bloom filter has passed our
// test, meaning we expect relevant logs to be present. If the initial query
// returns an empty slice, it retries up to `s.logMaxRetries` times
// before concluding the block has no relevant logs.
func (s *LiquidationSystem) getLogsWithRetry(ctx context.Context, client ethclients.ETHClient, block *types.Block) ([]types.Log, error) {
	blockHash := block.Hash()
	query := ethereum.FilterQuery{
		FromBlock: block.Number(),
		ToBlock:   block.Number(),
		Topics:    s.filterTopics,
	}

	// maxAttempts is 1 + the s.logMaxRetries value
	// we will try to fetch logs at least 1.
	maxAttempts := 1 + s.logMaxRetries
	for i := range maxAttempts {

		attempt := i + 1
		logs, err := client.FilterLogs(ctx, query)
		if err != nil {
			return nil, err // For genuine RPC errors, fail immediately.
		}

		// If logs are found, we have succeeded.
		if len(logs) > 0 {
			return logs, nil
		}

		// If logs are empty, it might be a race condition (node might still be processing the block)
		// we can retry if attempt < maxAttempts

		if attempt < maxAttempts {
			select {
			case <-time.After(s.logRetryDelay):
				s.logger.Debug("Retrying log fetch for block", "block", block.NumberU64(), "attempt", attempt)
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	// If all retries are exhausted, assume no relevant logs exist.
	s.logger.Warn("No relevant logs found for block after all retries", "block", block.NumberU64(), "hash", blockHash.Hex())
	return []types.Log{}, nil // Return an empty slice, not an error.
}

// priceUpdate is one resolved confirmed price ready to be applied to the
// registry under the write lock.
type priceUpdate struct {
	asset      common.Address
	components oracle.Components
	price      *big.Int
}

// handleNewBlock processes a single block: it replays the block's pool
// events into the position store, resolves confirmed prices for every
// tracked asset whose derivation involves an updated source, applies them
// to the registry, and refreshes confirmed health factors.
func (s *LiquidationSystem) handleNewBlock(ctx context.Context, b *types.Block) error {
	blockNum := b.NumberU64()
	start := time.Now()
	defer func() {
		s.logger.Info("Processed new block", "blockNumber", blockNum, "tx_count", len(b.Transactions()), "duration", time.Since(start))
	}()

	client, err := s.getClient()
	if err != nil {
		return fmt.Errorf("block %d: failed to get eth client: %w", blockNum, err)
	}

	filterStart := time.Now()
	logs, err := s.getLogsWithRetry(ctx, client, b)
	s.logger.Info("FilterLogs RPC call completed", "blockNumber", blockNum, "duration", time.Since(filterStart))
	if err != nil {
		return fmt.Errorf("block %d: failed to filter logs: %w", blockNum, err)
	}

	// Positions must reflect this block's pool activity before any health
	// refresh reads them.
	applied, droppedEvents := s.applyPositions(logs)
	if applied > 0 {
		s.metrics.PositionEventsTotal.WithLabelValues("applied").Add(float64(applied))
	}
	if droppedEvents > 0 {
		s.metrics.PositionEventsTotal.WithLabelValues("dropped").Add(float64(droppedEvents))
		s.logger.Warn("Dropped malformed position events in block", "blockNumber", blockNum, "count", droppedEvents)
	}

	observations, dropped := s.updatedInBlock(logs, time.Unix(int64(b.Time()), 0))
	if dropped > 0 {
		s.metrics.ObservationsDropped.WithLabelValues().Add(float64(dropped))
		s.logger.Warn("Dropped malformed observations in block", "blockNumber", blockNum, "count", dropped)
	}

	updates, updatedAssets := s.resolveObservations(ctx, blockNum, observations)

	var capturedErrors []error
	func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		applyErrors := s.applyPriceUpdates(blockNum, b, updates)
		capturedErrors = append(capturedErrors, applyErrors...)

		s.lastUpdatedAtBlock.Store(blockNum)
		if len(updates) > 0 {
			s.updateCachedView()
		}
	}()

	s.metrics.LastProcessedBlock.WithLabelValues().Set(float64(blockNum))
	for _, e := range capturedErrors {
		s.errorHandler(e)
	}

	for _, u := range updates {
		if err := s.appendAudit(u.components.Records()); err != nil {
			s.errorHandler(&AuditError{
				SystemError: SystemError{BlockNumber: blockNum, Err: err},
				Source:      u.components.Source,
			})
		}
		s.metrics.PricesResolved.WithLabelValues(u.components.Origin.String()).Inc()
	}

	if len(updatedAssets) > 0 {
		refreshed, skipped := s.refreshHealth(updatedAssets)
		s.metrics.HealthFactorsRefresh.WithLabelValues().Add(float64(refreshed))
		if skipped > 0 {
			s.metrics.ProjectionsSkipped.WithLabelValues().Add(float64(skipped))
		}
	}
	return nil
}

// resolveObservations maps each observation to the assets it can move and
// resolves a fresh component snapshot per (asset, observation) pair. RPC
// reads happen here, outside the registry lock.
func (s *LiquidationSystem) resolveObservations(ctx context.Context, blockNum uint64, observations []oracle.EventObservation) ([]priceUpdate, map[common.Address]struct{}) {
	var updates []priceUpdate
	updatedAssets := make(map[common.Address]struct{})

	for _, obs := range observations {
		s.mu.RLock()
		assets := assetsForSource(obs.Source, s.registry)
		s.mu.RUnlock()

		for _, asset := range assets {
			view, err := s.Price(asset)
			if err != nil {
				continue // Asset pruned between routing and resolution.
			}

			comps, err := s.resolveForAsset(ctx, asset, view, obs)
			if err != nil {
				s.errorHandler(&ResolutionError{
					SystemError: SystemError{BlockNumber: blockNum, Err: err},
					Asset:       asset,
					Source:      view.Source,
				})
				continue
			}

			price, err := oracle.AssemblePrice(comps)
			if err != nil {
				s.errorHandler(&ResolutionError{
					SystemError: SystemError{BlockNumber: blockNum, Err: err},
					Asset:       asset,
					Source:      view.Source,
				})
				continue
			}

			updates = append(updates, priceUpdate{asset: asset, components: comps, price: price})
			updatedAssets[asset] = struct{}{}
		}
	}
	return updates, updatedAssets
}

// resolveForAsset produces a fresh component snapshot for one asset. Cap
// parameter events carry no answer, so they patch the cap onto the last
// confirmed snapshot instead of running a full resolution.
func (s *LiquidationSystem) resolveForAsset(ctx context.Context, asset common.Address, view PriceView, obs oracle.EventObservation) (oracle.Components, error) {
	if obs.Answer != nil {
		return s.resolve(ctx, asset, view.Source, obs)
	}

	s.mu.RLock()
	prev, ok := s.components[asset]
	s.mu.RUnlock()
	if !ok {
		return oracle.Components{}, fmt.Errorf("cap update for %s before any confirmed price", asset.Hex())
	}

	maxCap, err := s.refreshCap(ctx, obs.Source, view.Kind, obs)
	if err != nil {
		return oracle.Components{}, fmt.Errorf("failed to refresh cap: %w", err)
	}

	prev.MaxCap = maxCap
	prev.Timestamp = obs.Timestamp()
	return prev, nil
}

// applyPriceUpdates writes resolved prices into the registry. This method must be called within a write lock.
func (s *LiquidationSystem) applyPriceUpdates(blockNumber uint64, b *types.Block, updates []priceUpdate) []error {
	var capturedErrors []error
	blockTime := time.Unix(int64(b.Time()), 0)
	for _, u := range updates {
		if !hasAsset(u.asset, s.registry) {
			continue // ensure asset belongs to this system
		}

		if err := updatePrice(u.price, blockNumber, blockTime, u.asset, s.registry); err != nil {
			capturedErrors = append(capturedErrors, &ResolutionError{
				SystemError: SystemError{BlockNumber: blockNumber, Err: err},
				Asset:       u.asset,
				Source:      u.components.Source,
			})
			continue
		}
		s.components[u.asset] = u.components
	}
	return capturedErrors
}

// listenPendingTransmissions is the event loop for the prediction path.
func (s *LiquidationSystem) listenPendingTransmissions(ctx context.Context) {
	for {
		select {
		case obs := <-s.pendingTransmissions:
			timer := prometheus.NewTimer(s.metrics.ProjectionDur.WithLabelValues())
			if err := s.handlePendingTransmission(ctx, obs); err != nil {
				s.errorHandler(err)
			}
			timer.ObserveDuration()
		case <-ctx.Done():
			return
		}
	}
}

// handlePendingTransmission projects account health as if the pending
// transmission had confirmed. Confirmed state is never written: predicted
// components live in their own cache namespace and projection reads a
// snapshot of positions.
func (s *LiquidationSystem) handlePendingTransmission(ctx context.Context, obs oracle.TransactionObservation) error {
	if err := obs.Validate(); err != nil {
		s.metrics.ObservationsDropped.WithLabelValues().Inc()
		return err
	}

	s.mu.RLock()
	assets := assetsForSource(obs.Oracle, s.registry)
	s.mu.RUnlock()
	if len(assets) == 0 {
		return nil
	}

	predictedPrices := make(map[common.Address]*big.Int, len(assets))
	updatedAssets := make(map[common.Address]struct{}, len(assets))
	for _, asset := range assets {
		view, err := s.Price(asset)
		if err != nil {
			continue
		}

		// A failure aborts only this asset's prediction; the rest of the
		// transmission's assets still project.
		comps, err := s.resolve(ctx, asset, view.Source, obs)
		if err != nil {
			s.errorHandler(&ProjectionError{
				SystemError:      SystemError{Err: err},
				Source:           obs.Oracle,
				TransmissionHash: obs.TxHash,
			})
			continue
		}

		price, err := oracle.AssemblePrice(comps)
		if err != nil {
			s.errorHandler(&ProjectionError{
				SystemError:      SystemError{Err: err},
				Source:           obs.Oracle,
				TransmissionHash: obs.TxHash,
			})
			continue
		}

		if err := s.appendAudit(comps.Records()); err != nil {
			s.errorHandler(&AuditError{SystemError: SystemError{Err: err}, Source: comps.Source})
		}

		predictedPrices[asset] = price
		updatedAssets[asset] = struct{}{}
	}
	if len(updatedAssets) == 0 {
		return nil
	}

	atRisk, skipped := s.project(updatedAssets, predictedPrices)
	if skipped > 0 {
		s.metrics.ProjectionsSkipped.WithLabelValues().Add(float64(skipped))
	}
	if len(atRisk) == 0 {
		return nil
	}

	// Registry iteration order is arbitrary; a sorted tag keeps detection
	// records deterministic.
	taggedAssets := make([]common.Address, 0, len(updatedAssets))
	for a := range updatedAssets {
		taggedAssets = append(taggedAssets, a)
	}
	sort.Slice(taggedAssets, func(i, j int) bool {
		return taggedAssets[i].Hex() < taggedAssets[j].Hex()
	})

	emitted := s.recordDetections(obs.Oracle, obs.TxHash, taggedAssets, atRisk)
	s.metrics.DetectionsEmitted.WithLabelValues().Add(float64(emitted))
	s.logger.Info(
		"Detected liquidation candidates for pending transmission",
		"oracle", obs.Oracle.Hex(),
		"tx", obs.TxHash.Hex(),
		"count", len(atRisk),
	)

	s.mu.Lock()
	for _, u := range atRisk {
		s.pendingVerify[u.User] = struct{}{}
	}
	s.mu.Unlock()

	return nil
}

// startVerifier is a background process that periodically re-reads
// on-chain balances for users flagged by the prediction path.
func (s *LiquidationSystem) startVerifier(ctx context.Context) {
	if s.verifyFrequency <= 0 {
		return
	}
	ticker := time.NewTicker(s.verifyFrequency)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.runPendingVerifications(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// runPendingVerifications drains the pending queue and verifies the flagged users in a batch.
func (s *LiquidationSystem) runPendingVerifications(ctx context.Context) {
	timer := prometheus.NewTimer(s.metrics.VerificationDuration.WithLabelValues())
	defer timer.ObserveDuration()

	var usersToVerify []common.Address
	func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if len(s.pendingVerify) > 0 {
			usersToVerify = make([]common.Address, 0, len(s.pendingVerify))
			for addr := range s.pendingVerify {
				usersToVerify = append(usersToVerify, addr)
			}
			s.pendingVerify = make(map[common.Address]struct{})
		}
	}()

	if len(usersToVerify) == 0 {
		return
	}

	s.logger.Info("Running balance verifier", "count", len(usersToVerify))

	drifts, err := s.verifyUsers(ctx, usersToVerify)
	if err != nil {
		s.errorHandler(fmt.Errorf("verifier: %w", err))
	}
	if drifts > 0 {
		s.logger.Warn("Verifier corrected drifted positions", "count", drifts)
		s.metrics.BalanceDrifts.WithLabelValues().Add(float64(drifts))
	}
}

// startPruner is a background process that periodically removes delisted assets from the registry.
func (s *LiquidationSystem) startPruner(ctx context.Context) {
	if s.pruneFrequency <= 0 {
		return
	}
	ticker := time.NewTicker(s.pruneFrequency)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.pruneDelistedAssets()
		case <-ctx.Done():
			return
		}
	}
}

// pruneDelistedAssets scans the registry for assets that should no longer be tracked and removes them.
func (s *LiquidationSystem) pruneDelistedAssets() {
	s.logger.Info("Starting pruner run to check for delisted assets")
	timer := prometheus.NewTimer(s.metrics.PruningDuration.WithLabelValues())
	defer timer.ObserveDuration()

	currentView := s.View()
	if len(currentView) == 0 {
		return
	}

	var assetsToDelete []common.Address
	for _, view := range currentView {
		if s.inDelistedList(view.Asset) {
			assetsToDelete = append(assetsToDelete, view.Asset)
		}
	}

	if len(assetsToDelete) > 0 {
		s.logger.Info("Pruner removing delisted assets", "count", len(assetsToDelete))
		errs := s.DeleteAssets(assetsToDelete)
		for i, err := range errs {
			if err != nil {
				s.errorHandler(&PrunerError{Asset: assetsToDelete[i], Err: fmt.Errorf("failed to delete from registry: %w", err)})
			}
		}
	}
}

// DeleteAsset removes an asset from the LiquidationSystem's internal registry.
//
// @note This is a low-level method that must be called hierarchically,
// typically from a central registry manager that can orchestrate the deletion
// across all necessary application subsystems.
//
// ⚠️ WARNING: Calling this function in isolation WILL lead to state
// inconsistency, as it does not affect dependent components. For a safe, application-wide deletion, use the
// appropriate manager-level method.
func (s *LiquidationSystem) DeleteAsset(asset common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := deleteAsset(asset, s.registry)
	if err != nil {
		return err
	}
	delete(s.components, asset)

	// After any modification to the registry, the cached view must be updated.
	s.updateCachedView()
	return nil
}

// DeleteAssets removes multiple assets from the LiquidationSystem's internal registry.
//
// @note This is a low-level method that must be called hierarchically,
// typically from a central registry manager that can orchestrate the deletion
// across all necessary application subsystems.
//
// ⚠️ WARNING: Calling this function in isolation WILL lead to state
// inconsistency, as it does not affect dependent components. For a safe, application-wide deletion, use the
// appropriate manager-level method.
func (s *LiquidationSystem) DeleteAssets(assets []common.Address) []error {
	s.mu.Lock()
	defer s.mu.Unlock()

	errs := make([]error, len(assets))
	hasChanged := false
	hasErrors := false

	for i, asset := range assets {
		err := deleteAsset(asset, s.registry)
		if err != nil {
			errs[i] = err
			hasErrors = true
		} else {
			delete(s.components, asset)
			hasChanged = true
		}
	}

	if hasChanged {
		// After any modification to the registry, the cached view must be updated.
		s.updateCachedView()
	}

	if hasErrors {
		return errs
	}

	return nil
}
