/*

RebalanceOrchestrator runs the end-to-end cycle for one agent: gather market
and wallet state, evaluate the strategy, and when action is needed drive the
strict withdraw → swap → deposit workflow. Every step is checkpointed so a
crash mid-workflow resumes past the steps that already confirmed on-chain
instead of replaying them. Collaborators are injected behind interfaces;
production wiring lives in cmd.

*/

package orchestrator

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rangeseeker/rebalancer/internal/allocation"
	"github.com/rangeseeker/rebalancer/internal/chain"
	"github.com/rangeseeker/rebalancer/internal/external"
	"github.com/rangeseeker/rebalancer/internal/logger"
	"github.com/rangeseeker/rebalancer/internal/marketdata"
	"github.com/rangeseeker/rebalancer/internal/state"
	"github.com/rangeseeker/rebalancer/internal/strategy"
	"github.com/rangeseeker/rebalancer/internal/tickmath"
	"github.com/rangeseeker/rebalancer/internal/types"
)

// mintDeadlineSeconds bounds how long a broadcast mint stays valid.
const mintDeadlineSeconds = 1200

// ChainClient is the on-chain collaborator contract.
type ChainClient interface {
	PoolState(ctx context.Context, pool common.Address) (types.PoolState, error)
	Erc20Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Erc20BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Erc20Decimals(ctx context.Context, token common.Address) (int, error)
	Erc20Symbol(ctx context.Context, token common.Address) (string, error)
	Approve(ctx context.Context, wallet, token, spender common.Address) (string, error)
	SubmitAndConfirm(ctx context.Context, wallet, to common.Address, data []byte, value *big.Int) (string, error)
	MintPosition(ctx context.Context, wallet common.Address, params chain.MintParams) (string, error)
	WithdrawPosition(ctx context.Context, wallet common.Address, tokenID *big.Int) ([]string, error)
	WalletPositions(ctx context.Context, wallet common.Address, pool types.PoolState, token0Decimals, token1Decimals int) ([]types.Position, error)
	PositionManager() common.Address
}

// SwapQuoter fetches firm swap quotes.
type SwapQuoter interface {
	Quote(ctx context.Context, sellToken, buyToken, taker common.Address, sellAmount *big.Int) (*external.SwapQuote, error)
}

// Store is the persistence collaborator contract.
type Store interface {
	GetAgent(agentID string) (types.Agent, error)
	GetStrategy(strategyID string) (types.StrategyDefinition, error)
	GetCheckpoint(agentID string) (*state.WorkflowCheckpoint, error)
	SaveCheckpoint(cp state.WorkflowCheckpoint) error
	ClearCheckpoint(agentID string) error
	RecordOutcome(outcome types.RebalanceOutcome) error
}

// VolatilitySource computes pool volatility metrics.
type VolatilitySource interface {
	PoolVolatility(ctx context.Context, pool common.Address, hoursBack int) (types.VolatilityMetrics, error)
}

// ModelFactory builds a volatility source for a pool's token decimals.
type ModelFactory func(token0Decimals, token1Decimals int) VolatilitySource

// Config tunes the orchestrator.
type Config struct {
	// WorkflowDeadline bounds one EvaluateAndRebalance run end to end.
	WorkflowDeadline time.Duration

	// SwapDustUsd is the minimum USD value a planned swap leg must move;
	// below it the imbalance is left alone.
	SwapDustUsd float64
}

// Orchestrator coordinates evaluation and execution for agents.
type Orchestrator struct {
	chain     ChainClient
	quoter    SwapQuoter
	oracle    external.PriceFetcher
	store     Store
	models    ModelFactory
	evaluator *strategy.Evaluator
	cfg       Config
	logger    zerolog.Logger

	mu   sync.Mutex
	busy map[string]bool
}

// NewOrchestrator wires an Orchestrator from its collaborators.
func NewOrchestrator(chainClient ChainClient, quoter SwapQuoter, oracle external.PriceFetcher, store Store, models ModelFactory, cfg Config) *Orchestrator {
	if cfg.WorkflowDeadline <= 0 {
		cfg.WorkflowDeadline = 10 * time.Minute
	}
	if cfg.SwapDustUsd <= 0 {
		cfg.SwapDustUsd = 1.0
	}
	return &Orchestrator{
		chain:     chainClient,
		quoter:    quoter,
		oracle:    oracle,
		store:     store,
		models:    models,
		evaluator: strategy.NewEvaluator(),
		cfg:       cfg,
		logger:    logger.GetForComponent("rebalance_orchestrator"),
		busy:      make(map[string]bool),
	}
}

// poolContext bundles the per-pool facts one run needs repeatedly.
type poolContext struct {
	pool      types.PoolState
	dec0      int
	dec1      int
	sym0      string
	sym1      string
	price     float64 // human-scale token1 per token0
	pricesUsd map[string]float64
}

// TryAcquire takes the agent's execution lease. Returns false when another
// run (scheduled or manual) is already in flight for the agent.
func (o *Orchestrator) TryAcquire(agentID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy[agentID] {
		return false
	}
	o.busy[agentID] = true
	return true
}

// Release returns the agent's execution lease.
func (o *Orchestrator) Release(agentID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.busy, agentID)
}

// EvaluateAndRebalance runs one full cycle for one agent and records the
// terminal outcome. The lease guarantees at most one concurrent run per
// agent; callers holding no lease get a SKIPPED outcome.
func (o *Orchestrator) EvaluateAndRebalance(ctx context.Context, agentID, runID string) types.RebalanceOutcome {
	if !o.TryAcquire(agentID) {
		return types.RebalanceOutcome{
			AgentID: agentID,
			RunID:   runID,
			Kind:    types.OutcomeSkipped,
			Reason:  "previous run still in flight",
		}
	}
	defer o.Release(agentID)

	ctx, cancel := context.WithTimeout(ctx, o.cfg.WorkflowDeadline)
	defer cancel()

	log := o.logger.With().Str("agent_id", agentID).Str("run_id", runID).Logger()
	outcome := o.run(ctx, log, agentID, runID)

	if err := o.store.RecordOutcome(outcome); err != nil {
		log.Error().Err(err).Msg("Failed to record rebalance outcome")
	}
	return outcome
}

func (o *Orchestrator) run(ctx context.Context, log zerolog.Logger, agentID, runID string) types.RebalanceOutcome {
	fail := func(err error, txHashes []string) types.RebalanceOutcome {
		log.Error().Err(err).Msg("Rebalance run failed")
		return types.RebalanceOutcome{
			AgentID:  agentID,
			RunID:    runID,
			Kind:     types.OutcomeFailed,
			Reason:   err.Error(),
			TxHashes: txHashes,
		}
	}

	agent, err := o.store.GetAgent(agentID)
	if err != nil {
		return fail(err, nil)
	}
	def, err := o.store.GetStrategy(agent.StrategyID)
	if err != nil {
		return fail(err, nil)
	}

	pc, err := o.gatherPoolContext(ctx, agent, &def)
	if err != nil {
		return fail(err, nil)
	}

	position, err := o.currentPosition(ctx, agent, pc)
	if err != nil {
		return fail(err, nil)
	}
	if position != nil {
		log.Debug().
			Int64("token_id", position.TokenID.Int64()).
			Float64("position_value_usd", position.TotalValueUsd()).
			Msg("Existing position loaded")
	}

	// A surviving checkpoint means a prior run confirmed on-chain steps and
	// then died. Execution resumes before any fresh evaluation; leaving the
	// wallet half-migrated is worse than finishing a slightly stale plan.
	cp, err := o.store.GetCheckpoint(agentID)
	if err != nil {
		return fail(err, nil)
	}
	if cp != nil {
		log.Warn().
			Str("resume_step", cp.Step.String()).
			Str("previous_run_id", cp.RunID).
			Msg("Resuming interrupted rebalance workflow")
		if cp.Plan != nil && cp.Plan.ExitOnly {
			return o.executeExit(ctx, log, agent, pc, position, cp, runID, "resumed exit workflow")
		}
		return o.executeRebalance(ctx, log, agent, pc, position, cp, runID)
	}

	hoursBack := volatilityWindowHours(&def)
	volatility, err := o.models(pc.dec0, pc.dec1).PoolVolatility(ctx, agent.PoolAddress, hoursBack)
	if err != nil {
		return fail(err, nil)
	}

	market := strategy.MarketState{
		CurrentPrice:   pc.price,
		CurrentTick:    pc.pool.Tick,
		Volatility:     volatility,
		AssetPricesUsd: pc.pricesUsd,
	}

	decision, err := o.evaluator.Evaluate(&def, market, position)
	if err != nil {
		return fail(err, nil)
	}
	log.Info().
		Str("action", string(decision.Action)).
		Str("reason", decision.Reason).
		Float64("annualized_volatility", volatility.Annualized).
		Msg("Strategy evaluated")

	switch decision.Action {
	case strategy.ActionNoAction:
		return types.RebalanceOutcome{AgentID: agentID, RunID: runID, Kind: types.OutcomeNoAction, Reason: decision.Reason}
	case strategy.ActionPaused:
		return types.RebalanceOutcome{AgentID: agentID, RunID: runID, Kind: types.OutcomePaused, Reason: decision.Reason}
	case strategy.ActionExit:
		target, err := o.resolveExitTarget(pc, decision.ExitTargetAsset)
		if err != nil {
			return fail(err, nil)
		}
		cp := &state.WorkflowCheckpoint{
			AgentID: agentID,
			RunID:   runID,
			Step:    types.StepPending,
			Plan:    &types.RebalancePlan{ExitOnly: true, TargetAsset: target},
		}
		return o.executeExit(ctx, log, agent, pc, position, cp, runID, decision.Reason)
	case strategy.ActionRebalance:
		cp := &state.WorkflowCheckpoint{
			AgentID:      agentID,
			RunID:        runID,
			Step:         types.StepPending,
			RangePercent: decision.RangePercent,
		}
		return o.executeRebalance(ctx, log, agent, pc, position, cp, runID)
	}

	return fail(fmt.Errorf("%w: unhandled action %q", types.ErrInvalidConfiguration, decision.Action), nil)
}

// gatherPoolContext reads the pool and token facts plus oracle USD prices for
// every asset the strategy references.
func (o *Orchestrator) gatherPoolContext(ctx context.Context, agent types.Agent, def *types.StrategyDefinition) (*poolContext, error) {
	pool, err := withRetry(ctx, func(ctx context.Context) (types.PoolState, error) {
		return o.chain.PoolState(ctx, agent.PoolAddress)
	})
	if err != nil {
		return nil, err
	}

	pc := &poolContext{pool: pool}
	if pc.dec0, err = withRetry(ctx, func(ctx context.Context) (int, error) {
		return o.chain.Erc20Decimals(ctx, pool.Token0)
	}); err != nil {
		return nil, err
	}
	if pc.dec1, err = withRetry(ctx, func(ctx context.Context) (int, error) {
		return o.chain.Erc20Decimals(ctx, pool.Token1)
	}); err != nil {
		return nil, err
	}
	if pc.sym0, err = withRetry(ctx, func(ctx context.Context) (string, error) {
		return o.chain.Erc20Symbol(ctx, pool.Token0)
	}); err != nil {
		return nil, err
	}
	if pc.sym1, err = withRetry(ctx, func(ctx context.Context) (string, error) {
		return o.chain.Erc20Symbol(ctx, pool.Token1)
	}); err != nil {
		return nil, err
	}

	pc.price = marketdata.PriceFromSqrtX96(pool.SqrtPriceX96, pc.dec0, pc.dec1)
	if pc.price <= 0 {
		return nil, fmt.Errorf("%w: pool %s has no usable price", types.ErrInsufficientData, agent.PoolAddress.Hex())
	}

	symbols := []string{pc.sym0, pc.sym1}
	for i := range def.Rules {
		if rule := &def.Rules[i]; rule.Type == types.RuleTypePriceThreshold {
			symbols = append(symbols, rule.PriceThreshold.Asset)
		}
	}
	pc.pricesUsd, err = external.PricesForSymbols(ctx, o.oracle, symbols)
	if err != nil {
		return nil, err
	}

	return pc, nil
}

// currentPosition returns the agent's position in its pool, USD-valued, or
// nil when the wallet holds none.
func (o *Orchestrator) currentPosition(ctx context.Context, agent types.Agent, pc *poolContext) (*types.Position, error) {
	positions, err := withRetry(ctx, func(ctx context.Context) ([]types.Position, error) {
		return o.chain.WalletPositions(ctx, agent.WalletAddress, pc.pool, pc.dec0, pc.dec1)
	})
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, nil
	}

	position := positions[0]
	position.UsdValue0 = position.Token0Amount * pc.pricesUsd[pc.sym0]
	position.UsdValue1 = position.Token1Amount * pc.pricesUsd[pc.sym1]
	return &position, nil
}

// executeRebalance drives withdraw → swap → deposit from the checkpoint's
// step onward. The checkpoint carries the range percent decided before
// execution started, so a resume that died before planning rebuilds the plan
// from it instead of re-evaluating against moved market data.
func (o *Orchestrator) executeRebalance(ctx context.Context, log zerolog.Logger, agent types.Agent, pc *poolContext, position *types.Position, cp *state.WorkflowCheckpoint, runID string) types.RebalanceOutcome {
	fail := func(err error) types.RebalanceOutcome {
		log.Error().Err(err).Str("step", cp.Step.String()).Msg("Rebalance workflow failed")
		return types.RebalanceOutcome{
			AgentID:  agent.AgentID,
			RunID:    runID,
			Kind:     types.OutcomeFailed,
			Reason:   err.Error(),
			TxHashes: cp.TxHashes,
		}
	}

	if cp.Step < types.StepWithdrawn {
		if position != nil {
			hashes, err := o.chain.WithdrawPosition(ctx, agent.WalletAddress, position.TokenID)
			cp.TxHashes = append(cp.TxHashes, hashes...)
			if err != nil {
				return fail(err)
			}
			log.Info().Int64("token_id", position.TokenID.Int64()).Msg("Position withdrawn")
		}
		cp.Step = types.StepWithdrawn
		o.saveCheckpoint(log, cp)
	}

	snap, err := o.walletSnapshot(ctx, agent.WalletAddress, pc)
	if err != nil {
		return fail(err)
	}

	if cp.Plan == nil {
		plan, err := o.buildPlan(log, pc, cp.RangePercent, snap)
		if err != nil {
			return fail(err)
		}
		cp.Plan = plan
		o.saveCheckpoint(log, cp)
	}

	if cp.Step < types.StepSwapped {
		if cp.Plan.NeedsSwap() {
			sellToken, buyToken := pc.pool.Token0, pc.pool.Token1
			if cp.Plan.SwapDirection == types.SwapOneToZero {
				sellToken, buyToken = pc.pool.Token1, pc.pool.Token0
			}
			hashes, err := o.executeSwap(ctx, log, agent.WalletAddress, sellToken, buyToken, cp.Plan.SwapAmountRaw)
			cp.TxHashes = append(cp.TxHashes, hashes...)
			if err != nil {
				return fail(err)
			}
		}
		cp.Step = types.StepSwapped
		o.saveCheckpoint(log, cp)

		// Balances moved; the deposit uses what the wallet actually holds.
		if snap, err = o.walletSnapshot(ctx, agent.WalletAddress, pc); err != nil {
			return fail(err)
		}
	}

	bal0 := snap.Balance(pc.pool.Token0).BalanceRaw
	bal1 := snap.Balance(pc.pool.Token1).BalanceRaw
	if bal0.Sign() == 0 && bal1.Sign() == 0 {
		return fail(fmt.Errorf("%w: wallet holds nothing to deposit", types.ErrInsufficientData))
	}

	if err := o.ensureManagerAllowance(ctx, log, agent.WalletAddress, pc.pool.Token0, bal0, cp); err != nil {
		return fail(err)
	}
	if err := o.ensureManagerAllowance(ctx, log, agent.WalletAddress, pc.pool.Token1, bal1, cp); err != nil {
		return fail(err)
	}

	mintHash, err := o.chain.MintPosition(ctx, agent.WalletAddress, chain.MintParams{
		Token0:         pc.pool.Token0,
		Token1:         pc.pool.Token1,
		Fee:            new(big.Int).SetUint64(uint64(pc.pool.FeeBps)),
		TickLower:      big.NewInt(int64(cp.Plan.TargetTickLower)),
		TickUpper:      big.NewInt(int64(cp.Plan.TargetTickUpper)),
		Amount0Desired: bal0,
		Amount1Desired: bal1,
		Amount0Min:     big.NewInt(0),
		Amount1Min:     big.NewInt(0),
		Recipient:      agent.WalletAddress,
		Deadline:       big.NewInt(time.Now().Unix() + mintDeadlineSeconds),
	})
	if mintHash != "" {
		cp.TxHashes = append(cp.TxHashes, mintHash)
	}
	if err != nil {
		return fail(err)
	}

	cp.Step = types.StepDeposited
	if err := o.store.ClearCheckpoint(agent.AgentID); err != nil {
		log.Error().Err(err).Msg("Failed to clear workflow checkpoint after deposit")
	}

	log.Info().
		Int32("tick_lower", cp.Plan.TargetTickLower).
		Int32("tick_upper", cp.Plan.TargetTickUpper).
		Str("mint_tx", mintHash).
		Msg("Rebalance complete")

	return types.RebalanceOutcome{
		AgentID:  agent.AgentID,
		RunID:    runID,
		Kind:     types.OutcomeRebalanced,
		Reason:   fmt.Sprintf("redeployed into ticks [%d, %d]", cp.Plan.TargetTickLower, cp.Plan.TargetTickUpper),
		TxHashes: cp.TxHashes,
	}
}

// executeExit withdraws the position and converts everything to the target
// asset, leaving the wallet out of the pool.
func (o *Orchestrator) executeExit(ctx context.Context, log zerolog.Logger, agent types.Agent, pc *poolContext, position *types.Position, cp *state.WorkflowCheckpoint, runID, reason string) types.RebalanceOutcome {
	fail := func(err error) types.RebalanceOutcome {
		log.Error().Err(err).Str("step", cp.Step.String()).Msg("Exit workflow failed")
		return types.RebalanceOutcome{
			AgentID:  agent.AgentID,
			RunID:    runID,
			Kind:     types.OutcomeFailed,
			Reason:   err.Error(),
			TxHashes: cp.TxHashes,
		}
	}

	if cp.Step < types.StepWithdrawn {
		if position != nil {
			hashes, err := o.chain.WithdrawPosition(ctx, agent.WalletAddress, position.TokenID)
			cp.TxHashes = append(cp.TxHashes, hashes...)
			if err != nil {
				return fail(err)
			}
		}
		cp.Step = types.StepWithdrawn
		o.saveCheckpoint(log, cp)
	}

	sellToken := pc.pool.Token0
	if cp.Plan.TargetAsset == pc.pool.Token0 {
		sellToken = pc.pool.Token1
	}

	if cp.Step < types.StepSwapped {
		balance, err := withRetry(ctx, func(ctx context.Context) (*big.Int, error) {
			return o.chain.Erc20BalanceOf(ctx, sellToken, agent.WalletAddress)
		})
		if err != nil {
			return fail(err)
		}
		if balance.Sign() > 0 {
			hashes, err := o.executeSwap(ctx, log, agent.WalletAddress, sellToken, cp.Plan.TargetAsset, balance)
			cp.TxHashes = append(cp.TxHashes, hashes...)
			if err != nil {
				return fail(err)
			}
		}
		cp.Step = types.StepSwapped
	}

	if err := o.store.ClearCheckpoint(agent.AgentID); err != nil {
		log.Error().Err(err).Msg("Failed to clear workflow checkpoint after exit")
	}

	log.Info().Str("target_asset", cp.Plan.TargetAsset.Hex()).Msg("Exit to stable complete")
	return types.RebalanceOutcome{
		AgentID:  agent.AgentID,
		RunID:    runID,
		Kind:     types.OutcomeExited,
		Reason:   reason,
		TxHashes: cp.TxHashes,
	}
}

// buildPlan turns the measured wallet snapshot into a swap-and-deposit plan
// via the allocation calculator and tick alignment.
func (o *Orchestrator) buildPlan(log zerolog.Logger, pc *poolContext, rangePercent float64, snap *types.AgentWalletSnapshot) (*types.RebalancePlan, error) {
	b0 := snap.Balance(pc.pool.Token0)
	b1 := snap.Balance(pc.pool.Token1)

	calc := allocation.NewCalculator(allocation.Config{
		MinSwapThreshold0: o.cfg.SwapDustUsd / b0.PriceUsd,
		MinSwapThreshold1: o.cfg.SwapDustUsd / b1.PriceUsd,
	})
	result, err := calc.Compute(allocation.Inputs{
		CurrentPrice: pc.price,
		RangePercent: rangePercent,
		Amount0:      b0.Amount(),
		Amount1:      b1.Amount(),
		Price0:       b0.PriceUsd,
		Price1:       b1.PriceUsd,
	})
	if err != nil {
		return nil, err
	}

	// Ticks index the raw token ratio, so the human price bounds are shifted
	// back by the decimal difference before conversion.
	rawShift := math.Pow10(pc.dec1 - pc.dec0)
	tickLower, tickUpper, err := tickmath.RangeToTicks(result.PriceLower*rawShift, result.PriceUpper*rawShift, pc.pool.TickSpacing)
	if err != nil {
		return nil, err
	}

	plan := &types.RebalancePlan{
		SwapDirection:   result.SwapDirection,
		TargetTickLower: tickLower,
		TargetTickUpper: tickUpper,
	}
	if result.SwapDirection != types.SwapNone {
		sellDecimals := pc.dec0
		if result.SwapDirection == types.SwapOneToZero {
			sellDecimals = pc.dec1
		}
		plan.SwapAmountRaw = decimal.NewFromFloat(result.SwapAmount).Shift(int32(sellDecimals)).BigInt()
	}

	log.Info().
		Float64("range_percent", rangePercent).
		Float64("wallet_value_usd", b0.ValueUsd()+b1.ValueUsd()).
		Int32("tick_lower", tickLower).
		Int32("tick_upper", tickUpper).
		Str("swap_direction", string(result.SwapDirection)).
		Float64("swap_amount", result.SwapAmount).
		Msg("Rebalance plan built")

	return plan, nil
}

// executeSwap quotes, repairs a missing allowance at most once, and
// broadcasts. A quote that still reports an allowance issue after the
// corrective approval confirms is a hard failure; broadcasting it anyway
// would revert and burn gas.
func (o *Orchestrator) executeSwap(ctx context.Context, log zerolog.Logger, wallet, sellToken, buyToken common.Address, sellAmount *big.Int) ([]string, error) {
	var hashes []string

	quote, err := o.quoter.Quote(ctx, sellToken, buyToken, wallet, sellAmount)
	if err != nil {
		return hashes, err
	}

	if quote.AllowanceSpender != nil {
		log.Info().
			Str("spender", quote.AllowanceSpender.Hex()).
			Str("sell_token", sellToken.Hex()).
			Msg("Swap allowance missing, approving")
		hash, err := o.chain.Approve(ctx, wallet, sellToken, *quote.AllowanceSpender)
		if hash != "" {
			hashes = append(hashes, hash)
		}
		if err != nil {
			return hashes, err
		}

		if quote, err = o.quoter.Quote(ctx, sellToken, buyToken, wallet, sellAmount); err != nil {
			return hashes, err
		}
		if quote.AllowanceSpender != nil {
			return hashes, fmt.Errorf("%w: spender %s still unapproved after confirmed approval",
				types.ErrAllowanceInsufficient, quote.AllowanceSpender.Hex())
		}
	}

	if quote.InsufficientFunds {
		return hashes, fmt.Errorf("%w: wallet balance below quoted sell amount", types.ErrOnChainFailure)
	}

	hash, err := o.chain.SubmitAndConfirm(ctx, wallet, quote.To, quote.Data, quote.Value)
	if hash != "" {
		hashes = append(hashes, hash)
	}
	if err != nil {
		return hashes, err
	}

	log.Info().
		Str("sell_token", sellToken.Hex()).
		Str("buy_token", buyToken.Hex()).
		Str("sell_amount", sellAmount.String()).
		Str("tx_hash", hash).
		Msg("Swap confirmed")

	return hashes, nil
}

// ensureManagerAllowance approves the position manager when the current
// allowance cannot cover the pending deposit amount.
func (o *Orchestrator) ensureManagerAllowance(ctx context.Context, log zerolog.Logger, wallet, token common.Address, amount *big.Int, cp *state.WorkflowCheckpoint) error {
	if amount.Sign() == 0 {
		return nil
	}
	allowance, err := withRetry(ctx, func(ctx context.Context) (*big.Int, error) {
		return o.chain.Erc20Allowance(ctx, token, wallet, o.chain.PositionManager())
	})
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}

	hash, err := o.chain.Approve(ctx, wallet, token, o.chain.PositionManager())
	if hash != "" {
		cp.TxHashes = append(cp.TxHashes, hash)
	}
	if err != nil {
		return err
	}
	log.Info().Str("token", token.Hex()).Msg("Position manager approved")
	return nil
}

// walletSnapshot reads the agent's pool-token balances as a point-in-time
// view, USD-priced from the oracle reads already in the pool context.
func (o *Orchestrator) walletSnapshot(ctx context.Context, wallet common.Address, pc *poolContext) (*types.AgentWalletSnapshot, error) {
	assets := []types.AssetBalance{
		{Asset: pc.pool.Token0, Symbol: pc.sym0, Decimals: pc.dec0, PriceUsd: pc.pricesUsd[pc.sym0]},
		{Asset: pc.pool.Token1, Symbol: pc.sym1, Decimals: pc.dec1, PriceUsd: pc.pricesUsd[pc.sym1]},
	}
	for i := range assets {
		asset := &assets[i]
		raw, err := withRetry(ctx, func(ctx context.Context) (*big.Int, error) {
			return o.chain.Erc20BalanceOf(ctx, asset.Asset, wallet)
		})
		if err != nil {
			return nil, err
		}
		asset.BalanceRaw = raw
	}
	return &types.AgentWalletSnapshot{Address: wallet, AssetBalances: assets}, nil
}

// saveCheckpoint persists progress; a failed write is logged and the workflow
// continues, trading resume fidelity for forward progress.
func (o *Orchestrator) saveCheckpoint(log zerolog.Logger, cp *state.WorkflowCheckpoint) {
	if err := o.store.SaveCheckpoint(*cp); err != nil {
		log.Error().Err(err).Str("step", cp.Step.String()).Msg("Failed to persist workflow checkpoint")
	}
}

func (o *Orchestrator) resolveExitTarget(pc *poolContext, targetSymbol string) (common.Address, error) {
	switch {
	case strings.EqualFold(targetSymbol, pc.sym0):
		return pc.pool.Token0, nil
	case strings.EqualFold(targetSymbol, pc.sym1):
		return pc.pool.Token1, nil
	}
	return common.Address{}, fmt.Errorf("%w: exit target %q is not a pool asset (%s/%s)",
		types.ErrInvalidConfiguration, targetSymbol, pc.sym0, pc.sym1)
}

// volatilityWindowHours picks the lookback for volatility from the strategy's
// trigger rule, defaulting to a day.
func volatilityWindowHours(def *types.StrategyDefinition) int {
	for i := range def.Rules {
		if rule := &def.Rules[i]; rule.Type == types.RuleTypeVolatilityTrigger {
			return strategy.WindowHours(rule.VolatilityTrigger.Window)
		}
	}
	return 24
}
