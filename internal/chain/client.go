/*

Client wraps go-ethereum with the small set of chain reads and writes the
rebalance workflow needs: pool state, ERC-20 allowance/balance, approvals,
position manager mint/withdraw, and receipt confirmation. Transaction custody
stays outside: signing goes through the injected Signer collaborator.

*/

package chain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"github.com/rangeseeker/rebalancer/internal/logger"
	"github.com/rangeseeker/rebalancer/internal/types"
)

var (
	ErrInvalidAddress   = errors.New("address is invalid")
	ErrCallFailed       = errors.New("contract call failed")
	ErrUnexpectedOutput = errors.New("contract returned unexpected output")
)

// receiptPollInterval is how often WaitForReceipt polls the node.
const receiptPollInterval = 2 * time.Second

// maxUint256 is used for unbounded approvals.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// maxUint128 is the collect-all sentinel for position manager collects.
var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Signer signs a prepared transaction on behalf of a wallet. Custody is an
// external collaborator; the engine never sees key material.
type Signer interface {
	SignTransaction(ctx context.Context, wallet common.Address, tx *ethtypes.Transaction) (*ethtypes.Transaction, error)
}

// Client is the Ethereum collaborator for the rebalance workflow.
type Client struct {
	rpcClient       *rpc.Client
	ethClient       *ethclient.Client
	signer          Signer
	chainID         *big.Int
	positionManager common.Address
	logger          zerolog.Logger
}

// NewClient dials the RPC endpoint and prepares the ABI codecs.
func NewClient(ctx context.Context, rpcURL string, chainID uint64, positionManager common.Address, signer Signer) (*Client, error) {
	if err := loadABIs(); err != nil {
		return nil, fmt.Errorf("parsing embedded ABIs: %w", err)
	}
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %w", types.ErrExternalServiceFailure, rpcURL, err)
	}
	return &Client{
		rpcClient:       rpcClient,
		ethClient:       ethclient.NewClient(rpcClient),
		signer:          signer,
		chainID:         new(big.Int).SetUint64(chainID),
		positionManager: positionManager,
		logger:          logger.GetForComponent("chain_client"),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// PositionManager returns the position manager contract address.
func (c *Client) PositionManager() common.Address {
	return c.positionManager
}

func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := c.ethClient.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", types.ErrExternalServiceFailure, ErrCallFailed, err)
	}
	return out, nil
}

// PoolState reads the pool's slot0, liquidity, tokens, fee and spacing.
func (c *Client) PoolState(ctx context.Context, pool common.Address) (types.PoolState, error) {
	state := types.PoolState{Address: pool}

	slot0Data, err := v3PoolABI.Pack("slot0")
	if err != nil {
		return state, fmt.Errorf("packing slot0: %w", err)
	}
	out, err := c.call(ctx, pool, slot0Data)
	if err != nil {
		return state, err
	}
	slot0, err := v3PoolABI.Unpack("slot0", out)
	if err != nil || len(slot0) < 2 {
		return state, fmt.Errorf("%w: slot0: %v", ErrUnexpectedOutput, err)
	}
	state.SqrtPriceX96 = slot0[0].(*big.Int)
	state.Tick = int32(slot0[1].(*big.Int).Int64())

	if state.Liquidity, err = c.callBigInt(ctx, pool, v3PoolABI, "liquidity"); err != nil {
		return state, err
	}
	if state.Token0, err = c.callAddress(ctx, pool, v3PoolABI, "token0"); err != nil {
		return state, err
	}
	if state.Token1, err = c.callAddress(ctx, pool, v3PoolABI, "token1"); err != nil {
		return state, err
	}

	fee, err := c.callBigInt(ctx, pool, v3PoolABI, "fee")
	if err != nil {
		return state, err
	}
	state.FeeBps = uint32(fee.Uint64())

	spacing, err := c.callBigInt(ctx, pool, v3PoolABI, "tickSpacing")
	if err != nil {
		return state, err
	}
	state.TickSpacing = int32(spacing.Int64())

	return state, nil
}

func (c *Client) callBigInt(ctx context.Context, to common.Address, codec interface {
	Pack(name string, args ...interface{}) ([]byte, error)
	Unpack(name string, data []byte) ([]interface{}, error)
}, method string, args ...interface{}) (*big.Int, error) {
	data, err := codec.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", method, err)
	}
	out, err := c.call(ctx, to, data)
	if err != nil {
		return nil, err
	}
	values, err := codec.Unpack(method, out)
	if err != nil || len(values) == 0 {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnexpectedOutput, method, err)
	}
	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: %s returned %T", ErrUnexpectedOutput, method, values[0])
	}
	return value, nil
}

func (c *Client) callAddress(ctx context.Context, to common.Address, codec interface {
	Pack(name string, args ...interface{}) ([]byte, error)
	Unpack(name string, data []byte) ([]interface{}, error)
}, method string) (common.Address, error) {
	data, err := codec.Pack(method)
	if err != nil {
		return common.Address{}, fmt.Errorf("packing %s: %w", method, err)
	}
	out, err := c.call(ctx, to, data)
	if err != nil {
		return common.Address{}, err
	}
	values, err := codec.Unpack(method, out)
	if err != nil || len(values) == 0 {
		return common.Address{}, fmt.Errorf("%w: %s: %v", ErrUnexpectedOutput, method, err)
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s returned %T", ErrUnexpectedOutput, method, values[0])
	}
	return addr, nil
}

// Erc20Allowance returns the spender's current allowance.
func (c *Client) Erc20Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return c.callBigInt(ctx, token, erc20ABI, "allowance", owner, spender)
}

// Erc20BalanceOf returns the wallet's token balance.
func (c *Client) Erc20BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return c.callBigInt(ctx, token, erc20ABI, "balanceOf", owner)
}

// Erc20Decimals returns the token's decimal count.
func (c *Client) Erc20Decimals(ctx context.Context, token common.Address) (int, error) {
	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("packing decimals: %w", err)
	}
	out, err := c.call(ctx, token, data)
	if err != nil {
		return 0, err
	}
	values, err := erc20ABI.Unpack("decimals", out)
	if err != nil || len(values) == 0 {
		return 0, fmt.Errorf("%w: decimals: %v", ErrUnexpectedOutput, err)
	}
	return int(values[0].(uint8)), nil
}

// Erc20Symbol returns the token's symbol.
func (c *Client) Erc20Symbol(ctx context.Context, token common.Address) (string, error) {
	data, err := erc20ABI.Pack("symbol")
	if err != nil {
		return "", fmt.Errorf("packing symbol: %w", err)
	}
	out, err := c.call(ctx, token, data)
	if err != nil {
		return "", err
	}
	values, err := erc20ABI.Unpack("symbol", out)
	if err != nil || len(values) == 0 {
		return "", fmt.Errorf("%w: symbol: %v", ErrUnexpectedOutput, err)
	}
	symbol, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("%w: symbol returned %T", ErrUnexpectedOutput, values[0])
	}
	return symbol, nil
}

// Approve submits an unbounded approval from the wallet to the spender and
// waits for confirmation.
func (c *Client) Approve(ctx context.Context, wallet, token, spender common.Address) (string, error) {
	data, err := erc20ABI.Pack("approve", spender, maxUint256)
	if err != nil {
		return "", fmt.Errorf("packing approve: %w", err)
	}
	hash, err := c.SubmitTransaction(ctx, wallet, token, data, nil)
	if err != nil {
		return "", err
	}
	if _, err := c.WaitForReceipt(ctx, hash); err != nil {
		return hash, err
	}
	c.logger.Info().
		Str("token", token.Hex()).
		Str("spender", spender.Hex()).
		Str("txHash", hash).
		Msg("Approval confirmed")
	return hash, nil
}

// MintParams mirrors the position manager mint tuple.
type MintParams struct {
	Token0         common.Address
	Token1         common.Address
	Fee            *big.Int
	TickLower      *big.Int
	TickUpper      *big.Int
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Recipient      common.Address
	Deadline       *big.Int
}

// MintPosition encodes and submits a position mint and waits for the receipt.
func (c *Client) MintPosition(ctx context.Context, wallet common.Address, params MintParams) (string, error) {
	data, err := positionManagerABI.Pack("mint", params)
	if err != nil {
		return "", fmt.Errorf("packing mint: %w", err)
	}
	hash, err := c.SubmitTransaction(ctx, wallet, c.positionManager, data, nil)
	if err != nil {
		return "", err
	}
	if _, err := c.WaitForReceipt(ctx, hash); err != nil {
		return hash, err
	}
	return hash, nil
}

// WithdrawPosition removes all liquidity from a position and collects both
// tokens plus accrued fees back into the wallet. Two sequential transactions;
// each is confirmed before the next is built.
func (c *Client) WithdrawPosition(ctx context.Context, wallet common.Address, tokenID *big.Int) ([]string, error) {
	hashes := make([]string, 0, 2)

	liquidity, err := c.positionLiquidity(ctx, tokenID)
	if err != nil {
		return hashes, err
	}

	if liquidity != nil && liquidity.Sign() > 0 {
		decreaseParams := struct {
			TokenId    *big.Int
			Liquidity  *big.Int
			Amount0Min *big.Int
			Amount1Min *big.Int
			Deadline   *big.Int
		}{
			TokenId:    tokenID,
			Liquidity:  liquidity,
			Amount0Min: big.NewInt(0),
			Amount1Min: big.NewInt(0),
			Deadline:   big.NewInt(time.Now().Unix() + 1200),
		}
		data, err := positionManagerABI.Pack("decreaseLiquidity", decreaseParams)
		if err != nil {
			return hashes, fmt.Errorf("packing decreaseLiquidity: %w", err)
		}
		hash, err := c.SubmitTransaction(ctx, wallet, c.positionManager, data, nil)
		if err != nil {
			return hashes, err
		}
		hashes = append(hashes, hash)
		if _, err := c.WaitForReceipt(ctx, hash); err != nil {
			return hashes, err
		}
	}

	collectParams := struct {
		TokenId    *big.Int
		Recipient  common.Address
		Amount0Max *big.Int
		Amount1Max *big.Int
	}{
		TokenId:    tokenID,
		Recipient:  wallet,
		Amount0Max: maxUint128,
		Amount1Max: maxUint128,
	}
	data, err := positionManagerABI.Pack("collect", collectParams)
	if err != nil {
		return hashes, fmt.Errorf("packing collect: %w", err)
	}
	hash, err := c.SubmitTransaction(ctx, wallet, c.positionManager, data, nil)
	if err != nil {
		return hashes, err
	}
	hashes = append(hashes, hash)
	if _, err := c.WaitForReceipt(ctx, hash); err != nil {
		return hashes, err
	}

	return hashes, nil
}

// positionLiquidity reads the position's current liquidity.
func (c *Client) positionLiquidity(ctx context.Context, tokenID *big.Int) (*big.Int, error) {
	data, err := positionManagerABI.Pack("positions", tokenID)
	if err != nil {
		return nil, fmt.Errorf("packing positions: %w", err)
	}
	out, err := c.call(ctx, c.positionManager, data)
	if err != nil {
		return nil, err
	}
	values, err := positionManagerABI.Unpack("positions", out)
	if err != nil || len(values) < 8 {
		return nil, fmt.Errorf("%w: positions: %v", ErrUnexpectedOutput, err)
	}
	return values[7].(*big.Int), nil
}

// SubmitAndConfirm broadcasts a prepared call and blocks until it is mined.
func (c *Client) SubmitAndConfirm(ctx context.Context, wallet, to common.Address, data []byte, value *big.Int) (string, error) {
	hash, err := c.SubmitTransaction(ctx, wallet, to, data, value)
	if err != nil {
		return "", err
	}
	if _, err := c.WaitForReceipt(ctx, hash); err != nil {
		return hash, err
	}
	return hash, nil
}

// WalletPositions enumerates the wallet's position manager NFTs and computes
// the token amounts each currently represents. USD values are left zero for
// the caller to fill from the price oracle.
func (c *Client) WalletPositions(ctx context.Context, wallet common.Address, pool types.PoolState, token0Decimals, token1Decimals int) ([]types.Position, error) {
	count, err := c.callBigInt(ctx, c.positionManager, positionManagerABI, "balanceOf", wallet)
	if err != nil {
		return nil, err
	}

	positions := make([]types.Position, 0, count.Int64())
	for i := int64(0); i < count.Int64(); i++ {
		tokenID, err := c.callBigInt(ctx, c.positionManager, positionManagerABI, "tokenOfOwnerByIndex", wallet, big.NewInt(i))
		if err != nil {
			return nil, err
		}

		data, err := positionManagerABI.Pack("positions", tokenID)
		if err != nil {
			return nil, fmt.Errorf("packing positions: %w", err)
		}
		out, err := c.call(ctx, c.positionManager, data)
		if err != nil {
			return nil, err
		}
		values, err := positionManagerABI.Unpack("positions", out)
		if err != nil || len(values) < 12 {
			return nil, fmt.Errorf("%w: positions: %v", ErrUnexpectedOutput, err)
		}

		token0 := values[2].(common.Address)
		token1 := values[3].(common.Address)
		if token0 != pool.Token0 || token1 != pool.Token1 {
			continue
		}

		tickLower := int32(values[5].(*big.Int).Int64())
		tickUpper := int32(values[6].(*big.Int).Int64())
		liquidity := values[7].(*big.Int)
		if liquidity.Sign() == 0 {
			continue
		}

		amount0, amount1 := positionAmounts(liquidity, pool.SqrtPriceX96, tickLower, tickUpper)
		positions = append(positions, types.Position{
			TokenID:      tokenID,
			PoolAddress:  pool.Address,
			TickLower:    tickLower,
			TickUpper:    tickUpper,
			Token0Amount: amount0 / pow10f(token0Decimals),
			Token1Amount: amount1 / pow10f(token1Decimals),
		})
	}

	return positions, nil
}

// positionAmounts derives raw token amounts for a position from its
// liquidity, the current sqrt price, and the range bounds. Float precision is
// sufficient here: these values only feed evaluation, never transactions.
func positionAmounts(liquidity, sqrtPriceX96 *big.Int, tickLower, tickUpper int32) (float64, float64) {
	l, _ := new(big.Float).SetInt(liquidity).Float64()
	sqrtP, _ := new(big.Float).Quo(
		new(big.Float).SetInt(sqrtPriceX96),
		new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96)),
	).Float64()

	sqrtPl := math.Pow(1.0001, float64(tickLower)/2)
	sqrtPu := math.Pow(1.0001, float64(tickUpper)/2)

	var amount0, amount1 float64
	switch {
	case sqrtP <= sqrtPl:
		amount0 = l * (1/sqrtPl - 1/sqrtPu)
	case sqrtP >= sqrtPu:
		amount1 = l * (sqrtPu - sqrtPl)
	default:
		amount0 = l * (1/sqrtP - 1/sqrtPu)
		amount1 = l * (sqrtP - sqrtPl)
	}
	return amount0, amount1
}

func pow10f(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}

// SubmitTransaction fills gas and nonce, signs via the custody collaborator,
// and broadcasts. Returns the transaction hash.
func (c *Client) SubmitTransaction(ctx context.Context, wallet, to common.Address, data []byte, value *big.Int) (string, error) {
	if value == nil {
		value = big.NewInt(0)
	}

	nonce, err := c.ethClient.PendingNonceAt(ctx, wallet)
	if err != nil {
		return "", fmt.Errorf("%w: fetching nonce: %w", types.ErrExternalServiceFailure, err)
	}
	gasPrice, err := c.ethClient.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: fetching gas price: %w", types.ErrExternalServiceFailure, err)
	}
	gasLimit, err := c.ethClient.EstimateGas(ctx, ethereum.CallMsg{
		From:  wallet,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return "", fmt.Errorf("%w: estimating gas: %w", types.ErrExternalServiceFailure, err)
	}

	tx := ethtypes.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signedTx, err := c.signer.SignTransaction(ctx, wallet, tx)
	if err != nil {
		return "", fmt.Errorf("%w: signing transaction: %w", types.ErrExternalServiceFailure, err)
	}

	if err := c.ethClient.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("%w: broadcasting transaction: %w", types.ErrOnChainFailure, err)
	}

	hash := signedTx.Hash().Hex()
	c.logger.Debug().
		Str("from", wallet.Hex()).
		Str("to", to.Hex()).
		Str("txHash", hash).
		Msg("Transaction broadcast")
	return hash, nil
}

// WaitForReceipt polls until the transaction is mined or the context expires.
// A mined-but-reverted transaction is an on-chain failure.
func (c *Client) WaitForReceipt(ctx context.Context, txHash string) (*ethtypes.Receipt, error) {
	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.ethClient.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != ethtypes.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("%w: transaction %s reverted", types.ErrOnChainFailure, txHash)
			}
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: querying receipt for %s: %w", types.ErrExternalServiceFailure, txHash, err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: waiting for %s: %w", types.ErrOnChainFailure, txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}
