package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/halide-works/aperture-drop/internal/adapter"
	"github.com/halide-works/aperture-drop/internal/domain"
	"github.com/halide-works/aperture-drop/internal/ledger"
	"github.com/halide-works/aperture-drop/internal/logger"
)

// poolABI is the deployed claim-pool contract surface the service talks to.
const poolABI = `[
	{"inputs":[{"name":"tokenId","type":"uint256"}],"name":"isTokenAvailable","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"availableTokens","outputs":[{"name":"","type":"uint256[]"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"claimant","type":"address"}],"name":"nonces","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"claimant","type":"address"}],"name":"hasClaimed","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"claimedBitmap","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"depositedBitmap","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"recipient","type":"address"},{"name":"tokenId","type":"uint256"},{"name":"text","type":"string"}],"name":"relayClaim","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"tokenIds","type":"uint256[]"}],"name":"deposit","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"tokenIds","type":"uint256[]"},{"name":"to","type":"address"}],"name":"withdraw","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"to","type":"address"}],"name":"emergencyWithdrawAll","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"newAuthority","type":"address"}],"name":"setAuthority","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"claimant","type":"address"}],"name":"resetClaimStatus","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"claimant","type":"address"},{"name":"value","type":"uint256"}],"name":"resetNonce","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[],"name":"pause","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[],"name":"unpause","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"tokenId","type":"uint256"},{"indexed":true,"name":"author","type":"address"},{"indexed":false,"name":"text","type":"string"}],"name":"ObservationRecorded","type":"event"}
]`

const (
	// defaultPollInterval paces receipt polling in WaitConfirmed.
	defaultPollInterval = 3 * time.Second
	// adminGasMarginPercent pads gas estimates for admin transactions.
	adminGasMarginPercent = 20
)

// Config configures the chain-backed ledger client.
type Config struct {
	// Contract is the deployed claim-pool address.
	Contract common.Address
	// Signer signs every transaction the client sends (the relay authority
	// for the API service, the owner for adminctl).
	Signer *ecdsa.PrivateKey
	// DeployBlock is the block the contract was deployed at; event replay
	// starts there instead of genesis.
	DeployBlock uint64
	// PollInterval overrides the receipt polling cadence.
	PollInterval time.Duration
}

// Client implements the ledger interfaces against a deployed claim-pool
// contract: ABI-packed eth_call reads, event-log replay for the observation
// history, and signed transactions for every mutation.
type Client struct {
	backend      adapter.EthBackend
	contract     common.Address
	signer       *ecdsa.PrivateKey
	from         common.Address
	deployBlock  uint64
	pollInterval time.Duration
	clock        adapter.Clock
	abi          abi.ABI

	chainIDOnce sync.Once
	chainID     *big.Int
	chainIDErr  error
}

// NewClient creates a chain-backed ledger client.
func NewClient(backend adapter.EthBackend, clock adapter.Clock, cfg Config) (*Client, error) {
	if cfg.Signer == nil {
		return nil, fmt.Errorf("chain client requires a signing key")
	}
	parsed, err := abi.JSON(strings.NewReader(poolABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool ABI: %w", err)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Client{
		backend:      backend,
		contract:     cfg.Contract,
		signer:       cfg.Signer,
		from:         crypto.PubkeyToAddress(cfg.Signer.PublicKey),
		deployBlock:  cfg.DeployBlock,
		pollInterval: cfg.PollInterval,
		clock:        clock,
		abi:          parsed,
	}, nil
}

// From returns the address the client signs with.
func (c *Client) From() common.Address {
	return c.from
}

// Close closes the backend connection.
func (c *Client) Close() {
	c.backend.Close()
}

// call executes a read-only contract method and unpacks the outputs.
func (c *Client) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	result, err := c.backend.CallContract(ctx, ethereum.CallMsg{
		To:   &c.contract,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, mapContractError(err))
	}

	out, err := c.abi.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return out, nil
}

func (c *Client) IsTokenAvailable(ctx context.Context, id domain.TokenID) (bool, error) {
	out, err := c.call(ctx, "isTokenAvailable", big.NewInt(int64(id)))
	if err != nil {
		return false, err
	}
	available, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected isTokenAvailable result type %T", out[0])
	}
	return available, nil
}

func (c *Client) AvailableTokens(ctx context.Context) ([]domain.TokenID, error) {
	out, err := c.call(ctx, "availableTokens")
	if err != nil {
		return nil, err
	}
	raw, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected availableTokens result type %T", out[0])
	}

	ids := make([]domain.TokenID, 0, len(raw))
	for _, v := range raw {
		ids = append(ids, domain.TokenID(v.Uint64()))
	}
	return ids, nil
}

func (c *Client) Nonce(ctx context.Context, claimant common.Address) (uint64, error) {
	out, err := c.call(ctx, "nonces", claimant)
	if err != nil {
		return 0, err
	}
	nonce, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected nonces result type %T", out[0])
	}
	return nonce.Uint64(), nil
}

func (c *Client) HasClaimed(ctx context.Context, claimant common.Address) (bool, error) {
	out, err := c.call(ctx, "hasClaimed", claimant)
	if err != nil {
		return false, err
	}
	claimed, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected hasClaimed result type %T", out[0])
	}
	return claimed, nil
}

func (c *Client) ClaimedBitmap(ctx context.Context) (*uint256.Int, error) {
	return c.bitmap(ctx, "claimedBitmap")
}

func (c *Client) DepositedBitmap(ctx context.Context) (*uint256.Int, error) {
	return c.bitmap(ctx, "depositedBitmap")
}

func (c *Client) bitmap(ctx context.Context, method string) (*uint256.Int, error) {
	out, err := c.call(ctx, method)
	if err != nil {
		return nil, err
	}
	raw, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s result type %T", method, out[0])
	}
	bm, overflow := uint256.FromBig(raw)
	if overflow {
		return nil, fmt.Errorf("%s value overflows 256 bits", method)
	}
	return bm, nil
}

// ObservationEvents replays the ObservationRecorded log history from the
// deploy block. Timestamps come from block headers, fetched once per block.
func (c *Client) ObservationEvents(ctx context.Context) ([]domain.ObservationEvent, error) {
	eventSig := c.abi.Events["ObservationRecorded"].ID
	logs, err := c.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(c.deployBlock),
		Addresses: []common.Address{c.contract},
		Topics:    [][]common.Hash{{eventSig}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter observation logs: %w", err)
	}

	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	headerTimes := make(map[uint64]time.Time)
	events := make([]domain.ObservationEvent, 0, len(logs))
	for _, vLog := range logs {
		ev, err := c.parseObservationLog(vLog)
		if err != nil {
			logger.Warn("Skipping malformed observation log",
				zap.String("tx_hash", vLog.TxHash.Hex()),
				zap.Error(err),
			)
			continue
		}

		ts, ok := headerTimes[vLog.BlockNumber]
		if !ok {
			header, err := c.backend.HeaderByNumber(ctx, new(big.Int).SetUint64(vLog.BlockNumber))
			if err != nil {
				return nil, fmt.Errorf("failed to get header for block %d: %w", vLog.BlockNumber, err)
			}
			ts = time.Unix(int64(header.Time), 0).UTC() //nolint:gosec,G115 // header.Time is a uint64 from geth which is safe to cast
			headerTimes[vLog.BlockNumber] = ts
		}

		ev.Seq = uint64(len(events)) + 1
		ev.Timestamp = ts
		events = append(events, *ev)
	}
	return events, nil
}

func (c *Client) parseObservationLog(vLog types.Log) (*domain.ObservationEvent, error) {
	// ObservationRecorded(uint256 indexed tokenId, address indexed author, string text)
	if len(vLog.Topics) != 3 {
		return nil, fmt.Errorf("expected 3 topics, got %d", len(vLog.Topics))
	}

	unpacked, err := c.abi.Unpack("ObservationRecorded", vLog.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack event data: %w", err)
	}
	text, ok := unpacked[0].(string)
	if !ok {
		return nil, fmt.Errorf("unexpected text type %T", unpacked[0])
	}

	return &domain.ObservationEvent{
		TokenID: domain.TokenID(new(big.Int).SetBytes(vLog.Topics[1].Bytes()).Uint64()),
		Author:  common.BytesToAddress(vLog.Topics[2].Bytes()),
		Text:    text,
	}, nil
}

func (c *Client) EstimateClaimGas(ctx context.Context, recipient common.Address, tokenID domain.TokenID, text string) (uint64, error) {
	data, err := c.abi.Pack("relayClaim", recipient, big.NewInt(int64(tokenID)), text)
	if err != nil {
		return 0, fmt.Errorf("failed to pack relayClaim: %w", err)
	}

	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From: c.from,
		To:   &c.contract,
		Data: data,
	})
	if err != nil {
		return 0, fmt.Errorf("gas estimation failed: %w", mapContractError(err))
	}
	return gas, nil
}

func (c *Client) SubmitRelayClaim(ctx context.Context, recipient common.Address, tokenID domain.TokenID, text string, gasLimit uint64) (*ledger.Submission, error) {
	data, err := c.abi.Pack("relayClaim", recipient, big.NewInt(int64(tokenID)), text)
	if err != nil {
		return nil, fmt.Errorf("failed to pack relayClaim: %w", err)
	}

	txHash, err := c.sendTx(ctx, data, gasLimit)
	if err != nil {
		return nil, err
	}
	return &ledger.Submission{TxHash: txHash}, nil
}

// WaitConfirmed polls for the transaction receipt until it lands or the
// context expires.
func (c *Client) WaitConfirmed(ctx context.Context, txHash common.Hash) error {
	for {
		receipt, err := c.backend.TransactionReceipt(ctx, txHash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("transaction %s reverted in block %d", txHash, receipt.BlockNumber.Uint64())
			}
			return nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return fmt.Errorf("failed to get receipt for %s: %w", txHash, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("confirmation of %s: %w", txHash, ctx.Err())
		case <-c.clock.After(c.pollInterval):
		}
	}
}

func (c *Client) Deposit(ctx context.Context, ids []domain.TokenID) error {
	return c.sendAdminTx(ctx, "deposit", tokenIDsToBig(ids))
}

func (c *Client) Withdraw(ctx context.Context, ids []domain.TokenID, to common.Address) error {
	return c.sendAdminTx(ctx, "withdraw", tokenIDsToBig(ids), to)
}

func (c *Client) EmergencyWithdrawAll(ctx context.Context, to common.Address) error {
	return c.sendAdminTx(ctx, "emergencyWithdrawAll", to)
}

func (c *Client) SetAuthority(ctx context.Context, newAuthority common.Address) error {
	return c.sendAdminTx(ctx, "setAuthority", newAuthority)
}

func (c *Client) ResetClaimStatus(ctx context.Context, claimant common.Address) error {
	return c.sendAdminTx(ctx, "resetClaimStatus", claimant)
}

func (c *Client) ResetNonce(ctx context.Context, claimant common.Address, value uint64) error {
	return c.sendAdminTx(ctx, "resetNonce", claimant, new(big.Int).SetUint64(value))
}

func (c *Client) Pause(ctx context.Context) error {
	return c.sendAdminTx(ctx, "pause")
}

func (c *Client) Unpause(ctx context.Context) error {
	return c.sendAdminTx(ctx, "unpause")
}

// sendAdminTx packs, estimates, sends and waits for one admin mutation.
func (c *Client) sendAdminTx(ctx context.Context, method string, args ...interface{}) error {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s: %w", method, err)
	}

	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From: c.from,
		To:   &c.contract,
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("%s gas estimation failed: %w", method, mapContractError(err))
	}
	gasLimit := gas + gas*adminGasMarginPercent/100

	txHash, err := c.sendTx(ctx, data, gasLimit)
	if err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}

	logger.Info("Admin transaction submitted",
		zap.String("method", method),
		zap.String("tx_hash", txHash.Hex()),
	)
	return c.WaitConfirmed(ctx, txHash)
}

// sendTx signs and broadcasts one transaction to the pool contract.
func (c *Client) sendTx(ctx context.Context, data []byte, gasLimit uint64) (common.Hash, error) {
	chainID, err := c.ensureChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get account nonce: %w", err)
	}

	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.contract,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), c.signer)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", mapContractError(err))
	}
	return signed.Hash(), nil
}

func (c *Client) ensureChainID(ctx context.Context) (*big.Int, error) {
	c.chainIDOnce.Do(func() {
		c.chainID, c.chainIDErr = c.backend.ChainID(ctx)
	})
	if c.chainIDErr != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", c.chainIDErr)
	}
	return c.chainID, nil
}

func tokenIDsToBig(ids []domain.TokenID) []*big.Int {
	out := make([]*big.Int, 0, len(ids))
	for _, id := range ids {
		out = append(out, big.NewInt(int64(id)))
	}
	return out
}

// mapContractError translates node and revert errors into domain sentinels
// so retry classification works the same for both ledger backends. Revert
// reasons only arrive as strings, so this is substring matching.
func mapContractError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return fmt.Errorf("%w: %v", domain.ErrInsufficientFunds, err)
	case strings.Contains(msg, "already claimed"):
		return fmt.Errorf("%w: %v", domain.ErrAlreadyClaimed, err)
	case strings.Contains(msg, "token not available"), strings.Contains(msg, "not deposited"):
		return fmt.Errorf("%w: %v", domain.ErrTokenUnavailable, err)
	case strings.Contains(msg, "paused"):
		return fmt.Errorf("%w: %v", domain.ErrPaused, err)
	case strings.Contains(msg, "not authority"):
		return fmt.Errorf("%w: %v", domain.ErrNotAuthority, err)
	}
	return err
}
