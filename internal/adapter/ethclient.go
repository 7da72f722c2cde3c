package adapter

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// EthBackend defines the Ethereum node operations the service needs,
// narrowed from ethclient.Client to enable mocking
//
//go:generate mockgen -source=ethclient.go -destination=../mocks/ethclient.go -package=mocks -mock_names=EthBackend=MockEthBackend
type EthBackend interface {
	// CallContract executes a read-only contract call
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)

	// FilterLogs retrieves logs that match the filter query
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)

	// HeaderByNumber returns a header by number
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)

	// SuggestGasPrice returns the currently suggested gas price
	SuggestGasPrice(ctx context.Context) (*big.Int, error)

	// EstimateGas estimates the gas needed to execute the call
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)

	// PendingNonceAt returns the next account nonce including pending txs
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)

	// SendTransaction broadcasts a signed transaction
	SendTransaction(ctx context.Context, tx *types.Transaction) error

	// TransactionReceipt returns the receipt of a mined transaction
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	// ChainID returns the chain id of the connected network
	ChainID(ctx context.Context) (*big.Int, error)

	// Close closes the connection
	Close()
}

// EthBackendDialer defines an interface for dialing Ethereum backends
type EthBackendDialer interface {
	Dial(ctx context.Context, rawurl string) (EthBackend, error)
}

// RealEthBackendDialer implements EthBackendDialer using the standard ethclient package
type RealEthBackendDialer struct{}

// NewEthBackendDialer creates a new real Ethereum backend dialer
func NewEthBackendDialer() EthBackendDialer {
	return &RealEthBackendDialer{}
}

func (d *RealEthBackendDialer) Dial(ctx context.Context, rawurl string) (EthBackend, error) {
	return ethclient.DialContext(ctx, rawurl)
}
