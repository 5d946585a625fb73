// Package evm adapts the swap escrow contract and its embedded BTC relay on
// EVM-compatible chains. Reads (status, tip data, stored headers, logs) talk
// to the node directly; writes are packed here but submitted through an
// injected TxSender, keeping gas and nonce mechanics outside the core.
package evm

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/bitlift/bitlift/internal/core/domain"
	"github.com/bitlift/bitlift/internal/core/ports"
	"github.com/bitlift/bitlift/pkg/sigauth"
	"github.com/bitlift/bitlift/pkg/spv"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const escrowABI = `[
	{"type":"event","name":"Committed","inputs":[{"name":"paymentHash","type":"bytes32","indexed":true}]},
	{"type":"event","name":"Claimed","inputs":[{"name":"paymentHash","type":"bytes32","indexed":true},{"name":"secret","type":"bytes32","indexed":false}]},
	{"type":"event","name":"Refunded","inputs":[{"name":"paymentHash","type":"bytes32","indexed":true}]},
	{"type":"function","name":"getCommitStatus","stateMutability":"view","inputs":[{"name":"paymentHash","type":"bytes32"}],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"getTipData","stateMutability":"view","inputs":[],"outputs":[{"name":"height","type":"uint32"},{"name":"chainWork","type":"uint256"}]},
	{"type":"function","name":"getStoredHeader","stateMutability":"view","inputs":[{"name":"height","type":"uint32"},{"name":"forkId","type":"int32"}],"outputs":[{"name":"blockHash","type":"bytes32"},{"name":"prevBlock","type":"bytes32"},{"name":"merkleRoot","type":"bytes32"},{"name":"chainWork","type":"uint256"},{"name":"height","type":"uint32"}]},
	{"type":"function","name":"initialize","stateMutability":"nonpayable","inputs":[{"name":"paymentHash","type":"bytes32"},{"name":"amount","type":"uint64"},{"name":"expiry","type":"uint64"},{"name":"sequence","type":"uint64"},{"name":"timeout","type":"uint64"},{"name":"signature","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"claim","stateMutability":"nonpayable","inputs":[{"name":"paymentHash","type":"bytes32"},{"name":"secret","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"claimWithProof","stateMutability":"nonpayable","inputs":[{"name":"paymentHash","type":"bytes32"},{"name":"txId","type":"bytes32"},{"name":"position","type":"uint32"},{"name":"height","type":"uint32"},{"name":"siblings","type":"bytes32[]"}],"outputs":[]},
	{"type":"function","name":"refund","stateMutability":"nonpayable","inputs":[{"name":"paymentHash","type":"bytes32"},{"name":"signature","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"submitMainHeaders","stateMutability":"nonpayable","inputs":[{"name":"headers","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"submitNewForkHeaders","stateMutability":"nonpayable","inputs":[{"name":"headers","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"submitForkHeaders","stateMutability":"nonpayable","inputs":[{"name":"headers","type":"bytes"},{"name":"forkId","type":"int32"}],"outputs":[]}
]`

// ethClient is the node surface the adapter needs; *ethclient.Client
// satisfies it.
type ethClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// TxSender submits prepared calldata to the chain. Nonce and signing
// mechanics live behind this seam; a nil gasPrice lets the sender pick one.
type TxSender interface {
	Send(ctx context.Context, to common.Address, data []byte, gasPrice *big.Int) (txid string, err error)
}

type Contract struct {
	client  ethClient
	sender  TxSender
	address common.Address
	abi     abi.ABI

	committedTopic common.Hash
	claimedTopic   common.Hash
	refundedTopic  common.Hash
}

func NewContract(client ethClient, sender TxSender, address common.Address) (*Contract, error) {
	parsed, err := abi.JSON(strings.NewReader(escrowABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse escrow abi: %w", err)
	}
	return &Contract{
		client:         client,
		sender:         sender,
		address:        address,
		abi:            parsed,
		committedTopic: parsed.Events["Committed"].ID,
		claimedTopic:   parsed.Events["Claimed"].ID,
		refundedTopic:  parsed.Events["Refunded"].ID,
	}, nil
}

var _ ports.ChainContract = (*Contract)(nil)
var _ ports.SwapEventSource = (*Contract)(nil)

func (c *Contract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	res, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
	if err != nil {
		return nil, domain.Transient("eth call "+method, err)
	}
	out, err := c.abi.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return out, nil
}

func (c *Contract) send(ctx context.Context, gasPrice *big.Int, method string, args ...interface{}) (string, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return "", fmt.Errorf("failed to pack %s: %w", method, err)
	}
	return c.sender.Send(ctx, c.address, data, gasPrice)
}

func (c *Contract) Init(ctx context.Context, swap *domain.Swap, auth *sigauth.Authorization) (string, error) {
	return c.send(ctx, nil, "initialize",
		swap.PaymentHash, swap.Amount, uint64(swap.ExpiresAt), swap.Sequence,
		auth.Timeout, auth.Signature)
}

func (c *Contract) Claim(ctx context.Context, swap *domain.Swap, secret []byte) (string, error) {
	var secret32 [32]byte
	copy(secret32[:], secret)
	return c.send(ctx, nil, "claim", swap.PaymentHash, secret32)
}

func (c *Contract) ClaimWithProof(ctx context.Context, swap *domain.Swap, proof *spv.Proof) (string, error) {
	siblings := make([][32]byte, len(proof.Siblings))
	for i, s := range proof.Siblings {
		siblings[i] = s
	}
	var txid [32]byte
	copy(txid[:], proof.TxID[:])
	return c.send(ctx, nil, "claimWithProof",
		swap.PaymentHash, txid, proof.Position, proof.BlockHeight, siblings)
}

func (c *Contract) Refund(ctx context.Context, swap *domain.Swap, auth *sigauth.Authorization) (string, error) {
	var sig []byte
	if auth != nil {
		sig = auth.Signature
	}
	return c.send(ctx, nil, "refund", swap.PaymentHash, sig)
}

func (c *Contract) GetCommitStatus(ctx context.Context, paymentHash [32]byte) (ports.CommitStatus, error) {
	out, err := c.call(ctx, "getCommitStatus", paymentHash)
	if err != nil {
		return ports.CommitNotCommitted, err
	}
	status, ok := out[0].(uint8)
	if !ok {
		return ports.CommitNotCommitted, fmt.Errorf("unexpected commit status type %T", out[0])
	}
	return ports.CommitStatus(status), nil
}

func (c *Contract) GetTipData(ctx context.Context) (ports.TipData, error) {
	out, err := c.call(ctx, "getTipData")
	if err != nil {
		return ports.TipData{}, err
	}
	height, _ := out[0].(uint32)
	chainWork, _ := out[1].(*big.Int)
	return ports.TipData{Height: height, ChainWork: chainWork}, nil
}

func (c *Contract) GetLatestKnownHeader(ctx context.Context) (*domain.StoredHeader, error) {
	tip, err := c.GetTipData(ctx)
	if err != nil {
		return nil, err
	}
	return c.GetStoredHeader(ctx, tip.Height, domain.MainChain)
}

func (c *Contract) GetStoredHeader(ctx context.Context, height uint32, fork domain.ForkID) (*domain.StoredHeader, error) {
	out, err := c.call(ctx, "getStoredHeader", height, int32(fork))
	if err != nil {
		return nil, err
	}

	header := &domain.StoredHeader{Height: height, Fork: fork}
	blockHash, _ := out[0].([32]byte)
	prevBlock, _ := out[1].([32]byte)
	merkleRoot, _ := out[2].([32]byte)
	copy(header.Hash[:], blockHash[:])
	copy(header.PrevBlock[:], prevBlock[:])
	copy(header.MerkleRoot[:], merkleRoot[:])
	header.ChainWork, _ = out[3].(*big.Int)

	// The contract returns a zero hash for heights it never stored.
	if header.Hash == (domain.StoredHeader{}).Hash && header.MerkleRoot == (domain.StoredHeader{}).MerkleRoot {
		return nil, nil
	}
	return header, nil
}

func (c *Contract) SubmitHeaders(
	ctx context.Context, headers []wire.BlockHeader, mode ports.SubmitMode, fork domain.ForkID, feeRate uint64,
) (ports.SubmitResult, error) {
	var buf bytes.Buffer
	for i := range headers {
		if err := headers[i].Serialize(&buf); err != nil {
			return ports.SubmitResult{}, fmt.Errorf("failed to serialize header: %w", err)
		}
	}

	var gasPrice *big.Int
	if feeRate > 0 {
		gasPrice = new(big.Int).SetUint64(feeRate)
	}

	var (
		txid string
		err  error
	)
	switch mode {
	case ports.SubmitMain:
		txid, err = c.send(ctx, gasPrice, "submitMainHeaders", buf.Bytes())
	case ports.SubmitNewFork:
		txid, err = c.send(ctx, gasPrice, "submitNewForkHeaders", buf.Bytes())
	case ports.SubmitForkExtend:
		txid, err = c.send(ctx, gasPrice, "submitForkHeaders", buf.Bytes(), int32(fork))
	default:
		return ports.SubmitResult{}, fmt.Errorf("unknown submit mode %v", mode)
	}
	if err != nil {
		return ports.SubmitResult{}, err
	}

	newTip, err := c.GetLatestKnownHeader(ctx)
	if err != nil {
		return ports.SubmitResult{}, err
	}
	result := ports.SubmitResult{TxID: txid, Fork: fork}
	if newTip != nil {
		result.NewTip = *newTip
		result.Fork = newTip.Fork
	}
	return result, nil
}

func (c *Contract) MainFeeRate(ctx context.Context) (uint64, error) {
	price, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return 0, domain.Transient("eth gas price", err)
	}
	return price.Uint64(), nil
}

func (c *Contract) ForkFeeRate(ctx context.Context) (uint64, error) {
	// Fork submissions carry chain-work proofs, so pay a premium to land
	// before the reorg window closes.
	price, err := c.MainFeeRate(ctx)
	if err != nil {
		return 0, err
	}
	return price + price/4, nil
}
