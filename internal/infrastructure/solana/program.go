package solana

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/bitlift/bitlift/internal/core/domain"
	"github.com/bitlift/bitlift/internal/core/ports"
	"github.com/bitlift/bitlift/pkg/sigauth"
	"github.com/bitlift/bitlift/pkg/spv"
	"github.com/btcsuite/btcd/wire"
	"github.com/mr-tron/base58"
)

// Instruction tags of the escrow program.
const (
	ixInitialize uint8 = iota
	ixClaim
	ixClaimWithProof
	ixRefund
	ixSubmitMainHeaders
	ixSubmitNewForkHeaders
	ixSubmitForkHeaders
)

// Account data layouts.
const (
	swapAccountLen   = 1   // status u8
	relayAccountLen  = 40  // tip height u32 | chain work 32 BE | last fork id i32
	headerAccountLen = 128 // hash 32 | prev 32 | merkle root 32 | chain work 32 BE
)

// InstructionSender submits a packed program instruction to the chain.
// Recent blockhash and signing mechanics live behind this seam; a non-zero
// priorityFee (micro-lamports per compute unit) is attached as a compute
// budget instruction.
type InstructionSender interface {
	Send(ctx context.Context, accounts []string, data []byte, priorityFee uint64) (signature string, err error)
}

type Program struct {
	client     *RPCClient
	sender     InstructionSender
	programID  [32]byte
	address    string
	relayAddr  string
	wsEndpoint string
}

func NewProgram(client *RPCClient, sender InstructionSender, programID, wsEndpoint string) (*Program, error) {
	id, err := DecodeAddress(programID)
	if err != nil {
		return nil, err
	}
	relay, _, err := FindProgramAddress([][]byte{[]byte("relay")}, id)
	if err != nil {
		return nil, err
	}
	return &Program{
		client:     client,
		sender:     sender,
		programID:  id,
		address:    programID,
		relayAddr:  base58.Encode(relay[:]),
		wsEndpoint: wsEndpoint,
	}, nil
}

var _ ports.ChainContract = (*Program)(nil)
var _ ports.SwapEventSource = (*Program)(nil)

// Address returns the program id in base58.
func (p *Program) Address() string {
	return p.address
}

func (p *Program) swapAddress(paymentHash [32]byte) (string, error) {
	addr, _, err := FindProgramAddress([][]byte{[]byte("swap"), paymentHash[:]}, p.programID)
	if err != nil {
		return "", err
	}
	return base58.Encode(addr[:]), nil
}

func (p *Program) headerAddress(height uint32, fork domain.ForkID) (string, error) {
	var seed [8]byte
	binary.LittleEndian.PutUint32(seed[:4], height)
	binary.LittleEndian.PutUint32(seed[4:], uint32(fork))
	addr, _, err := FindProgramAddress([][]byte{[]byte("header"), seed[:]}, p.programID)
	if err != nil {
		return "", err
	}
	return base58.Encode(addr[:]), nil
}

func (p *Program) sendSwapIx(ctx context.Context, paymentHash [32]byte, data []byte) (string, error) {
	swapAddr, err := p.swapAddress(paymentHash)
	if err != nil {
		return "", err
	}
	return p.sender.Send(ctx, []string{p.address, swapAddr}, data, 0)
}

func (p *Program) Init(ctx context.Context, swap *domain.Swap, auth *sigauth.Authorization) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte(ixInitialize)
	buf.Write(swap.PaymentHash[:])
	writeUint64(&buf, swap.Amount)
	writeUint64(&buf, uint64(swap.ExpiresAt))
	writeUint64(&buf, swap.Sequence)
	writeUint64(&buf, auth.Timeout)
	writeBytes(&buf, auth.Signature)
	return p.sendSwapIx(ctx, swap.PaymentHash, buf.Bytes())
}

func (p *Program) Claim(ctx context.Context, swap *domain.Swap, secret []byte) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte(ixClaim)
	buf.Write(swap.PaymentHash[:])
	var secret32 [32]byte
	copy(secret32[:], secret)
	buf.Write(secret32[:])
	return p.sendSwapIx(ctx, swap.PaymentHash, buf.Bytes())
}

func (p *Program) ClaimWithProof(ctx context.Context, swap *domain.Swap, proof *spv.Proof) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte(ixClaimWithProof)
	buf.Write(swap.PaymentHash[:])
	buf.Write(proof.TxID[:])
	writeUint32(&buf, proof.Position)
	writeUint32(&buf, proof.BlockHeight)
	writeUint16(&buf, uint16(len(proof.Siblings)))
	for i := range proof.Siblings {
		buf.Write(proof.Siblings[i][:])
	}

	swapAddr, err := p.swapAddress(swap.PaymentHash)
	if err != nil {
		return "", err
	}
	headerAddr, err := p.headerAddress(proof.BlockHeight, domain.MainChain)
	if err != nil {
		return "", err
	}
	return p.sender.Send(ctx, []string{p.address, swapAddr, headerAddr}, buf.Bytes(), 0)
}

func (p *Program) Refund(ctx context.Context, swap *domain.Swap, auth *sigauth.Authorization) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte(ixRefund)
	buf.Write(swap.PaymentHash[:])
	if auth != nil {
		writeBytes(&buf, auth.Signature)
	} else {
		writeUint16(&buf, 0)
	}
	return p.sendSwapIx(ctx, swap.PaymentHash, buf.Bytes())
}

func (p *Program) GetCommitStatus(ctx context.Context, paymentHash [32]byte) (ports.CommitStatus, error) {
	swapAddr, err := p.swapAddress(paymentHash)
	if err != nil {
		return ports.CommitNotCommitted, err
	}
	data, err := p.client.GetAccountData(ctx, swapAddr)
	if err != nil {
		return ports.CommitNotCommitted, err
	}
	if data == nil {
		return ports.CommitNotCommitted, nil
	}
	if len(data) < swapAccountLen {
		return ports.CommitNotCommitted, fmt.Errorf("swap account %s: short data (%d bytes)", swapAddr, len(data))
	}
	return ports.CommitStatus(data[0]), nil
}

func (p *Program) GetTipData(ctx context.Context) (ports.TipData, error) {
	data, err := p.client.GetAccountData(ctx, p.relayAddr)
	if err != nil {
		return ports.TipData{}, err
	}
	if len(data) < relayAccountLen {
		return ports.TipData{}, fmt.Errorf("relay account %s: short data (%d bytes)", p.relayAddr, len(data))
	}
	return ports.TipData{
		Height:    binary.LittleEndian.Uint32(data[:4]),
		ChainWork: new(big.Int).SetBytes(data[4:36]),
	}, nil
}

func (p *Program) lastForkID(ctx context.Context) (domain.ForkID, error) {
	data, err := p.client.GetAccountData(ctx, p.relayAddr)
	if err != nil {
		return domain.MainChain, err
	}
	if len(data) < relayAccountLen {
		return domain.MainChain, fmt.Errorf("relay account %s: short data (%d bytes)", p.relayAddr, len(data))
	}
	return domain.ForkID(int32(binary.LittleEndian.Uint32(data[36:40]))), nil
}

func (p *Program) GetLatestKnownHeader(ctx context.Context) (*domain.StoredHeader, error) {
	tip, err := p.GetTipData(ctx)
	if err != nil {
		return nil, err
	}
	return p.GetStoredHeader(ctx, tip.Height, domain.MainChain)
}

func (p *Program) GetStoredHeader(ctx context.Context, height uint32, fork domain.ForkID) (*domain.StoredHeader, error) {
	addr, err := p.headerAddress(height, fork)
	if err != nil {
		return nil, err
	}
	data, err := p.client.GetAccountData(ctx, addr)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	if len(data) < headerAccountLen {
		return nil, fmt.Errorf("header account %s: short data (%d bytes)", addr, len(data))
	}

	header := &domain.StoredHeader{Height: height, Fork: fork}
	copy(header.Hash[:], data[:32])
	copy(header.PrevBlock[:], data[32:64])
	copy(header.MerkleRoot[:], data[64:96])
	header.ChainWork = new(big.Int).SetBytes(data[96:128])
	return header, nil
}

func (p *Program) SubmitHeaders(
	ctx context.Context, headers []wire.BlockHeader, mode ports.SubmitMode, fork domain.ForkID, feeRate uint64,
) (ports.SubmitResult, error) {
	var buf bytes.Buffer
	switch mode {
	case ports.SubmitMain:
		buf.WriteByte(ixSubmitMainHeaders)
	case ports.SubmitNewFork:
		buf.WriteByte(ixSubmitNewForkHeaders)
	case ports.SubmitForkExtend:
		buf.WriteByte(ixSubmitForkHeaders)
		writeUint32(&buf, uint32(fork))
	default:
		return ports.SubmitResult{}, fmt.Errorf("unknown submit mode %v", mode)
	}
	writeUint16(&buf, uint16(len(headers)))
	for i := range headers {
		if err := headers[i].Serialize(&buf); err != nil {
			return ports.SubmitResult{}, fmt.Errorf("failed to serialize header: %w", err)
		}
	}

	sig, err := p.sender.Send(ctx, []string{p.address, p.relayAddr}, buf.Bytes(), feeRate)
	if err != nil {
		return ports.SubmitResult{}, err
	}

	result := ports.SubmitResult{TxID: sig, Fork: fork}
	if mode == ports.SubmitNewFork {
		if result.Fork, err = p.lastForkID(ctx); err != nil {
			return ports.SubmitResult{}, err
		}
	}
	newTip, err := p.GetLatestKnownHeader(ctx)
	if err != nil {
		return ports.SubmitResult{}, err
	}
	if newTip != nil {
		result.NewTip = *newTip
	}
	return result, nil
}

func (p *Program) MainFeeRate(ctx context.Context) (uint64, error) {
	fee, err := p.client.GetRecentPrioritizationFee(ctx, []string{p.address})
	if err != nil {
		return 0, err
	}
	if fee == 0 {
		fee = 1
	}
	return fee, nil
}

func (p *Program) ForkFeeRate(ctx context.Context) (uint64, error) {
	// Fork submissions race the reorg window, so pay a premium.
	fee, err := p.MainFeeRate(ctx)
	if err != nil {
		return 0, err
	}
	return fee + fee/4, nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUint16(buf, uint16(len(b)))
	buf.Write(b)
}
