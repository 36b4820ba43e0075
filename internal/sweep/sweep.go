package sweep

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/AH96HSQ/Zurtex-Global/internal/chaindata"
	"github.com/AH96HSQ/Zurtex-Global/internal/models"
	"github.com/AH96HSQ/Zurtex-Global/internal/wallet"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/rs/zerolog"
)

// ErrInsufficientFunds means the discovered UTXOs cannot cover the fee; no
// partial transaction is built.
var ErrInsufficientFunds = errors.New("total input value does not cover the fee")

// Byte-size contributions for a p2wpkh consolidation: per input, the single
// output, and fixed overhead.
const (
	inputVBytes    = 68
	outputVBytes   = 31
	overheadVBytes = 10
)

// ChainClient is the chain-data surface the sweep needs.
type ChainClient interface {
	Address(ctx context.Context, address string, unspentOnly bool) (*chaindata.AddressInfo, error)
	Transaction(ctx context.Context, hash string, includeHex bool) (*chaindata.Transaction, error)
	Broadcast(ctx context.Context, rawHex string) (string, error)
}

// Store is the order bookkeeping surface the sweep needs.
type Store interface {
	ListSweepable(ctx context.Context) ([]*models.Order, error)
	MarkSwept(ctx context.Context, orderIDs []string, txHash *string, at time.Time) (int64, error)
}

// Engine consolidates funds from completed orders' deposit addresses into the
// merchant address. It is an operator tool: single-threaded, interactive in
// execute mode, and chatty on its console writer.
type Engine struct {
	Store           Store
	Chain           ChainClient
	Deriver         *wallet.Deriver
	MerchantAddress string
	FeeRatePerByte  int64
	RequestGap      time.Duration
	Confirm         func(prompt string) (bool, error)
	Out             io.Writer
	Logger          zerolog.Logger
}

// Plan describes the consolidation transaction that was built (and, in
// execute mode, broadcast).
type Plan struct {
	Inputs      int
	TotalInput  int64
	Fee         int64
	Output      int64
	RawTx       string
	OrderIDs    []string
	Broadcast   bool
	SweptTxHash string
}

type fundedAddress struct {
	order *models.Order
	refs  []chaindata.TxRef
}

type input struct {
	order    *models.Order
	outpoint wire.OutPoint
	value    int64
	pkScript []byte
}

// Run performs the sweep. With execute=false it stops after building and
// printing the signed transaction; nothing is broadcast or marked swept
// except zero-balance reconciliation, which is safe to repeat.
func (e *Engine) Run(ctx context.Context, execute bool) (*Plan, error) {
	orders, err := e.Store.ListSweepable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sweepable orders: %w", err)
	}
	fmt.Fprintf(e.Out, "found %d completed payment(s) not yet swept\n", len(orders))
	if len(orders) == 0 {
		return nil, nil
	}

	funded, err := e.discoverFunded(ctx, orders)
	if err != nil {
		return nil, err
	}
	if len(funded) == 0 {
		fmt.Fprintln(e.Out, "all addresses already swept")
		return nil, nil
	}

	inputs, totalInput, err := e.collectInputs(ctx, funded)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, errors.New("no spendable utxos found")
	}

	size := int64(len(inputs))*inputVBytes + outputVBytes + overheadVBytes
	fee := size * e.FeeRatePerByte
	net := totalInput - fee
	if net <= 0 {
		return nil, fmt.Errorf("%w: inputs %d litoshi, fee %d litoshi", ErrInsufficientFunds, totalInput, fee)
	}

	tx, err := e.buildAndSign(inputs, net)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}
	rawTx := hex.EncodeToString(buf.Bytes())

	orderIDs := contributingOrders(inputs)
	plan := &Plan{
		Inputs:     len(inputs),
		TotalInput: totalInput,
		Fee:        fee,
		Output:     net,
		RawTx:      rawTx,
		OrderIDs:   orderIDs,
	}

	fmt.Fprintf(e.Out, "\ntransaction: %d input(s), fee %s LTC, sending %s LTC to %s\n",
		plan.Inputs,
		models.LitoshiToLTC(plan.Fee).StringFixed(8),
		models.LitoshiToLTC(plan.Output).StringFixed(8),
		e.MerchantAddress,
	)

	if !execute {
		fmt.Fprintln(e.Out, "\ndry run, transaction NOT broadcast:")
		fmt.Fprintln(e.Out, rawTx)
		return plan, nil
	}

	ok, err := e.Confirm(fmt.Sprintf("broadcast and sweep %s LTC to %s?", models.LitoshiToLTC(net).StringFixed(8), e.MerchantAddress))
	if err != nil {
		return nil, err
	}
	if !ok {
		fmt.Fprintln(e.Out, "cancelled")
		return plan, nil
	}

	hash, err := e.Chain.Broadcast(ctx, rawTx)
	if err != nil {
		return nil, fmt.Errorf("broadcast transaction: %w", err)
	}
	plan.Broadcast = true
	plan.SweptTxHash = hash
	fmt.Fprintf(e.Out, "broadcast ok: %s\n", hash)

	// Bookkeeping after an irreversible broadcast. If this write fails the
	// next run self-heals through the zero-balance check above.
	n, err := e.Store.MarkSwept(ctx, orderIDs, &hash, time.Now().UTC())
	if err != nil {
		e.Logger.Error().Err(err).Str("tx_hash", hash).Msg("broadcast succeeded but marking swept failed, rerun to reconcile")
		return plan, fmt.Errorf("mark orders swept: %w", err)
	}
	fmt.Fprintf(e.Out, "marked %d payment(s) as swept\n", n)
	return plan, nil
}

// discoverFunded checks each order's address balance. Zero-balance addresses
// are marked swept on the spot: either an earlier sweep consumed them or they
// were never funded, and in both cases there is nothing left to spend.
func (e *Engine) discoverFunded(ctx context.Context, orders []*models.Order) ([]fundedAddress, error) {
	var funded []fundedAddress
	for i, order := range orders {
		info, err := e.Chain.Address(ctx, order.PaymentAddress, true)
		if err != nil {
			fmt.Fprintf(e.Out, "error checking %s: %v\n", order.PaymentAddress, err)
			continue
		}

		if info.Balance <= 0 {
			fmt.Fprintf(e.Out, "%s: 0 LTC, marking swept\n", order.PaymentAddress)
			if _, err := e.Store.MarkSwept(ctx, []string{order.OrderID}, nil, time.Now().UTC()); err != nil {
				return nil, fmt.Errorf("reconcile swept order %s: %w", order.OrderID, err)
			}
		} else {
			fmt.Fprintf(e.Out, "%s: %s LTC (%d utxo(s))\n",
				order.PaymentAddress, models.LitoshiToLTC(info.Balance).StringFixed(8), len(info.TxRefs))
			funded = append(funded, fundedAddress{order: order, refs: info.TxRefs})
		}

		if e.RequestGap > 0 && i < len(orders)-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.RequestGap):
			}
		}
	}
	return funded, nil
}

// collectInputs fetches each UTXO's containing transaction for its output
// script and assembles spendable inputs.
func (e *Engine) collectInputs(ctx context.Context, funded []fundedAddress) ([]input, int64, error) {
	var inputs []input
	var total int64
	for _, fa := range funded {
		order := fa.order
		for _, ref := range fa.refs {
			tx, err := e.Chain.Transaction(ctx, ref.TxHash, true)
			if err != nil {
				fmt.Fprintf(e.Out, "failed to fetch utxo tx %s: %v\n", ref.TxHash, err)
				continue
			}
			if ref.TxOutputN < 0 || ref.TxOutputN >= len(tx.Outputs) {
				fmt.Fprintf(e.Out, "utxo %s vout %d out of range\n", ref.TxHash, ref.TxOutputN)
				continue
			}

			pkScript, err := hex.DecodeString(tx.Outputs[ref.TxOutputN].Script)
			if err != nil {
				return nil, 0, fmt.Errorf("decode output script of %s: %w", ref.TxHash, err)
			}
			hash, err := chainhash.NewHashFromStr(ref.TxHash)
			if err != nil {
				return nil, 0, fmt.Errorf("parse tx hash %s: %w", ref.TxHash, err)
			}

			inputs = append(inputs, input{
				order:    order,
				outpoint: *wire.NewOutPoint(hash, uint32(ref.TxOutputN)),
				value:    ref.Value,
				pkScript: pkScript,
			})
			total += ref.Value

			if e.RequestGap > 0 {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(e.RequestGap):
				}
			}
		}
	}
	return inputs, total, nil
}

func (e *Engine) buildAndSign(inputs []input, net int64) (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(2)

	prevOuts := txscript.NewMultiPrevOutFetcher(nil)
	for _, in := range inputs {
		tx.AddTxIn(wire.NewTxIn(&in.outpoint, nil, nil))
		prevOuts.AddPrevOut(in.outpoint, wire.NewTxOut(in.value, in.pkScript))
	}

	merchant, err := btcutil.DecodeAddress(e.MerchantAddress, &wallet.LitecoinParams)
	if err != nil {
		return nil, fmt.Errorf("decode merchant address: %w", err)
	}
	outScript, err := txscript.PayToAddrScript(merchant)
	if err != nil {
		return nil, fmt.Errorf("build output script: %w", err)
	}
	tx.AddTxOut(wire.NewTxOut(net, outScript))

	sigHashes := txscript.NewTxSigHashes(tx, prevOuts)
	for i, in := range inputs {
		kp, err := e.Deriver.Derive(uint32(in.order.AddressIndex))
		if err != nil {
			return nil, fmt.Errorf("derive key for index %d: %w", in.order.AddressIndex, err)
		}
		witness, err := txscript.WitnessSignature(tx, sigHashes, i, in.value, in.pkScript, txscript.SigHashAll, kp.PrivateKey, true)
		if err != nil {
			return nil, fmt.Errorf("sign input %d: %w", i, err)
		}
		tx.TxIn[i].Witness = witness
	}
	return tx, nil
}

func contributingOrders(inputs []input) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, in := range inputs {
		if _, ok := seen[in.order.OrderID]; ok {
			continue
		}
		seen[in.order.OrderID] = struct{}{}
		ids = append(ids, in.order.OrderID)
	}
	return ids
}
