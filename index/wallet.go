// Copyright (c) 2025 The blockidx developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package index

import (
	"bytes"

	"github.com/sirupsen/logrus"

	"github.com/blockidx/blockidxd/parser"
)

// AddAccount registers an owned address hash together with its 64-byte
// raw public key. Changing the owned-address set invalidates any previous
// scan, so the wallet view is reset and rebuilt by the next
// FlagMyTransactions call.
func (idx *Index) AddAccount(addr Addr, pubKey []byte) {
	idx.accounts[addr] = append([]byte(nil), pubKey...)
	idx.resetWalletState()
}

// Balance returns the sum of values over the owned unspent outputs, as of
// the last FlagMyTransactions call.
func (idx *Index) Balance() uint64 {
	return idx.balance
}

// MyTxOuts returns every owned output, keyed by outpoint. Spent outputs
// remain present with IsSpent set.
func (idx *Index) MyTxOuts() map[parser.OutPoint]*parser.TxOut {
	return idx.myTxOuts
}

// MyUnspentTxOuts returns the owned outputs not yet spent.
func (idx *Index) MyUnspentTxOuts() map[parser.OutPoint]*parser.TxOut {
	return idx.myUnspentTxOuts
}

// MyTxOutsNonStandard returns owned outputs whose scripts match neither
// standard template. They do not contribute to the balance.
func (idx *Index) MyTxOutsNonStandard() map[parser.OutPoint]*parser.TxOut {
	return idx.myTxOutsNonStandard
}

// MyTxIns returns the inputs that spend owned outputs, keyed by the
// outpoint they spend.
func (idx *Index) MyTxIns() map[parser.OutPoint]*parser.TxIn {
	return idx.myTxIns
}

// resetWalletState drops the wallet view, clearing the per-output flags a
// previous scan may have set.
func (idx *Index) resetWalletState() {
	for _, out := range idx.myTxOuts {
		out.IsMine = false
		out.IsSpent = false
	}
	for _, in := range idx.myTxIns {
		in.IsMine = false
	}
	idx.myTxOuts = make(map[parser.OutPoint]*parser.TxOut)
	idx.myUnspentTxOuts = make(map[parser.OutPoint]*parser.TxOut)
	idx.myTxOutsNonStandard = make(map[parser.OutPoint]*parser.TxOut)
	idx.myTxIns = make(map[parser.OutPoint]*parser.TxIn)
	idx.balance = 0
}

// FlagMyTransactions scans every indexed transaction against the
// registered accounts. Outputs are accumulated first, then inputs, so
// spend bookkeeping always finds its output already recorded.
func (idx *Index) FlagMyTransactions() {
	if len(idx.accounts) == 0 {
		return
	}

	// Output pass: collect everything paying one of our addresses. A
	// pay-to-pubkey-hash script embeds the address itself; a pay-to-pubkey
	// script only embeds the key, so those resolve through the cached
	// recipient address instead.
	for txHash, tx := range idx.txs {
		for addr := range idx.accounts {
			for i, out := range tx.Outputs {
				if !bytes.Contains(out.PkScript, addr[:]) &&
					!bytes.Equal(out.RecipientAddr(), addr[:]) {
					continue
				}
				op := parser.OutPoint{TxHash: txHash, TxOutIndex: uint32(i)}

				// Already collected by an earlier pass.
				if out.IsMine {
					continue
				}

				if !out.IsStandardScript() {
					Log.WithFields(logrus.Fields{
						"tx":       tx.DisplayHash(),
						"outIndex": i,
					}).Warning("non-standard script on owned output")
					idx.myTxOutsNonStandard[op] = out
					continue
				}

				out.IsMine = true
				out.IsSpent = false
				idx.myTxOuts[op] = out
				idx.myUnspentTxOuts[op] = out
				idx.balance += out.Value
			}
		}
	}

	// Input pass: find spends of the outputs collected above and delete
	// them from the unspent set. The balance only ever grows on the
	// output side; spends subtract by removal.
	for _, tx := range idx.txs {
		for _, pubKey := range idx.accounts {
			for _, in := range tx.Inputs {
				if !bytes.Contains(in.ScriptSig, pubKey) {
					continue
				}
				op := in.PrevOut
				out, ok := idx.myTxOuts[op]
				if !ok {
					// The key matched but the spent output was never one of
					// ours (or is outside the indexed data); nothing to book.
					continue
				}
				in.IsMine = true
				out.IsSpent = true
				idx.myTxIns[op] = in
				if _, unspent := idx.myUnspentTxOuts[op]; unspent {
					delete(idx.myUnspentTxOuts, op)
					idx.balance -= out.Value
				}
			}
		}
	}

	Log.WithFields(logrus.Fields{
		"owned":       len(idx.myTxOuts),
		"unspent":     len(idx.myUnspentTxOuts),
		"spends":      len(idx.myTxIns),
		"nonStandard": len(idx.myTxOutsNonStandard),
		"balance":     idx.balance,
	}).Info("wallet scan complete")
}
