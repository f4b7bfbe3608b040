// Copyright (c) 2025 The blockidx developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

// Package index reconstructs the block header DAG from raw block data,
// selects the main chain by accumulated difficulty, and maintains a
// wallet-side view of outputs belonging to a set of owned addresses.
package index

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/blockidx/blockidxd/hash32"
	"github.com/blockidx/blockidxd/parser"
)

// Log as a package variable simplifies logging; the command layer
// reconfigures it at startup.
var Log = logrus.NewEntry(logrus.New())

var (
	// ErrBadMagic is returned when a block-file frame does not start with
	// the configured network magic.
	ErrBadMagic = errors.New("bad network magic")

	// ErrBadSize is returned for a header file whose size is not a
	// positive multiple of the header length, and for a block frame whose
	// declared length cannot hold a header.
	ErrBadSize = errors.New("bad size")
)

// AddrLen is the size of an owned address hash; PubKeyLen is the size of
// the raw public key registered alongside it (uncompressed, without the
// 0x04 prefix byte).
const (
	AddrLen   = 20
	PubKeyLen = 64
)

// Addr is a 20-byte address hash, usable as a map key.
type Addr [AddrLen]byte

// Index is the in-memory block-data index: every header and transaction
// seen, the main-chain organization over them, and the wallet view for
// the registered accounts. It is an explicit value — construct one with
// New and pass it where it is needed. All methods are single-threaded.
type Index struct {
	magic [4]byte

	headers         map[hash32.T]*HeaderEntry
	headersByHeight []*HeaderEntry
	txs             map[hash32.T]*parser.Transaction

	topBlock     *HeaderEntry
	genesisBlock *HeaderEntry

	accounts map[Addr][]byte
	balance  uint64

	myTxOuts            map[parser.OutPoint]*parser.TxOut
	myUnspentTxOuts     map[parser.OutPoint]*parser.TxOut
	myTxOutsNonStandard map[parser.OutPoint]*parser.TxOut
	myTxIns             map[parser.OutPoint]*parser.TxIn
}

// New returns an empty index for a network identified by the given 4-byte
// block-file magic.
func New(magic [4]byte) *Index {
	return &Index{
		magic:               magic,
		headers:             make(map[hash32.T]*HeaderEntry),
		txs:                 make(map[hash32.T]*parser.Transaction),
		accounts:            make(map[Addr][]byte),
		myTxOuts:            make(map[parser.OutPoint]*parser.TxOut),
		myUnspentTxOuts:     make(map[parser.OutPoint]*parser.TxOut),
		myTxOutsNonStandard: make(map[parser.OutPoint]*parser.TxOut),
		myTxIns:             make(map[parser.OutPoint]*parser.TxIn),
	}
}

// AddHeader inserts a header given its 80-byte serialization, e.g. one
// received from a peer. The first insertion of a hash wins; duplicates are
// ignored.
func (idx *Index) AddHeader(raw []byte) (*HeaderEntry, error) {
	if len(raw) != parser.BlockHeaderLen {
		return nil, ErrBadSize
	}
	hdr := parser.NewBlockHeader()
	if err := hdr.UnmarshalBinary(raw); err != nil {
		return nil, err
	}
	return idx.insertHeader(hdr), nil
}

// insertHeader records the header keyed by hash, first insertion wins.
func (idx *Index) insertHeader(hdr *parser.BlockHeader) *HeaderEntry {
	hash := hdr.GetHash()
	if existing, ok := idx.headers[hash]; ok {
		Log.WithField("hash", hash32.Encode(hash32.Reverse(hash))).
			Debug("duplicate header ignored")
		return existing
	}
	entry := newHeaderEntry(hdr)
	idx.headers[hash] = entry
	if hdr.HashPrevBlock == hash32.Nil && idx.genesisBlock == nil {
		idx.genesisBlock = entry
	}
	return entry
}

// HeaderByHash returns the header with the given hash, or nil.
func (idx *Index) HeaderByHash(hash hash32.T) *HeaderEntry {
	return idx.headers[hash]
}

// HeaderByHeight returns the main-branch header at the given height, or
// nil if the height is beyond the tip. Off-main headers are not indexed by
// height.
func (idx *Index) HeaderByHeight(height int) *HeaderEntry {
	if height < 0 || height >= len(idx.headersByHeight) {
		return nil
	}
	return idx.headersByHeight[height]
}

// TopBlock returns the tip of the main branch, or nil before the first
// OrganizeChain call.
func (idx *Index) TopBlock() *HeaderEntry {
	return idx.topBlock
}

// GenesisBlock returns the unique header whose prev-hash is all zeros, or
// nil if none has been inserted yet.
func (idx *Index) GenesisBlock() *HeaderEntry {
	return idx.genesisBlock
}

// TxByHash returns the transaction with the given hash, or nil.
func (idx *Index) TxByHash(hash hash32.T) *parser.Transaction {
	return idx.txs[hash]
}

// NumHeaders returns the number of headers indexed.
func (idx *Index) NumHeaders() int {
	return len(idx.headers)
}

// NumTx returns the number of transactions indexed.
func (idx *Index) NumTx() int {
	return len(idx.txs)
}
