// Copyright (c) 2025 The blockidx developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package parser

import (
	"github.com/pkg/errors"

	"github.com/blockidx/blockidxd/hash32"
	"github.com/blockidx/blockidxd/parser/internal/bytestring"
)

// Block represents a full block: header plus transactions.
type Block struct {
	hdr *BlockHeader
	vtx []*Transaction
}

// NewBlock constructs a block instance.
func NewBlock() *Block {
	return &Block{}
}

// Header returns the block's header.
func (b *Block) Header() *BlockHeader {
	return b.hdr
}

// GetTxCount returns the number of transactions in the block, including
// the coinbase transaction. A parsed block may hold zero transactions.
func (b *Block) GetTxCount() int {
	return len(b.vtx)
}

// Transactions returns the list of the block's transactions.
func (b *Block) Transactions() []*Transaction {
	return b.vtx
}

// GetHash returns the block hash in little-endian wire order.
func (b *Block) GetHash() hash32.T {
	return b.hdr.GetHash()
}

// GetDisplayHash returns the block hash in big-endian display order.
func (b *Block) GetDisplayHash() hash32.T {
	return b.hdr.GetDisplayHash()
}

// GetPrevHash returns the hash of the block's previous block
// (little-endian).
func (b *Block) GetPrevHash() hash32.T {
	return b.hdr.HashPrevBlock
}

// ParseFromSlice deserializes a block from the given data stream and
// returns a slice to the remaining data. The caller should verify there is
// no remaining data if none is expected.
func (b *Block) ParseFromSlice(data []byte) (rest []byte, err error) {
	hdr := NewBlockHeader()
	data, err = hdr.ParseFromSlice(data)
	if err != nil {
		return nil, errors.Wrap(err, "parsing block header")
	}

	s := bytestring.String(data)
	var txCount uint64
	if !s.ReadCompactSize(&txCount) {
		return nil, errors.Wrap(ErrTruncated, "reading tx_count")
	}
	data = []byte(s)

	vtx := make([]*Transaction, 0, txCount)
	var i uint64
	for i = 0; i < txCount && len(data) > 0; i++ {
		tx := &Transaction{}
		data, err = tx.ParseFromSlice(data)
		if err != nil {
			return nil, errors.Wrapf(err, "error parsing transaction %d", i)
		}
		vtx = append(vtx, tx)
	}
	if i < txCount {
		return nil, errors.Wrap(ErrTruncated, "parsing block transactions")
	}
	b.hdr = hdr
	b.vtx = vtx
	return data, nil
}

// MarshalBinary returns the block in serialized form: header, transaction
// count, transactions.
func (b *Block) MarshalBinary() ([]byte, error) {
	hdrBytes, err := b.hdr.MarshalBinary()
	if err != nil {
		return nil, err
	}
	w := bytestring.NewWriter(BlockHeaderLen + 9)
	w.Write(hdrBytes)
	w.WriteCompactSize(uint64(len(b.vtx)))
	for _, tx := range b.vtx {
		w.Write(tx.Bytes())
	}
	return w.Bytes(), nil
}
