// Copyright (c) 2025 The blockidx developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package parser

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"

	"github.com/blockidx/blockidxd/hash32"
	"github.com/blockidx/blockidxd/parser/internal/bytestring"
)

// OutPointLen is the serialized size of an outpoint: a 32-byte transaction
// hash followed by a little-endian uint32 output index.
const OutPointLen = 36

// CoinbaseOutIndex is the output index carried by the null outpoint of a
// coinbase input (together with an all-zero transaction hash).
const CoinbaseOutIndex uint32 = 0xffffffff

// OutPoint identifies one output of one transaction. It is a comparable
// value type, usable directly as a map key; Less orders by (TxHash,
// TxOutIndex).
type OutPoint struct {
	TxHash     hash32.T
	TxOutIndex uint32
}

// Less reports whether op orders before other: by TxHash bytes, then by
// TxOutIndex.
func (op OutPoint) Less(other OutPoint) bool {
	if c := bytes.Compare(op.TxHash[:], other.TxHash[:]); c != 0 {
		return c < 0
	}
	return op.TxOutIndex < other.TxOutIndex
}

// IsCoinbase reports whether this is the null outpoint that a coinbase
// input carries.
func (op OutPoint) IsCoinbase() bool {
	return op.TxHash == hash32.Nil && op.TxOutIndex == CoinbaseOutIndex
}

// String renders the outpoint as txid(index), txid in display order.
func (op OutPoint) String() string {
	return fmt.Sprintf("%s(%d)", hash32.Encode(hash32.Reverse(op.TxHash)), op.TxOutIndex)
}

// ParseFromSlice reads the outpoint from the start of data, returning the
// remainder of the slice.
func (op *OutPoint) ParseFromSlice(data []byte) (rest []byte, err error) {
	s := bytestring.String(data)

	var hash []byte
	if !s.ReadBytes(&hash, 32) {
		return nil, errors.Wrap(ErrTruncated, "reading outpoint txid")
	}
	op.TxHash = hash32.FromSlice(hash)

	if !s.ReadUint32(&op.TxOutIndex) {
		return nil, errors.Wrap(ErrTruncated, "reading outpoint index")
	}

	return []byte(s), nil
}

// MarshalBinary returns the outpoint in serialized form.
func (op OutPoint) MarshalBinary() ([]byte, error) {
	w := bytestring.NewWriter(OutPointLen)
	w.Write(op.TxHash[:])
	w.WriteUint32(op.TxOutIndex)
	return w.Bytes(), nil
}

// UnmarshalBinary parses the outpoint from exactly len(data) bytes.
func (op *OutPoint) UnmarshalBinary(data []byte) error {
	rest, err := op.ParseFromSlice(data)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return errors.Errorf("outpoint: %d trailing bytes", len(rest))
	}
	return nil
}

// OutPointView is a non-owning outpoint over a backing buffer, which must
// outlive the view.
type OutPointView struct {
	data []byte
}

// ParseFromSlice binds the view to the outpoint at the start of data,
// returning the remainder of the slice.
func (v *OutPointView) ParseFromSlice(data []byte) (rest []byte, err error) {
	if len(data) < OutPointLen {
		return nil, errors.Wrap(ErrTruncated, "reading outpoint")
	}
	v.data = data[:OutPointLen]
	return data[OutPointLen:], nil
}

// TxHash returns the referenced transaction hash.
func (v *OutPointView) TxHash() hash32.T {
	return hash32.FromSlice(v.data[:32])
}

// TxOutIndex returns the referenced output index.
func (v *OutPointView) TxOutIndex() uint32 {
	d := v.data[32:36]
	return uint32(d[0]) | uint32(d[1])<<8 | uint32(d[2])<<16 | uint32(d[3])<<24
}

// IsCoinbase reports whether this is the null coinbase outpoint.
func (v *OutPointView) IsCoinbase() bool {
	return v.ToOutPoint().IsCoinbase()
}

// Bytes returns the view's underlying serialization.
func (v *OutPointView) Bytes() []byte {
	return v.data
}

// ToOutPoint copies the view into an owning value.
func (v *OutPointView) ToOutPoint() OutPoint {
	return OutPoint{TxHash: v.TxHash(), TxOutIndex: v.TxOutIndex()}
}
