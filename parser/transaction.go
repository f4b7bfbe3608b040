// Copyright (c) 2025 The blockidx developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

// Package parser deserializes raw block data: headers, transactions,
// inputs, and outputs, in both owning and view-over-buffer shapes.
package parser

import (
	"github.com/pkg/errors"

	"github.com/blockidx/blockidxd/hash32"
	"github.com/blockidx/blockidxd/parser/internal/bytestring"
)

// Transaction is an owning transaction: version, inputs, outputs, lock
// time. The serialized form is cached at parse time so the hash never has
// to be recomputed from fields.
type Transaction struct {
	Version  uint32
	Inputs   []*TxIn
	Outputs  []*TxOut
	LockTime uint32

	rawBytes   []byte
	cachedHash hash32.T
}

// Hash returns the transaction id: double-SHA-256 over the serialization.
// The value is computed once and cached.
func (tx *Transaction) Hash() hash32.T {
	if tx.cachedHash == hash32.Nil {
		tx.cachedHash = hash32.Sum(tx.Bytes())
	}
	return tx.cachedHash
}

// DisplayHash returns the transaction id in big-endian display order.
func (tx *Transaction) DisplayHash() string {
	return hash32.Encode(hash32.Reverse(tx.Hash()))
}

// Bytes returns the transaction's serialization, reserializing only if the
// parse-time cache is absent.
func (tx *Transaction) Bytes() []byte {
	if tx.rawBytes == nil {
		tx.rawBytes, _ = tx.MarshalBinary()
	}
	return tx.rawBytes
}

// NBytes returns the serialized size of the transaction.
func (tx *Transaction) NBytes() int {
	return len(tx.Bytes())
}

// ParseFromSlice reads the transaction from the start of data, returning
// the remainder of the slice. All field bytes are copied; the result does
// not alias data.
func (tx *Transaction) ParseFromSlice(data []byte) (rest []byte, err error) {
	s := bytestring.String(data)

	if !s.ReadUint32(&tx.Version) {
		return nil, errors.Wrap(ErrTruncated, "reading tx version")
	}

	var numIn uint64
	if !s.ReadCompactSize(&numIn) {
		return nil, errors.Wrap(ErrTruncated, "reading tx_in count")
	}
	tx.Inputs = make([]*TxIn, numIn)
	rest = []byte(s)
	for i := range tx.Inputs {
		in := &TxIn{}
		rest, err = in.ParseFromSlice(rest)
		if err != nil {
			return nil, errors.Wrapf(err, "while parsing input %d", i)
		}
		tx.Inputs[i] = in
	}
	s = bytestring.String(rest)

	var numOut uint64
	if !s.ReadCompactSize(&numOut) {
		return nil, errors.Wrap(ErrTruncated, "reading tx_out count")
	}
	tx.Outputs = make([]*TxOut, numOut)
	rest = []byte(s)
	for i := range tx.Outputs {
		out := &TxOut{}
		rest, err = out.ParseFromSlice(rest)
		if err != nil {
			return nil, errors.Wrapf(err, "while parsing output %d", i)
		}
		tx.Outputs[i] = out
	}
	s = bytestring.String(rest)

	if !s.ReadUint32(&tx.LockTime) {
		return nil, errors.Wrap(ErrTruncated, "reading lock time")
	}

	total := len(data) - s.Remaining()
	tx.rawBytes = append([]byte(nil), data[:total]...)
	tx.cachedHash = hash32.Nil
	return []byte(s), nil
}

// MarshalBinary returns the transaction in serialized form.
func (tx *Transaction) MarshalBinary() ([]byte, error) {
	w := bytestring.NewWriter(64)
	w.WriteUint32(tx.Version)
	w.WriteCompactSize(uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		b, err := in.MarshalBinary()
		if err != nil {
			return nil, err
		}
		w.Write(b)
	}
	w.WriteCompactSize(uint64(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		b, err := out.MarshalBinary()
		if err != nil {
			return nil, err
		}
		w.Write(b)
	}
	w.WriteUint32(tx.LockTime)
	return w.Bytes(), nil
}

// UnmarshalBinary parses the transaction from exactly len(data) bytes.
func (tx *Transaction) UnmarshalBinary(data []byte) error {
	rest, err := tx.ParseFromSlice(data)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return errors.Errorf("transaction: %d trailing bytes", len(rest))
	}
	return nil
}

// TransactionView is a non-owning transaction over a backing buffer, which
// must outlive the view. Input and output byte offsets are precomputed at
// parse time so InputAt and OutputAt are constant-time.
//
// The offset tables use a coordinate space in which the outputs
// immediately follow the inputs (the count prefix between them is
// excluded): offsetsIn[i] is the offset of input i from the start of the
// inputs region, offsetsIn[numIn] is the total length of that region and
// equals offsetsOut[0], and offsetsOut[numOut] is the combined length of
// both regions.
type TransactionView struct {
	data       []byte
	inStart    int
	outStart   int
	offsetsIn  []int
	offsetsOut []int
	cachedHash hash32.T
}

// ParseFromSlice binds the view to the transaction at the start of data,
// returning the remainder of the slice.
func (v *TransactionView) ParseFromSlice(data []byte) (rest []byte, err error) {
	s := bytestring.String(data)

	if !s.Skip(4) {
		return nil, errors.Wrap(ErrTruncated, "reading tx version")
	}

	var numIn uint64
	if !s.ReadCompactSize(&numIn) {
		return nil, errors.Wrap(ErrTruncated, "reading tx_in count")
	}
	inStart := len(data) - s.Remaining()
	offsetsIn := make([]int, numIn+1)
	rest = []byte(s)
	for i := 0; i < int(numIn); i++ {
		offsetsIn[i] = len(data) - len(rest) - inStart
		in := &TxInView{}
		rest, err = in.ParseFromSlice(rest)
		if err != nil {
			return nil, errors.Wrapf(err, "while parsing input %d", i)
		}
	}
	inLen := len(data) - len(rest) - inStart
	offsetsIn[numIn] = inLen
	s = bytestring.String(rest)

	var numOut uint64
	if !s.ReadCompactSize(&numOut) {
		return nil, errors.Wrap(ErrTruncated, "reading tx_out count")
	}
	outStart := len(data) - s.Remaining()
	offsetsOut := make([]int, numOut+1)
	rest = []byte(s)
	for i := 0; i < int(numOut); i++ {
		offsetsOut[i] = inLen + len(data) - len(rest) - outStart
		out := &TxOutView{}
		rest, err = out.ParseFromSlice(rest)
		if err != nil {
			return nil, errors.Wrapf(err, "while parsing output %d", i)
		}
	}
	offsetsOut[numOut] = inLen + len(data) - len(rest) - outStart
	s = bytestring.String(rest)

	if !s.Skip(4) {
		return nil, errors.Wrap(ErrTruncated, "reading lock time")
	}

	total := len(data) - s.Remaining()
	v.data = data[:total]
	v.inStart = inStart
	v.outStart = outStart
	v.offsetsIn = offsetsIn
	v.offsetsOut = offsetsOut
	v.cachedHash = hash32.Nil
	return data[total:], nil
}

// Version returns the transaction version.
func (v *TransactionView) Version() uint32 {
	d := v.data[:4]
	return uint32(d[0]) | uint32(d[1])<<8 | uint32(d[2])<<16 | uint32(d[3])<<24
}

// LockTime returns the transaction lock time.
func (v *TransactionView) LockTime() uint32 {
	d := v.data[len(v.data)-4:]
	return uint32(d[0]) | uint32(d[1])<<8 | uint32(d[2])<<16 | uint32(d[3])<<24
}

// NumIn returns the number of inputs.
func (v *TransactionView) NumIn() int {
	return len(v.offsetsIn) - 1
}

// NumOut returns the number of outputs.
func (v *TransactionView) NumOut() int {
	return len(v.offsetsOut) - 1
}

// InputAt returns a view of input i without rescanning the preceding
// inputs.
func (v *TransactionView) InputAt(i int) TxInView {
	span := v.data[v.inStart+v.offsetsIn[i] : v.inStart+v.offsetsIn[i+1]]
	in := TxInView{}
	// The span was sized during the table build, so this cannot fail.
	in.ParseFromSlice(span)
	return in
}

// OutputAt returns a view of output i without rescanning the preceding
// outputs.
func (v *TransactionView) OutputAt(i int) TxOutView {
	inLen := v.offsetsIn[v.NumIn()]
	span := v.data[v.outStart+v.offsetsOut[i]-inLen : v.outStart+v.offsetsOut[i+1]-inLen]
	out := TxOutView{}
	out.ParseFromSlice(span)
	return out
}

// OffsetsIn returns the input offset table.
func (v *TransactionView) OffsetsIn() []int {
	return v.offsetsIn
}

// OffsetsOut returns the output offset table.
func (v *TransactionView) OffsetsOut() []int {
	return v.offsetsOut
}

// Bytes returns the view's underlying serialization.
func (v *TransactionView) Bytes() []byte {
	return v.data
}

// Len returns the serialized size of the transaction.
func (v *TransactionView) Len() int {
	return len(v.data)
}

// Hash returns the transaction id, computed once and cached.
func (v *TransactionView) Hash() hash32.T {
	if v.cachedHash == hash32.Nil {
		v.cachedHash = hash32.Sum(v.data)
	}
	return v.cachedHash
}

// ToTransaction copies the view into an owning transaction.
func (v *TransactionView) ToTransaction() (*Transaction, error) {
	tx := &Transaction{}
	if err := tx.UnmarshalBinary(v.data); err != nil {
		return nil, err
	}
	tx.cachedHash = v.cachedHash
	return tx, nil
}
