// Copyright (c) 2025 The blockidx developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package parser

import (
	"github.com/pkg/errors"

	"github.com/blockidx/blockidxd/parser/internal/bytestring"
)

// TxIn is one transaction input: the outpoint being spent, the unlocking
// script, and the sequence number. It owns its script bytes.
type TxIn struct {
	PrevOut   OutPoint
	ScriptSig []byte
	Sequence  uint32

	// Set by the wallet scan, not part of the serialization.
	IsMine bool
}

// IsCoinbase reports whether the input spends the null coinbase outpoint.
func (in *TxIn) IsCoinbase() bool {
	return in.PrevOut.IsCoinbase()
}

// SerializedLen returns the encoded size of the input.
func (in *TxIn) SerializedLen() int {
	return OutPointLen + bytestring.CompactSizeLen(uint64(len(in.ScriptSig))) + len(in.ScriptSig) + 4
}

// ParseFromSlice reads the input from the start of data, returning the
// remainder of the slice. The script bytes are copied out of data.
func (in *TxIn) ParseFromSlice(data []byte) (rest []byte, err error) {
	data, err = in.PrevOut.ParseFromSlice(data)
	if err != nil {
		return nil, errors.Wrap(err, "while parsing input outpoint")
	}
	s := bytestring.String(data)

	var script bytestring.String
	if !s.ReadCompactLengthPrefixed(&script) {
		return nil, errors.Wrap(ErrTruncated, "reading scriptSig")
	}
	in.ScriptSig = append([]byte(nil), script...)

	if !s.ReadUint32(&in.Sequence) {
		return nil, errors.Wrap(ErrTruncated, "reading sequence")
	}

	return []byte(s), nil
}

// MarshalBinary returns the input in serialized form.
func (in *TxIn) MarshalBinary() ([]byte, error) {
	w := bytestring.NewWriter(in.SerializedLen())
	op, _ := in.PrevOut.MarshalBinary()
	w.Write(op)
	w.WriteCompactLengthPrefixed(in.ScriptSig)
	w.WriteUint32(in.Sequence)
	return w.Bytes(), nil
}

// UnmarshalBinary parses the input from exactly len(data) bytes.
func (in *TxIn) UnmarshalBinary(data []byte) error {
	rest, err := in.ParseFromSlice(data)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return errors.Errorf("txin: %d trailing bytes", len(rest))
	}
	return nil
}

// TxInView is a non-owning input over a backing buffer, which must outlive
// the view. Field offsets are computed once at parse time.
type TxInView struct {
	data      []byte
	scriptOff int
}

// ParseFromSlice binds the view to the input at the start of data, returning
// the remainder of the slice.
func (v *TxInView) ParseFromSlice(data []byte) (rest []byte, err error) {
	s := bytestring.String(data)
	if !s.Skip(OutPointLen) {
		return nil, errors.Wrap(ErrTruncated, "reading input outpoint")
	}

	var scriptLen uint64
	if !s.ReadCompactSize(&scriptLen) {
		return nil, errors.Wrap(ErrTruncated, "reading scriptSig length")
	}
	scriptOff := len(data) - s.Remaining()
	if !s.Skip(int(scriptLen)) {
		return nil, errors.Wrap(ErrTruncated, "reading scriptSig")
	}
	if !s.Skip(4) {
		return nil, errors.Wrap(ErrTruncated, "reading sequence")
	}

	total := len(data) - s.Remaining()
	v.data = data[:total]
	v.scriptOff = scriptOff
	return data[total:], nil
}

// PrevOut returns the outpoint being spent.
func (v *TxInView) PrevOut() OutPoint {
	opv := OutPointView{data: v.data[:OutPointLen]}
	return opv.ToOutPoint()
}

// ScriptSig returns the unlocking script, borrowing from the backing buffer.
func (v *TxInView) ScriptSig() []byte {
	return v.data[v.scriptOff : len(v.data)-4]
}

// Sequence returns the input's sequence number.
func (v *TxInView) Sequence() uint32 {
	d := v.data[len(v.data)-4:]
	return uint32(d[0]) | uint32(d[1])<<8 | uint32(d[2])<<16 | uint32(d[3])<<24
}

// IsCoinbase reports whether the input spends the null coinbase outpoint.
func (v *TxInView) IsCoinbase() bool {
	return v.PrevOut().IsCoinbase()
}

// Bytes returns the view's underlying serialization.
func (v *TxInView) Bytes() []byte {
	return v.data
}

// Len returns the encoded size of the input.
func (v *TxInView) Len() int {
	return len(v.data)
}

// ToTxIn copies the view into an owning input.
func (v *TxInView) ToTxIn() *TxIn {
	return &TxIn{
		PrevOut:   v.PrevOut(),
		ScriptSig: append([]byte(nil), v.ScriptSig()...),
		Sequence:  v.Sequence(),
	}
}
