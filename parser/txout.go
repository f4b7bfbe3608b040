// Copyright (c) 2025 The blockidx developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package parser

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/pkg/errors"

	"github.com/blockidx/blockidxd/parser/internal/bytestring"
)

// The two recognized output-script templates.
//
//	pay-to-pubkey-hash: OP_DUP OP_HASH160 <20 bytes> OP_EQUALVERIFY OP_CHECKSIG
//	pay-to-pubkey:      <65-byte key push> ... OP_CHECKSIG, 67 bytes total
const (
	p2pkhScriptLen = 25
	p2pkScriptLen  = 67
)

// TxOut is one transaction output: the value in satoshis and the locking
// script. It owns its script bytes.
type TxOut struct {
	Value    uint64
	PkScript []byte

	// Set by the wallet scan, not part of the serialization.
	IsMine  bool
	IsSpent bool

	recipientAddr []byte
}

// IsStandardScript reports whether the locking script matches one of the
// two recognized templates.
func (out *TxOut) IsStandardScript() bool {
	s := out.PkScript
	if len(s) == p2pkhScriptLen {
		return s[0] == 0x76 && s[1] == 0xa9 && s[2] == 0x14 &&
			s[23] == 0x88 && s[24] == 0xac
	}
	return len(s) == p2pkScriptLen && s[p2pkScriptLen-1] == 0xac
}

// RecipientAddr returns the 20-byte address hash the output pays to, or nil
// for a non-standard script. For pay-to-pubkey scripts the address is
// hash160 of the embedded 65-byte key, so both templates resolve to the
// same address form. The result is cached.
func (out *TxOut) RecipientAddr() []byte {
	if !out.IsStandardScript() {
		return nil
	}
	if out.recipientAddr == nil {
		if len(out.PkScript) == p2pkhScriptLen {
			out.recipientAddr = append([]byte(nil), out.PkScript[3:23]...)
		} else {
			out.recipientAddr = btcutil.Hash160(out.PkScript[1 : p2pkScriptLen-1])
		}
	}
	return out.recipientAddr
}

// SerializedLen returns the encoded size of the output.
func (out *TxOut) SerializedLen() int {
	return 8 + bytestring.CompactSizeLen(uint64(len(out.PkScript))) + len(out.PkScript)
}

// ParseFromSlice reads the output from the start of data, returning the
// remainder of the slice. The script bytes are copied out of data.
func (out *TxOut) ParseFromSlice(data []byte) (rest []byte, err error) {
	s := bytestring.String(data)

	if !s.ReadUint64(&out.Value) {
		return nil, errors.Wrap(ErrTruncated, "reading output value")
	}

	var script bytestring.String
	if !s.ReadCompactLengthPrefixed(&script) {
		return nil, errors.Wrap(ErrTruncated, "reading pkScript")
	}
	out.PkScript = append([]byte(nil), script...)

	return []byte(s), nil
}

// MarshalBinary returns the output in serialized form.
func (out *TxOut) MarshalBinary() ([]byte, error) {
	w := bytestring.NewWriter(out.SerializedLen())
	w.WriteUint64(out.Value)
	w.WriteCompactLengthPrefixed(out.PkScript)
	return w.Bytes(), nil
}

// UnmarshalBinary parses the output from exactly len(data) bytes.
func (out *TxOut) UnmarshalBinary(data []byte) error {
	rest, err := out.ParseFromSlice(data)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return errors.Errorf("txout: %d trailing bytes", len(rest))
	}
	return nil
}

// TxOutView is a non-owning output over a backing buffer, which must
// outlive the view.
type TxOutView struct {
	data      []byte
	scriptOff int
}

// ParseFromSlice binds the view to the output at the start of data,
// returning the remainder of the slice.
func (v *TxOutView) ParseFromSlice(data []byte) (rest []byte, err error) {
	s := bytestring.String(data)
	if !s.Skip(8) {
		return nil, errors.Wrap(ErrTruncated, "reading output value")
	}

	var scriptLen uint64
	if !s.ReadCompactSize(&scriptLen) {
		return nil, errors.Wrap(ErrTruncated, "reading pkScript length")
	}
	scriptOff := len(data) - s.Remaining()
	if !s.Skip(int(scriptLen)) {
		return nil, errors.Wrap(ErrTruncated, "reading pkScript")
	}

	total := len(data) - s.Remaining()
	v.data = data[:total]
	v.scriptOff = scriptOff
	return data[total:], nil
}

// Value returns the output value in satoshis.
func (v *TxOutView) Value() uint64 {
	d := v.data[:8]
	return uint64(d[0]) | uint64(d[1])<<8 | uint64(d[2])<<16 | uint64(d[3])<<24 |
		uint64(d[4])<<32 | uint64(d[5])<<40 | uint64(d[6])<<48 | uint64(d[7])<<56
}

// PkScript returns the locking script, borrowing from the backing buffer.
func (v *TxOutView) PkScript() []byte {
	return v.data[v.scriptOff:]
}

// Bytes returns the view's underlying serialization.
func (v *TxOutView) Bytes() []byte {
	return v.data
}

// Len returns the encoded size of the output.
func (v *TxOutView) Len() int {
	return len(v.data)
}

// ToTxOut copies the view into an owning output.
func (v *TxOutView) ToTxOut() *TxOut {
	return &TxOut{
		Value:    v.Value(),
		PkScript: append([]byte(nil), v.PkScript()...),
	}
}
