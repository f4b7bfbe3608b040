// Copyright (c) 2025 The blockidx developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package parser

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/blockidx/blockidxd/hash32"
)

// p2pkhScript builds the 25-byte pay-to-pubkey-hash template around addr.
func p2pkhScript(addr []byte) []byte {
	script := []byte{0x76, 0xa9, 0x14}
	script = append(script, addr...)
	return append(script, 0x88, 0xac)
}

func testTransaction() *Transaction {
	addr := bytes.Repeat([]byte{0x11}, 20)
	return &Transaction{
		Version: 1,
		Inputs: []*TxIn{
			{
				PrevOut:   OutPoint{TxOutIndex: CoinbaseOutIndex},
				ScriptSig: []byte{0x04, 0xde, 0xad, 0xbe, 0xef},
				Sequence:  0xffffffff,
			},
			{
				PrevOut:   OutPoint{TxHash: hash32.T{0x42}, TxOutIndex: 3},
				ScriptSig: bytes.Repeat([]byte{0x51}, 40),
				Sequence:  0xfffffffe,
			},
		},
		Outputs: []*TxOut{
			{Value: 5000000000, PkScript: p2pkhScript(addr)},
			{Value: 1, PkScript: []byte{0x6a}},
			{Value: 250, PkScript: bytes.Repeat([]byte{0x52}, 12)},
		},
		LockTime: 0,
	}
}

func TestTransactionRoundTrip(t *testing.T) {
	tx := testTransaction()
	ser, err := tx.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	parsed := &Transaction{}
	rest, err := parsed.ParseFromSlice(ser)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 0 {
		t.Fatalf("parse left %d bytes", len(rest))
	}
	if parsed.Version != tx.Version || parsed.LockTime != tx.LockTime {
		t.Fatal("scalar fields did not round-trip")
	}
	if len(parsed.Inputs) != len(tx.Inputs) || len(parsed.Outputs) != len(tx.Outputs) {
		t.Fatal("input/output counts did not round-trip")
	}
	for i, in := range tx.Inputs {
		got := parsed.Inputs[i]
		if got.PrevOut != in.PrevOut || got.Sequence != in.Sequence ||
			!bytes.Equal(got.ScriptSig, in.ScriptSig) {
			t.Fatalf("input %d did not round-trip", i)
		}
	}
	for i, out := range tx.Outputs {
		got := parsed.Outputs[i]
		if got.Value != out.Value || !bytes.Equal(got.PkScript, out.PkScript) {
			t.Fatalf("output %d did not round-trip", i)
		}
	}

	reser, err := parsed.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(ser, reser) {
		t.Fatal("reserialization is not byte-exact")
	}
}

func TestTransactionHashStability(t *testing.T) {
	tx := testTransaction()
	ser, _ := tx.MarshalBinary()

	parsed := &Transaction{}
	if _, err := parsed.ParseFromSlice(ser); err != nil {
		t.Fatal(err)
	}
	if parsed.Hash() != hash32.Sum(ser) {
		t.Fatal("stored hash differs from hash of serialized form")
	}
	if parsed.NBytes() != len(ser) {
		t.Fatalf("NBytes %d, want %d", parsed.NBytes(), len(ser))
	}
}

func TestTransactionOwningDoesNotAlias(t *testing.T) {
	tx := testTransaction()
	ser, _ := tx.MarshalBinary()

	parsed := &Transaction{}
	if _, err := parsed.ParseFromSlice(ser); err != nil {
		t.Fatal(err)
	}
	want := append([]byte(nil), parsed.Inputs[1].ScriptSig...)
	for i := range ser {
		ser[i] = 0
	}
	if !bytes.Equal(parsed.Inputs[1].ScriptSig, want) {
		t.Fatal("owning transaction aliases the source buffer")
	}
}

func TestTransactionViewOffsets(t *testing.T) {
	tx := testTransaction()
	ser, _ := tx.MarshalBinary()

	v := &TransactionView{}
	rest, err := v.ParseFromSlice(ser)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 0 {
		t.Fatalf("view parse left %d bytes", len(rest))
	}
	if v.NumIn() != 2 || v.NumOut() != 3 {
		t.Fatalf("view counts %d/%d, want 2/3", v.NumIn(), v.NumOut())
	}

	offIn, offOut := v.OffsetsIn(), v.OffsetsOut()
	if offIn[v.NumIn()] != offOut[0] {
		t.Fatalf("offsetsIn[numIn]=%d, offsetsOut[0]=%d", offIn[v.NumIn()], offOut[0])
	}
	wantTotal := 0
	for _, in := range tx.Inputs {
		wantTotal += in.SerializedLen()
	}
	for _, out := range tx.Outputs {
		wantTotal += out.SerializedLen()
	}
	if offOut[v.NumOut()] != wantTotal {
		t.Fatalf("offsetsOut[numOut]=%d, want %d", offOut[v.NumOut()], wantTotal)
	}

	// Each indexed access equals the record parsed sequentially.
	for i, in := range tx.Inputs {
		iv := v.InputAt(i)
		want, _ := in.MarshalBinary()
		if !bytes.Equal(iv.Bytes(), want) {
			t.Fatalf("InputAt(%d) disagrees with sequential parse", i)
		}
		if iv.PrevOut() != in.PrevOut || iv.Sequence() != in.Sequence ||
			!bytes.Equal(iv.ScriptSig(), in.ScriptSig) {
			t.Fatalf("InputAt(%d) field mismatch", i)
		}
	}
	for i, out := range tx.Outputs {
		ov := v.OutputAt(i)
		if ov.Value() != out.Value || !bytes.Equal(ov.PkScript(), out.PkScript) {
			t.Fatalf("OutputAt(%d) field mismatch", i)
		}
	}

	if v.Hash() != hash32.Sum(v.Bytes()) {
		t.Fatal("view hash mismatch")
	}
	if v.Version() != tx.Version || v.LockTime() != tx.LockTime {
		t.Fatal("view scalar accessors mismatch")
	}

	owned, err := v.ToTransaction()
	if err != nil {
		t.Fatal(err)
	}
	if owned.Hash() != v.Hash() {
		t.Fatal("ToTransaction hash mismatch")
	}
}

func TestTransactionViewConsumesExactly(t *testing.T) {
	tx := testTransaction()
	ser, _ := tx.MarshalBinary()
	trailer := append(append([]byte(nil), ser...), 0xde, 0xad)

	v := &TransactionView{}
	rest, err := v.ParseFromSlice(trailer)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 2 {
		t.Fatalf("view consumed wrong length, %d bytes left", len(rest))
	}
	if v.Len() != len(ser) {
		t.Fatalf("view length %d, want %d", v.Len(), len(ser))
	}
}

func TestTxInCoinbase(t *testing.T) {
	in := &TxIn{PrevOut: OutPoint{TxOutIndex: CoinbaseOutIndex}}
	if !in.IsCoinbase() {
		t.Fatal("null outpoint not recognized as coinbase")
	}
	in.PrevOut.TxHash = hash32.T{1}
	if in.IsCoinbase() {
		t.Fatal("non-null outpoint recognized as coinbase")
	}
}

func TestOutPointRoundTrip(t *testing.T) {
	op := OutPoint{TxHash: hash32.T{0xab, 0xcd}, TxOutIndex: 7}
	ser, _ := op.MarshalBinary()
	if len(ser) != OutPointLen {
		t.Fatalf("outpoint serialized to %d bytes", len(ser))
	}
	var parsed OutPoint
	if err := parsed.UnmarshalBinary(ser); err != nil {
		t.Fatal(err)
	}
	if parsed != op {
		t.Fatal("outpoint did not round-trip")
	}

	v := &OutPointView{}
	if _, err := v.ParseFromSlice(ser); err != nil {
		t.Fatal(err)
	}
	if v.ToOutPoint() != op {
		t.Fatal("outpoint view mismatch")
	}
}

func TestTxOutStandardScripts(t *testing.T) {
	addr := bytes.Repeat([]byte{0x7f}, 20)

	p2pkh := &TxOut{Value: 10, PkScript: p2pkhScript(addr)}
	if !p2pkh.IsStandardScript() {
		t.Fatal("P2PKH template not recognized")
	}
	if !bytes.Equal(p2pkh.RecipientAddr(), addr) {
		t.Fatal("P2PKH recipient mismatch")
	}

	pubKey := append([]byte{0x04}, bytes.Repeat([]byte{0x5a}, 64)...)
	script := append([]byte{0x41}, pubKey...)
	script = append(script, 0xac)
	p2pk := &TxOut{Value: 10, PkScript: script}
	if !p2pk.IsStandardScript() {
		t.Fatal("P2PK template not recognized")
	}
	if !bytes.Equal(p2pk.RecipientAddr(), btcutil.Hash160(pubKey)) {
		t.Fatal("P2PK recipient is not hash160 of the embedded key")
	}

	opReturn := &TxOut{Value: 10, PkScript: append([]byte{0x6a, 0x14}, addr...)}
	if opReturn.IsStandardScript() {
		t.Fatal("OP_RETURN script recognized as standard")
	}
	if opReturn.RecipientAddr() != nil {
		t.Fatal("non-standard script produced a recipient")
	}

	// 25 bytes but not the template.
	almost := &TxOut{Value: 10, PkScript: bytes.Repeat([]byte{0x76}, 25)}
	if almost.IsStandardScript() {
		t.Fatal("malformed 25-byte script recognized as standard")
	}
}
