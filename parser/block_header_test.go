// Copyright (c) 2025 The blockidx developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package parser

import (
	"bytes"
	"testing"

	"github.com/blockidx/blockidxd/hash32"
)

func testHeader() *BlockHeader {
	hdr := NewBlockHeader()
	hdr.Version = 1
	hdr.HashPrevBlock = hash32.T{0x01, 0x02, 0x03}
	hdr.HashMerkleRoot = hash32.T{0xaa, 0xbb}
	hdr.Time = 1231006505
	hdr.NBitsBytes = [4]byte{0xff, 0xff, 0x00, 0x1d}
	hdr.Nonce = 2083236893
	return hdr
}

func TestBlockHeaderRoundTrip(t *testing.T) {
	hdr := testHeader()
	ser, err := hdr.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if len(ser) != BlockHeaderLen {
		t.Fatalf("serialized header is %d bytes, want %d", len(ser), BlockHeaderLen)
	}

	parsed := NewBlockHeader()
	rest, err := parsed.ParseFromSlice(ser)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 0 {
		t.Fatalf("parse left %d bytes", len(rest))
	}
	if *parsed.RawBlockHeader != *hdr.RawBlockHeader {
		t.Fatal("header did not round-trip")
	}

	reser, err := parsed.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(ser, reser) {
		t.Fatal("reserialization is not byte-exact")
	}
}

func TestBlockHeaderNBits(t *testing.T) {
	hdr := testHeader()
	if hdr.NBits() != 0x1d00ffff {
		t.Fatalf("NBits decoded %#x, want 0x1d00ffff", hdr.NBits())
	}
}

func TestBlockHeaderHashStability(t *testing.T) {
	hdr := testHeader()
	ser, _ := hdr.MarshalBinary()
	if hdr.GetHash() != hash32.Sum(ser) {
		t.Fatal("cached hash differs from recomputed hash")
	}
	if hdr.GetDisplayHash() != hash32.Reverse(hdr.GetHash()) {
		t.Fatal("display hash is not the byte-reversed hash")
	}
}

func TestBlockHeaderTruncated(t *testing.T) {
	hdr := testHeader()
	ser, _ := hdr.MarshalBinary()
	short := NewBlockHeader()
	if _, err := short.ParseFromSlice(ser[:79]); err == nil {
		t.Fatal("parsed a 79-byte header")
	}
}

func TestBlockHeaderView(t *testing.T) {
	hdr := testHeader()
	ser, _ := hdr.MarshalBinary()

	v := &BlockHeaderView{}
	rest, err := v.ParseFromSlice(ser)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 0 {
		t.Fatalf("view parse left %d bytes", len(rest))
	}
	if v.Version() != hdr.Version ||
		v.HashPrevBlock() != hdr.HashPrevBlock ||
		v.HashMerkleRoot() != hdr.HashMerkleRoot ||
		v.Time() != hdr.Time ||
		v.NBits() != hdr.NBits() ||
		v.Nonce() != hdr.Nonce {
		t.Fatal("view accessors disagree with owning header")
	}
	if v.GetHash() != hdr.GetHash() {
		t.Fatal("view hash disagrees with owning header")
	}

	owned, err := v.ToBlockHeader()
	if err != nil {
		t.Fatal(err)
	}
	if *owned.RawBlockHeader != *hdr.RawBlockHeader {
		t.Fatal("ToBlockHeader copy mismatch")
	}
}
