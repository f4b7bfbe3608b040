// Copyright (c) 2025 The blockidx developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package index

import (
	"bytes"
	"math"
	"testing"

	"github.com/blockidx/blockidxd/hash32"
	"github.com/blockidx/blockidxd/parser"
)

var testMagic = [4]byte{0xf9, 0xbe, 0xb4, 0xd9}

// headerBytes serializes a minimal header chained to prev, with the
// standard minimum-difficulty bits. The nonce keeps hashes distinct.
func headerBytes(t *testing.T, prev hash32.T, nonce uint32) []byte {
	t.Helper()
	hdr := parser.NewBlockHeader()
	hdr.Version = 1
	hdr.HashPrevBlock = prev
	hdr.NBitsBytes = [4]byte{0xff, 0xff, 0x00, 0x1d} // 0x1d00ffff, difficulty 1.0
	hdr.Nonce = nonce
	raw, err := hdr.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func addHeader(t *testing.T, idx *Index, raw []byte) *HeaderEntry {
	t.Helper()
	entry, err := idx.AddHeader(raw)
	if err != nil {
		t.Fatal(err)
	}
	return entry
}

func TestCompactToDifficulty(t *testing.T) {
	if d := CompactToDifficulty(0x1d00ffff); d != 1.0 {
		t.Fatalf("difficulty of 0x1d00ffff is %v, want 1.0", d)
	}
	// One exponent step below the limit is 256 times harder.
	if d := CompactToDifficulty(0x1c00ffff); d != 256.0 {
		t.Fatalf("difficulty of 0x1c00ffff is %v, want 256.0", d)
	}
	// Halving the mantissa doubles the difficulty, within float error.
	if d := CompactToDifficulty(0x1d007fff); math.Abs(d-2.0) > 0.001 {
		t.Fatalf("difficulty of 0x1d007fff is %v, want ~2.0", d)
	}
}

func TestOrganizeTwoHeaderChain(t *testing.T) {
	idx := New(testMagic)
	gen := addHeader(t, idx, headerBytes(t, hash32.Nil, 0))
	h1 := addHeader(t, idx, headerBytes(t, gen.GetHash(), 1))

	if !idx.OrganizeChain(false) {
		t.Fatal("first organize reported a reorg")
	}

	if gen.BlockHeight != 0 || gen.DifficultySum != 1.0 || !gen.IsMainBranch {
		t.Fatalf("bad genesis annotations: %s", gen.Summary())
	}
	if h1.BlockHeight != 1 {
		t.Fatalf("H1 height %d, want 1", h1.BlockHeight)
	}
	if h1.DifficultySum != 2.0 {
		t.Fatalf("H1 difficultySum %v, want 2.0", h1.DifficultySum)
	}
	if idx.TopBlock() != h1 {
		t.Fatal("top block is not H1")
	}
	if gen.NextHash != h1.GetHash() {
		t.Fatal("genesis nextHash does not point at H1")
	}
	if h1.NextHash != hash32.Nil {
		t.Fatal("tip nextHash is not zero")
	}
	if idx.HeaderByHeight(0) != gen || idx.HeaderByHeight(1) != h1 {
		t.Fatal("height index mismatch")
	}
	if idx.GenesisBlock() != gen {
		t.Fatal("genesis lookup mismatch")
	}
}

func TestOrganizeOrphan(t *testing.T) {
	idx := New(testMagic)
	gen := addHeader(t, idx, headerBytes(t, hash32.Nil, 0))
	h1 := addHeader(t, idx, headerBytes(t, gen.GetHash(), 1))

	var missing hash32.T
	for i := range missing {
		missing[i] = 0xff
	}
	x := addHeader(t, idx, headerBytes(t, missing, 2))

	if !idx.OrganizeChain(false) {
		t.Fatal("organize with orphan reported a reorg")
	}
	if !x.IsOrphan {
		t.Fatal("X not marked orphan")
	}
	if x.DifficultySum != 0 {
		t.Fatalf("orphan difficultySum %v, want 0", x.DifficultySum)
	}
	if x.IsMainBranch {
		t.Fatal("orphan marked main branch")
	}
	if idx.TopBlock() != h1 {
		t.Fatal("orphan changed the top block")
	}
}

// An orphan reconnects once its missing ancestor arrives.
func TestOrganizeOrphanReconnect(t *testing.T) {
	idx := New(testMagic)
	gen := addHeader(t, idx, headerBytes(t, hash32.Nil, 0))

	aRaw := headerBytes(t, gen.GetHash(), 10)
	aHdr := parser.NewBlockHeader()
	if err := aHdr.UnmarshalBinary(aRaw); err != nil {
		t.Fatal(err)
	}

	// Child arrives before its parent.
	b := addHeader(t, idx, headerBytes(t, aHdr.GetHash(), 11))
	idx.OrganizeChain(false)
	if !b.IsOrphan {
		t.Fatal("B not marked orphan while parent is missing")
	}

	a := addHeader(t, idx, aRaw)
	idx.OrganizeChain(false)
	if b.IsOrphan || a.IsOrphan {
		t.Fatal("orphan flag survived the parent's arrival")
	}
	if idx.TopBlock() != b || b.BlockHeight != 2 {
		t.Fatalf("B did not become the tip: %s", b.Summary())
	}
}

func TestOrganizeReorg(t *testing.T) {
	idx := New(testMagic)
	gen := addHeader(t, idx, headerBytes(t, hash32.Nil, 0))
	a := addHeader(t, idx, headerBytes(t, gen.GetHash(), 1))
	b := addHeader(t, idx, headerBytes(t, a.GetHash(), 2))

	if !idx.OrganizeChain(false) {
		t.Fatal("initial organize reported a reorg")
	}
	if idx.TopBlock() != b {
		t.Fatal("tip is not B before the reorg")
	}

	// A heavier branch sharing only genesis.
	a2 := addHeader(t, idx, headerBytes(t, gen.GetHash(), 3))
	b2 := addHeader(t, idx, headerBytes(t, a2.GetHash(), 4))
	c2 := addHeader(t, idx, headerBytes(t, b2.GetHash(), 5))

	if idx.OrganizeChain(false) {
		t.Fatal("organize did not detect the reorg")
	}
	if idx.TopBlock() != c2 {
		t.Fatalf("tip after reorg is %s, want C'", idx.TopBlock().Summary())
	}
	if a.IsMainBranch || b.IsMainBranch {
		t.Fatal("old branch still labeled main after reorg")
	}
	if !a2.IsMainBranch || !b2.IsMainBranch || !c2.IsMainBranch {
		t.Fatal("new branch not labeled main after reorg")
	}
	if c2.BlockHeight != 3 || c2.DifficultySum != 4.0 {
		t.Fatalf("bad tip annotations: %s", c2.Summary())
	}

	// A subsequent organize with no new data is quiet.
	if !idx.OrganizeChain(false) {
		t.Fatal("organize after rebuild still reports a reorg")
	}
}

// The main-branch annotations satisfy the chain algebra: heights step by
// one, sums accumulate, and forward pointers invert prevHash.
func TestOrganizeChainAlgebra(t *testing.T) {
	idx := New(testMagic)
	prev := hash32.Nil
	for nonce := uint32(0); nonce < 6; nonce++ {
		raw := headerBytes(t, prev, nonce)
		entry := addHeader(t, idx, raw)
		prev = entry.GetHash()
	}
	idx.OrganizeChain(false)

	top := idx.TopBlock()
	if top == nil || top.BlockHeight != 5 {
		t.Fatal("unexpected tip")
	}
	maxSum := 0.0
	for _, entry := range idx.headers {
		if entry.IsMainBranch && entry.DifficultySum > maxSum {
			maxSum = entry.DifficultySum
		}
	}
	if top.DifficultySum != maxSum {
		t.Fatal("tip does not carry the maximum cumulative difficulty")
	}

	for h := 1; h <= int(top.BlockHeight); h++ {
		this := idx.HeaderByHeight(h)
		parent := idx.HeaderByHeight(h - 1)
		if this == nil || parent == nil {
			t.Fatalf("height index hole at %d", h)
		}
		if this.BlockHeight != parent.BlockHeight+1 {
			t.Fatalf("height algebra broken at %d", h)
		}
		if this.DifficultySum != parent.DifficultySum+this.DifficultyFlt {
			t.Fatalf("difficulty algebra broken at %d", h)
		}
		if parent.NextHash != this.GetHash() {
			t.Fatalf("forward pointer broken at %d", h)
		}
		if this.HashPrevBlock != parent.GetHash() {
			t.Fatalf("parent linkage broken at %d", h)
		}
	}
}

func TestAddHeaderValidation(t *testing.T) {
	idx := New(testMagic)
	if _, err := idx.AddHeader(make([]byte, 79)); err == nil {
		t.Fatal("accepted a 79-byte header")
	}

	raw := headerBytes(t, hash32.Nil, 0)
	first := addHeader(t, idx, raw)
	second := addHeader(t, idx, bytes.Clone(raw))
	if first != second {
		t.Fatal("duplicate insertion did not return the first entry")
	}
	if idx.NumHeaders() != 1 {
		t.Fatalf("duplicate insertion grew the map to %d", idx.NumHeaders())
	}
}
