// Copyright (c) 2025 The blockidx developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package index

import (
	"fmt"

	"github.com/blockidx/blockidxd/hash32"
	"github.com/blockidx/blockidxd/parser"
)

// HeaderEntry is a block header plus everything the organizer derives for
// it. The wire fields come from the embedded parser.BlockHeader; the rest
// is annotation state. A forced rebuild resets the organizer's fields
// (NextHash, height, difficulties, IsMainBranch) to sentinels and keeps
// the block-file fields (NumTx, FileByteLoc, TxRefs).
type HeaderEntry struct {
	*parser.BlockHeader

	// NextHash names the chosen child on the main branch; zero for the tip
	// and for unlabeled headers. Reassigned on reorg.
	NextHash hash32.T

	// BlockHeight is 0 for genesis. Meaningful only once traced.
	BlockHeight uint32

	// DifficultyFlt is the decoded difficulty of this header alone;
	// DifficultySum accumulates from genesis through this header. Both are
	// -1 until the organizer has traced the header.
	DifficultyFlt float64
	DifficultySum float64

	IsMainBranch bool
	IsOrphan     bool

	// isFinishedCalc is organizer bookkeeping: the annotations above are
	// current.
	isFinishedCalc bool

	// NumTx and FileByteLoc record, for headers that arrived from a block
	// file, the transaction count and the byte offset of the block payload
	// in that file.
	NumTx       uint32
	FileByteLoc int64

	// TxRefs holds the header's transactions in block order.
	TxRefs []*parser.Transaction
}

func newHeaderEntry(hdr *parser.BlockHeader) *HeaderEntry {
	return &HeaderEntry{
		BlockHeader:   hdr,
		DifficultyFlt: -1,
		DifficultySum: -1,
	}
}

// resetCalc returns the organizer annotations to their sentinel values.
func (h *HeaderEntry) resetCalc() {
	h.DifficultySum = -1
	h.DifficultyFlt = -1
	h.BlockHeight = 0
	h.isFinishedCalc = false
	h.IsMainBranch = false
	h.NextHash = hash32.Nil
}

// Summary renders a one-line description for reports and logs.
func (h *HeaderEntry) Summary() string {
	return fmt.Sprintf("height=%d hash=%s diffSum=%.2f main=%v orphan=%v ntx=%d",
		h.BlockHeight, hash32.Encode(h.GetDisplayHash()), h.DifficultySum,
		h.IsMainBranch, h.IsOrphan, h.NumTx)
}
