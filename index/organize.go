// Copyright (c) 2025 The blockidx developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package index

import (
	"github.com/sirupsen/logrus"

	"github.com/blockidx/blockidxd/hash32"
)

// CompactToDifficulty converts the compact nBits representation to a
// floating-point difficulty.
//
// The compact form stores an unsigned base-256 exponent in the most
// significant byte and a mantissa in the low 24 bits. Difficulty is the
// ratio of the easiest permitted target (mantissa 0xffff at exponent 29)
// to this header's target, so a smaller target yields a larger
// difficulty:
//
//	difficulty = (0xffff / mantissa) * 256^(29 - exponent)
func CompactToDifficulty(bits uint32) float64 {
	shift := int((bits >> 24) & 0xff)
	diff := float64(0x0000ffff) / float64(bits&0x00ffffff)

	for shift < 29 {
		diff *= 256.0
		shift++
	}
	for shift > 29 {
		diff /= 256.0
		shift--
	}
	return diff
}

// OrganizeChain assigns every header its height and cumulative difficulty,
// selects the tip as the header with maximum cumulative difficulty, and
// labels the winning path from genesis as the main branch. It reports
// whether the previous tip is still an ancestor of the new tip; when it is
// not (a reorg), all annotations are rebuilt from scratch before
// returning false.
//
// With forceRebuild, annotations are reset to their sentinel values first
// and recomputed.
func (idx *Index) OrganizeChain(forceRebuild bool) bool {
	if forceRebuild {
		for _, entry := range idx.headers {
			entry.resetCalc()
		}
		idx.headersByHeight = nil
	}

	// Orphan marks are provisional: the missing parent may have arrived
	// since the last organization, so orphans are re-evaluated every pass.
	for _, entry := range idx.headers {
		if entry.IsOrphan {
			entry.IsOrphan = false
			entry.DifficultyFlt = -1
			entry.DifficultySum = -1
		}
	}

	genesis := idx.GenesisBlock()
	if genesis == nil {
		Log.Warn("organize requested with no genesis header")
		return true
	}
	genesis.BlockHeight = 0
	genesis.DifficultyFlt = 1.0
	genesis.DifficultySum = 1.0
	genesis.IsMainBranch = true
	genesis.IsOrphan = false
	genesis.isFinishedCalc = true

	if idx.topBlock == nil {
		idx.topBlock = genesis
	}

	// Remember the old tip so we can check whether it survives in the new
	// organization.
	prevTop := idx.topBlock

	maxDiffSum := 0.0
	for _, entry := range idx.headers {
		diffSum := idx.traceChainDown(entry)
		if diffSum > maxDiffSum {
			maxDiffSum = diffSum
			idx.topBlock = entry
		}
	}

	// Walk down from the tip one more time, setting nextHash forward
	// pointers and the height index, until reaching a header whose
	// annotations were already final.
	top := idx.topBlock
	top.NextHash = hash32.Nil
	if need := int(top.BlockHeight) + 1; need > len(idx.headersByHeight) {
		grown := make([]*HeaderEntry, need)
		copy(grown, idx.headersByHeight)
		idx.headersByHeight = grown
	}
	// Genesis is seeded finished above, so the labeling walk below never
	// visits it; index it directly.
	idx.headersByHeight[0] = genesis

	this := top
	prevChainStillValid := this == prevTop
	for !this.isFinishedCalc {
		this.isFinishedCalc = true
		this.IsMainBranch = true
		idx.headersByHeight[this.BlockHeight] = this

		childHash := this.GetHash()
		parent := idx.headers[this.HashPrevBlock]
		if parent == nil {
			break
		}
		parent.NextHash = childHash
		this = parent

		if this == prevTop {
			prevChainStillValid = true
		}
	}

	if !prevChainStillValid {
		metricReorgs.Inc()
		Log.WithField("new_tip", hash32.Encode(idx.topBlock.GetDisplayHash())).
			Info("reorg detected, rebuilding chain organization")
		idx.OrganizeChain(true)
	}

	return prevChainStillValid
}

// traceChainDown walks prevHash pointers from start until it reaches a
// header with a known cumulative difficulty, then unwinds, accumulating
// difficulty and height onto every header it visited. It returns start's
// cumulative difficulty, or 0 for an orphan chain (one whose ancestry
// leaves the header map before reaching a solved header).
func (idx *Index) traceChainDown(start *HeaderEntry) float64 {
	if start.DifficultySum >= 0 {
		return start.DifficultySum
	}

	// Stack of headers visited on the way down, deepest last.
	stack := make([]*HeaderEntry, 0, 16)

	this := start
	for this.DifficultySum < 0 {
		this.DifficultyFlt = CompactToDifficulty(this.NBits())
		stack = append(stack, this)

		parent, ok := idx.headers[this.HashPrevBlock]
		if !ok {
			// The ancestor chain leaves the memory pool before reaching a
			// solved block, so this is an orphan chain, at least until the
			// missing parent arrives.
			idx.markOrphanChain(stack)
			return 0
		}
		this = parent
	}

	// A seed already marked orphan in this pass does not reach genesis
	// either, so everything stacked above it is an orphan too.
	if this.IsOrphan {
		idx.markOrphanChain(stack)
		return 0
	}

	seedSum := this.DifficultySum
	height := this.BlockHeight
	for i := len(stack) - 1; i >= 0; i-- {
		this = stack[i]
		seedSum += this.DifficultyFlt
		height++
		this.DifficultySum = seedSum
		this.BlockHeight = height
	}

	return start.DifficultySum
}

// markOrphanChain flags every header on the walked chain as an orphan with
// cumulative difficulty 0, so it is memoized out of future traces and can
// never win tip selection.
func (idx *Index) markOrphanChain(chain []*HeaderEntry) {
	for _, entry := range chain {
		entry.IsOrphan = true
		entry.IsMainBranch = false
		entry.DifficultySum = 0
	}
	head := chain[0]
	Log.WithFields(logrus.Fields{
		"hash":  hash32.Encode(head.GetDisplayHash()),
		"chain": len(chain),
	}).Debug("orphan chain marked")
}
