// Copyright (c) 2025 The blockidx developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package parser

import (
	"github.com/pkg/errors"

	"github.com/blockidx/blockidxd/hash32"
	"github.com/blockidx/blockidxd/parser/internal/bytestring"
)

// BlockHeaderLen is the serialized size of a block header. The layout is
// fixed: version, previous-block hash, merkle root, timestamp, difficulty
// bits, nonce.
const BlockHeaderLen = 80

// RawBlockHeader holds the wire fields of a block header.
type RawBlockHeader struct {
	// The block version number indicates which set of block validation
	// rules to follow.
	Version uint32

	// A double-SHA-256 hash in internal byte order of the previous block's
	// header. All zeros for a genesis header.
	HashPrevBlock hash32.T

	// A double-SHA-256 hash in internal byte order derived from the hashes
	// of all transactions included in this block.
	HashMerkleRoot hash32.T

	// The block time is a Unix epoch time (UTC) when the miner started
	// hashing the header (according to the miner).
	Time uint32

	// An encoded version of the target threshold this block's header hash
	// must be less than or equal to, in the compact nBits format. Kept as
	// raw bytes; NBits decodes them.
	NBitsBytes [4]byte

	// An arbitrary field that miners can change to modify the header hash
	// in order to produce a hash less than or equal to the target
	// threshold.
	Nonce uint32
}

// NBits returns the compact difficulty encoding as a little-endian uint32.
func (hdr *RawBlockHeader) NBits() uint32 {
	b := hdr.NBitsBytes
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// MarshalBinary returns the block header in serialized form.
func (hdr *RawBlockHeader) MarshalBinary() ([]byte, error) {
	w := bytestring.NewWriter(BlockHeaderLen)
	w.WriteUint32(hdr.Version)
	w.Write(hdr.HashPrevBlock[:])
	w.Write(hdr.HashMerkleRoot[:])
	w.WriteUint32(hdr.Time)
	w.Write(hdr.NBitsBytes[:])
	w.WriteUint32(hdr.Nonce)
	return w.Bytes(), nil
}

// BlockHeader extends RawBlockHeader by adding a cache for the block hash.
type BlockHeader struct {
	*RawBlockHeader
	cachedHash hash32.T
}

// NewBlockHeader return a pointer to a new block header instance.
func NewBlockHeader() *BlockHeader {
	return &BlockHeader{
		RawBlockHeader: new(RawBlockHeader),
	}
}

// ParseFromSlice parses the block header struct from the provided byte
// slice, advancing over the bytes read. If successful it returns the rest
// of the slice, otherwise it returns the input slice unaltered along with
// an error.
func (hdr *BlockHeader) ParseFromSlice(in []byte) (rest []byte, err error) {
	s := bytestring.String(in)

	if hdr.RawBlockHeader == nil {
		hdr.RawBlockHeader = new(RawBlockHeader)
	}

	if !s.ReadUint32(&hdr.Version) {
		return in, errors.Wrap(ErrTruncated, "reading header version")
	}

	var b32 []byte
	if !s.ReadBytes(&b32, 32) {
		return in, errors.Wrap(ErrTruncated, "reading HashPrevBlock")
	}
	hdr.HashPrevBlock = hash32.T(b32)

	if !s.ReadBytes(&b32, 32) {
		return in, errors.Wrap(ErrTruncated, "reading HashMerkleRoot")
	}
	hdr.HashMerkleRoot = hash32.T(b32)

	if !s.ReadUint32(&hdr.Time) {
		return in, errors.Wrap(ErrTruncated, "reading timestamp")
	}

	var b4 []byte
	if !s.ReadBytes(&b4, 4) {
		return in, errors.Wrap(ErrTruncated, "reading NBits bytes")
	}
	hdr.NBitsBytes = [4]byte(b4)

	if !s.ReadUint32(&hdr.Nonce) {
		return in, errors.Wrap(ErrTruncated, "reading nonce")
	}

	hdr.cachedHash = hash32.Nil
	return []byte(s), nil
}

// UnmarshalBinary parses the header from exactly 80 bytes.
func (hdr *BlockHeader) UnmarshalBinary(data []byte) error {
	rest, err := hdr.ParseFromSlice(data)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return errors.Errorf("block header: %d trailing bytes", len(rest))
	}
	return nil
}

// MarshalBinary returns the block header in serialized form.
func (hdr *BlockHeader) MarshalBinary() ([]byte, error) {
	return hdr.RawBlockHeader.MarshalBinary()
}

// GetHash returns the block hash in little-endian wire order, computed
// once and cached.
func (hdr *BlockHeader) GetHash() hash32.T {
	if hdr.cachedHash == hash32.Nil {
		ser, _ := hdr.MarshalBinary()
		hdr.cachedHash = hash32.Sum(ser)
	}
	return hdr.cachedHash
}

// GetDisplayHash returns the block hash in big-endian display order.
func (hdr *BlockHeader) GetDisplayHash() hash32.T {
	return hash32.Reverse(hdr.GetHash())
}

// GetDisplayPrevHash returns the block's previous hash in big-endian
// display order.
func (hdr *BlockHeader) GetDisplayPrevHash() hash32.T {
	return hash32.Reverse(hdr.HashPrevBlock)
}

// BlockHeaderView is a non-owning header over a backing buffer, which must
// outlive the view.
type BlockHeaderView struct {
	data []byte
}

// ParseFromSlice binds the view to the header at the start of data,
// returning the remainder of the slice.
func (v *BlockHeaderView) ParseFromSlice(data []byte) (rest []byte, err error) {
	if len(data) < BlockHeaderLen {
		return nil, errors.Wrap(ErrTruncated, "reading block header")
	}
	v.data = data[:BlockHeaderLen]
	return data[BlockHeaderLen:], nil
}

func (v *BlockHeaderView) u32At(off int) uint32 {
	d := v.data[off : off+4]
	return uint32(d[0]) | uint32(d[1])<<8 | uint32(d[2])<<16 | uint32(d[3])<<24
}

// Version returns the block version number.
func (v *BlockHeaderView) Version() uint32 {
	return v.u32At(0)
}

// HashPrevBlock returns the parent hash.
func (v *BlockHeaderView) HashPrevBlock() hash32.T {
	return hash32.FromSlice(v.data[4:36])
}

// HashMerkleRoot returns the merkle root.
func (v *BlockHeaderView) HashMerkleRoot() hash32.T {
	return hash32.FromSlice(v.data[36:68])
}

// Time returns the header timestamp.
func (v *BlockHeaderView) Time() uint32 {
	return v.u32At(68)
}

// NBits returns the compact difficulty encoding as a little-endian uint32.
func (v *BlockHeaderView) NBits() uint32 {
	return v.u32At(72)
}

// Nonce returns the header nonce.
func (v *BlockHeaderView) Nonce() uint32 {
	return v.u32At(76)
}

// GetHash computes the block hash over the backing bytes.
func (v *BlockHeaderView) GetHash() hash32.T {
	return hash32.Sum(v.data)
}

// Bytes returns the view's underlying serialization.
func (v *BlockHeaderView) Bytes() []byte {
	return v.data
}

// ToBlockHeader copies the view into an owning header.
func (v *BlockHeaderView) ToBlockHeader() (*BlockHeader, error) {
	hdr := NewBlockHeader()
	if err := hdr.UnmarshalBinary(v.data); err != nil {
		return nil, err
	}
	return hdr, nil
}
