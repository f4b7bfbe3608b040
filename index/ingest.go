// Copyright (c) 2025 The blockidx developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package index

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/blockidx/blockidxd/parser"
)

// streamBufferSize bounds how much of a block file is held while
// ingesting; records emitted by the scan own their bytes, so the window
// can be recycled.
const streamBufferSize = 25 * 1024 * 1024

// scanState enumerates the resumable steps of the block-file frame
// reader. A frame is magic, length, header, then the transaction body;
// a refill of the streaming buffer resumes at the step that stalled.
type scanState int

const (
	stateNeedMagic scanState = iota
	stateNeedLen
	stateNeedHeader
	stateNeedTxBody
)

// LoadHeaderFile ingests a file of contiguous 80-byte headers with no
// framing, computing each header's hash on load. It returns the number of
// bytes read, or -1 with ErrBadSize when the file size is not a positive
// multiple of the header length.
func (idx *Index) LoadHeaderFile(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrap(err, "reading header file")
	}
	if len(data) == 0 || len(data)%parser.BlockHeaderLen != 0 {
		return -1, errors.Wrapf(ErrBadSize,
			"header file is %d bytes, not a positive multiple of %d",
			len(data), parser.BlockHeaderLen)
	}

	for off := 0; off < len(data); off += parser.BlockHeaderLen {
		if _, err := idx.AddHeader(data[off : off+parser.BlockHeaderLen]); err != nil {
			return -1, errors.Wrapf(err, "header at offset %d", off)
		}
	}

	Log.WithFields(logrus.Fields{
		"path":    path,
		"bytes":   len(data),
		"headers": len(data) / parser.BlockHeaderLen,
	}).Info("header file loaded")
	return int64(len(data)), nil
}

// LoadBlockFile ingests a concatenated block file framed by the network
// magic and a 4-byte block length. Headers and transactions are indexed
// by hash as they are read. It returns the number of headers indexed; on
// a framing or parse error the scan of the file stops, but every record
// already admitted is preserved.
func (idx *Index) LoadBlockFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return len(idx.headers), errors.Wrap(err, "opening block file")
	}
	defer f.Close()

	err = idx.ingestBlockStream(bufio.NewReaderSize(f, streamBufferSize))
	if err != nil {
		Log.WithFields(logrus.Fields{
			"path":  path,
			"error": err,
		}).Error("block file scan aborted")
		return len(idx.headers), err
	}

	Log.WithFields(logrus.Fields{
		"path":    path,
		"headers": len(idx.headers),
		"txs":     len(idx.txs),
	}).Info("block file loaded")
	return len(idx.headers), nil
}

func (idx *Index) ingestBlockStream(rd *bufio.Reader) error {
	var (
		state    = stateNeedMagic
		blockLen uint32
		entry    *HeaderEntry
		isDup    bool
		offset   int64
	)
	buf4 := make([]byte, 4)
	hdrBuf := make([]byte, parser.BlockHeaderLen)

	for {
		switch state {
		case stateNeedMagic:
			if _, err := io.ReadFull(rd, buf4); err != nil {
				if err == io.EOF {
					// Clean end of file between frames.
					return nil
				}
				return errors.Wrapf(parser.ErrTruncated, "frame magic at offset %d", offset)
			}
			if !bytes.Equal(buf4, idx.magic[:]) {
				return errors.Wrapf(ErrBadMagic, "offset %d: got %x want %x",
					offset, buf4, idx.magic[:])
			}
			offset += 4
			state = stateNeedLen

		case stateNeedLen:
			if _, err := io.ReadFull(rd, buf4); err != nil {
				return errors.Wrapf(parser.ErrTruncated, "frame length at offset %d", offset)
			}
			blockLen = uint32(buf4[0]) | uint32(buf4[1])<<8 |
				uint32(buf4[2])<<16 | uint32(buf4[3])<<24
			if blockLen < parser.BlockHeaderLen {
				return errors.Wrapf(ErrBadSize, "block length %d at offset %d", blockLen, offset)
			}
			offset += 4
			state = stateNeedHeader

		case stateNeedHeader:
			if _, err := io.ReadFull(rd, hdrBuf); err != nil {
				return errors.Wrapf(parser.ErrTruncated, "block header at offset %d", offset)
			}
			hdr := parser.NewBlockHeader()
			if err := hdr.UnmarshalBinary(hdrBuf); err != nil {
				return errors.Wrapf(err, "block header at offset %d", offset)
			}
			offset += parser.BlockHeaderLen
			_, isDup = idx.headers[hdr.GetHash()]
			entry = idx.insertHeader(hdr)
			if !isDup {
				entry.FileByteLoc = offset
			}
			state = stateNeedTxBody

		case stateNeedTxBody:
			body := make([]byte, int(blockLen)-parser.BlockHeaderLen)
			if _, err := io.ReadFull(rd, body); err != nil {
				return errors.Wrapf(parser.ErrTruncated, "block payload at offset %d", offset)
			}
			if err := idx.indexTxBody(entry, body, isDup); err != nil {
				return errors.Wrapf(err, "block payload at offset %d", offset)
			}
			offset += int64(len(body))
			metricBlocksIngested.Inc()
			state = stateNeedMagic
		}
	}
}

// indexTxBody parses a block's transaction region: count, then each
// transaction in order. Transactions are inserted keyed by hash (first
// insertion wins) and appended to the owning header's list.
func (idx *Index) indexTxBody(entry *HeaderEntry, body []byte, isDup bool) error {
	if isDup {
		// The header was already indexed, along with its transactions.
		return nil
	}

	numTx, width, err := parser.ReadCompactSize(body)
	if err != nil {
		return errors.Wrap(err, "reading tx count")
	}
	rest := body[width:]

	entry.NumTx = uint32(numTx)
	entry.TxRefs = make([]*parser.Transaction, 0, numTx)
	for i := uint64(0); i < numTx; i++ {
		tx := &parser.Transaction{}
		rest, err = tx.ParseFromSlice(rest)
		if err != nil {
			return errors.Wrapf(err, "parsing transaction %d", i)
		}
		hash := tx.Hash()
		if existing, ok := idx.txs[hash]; ok {
			tx = existing
		} else {
			idx.txs[hash] = tx
			metricTxIndexed.Inc()
		}
		entry.TxRefs = append(entry.TxRefs, tx)
	}
	if len(rest) != 0 {
		return errors.Errorf("%d trailing bytes after %d transactions", len(rest), numTx)
	}
	return nil
}
