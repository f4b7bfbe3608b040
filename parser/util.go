// Copyright (c) 2025 The blockidx developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package parser

import (
	"github.com/pkg/errors"

	"github.com/blockidx/blockidxd/parser/internal/bytestring"
)

// ReadCompactSize decodes the compact integer at the start of data,
// returning the value and its encoded width.
func ReadCompactSize(data []byte) (uint64, int, error) {
	s := bytestring.String(data)
	var v uint64
	if !s.ReadCompactSize(&v) {
		return 0, 0, errors.Wrap(ErrTruncated, "reading compact size")
	}
	return v, len(data) - s.Remaining(), nil
}
