// Copyright (c) 2025 The blockidx developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package parser

import "errors"

// ErrTruncated is returned whenever a record codec runs out of input before
// the record is complete. Callers wrap it with the field being read.
var ErrTruncated = errors.New("input truncated")
