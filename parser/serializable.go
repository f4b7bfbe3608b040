package parser

import "encoding"

// Serializable is implemented by every owning record type: headers,
// outpoints, inputs, outputs, transactions.
type Serializable interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

var (
	_ Serializable = (*BlockHeader)(nil)
	_ Serializable = (*OutPoint)(nil)
	_ Serializable = (*TxIn)(nil)
	_ Serializable = (*TxOut)(nil)
	_ Serializable = (*Transaction)(nil)
)
