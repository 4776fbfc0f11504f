package vector

import "github.com/vmihailenco/msgpack/v5"

// PayloadCodec converts a record payload between its in-memory and stored
// forms.
type PayloadCodec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// MsgpackCodec encodes payloads with msgpack. It is the codec stores
// default to.
type MsgpackCodec struct{}

// Marshal implements PayloadCodec.
func (MsgpackCodec) Marshal(v any) ([]byte, error) { return msgpack.Marshal(v) }

// Unmarshal implements PayloadCodec.
func (MsgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
