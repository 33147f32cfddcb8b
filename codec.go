package wrpc

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/near/borsh-go"
)

// Codec turns values into payload bytes and back. Each direction may fail independently.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// RawCodec passes bytes through untouched.
type RawCodec struct{}

func (RawCodec) Marshal(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case *[]byte:
		if b == nil {
			return nil, nil
		}
		return *b, nil
	case string:
		return []byte(b), nil
	}
	return nil, fmt.Errorf("raw codec: unsupported type %T", v)
}

func (RawCodec) Unmarshal(data []byte, v any) error {
	switch b := v.(type) {
	case *[]byte:
		*b = append((*b)[:0], data...)
		return nil
	case *string:
		*b = string(data)
		return nil
	}
	return fmt.Errorf("raw codec: unsupported type %T", v)
}

// BorshCodec implements the Borsh binary format.
type BorshCodec struct{}

func (BorshCodec) Marshal(v any) ([]byte, error) { return borshSerialize(v) }

func (BorshCodec) Unmarshal(data []byte, v any) error { return borshDeserialize(v, data) }

// borsh-go panics on some malformed input, so both directions recover.
func borshSerialize(v any) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("borsh: %v", r)
		}
	}()
	return borsh.Serialize(v)
}

func borshDeserialize(v any, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("borsh: %v", r)
		}
	}()
	return borsh.Deserialize(v, data)
}

// JSONCodec is the self describing path used by OpSerde.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// CodecRegistry maps ops to codecs.
type CodecRegistry struct {
	mu sync.RWMutex
	m  map[Op]Codec
}

// NewCodecRegistry returns a registry with codecs for OpRaw, OpBorsh and OpSerde.
func NewCodecRegistry() *CodecRegistry {
	return &CodecRegistry{m: map[Op]Codec{
		OpRaw:   RawCodec{},
		OpBorsh: BorshCodec{},
		OpSerde: JSONCodec{},
	}}
}

// Register installs or replaces the codec for op.
func (r *CodecRegistry) Register(op Op, c Codec) {
	if c == nil {
		panic("wrpc: nil codec")
	}
	r.mu.Lock()
	r.m[op] = c
	r.mu.Unlock()
}

// Lookup returns the codec for op.
func (r *CodecRegistry) Lookup(op Op) (c Codec, ok bool) {
	r.mu.RLock()
	c, ok = r.m[op]
	r.mu.RUnlock()
	return
}
