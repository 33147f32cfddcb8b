package wrpc

import "strconv"

// Op selects the operation, and with it the serialization path, of a request.
type Op uint32

const (
	OpRaw   Op = 0
	OpBorsh Op = 1
	OpSerde Op = 2
	OpUser  Op = 0xff
)

func (op Op) String() string {
	switch op {
	case OpRaw:
		return "raw"
	case OpBorsh:
		return "borsh"
	case OpSerde:
		return "serde"
	case OpUser:
		return "user"
	}
	return "op(" + strconv.FormatUint(uint64(op), 10) + ")"
}
