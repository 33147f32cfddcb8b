package wrpc

import (
	"bytes"
	"errors"
	"testing"

	"github.com/near/borsh-go"
)

type testReq struct {
	Enum   borsh.Enum `borsh_enum:"true"`
	First  struct{ V uint32 }
	Second struct{ V uint64 }
	Third  struct{ V string }
}

func TestBorshEnumLayout(t *testing.T) {
	var req testReq
	req.Enum = 1
	req.Second.V = 888

	data, err := BorshCodec{}.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := []byte{1, 0x78, 0x03, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(data, want) {
		t.Fatalf("Marshal = %x, want %x", data, want)
	}

	var got testReq
	if err := (BorshCodec{}).Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Enum != 1 || got.Second.V != 888 {
		t.Fatalf("got %+v", got)
	}
}

func TestResponseErrorWire(t *testing.T) {
	for _, re := range []*ResponseError{
		{Kind: RespErrNoData},
		{Kind: RespErrReqDeserialize},
		{Kind: RespErrData, Data: []byte{1, 2, 3}},
		{Kind: RespErrText, Text: "boom"},
		{Kind: RespErrMalformed},
	} {
		data, err := re.MarshalBinary()
		if err != nil {
			t.Fatalf("MarshalBinary(%v): %v", re.Kind, err)
		}
		if data[0] != byte(re.Kind) {
			t.Fatalf("variant byte %d, want %d", data[0], re.Kind)
		}
		got := new(ResponseError)
		if err := got.UnmarshalBinary(data); err != nil {
			t.Fatalf("UnmarshalBinary(%v): %v", re.Kind, err)
		}
		if got.Kind != re.Kind || got.Text != re.Text || !bytes.Equal(got.Data, re.Data) {
			t.Fatalf("got %+v, want %+v", got, re)
		}
		if !errors.Is(got, &ResponseError{Kind: re.Kind}) {
			t.Fatalf("errors.Is by kind failed for %v", re.Kind)
		}
	}

	text, _ := NewTextError("hi").MarshalBinary()
	if want := []byte{byte(RespErrText), 2, 0, 0, 0, 'h', 'i'}; !bytes.Equal(text, want) {
		t.Fatalf("text error = %x, want %x", text, want)
	}
	data, _ := (&ResponseError{Kind: RespErrData, Data: []byte{1, 2, 3}}).MarshalBinary()
	if want := []byte{byte(RespErrData), 3, 0, 0, 0, 1, 2, 3}; !bytes.Equal(data, want) {
		t.Fatalf("data error = %x, want %x", data, want)
	}
	unit, _ := (&ResponseError{Kind: RespErrUnknownOp}).MarshalBinary()
	if want := []byte{byte(RespErrUnknownOp)}; !bytes.Equal(unit, want) {
		t.Fatalf("unknown op error = %x, want %x", unit, want)
	}

	for _, bad := range [][]byte{nil, {0xee}, {byte(RespErrText), 9, 0}} {
		if err := new(ResponseError).UnmarshalBinary(bad); err == nil {
			t.Fatalf("UnmarshalBinary(%x) succeeded", bad)
		}
	}
	if _, err := (&ResponseError{Kind: 200}).MarshalBinary(); err == nil {
		t.Fatal("MarshalBinary of invalid kind succeeded")
	}
}

func TestRawCodec(t *testing.T) {
	var c RawCodec
	data, err := c.Marshal("abc")
	if err != nil || string(data) != "abc" {
		t.Fatalf("Marshal = %q, %v", data, err)
	}
	var out []byte
	if err := c.Unmarshal([]byte("xyz"), &out); err != nil || string(out) != "xyz" {
		t.Fatalf("Unmarshal = %q, %v", out, err)
	}
	if _, err := c.Marshal(3.14); err == nil {
		t.Fatal("Marshal(float) succeeded")
	}
}

func TestCodecRegistry(t *testing.T) {
	r := NewCodecRegistry()
	for _, op := range []Op{OpRaw, OpBorsh, OpSerde} {
		if _, ok := r.Lookup(op); !ok {
			t.Fatalf("no default codec for %v", op)
		}
	}
	if _, ok := r.Lookup(OpUser); ok {
		t.Fatal("unexpected codec for OpUser")
	}
	r.Register(OpUser, JSONCodec{})
	if c, ok := r.Lookup(OpUser); !ok || c != (JSONCodec{}) {
		t.Fatalf("Lookup(OpUser) = %v, %v", c, ok)
	}
}
