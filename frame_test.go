package wrpc

import (
	"bytes"
	"errors"
	"testing"
)

func TestRequestFrameLayout(t *testing.T) {
	f := RequestFrame{ID: 0x0102030405060708, Op: 0x0a0b0c0d, Payload: []byte("xy")}
	want := []byte{8, 7, 6, 5, 4, 3, 2, 1, 0x0d, 0x0c, 0x0b, 0x0a, 'x', 'y'}
	if got := f.Encode(); !bytes.Equal(got, want) {
		t.Fatalf("Encode = %x, want %x", got, want)
	}
}

func TestResponseFrameLayout(t *testing.T) {
	f := ResponseFrame{ID: 1, Status: StatusError}
	want := []byte{1, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0}
	if got := f.Encode(); !bytes.Equal(got, want) {
		t.Fatalf("Encode = %x, want %x", got, want)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	for _, payload := range [][]byte{nil, {}, []byte("payload"), bytes.Repeat([]byte{0xff}, 4096)} {
		req := RequestFrame{ID: ^uint64(0), Op: OpUser, Payload: payload}
		gotReq, err := DecodeRequest(req.Encode())
		if err != nil {
			t.Fatalf("DecodeRequest: %v", err)
		}
		if gotReq.ID != req.ID || gotReq.Op != req.Op || !bytes.Equal(gotReq.Payload, payload) {
			t.Fatalf("request round trip: got %+v, want %+v", gotReq, req)
		}

		resp := ResponseFrame{ID: 42, Status: 7, Payload: payload}
		gotResp, err := DecodeResponse(resp.Encode())
		if err != nil {
			t.Fatalf("DecodeResponse: %v", err)
		}
		if gotResp.ID != resp.ID || gotResp.Status != resp.Status || !bytes.Equal(gotResp.Payload, payload) {
			t.Fatalf("response round trip: got %+v, want %+v", gotResp, resp)
		}
	}
}

func TestFrameTooSmall(t *testing.T) {
	for n := 0; n < HeaderSize; n++ {
		buf := make([]byte, n)
		if _, err := DecodeRequest(buf); !errors.Is(err, ErrFrameTooSmall) {
			t.Fatalf("DecodeRequest(%d bytes) = %v, want ErrFrameTooSmall", n, err)
		}
		if _, err := DecodeResponse(buf); !errors.Is(err, ErrFrameTooSmall) {
			t.Fatalf("DecodeResponse(%d bytes) = %v, want ErrFrameTooSmall", n, err)
		}
	}
	if _, err := DecodeResponse(make([]byte, HeaderSize)); err != nil {
		t.Fatalf("DecodeResponse(header only) = %v", err)
	}
}
