package wrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"reflect"
)

// serviceOpBit keeps service ops apart from OpRaw..OpUser.
const serviceOpBit = 1 << 31

// MethodOp is the op RegisterName assigns to "service/method".
func MethodOp(service, method string) Op {
	return Op(crc32.ChecksumIEEE([]byte(service+"/"+method)) | serviceOpBit)
}

// RegisterName exposes the exported methods of receiver as ops, one per
// method, at MethodOp(name, method). A method may take a leading
// context.Context and must return at most a value and an error. Requests
// carry the arguments as a JSON array and responses the JSON encoded value.
func (mux *ServeMux) RegisterName(name string, receiver any) error {
	rcvr := reflect.ValueOf(receiver)
	if name == "" {
		return fmt.Errorf("wrpc: no service name for type %s", rcvr.Type())
	}

	methods := suitableMethods(rcvr)
	if len(methods) == 0 {
		return fmt.Errorf("wrpc: service %T has no suitable methods", receiver)
	}

	for method, m := range methods {
		fqName := name + "/" + method
		m := m
		mux.HandleFunc(MethodOp(name, method), func(ctx context.Context, op Op, payload []byte) ([]byte, error) {
			args, err := parseArgs(payload, m.argTypes)
			if err != nil {
				return nil, &ResponseError{Kind: RespErrReqDeserialize}
			}
			result, err := m.call(ctx, args)
			if err != nil {
				return nil, NewTextError("%s: %v", fqName, err)
			}
			data, err := json.Marshal(result)
			if err != nil {
				return nil, &ResponseError{Kind: RespErrRespSerialize}
			}
			return data, nil
		})
	}
	return nil
}

type serviceMethod struct {
	rcvr, fn reflect.Value
	hasCtx   bool
	errPos   int // -1 when the method returns no error
	argTypes []reflect.Type
}

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

func suitableMethods(rcvr reflect.Value) map[string]*serviceMethod {
	typ := rcvr.Type()
	methods := make(map[string]*serviceMethod)
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		if method.PkgPath != "" {
			continue
		}
		if m := newServiceMethod(rcvr, method.Func); m != nil {
			methods[method.Name] = m
		}
	}
	return methods
}

func newServiceMethod(rcvr, fn reflect.Value) *serviceMethod {
	ft := fn.Type()
	m := &serviceMethod{rcvr: rcvr, fn: fn, errPos: -1}

	first := 1 // receiver
	if ft.NumIn() > first && ft.In(first) == contextType {
		first++
		m.hasCtx = true
	}
	for i := first; i < ft.NumIn(); i++ {
		m.argTypes = append(m.argTypes, ft.In(i))
	}

	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0).Implements(errorType) {
			m.errPos = 0
		}
	case 2:
		if ft.Out(0).Implements(errorType) || !ft.Out(1).Implements(errorType) {
			return nil
		}
		m.errPos = 1
	default:
		return nil
	}
	return m
}

func (m *serviceMethod) call(ctx context.Context, args []reflect.Value) (any, error) {
	in := make([]reflect.Value, 0, 2+len(args))
	in = append(in, m.rcvr)
	if m.hasCtx {
		in = append(in, reflect.ValueOf(ctx))
	}
	in = append(in, args...)

	out := m.fn.Call(in)
	if m.errPos >= 0 && !out[m.errPos].IsNil() {
		return nil, out[m.errPos].Interface().(error)
	}
	if len(out) == 0 || m.errPos == 0 {
		return nil, nil
	}
	return out[0].Interface(), nil
}

// parseArgs decodes a JSON array into values of types. An empty payload or
// null means no arguments; missing trailing pointer arguments become nil.
func parseArgs(payload []byte, types []reflect.Type) ([]reflect.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	args := make([]reflect.Value, 0, len(types))

	tok, err := dec.Token()
	switch {
	case err == io.EOF || tok == nil && err == nil:
	case err != nil:
		return nil, err
	case tok == json.Delim('['):
		for i := 0; dec.More(); i++ {
			if i >= len(types) {
				return nil, fmt.Errorf("too many arguments, want at most %d", len(types))
			}
			v := reflect.New(types[i])
			if err := dec.Decode(v.Interface()); err != nil {
				return nil, fmt.Errorf("invalid argument %d: %v", i, err)
			}
			args = append(args, v.Elem())
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("non-array args")
	}

	for i := len(args); i < len(types); i++ {
		if types[i].Kind() != reflect.Ptr {
			return nil, fmt.Errorf("missing value for required argument %d", i)
		}
		args = append(args, reflect.Zero(types[i]))
	}
	return args, nil
}
