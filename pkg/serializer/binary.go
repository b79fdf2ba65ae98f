package serializer

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"reflect"
	"time"

	"github.com/valyala/bytebufferpool"
)

func init() {
	// Concrete types allowed inside interface-typed map values. Anything
	// else must be registered by the caller before the first Marshal.
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register([]byte(nil))
	gob.Register(time.Time{})
}

// Binary is the gob codec. It round-trips arbitrary registered Go values,
// which makes it the default for cooperating processes built from the
// same binary -- and unsafe to decode from senders you don't trust.
type Binary struct{}

// Marshal gob-encodes v.
func (Binary) Marshal(v any) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := gob.NewEncoder(buf).Encode(&v); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.B)
	return out, nil
}

// Unmarshal gob-decodes data into v. Values travel inside an interface
// envelope so the header-declared format alone is enough to decode; v must
// be a non-nil pointer whose element type the decoded value assigns to.
func (Binary) Unmarshal(data []byte, v any) error {
	var envelope any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&envelope); err != nil {
		return err
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("binary: unmarshal target must be a non-nil pointer, got %T", v)
	}
	ev := reflect.ValueOf(envelope)
	if !ev.IsValid() {
		rv.Elem().Set(reflect.Zero(rv.Elem().Type()))
		return nil
	}
	if !ev.Type().AssignableTo(rv.Elem().Type()) {
		return fmt.Errorf("binary: cannot assign decoded %s to %s", ev.Type(), rv.Elem().Type())
	}
	rv.Elem().Set(ev)
	return nil
}

func (Binary) Name() string { return "binary" }

func (Binary) Format() Format { return FormatBinary }

func (Binary) SafeForUntrusted() bool { return false }
