package journal

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode encodes call arguments with Core Deterministic Encoding
// (RFC 8949 §4.2): sorted map keys, shortest integers, definite lengths.
// Identical arguments always hash identically.
var encMode cbor.EncMode

// decMode ignores unknown fields so older binaries can replay newer entries
// that only add optional arguments.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("journal: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("journal: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeArgs encodes call arguments for storage in an entry.
func EncodeArgs(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// DecodeArgs decodes an entry's arguments into v.
func DecodeArgs(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Diagnose renders encoded arguments in CBOR diagnostic notation for
// operator-facing output.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
