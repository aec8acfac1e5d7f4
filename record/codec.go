package record

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// ErrCorrupt is returned by Deserialize when a byte run does not decode as
// a JSON object. Callers scanning a heap page treat this as CORRUPT_RECORD:
// skip the record and keep going.
var ErrCorrupt = errors.New("record: corrupt record")

// Serialize encodes r as a UTF-8 JSON-style object, one field per key. Field
// order within the encoded object follows encoding/json's own behavior for
// map[string]any, which sorts keys lexicographically - so two records with
// the same fields and values always serialize to identical bytes regardless
// of the order Set was called in, which is what lets HeapFile compare
// old/new lengths for the in-place update path.
func Serialize(r *Record) ([]byte, error) {
	m := r.ToMap()
	buf, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "record: serialize")
	}
	return buf, nil
}

// Deserialize decodes a byte run produced by Serialize back into a Record.
// A number written without fraction or exponent that fits in an int64
// becomes a KindInt Value, any other number a KindFloat Value. JSON does not
// keep the Int/Float distinction itself, so a Float with an integral value
// (serialized as e.g. 5) also comes back as KindInt; Value equality and
// comparison coerce numerically, so this does not change how it matches.
func Deserialize(buf []byte) (*Record, error) {
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	for k, v := range m {
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				m[k] = i
			} else if f, err := n.Float64(); err == nil {
				m[k] = f
			}
		}
	}
	return FromMap(m), nil
}
