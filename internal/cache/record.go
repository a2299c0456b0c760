package cache

import "encoding/json"

// Record is the capability a cached value must provide: a stable schema
// version tag and a canonical byte encoding. The canonical encoding is the
// JSON form of the record's fields; the stored size of an entry is the byte
// length of that encoding.
//
// A Cache is bound to exactly one record type. The type's zero value must
// report its schema version, so keep SchemaVersion independent of field state.
type Record interface {
	SchemaVersion() string
	Encode() ([]byte, error)
}

// DecodeFunc turns a canonical encoding back into a record. It is supplied at
// construction and must reject bytes that do not describe a valid record.
type DecodeFunc[R Record] func([]byte) (R, error)

// JSONDecoder returns a DecodeFunc for record types whose canonical encoding
// is their JSON form, which is the common case.
func JSONDecoder[R Record]() DecodeFunc[R] {
	return func(data []byte) (R, error) {
		var r R
		if err := json.Unmarshal(data, &r); err != nil {
			var zero R
			return zero, err
		}
		return r, nil
	}
}
