// Package serialization provides the pluggable value codecs used by the
// store: a value is marshaled to bytes before compression and persistence,
// and unmarshaled after retrieval.
package serialization

import "fmt"

const (

	// JSONType selects the JSON codec.
	JSONType = "json"

	// GobType selects the gob codec.
	GobType = "gob"
)

// Codec marshals values to bytes and back.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Type() string
}

// ByType returns the codec registered under the given type name.
func ByType(name string) (Codec, error) {
	switch name {
	case JSONType:
		return JSON{}, nil
	case GobType:
		return Gob{}, nil
	default:
		return nil, fmt.Errorf("unsupported serialization type: %s", name)
	}
}
