package serialization

import (
	"bytes"
	"encoding/gob"
)

// Gob is the gob-based codec. Values decoded with it must be registered
// concrete types, as usual with gob.
type Gob struct{}

// Marshal serializes the input value using gob encoding.
func (Gob) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes gob-encoded data into the provided variable v.
func (Gob) Unmarshal(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (Gob) Type() string {
	return GobType
}
