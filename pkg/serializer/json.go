package serializer

import "encoding/json"

// JSON is the standard-library JSON codec. Restricted to
// JSON-representable values (numbers decode as float64), but safe to
// decode from untrusted peers.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (JSON) Name() string { return "json" }

func (JSON) Format() Format { return FormatJSON }

func (JSON) SafeForUntrusted() bool { return true }
