package codec

import "encoding/json"

// JSON is the standard-library JSON codec.
//
// It is the most portable option and the right choice when sidecar files
// must stay readable by non-Go tooling.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the codec used when none is configured.
//
// Persisted records carry the codec name, so existing files remain readable
// even if the default changes between releases.
var Default Codec = GoJSON{}
