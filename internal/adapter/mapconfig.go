package adapter

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
)

// DecodeMapConfig decodes a SourceDescriptor.Config map (already parsed
// from the source's TOML table by internal/config) into an adapter's own
// strongly-typed Config struct (spec.md §4.4/§9: "each adapter parses it
// into its own strongly-typed config record at construction"). It works by
// re-encoding the map back to TOML and decoding it into out, reusing
// BurntSushi/toml rather than pulling in a second decode library — the raw
// map is itself just the uninterpreted table BurntSushi/toml produced for
// the "config" key in the first place.
func DecodeMapConfig(raw map[string]interface{}, out interface{}) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(raw); err != nil {
		return fmt.Errorf("adapter: encoding source config: %w", err)
	}
	if _, err := toml.Decode(buf.String(), out); err != nil {
		return fmt.Errorf("adapter: decoding source config: %w", err)
	}
	return nil
}
