package jsoncfg

import (
	"encoding/json"
	"fmt"
)

// MustMarshal marshals v or panics. Reserved for payloads built from static
// structures where a marshal failure is a programming error.
func MustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("json marshal: %w", err))
	}
	return b
}
