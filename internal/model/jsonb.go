package model

import (
	"encoding/json"
	"fmt"
)

// scanJSON unmarshals a jsonb column value into dst, tolerating both the
// []byte and string representations drivers hand back.
func scanJSON(value interface{}, dst interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", value)
	}
}
