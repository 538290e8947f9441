package pg

import (
	"encoding/json"
)

func metadataJSON(m map[string]string) []byte {
	if len(m) == 0 {
		return []byte(`{}`)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return []byte(`{}`)
	}
	return data
}

func decodeMetadata(raw []byte) map[string]string {
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func nullableRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
