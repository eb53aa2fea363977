package schema

import (
	"encoding/json"

	"media_tracker/internal/remote"
)

func encodeData(v any) (remote.Data, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var d remote.Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return d, nil
}

func decodeData(d remote.Data, v any) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
