package worker

import "encoding/json"

func unmarshalMetadata(raw string, dst interface{}) error {
	return json.Unmarshal([]byte(raw), dst)
}
