package postgres

import "encoding/json"

// jsonBytes maps nil slices to SQL NULL rather than the JSON literal null.
func jsonBytes[T any](v []T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}

	return json.Marshal(v)
}
