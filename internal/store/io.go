package store

import (
	"fmt"
	"os"
)

// readFileTolerant reads path, returning (nil, nil) if it does not exist.
func readFileTolerant(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	return data, nil
}
