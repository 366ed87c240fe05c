// Package instanceid persists a per-process UUID across restarts, so a
// service's identity in logs and status output survives a crash/restart
// cycle instead of changing every time.
package instanceid

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// GetOrCreate reads the UUID stored at path, or generates and persists a
// new one if path does not exist yet.
func GetOrCreate(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if _, parseErr := uuid.Parse(id); parseErr == nil {
			return id, nil
		}
		// Fall through and regenerate: the file is present but corrupt.
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("instanceid: read %s: %w", path, err)
	}

	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0644); err != nil {
		return "", fmt.Errorf("instanceid: write %s: %w", path, err)
	}
	return id, nil
}
