package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const serverIDPrefix = "azmsg-"

// GetPersistentServerID returns a stable id for this replica. The override
// wins, then storagePath/.server_id, then the hostname. As a last resort a
// random id is generated and persisted for the next start.
func GetPersistentServerID(override, storagePath string) string {
	if override != "" {
		return override
	}

	idFile := filepath.Join(storagePath, ".server_id")
	if data, err := os.ReadFile(idFile); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}

	if hostname, err := os.Hostname(); err == nil && hostname != "localhost" {
		if clean := sanitizeKeyPart(hostname); clean != "" {
			return serverIDPrefix + clean
		}
	}

	newID := serverIDPrefix + strings.SplitN(uuid.NewString(), "-", 2)[0]
	_ = os.MkdirAll(storagePath, 0755)
	_ = os.WriteFile(idFile, []byte(newID), 0644)
	return newID
}

// sanitizeKeyPart keeps only characters that are safe inside a valkey key.
func sanitizeKeyPart(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return -1
	}, s)
}
