// Package version reports the build version the daemon logs on startup.
package version

import (
	"encoding/json"
	"log"
	"os"
)

// Info is the contents of version.json in the working directory.
type Info struct {
	Version string `json:"version"`
}

const unknownVersion = "0.0.0-dev"

// Load reads version.json from the working directory, falling back to an
// unknown placeholder when it is missing or malformed. Absence is expected
// in a dev checkout, not an error worth failing startup over.
func Load() Info {
	data, err := os.ReadFile("version.json")
	if err != nil {
		log.Printf("version: version.json not found, using %s", unknownVersion)
		return Info{Version: unknownVersion}
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		log.Printf("version: could not parse version.json: %v", err)
		return Info{Version: unknownVersion}
	}
	return info
}
