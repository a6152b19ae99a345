package handlers

import (
	"encoding/json"
	"net/http"
)

// VersionInfo is the build metadata served at /version.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
}

var versionInfo = VersionInfo{Version: "dev"}

// SetVersionInfo installs the build metadata, normally from main's ldflags.
func SetVersionInfo(info VersionInfo) {
	versionInfo = info
}

// VersionHandler serves the build metadata.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	body, err := json.Marshal(versionInfo)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
