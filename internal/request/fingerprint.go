package request

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// semanticFields is the canonical shape hashed into a fingerprint. Field order
// is fixed by the struct so the encoding is stable across processes.
type semanticFields struct {
	Centers   []string `json:"centers"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	Cycles    []string `json:"cycles"`
	Norm      string   `json:"norm"`
	Platforms string   `json:"platforms"`
	Interval  int      `json:"interval"`
}

// Fingerprint returns the SHA-256 hex digest of the request's semantic fields.
// Transport metadata (root_dir, request_id, connection_id) never contributes.
func Fingerprint(req *Request) string {
	fields := semanticFields{
		Centers:   append([]string{}, req.Centers...),
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Cycles:    append([]string{}, req.Cycles...),
		Norm:      req.Norm,
		Platforms: req.Platforms,
		Interval:  req.Interval,
	}
	// Marshalling a struct of strings, string slices and an int cannot fail.
	payload, _ := json.Marshal(fields)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// ReferenceID returns the identifier quoted back to users in failure
// responses: the caller-supplied request_id when present, else a new UUID.
func ReferenceID(req *Request) string {
	if req != nil {
		if id := strings.TrimSpace(req.RequestID); id != "" {
			return id
		}
	}
	return uuid.NewString()
}
