package rmapi

import (
	"encoding/json"
	"fmt"
)

// StompVerification is the verifystomp response body.
type StompVerification struct {
	ValidRequest           bool            `json:"validRequest"`
	NonBinaryFilesResolved bool            `json:"nonBinaryFilesResolved"`
	RemainingAllBinary     bool            `json:"remainingAllBinary"`
	Files                  json.RawMessage `json:"files,omitempty"`
}

// StompFile is one entry of StompVerification.Files.
type StompFile struct {
	TargetFileName string `json:"targetFileName"`
	ResolveResult  string `json:"resolveResult,omitempty"`
}

// FileList decodes Files. The service sends a non-array value when there is
// nothing to list; ok is false in that case.
func (v *StompVerification) FileList() (files []StompFile, ok bool) {
	if len(v.Files) == 0 || json.Unmarshal(v.Files, &files) != nil {
		return nil, false
	}
	return files, true
}

// Summary is a one-line description for log output.
func (v *StompVerification) Summary() string {
	first := fmt.Sprintf("no files (%s)", string(v.Files))
	if files, ok := v.FileList(); ok && len(files) > 0 {
		first = files[0].TargetFileName
	}
	return fmt.Sprintf("valid=%t nonBinaryResolved=%t remainingAllBinary=%t first=%s",
		v.ValidRequest, v.NonBinaryFilesResolved, v.RemainingAllBinary, first)
}

// OpResult is the raw outcome of an operation whose status is interpreted by
// the caller.
type OpResult struct {
	StatusCode int
	Body       string
}

// APIError is returned when the service answers with a status the operation
// does not accept.
type APIError struct {
	Op         string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rmapi: %s %s: HTTP %d: %s", e.Op, e.URL, e.StatusCode, e.Body)
}
