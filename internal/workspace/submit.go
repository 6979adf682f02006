package workspace

import (
	"fmt"
	"regexp"
	"strconv"
)

var (
	submittedRe = regexp.MustCompile(`Change (\d+) submitted\.`)
	renamedRe   = regexp.MustCompile(`Change \d+ renamed change (\d+) and submitted\.`)
)

// ParseError is returned when submit output has no recognised confirmation.
type ParseError struct {
	Output string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unrecognised submit confirmation: %q", e.Output)
}

// ParseSubmitted extracts the submitted change number from p4 submit output.
// When the server renumbers the change, the renamed number is returned.
func ParseSubmitted(output string) (int, error) {
	m := submittedRe.FindStringSubmatch(output)
	if m == nil {
		m = renamedRe.FindStringSubmatch(output)
	}
	if m == nil {
		return 0, &ParseError{Output: output}
	}
	cl, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, &ParseError{Output: output}
	}
	return cl, nil
}
