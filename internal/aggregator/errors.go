package aggregator

import (
	"fmt"
	"strings"
)

// QuorumError is the one hard failure in the pipeline: fewer valid phase-1
// responses than the configured minimum. Succeeded and Failed partition the
// queried free-tier providers exactly; callers branch on it with errors.As to
// decide between retry, alerting, or a single-provider fallback.
type QuorumError struct {
	Required  int
	Succeeded []string
	Failed    []string
}

func (e *QuorumError) Error() string {
	return fmt.Sprintf(
		"phase 1 quorum not met: %d valid responses, need %d (succeeded: [%s], failed: [%s])",
		len(e.Succeeded), e.Required,
		strings.Join(e.Succeeded, ", "),
		strings.Join(e.Failed, ", "),
	)
}
