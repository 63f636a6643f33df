package builder

import (
	"fmt"
	"strings"
)

// SizeLimitError reports a packaged artifact above its hard ceiling. For
// the shared layer this aborts the entire layer phase; for a function it
// fails that unit only.
type SizeLimitError struct {
	UnitID string
	Size   int64
	Limit  int64
	Reason string
}

func (e *SizeLimitError) Error() string {
	msg := fmt.Sprintf("artifact for %s is %d bytes, limit %d", e.UnitID, e.Size, e.Limit)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

// ClosureError reports import names a function package cannot satisfy once
// layer-provided names are excluded. Caught at build time so the gap never
// surfaces as a missing module at invocation time.
type ClosureError struct {
	UnitID  string
	Missing []string
}

func (e *ClosureError) Error() string {
	return fmt.Sprintf("package closure for %s does not satisfy imports: %s",
		e.UnitID, strings.Join(e.Missing, ", "))
}
