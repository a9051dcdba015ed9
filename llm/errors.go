package llm

import "errors"

// Fatal orchestration errors. Transient provider failures are recovered
// via failover and never surface to callers; these two conditions are
// the exception and propagate.
var (
	// ErrNoProvider indicates the registry holds no providers at all.
	ErrNoProvider = errors.New("no provider available")

	// ErrNoVisionProvider indicates no eligible provider supports
	// vision input for an image request.
	ErrNoVisionProvider = errors.New("no vision-capable provider available")
)
