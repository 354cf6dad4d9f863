package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("threadlens:job:%s", jobID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("threadlens:ratelimit:%s", keyPrefix)
}

// ExplainLockKey guards a single explain run per prompt version across replicas.
func ExplainLockKey(promptVersion string) string {
	return fmt.Sprintf("threadlens:lock:explain:%s", promptVersion)
}
