package resilience

import (
	"time"

	"github.com/sells-group/custard-cli/internal/config"
)

// FromConfig builds retry and breaker settings from the resilience section.
// Zero values keep the defaults.
func FromConfig(c config.ResilienceConfig) (RetryConfig, CircuitBreakerConfig) {
	retry := DefaultRetryConfig()
	if c.RetryAttempts > 0 {
		retry.MaxAttempts = c.RetryAttempts
	}
	if c.RetryBackoffMs > 0 {
		retry.InitialBackoff = time.Duration(c.RetryBackoffMs) * time.Millisecond
	}
	if c.RetryMaxBackoffMs > 0 {
		retry.MaxBackoff = time.Duration(c.RetryMaxBackoffMs) * time.Millisecond
	}
	if c.RetryJitter > 0 {
		retry.JitterFraction = c.RetryJitter
	}

	breaker := DefaultCircuitBreakerConfig()
	if c.BreakerThreshold > 0 {
		breaker.FailureThreshold = c.BreakerThreshold
	}
	if c.BreakerResetSecs > 0 {
		breaker.ResetTimeout = time.Duration(c.BreakerResetSecs) * time.Second
	}
	return retry, breaker
}
