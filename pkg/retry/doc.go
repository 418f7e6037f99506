// Package retry runs operations again after a backoff delay.
//
// The WeChat listing client uses it with MaxAttempts 2 and a
// ConstantBackoff equal to the frequency-control cooldown, so a
// rate-limited request is retried exactly once:
//
//	err := retry.Do(op, &retry.Config{
//		MaxAttempts: 2,
//		Backoff:     &retry.ConstantBackoff{Delay: time.Minute},
//		RetryIf:     errors.IsRateLimited,
//		Context:     ctx,
//	})
//
// When attempts run out Do returns an *ExhaustedError wrapping the last
// failure. Context cancellation during a wait aborts immediately.
package retry
