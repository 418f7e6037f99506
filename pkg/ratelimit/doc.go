// Package ratelimit paces traffic to mp.weixin.qq.com.
//
// Two mechanisms are provided:
//
// RequestLimiter is a token bucket over golang.org/x/time/rate. Image
// fetches share one instance across all workers.
//
// Pacer sleeps a random interval between sequential listing pages,
// 3 to 6 seconds by default, to stay under the provider's frequency
// control.
//
//	pacer := ratelimit.NewPacer(3*time.Second, 6*time.Second, nil)
//	if _, err := pacer.Pause(ctx); err != nil {
//	    return err
//	}
package ratelimit
