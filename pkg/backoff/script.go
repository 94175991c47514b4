package backoff

import (
	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
)

// DelayFunc computes the attempt delay, in seconds, for a given retry
// count (spec.md §4.4 step 3's getDownloadDelay).
type DelayFunc func(retries int) float64

// ScriptedDelayFunc compiles a Tengo expression into a DelayFunc, the way
// glorpus-work-gotya/pkg/hooks.TengoExecutor compiles lifecycle-hook
// scripts. The script has "retries" bound in scope and must set a global
// "seconds" to the delay it wants, e.g.:
//
//	seconds := 10 + 30*retries
//
// Scripts that error or fail to set "seconds" fall back to fallback.
func ScriptedDelayFunc(script string, fallback DelayFunc) DelayFunc {
	compiled := []byte(script)
	return func(retries int) float64 {
		s := tengo.NewScript(compiled)
		s.SetImports(stdlib.GetModuleMap("math"))
		if err := s.Add("retries", retries); err != nil {
			return fallback(retries)
		}
		ran, err := s.Run()
		if err != nil {
			return fallback(retries)
		}
		v := ran.Get("seconds")
		if v == nil {
			return fallback(retries)
		}
		switch val := v.Value().(type) {
		case int64:
			return float64(val)
		case float64:
			return val
		default:
			return fallback(retries)
		}
	}
}
