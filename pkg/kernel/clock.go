package kernel

import "time"

// Now is the single wall-clock source used across the core so that tests can
// override it. It defaults to the real system clock.
var Now = func() time.Time { return time.Now().UTC() }
