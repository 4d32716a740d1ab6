package services

import "time"

// nowUTC is the single time source for this package, isolated so tests can
// observe deterministic timestamps without faking every call site.
var nowUTC = func() time.Time { return time.Now().UTC() }
