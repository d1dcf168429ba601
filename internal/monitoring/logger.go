package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Infof logs routine operational events: session starts, mode changes,
// calibration fits applied.
func Infof(format string, v ...interface{}) {
	Logf("[INFO] "+format, v...)
}

// Opsf logs events an operator watching the console should notice:
// dropped bursts past a threshold, a subscriber removed for falling
// behind, a calibration solve that produced high residuals.
func Opsf(format string, v ...interface{}) {
	Logf("[OPS] "+format, v...)
}

// Tracef logs per-burst diagnostic detail, noisy enough that it is
// expected to be filtered out in normal operation by whatever consumes
// Logf's output.
func Tracef(format string, v ...interface{}) {
	Logf("[TRACE] "+format, v...)
}
