package dedupe

// Option configures the in-memory Deduper.
type Option func(*closeLog)

// WithMaxSize caps how many keys are remembered. Zero or less keeps every
// key.
func WithMaxSize(n int) Option {
	return func(d *closeLog) {
		d.maxSize = n
	}
}
