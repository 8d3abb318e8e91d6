package marketdata

import "time"

const (
	defaultBackoffMin    = time.Second
	defaultBackoffMax    = 30 * time.Second
	defaultBackoffFactor = 1.5
)

// Backoff yields reconnect delays that grow by Factor from Min up to Max. It is not safe for
// concurrent use; the client's connection loop owns it.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64

	current time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{
		Min:    defaultBackoffMin,
		Max:    defaultBackoffMax,
		Factor: defaultBackoffFactor,
	}
}

// Next returns the delay before the next attempt. The first call after Reset returns Min.
func (b *Backoff) Next() time.Duration {
	min := b.Min
	if min <= 0 {
		min = defaultBackoffMin
	}
	max := b.Max
	if max < min {
		max = min
	}
	factor := b.Factor
	if factor <= 1 {
		factor = defaultBackoffFactor
	}

	if b.current == 0 {
		b.current = min
		return b.current
	}

	next := time.Duration(float64(b.current) * factor)
	if next > max || next <= 0 {
		next = max
	}
	b.current = next
	return b.current
}

// Reset brings the delay back to Min after a successful connection.
func (b *Backoff) Reset() {
	b.current = 0
}
