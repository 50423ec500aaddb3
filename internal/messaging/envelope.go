package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultRetryDelay and DefaultMaxTries are the backoff attached to a new
	// unit of work unless the orchestrator is configured otherwise.
	DefaultRetryDelay = time.Second
	DefaultMaxTries   = 5

	retryBase  = 5
	retryScale = time.Second
)

// Backoff is the retry policy carried in-band with every envelope. It is
// attached when a unit of work is created and travels unchanged across retries
// of that unit, so retries survive process restarts.
type Backoff struct {
	Delay    time.Duration
	MaxTries int
}

// DefaultBackoff is the policy used when none is configured.
func DefaultBackoff() Backoff {
	return Backoff{Delay: DefaultRetryDelay, MaxTries: DefaultMaxTries}
}

type backoffWire struct {
	DelayMs  int64 `json:"delayMs"`
	MaxTries int   `json:"maxTries"`
}

// MarshalJSON encodes the delay as integer milliseconds on the wire.
func (b Backoff) MarshalJSON() ([]byte, error) {
	return json.Marshal(backoffWire{
		DelayMs:  b.Delay.Milliseconds(),
		MaxTries: b.MaxTries,
	})
}

func (b *Backoff) UnmarshalJSON(data []byte) error {
	var w backoffWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	b.Delay = time.Duration(w.DelayMs) * time.Millisecond
	b.MaxTries = w.MaxTries
	return nil
}

// Envelope wraps every command and result exchanged over the broker. The
// eventId is minted by the producer of a new causal step and propagated
// unchanged through participant results and retries of the same unit of work,
// which is what makes deduplication possible end to end.
type Envelope[T any] struct {
	EventID    string  `json:"eventId"`
	CurrentTry int     `json:"currentTry"`
	Backoff    Backoff `json:"backoff"`
	Data       T       `json:"data"`
}

// NewEnvelope starts a new unit of work with the default backoff.
func NewEnvelope[T any](data T) Envelope[T] {
	return NewEnvelopeWithBackoff(data, DefaultBackoff())
}

// NewEnvelopeWithBackoff starts a new unit of work with the given policy.
func NewEnvelopeWithBackoff[T any](data T, b Backoff) Envelope[T] {
	return Envelope[T]{
		EventID:    uuid.NewString(),
		CurrentTry: 0,
		Backoff:    b,
		Data:       data,
	}
}

// Respond builds a result envelope that carries the identity and retry state
// of the command it answers. Participants echo the orchestrator's counter so
// it stays authoritative end to end.
func Respond[C, R any](cmd Envelope[C], data R) Envelope[R] {
	return Envelope[R]{
		EventID:    cmd.EventID,
		CurrentTry: cmd.CurrentTry,
		Backoff:    cmd.Backoff,
		Data:       data,
	}
}

// Retry derives the next attempt of the same unit of work: the try ordinal is
// incremented, eventId and backoff are preserved, and the payload is replaced
// with the command to re-issue.
func Retry[R, C any](result Envelope[R], cmd C) Envelope[C] {
	return Envelope[C]{
		EventID:    result.EventID,
		CurrentTry: result.CurrentTry + 1,
		Backoff:    result.Backoff,
		Data:       cmd,
	}
}

// Exhausted reports whether the unit of work has run out of retries.
func (e Envelope[T]) Exhausted() bool {
	return e.CurrentTry > e.Backoff.MaxTries
}

// RetryDelay computes the broker-side hold before this attempt is delivered:
// backoff.delay + base^currentTry * scale. The schedule grows aggressively, a
// few fast retries followed by long waits.
func (e Envelope[T]) RetryDelay() time.Duration {
	pow := time.Duration(1)
	for i := 0; i < e.CurrentTry; i++ {
		pow *= retryBase
	}
	return e.Backoff.Delay + pow*retryScale
}

// Encode serializes the envelope for publishing.
func (e Envelope[T]) Encode() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("messaging: encode envelope: %w", err)
	}
	return body, nil
}

// Decode parses an envelope from a delivery body and validates the payload at
// the consumer boundary. A decode error means the message is malformed and
// will never succeed; callers surface it so the broker dead-letters the
// delivery.
func Decode[T any](body []byte) (Envelope[T], error) {
	var e Envelope[T]
	if err := json.Unmarshal(body, &e); err != nil {
		return e, fmt.Errorf("messaging: decode envelope: %w", err)
	}
	if e.EventID == "" {
		return e, fmt.Errorf("messaging: envelope is missing eventId")
	}
	if err := validate.Struct(e.Data); err != nil {
		return e, fmt.Errorf("messaging: invalid payload: %w", err)
	}
	return e, nil
}
