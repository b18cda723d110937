// Package status implements the status report and planner queue
// report channel. A report is encoded each time one is requested;
// the package keeps no report interval or timer. A report covers a
// configurable list of up to thirty
// configuration tokens, sampled and framed over the binary wire
// protocol exactly like every other outbound message. It is grounded
// in protocol's VLQ/CRC16 framing (the same encoding core.Command
// dictionary entries would eventually ride on) and in
// core.CommandRegistry's name-indexed self-description idiom, adapted
// from "describe every registered wire command" to "describe the
// operator's chosen status token list".
package status

import (
	"github.com/pkg/errors"

	"cncfw/config"
	"cncfw/protocol"
)

// MaxReportTokens is the status report list's slot limit.
const MaxReportTokens = 30

// Reporter samples a configurable list of configuration tokens and
// frames them as a single binary status message.
type Reporter struct {
	registry *config.Registry
	tokens   []string
}

// NewReporter returns a Reporter bound to the given configuration
// registry, with an empty token list.
func NewReporter(registry *config.Registry) *Reporter {
	return &Reporter{registry: registry}
}

// SetTokens installs the status report's token list. Returns an error
// if more than MaxReportTokens are requested or any name is not a
// registered configuration token.
func (r *Reporter) SetTokens(tokens []string) error {
	if len(tokens) > MaxReportTokens {
		return errors.Errorf("status report supports at most %d tokens, got %d", MaxReportTokens, len(tokens))
	}
	for _, name := range tokens {
		if _, err := r.registry.Kind(name); err != nil {
			return err
		}
	}
	r.tokens = append([]string(nil), tokens...)
	return nil
}

// Tokens returns the currently configured status report token list.
func (r *Reporter) Tokens() []string {
	return append([]string(nil), r.tokens...)
}

// Encode samples every configured token and frames the result as
// length-prefixed name/value pairs: each name is emitted as raw bytes
// preceded by its VLQ-encoded length, each value as a VLQ-encoded
// fixed-point integer (value * 1000, matching the wire protocol's
// convention of carrying fractional quantities as scaled integers).
func (r *Reporter) Encode(out protocol.OutputBuffer) error {
	protocol.EncodeVLQUint(out, uint32(len(r.tokens)))
	for _, name := range r.tokens {
		v, err := r.registry.Get(name)
		if err != nil {
			return err
		}
		protocol.EncodeVLQUint(out, uint32(len(name)))
		out.Output([]byte(name))
		protocol.EncodeVLQInt(out, int32(v*1000))
	}
	return nil
}

// QueueReport tracks the planner ring buffer's free-slot count and
// only signals a report when it crosses a configured high or low water
// threshold, so a fast-filling/draining queue does not flood the wire
// with a report on every single block commit/retire.
type QueueReport struct {
	BufferSize int
	HighWater  int // free-slot count at or above which the queue is "comfortable"
	LowWater   int // free-slot count at or below which the queue is "running dry"

	lastFree    int
	lastSignal  int // -1 = below low water, 0 = neutral, 1 = at/above high water
}

// NewQueueReport returns a QueueReport for a ring buffer of the given
// total size. The buffer starts empty, so the initial watermark state
// is "comfortable" (at or above the high water mark).
func NewQueueReport(bufferSize, highWater, lowWater int) *QueueReport {
	return &QueueReport{BufferSize: bufferSize, HighWater: highWater, LowWater: lowWater, lastSignal: 1}
}

// Sample records the current free-slot count and reports whether this
// sample crosses a watermark worth notifying the host about, along
// with the free-slot count itself.
func (q *QueueReport) Sample(queued int) (free int, crossed bool) {
	free = q.BufferSize - queued
	q.lastFree = free

	signal := 0
	if free <= q.LowWater {
		signal = -1
	} else if free >= q.HighWater {
		signal = 1
	}

	crossed = signal != q.lastSignal
	q.lastSignal = signal
	return free, crossed
}

// LastFree returns the most recently sampled free-slot count.
func (q *QueueReport) LastFree() int { return q.lastFree }
