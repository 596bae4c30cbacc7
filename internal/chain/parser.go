// Package chain reads the state of a deployed exchange program and indexes
// the events it emits.
package chain

import (
	"encoding/base64"
	"strings"

	"swap-authority/internal/address"
	"swap-authority/internal/domain"
	"swap-authority/internal/idhash"
)

const (
	programPrefix = "Program "
	dataPrefix    = "Program data: "
	invokeMarker  = " invoke ["
)

// ParseEvents extracts the exchange events emitted by programID from a
// transaction's log messages, in emission order. Payloads logged while
// another program is executing (including programs invoked by programID)
// are ignored, as are payloads carrying other event types.
func ParseEvents(programID address.Pubkey, logs []string) []*domain.ExchangeEvent {
	target := programID.String()

	var (
		stack  []string
		events []*domain.ExchangeEvent
	)

	for _, line := range logs {
		switch {
		case strings.HasPrefix(line, dataPrefix):
			if len(stack) == 0 || stack[len(stack)-1] != target {
				continue
			}
			payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(line, dataPrefix))
			if err != nil {
				continue
			}
			var e domain.ExchangeEvent
			if err := e.UnmarshalBinary(payload); err != nil {
				continue
			}
			events = append(events, &e)

		case strings.HasPrefix(line, programPrefix):
			rest := strings.TrimPrefix(line, programPrefix)
			if i := strings.Index(rest, invokeMarker); i > 0 {
				stack = append(stack, rest[:i])
				continue
			}
			// "<id> success" or "<id> failed: <reason>" closes the innermost invocation.
			id, outcome, ok := strings.Cut(rest, " ")
			if ok && len(stack) > 0 && stack[len(stack)-1] == id &&
				(outcome == "success" || strings.HasPrefix(outcome, "failed")) {
				stack = stack[:len(stack)-1]
			}
		}
	}

	return events
}

// eventsFromLogs parses a transaction's logs and stamps each event with its
// deterministic id and chain position.
func eventsFromLogs(programID address.Pubkey, signature string, slot int64, logs []string) []*domain.ExchangeEvent {
	events := ParseEvents(programID, logs)
	for i, e := range events {
		e.ID = idhash.EventID(signature, i)
		e.Signature = signature
		e.Slot = slot
	}
	return events
}
