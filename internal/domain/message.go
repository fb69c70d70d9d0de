package domain

import (
	"sort"
	"time"
)

// Direction tells whether a message was received from or sent to the interviewee.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Message is an append-only entry in a session transcript.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Direction Direction `json:"direction"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// SortMessages orders a transcript by creation time. Messages with equal
// timestamps keep their storage order.
func SortMessages(msgs []*Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

// Inbound returns the inbound messages of a transcript in order.
func Inbound(msgs []*Message) []*Message {
	var out []*Message
	for _, m := range msgs {
		if m.Direction == DirectionInbound {
			out = append(out, m)
		}
	}
	return out
}

// Outbound returns the outbound messages of a transcript in order.
func Outbound(msgs []*Message) []*Message {
	var out []*Message
	for _, m := range msgs {
		if m.Direction == DirectionOutbound {
			out = append(out, m)
		}
	}
	return out
}

// LastInbound returns the most recent inbound message, or nil.
func LastInbound(msgs []*Message) *Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Direction == DirectionInbound {
			return msgs[i]
		}
	}
	return nil
}
