// Package models defines state management structures for BoardPipe flows.
package models

import "time"

// FlowState is the persisted conversation state of one chat for one command.
// Payload holds the JSON encoding of the flow's typed draft. UserID is the user who started
// the flow; in group chats only that user may answer its steps. Zero means anyone.
type FlowState struct {
	ChatID    int64     `json:"chat_id"`
	UserID    int64     `json:"user_id,omitempty"`
	FlowType  FlowType  `json:"flow_type"`
	Action    ActionID  `json:"action"`
	Payload   string    `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the flow still expects input.
func (s *FlowState) Active() bool {
	return s != nil && s.Action != ActionNone
}
