package model

import "time"

// Topics published when the pool changes.
const (
	TopicCredentialAdded    = "credential.added"
	TopicCredentialDeleted  = "credential.deleted"
	TopicCredentialDisabled = "credential.disabled"
	TopicCredentialEnabled  = "credential.enabled"
	TopicCredentialPriority = "credential.priority"
	TopicCredentialReset    = "credential.reset"
	TopicCredentialFailover = "credential.failover"
)

// Event is a pool change notification. Payloads never carry token material.
type Event struct {
	Topic        string    `json:"topic"`
	CredentialID int64     `json:"credentialId"`
	Timestamp    time.Time `json:"timestamp"`
	Payload      any       `json:"payload,omitempty"`
}
