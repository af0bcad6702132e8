package models

// Message roles. A message never changes role after creation; user
// content is immutable once appended, assistant content may be rewritten
// while a reply is streaming in.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// TS is the creation timestamp (ns); zero for messages that came from
	// a store response without one.
	TS int64 `json:"timestamp,omitempty"`
}

// IdentityRecord is the local mirror of a provider-managed user. The id
// is provider-assigned and used as the primary key; records are only ever
// created, updated and deleted by provider webhook events.
type IdentityRecord struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}
