package models

// Thread is the metadata record the external thread store keeps for one
// conversation. Messages are present only on detail fetches; list
// responses usually omit them.
type Thread struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Owner string `json:"owner"`
	// Messages is the ordered transcript, oldest first.
	Messages []Message `json:"messages,omitempty"`
	// Created timestamp (ns)
	CreatedTS int64 `json:"created_ts,omitempty"`
	// Updated timestamp (ns) - last time thread activity changed
	UpdatedTS int64 `json:"updated_ts,omitempty"`
}

// DefaultThreadName is the display name given to threads created
// implicitly by a first send or upload.
const DefaultThreadName = "New Chat"

// FeatureFlags are the advisory toggles sent verbatim with every send
// request. This is a fixed-field struct, never an open-ended map; adding
// a flag is a deliberate schema change.
type FeatureFlags struct {
	DeepThink bool `json:"deepThink"`
	Search    bool `json:"search"`
	Agentic   bool `json:"agentic"`
}
