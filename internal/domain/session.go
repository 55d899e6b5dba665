package domain

// SessionState is the externally observable session tuple.
// Authenticated implies Profile != nil once Loading is false.
type SessionState struct {
	Authenticated bool     `json:"authenticated"`
	Profile       *Profile `json:"userProfile"`
	Loading       bool     `json:"loading"`
}

// Anonymous is the state every logout path converges on.
func Anonymous() SessionState {
	return SessionState{}
}
