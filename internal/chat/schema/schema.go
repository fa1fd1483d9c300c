package schema

// Role names as stored on the user record. The resolver treats anything
// outside this set as having no authorized companies.
const (
	RoleAdmin   = "admin"
	RoleCEO     = "ceo"
	RoleAnalyst = "analyst"
)

// Message roles for the generation capability.
const (
	MessageRoleSystem    = "system"
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

// Identity is the read-only view of a user the chat pipeline works with.
// It is resolved from the organization directory per request.
type Identity struct {
	ID        uint
	Username  string
	Role      string
	CompanyID *uint
}

// Company is a node in the two-level company hierarchy.
type Company struct {
	ID       uint
	Name     string
	ParentID *uint
}

// Chunk is a unit of indexed context returned by the vector store.
// It carries the tenant metadata the retriever filters on.
type Chunk struct {
	ID        string
	Text      string
	CompanyID uint
	Year      int
	Metric    string
	Source    string
	Score     float32
}

// Message is one entry in the structured sequence sent to the LLM.
type Message struct {
	Role    string
	Content string
}

// Turn is one completed question/answer exchange in a conversation.
type Turn struct {
	Question string
	Answer   string
}

// Answer is the composer's output before the orchestrator attaches
// conversation state.
type Answer struct {
	Text    string
	Sources []string
}

// AnswerResult is the response unit returned to the web layer.
type AnswerResult struct {
	Answer    string   `json:"answer"`
	Sources   []string `json:"sources"`
	TurnCount int      `json:"turn_count"`
}

// Scope is the set of company IDs an identity may query. It is derived
// per request and never stored.
type Scope map[uint]struct{}

// NewScope builds a Scope from a list of company IDs.
func NewScope(ids ...uint) Scope {
	s := make(Scope, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Contains reports whether the company is inside the scope.
func (s Scope) Contains(companyID uint) bool {
	_, ok := s[companyID]
	return ok
}

// Intersect keeps only the requested IDs that are members of the scope.
// Order of the requested slice is preserved.
func (s Scope) Intersect(requested []uint) []uint {
	var out []uint
	for _, id := range requested {
		if s.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}

// IsEmpty reports whether the scope authorizes no companies at all.
func (s Scope) IsEmpty() bool {
	return len(s) == 0
}
