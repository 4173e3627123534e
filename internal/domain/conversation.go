package domain

// Turn roles. The original interface labels the two sides "Child" and
// "Teacher"; the wire format keeps the same names.
const (
	RoleChild   = "child"
	RoleTeacher = "teacher"
)

// Turn is a single (role, message) pair in a conversation.
type Turn struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// Conversation is the ordered exchange for one session plus the running
// count of identified details. It is owned by the caller: handlers pass it
// in on every chat call and only ever append to it.
type Conversation struct {
	Turns           []Turn `json:"turns"`
	IdentifiedCount int    `json:"identified_count"`
}

// Append records one child/teacher exchange.
func (c *Conversation) Append(userMessage, reply string) {
	c.Turns = append(c.Turns, Turn{Role: RoleChild, Message: userMessage})
	c.Turns = append(c.Turns, Turn{Role: RoleTeacher, Message: reply})
}

// Empty reports whether no exchange has happened yet.
func (c *Conversation) Empty() bool {
	return len(c.Turns) == 0
}
