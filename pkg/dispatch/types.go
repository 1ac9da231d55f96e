package dispatch

// Invocation is one planned tool call: which provider, which tool, which
// arguments, and the trigger that produced it.
type Invocation struct {
	Provider string                 `json:"provider"`
	Tool     string                 `json:"tool"`
	Args     map[string]interface{} `json:"args"`
	Category string                 `json:"category"`
	Entity   string                 `json:"entity"`
}

// Plan is the ordered set of tool invocations chosen for one user message.
// Plans are computed per message and never persisted.
type Plan struct {
	Message     string       `json:"message"`
	Invocations []Invocation `json:"invocations"`
}

// Empty reports whether the plan contains no invocations
func (p *Plan) Empty() bool {
	return p == nil || len(p.Invocations) == 0
}
