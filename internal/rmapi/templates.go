package rmapi

import "strings"

// URL path templates of the merge service API. Placeholders are substituted
// by ExpandTemplate.
const (
	BranchInfoTemplate    = "/api/bot/<bot>/branch/<branch>"
	OperationTemplate     = "/api/op/bot/<bot>/node/<node>/op/<op>"
	EdgeOperationTemplate = "/api/op/bot/<bot>/node/<node>/edge/<edge>/op/<op>"
)

// Operation names accepted by the op endpoints.
const (
	OpVerifyStomp = "verifystomp"
	OpStomp       = "stompchanges"
	OpReconsider  = "reconsider"
	OpCreateShelf = "create_shelf"
)

// Vars holds placeholder values. Empty fields leave their placeholder as is.
type Vars struct {
	Bot    string
	Branch string
	Node   string
	Edge   string
	Op     string
}

// ExpandTemplate substitutes each <placeholder> in tmpl.
func ExpandTemplate(tmpl string, v Vars) string {
	pairs := make([]string, 0, 10)
	add := func(key, val string) {
		if val != "" {
			pairs = append(pairs, "<"+key+">", val)
		}
	}
	add("bot", v.Bot)
	add("branch", v.Branch)
	add("node", v.Node)
	add("edge", v.Edge)
	add("op", v.Op)
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
