package model

// Wildcard is the template token that matches any literal at its position.
const Wildcard = "<*>"

// Cluster is a learned equivalence class of log lines: all lines with the
// same token count whose tokens matched the template at or above the
// similarity threshold. Templates only ever generalize — once a position is
// widened to Wildcard it never narrows back to a literal.
type Cluster struct {
	ID         int      `cbor:"id"`
	Template   []string `cbor:"template"` // literals and Wildcard markers
	TokenCount int      `cbor:"token_count"`
	MatchCount int      `cbor:"match_count"`
}

// TemplateString renders the template as a single space-joined string.
func (c *Cluster) TemplateString() string {
	s := ""
	for i, tok := range c.Template {
		if i > 0 {
			s += " "
		}
		s += tok
	}
	return s
}
