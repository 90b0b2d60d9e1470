package paper

// Author is a paper author. In the relational engine authors are shared
// rows deduplicated by (name, email); in the document engine each paper
// carries its own embedded copy and ID is left empty. This divergence is
// inherent to the two storage models and deliberately not papered over.
type Author struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
	Email       string `json:"email,omitempty"`
}
