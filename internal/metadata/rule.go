package metadata

// ValidationRule is a compiled rule as the rule-storage collaborator keeps it:
// the compiler output plus caller-assigned bookkeeping.
type ValidationRule struct {
	ID           string   `json:"id"`
	TemplateID   string   `json:"template_id,omitempty"`
	Text         string   `json:"text,omitempty"`
	Expression   string   `json:"expression"`
	ErrorMessage string   `json:"errorMessage"`
	DependsOn    []string `json:"dependsOn"`
	Enabled      bool     `json:"enabled"`
}
