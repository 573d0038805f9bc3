package nlrule

// CompiledRule is the result of translating one sentence.
//
// An enabled rule has a non-empty Expression and every id in DependsOn occurs
// in it. A disabled rule has an empty Expression and ErrorMessage says why.
type CompiledRule struct {
	Expression   string   `json:"expression"`
	ErrorMessage string   `json:"errorMessage"`
	DependsOn    []string `json:"dependsOn"`
	Enabled      bool     `json:"enabled"`
}

const (
	MsgInvalidInput = "Invalid or empty input provided."
	MsgEmptyInput   = "Empty input provided."
	MsgUnparseable  = "Could not parse validation rule. Please clarify the statement."
)

func failure(msg string) CompiledRule {
	return CompiledRule{
		ErrorMessage: msg,
		DependsOn:    []string{},
	}
}

func newRule(expression, message string, dependsOn []string) CompiledRule {
	if dependsOn == nil {
		dependsOn = []string{}
	}
	return CompiledRule{
		Expression:   expression,
		ErrorMessage: message,
		DependsOn:    dependsOn,
		Enabled:      true,
	}
}
