// Package nlrule compiles an analyst's free-text validation sentence into a
// structured rule bound to the field ids of a form template.
//
// A sentence such as
//
//	Expected Discharge Datetime greater than Expected Admission Datetime
//
// compiles to
//
//	expression: expectedDischargeDatetime > expectedAdmissionDatetime
//	dependsOn:  [expectedDischargeDatetime expectedAdmissionDatetime]
//
// Compilation tries a fixed set of grammatical patterns in priority order,
// then a fallback that looks for any two known field labels and an operator
// word, and finally returns a disabled rule explaining that the sentence could
// not be parsed. Compile never returns an error: every outcome is a
// CompiledRule whose Enabled flag tells the caller whether it is usable.
//
// The compiler holds no mutable state. Each Compile call builds its own
// AliasRegistry from the template it is given, so one Compiler can serve
// concurrent requests for different templates.
package nlrule
