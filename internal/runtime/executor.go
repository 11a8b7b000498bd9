package runtime

import "github.com/jward/gofacts/internal/fact"

// Executor carries out the operations a script invokes through the facts
// module. Errors returned by an Executor surface to the script as catchable
// errors. Fatal never returns.
type Executor interface {
	SetVersion(v Version) error
	SetDebugVersion(v Version) error

	Note(msg string)
	Warn(msg string)
	Error(msg string)
	Fatal(msg string)

	QueryMethodCalls(q fact.MethodCallQuery) ([]*fact.MethodCall, error)
	QueryTraitImpls(loc fact.Location) ([]*fact.TraitImpl, error)
	QueryFunctions(loc fact.Location) ([]*fact.FunctionTypeValue, error)
	QueryFunctionCalls(loc fact.Location) ([]*fact.FunctionCall, error)

	Emit(s string) error
}
