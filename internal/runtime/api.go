package runtime

import (
	"context"

	"github.com/risor-io/risor/object"

	"github.com/jward/gofacts/internal/fact"
)

// ModuleName is the global under which scripts reach the operations.
const ModuleName = "facts"

// NewModule builds the facts module backed by exec:
//
//	facts.version(v)               facts.dbg_version(v)
//	facts.note(msg)                facts.warn(msg)
//	facts.error(msg)               facts.fatal_error(msg)
//	facts.query_method_calls(q)    facts.query_trait_impls(loc)
//	facts.query_functions(loc)     facts.query_function_calls(loc)
//	facts.emit(s)
func NewModule(exec Executor) *object.Module {
	return object.NewBuiltinsModule(ModuleName, map[string]object.Object{
		"version":              makeVersionFn("version", exec.SetVersion),
		"dbg_version":          makeVersionFn("dbg_version", exec.SetDebugVersion),
		"note":                 makeLogFn("note", exec.Note),
		"warn":                 makeLogFn("warn", exec.Warn),
		"error":                makeLogFn("error", exec.Error),
		"fatal_error":          makeLogFn("fatal_error", exec.Fatal),
		"query_method_calls":   makeQueryMethodCallsFn(exec),
		"query_trait_impls":    makeLocationQueryFn("query_trait_impls", exec.QueryTraitImpls, MarshalTraitImpl),
		"query_functions":      makeLocationQueryFn("query_functions", exec.QueryFunctions, MarshalFunction),
		"query_function_calls": makeLocationQueryFn("query_function_calls", exec.QueryFunctionCalls, MarshalFunctionCall),
		"emit":                 makeEmitFn(exec),
	})
}

func stringArg(name string, args []object.Object) (string, *object.Error) {
	if len(args) != 1 {
		return "", object.NewArgsError(name, 1, len(args))
	}
	s, ok := args[0].(*object.String)
	if !ok {
		return "", object.Errorf("%s: expected a string, got %s", name, args[0].Type())
	}
	return s.Value(), nil
}

// version(v) / dbg_version(v)
func makeVersionFn(name string, set func(Version) error) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError(name, 1, len(args))
		}
		v, err := UnmarshalVersion(args[0])
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		if err := set(v); err != nil {
			return object.NewError(err)
		}
		return object.Nil
	})
}

// note(msg) / warn(msg) / error(msg) / fatal_error(msg)
func makeLogFn(name string, log func(string)) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		msg, errObj := stringArg(name, args)
		if errObj != nil {
			return errObj
		}
		log(msg)
		return object.Nil
	})
}

// query_method_calls(query) → list of method calls
func makeQueryMethodCallsFn(exec Executor) *object.Builtin {
	const name = "query_method_calls"
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError(name, 1, len(args))
		}
		q, err := UnmarshalMethodCallQuery(args[0])
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		calls, err := exec.QueryMethodCalls(q)
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		return listOf(calls, MarshalMethodCall)
	})
}

// query_trait_impls(loc) / query_functions(loc) / query_function_calls(loc)
func makeLocationQueryFn[T any](name string, query func(fact.Location) ([]T, error), marshal func(T) object.Object) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError(name, 1, len(args))
		}
		loc, err := UnmarshalLocation(args[0])
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		results, err := query(loc)
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		return listOf(results, marshal)
	})
}

// emit(s)
func makeEmitFn(exec Executor) *object.Builtin {
	return object.NewBuiltin("emit", func(ctx context.Context, args ...object.Object) object.Object {
		s, errObj := stringArg("emit", args)
		if errObj != nil {
			return errObj
		}
		if err := exec.Emit(s); err != nil {
			return object.Errorf("emit: %v", err)
		}
		return object.Nil
	})
}
