// Package gofacts extracts structural facts from a type-checked program and
// exposes them to Risor scripts that query them and emit generated output.
//
// # Pipeline
//
// An Engine runs in three steps:
//
//  1. Load: a program oracle is built for the configured language. Go
//     projects are loaded with go/packages; Rust crates are parsed with
//     tree-sitter.
//
//  2. Run: the script executes with the facts module in scope. Each query
//     walks the program, elevating matching declarations and expressions into
//     the fact model, and returns them as Risor values.
//
//  3. Record: emitted text is flushed to the configured output, and the run
//     with its queries, diagnostics and emissions is committed to the run log.
//
// # Usage
//
//	cfg, err := config.NewLoader(logger).Load()
//	if err != nil { ... }
//	e, err := gofacts.New(ctx, cfg, gofacts.WithLogger(logger))
//	if err != nil { ... }
//	res, err := e.Run(ctx, "facts.risor")
//
// # Scripts
//
// Scripts declare the engine version they target first, then query:
//
//	facts.version("0.3.0")
//	loc := {"crate_name": "std", "path": ["net", "http", "ServeMux", "HandleFunc"]}
//	for _, call := range facts.query_method_calls({"location": loc}) {
//	    facts.emit(call["args"][0]["variant_data"] + "\n")
//	}
package gofacts
