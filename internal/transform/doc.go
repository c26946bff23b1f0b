// Package transform applies ordered chains of named value transforms to
// source field values.
//
// A chain is written as a list of keys. A key is a transform name,
// optionally followed by ":" and a parameter string:
//
//	transforms: [trim, lower, "truncate:50", "split:|", "concat: ,last_name"]
//
// Keys are compiled once per column into a Chain, so unknown names and bad
// parameters surface when the mapping is loaded, never in the row loop.
//
// Some transforms are interactive: used without parameters they need a value
// supplied by the operator (a date layout, a value table). ResolveInteractive
// asks a Prompter for those values up front and rewrites the keys into
// concrete ones; Compile refuses keys that are still interactive.
package transform
