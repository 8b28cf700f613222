// Package native provides ready-made native objects for the bridge.
//
//	RefCount   embeddable reference counter
//	Map        named property bag
//	Func       single callable, for global functions
//	Reflected  any Go struct pointer, fields as properties, methods as methods
//
// Reflected names follow script conventions: exported Go identifiers are
// converted to lowerCamel, keeping leading acronyms together
// (URLPath -> urlPath, ID -> id).
package native
