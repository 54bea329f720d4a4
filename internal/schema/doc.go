// Package schema is the application's migration history: the concrete
// version-gated steps that bring any stored version up to TargetVersion.
//
// Every step is built from migrate primitives and touches records only by
// kind and field name. Bump TargetVersion and append a step when the record
// shape changes; never edit a step that has shipped.
package schema
