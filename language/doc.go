// Package language holds the static language registry.
//
// A Recipe names the sandbox image, the source file name, an optional
// compile command and the run command for one language. The Registry is
// built once at startup and never mutated, so lookups need no locking.
package language
