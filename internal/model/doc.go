// Package model defines the domain types and value objects for the
// classlens CLI.
//
// This package contains pure data structures with no external dependencies:
// Container and ClassEntry describe loaded archives, the sentinel errors and
// DecompileError form the failure taxonomy shared by every layer, and
// ExitCode/CLIError translate those failures into process exit codes.
//
// Nothing here is persisted. Every value is rebuilt from the archives given
// on the command line each time the tool runs.
package model
