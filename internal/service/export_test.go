package service

// ExportedRunGuard lets the external test package exercise the guard.
type ExportedRunGuard = runGuard
