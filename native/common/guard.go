package common

import "errors"

// ErrModulePaused is returned when an operator has suspended a whole module
// (distinct from per-record switches such as a presale's active flag).
var ErrModulePaused = errors.New("module paused")

// Names of the pausable engines. Each engine guards its mutating operations
// under its own name, and the ledger keys its pause switches off the same
// strings.
const (
	ModuleEscrow  = "escrow"
	ModulePresale = "presale"
)

// Modules lists every pausable engine, in the order surfaced to operators.
var Modules = []string{ModuleEscrow, ModulePresale}

// PauseView exposes the operator pause switches consulted by every mutating
// engine operation.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the operation when the named module is paused. A nil view or
// empty module name disables the check.
func Guard(p PauseView, module string) error {
	if p != nil && module != "" && p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
