// Package machc compiles declarative state-machine specifications into
// table-driven dispatchers.
//
// A Specification is constructed through the Builder's explicit registration
// API: declare the State and Trigger domains, then attach transitions, guards,
// and entry/exit hooks. Compile validates the specification (reporting every
// problem it finds as Diagnostics), reorganizes it into a dispatch table, and
// synthesizes a Machine exposing CanFire, Fire, and FireAsync (the latter
// only when the specification contains suspending callables or async
// generation is forced).
//
// Basic usage:
//
//	b := machc.NewBuilder("turnstile")
//	locked := b.DefineState("Locked")
//	unlocked := b.DefineState("Unlocked")
//	coin := b.DefineTrigger("Coin")
//	push := b.DefineTrigger("Push")
//	b.AddTransition(locked, coin, unlocked, machc.SyncAction("unlock", unlock))
//	b.AddTransition(unlocked, push, locked, machc.SyncAction("lock", lock))
//
//	m, diags := machc.Compile(b.Spec(), machc.Config{})
//	if diags != nil {
//	    // every diagnostic names the offending element
//	}
//	err := m.Fire(coin)
//
// A Machine holds exactly one piece of mutable state, the current-State cell.
// It performs no internal locking; concurrent callers must serialize access
// themselves.
package machc
