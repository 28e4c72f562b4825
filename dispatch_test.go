package machc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// turnstile builds the Locked/Unlocked machine from the compiler's canonical
// scenario, counting action invocations.
func turnstile(t *testing.T, cfg Config) (m *Machine, coin, push Trigger, locked, unlocked State, unlocks, locks *int) {
	t.Helper()
	unlocks, locks = new(int), new(int)

	b := NewBuilder("turnstile")
	locked = b.DefineState("Locked")
	unlocked = b.DefineState("Unlocked")
	coin = b.DefineTrigger("Coin")
	push = b.DefineTrigger("Push")
	b.AddTransition(locked, coin, unlocked, SyncAction("unlockAction", func() { *unlocks++ }))
	b.AddTransition(unlocked, push, locked, SyncAction("lockAction", func() { *locks++ }))

	m, diags := Compile(b.Spec(), cfg)
	require.Nil(t, diags)
	require.NotNil(t, m)
	return m, coin, push, locked, unlocked, unlocks, locks
}

func TestTurnstileScenario(t *testing.T) {
	m, coin, push, locked, unlocked, unlocks, _ := turnstile(t, Config{})

	require.Equal(t, locked, m.State())

	// Undeclared (Locked, Push) with the default error policy.
	err := m.Fire(push)
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "Locked", invalid.State)
	assert.Equal(t, "Push", invalid.Trigger)
	assert.Equal(t, locked, m.State())

	// Declared transition runs its action exactly once.
	require.NoError(t, m.Fire(coin))
	assert.Equal(t, unlocked, m.State())
	assert.Equal(t, 1, *unlocks)
}

func TestTurnstileIgnorePolicy(t *testing.T) {
	m, coin, _, _, unlocked, unlocks, _ := turnstile(t, Config{InvalidTrigger: PolicyIgnore})

	require.NoError(t, m.Fire(coin))
	require.Equal(t, unlocked, m.State())

	// (Unlocked, Coin) is undeclared: silent no-op, state unchanged.
	require.NoError(t, m.Fire(coin))
	assert.Equal(t, unlocked, m.State())
	assert.Equal(t, 1, *unlocks)
}

func TestGuardedTransition(t *testing.T) {
	pass := false
	build := func(cfg Config) (*Machine, Trigger, State, State) {
		b := NewBuilder("m")
		a := b.DefineState("A")
		bs := b.DefineState("B")
		tr := b.DefineTrigger("T")
		b.AddTransition(a, tr, bs, SyncAction("act", func() {}))
		b.AddGuard(a, tr, SyncPredicate("allow", func() bool { return pass }))
		m, diags := Compile(b.Spec(), cfg)
		require.Nil(t, diags)
		return m, tr, a, bs
	}

	t.Run("rejects with error policy", func(t *testing.T) {
		pass = false
		m, tr, a, _ := build(Config{})
		assert.False(t, m.CanFire(tr))

		err := m.Fire(tr)
		var rejected *GuardRejectedError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, "allow", rejected.Predicate)
		assert.Equal(t, a, m.State())
	})

	t.Run("rejects silently with ignore policy", func(t *testing.T) {
		pass = false
		m, tr, a, _ := build(Config{GuardFailure: PolicyIgnore})
		require.NoError(t, m.Fire(tr))
		assert.Equal(t, a, m.State())
	})

	t.Run("passes", func(t *testing.T) {
		pass = true
		m, tr, _, bs := build(Config{})
		assert.True(t, m.CanFire(tr))
		require.NoError(t, m.Fire(tr))
		assert.Equal(t, bs, m.State())
	})
}

// CanFire is true exactly when a synchronous Fire would reach the action.
func TestCanFireSoundness(t *testing.T) {
	m, coin, push, _, _, _, _ := turnstile(t, Config{})

	assert.True(t, m.CanFire(coin))
	assert.False(t, m.CanFire(push))
	require.NoError(t, m.Fire(coin))
	assert.False(t, m.CanFire(coin))
	assert.True(t, m.CanFire(push))
}

func TestCanFireConservativeOnSuspendingGuard(t *testing.T) {
	b := NewBuilder("m")
	a := b.DefineState("A")
	bs := b.DefineState("B")
	tr := b.DefineTrigger("T")
	b.AddTransition(a, tr, bs, SyncAction("act", func() {}))
	b.AddGuard(a, tr, SuspendingPredicate("slowAllow", func(context.Context) bool { return true }))

	m, diags := Compile(b.Spec(), Config{GenerateAsync: true})
	require.Nil(t, diags)

	// CanFire is synchronous and cannot await the guard: always false, even
	// though the guard itself would pass.
	assert.False(t, m.CanFire(tr))

	require.NoError(t, m.FireAsync(context.Background(), tr))
	assert.Equal(t, bs, m.State())
}

func TestOrderingLaw(t *testing.T) {
	var calls []string
	var m *Machine

	b := NewBuilder("m")
	a := b.DefineState("A")
	bs := b.DefineState("B")
	tr := b.DefineTrigger("T")
	record := func(name string) func() {
		return func() { calls = append(calls, name+"@"+m.StateName()) }
	}
	b.AddTransition(a, tr, bs, SyncAction("act", record("act")))
	b.AddExitHook(a, SyncHook("exit1", record("exit1")))
	b.AddExitHook(a, SyncHook("exit2", record("exit2")))
	b.AddEntryHook(bs, SyncHook("entry1", record("entry1")))
	b.AddEntryHook(bs, SyncHook("entry2", record("entry2")))
	// Hooks on unrelated states stay silent.
	b.AddEntryHook(a, SyncHook("entryA", record("entryA")))

	var diags []Diagnostic
	m, diags = Compile(b.Spec(), Config{})
	require.Nil(t, diags)

	require.NoError(t, m.Fire(tr))

	// Exit hooks and the action observe the old state; the cell is updated
	// before entry hooks run.
	assert.Equal(t, []string{"exit1@A", "exit2@A", "act@A", "entry1@B", "entry2@B"}, calls)
}

func TestRepeatedFireIsDeterministic(t *testing.T) {
	var calls []string
	var m *Machine

	b := NewBuilder("m")
	a := b.DefineState("A")
	bs := b.DefineState("B")
	tr := b.DefineTrigger("T")
	b.AddTransition(a, tr, bs, SyncAction("act", func() { calls = append(calls, "act") }))
	b.AddExitHook(a, SyncHook("exit", func() { calls = append(calls, "exit") }))
	b.AddEntryHook(bs, SyncHook("entry", func() { calls = append(calls, "entry") }))

	var diags []Diagnostic
	m, diags = Compile(b.Spec(), Config{})
	require.Nil(t, diags)

	var first []string
	for i := 0; i < 3; i++ {
		calls = nil
		m.Reset(a)
		require.NoError(t, m.Fire(tr))
		require.Equal(t, bs, m.State())
		if first == nil {
			first = append([]string(nil), calls...)
		} else {
			assert.Equal(t, first, calls)
		}
	}
}

func TestFireAsync(t *testing.T) {
	newMachine := func(calls *[]string) (*Machine, Trigger, State, State) {
		b := NewBuilder("m")
		a := b.DefineState("A")
		bs := b.DefineState("B")
		tr := b.DefineTrigger("T")
		b.AddTransition(a, tr, bs, SuspendingAction("act", func(context.Context) {
			*calls = append(*calls, "act")
		}))
		b.AddExitHook(a, SyncHook("exit", func() { *calls = append(*calls, "exit") }))
		b.AddEntryHook(bs, SuspendingHook("entry", func(context.Context) {
			*calls = append(*calls, "entry")
		}))
		m, diags := Compile(b.Spec(), Config{GenerateAsync: true})
		require.Nil(t, diags)
		return m, tr, a, bs
	}

	t.Run("mixes sync and suspending callables", func(t *testing.T) {
		var calls []string
		m, tr, _, bs := newMachine(&calls)
		require.NoError(t, m.FireAsync(context.Background(), tr))
		assert.Equal(t, bs, m.State())
		assert.Equal(t, []string{"exit", "act", "entry"}, calls)
	})

	t.Run("pre-cancelled context stops before any step", func(t *testing.T) {
		var calls []string
		m, tr, a, _ := newMachine(&calls)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := m.FireAsync(ctx, tr)
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, a, m.State())
		assert.Empty(t, calls)
	})

	t.Run("cancellation between steps leaves state unchanged", func(t *testing.T) {
		var calls []string
		ctx, cancel := context.WithCancel(context.Background())

		b := NewBuilder("m")
		a := b.DefineState("A")
		bs := b.DefineState("B")
		tr := b.DefineTrigger("T")
		b.AddTransition(a, tr, bs, SuspendingAction("act", func(context.Context) {
			calls = append(calls, "act")
		}))
		// The exit hook cancels; the check before the action must observe it.
		b.AddExitHook(a, SyncHook("exit", func() {
			calls = append(calls, "exit")
			cancel()
		}))
		m, diags := Compile(b.Spec(), Config{GenerateAsync: true})
		require.Nil(t, diags)

		err := m.FireAsync(ctx, tr)
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, a, m.State())
		assert.Equal(t, []string{"exit"}, calls)
	})

	t.Run("invalid trigger follows policy", func(t *testing.T) {
		var calls []string
		m, _, _, _ := newMachine(&calls)
		other := Trigger(0)
		m.Reset(State(1)) // B has no outgoing transitions

		err := m.FireAsync(context.Background(), other)
		var invalid *InvalidTransitionError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "B", invalid.State)
	})
}

func TestEntryPointSynthesis(t *testing.T) {
	t.Run("suspending table is async-only", func(t *testing.T) {
		b := NewBuilder("m")
		a := b.DefineState("A")
		bs := b.DefineState("B")
		tr := b.DefineTrigger("T")
		b.AddTransition(a, tr, bs, SuspendingAction("act", func(context.Context) {}))

		m, diags := Compile(b.Spec(), Config{GenerateAsync: true})
		require.Nil(t, diags)

		require.ErrorIs(t, m.Fire(tr), ErrSyncNotSynthesized)
		assert.Equal(t, a, m.State())
		require.NoError(t, m.FireAsync(context.Background(), tr))
	})

	t.Run("all-sync table has no async entry point by default", func(t *testing.T) {
		m, coin, _, _, _, _, _ := turnstile(t, Config{})
		require.ErrorIs(t, m.FireAsync(context.Background(), coin), ErrAsyncNotSynthesized)
	})

	t.Run("force_async synthesizes FireAsync over an all-sync table", func(t *testing.T) {
		m, coin, _, _, unlocked, unlocks, _ := turnstile(t, Config{ForceAsync: true})
		require.NoError(t, m.FireAsync(context.Background(), coin))
		assert.Equal(t, unlocked, m.State())
		assert.Equal(t, 1, *unlocks)
		// Sync Fire still exists for an all-sync table.
		require.Error(t, m.Fire(coin)) // invalid from Unlocked under error policy
	})
}

func TestCompileRejectsInvalidSpec(t *testing.T) {
	b := NewBuilder("m")
	a := b.DefineState("A")
	tr := b.DefineTrigger("T")
	b.AddTransition(a, tr, a, SyncAction("x", func() {}))
	b.AddTransition(a, tr, a, SyncAction("y", func() {}))

	m, diags := Compile(b.Spec(), Config{})
	assert.Nil(t, m)
	require.Len(t, diags, 1)
	assert.Equal(t, CodeDuplicateTransition, diags[0].Code)
}

func TestInertGuardCompiles(t *testing.T) {
	b := NewBuilder("m")
	a := b.DefineState("A")
	bs := b.DefineState("B")
	tr := b.DefineTrigger("T")
	other := b.DefineTrigger("U")
	b.AddTransition(a, tr, bs, SyncAction("act", func() {}))
	// No transition for (A, U): the guard is inert, not an error.
	b.AddGuard(a, other, SyncPredicate("p", func() bool { return false }))

	m, diags := Compile(b.Spec(), Config{})
	require.Nil(t, diags)
	assert.False(t, m.CanFire(other))
}

func TestReset(t *testing.T) {
	m, coin, _, locked, unlocked, _, _ := turnstile(t, Config{})
	require.NoError(t, m.Fire(coin))
	require.Equal(t, unlocked, m.State())

	m.Reset(locked)
	assert.Equal(t, locked, m.State())
	assert.Equal(t, "Locked", m.StateName())

	assert.Panics(t, func() { m.Reset(State(9)) })
}

func TestInfo(t *testing.T) {
	b := NewBuilder("turnstile")
	locked := b.DefineState("Locked")
	unlocked := b.DefineState("Unlocked")
	coin := b.DefineTrigger("Coin")
	push := b.DefineTrigger("Push")
	b.AddTransition(unlocked, push, locked, SyncAction("lockAction", func() {}))
	b.AddTransition(locked, coin, unlocked, SyncAction("unlockAction", func() {}))
	b.AddGuard(locked, coin, SyncPredicate("coinIsValid", func() bool { return true }))
	b.AddEntryHook(unlocked, SyncHook("onUnlocked", func() {}))
	b.AddExitHook(locked, SyncHook("leavingLocked", func() {}))

	m, diags := Compile(b.Spec(), Config{})
	require.Nil(t, diags)

	info := m.Info()
	assert.Equal(t, "turnstile", info.Name)
	assert.Equal(t, []string{"Locked", "Unlocked"}, info.States)
	assert.Equal(t, []string{"Coin", "Push"}, info.Triggers)
	assert.Equal(t, "Locked", info.Current)
	assert.True(t, info.Sync)
	assert.False(t, info.Async)

	// Ordered by state then trigger ordinal, regardless of declaration order.
	require.Len(t, info.Transitions, 2)
	first := info.Transitions[0]
	assert.Equal(t, "Locked", first.From)
	assert.Equal(t, "Coin", first.On)
	assert.Equal(t, "Unlocked", first.To)
	assert.Equal(t, "unlockAction", first.Action)
	assert.Equal(t, "coinIsValid", first.Guard)
	assert.Equal(t, []string{"leavingLocked"}, first.ExitHooks)
	assert.Equal(t, []string{"onUnlocked"}, first.EntryHooks)

	second := info.Transitions[1]
	assert.Equal(t, "Unlocked", second.From)
	assert.Equal(t, "Push", second.On)
	assert.Empty(t, second.Guard)
}
