package swmr

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// fakeEngine is a minimal eotEngine for scheduler tests: RunEOT just
// advances its own deadline by a fixed step and records it ran.
type fakeEngine struct {
	deadline time.Time
	step     time.Duration
	ran      int
}

func (f *fakeEngine) EndOfTick() time.Time { return f.deadline }

func (f *fakeEngine) RunEOT() error {
	f.ran++
	f.deadline = f.deadline.Add(f.step)
	return nil
}

func Test_Scheduler_Register_Orders_By_Ascending_Deadline(t *testing.T) {
	t.Parallel()

	base := time.Now()
	s := NewScheduler()
	late := &fakeEngine{deadline: base.Add(3 * time.Second)}
	early := &fakeEngine{deadline: base.Add(1 * time.Second)}
	mid := &fakeEngine{deadline: base.Add(2 * time.Second)}

	s.Register(late, roleWriter)
	s.Register(early, roleReader)
	s.Register(mid, roleReader)

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	require.True(t, snap[0].EndOfTick.Equal(early.deadline))
	require.True(t, snap[1].EndOfTick.Equal(mid.deadline))
	require.True(t, snap[2].EndOfTick.Equal(late.deadline))
}

func Test_Scheduler_Register_Preserves_FIFO_Among_Equal_Deadlines(t *testing.T) {
	t.Parallel()

	deadline := time.Now()
	s := NewScheduler()
	first := &fakeEngine{deadline: deadline}
	second := &fakeEngine{deadline: deadline}

	s.Register(first, roleWriter)
	s.Register(second, roleReader)

	snap := s.Snapshot()
	roles := make([]string, len(snap))
	for i, e := range snap {
		roles[i] = e.Role
	}
	if diff := cmp.Diff([]string{"writer", "reader"}, roles); diff != "" {
		t.Fatalf("dispatch order mismatch (-want +got):\n%s", diff)
	}
}

func Test_Scheduler_FirstIsWriter_Reports_Head_Role(t *testing.T) {
	t.Parallel()

	s := NewScheduler()
	require.False(t, s.FirstIsWriter())

	s.Register(&fakeEngine{deadline: time.Now()}, roleWriter)
	require.True(t, s.FirstIsWriter())
}

func Test_Scheduler_Unregister_Removes_Entry(t *testing.T) {
	t.Parallel()

	s := NewScheduler()
	e := &fakeEngine{deadline: time.Now()}
	s.Register(e, roleWriter)
	s.Unregister(e)

	require.Empty(t, s.Snapshot())
}

func Test_Scheduler_DispatchDue_Runs_And_Reinserts_Due_Entries(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := NewScheduler()
	due := &fakeEngine{deadline: now.Add(-time.Second), step: time.Minute}
	notDue := &fakeEngine{deadline: now.Add(time.Hour)}

	s.Register(due, roleWriter)
	s.Register(notDue, roleReader)

	err := s.DispatchDue(now)
	require.NoError(t, err)
	require.Equal(t, 1, due.ran)
	require.Zero(t, notDue.ran)

	// due's new deadline (now+1min) sorts before notDue's (now+1hr).
	snap := s.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, "writer", snap[0].Role)
}

func Test_Trampoline_Dispatches_Only_On_Outermost_Exit(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := NewScheduler()
	due := &fakeEngine{deadline: now.Add(-time.Second), step: time.Minute}
	s.Register(due, roleWriter)

	tr := NewTrampoline(s)
	tr.Enter()
	tr.Enter() // nested call

	require.NoError(t, tr.Exit(now)) // inner exit: must not dispatch
	require.Zero(t, due.ran)

	require.NoError(t, tr.Exit(now)) // outer exit: dispatches
	require.Equal(t, 1, due.ran)
}
