package scheduler

import (
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(tasks []Task) []TaskID {
	out := make([]TaskID, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestScheduleRejectsInvalid(t *testing.T) {
	t.Parallel()

	s := New(100)

	_, err := s.Schedule(MarketShock{Factor: 1.2}, At(99))
	require.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = s.Schedule(UnrestCheck{}, Spec{DueAt: 200, Recurrence: &Recurrence{Interval: 0}})
	require.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = Every(200, -5, 1)
	require.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = Every(200, 5, -1)
	require.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = s.Schedule(nil, At(200))
	require.ErrorIs(t, err, ErrInvalidSchedule)

	id, err := s.Schedule(UnrestCheck{}, At(100))
	require.NoError(t, err)
	assert.Equal(t, TaskID(1), id)
	assert.Equal(t, 1, s.Len())
}

func TestDrainOrderAndTieBreak(t *testing.T) {
	t.Parallel()

	s := New(0)
	c, _ := s.Schedule(UnrestCheck{}, At(7))
	a, _ := s.Schedule(UnrestCheck{}, At(5))
	b, _ := s.Schedule(PolicyResolution{}, At(5))
	_, _ = s.Schedule(DiplomaticPulse{}, At(8))

	due := s.DrainDue(7)
	assert.Equal(t, []TaskID{a, b, c}, ids(due))
	assert.Equal(t, 1, s.Len())
	assert.Empty(t, s.DrainDue(7))
}

func TestNoEarlyOrLateExecution(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))
	s := New(0)
	dueAt := make(map[TaskID]uint64)
	for i := 0; i < 500; i++ {
		due := 1 + rng.Uint64N(200_000)
		id, err := s.Schedule(MarketShock{Factor: 1}, At(due))
		require.NoError(t, err)
		dueAt[id] = due
	}

	var now uint64
	fired := 0
	for now < 210_000 {
		prev := now
		now += 1 + rng.Uint64N(3000)
		for _, task := range s.DrainDue(now) {
			due := dueAt[task.ID]
			require.LessOrEqual(t, due, now, "task %d fired early", task.ID)
			require.Greater(t, due, prev, "task %d fired late", task.ID)
			fired++
		}
	}
	assert.Equal(t, 500, fired)
	assert.Zero(t, s.Len())
}

func TestLargeJumpMatchesSmallSteps(t *testing.T) {
	t.Parallel()

	build := func() *Scheduler {
		rng := rand.New(rand.NewPCG(42, 42))
		s := New(0)
		for i := 0; i < 100; i++ {
			due := 1 + rng.Uint64N(1000)
			spec := At(due)
			switch {
			case i == 0:
				spec = MustEvery(1, 10, 0)
			case i%10 == 0:
				spec = MustEvery(due, int64(1+rng.IntN(90)), 0)
			}
			_, err := s.Schedule(UnrestCheck{}, spec)
			require.NoError(t, err)
		}
		return s
	}

	type run struct {
		id  TaskID
		due uint64
	}
	collect := func(tasks []Task, into *[]run) {
		for _, task := range tasks {
			*into = append(*into, run{task.ID, task.Spec.DueAt})
		}
	}

	var jumped, stepped []run
	collect(build().DrainDue(1000), &jumped)

	small := build()
	for now := uint64(1); now <= 1000; now++ {
		collect(small.DrainDue(now), &stepped)
	}

	require.Equal(t, stepped, jumped)
	assert.Greater(t, len(jumped), 100)
}

func TestRecurrenceLimit(t *testing.T) {
	t.Parallel()

	s := New(0)
	id, err := s.Schedule(DiplomaticPulse{}, MustEvery(5, 10, 3))
	require.NoError(t, err)

	var at []uint64
	for now := uint64(1); now <= 100; now++ {
		for _, task := range s.DrainDue(now) {
			require.Equal(t, id, task.ID)
			at = append(at, now)
			assert.Equal(t, len(at), task.Runs)
		}
	}
	assert.Equal(t, []uint64{5, 15, 25}, at)
	_, ok := s.Pending(id)
	assert.False(t, ok)
}

func TestRecurrenceAcrossJump(t *testing.T) {
	t.Parallel()

	s := New(0)
	_, err := s.Schedule(DiplomaticPulse{}, MustEvery(3, 3, 2))
	require.NoError(t, err)
	_, err = s.Schedule(UnrestCheck{}, MustEvery(0, 360, 0))
	require.NoError(t, err)

	due := s.DrainDue(10 * 360)
	var dues []uint64
	for _, task := range due {
		dues = append(dues, task.Spec.DueAt)
	}
	assert.True(t, sort.SliceIsSorted(dues, func(i, j int) bool { return dues[i] < dues[j] }))
	// pulse twice (3, 6) plus the unbounded check at 0, 360, ..., 3600.
	assert.Len(t, due, 2+11)
	assert.Equal(t, 1, s.Len())
	next, ok := s.NextDue()
	require.True(t, ok)
	assert.Equal(t, uint64(11*360), next)
}

func TestCancelIdempotent(t *testing.T) {
	t.Parallel()

	s := New(0)
	a, _ := s.Schedule(UnrestCheck{}, At(10))
	b, _ := s.Schedule(UnrestCheck{}, At(20))
	far, _ := s.Schedule(MarketShock{Factor: 0.7}, At(500_000))
	fired, _ := s.Schedule(UnrestCheck{}, At(1))

	require.Len(t, s.DrainDue(1), 1)
	assert.False(t, s.Cancel(fired))

	assert.True(t, s.Cancel(a))
	assert.False(t, s.Cancel(a))
	assert.False(t, s.Cancel(TaskID(999)))
	assert.True(t, s.Cancel(far))
	assert.False(t, s.Cancel(far))

	due := s.DrainDue(1_000_000)
	assert.Equal(t, []TaskID{b}, ids(due))
}

func TestBucketPlacementAndPromotion(t *testing.T) {
	t.Parallel()

	s := New(0)
	hour, _ := s.Schedule(UnrestCheck{}, At(30))
	day, _ := s.Schedule(UnrestCheck{}, At(600))
	month, _ := s.Schedule(UnrestCheck{}, At(20_000))
	far, _ := s.Schedule(UnrestCheck{}, At(400_000))

	bucket := func(id TaskID) Bucket {
		b, ok := s.BucketOf(id)
		require.True(t, ok)
		return b
	}
	assert.Equal(t, BucketHour, bucket(hour))
	assert.Equal(t, BucketDay, bucket(day))
	assert.Equal(t, BucketMonth, bucket(month))
	assert.Equal(t, BucketFar, bucket(far))
	assert.Equal(t, Counts{1, 1, 1, 1}, s.Counts())

	s.RebucketOnAdvance(560)
	assert.Equal(t, BucketHour, bucket(day))

	s.RebucketOnAdvance(19_000)
	assert.Equal(t, BucketDay, bucket(month))
	assert.Equal(t, BucketFar, bucket(far))

	// Slot of 400_000 ends at 431_999 and is released once within the month horizon.
	s.RebucketOnAdvance(431_999 - MonthHorizon)
	assert.Equal(t, BucketMonth, bucket(far))

	s.RebucketOnAdvance(399_990)
	assert.Equal(t, BucketHour, bucket(far))
	assert.Equal(t, 4, s.Counts().Total())
}

func TestFarTasksNotExaminedPerTick(t *testing.T) {
	t.Parallel()

	s := New(0)
	for i := 0; i < 1000; i++ {
		_, err := s.Schedule(UnrestCheck{}, At(uint64(1_000_000+i)))
		require.NoError(t, err)
	}
	for now := uint64(1); now <= 100; now++ {
		assert.Zero(t, s.RebucketOnAdvance(now))
	}
	assert.Equal(t, 1000, s.Counts()[BucketFar])
}

func TestFarSlotsDroppedWhenEmptied(t *testing.T) {
	t.Parallel()

	s := New(0)
	keep, err := s.Schedule(UnrestCheck{}, At(20_000_000))
	require.NoError(t, err)
	for i := range 10_000 {
		id, err := s.Schedule(UnrestCheck{}, At(10_000_000+uint64(i%3)*FarSlotSpan))
		require.NoError(t, err)
		require.True(t, s.Cancel(id))
	}
	assert.Equal(t, 1, s.far.keys.Len())
	assert.Len(t, s.far.slots, 1)
	assert.Equal(t, 1, s.far.size)

	next, ok := s.NextDue()
	require.True(t, ok)
	assert.Equal(t, uint64(20_000_000), next)

	require.True(t, s.Cancel(keep))
	assert.Zero(t, s.far.keys.Len())
	assert.Empty(t, s.far.slots)
	_, ok = s.NextDue()
	assert.False(t, ok)
}

func TestFarPlacementIsPerSlot(t *testing.T) {
	t.Parallel()

	s := New(0)
	id, err := s.Schedule(UnrestCheck{}, At(MonthHorizon))
	require.NoError(t, err)

	// The slot holding minute 43_200 ends at 86_399.
	s.RebucketOnAdvance(43_190)
	b, _ := s.BucketOf(id)
	assert.Equal(t, BucketFar, b, "due in 10 minutes but its slot reaches past the horizon")
	next, ok := s.NextDue()
	require.True(t, ok)
	assert.Equal(t, uint64(MonthHorizon), next)

	s.RebucketOnAdvance(slotEnd(1) - MonthHorizon)
	b, _ = s.BucketOf(id)
	assert.Equal(t, BucketHour, b)
	assert.Equal(t, []TaskID{id}, ids(s.DrainDue(MonthHorizon)))
}

func TestSnapshotRestore(t *testing.T) {
	t.Parallel()

	s := New(0)
	_, _ = s.Schedule(DiplomaticMission{Country: "Aurelia", Partner: "Borealis", Delta: 5}, At(900))
	_, _ = s.Schedule(InfrastructureProject{Country: "Aurelia", Stability: 3, GDP: 0.02}, At(100_000))
	rec, _ := s.Schedule(ScriptedEventCheck{Template: "harvest"}, MustEvery(120, 120, 4))
	require.Len(t, s.DrainDue(130), 1)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Tasks, 3)

	restored, err := Restore(snap)
	require.NoError(t, err)
	assert.Equal(t, s.Tasks(), restored.Tasks())
	assert.Equal(t, s.Counts(), restored.Counts())

	task, ok := restored.Pending(rec)
	require.True(t, ok)
	assert.Equal(t, 1, task.Runs)
	assert.Equal(t, uint64(240), task.Spec.DueAt)

	assert.Equal(t, ids(s.DrainDue(200_000)), ids(restored.DrainDue(200_000)))

	next, err := restored.Schedule(UnrestCheck{}, At(300_000))
	require.NoError(t, err)
	assert.Equal(t, TaskID(4), next)
}

func TestPayloadCodec(t *testing.T) {
	t.Parallel()

	payloads := []Payload{
		PolicyResolution{}, DiplomaticPulse{}, UnrestCheck{},
		ScriptedEventCheck{Template: "drought"},
		DiplomaticMission{Country: "A", Partner: "B", Delta: -4},
		InfrastructureProject{Country: "A", Stability: 2, GDP: 0.015},
		MarketShock{Factor: 1.35},
	}
	for _, p := range payloads {
		data, err := EncodePayload(p)
		require.NoError(t, err)
		got, err := DecodePayload(p.Kind(), data)
		require.NoError(t, err)
		assert.Equal(t, p, got)

		k, err := ParseKind(p.Kind().String())
		require.NoError(t, err)
		assert.Equal(t, p.Kind(), k)
	}
	assert.Len(t, Kinds(), len(payloads))

	_, err := DecodePayload(Kind(99), nil)
	require.Error(t, err)
}
