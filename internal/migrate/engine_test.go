package migrate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/homestore/internal/record"
	"github.com/roach88/homestore/internal/store"
)

// spy records which gates ran and with which oldVersion.
type spy struct {
	calls []spyCall
}

type spyCall struct {
	gate       int
	oldVersion int
}

func (s *spy) step(gate int) Step {
	return Step{
		Name: "spy",
		Gate: gate,
		Transform: func(_ View, oldVersion int) error {
			s.calls = append(s.calls, spyCall{gate: gate, oldVersion: oldVersion})
			return nil
		},
	}
}

func (s *spy) gates() []int {
	var out []int
	for _, c := range s.calls {
		out = append(out, c.gate)
	}
	return out
}

func TestMigrate_Monotonic(t *testing.T) {
	for from := 0; from <= 5; from++ {
		t.Run(fmt.Sprintf("from=%d", from), func(t *testing.T) {
			sp := &spy{}
			reg := MustRegistry(sp.step(1), sp.step(2), sp.step(3), sp.step(4), sp.step(5))
			e, err := New(reg, 5)
			require.NoError(t, err)

			s := newTestStore(t)
			setVersion(t, s, from)

			res, err := e.Migrate(context.Background(), ForStore(s))
			require.NoError(t, err)

			assert.Equal(t, 5, version(t, s))
			assert.Equal(t, from, res.From)
			assert.Equal(t, 5, res.To)
			for _, c := range sp.calls {
				assert.Greater(t, c.gate, from, "step gated at %d ran for stored version %d", c.gate, from)
				assert.Equal(t, from, c.oldVersion, "steps see the pre-migration version")
			}
			assert.Len(t, sp.calls, 5-from)
		})
	}
}

func TestMigrate_RunsEachStepOnceInGateOrder(t *testing.T) {
	sp := &spy{}
	reg := MustRegistry(sp.step(14), sp.step(9), sp.step(12), sp.step(10))
	e, err := New(reg, 14)
	require.NoError(t, err)

	s := newTestStore(t)
	res, err := e.Migrate(context.Background(), ForStore(s))
	require.NoError(t, err)

	assert.Equal(t, []int{9, 10, 12, 14}, sp.gates())
	assert.Len(t, res.Applied, 4)
	assert.True(t, res.Migrated())
}

func TestMigrate_AtTargetIsNoop(t *testing.T) {
	sp := &spy{}
	e, err := New(MustRegistry(sp.step(3)), 3)
	require.NoError(t, err)

	s := newTestStore(t)
	setVersion(t, s, 3)

	res, err := e.Migrate(context.Background(), ForStore(s))
	require.NoError(t, err)
	assert.Empty(t, sp.calls)
	assert.False(t, res.Migrated())
}

func TestMigrate_VersionRegression(t *testing.T) {
	sp := &spy{}
	e, err := New(MustRegistry(sp.step(9), sp.step(20)), 20)
	require.NoError(t, err)

	s := newTestStore(t)
	setVersion(t, s, 26)

	_, err = e.Migrate(context.Background(), ForStore(s))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVersionRegression)
	assert.True(t, IsVersionRegression(err))

	var vr *VersionRegressionError
	require.True(t, errors.As(err, &vr))
	assert.Equal(t, 26, vr.Stored)
	assert.Equal(t, 20, vr.Target)

	assert.Empty(t, sp.calls, "no transform may run on a newer store")
	assert.Equal(t, 26, version(t, s))
}

func TestMigrate_StepFailureRollsBack(t *testing.T) {
	boom := errors.New("boom")
	reg := MustRegistry(
		Step{Name: "backfill", Gate: 2, Transform: BackfillDefault("action", "isServerControlled", record.Bool(false))},
		Step{Name: "explode", Gate: 3, Transform: func(View, int) error { return boom }},
	)
	e, err := New(reg, 3)
	require.NoError(t, err)

	s := newTestStore(t)
	put(t, s, "action", rec{id: "a1", fields: record.Fields{"Name": record.String("x")}})
	setVersion(t, s, 1)
	before := dump(t, s)

	_, err = e.Migrate(context.Background(), ForStore(s))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, IsStepFailed(err))

	var sf *StepFailedError
	require.True(t, errors.As(err, &sf))
	assert.Equal(t, 1, sf.Index)
	assert.Equal(t, "explode", sf.Name)
	assert.Equal(t, 3, sf.Gate)

	assert.Equal(t, 1, version(t, s), "version is only written when every step succeeds")
	assert.Equal(t, before, dump(t, s), "earlier steps are rolled back too")
}

func TestMigrate_RerunAfterRollbackIsIdempotent(t *testing.T) {
	reg := MustRegistry(
		Step{Name: "backfill", Gate: 2, Transform: BackfillDefault("action", "isServerControlled", record.Bool(false))},
		Step{Name: "dedupe", Gate: 3, Transform: DedupeByKey("category", "Identifier")},
		Step{Name: "rename", Gate: 4, Transform: RenameField("zone", "TrackingEnabled", "isTrackingEnabled")},
	)
	e, err := New(reg, 4)
	require.NoError(t, err)

	s := newTestStore(t)
	put(t, s, "action", rec{id: "a1"}, rec{id: "a2"})
	put(t, s, "category",
		rec{id: "c1", fields: record.Fields{"Identifier": record.String("X")}},
		rec{id: "c2", fields: record.Fields{"Identifier": record.String("X")}},
	)
	put(t, s, "zone", rec{id: "z1", fields: record.Fields{"TrackingEnabled": record.Bool(true)}})

	_, err = e.Migrate(context.Background(), ForStore(s))
	require.NoError(t, err)
	once := dump(t, s)

	// Simulate a crash after the steps ran but before the version stuck.
	setVersion(t, s, 0)
	_, err = e.Migrate(context.Background(), ForStore(s))
	require.NoError(t, err)

	assert.Equal(t, once, dump(t, s))
	assert.Equal(t, 4, version(t, s))
}

func TestMigrate_IgnoresCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var s *store.Store
	reg := MustRegistry(Step{Name: "cancel-midway", Gate: 1, Transform: func(v View, _ int) error {
		cancel()
		return v.SetField("action", "a1", "Name", record.String("after-cancel"))
	}})
	e, err := New(reg, 1)
	require.NoError(t, err)

	s = newTestStore(t)
	put(t, s, "action", rec{id: "a1"})

	_, err = e.Migrate(ctx, ForStore(s))
	require.NoError(t, err)
	assert.Equal(t, record.String("after-cancel"), field(t, s, "action", "a1", "Name"))
	assert.Equal(t, 1, version(t, s))
}

func TestNew_RejectsGateAboveTarget(t *testing.T) {
	_, err := New(MustRegistry(Step{Name: "future", Gate: 17, Transform: noop}), 16)
	assert.ErrorIs(t, err, ErrInvalidStep)

	_, err = New(nil, -1)
	assert.Error(t, err)
}

func TestInitialize_StampsTarget(t *testing.T) {
	sp := &spy{}
	e, err := New(MustRegistry(sp.step(5)), 16)
	require.NoError(t, err)

	s := newTestStore(t)
	require.NoError(t, e.Initialize(context.Background(), ForStore(s)))
	assert.Equal(t, 16, version(t, s))
	assert.Empty(t, sp.calls)
	assert.Equal(t, 16, e.Target())
}
