package submit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/accsubmit/internal/chunk"
	"github.com/roach88/accsubmit/internal/errs"
	"github.com/roach88/accsubmit/internal/ledger"
	"github.com/roach88/accsubmit/internal/remote"
	"github.com/roach88/accsubmit/internal/scalers"
	"github.com/roach88/accsubmit/internal/testutil"
)

const remoteDir = "/alice/sim/jpsi"

func newGrid(t *testing.T) *remote.Dir {
	t.Helper()
	ctx := context.Background()
	d := testutil.Grid(t)
	require.NoError(t, d.Mkdir(ctx, remoteDir, true))
	local := filepath.Join(t.TempDir(), "run.jdl")
	require.NoError(t, os.WriteFile(local, []byte("Price = 1;\n"), 0644))
	require.NoError(t, d.CopyIn(ctx, local, remoteDir+"/run.jdl"))
	return d
}

func newTable() *scalers.Table {
	var tbl scalers.Table
	tbl.Set(10, chunk.Level, "CMUL7", 4000)
	tbl.Set(12, chunk.Level, "CMUL7", 1000)
	return &tbl
}

func TestSubmit_FixedTarget(t *testing.T) {
	d := newGrid(t)
	o := &Orchestrator{
		Remote:      d,
		RemoteDir:   remoteDir,
		Runs:        []int{195682, 195683},
		Target:      chunk.Target{Fixed: 10000},
		MaxPerChunk: 5000,
	}
	res, err := o.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Submitted())
	assert.Equal(t, 6, res.TotalChunks)
	assert.Equal(t, 20004, res.TotalEvents)
	assert.Equal(t, "1", res.Jobs[0].JobID)
	assert.Equal(t, "2", res.Jobs[1].JobID)

	queue, err := d.Queue()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"submit /alice/sim/jpsi/run.jdl 195682 3 3334",
		"submit /alice/sim/jpsi/run.jdl 195683 3 3334",
	}, queue)
}

func TestSubmit_TriggerMissSkipsOnlyThatRun(t *testing.T) {
	d := newGrid(t)
	o := &Orchestrator{
		Remote:      d,
		RemoteDir:   remoteDir,
		Runs:        []int{10, 11, 12},
		Target:      chunk.Target{Ratio: 2.5, Trigger: "CMUL7"},
		MaxPerChunk: 5000,
		Scalers:     newTable(),
	}
	res, err := o.Submit(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsTriggerResolution(err))
	assert.Contains(t, err.Error(), "[11]")

	assert.Equal(t, []int{11}, res.FailedRuns())
	require.Len(t, res.Jobs, 2)
	assert.Equal(t, chunk.Plan{Run: 10, Events: 10000, Chunks: 3, EventsPerChunk: 3334}, res.Jobs[0].Plan)
	assert.Equal(t, chunk.Plan{Run: 12, Events: 2500, Chunks: 1, EventsPerChunk: 2501}, res.Jobs[1].Plan)

	queue, err := d.Queue()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"submit /alice/sim/jpsi/run.jdl 10 3 3334",
		"submit /alice/sim/jpsi/run.jdl 12 1 2501",
	}, queue)
}

func TestSubmit_DryRun(t *testing.T) {
	d := newGrid(t)
	o := &Orchestrator{
		Remote:      d,
		RemoteDir:   remoteDir,
		Runs:        []int{10},
		Target:      chunk.Target{Fixed: 100},
		MaxPerChunk: 5000,
		DryRun:      true,
	}
	res, err := o.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalChunks)
	assert.Equal(t, "submit /alice/sim/jpsi/run.jdl 10 1 101", res.Jobs[0].Request)
	assert.Empty(t, res.Jobs[0].JobID)

	queue, _ := d.Queue()
	assert.Empty(t, queue)
}

func TestSubmit_RemoteFailureContinues(t *testing.T) {
	svc := &testutil.Remote{Service: newGrid(t), SubmitErr: func(req string) error {
		if strings.Contains(req, " 11 ") {
			return errors.New("grid unavailable")
		}
		return nil
	}}
	o := &Orchestrator{
		Remote:      svc,
		RemoteDir:   remoteDir,
		Runs:        []int{10, 11, 12},
		Target:      chunk.Target{Fixed: 10},
		MaxPerChunk: 5000,
	}
	res, err := o.Submit(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsRemote(err))
	assert.Equal(t, []int{11}, res.FailedRuns())
	assert.Equal(t, 2, res.Submitted())
	assert.Len(t, svc.Requests(), 3)
}

func TestSubmit_FatalChecks(t *testing.T) {
	ctx := context.Background()
	base := Orchestrator{RemoteDir: remoteDir, Runs: []int{1}, Target: chunk.Target{Fixed: 1}, MaxPerChunk: 10}

	o := base
	o.Remote = testutil.Grid(t)
	_, err := o.Submit(ctx)
	assert.True(t, errs.IsRemote(err), "missing remote dir")

	o = base
	g := testutil.Grid(t)
	require.NoError(t, g.Mkdir(ctx, remoteDir, true))
	o.Remote = g
	_, err = o.Submit(ctx)
	assert.True(t, errs.IsRemote(err), "missing run jdl")

	o = base
	o.Remote = newGrid(t)
	o.Runs = nil
	_, err = o.Submit(ctx)
	assert.True(t, errs.IsConfiguration(err), "empty run list")
}

func TestSubmit_ResumeFromLedger(t *testing.T) {
	ctx := context.Background()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"),
		ledger.WithIDGenerator(ledger.NewFixedGenerator("first", "second")))
	require.NoError(t, err)
	defer l.Close()

	d := newGrid(t)
	first, err := l.StartSession(ctx, "SUBMIT", false, remoteDir)
	require.NoError(t, err)
	o := &Orchestrator{
		Remote:      d,
		RemoteDir:   remoteDir,
		Runs:        []int{10},
		Target:      chunk.Target{Fixed: 10},
		MaxPerChunk: 5000,
		Recorder:    first,
	}
	_, err = o.Submit(ctx)
	require.NoError(t, err)

	second, err := l.StartSession(ctx, "SUBMIT", false, remoteDir)
	require.NoError(t, err)
	o.Runs = []int{10, 11}
	o.Recorder = second
	o.SkipSubmitted = true
	o.History = l
	res, err := o.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{10}, res.Skipped)
	require.Len(t, res.Jobs, 1)
	assert.Equal(t, 11, res.Jobs[0].Run)

	outcomes, err := l.Outcomes(ctx, "second")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, ledger.StatusSkipped, outcomes[0].Status)
	assert.Equal(t, ledger.StatusSubmitted, outcomes[1].Status)
	assert.Equal(t, "2", outcomes[1].JobID)
}
