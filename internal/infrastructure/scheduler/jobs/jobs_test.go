package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpi-hub/orientation-hub/internal/application/command"
	"github.com/mpi-hub/orientation-hub/internal/domain/gradebook"
	"github.com/mpi-hub/orientation-hub/internal/domain/shared"
)

type fakeSyncer struct {
	fail  map[string]error
	calls []command.SyncSectionCommand
}

func (f *fakeSyncer) Handle(_ context.Context, cmd command.SyncSectionCommand) (*command.SyncSectionResult, error) {
	f.calls = append(f.calls, cmd)
	if err := f.fail[cmd.Section]; err != nil {
		return nil, err
	}
	run := &gradebook.SyncRun{Section: cmd.Section, Students: 10}
	return &command.SyncSectionResult{Run: run, RejectedSubjects: []string{"x"}}, nil
}

type fakeWarmer struct {
	fail     map[string]error
	sections []string
}

func (f *fakeWarmer) Handle(_ context.Context, cmd command.WarmReportsCommand) (*command.WarmReportsResult, error) {
	f.sections = append(f.sections, cmd.Section)
	if err := f.fail[cmd.Section]; err != nil {
		return nil, err
	}
	return &command.WarmReportsResult{Tracks: 4}, nil
}

func TestSyncSectionsJob_ContinuesAfterFailure(t *testing.T) {
	boom := errors.New("upstream down")
	syncer := &fakeSyncer{fail: map[string]error{"mpi": boom}}

	var warmed []string
	job := NewSyncSectionsJob(syncer, []string{"mpi", "cba"}, nil).
		AfterSync(func(_ context.Context, section string) { warmed = append(warmed, section) })

	err := job.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "section mpi")

	require.Len(t, syncer.calls, 2)
	assert.Equal(t, syncer.calls[0].CorrelationID, syncer.calls[1].CorrelationID)
	assert.NotEmpty(t, syncer.calls[0].CorrelationID)
	assert.Equal(t, []string{"cba"}, warmed)

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.Sections)
	assert.Equal(t, []string{"mpi"}, stats.Failed)
	assert.Equal(t, 10, stats.Students)
	assert.Equal(t, 1, stats.Rejected)
}

func TestSyncSectionsJob_StopsOnCancel(t *testing.T) {
	syncer := &fakeSyncer{}
	job := NewSyncSectionsJob(syncer, []string{"mpi", "cba"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, job.Run(ctx), context.Canceled)
	assert.Empty(t, syncer.calls)
	assert.Equal(t, "sync_sections", job.Name())
}

func TestWarmReportsJob(t *testing.T) {
	boom := errors.New("redis down")
	warmer := &fakeWarmer{fail: map[string]error{
		"empty":  shared.ErrSectionEmpty,
		"broken": boom,
	}}
	job := NewWarmReportsJob(warmer, []string{"mpi", "empty", "broken"}, true, nil)

	err := job.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.NotContains(t, err.Error(), "section empty")
	assert.Equal(t, []string{"mpi", "empty", "broken"}, warmer.sections)

	assert.NoError(t, job.WarmSection(context.Background(), "empty"))
}
