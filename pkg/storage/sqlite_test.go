package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/galeview/pkg/broker"
	"github.com/dshills/galeview/pkg/flow"
)

const snapshotFlowJSON = `{"correlationId":"c1","root":{"type":"agent","taskId":"plan","taskInstanceId":"i1","status":"completed",
	"next":{"type":"group","groupId":"g1","agents":[
		{"type":"agent","taskId":"write","taskInstanceId":"i2","status":"completed"},
		{"type":"agent","taskId":"write","taskInstanceId":"i3","status":"failed"}]}}}`

func newTestRepo(t testing.TB) *SQLiteSnapshotRepository {
	t.Helper()
	repo, err := NewSQLiteSnapshotRepositoryWithPath(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newTestSnapshot(t testing.TB, input string, fetchedAt time.Time) *Snapshot {
	t.Helper()
	f, err := flow.Unmarshal([]byte(input))
	require.NoError(t, err)
	s, err := NewSnapshot(f, "http://broker.local")
	require.NoError(t, err)
	s.FetchedAt = fetchedAt
	return s
}

func TestInitializeDatabase_Idempotent(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, InitializeDatabase(repo.db))
	version, err := SchemaVersion(repo.db)
	require.NoError(t, err)
	assert.Equal(t, MigrationVersion, version)
}

func TestNewSnapshot(t *testing.T) {
	s := newTestSnapshot(t, snapshotFlowJSON, time.Now())
	assert.NotEqual(t, uuid.Nil, s.ID)
	assert.Equal(t, "c1", s.CorrelationID)
	assert.Equal(t, 4, s.NumNodes)

	f, err := s.Flow()
	require.NoError(t, err)
	_, ok := f.FindGroupNode("g1")
	assert.True(t, ok)

	_, err = NewSnapshot(nil, "")
	assert.Error(t, err)
}

func TestSQLiteSnapshotRepository_SaveLoad(t *testing.T) {
	repo := newTestRepo(t)
	fetched := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	s := newTestSnapshot(t, snapshotFlowJSON, fetched)
	s.Label = "before retry"
	s.Tasks = []broker.TaskStatusRecord{
		{CorrelationID: "c1", TaskID: "plan", TaskInstanceID: "i1", Status: flow.StatusCompleted, StartedAt: fetched},
		{CorrelationID: "c1", TaskID: "write", TaskInstanceID: "i3", Status: flow.StatusFailed, ParentTaskID: "plan"},
	}
	require.NoError(t, repo.Save(s))

	loaded, err := repo.Load(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, loaded.ID)
	assert.Equal(t, "c1", loaded.CorrelationID)
	assert.Equal(t, "http://broker.local", loaded.BrokerURL)
	assert.Equal(t, "before retry", loaded.Label)
	assert.Equal(t, 4, loaded.NumNodes)
	assert.True(t, fetched.Equal(loaded.FetchedAt), "fetched at %v", loaded.FetchedAt)
	assert.JSONEq(t, string(s.FlowJSON), string(loaded.FlowJSON))

	require.Len(t, loaded.Tasks, 2)
	assert.Equal(t, "i1", loaded.Tasks[0].TaskInstanceID)
	assert.Equal(t, broker.AgentTypeAgent, loaded.Tasks[1].AgentType())

	f, err := loaded.Flow()
	require.NoError(t, err)
	id, ok := f.FindAgentNode("i3")
	require.True(t, ok)
	n, _ := f.Node(id)
	assert.Equal(t, flow.StatusFailed, n.Status)
}

func TestSQLiteSnapshotRepository_SaveReplaces(t *testing.T) {
	repo := newTestRepo(t)

	s := newTestSnapshot(t, snapshotFlowJSON, time.Now())
	s.Tasks = []broker.TaskStatusRecord{{TaskID: "plan", TaskInstanceID: "i1", Status: flow.StatusStarted}}
	require.NoError(t, repo.Save(s))

	s.Label = "relabeled"
	s.Tasks = nil
	require.NoError(t, repo.Save(s))

	loaded, err := repo.Load(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "relabeled", loaded.Label)
	assert.Empty(t, loaded.Tasks)

	all, err := repo.List("", 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLiteSnapshotRepository_SaveRejects(t *testing.T) {
	repo := newTestRepo(t)

	assert.Error(t, repo.Save(nil))
	assert.Error(t, repo.Save(&Snapshot{CorrelationID: "c1", FlowJSON: []byte("{}")}))
	assert.Error(t, repo.Save(&Snapshot{ID: uuid.New(), FlowJSON: []byte("{}")}))
	assert.Error(t, repo.Save(&Snapshot{ID: uuid.New(), CorrelationID: "c1", FlowJSON: []byte("{")}))
}

func TestSQLiteSnapshotRepository_ListAndLatest(t *testing.T) {
	repo := newTestRepo(t)
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	first := newTestSnapshot(t, snapshotFlowJSON, base)
	second := newTestSnapshot(t, snapshotFlowJSON, base.Add(time.Minute))
	other := newTestSnapshot(t, `{"correlationId":"c2","root":{"type":"agent","taskId":"t","taskInstanceId":"x"}}`, base.Add(2*time.Minute))
	for _, s := range []*Snapshot{first, second, other} {
		require.NoError(t, repo.Save(s))
	}

	all, err := repo.List("", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, other.ID, all[0].ID)
	assert.Equal(t, first.ID, all[2].ID)

	c1, err := repo.List("c1", 0)
	require.NoError(t, err)
	require.Len(t, c1, 2)
	assert.Equal(t, second.ID, c1[0].ID)

	limited, err := repo.List("", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	latest, err := repo.Latest("c1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	_, err = repo.Latest("c3")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
	_, err = repo.Latest("")
	assert.Error(t, err)

	none, err := repo.List("c3", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteSnapshotRepository_Delete(t *testing.T) {
	repo := newTestRepo(t)

	s := newTestSnapshot(t, snapshotFlowJSON, time.Now())
	s.Tasks = []broker.TaskStatusRecord{{TaskID: "plan", TaskInstanceID: "i1", Status: flow.StatusStarted}}
	require.NoError(t, repo.Save(s))

	require.NoError(t, repo.Delete(s.ID))

	_, err := repo.Load(s.ID)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
	assert.ErrorIs(t, repo.Delete(s.ID), ErrSnapshotNotFound)
	assert.Error(t, repo.Delete(uuid.Nil))

	var orphans int
	require.NoError(t, repo.db.QueryRow("SELECT COUNT(*) FROM snapshot_tasks").Scan(&orphans))
	assert.Zero(t, orphans)
}
