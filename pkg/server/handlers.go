package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dshills/galeview/pkg/broker"
	"github.com/dshills/galeview/pkg/flow"
	"github.com/dshills/galeview/pkg/layout"
	"github.com/dshills/galeview/pkg/validation"
)

// taskView adds the derived agent type to a task record
type taskView struct {
	broker.TaskStatusRecord
	AgentType broker.AgentType `json:"agentType"`
}

func viewTasks(records []broker.TaskStatusRecord) []taskView {
	out := make([]taskView, 0, len(records))
	for _, r := range records {
		out = append(out, taskView{TaskStatusRecord: r, AgentType: r.AgentType()})
	}
	return out
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.broker.ListAgents(r.Context())
	if err != nil {
		s.writeDomainError(w, err, "agents not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	taskID, ok := urlParam(w, r, "taskId", validation.KindTaskID)
	if !ok {
		return
	}

	agent, err := s.broker.GetAgent(r.Context(), taskID)
	if err != nil {
		s.writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agent": agent})
}

// listTasks lists root tasks, or every task of one execution when
// ?correlationId= is set. ?filter= applies a filter expression.
func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	expression := query.Get("filter")
	if expression != "" {
		if err := s.filters.Compile(expression); err != nil {
			s.writeDomainError(w, err, "")
			return
		}
	}

	var (
		tasks []broker.TaskStatusRecord
		err   error
	)
	if cid := query.Get("correlationId"); cid != "" {
		if err := validation.ValidateIdentifier(validation.KindCorrelationID, cid); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		tasks, err = s.broker.ListTasksByCorrelationID(ctx, cid)
	} else {
		tasks, err = s.broker.ListRootTasks(ctx)
	}
	if err != nil {
		s.writeDomainError(w, err, "tasks not found")
		return
	}

	tasks, err = s.filters.Apply(ctx, expression, tasks)
	if err != nil {
		s.writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": viewTasks(tasks)})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParam(w, r, "taskInstanceId", validation.KindTaskInstanceID)
	if !ok {
		return
	}

	task, err := s.broker.GetTaskExecutionRecord(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": taskView{TaskStatusRecord: *task, AgentType: task.AgentType()}})
}

type launchRequest struct {
	TaskID        string          `json:"taskId"`
	TaskInputData json.RawMessage `json:"taskInputData"`
}

// postTask validates the input against the agent's schema before starting it
func (s *Server) postTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[launchRequest](w, r)
	if !ok {
		return
	}
	if err := validation.ValidateIdentifier(validation.KindTaskID, req.TaskID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	agent, err := s.broker.GetAgent(ctx, req.TaskID)
	if err != nil {
		s.writeDomainError(w, err, "agent not found")
		return
	}
	if err := validation.ValidateInput(agent.InputSchema, req.TaskInputData); err != nil {
		s.writeDomainError(w, err, "")
		return
	}

	resp, err := s.broker.PostTask(ctx, req.TaskID, req.TaskInputData)
	if err != nil {
		s.writeDomainError(w, err, "agent not found")
		return
	}
	s.logger.Info("task launched", "task_id", req.TaskID)
	writeRawJSON(w, http.StatusCreated, resp)
}

func (s *Server) fetchFlow(w http.ResponseWriter, r *http.Request) (*flow.Flow, bool) {
	cid, ok := urlParam(w, r, "correlationId", validation.KindCorrelationID)
	if !ok {
		return nil, false
	}

	f, err := s.broker.GetExecutionGraph(r.Context(), cid)
	if err != nil {
		s.writeDomainError(w, err, "flow not found")
		return nil, false
	}
	return f, true
}

func (s *Server) getFlow(w http.ResponseWriter, r *http.Request) {
	f, ok := s.fetchFlow(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flow": f})
}

// getLayout serves the laid-out graph of an execution from the cache when
// possible. ?refresh=true bypasses the cache.
func (s *Server) getLayout(w http.ResponseWriter, r *http.Request) {
	cid := chi.URLParam(r, "correlationId")
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	if !refresh {
		if data, ok := s.cache.Get(cid); ok {
			w.Header().Set("X-Cache", "HIT")
			writeRawJSON(w, http.StatusOK, data)
			return
		}
	}

	f, ok := s.fetchFlow(w, r)
	if !ok {
		return
	}

	data, err := s.renderLayout(f)
	if err != nil {
		s.writeDomainError(w, err, "flow not found")
		return
	}
	s.cache.Set(cid, data)

	w.Header().Set("X-Cache", "MISS")
	writeRawJSON(w, http.StatusOK, data)
}

func (s *Server) renderLayout(f *flow.Flow) ([]byte, error) {
	graph, err := s.engine.Layout(f)
	if err != nil {
		return nil, err
	}
	return json.Marshal(graph)
}

func (s *Server) getLevels(w http.ResponseWriter, r *http.Request) {
	f, ok := s.fetchFlow(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, layout.BuildLevels(f, s.cfg.Sizes))
}

type findResponse struct {
	Type     flow.Kind       `json:"type"`
	Node     json.RawMessage `json:"node"`
	ParentID string          `json:"parentId,omitempty"`
}

// findNode looks up one node by ?agent=, ?group= or ?branch= and returns its
// subtree in wire form
func (s *Server) findNode(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var lookups []string
	for _, key := range []string{"agent", "group", "branch"} {
		if query.Has(key) {
			lookups = append(lookups, key)
		}
	}
	if len(lookups) != 1 {
		writeError(w, http.StatusBadRequest, "exactly one of agent, group or branch is required")
		return
	}

	f, ok := s.fetchFlow(w, r)
	if !ok {
		return
	}

	key := lookups[0]
	value := query.Get(key)
	var (
		id    flow.NodeID
		found bool
	)
	switch key {
	case "agent":
		id, found = f.FindAgentNode(value)
	case "group":
		id, found = f.FindGroupNode(value)
	case "branch":
		id, found = f.FindBranchNode(value)
	}
	if !found {
		writeError(w, http.StatusNotFound, key+" "+strconv.Quote(value)+" not found")
		return
	}

	data, err := f.MarshalNode(id)
	if err != nil {
		s.writeInternalError(w, err)
		return
	}

	resp := findResponse{Type: f.Kind(id), Node: data}
	if parent, ok := f.ParentOf(id); ok {
		pn, _ := f.Node(parent)
		resp.ParentID = layout.RendererID(pn)
	}
	writeJSON(w, http.StatusOK, resp)
}

type snapshotView struct {
	ID            uuid.UUID                 `json:"id"`
	CorrelationID string                    `json:"correlationId"`
	BrokerURL     string                    `json:"brokerUrl,omitempty"`
	Label         string                    `json:"label,omitempty"`
	NumNodes      int                       `json:"numNodes"`
	FetchedAt     string                    `json:"fetchedAt"`
	Flow          json.RawMessage           `json:"flow,omitempty"`
	Tasks         []broker.TaskStatusRecord `json:"tasks,omitempty"`
}

func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))

	snapshots, err := s.snapshots.List(strings.TrimSpace(query.Get("correlationId")), limit)
	if err != nil {
		s.writeInternalError(w, err)
		return
	}

	out := make([]snapshotView, 0, len(snapshots))
	for _, snap := range snapshots {
		out = append(out, snapshotView{
			ID:            snap.ID,
			CorrelationID: snap.CorrelationID,
			BrokerURL:     snap.BrokerURL,
			Label:         snap.Label,
			NumNodes:      snap.NumNodes,
			FetchedAt:     snap.FetchedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": out})
}

func (s *Server) loadSnapshot(w http.ResponseWriter, r *http.Request) (*snapshotView, *flow.Flow, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "snapshotId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid snapshot id")
		return nil, nil, false
	}

	snap, err := s.snapshots.Load(id)
	if err != nil {
		s.writeDomainError(w, err, "snapshot not found")
		return nil, nil, false
	}
	f, err := snap.Flow()
	if err != nil {
		s.writeInternalError(w, err)
		return nil, nil, false
	}

	return &snapshotView{
		ID:            snap.ID,
		CorrelationID: snap.CorrelationID,
		BrokerURL:     snap.BrokerURL,
		Label:         snap.Label,
		NumNodes:      snap.NumNodes,
		FetchedAt:     snap.FetchedAt.UTC().Format(time.RFC3339),
		Flow:          snap.FlowJSON,
		Tasks:         snap.Tasks,
	}, f, true
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	view, _, ok := s.loadSnapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) getSnapshotLayout(w http.ResponseWriter, r *http.Request) {
	_, f, ok := s.loadSnapshot(w, r)
	if !ok {
		return
	}

	data, err := s.renderLayout(f)
	if err != nil {
		s.writeInternalError(w, err)
		return
	}
	writeRawJSON(w, http.StatusOK, data)
}
