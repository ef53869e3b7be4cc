package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"scenecraft/internal/collab"
	"scenecraft/internal/ledger"
	"scenecraft/internal/scene"
	"scenecraft/internal/types"
	"scenecraft/internal/verification"
	"scenecraft/internal/workflow"

	"golang.org/x/net/websocket"
)

// canned collaborators: every prompt creates one chair at the next free slot.
type cannedClassifier struct{}

func (cannedClassifier) Classify(ctx context.Context, prompt string, recent []types.Turn) (*types.ParsedCommand, error) {
	return &types.ParsedCommand{
		CommandType:     types.CommandCreateOrDestroy,
		InvolvedObjects: []string{"chair"},
		PrimaryAction:   "create",
	}, nil
}

type cannedResolver struct{}

func (cannedResolver) Resolve(ctx context.Context, cmd *types.ParsedCommand, sc []types.SceneObject) (*collab.Resolution, error) {
	return &collab.Resolution{NewObjects: []types.SceneObject{{
		Name:  "chair",
		Scale: types.Vector3{X: 1, Y: 1, Z: 1},
	}}}, nil
}

type cannedPlanner struct{}

func (cannedPlanner) Plan(ctx context.Context, req *collab.PlanRequest) (*types.PlacementBatch, error) {
	batch := &types.PlacementBatch{}
	x := float64(len(req.Scene)) * 3
	for i := range req.Pending {
		batch.Placements = append(batch.Placements, types.Placement{
			ObjectID: req.Pending[i].ID,
			Position: &types.Vector3{X: x, Y: -1, Z: -2},
			Rotation: &types.Vector3{},
			Action:   types.ActionPlace,
		})
		x += 3
	}
	return batch, nil
}

func newTestServer(t *testing.T) (*Server, *scene.Store, *ledger.Ledger) {
	t.Helper()
	store := scene.NewStore()
	lgr := ledger.New(200, nil)
	eng := workflow.New(store, verification.NewVerifier(0.02, 0.25, -1.0, 3.0),
		cannedClassifier{}, cannedResolver{}, cannedPlanner{}, lgr,
		workflow.Config{MaxIterations: 3, ContextTurns: 5})
	return New(":0", eng, store, lgr), store, lgr
}

func postJSON(t *testing.T, h http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestCommandEndpoint(t *testing.T) {
	srv, store, _ := newTestServer(t)
	h := srv.httpSrv.Handler

	rec := postJSON(t, h, "/command", commandRequest{Prompt: "add a chair", SessionID: "s1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var result workflow.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if !result.Success || result.SessionID != "s1" || result.TurnNumber != 1 {
		t.Errorf("result = %+v", result)
	}
	if store.Count() != 1 {
		t.Errorf("scene count = %d, want 1", store.Count())
	}
}

func TestCommandEndpointRejectsBadRequests(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.httpSrv.Handler

	rec := postJSON(t, h, "/command", commandRequest{Prompt: "  "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank prompt status = %d, want 400", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/command", strings.NewReader("not json"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", rec.Code)
	}
}

func TestSceneEndpoint(t *testing.T) {
	srv, store, _ := newTestServer(t)
	h := srv.httpSrv.Handler

	store.Add(types.SceneObject{
		ID:       "chair_01",
		Name:     "chair",
		Position: &types.Vector3{Y: -1},
		Rotation: &types.Vector3{},
	})

	rec := get(t, h, "/scene")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var snap scene.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Objects) != 1 || snap.Objects[0].ID != "chair_01" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestSessionEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.httpSrv.Handler

	postJSON(t, h, "/command", commandRequest{Prompt: "add a chair", SessionID: "s1"})
	postJSON(t, h, "/command", commandRequest{Prompt: "add a chair", SessionID: "s1"})

	rec := get(t, h, "/sessions/s1/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	var stats ledger.Stats
	json.Unmarshal(rec.Body.Bytes(), &stats)
	if stats.TotalTurns != 2 || stats.Successful != 2 {
		t.Errorf("stats = %+v", stats)
	}

	rec = get(t, h, "/sessions/s1/history")
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}

	rec = get(t, h, "/sessions/missing/stats")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", rec.Code)
	}

	rec = get(t, h, "/export")
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d", rec.Code)
	}
	var export ledger.Export
	json.Unmarshal(rec.Body.Bytes(), &export)
	if export.GlobalStats.TotalTurns != 2 {
		t.Errorf("export = %+v", export.GlobalStats)
	}
}

func TestClearSessionEndpoint(t *testing.T) {
	srv, _, lgr := newTestServer(t)
	h := srv.httpSrv.Handler

	postJSON(t, h, "/command", commandRequest{Prompt: "add a chair", SessionID: "s1"})

	req := httptest.NewRequest(http.MethodDelete, "/sessions/s1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if lgr.SessionExists("s1") {
		t.Error("session not cleared")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/sessions/s1", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestPoseEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.httpSrv.Handler

	rec := postJSON(t, h, "/pose", poseRequest{
		SessionID: "s1",
		Pose:      types.Pose{Position: types.Vector3{X: 1}, Rotation: types.Vector3{Y: 1.57}},
	})
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}

	rec = postJSON(t, h, "/pose", poseRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing session status = %d, want 400", rec.Code)
	}
}

func TestCORSHeaders(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.httpSrv.Handler

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/command", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestWebSocketFeed(t *testing.T) {
	srv, store, _ := newTestServer(t)

	ts := httptest.NewServer(srv.httpSrv.Handler)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.hub.run(ctx)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, err := websocket.Dial(wsURL, "", ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// First frame is always the snapshot.
	var first wsMessage
	if err := websocket.JSON.Receive(conn, &first); err != nil {
		t.Fatal(err)
	}
	if first.Type != "snapshot" {
		t.Fatalf("first message type = %q, want snapshot", first.Type)
	}

	store.Add(types.SceneObject{
		ID:       "chair_01",
		Name:     "chair",
		Position: &types.Vector3{Y: -1},
		Rotation: &types.Vector3{},
	})

	var change wsMessage
	if err := websocket.JSON.Receive(conn, &change); err != nil {
		t.Fatal(err)
	}
	if change.Type != "change" || change.Change == nil {
		t.Fatalf("message = %+v", change)
	}
	if change.Change.Kind != types.ChangeAdded || change.Change.ObjectID != "chair_01" {
		t.Errorf("change = %+v", change.Change)
	}
}
