package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"madangbot/internal/domain"
	"madangbot/internal/infra/redisq"
	"madangbot/internal/usecase"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCycle struct {
	report usecase.CycleReport
	err    error
}

func (s stubCycle) Run(context.Context) (usecase.CycleReport, error) { return s.report, s.err }

type stubWorker struct {
	res usecase.Result
	err error
}

func (s stubWorker) ProcessOne(context.Context) (usecase.Result, error) { return s.res, s.err }

type stubPlanner struct {
	topic string
	err   error
}

func (s *stubPlanner) Plan(_ context.Context, topic string) (string, error) {
	s.topic = topic
	return "planned-1", s.err
}

func newTestServer(t *testing.T, d Deps) (*httptest.Server, *usecase.Queue) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	q := usecase.NewQueue(redisq.NewWithClient(rdb, "test"))
	d.Queue = q
	if d.Cycle == nil {
		d.Cycle = stubCycle{}
	}
	if d.Worker == nil {
		d.Worker = stubWorker{}
	}
	if d.Planner == nil {
		d.Planner = &stubPlanner{}
	}

	srv := httptest.NewServer(NewServer(d).Handler())
	t.Cleanup(srv.Close)
	return srv, q
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, Deps{})
	resp, body := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRunCycle(t *testing.T) {
	srv, _ := newTestServer(t, Deps{Cycle: stubCycle{report: usecase.CycleReport{Worker: &usecase.Result{Reason: "empty"}}}})
	resp, body := do(t, http.MethodPost, srv.URL+"/api/run", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "empty", body["worker"].(map[string]any)["reason"])

	srv, _ = newTestServer(t, Deps{Cycle: stubCycle{err: domain.ErrCycleRunning}})
	resp, _ = do(t, http.MethodPost, srv.URL+"/api/run", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestProcessOneStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, http.StatusOK},
		{"too fast", errors.Join(domain.ErrTooFast, &domain.RateLimitError{}), http.StatusTooManyRequests},
		{"no credential", domain.ErrNoCredential, http.StatusServiceUnavailable},
		{"upstream", errors.New("boom"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newTestServer(t, Deps{Worker: stubWorker{res: usecase.Result{Processed: true, Type: "post"}, err: tc.err}})
			resp, body := do(t, http.MethodPost, srv.URL+"/api/worker/process", "")
			assert.Equal(t, tc.want, resp.StatusCode)
			if tc.want == http.StatusTooManyRequests {
				assert.Equal(t, domain.ErrTooFast.Error(), body["error"])
			}
		})
	}
}

func TestCreateDraftAndInspectQueue(t *testing.T) {
	srv, _ := newTestServer(t, Deps{})

	resp, body := do(t, http.MethodPost, srv.URL+"/api/drafts", `{"title":"T","content":"C","submadang":"general"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := body["id"].(string)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/queue/stats", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["total"])
	assert.EqualValues(t, 1, body["pending"])

	resp, body = do(t, http.MethodGet, srv.URL+"/api/queue/tasks/"+id, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "post_draft", body["type"])

	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/queue/tasks/"+id, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/queue/tasks/"+id, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateDraftValidation(t *testing.T) {
	srv, _ := newTestServer(t, Deps{})

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/drafts", `{"title":"T"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/drafts", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateDraftGenerated(t *testing.T) {
	p := &stubPlanner{}
	srv, _ := newTestServer(t, Deps{Planner: p})

	resp, body := do(t, http.MethodPost, srv.URL+"/api/drafts?generate=true", `{"topic":"coffee"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "planned-1", body["id"])
	assert.Equal(t, "coffee", p.topic)

	p.err = usecase.ErrNoTopic
	resp, _ = do(t, http.MethodPost, srv.URL+"/api/drafts?generate=true", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListTasks(t *testing.T) {
	srv, q := newTestServer(t, Deps{})
	ctx := context.Background()
	for _, n := range []string{"n1", "n2"} {
		_, err := q.Enqueue(ctx, domain.ReplyTask{NotificationID: n, PostID: "p"})
		require.NoError(t, err)
	}

	resp, err := http.Get(srv.URL + "/api/queue/tasks?limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	var tasks []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "n1", tasks[0]["payload"].(map[string]any)["notificationId"])

	bad, _ := do(t, http.MethodGet, srv.URL+"/api/queue/tasks?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestHTTPServerAllowsLongCycles(t *testing.T) {
	srv := NewServer(Deps{Cycle: stubCycle{}})
	hs := srv.httpServer(8080)

	assert.Equal(t, ":8080", hs.Addr)
	assert.NotNil(t, hs.Handler)
	assert.Equal(t, cycleWriteTimeout, hs.WriteTimeout)
	assert.Greater(t, hs.WriteTimeout, hs.ReadTimeout)
}
