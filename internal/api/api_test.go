package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mautops/turk-gin/internal/api"
	"github.com/mautops/turk-gin/internal/config"
	"github.com/mautops/turk-gin/internal/database"
	"github.com/mautops/turk-gin/internal/lifecycle"
	"github.com/mautops/turk-gin/internal/marketplace"
	"github.com/mautops/turk-gin/internal/model"
	"github.com/mautops/turk-gin/internal/repository"
	"github.com/mautops/turk-gin/internal/tasks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router  *gin.Engine
	sandbox *marketplace.MemoryClient
	manager *lifecycle.Manager
}

// setupTestServer 使用 SQLite 内存库和内存市场搭建路由
func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db, err := database.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	registry, err := tasks.DefaultRegistry(logger)
	require.NoError(t, err)
	sandbox := marketplace.NewMemoryClient()
	manager := lifecycle.NewManager(db, sandbox, registry, lifecycle.Options{}, logger)
	require.NoError(t, manager.RegisterTasks(context.Background()))

	return &testServer{
		router:  api.SetupRoutes(db, manager, sandbox, nil, config.ServerConfig{}),
		sandbox: sandbox,
		manager: manager,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var resp struct {
		Code int             `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Data, out))
}

// createBatch 通过接口创建单个 HIT 的批次, 返回批次和 HIT ID
func (s *testServer) createBatch(t *testing.T) (string, string) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/batches", gin.H{
		"task":   "example",
		"inputs": []gin.H{{"text": "a cat on a mat"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var batch model.BatchModel
	decodeData(t, w, &batch)

	w = s.do(t, http.MethodGet, "/api/v1/batches/"+batch.ID+"/hits", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var hits []model.HITModel
	decodeData(t, w, &hits)
	require.Len(t, hits, 1)
	return batch.ID, hits[0].ID
}

// TestHealthCheck 测试健康检查
func TestHealthCheck(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "healthy", body.Checks["database"])
	assert.Equal(t, "sandbox", body.Checks["marketplace"])
	assert.Contains(t, body.Checks["tasks"], "registered")
}

// TestRateLimitMiddleware 测试按客户端限流和错误响应格式
func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(api.RateLimitMiddleware(0.5, 1))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/api/v1/tasks", func(c *gin.Context) { api.Success(c, nil) })

	get := func(path, addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, get("/api/v1/tasks", "10.0.0.1:1000").Code)

	w := get("/api/v1/tasks", "10.0.0.1:1001")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, "rate limit exceeded", resp.Message)
	assert.Equal(t, "client 10.0.0.1", resp.Detail)

	// 其他客户端有独立的令牌桶
	assert.Equal(t, http.StatusOK, get("/api/v1/tasks", "10.0.0.2:1000").Code)
	// 健康检查不限流
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, get("/health", "10.0.0.1:1002").Code)
	}
}

// TestNewLoggerFromConfig 测试文件输出和固定字段
func TestNewLoggerFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "turk-gin.log")
	logger, err := api.NewLoggerFromConfig(&config.LogConfig{
		Level:  "debug",
		Format: "json",
		Output: "file",
		File:   path,
	}, logrus.Fields{"env": "test", "region": ""})
	require.NoError(t, err)

	logger.WithField("batch_id", "b1").Debug("batch synced")
	logger.WithField("service", "worker-page").Info("override")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "turk-gin", first["service"])
	assert.Equal(t, "test", first["env"])
	assert.Equal(t, "b1", first["batch_id"])
	assert.NotContains(t, first, "region")
	assert.Equal(t, "worker-page", second["service"])
}

// TestBatchController_Create 测试创建批次
func TestBatchController_Create(t *testing.T) {
	s := setupTestServer(t)
	batchID, hitID := s.createBatch(t)

	w := s.do(t, http.MethodGet, "/api/v1/batches/"+batchID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var batch model.BatchModel
	decodeData(t, w, &batch)
	assert.Equal(t, model.BatchStatePendingAnnotation, batch.State)
	assert.Equal(t, "example", batch.TaskName)

	w = s.do(t, http.MethodGet, "/api/v1/hits/"+hitID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var hit model.HITModel
	decodeData(t, w, &hit)
	assert.Equal(t, 3, hit.ExpectedAssignmentCount)
	assert.JSONEq(t, `{"text": "a cat on a mat"}`, string(hit.InputData))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

// TestBatchController_CreateInvalid 测试创建批次的参数校验
func TestBatchController_CreateInvalid(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/batches", gin.H{"task": "example", "inputs": []gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/batches", gin.H{"task": "missing", "inputs": []gin.H{{}}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestBatchController_List 测试按状态过滤批次
func TestBatchController_List(t *testing.T) {
	s := setupTestServer(t)
	s.createBatch(t)
	cancelledID, _ := s.createBatch(t)

	w := s.do(t, http.MethodPost, "/api/v1/batches/"+cancelledID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var list struct {
		Total int `json:"total"`
	}
	w = s.do(t, http.MethodGet, "/api/v1/batches", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Total)

	w = s.do(t, http.MethodGet, "/api/v1/batches?state=cancelled", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)

	w = s.do(t, http.MethodGet, "/api/v1/batches?state=pending_annotation,done", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)

	w = s.do(t, http.MethodGet, "/api/v1/batches?state=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestBatchController_NotFound 测试不存在和非法的 ID
func TestBatchController_NotFound(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/batches/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "failed to get batch", resp.Message)

	w = s.do(t, http.MethodGet, "/api/v1/batches/bad.id", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestBatchController_History 测试批次状态历史
func TestBatchController_History(t *testing.T) {
	s := setupTestServer(t)
	batchID, _ := s.createBatch(t)

	w := s.do(t, http.MethodGet, "/api/v1/batches/"+batchID+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []model.StateHistoryModel
	decodeData(t, w, &history)
	states := make([]string, 0, len(history))
	for _, h := range history {
		states = append(states, h.ToState)
	}
	assert.Contains(t, states, string(model.BatchStatePendingAnnotation))
}

// TestTasks 测试列出已注册任务
func TestTasks(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "example")
}

// TestWorkerFlow 测试工作者页面, 沙箱提交, 同步和审核的完整流程
func TestWorkerFlow(t *testing.T) {
	s := setupTestServer(t)
	_, hitID := s.createBatch(t)

	query := url.Values{
		"hitId":        {hitID},
		"assignmentId": {"ASSN-LOCAL"},
		"workerId":     {"W1"},
		"turkSubmitTo": {"https://workersandbox.mturk.com/"},
	}
	w := s.do(t, http.MethodGet, "/worker/page?"+query.Encode(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "a cat on a mat")
	assert.Contains(t, w.Body.String(), `action="https://workersandbox.mturk.com/mturk/externalSubmit"`)
	assert.Empty(t, w.Header().Get("X-Frame-Options"))

	assignmentID := submitForm(t, s, url.Values{
		"hitId":        {hitID},
		"workerId":     {"W1"},
		"assignmentId": {"ASSN-LOCAL"},
		"output":       {`{"label": "cat"}`},
	})

	w = s.do(t, http.MethodPost, "/api/v1/hits/"+hitID+"/sync", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/hits/"+hitID+"/assignments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var assignments []model.AssignmentModel
	decodeData(t, w, &assignments)
	require.Len(t, assignments, 1)
	assert.Equal(t, assignmentID, assignments[0].ID)
	assert.Equal(t, model.AssignmentStatePendingVerification, assignments[0].State)
	assert.JSONEq(t, `{"label": "cat"}`, string(assignments[0].OutputData))

	// 待审核作业存在时不能取消 HIT
	w = s.do(t, http.MethodPost, "/api/v1/hits/"+hitID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/assignments/"+assignmentID+"/reject", gin.H{"message": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/assignments/"+assignmentID+"/approve", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var assignment model.AssignmentModel
	decodeData(t, w, &assignment)
	assert.Equal(t, model.AssignmentStateAccepted, assignment.State)

	w = s.do(t, http.MethodPost, "/api/v1/assignments/"+assignmentID+"/reject", gin.H{"message": "too late"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func submitForm(t *testing.T, s *testServer, form url.Values) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mturk/externalSubmit", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var result api.SubmitResult
	decodeData(t, w, &result)
	require.NotEmpty(t, result.AssignmentID)
	return result.AssignmentID
}

// TestWorkerController_Invalid 测试工作者接口的参数校验
func TestWorkerController_Invalid(t *testing.T) {
	s := setupTestServer(t)
	_, hitID := s.createBatch(t)

	w := s.do(t, http.MethodGet, "/worker/page", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/worker/page?hitId=missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 预览状态下不能提交
	req := httptest.NewRequest(http.MethodPost, "/mturk/externalSubmit", strings.NewReader(url.Values{
		"hitId":        {hitID},
		"workerId":     {"W1"},
		"assignmentId": {tasks.Preview},
	}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestHITController_Extend 测试追加作业
func TestHITController_Extend(t *testing.T) {
	s := setupTestServer(t)
	_, hitID := s.createBatch(t)

	w := s.do(t, http.MethodPost, "/api/v1/hits/"+hitID+"/extend", gin.H{"count": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/hits/"+hitID+"/extend", gin.H{"count": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var hit model.HITModel
	decodeData(t, w, &hit)
	assert.Equal(t, 5, hit.ExpectedAssignmentCount)

	remote, err := s.sandbox.GetHIT(context.Background(), hitID)
	require.NoError(t, err)
	assert.Equal(t, 5, remote.MaxAssignments)
}

// TestHITController_SetOutput 测试写入聚合结果
func TestHITController_SetOutput(t *testing.T) {
	s := setupTestServer(t)
	_, hitID := s.createBatch(t)

	w := s.do(t, http.MethodPut, "/api/v1/hits/"+hitID+"/output", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 聚合前不能写入
	w = s.do(t, http.MethodPut, "/api/v1/hits/"+hitID+"/output", gin.H{"output": gin.H{"label": "cat"}})
	assert.Equal(t, http.StatusConflict, w.Code)

	for _, worker := range []string{"W1", "W2", "W3"} {
		_, err := s.sandbox.Submit(hitID, worker, map[string]string{"output": `{"label": "cat"}`})
		require.NoError(t, err)
	}
	require.NoError(t, s.manager.SyncHIT(context.Background(), hitID))

	w = s.do(t, http.MethodPut, "/api/v1/hits/"+hitID+"/output", gin.H{"output": gin.H{"label": "cat"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var hit model.HITModel
	decodeData(t, w, &hit)
	assert.JSONEq(t, `{"label": "cat"}`, string(hit.OutputData))
}

// TestStatusFor 测试领域错误到 HTTP 状态码的映射
func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("get: %w", repository.ErrNotFound), http.StatusNotFound},
		{"remote not found", marketplace.ErrNotFound, http.StatusNotFound},
		{"unknown task", tasks.ErrUnknownTask, http.StatusNotFound},
		{"missing param", marketplace.ErrMissingParam, http.StatusBadRequest},
		{"missing answer", marketplace.ErrMissingAnswer, http.StatusBadRequest},
		{"must be reviewed", marketplace.ErrHITMustBeReviewed, http.StatusConflict},
		{"invalid transition", lifecycle.ErrInvalidTransition, http.StatusConflict},
		{"concurrent update", lifecycle.ErrConcurrentUpdate, http.StatusConflict},
		{"unknown status", lifecycle.ErrUnknownStatus, http.StatusConflict},
		{"request error", &marketplace.RequestError{Operation: "get_hit", Err: errors.New("throttled")}, http.StatusBadGateway},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, api.StatusFor(tt.err))
		})
	}
}
