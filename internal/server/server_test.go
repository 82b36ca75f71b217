package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	aggregatedomain "github.com/smallbiznis/certify/internal/aggregate/domain"
	aggregaterepository "github.com/smallbiznis/certify/internal/aggregate/repository"
	aggregateservice "github.com/smallbiznis/certify/internal/aggregate/service"
	auditdomain "github.com/smallbiznis/certify/internal/audit/domain"
	auditrepository "github.com/smallbiznis/certify/internal/audit/repository"
	auditservice "github.com/smallbiznis/certify/internal/audit/service"
	"github.com/smallbiznis/certify/internal/clock"
	"github.com/smallbiznis/certify/internal/config"
	customerdomain "github.com/smallbiznis/certify/internal/customer/domain"
	customerrepository "github.com/smallbiznis/certify/internal/customer/repository"
	customerservice "github.com/smallbiznis/certify/internal/customer/service"
	historydomain "github.com/smallbiznis/certify/internal/history/domain"
	historyrepository "github.com/smallbiznis/certify/internal/history/repository"
	historyservice "github.com/smallbiznis/certify/internal/history/service"
	lifecycleservice "github.com/smallbiznis/certify/internal/lifecycle/service"
	"github.com/smallbiznis/certify/internal/observability/metrics"
	"github.com/smallbiznis/certify/internal/reconcile"
	"github.com/smallbiznis/certify/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type serverEnv struct {
	srv   *Server
	db    *gorm.DB
	genID *snowflake.Node
}

func newServerEnv(t *testing.T) *serverEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	metrics.ResetReconcileMetricsForTest()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&customerdomain.Customer{},
		&historydomain.StatusHistoryRecord{},
		&aggregatedomain.MonthlyCount{},
		&aggregatedomain.MonthlyCountByType{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	cfg := config.Config{HTTPAddr: ":0", MaxReasonLength: 500, TransitionRetries: 3}
	fake := clock.NewFakeClock(time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC))

	m, err := metrics.New(metrics.Config{}, noop.NewMeterProvider())
	require.NoError(t, err)

	customerRepo := customerrepository.Provide()
	historyRepo := historyrepository.Provide()
	aggregateRepo := aggregaterepository.Provide()
	auditRepo := auditrepository.Provide()

	customerSvc := customerservice.New(customerservice.Params{DB: db, Log: log, GenID: node, Repo: customerRepo})
	historySvc := historyservice.New(historyservice.Params{DB: db, Log: log, Repo: historyRepo})
	aggregateSvc := aggregateservice.New(aggregateservice.Params{DB: db, Log: log, Repo: aggregateRepo})
	auditSvc := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node, Repo: auditRepo})
	lifecycleSvc := lifecycleservice.New(lifecycleservice.Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Config:    cfg,
		Clock:     fake,
		Customers: customerRepo,
		History:   historyRepo,
		Counts:    aggregateRepo,
		Metrics:   m,
		Audit:     auditSvc,
	})
	job, err := reconcile.New(reconcile.Params{DB: db, Log: log, Clock: fake, Counts: aggregateRepo, Metrics: m, Audit: auditSvc})
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	srv := NewServer(ServerParams{
		Gin:          engine,
		Cfg:          cfg,
		GenID:        node,
		CustomerSvc:  customerSvc,
		LifecycleSvc: lifecycleSvc,
		HistorySvc:   historySvc,
		AggregateSvc: aggregateSvc,
		AuditSvc:     auditSvc,
		ReconcileJob: job,
	})

	return &serverEnv{srv: srv, db: db, genID: node}
}

func (e *serverEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.srv.Engine().ServeHTTP(w, req)
	return w
}

func (e *serverEnv) createCustomer(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v1/customers", gin.H{
		"name":  "Acme GmbH",
		"email": "billing@acme.example",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data customerdomain.Customer `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Data.ID.String()
}

func TestCreateAndTransitionCustomer(t *testing.T) {
	env := newServerEnv(t)
	id := env.createCustomer(t)

	w := env.do(t, http.MethodPost, "/v1/customers/"+id+"/transition", gin.H{
		"status": "NOTIFIED",
		"reason": "letter sent",
		"actor":  "clerk-7",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			Applied  bool `json:"applied"`
			Customer struct {
				Status string `json:"status"`
			} `json:"customer"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Data.Applied)
	assert.Equal(t, "NOTIFIED", resp.Data.Customer.Status)
}

func TestTransition_RuleViolationReturns422(t *testing.T) {
	env := newServerEnv(t)
	id := env.createCustomer(t)

	w := env.do(t, http.MethodPost, "/v1/customers/"+id+"/transition", gin.H{"status": "CERTIFIED"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	var resp struct {
		Error struct {
			Type           string          `json:"type"`
			AllowedTargets []status.Status `json:"allowed_targets"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "rule_violation", resp.Error.Type)
	assert.Equal(t, []status.Status{
		status.StatusNotified,
		status.StatusAborted,
		status.StatusCertifiedElsewhere,
	}, resp.Error.AllowedTargets)
}

func TestTransition_UnknownStatusReturns400(t *testing.T) {
	env := newServerEnv(t)
	id := env.createCustomer(t)

	w := env.do(t, http.MethodPost, "/v1/customers/"+id+"/transition", gin.H{"status": "BOGUS"})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestTransition_MissingCustomerReturns404(t *testing.T) {
	env := newServerEnv(t)

	w := env.do(t, http.MethodPost, "/v1/customers/"+env.genID.Generate().String()+"/transition", gin.H{"status": "NOTIFIED"})
	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
}

func TestGetAllowedTargets(t *testing.T) {
	env := newServerEnv(t)

	w := env.do(t, http.MethodGet, "/v1/statuses/aborted/targets", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			Status  string   `json:"status"`
			Targets []string `json:"targets"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ABORTED", resp.Data.Status)
	assert.Equal(t, []string{"NEW", "CERTIFIED_ELSEWHERE"}, resp.Data.Targets)
}

func TestMonthlyReportAfterCertification(t *testing.T) {
	env := newServerEnv(t)
	id := env.createCustomer(t)

	for _, target := range []string{"NOTIFIED", "SUBMITTED", "CERTIFIED"} {
		w := env.do(t, http.MethodPost, "/v1/customers/"+id+"/transition", gin.H{"status": target})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := env.do(t, http.MethodGet, "/v1/reports/certifications/monthly?month=2026-05", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			Counts []struct {
				Month string `json:"month"`
				Count int64  `json:"count"`
			} `json:"counts"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Counts, 1)
	assert.Equal(t, "2026-05", resp.Data.Counts[0].Month)
	assert.Equal(t, int64(1), resp.Data.Counts[0].Count)
}

func TestMonthlyReport_InvalidMonthReturns400(t *testing.T) {
	env := newServerEnv(t)

	w := env.do(t, http.MethodGet, "/v1/reports/certifications/monthly?month=2026-13", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestCustomerHistoryEndpoint(t *testing.T) {
	env := newServerEnv(t)
	id := env.createCustomer(t)

	w := env.do(t, http.MethodPost, "/v1/customers/"+id+"/transition", gin.H{"status": "NOTIFIED"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/v1/customers/"+id+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			Records []struct {
				FromStatus string `json:"from_status"`
				ToStatus   string `json:"to_status"`
			} `json:"records"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Records, 1)
	assert.Equal(t, "NEW", resp.Data.Records[0].FromStatus)
	assert.Equal(t, "NOTIFIED", resp.Data.Records[0].ToStatus)
}

func TestReconciliationEndpoint(t *testing.T) {
	env := newServerEnv(t)
	id := env.createCustomer(t)

	for _, target := range []string{"NOTIFIED", "SUBMITTED", "CERTIFIED"} {
		w := env.do(t, http.MethodPost, "/v1/customers/"+id+"/transition", gin.H{"status": target})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := env.do(t, http.MethodPost, "/v1/admin/reconciliation/run", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			CustomersScanned int `json:"customers_scanned"`
			Diffs            []struct {
				Key string `json:"key"`
			} `json:"diffs"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.CustomersScanned)
	assert.Empty(t, resp.Data.Diffs)
}

func TestAuditLogsEndpoint(t *testing.T) {
	env := newServerEnv(t)
	env.createCustomer(t)

	w := env.do(t, http.MethodGet, "/v1/admin/audit-logs?action=customer.create", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			AuditLogs []struct {
				Action string `json:"action"`
			} `json:"audit_logs"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data.AuditLogs, 1)
	assert.Equal(t, "customer.create", resp.Data.AuditLogs[0].Action)
}
