package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	. "github.com/pan-thu/lets-talk-sub000/apps/api/echo"
	"github.com/pan-thu/lets-talk-sub000/core"
	"github.com/pan-thu/lets-talk-sub000/core/course"
	"github.com/pan-thu/lets-talk-sub000/core/enrollment"
	"github.com/pan-thu/lets-talk-sub000/core/livesession"
	"github.com/pan-thu/lets-talk-sub000/core/user"
	"github.com/pan-thu/lets-talk-sub000/services/audit"
	"github.com/pan-thu/lets-talk-sub000/services/email"
	"github.com/pan-thu/lets-talk-sub000/services/metrics"
	"github.com/pan-thu/lets-talk-sub000/services/payment/stripe"
	"github.com/pan-thu/lets-talk-sub000/storage/database/sqlx"
	"github.com/pan-thu/lets-talk-sub000/tests"
)

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

// env is a fully wired API over a fresh database.
type env struct {
	app        *Server
	courseRepo course.Repository
	enrRepo    enrollment.Repository
	mailSvc    *emailsvc.ConsoleServiceMock
	recorder   *auditsvc.Recorder
	clock      *testutil.Clock
	registry   *prometheus.Registry

	admin    user.User
	teacher  user.User
	student  user.User
	stranger user.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWithConfig(t, conf)
}

func newEnvWithConfig(t *testing.T, conf *core.Config) *env {
	t.Helper()
	db := testutil.PrepareDB(t)
	translator := core.NewTranslator()
	validate := core.NewValidator(translator)

	e := &env{
		courseRepo: sqlxrepos.NewCourseRepository(db),
		enrRepo:    sqlxrepos.NewEnrollmentRepository(db),
		mailSvc:    emailsvc.NewConsoleServiceMock(conf),
		recorder:   auditsvc.NewRecorder(),
		clock:      testutil.NewClock(time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)),
		registry:   prometheus.NewRegistry(),
		admin:      testutil.NewUser("admin", user.RoleAdmin),
		teacher:    testutil.NewUser("teacher", user.RoleTeacher),
		student:    testutil.NewUser("student", user.RoleStudent),
		stranger:   testutil.NewUser("stranger", user.RoleStudent),
	}
	metrics := metricsvc.NewPrometheus(e.registry, "masomo")

	enrSvc := enrollment.NewService(
		db, e.enrRepo, e.courseRepo, validate, e.mailSvc, e.recorder, core.NoopLogger, metrics, e.clock, conf,
	)
	lsSvc := livesession.NewService(
		sqlxrepos.NewLiveSessionRepository(db), e.courseRepo, enrSvc, validate, e.recorder, metrics, e.clock, conf,
	)

	e.app = NewServer("", nil, &Deps{
		Conf:           conf,
		Logger:         core.NoopLogger,
		Translator:     translator,
		EnrollmentSvc:  enrSvc,
		LiveSessionSvc: lsSvc,
		WebhookParser:  stripesvc.NewWebhookParser(conf),
		Gatherer:       e.registry,
	})
	return e
}

// do serves the request and returns the recorder.
func (e *env) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	e.app.ServeHTTP(rec, req)
	return rec
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

// getToken signs the claims the identity provider would issue for usr.
func getToken(t *testing.T, usr user.User) string {
	t.Helper()
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Username: usr.Username,
		Email:    usr.Email,
		Roles:    usr.Roles,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(conf.SecretKey))
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest), rec.Body.String())
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
