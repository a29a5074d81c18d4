package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	echoapi "github.com/trezcool/kodomo/apps/api/echo"
	"github.com/trezcool/kodomo/apps/shared"
	"github.com/trezcool/kodomo/core"
	"github.com/trezcool/kodomo/core/academicyear"
	"github.com/trezcool/kodomo/core/assignment"
	"github.com/trezcool/kodomo/testutil"
)

const nurseryID = 1

var errMissingToken = "missing or malformed jwt"

type testApp struct {
	conf *core.Config
	svcs *shared.Services
	srv  *echoapi.Server

	directorToken string
	teacherToken  string
	strangerToken string // director of another nursery
	adminToken    string
}

// newTestApp serves nursery 1: 2024 is current and 2025 is the future year.
// Hana (42) moves from momo to sakura, where Yuki (7) is the main teacher.
func newTestApp(t *testing.T) *testApp {
	conf := testutil.NewConfig()
	svcs := testutil.NewServices(t, conf)

	testutil.CreateYears(t, svcs.Memory,
		testutil.Year(nurseryID, 2024, academicyear.StatusCurrent),
		testutil.Year(nurseryID, 2025, academicyear.StatusFuture),
	)
	svcs.Memory.SaveChildren(testutil.Child(nurseryID, 42, "Hana"), testutil.Child(nurseryID, 43, "Sora"))
	svcs.Memory.SaveStaff(testutil.Staff(nurseryID, 7, "Yuki"), testutil.Staff(nurseryID, 8, "Kenji"))
	svcs.Memory.SaveClasses(
		testutil.Class(nurseryID, 2024, "momo", 20),
		testutil.Class(nurseryID, 2025, "sakura", 20),
	)
	testutil.AssignChildren(t, svcs.Memory, nurseryID, 2024, "momo", 42)
	testutil.AssignChildren(t, svcs.Memory, nurseryID, 2025, "sakura", 42)
	testutil.AssignStaff(t, svcs.Memory, nurseryID, 2025, 7, "sakura", assignment.RoleMainTeacher)

	validate, translator := shared.NewValidator()
	app := &testApp{
		conf: conf,
		svcs: svcs,
		srv: echoapi.NewServer(echoapi.ServerDeps{
			Conf:          conf,
			Logger:        testutil.NewLogger(conf),
			Validate:      validate,
			Translator:    translator,
			YearSvc:       svcs.Years,
			SlideSvc:      svcs.Slides,
			AssignmentSvc: svcs.Assignments,
		}),
	}
	app.directorToken = getToken(t, conf, echoapi.NewClaims(conf, 1, nurseryID, echoapi.RoleDirector))
	app.teacherToken = getToken(t, conf, echoapi.NewClaims(conf, 2, nurseryID, echoapi.RoleTeacher))
	app.strangerToken = getToken(t, conf, echoapi.NewClaims(conf, 3, 2, echoapi.RoleDirector))
	admin := echoapi.NewClaims(conf, 4, 0)
	admin.IsAdmin = true
	app.adminToken = getToken(t, conf, admin)
	return app
}

func getToken(t *testing.T, conf *core.Config, claims *echoapi.Claims) string {
	token, err := echoapi.GenerateToken(conf, claims)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

// envelope mirrors echoapi.Response with raw data.
type envelope struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Data      json.RawMessage   `json:"data"`
	Errors    []core.FieldError `json:"errors"`
	Timestamp time.Time         `json:"timestamp"`
}

type httpTest struct {
	name        string
	method      string
	path        string
	body        []byte
	token       string
	wantCode    int
	wantMessage string
	wantErrors  []core.FieldError
	wantData    []byte
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

func (app *testApp) run(t *testing.T, tt httpTest) envelope {
	if tt.method == "" {
		tt.method = http.MethodGet
	}
	if tt.wantCode == 0 {
		tt.wantCode = http.StatusOK
	}
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	app.srv.ServeHTTP(rec, req)
	return checkResponse(t, tt, rec)
}

func (app *testApp) runAll(t *testing.T, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app.run(t, tt)
		})
	}
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj(): %v", err)
	}
	return data
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

func checkResponse(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}

	var resp envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json.Unmarshal(): %v; body %s", err, rec.Body.String())
	}
	if wantSuccess := tt.wantCode < http.StatusBadRequest; resp.Success != wantSuccess {
		t.Errorf("failed! success = %v; want %v", resp.Success, wantSuccess)
	}
	if resp.Timestamp.IsZero() {
		t.Error("failed! timestamp is missing")
	}
	if tt.wantMessage != "" && resp.Message != tt.wantMessage {
		t.Errorf("failed! message = %q; wantMessage %q", resp.Message, tt.wantMessage)
	}
	wantErrors := tt.wantErrors
	if wantErrors == nil {
		wantErrors = []core.FieldError{}
	}
	if !reflect.DeepEqual(resp.Errors, wantErrors) {
		t.Errorf("failed! errors = %v; wantErrors %v", resp.Errors, wantErrors)
	}
	if tt.wantData != nil {
		ok, err := jsonBytesEqual(resp.Data, tt.wantData)
		if err != nil {
			t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
		}
		if !ok {
			t.Errorf("failed! data = %s; wantData %s", resp.Data, tt.wantData)
		}
	}
	return resp
}
