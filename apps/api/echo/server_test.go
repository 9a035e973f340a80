package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/access"
	"github.com/trezcool/academia/core/record"
	"github.com/trezcool/academia/core/recurrence"
	"github.com/trezcool/academia/core/user"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
	testutil "github.com/trezcool/academia/tests"
)

var (
	conf = &core.Config{
		AppName:   "Academia",
		SecretKey: "test-secret",
		TestMode:  true,
		Server:    core.ServerConfig{JWTExpirationDelta: time.Hour},
	}

	seedRoles = []access.Role{
		{
			DisplayName: "Student", IAMName: "student",
			Permissions: []string{
				"courses:read:member_only",
				"assignments:read:member_only",
				"recurrences:read:member_only",
				"users:read:self",
				"users:update:self",
				"users:delete:self",
			},
			Views: []string{"courses:card"},
		},
		{
			DisplayName: "Teacher", IAMName: "teacher",
			Permissions: []string{
				"courses:read:member_only",
				"assignments:create:member_only",
				"assignments:read:member_only",
				"assignments:update:creator_only",
				"recurrences:create:member_only",
				"recurrences:read:member_only",
				"recurrences:update:creator_only",
				"recurrences:delete:creator_only",
				"users:read:student",
			},
			Views: []string{"courses:table", "courses:card"},
		},
		{
			DisplayName: "Admin", IAMName: "admin",
			Permissions: []string{
				"roles:read", "roles:create",
				"users:read",
				"users:create:student", "users:create:teacher",
				"users:update:student", "users:update:teacher",
				"courses:read",
			},
			Views: []string{"users:table"},
		},
	}
)

type fixture struct {
	app                    echoapi.Server
	admin, t1, s1, s2, off user.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db := inmemdb.Open()
	records := inmemdb.NewRecordRepository(db)
	usrSvc := user.NewService(records, inmemdb.NewRoleRepository(db))
	recSvc := recurrence.NewService(nil, inmemdb.NewRecurrenceRepository(db), nil, 0)

	testutil.CreateRoles(t, usrSvc, seedRoles...)
	f := &fixture{
		admin: testutil.CreateUser(t, usrSvc, "Admin", true, "admin"),
		t1:    testutil.CreateUser(t, usrSvc, "Teacher One", true, "teacher"),
		s1:    testutil.CreateUser(t, usrSvc, "Student One", true, "student"),
		s2:    testutil.CreateUser(t, usrSvc, "Student Two", true, "student"),
		off:   testutil.CreateUser(t, usrSvc, "Gone", false, "student"),
	}

	for _, rec := range []record.Record{
		{ID: "c1", Type: record.Courses, CreatedBy: f.admin.ID, Members: []string{f.t1.ID, f.s1.ID}},
		{ID: "c2", Type: record.Courses, CreatedBy: f.admin.ID, Members: []string{f.s2.ID}},
	} {
		_, err := records.Create(ctx, rec)
		require.NoError(t, err)
	}

	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	recurrence.InitValidators(validate, translator)

	f.app = echoapi.NewServer(echoapi.ServerDeps{
		Conf:          conf,
		Engine:        access.NewEngine(records, nil),
		Records:       records,
		UserSvc:       usrSvc,
		RecurrenceSvc: recSvc,
		Validate:      validate,
		Translator:    translator,
	})
	return f
}

func token(t *testing.T, usr user.User) string {
	t.Helper()
	tok, err := echoapi.GenerateToken(echoapi.GetUserClaims(usr, conf), conf)
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, method, path string, usr *user.User, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if usr != nil {
		req.Header.Set("Authorization", "Bearer "+token(t, *usr))
	}
	rec := httptest.NewRecorder()
	f.app.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func recordIDs(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	var objs []struct {
		ID string `json:"id"`
	}
	decode(t, rec, &objs)
	ids := make([]string, 0, len(objs))
	for _, o := range objs {
		ids = append(ids, o.ID)
	}
	return ids
}

func TestServer_home(t *testing.T) {
	f := setup(t)
	rec := f.do(t, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Academia API!", rec.Body.String())
}

func TestServer_auth(t *testing.T) {
	f := setup(t)
	ghost := user.User{ID: "ghost"}

	tests := []struct {
		name     string
		usr      *user.User
		wantCode int
		wantErr  string
	}{
		{name: "missing token", wantCode: http.StatusUnauthorized, wantErr: "missing or malformed jwt"},
		{name: "unknown user", usr: &ghost, wantCode: http.StatusUnauthorized, wantErr: "user not authenticated"},
		{name: "inactive user", usr: &f.off, wantCode: http.StatusForbidden, wantErr: "account deactivated"},
		{name: "active user", usr: &f.s1, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/v1/me", tt.usr, nil)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantErr != "" {
				assert.JSONEq(t, `{"error":"`+tt.wantErr+`"}`, rec.Body.String())
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer not.a.jwt")
	rec := httptest.NewRecorder()
	f.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type meResponse struct {
	Principal struct {
		ID     string `json:"id"`
		Active *struct {
			IAMName string `json:"iam_name"`
		} `json:"active"`
	} `json:"principal"`
	Permissions []string          `json:"permissions"`
	Views       []string          `json:"views"`
	ViewModes   map[string]string `json:"view_modes"`
}

func TestServer_me(t *testing.T) {
	f := setup(t)

	var me meResponse
	decode(t, f.do(t, http.MethodGet, "/v1/me", &f.t1, nil), &me)
	assert.Equal(t, f.t1.ID, me.Principal.ID)
	assert.Nil(t, me.Principal.Active)
	assert.Contains(t, me.Permissions, "recurrences:create:member_only")
	assert.Equal(t, "both", me.ViewModes["courses"])
	assert.Equal(t, "nothing", me.ViewModes["grades"])

	decode(t, f.do(t, http.MethodGet, "/v1/me", &f.s1, nil), &me)
	assert.Equal(t, "card", me.ViewModes["courses"])
}

func TestServer_become(t *testing.T) {
	f := setup(t)

	// a student cannot impersonate an admin
	rec := f.do(t, http.MethodPost, "/v1/me/become/admin", &f.s1, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/me/become/nope", &f.admin, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/me/become/student", &f.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var me meResponse
	decode(t, rec, &me)
	require.NotNil(t, me.Principal.Active)
	assert.Equal(t, "student", me.Principal.Active.IAMName)

	// persisted across requests
	me = meResponse{}
	decode(t, f.do(t, http.MethodGet, "/v1/me", &f.admin, nil), &me)
	require.NotNil(t, me.Principal.Active)
	assert.Equal(t, "card", me.ViewModes["courses"])
	assert.Equal(t, "table", me.ViewModes["users"])

	rec = f.do(t, http.MethodDelete, "/v1/me/become", &f.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me = meResponse{}
	decode(t, f.do(t, http.MethodGet, "/v1/me", &f.admin, nil), &me)
	assert.Nil(t, me.Principal.Active)
}

func TestServer_roles(t *testing.T) {
	f := setup(t)

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/v1/roles", &f.t1, nil).Code)

	rec := f.do(t, http.MethodGet, "/v1/roles", &f.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var roles []access.Role
	decode(t, rec, &roles)
	assert.Len(t, roles, len(seedRoles))

	tests := []struct {
		name     string
		role     access.Role
		wantCode int
	}{
		{name: "valid", role: access.Role{DisplayName: "Registrar", IAMName: "registrar"}, wantCode: http.StatusCreated},
		{name: "bad iam name", role: access.Role{DisplayName: "Bad", IAMName: "Bad Name"}, wantCode: http.StatusBadRequest},
		{name: "missing display name", role: access.Role{IAMName: "nameless"}, wantCode: http.StatusBadRequest},
		{name: "duplicate", role: access.Role{DisplayName: "Teacher 2", IAMName: "teacher"}, wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/v1/roles", &f.admin, tt.role)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}
}

func TestServer_records(t *testing.T) {
	f := setup(t)

	// list endpoints only return authorized rows
	rec := f.do(t, http.MethodGet, "/v1/records/courses", &f.s1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"c1"}, recordIDs(t, rec))
	rec = f.do(t, http.MethodGet, "/v1/records/courses", &f.admin, nil)
	assert.ElementsMatch(t, []string{"c1", "c2"}, recordIDs(t, rec))

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/records/courses/c1", &f.s2, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/v1/records/courses/c1", &f.s1, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/records/spaceships", &f.admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/records/recurrences", &f.admin, nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/v1/records/grades", &f.s1, nil).Code)

	tests := []struct {
		name     string
		usr      *user.User
		body     echoapi.RecordRequest
		wantCode int
	}{
		{name: "teacher, own course", usr: &f.t1, body: echoapi.RecordRequest{Course: "c1"}, wantCode: http.StatusCreated},
		{name: "teacher, other course", usr: &f.t1, body: echoapi.RecordRequest{Course: "c2"}, wantCode: http.StatusForbidden},
		{name: "student", usr: &f.s1, body: echoapi.RecordRequest{Course: "c1"}, wantCode: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/v1/records/assignments", tt.usr, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}

	rec = f.do(t, http.MethodPost, "/v1/records/assignments", &f.t1, echoapi.RecordRequest{
		Course: "c1", Data: map[string]interface{}{"title": "Essay"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created record.Record
	decode(t, rec, &created)
	assert.Equal(t, f.t1.ID, created.CreatedBy)

	path := "/v1/records/assignments/" + created.ID
	rec = f.do(t, http.MethodPut, path, &f.t1, echoapi.RecordRequest{Data: map[string]interface{}{"title": "Long essay"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated record.Record
	decode(t, rec, &updated)
	assert.Equal(t, "Long essay", updated.Data["title"])
	assert.Equal(t, "c1", updated.Course)

	// readable but not writable
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPut, path, &f.s1, echoapi.RecordRequest{}).Code)
	// moving to a course the teacher does not belong to
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPut, path, &f.t1, echoapi.RecordRequest{Course: "c2"}).Code)
	// no delete grant
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodDelete, path, &f.t1, nil).Code)
}

func TestServer_users(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodGet, "/v1/records/users", &f.t1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []string{f.s1.ID, f.s2.ID, f.off.ID}, recordIDs(t, rec))

	rec = f.do(t, http.MethodGet, "/v1/records/users", &f.s1, nil)
	assert.Equal(t, []string{f.s1.ID}, recordIDs(t, rec))
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/records/users/"+f.s2.ID, &f.s1, nil).Code)

	newTeacher := user.NewUser{Name: "New Teacher", Roles: []string{"teacher"}}
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/v1/records/users", &f.t1, newTeacher).Code)
	rec = f.do(t, http.MethodPost, "/v1/records/users", &f.admin, newTeacher)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created user.User
	decode(t, rec, &created)
	assert.Equal(t, []string{"teacher"}, created.Roles)
	assert.Equal(t, f.admin.ID, created.CreatedBy)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/v1/records/users", &f.admin, user.NewUser{}).Code)

	// self exception
	rec = f.do(t, http.MethodPut, "/v1/records/users/"+f.s1.ID, &f.s1, user.UpdateUser{Name: "Renamed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var renamed user.User
	decode(t, rec, &renamed)
	assert.Equal(t, "Renamed", renamed.Name)

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPut, "/v1/records/users/"+f.s1.ID, &f.s1, user.UpdateUser{Roles: []string{"admin"}}).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPut, "/v1/records/users/"+f.s2.ID, &f.s1, user.UpdateUser{Name: "Hacked"}).Code)

	// deleting yourself needs users:delete:self
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodDelete, "/v1/records/users/"+f.admin.ID, &f.admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/v1/records/users/"+f.s2.ID, &f.s1, nil).Code)
	rec = f.do(t, http.MethodDelete, "/v1/records/users/"+f.s1.ID, &f.s1, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/records/users/"+f.s1.ID, &f.admin, nil).Code)
}

func TestServer_recurrences(t *testing.T) {
	f := setup(t)

	weekly := recurrence.RuleInput{
		Course: "c1", Title: "Lab", Date: "2024-01-01", TerminationDate: "2024-01-15",
		StartTime: "09:00", EndTime: "11:00",
		IsWeekly: true, EveryNWeeks: 1, Weekdays: []string{"mon", "wed"},
	}

	rec := f.do(t, http.MethodPost, "/v1/recurrences/preview", &f.s1, weekly)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var preview echoapi.PreviewResponse
	decode(t, rec, &preview)
	assert.Equal(t, []string{"2024-01-01", "2024-01-03", "2024-01-08", "2024-01-10"}, preview.Dates)
	assert.False(t, preview.Truncated)

	bad := weekly
	bad.IsDaily = true
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/v1/recurrences/preview", &f.t1, bad).Code)

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/v1/recurrences", &f.s1, weekly).Code)
	rec = f.do(t, http.MethodPost, "/v1/recurrences", &f.t1, weekly)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Rule struct {
			ID string `json:"id"`
		} `json:"rule"`
		Deleted int `json:"deleted"`
		Created int `json:"created"`
	}
	decode(t, rec, &created)
	assert.Equal(t, 4, created.Created)
	path := "/v1/recurrences/" + created.Rule.ID

	occurrenceDates := func(usr *user.User) []string {
		rec := f.do(t, http.MethodGet, path+"/occurrences", usr, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var occs []struct {
			Date string `json:"date"`
		}
		decode(t, rec, &occs)
		ds := make([]string, 0, len(occs))
		for _, o := range occs {
			ds = append(ds, o.Date)
		}
		return ds
	}
	assert.Equal(t, preview.Dates, occurrenceDates(&f.s1))
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, path+"/occurrences", &f.s2, nil).Code)

	rec = f.do(t, http.MethodGet, "/v1/recurrences", &f.s2, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, recordIDs(t, rec))
	rec = f.do(t, http.MethodGet, "/v1/recurrences", &f.s1, nil)
	assert.Equal(t, []string{created.Rule.ID}, recordIDs(t, rec))

	// fridays from the 8th on: earlier occurrences are history
	moved := weekly
	moved.Date = "2024-01-08"
	moved.Weekdays = []string{"fri"}
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPut, path, &f.s1, moved).Code)
	rec = f.do(t, http.MethodPut, path, &f.t1, moved)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &created)
	assert.Equal(t, 2, created.Deleted)
	assert.Equal(t, 1, created.Created)
	assert.Equal(t, []string{"2024-01-01", "2024-01-03", "2024-01-12"}, occurrenceDates(&f.t1))

	rec = f.do(t, http.MethodDelete, path, &f.t1, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, path+"/occurrences", &f.t1, nil).Code)
}
