package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkin/internal/attendance"
	"checkin/internal/events"
	"checkin/internal/kiosk"
	"checkin/internal/roster"
	"checkin/internal/schedule"
	"checkin/internal/testutil"
)

const (
	testSigningKey = "test-signing-key"
	testIssuer     = "checkin-test"
	testAPIKey     = "front-desk-key"
)

var morningCircle = schedule.Window{
	ID:        "sch-morning",
	Name:      "Morning Circle",
	Day:       time.Monday,
	TimeIn:    schedule.MustClock("08:00"),
	TimeOut:   schedule.MustClock("11:30"),
	SectionID: "sec-sunflower",
}

// 2024-01-01 is a Monday.
func at(hour, min int) time.Time {
	return time.Date(2024, 1, 1, hour, min, 0, 0, time.UTC)
}

type testServer struct {
	engine *gin.Engine
	clock  *testutil.Clock
	store  *attendance.MemoryStore
	staff  string
}

func newTestServer(t *testing.T, healthy bool) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := testutil.NewClock(at(7, 30))
	dir := schedule.NewMemory(morningCircle)
	people := roster.NewMemory(
		roster.Student{ID: "stu-ana", RFID: "A1", SectionID: "sec-sunflower"},
		roster.Student{ID: "stu-ben", RFID: "B2", SectionID: "sec-sunflower"},
	)
	sessions := kiosk.NewService(kiosk.NewMemoryStore(), dir, 4*time.Hour)
	sessions.Now = clock.Now

	st := attendance.NewMemoryStore()
	st.Now = clock.Now
	hub := events.NewHub(8)
	res := attendance.NewResolver(sessions, dir, people, st, attendance.Options{
		GracePeriod: 15 * time.Minute,
		Location:    time.UTC,
		Notifier:    hub,
	})
	res.Now = clock.Now

	h := New(Config{
		JWTIssuer:       testIssuer,
		JWTSigningKey:   testSigningKey,
		AccessTTL:       time.Hour,
		StaffAPIKey:     testAPIKey,
		RateLimitPerMin: 600,
	}, sessions, res, dir, hub, map[string]HealthCheck{
		"db": func(context.Context) bool { return healthy },
	})
	r := gin.New()
	h.Register(r)

	ts := &testServer{engine: r, clock: clock, store: st}
	w := ts.do(t, http.MethodPost, "/v1/staff/token", gin.H{"staff_id": "teacher-1", "api_key": testAPIKey}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ts.staff = decode(t, w)["access_token"].(string)
	return ts
}

func (s *testServer) do(t *testing.T, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) createSession(t *testing.T) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/v1/kiosk/create", gin.H{"schedule_id": morningCircle.ID, "kiosk_id": "lobby"}, s.staff)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Morning Circle", body["schedule_name"])
	return body["token"].(string)
}

func (s *testServer) scan(t *testing.T, token, rfid, typ string) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, http.MethodPost, "/v1/kiosk/scan", gin.H{"rfid": rfid, "attendance_type": typ, "session_token": token}, "")
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestStaffToken(t *testing.T) {
	s := newTestServer(t, true)

	w := s.do(t, http.MethodPost, "/v1/staff/token", gin.H{"staff_id": "teacher-1", "api_key": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/v1/staff/token", gin.H{"staff_id": "teacher-1"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateSession_RequiresStaff(t *testing.T) {
	s := newTestServer(t, true)

	w := s.do(t, http.MethodPost, "/v1/kiosk/create", gin.H{"schedule_id": morningCircle.ID}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/v1/kiosk/create", gin.H{"schedule_id": "sch-missing"}, s.staff)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "schedule_not_found", decode(t, w)["code"])
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t, true)
	token := s.createSession(t)

	w := s.do(t, http.MethodGet, "/v1/kiosk/session/"+token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	sess := decode(t, w)["session"].(map[string]any)
	assert.Equal(t, "active", sess["status"])
	assert.Equal(t, "lobby", sess["kiosk_id"])

	w = s.do(t, http.MethodGet, "/v1/kiosk/validate/"+token, nil, "")
	assert.Equal(t, true, decode(t, w)["valid"])

	s.clock.Advance(4*time.Hour + time.Minute)
	w = s.do(t, http.MethodGet, "/v1/kiosk/session/"+token, nil, "")
	require.Equal(t, http.StatusGone, w.Code)
	body := decode(t, w)
	assert.Equal(t, "session_expired", body["code"])
	assert.Equal(t, "expired", body["session"].(map[string]any)["status"])

	w = s.do(t, http.MethodGet, "/v1/kiosk/validate/"+token, nil, "")
	assert.Equal(t, false, decode(t, w)["valid"])

	w = s.do(t, http.MethodGet, "/v1/kiosk/session/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEndSession_Idempotent(t *testing.T) {
	s := newTestServer(t, true)
	token := s.createSession(t)

	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodPost, "/v1/kiosk/end", gin.H{"token": token}, s.staff)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "ended", decode(t, w)["status"])
	}

	w := s.scan(t, token, "A1", "time_in")
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, "session_ended", decode(t, w)["code"])
}

func TestScan_TimeInThenDuplicate(t *testing.T) {
	s := newTestServer(t, true)
	token := s.createSession(t)

	s.clock.Set(at(8, 10))
	w := s.scan(t, token, " a1 ", "time_in")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "present", body["status"])
	assert.Equal(t, false, body["duplicate"])

	s.clock.Set(at(8, 40))
	w = s.scan(t, token, "A1", "time_in")
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, "present", body["status"])
	assert.Equal(t, true, body["duplicate"])

	w = s.scan(t, token, "B2", "time_in")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "late", decode(t, w)["status"])
}

func TestScan_Errors(t *testing.T) {
	s := newTestServer(t, true)
	token := s.createSession(t)
	s.clock.Set(at(8, 5))

	cases := []struct {
		name   string
		token  string
		rfid   string
		typ    string
		status int
		code   string
	}{
		{"time out without time in", token, "B2", "time_out", http.StatusConflict, "no_open_attendance"},
		{"unknown badge", token, "ZZ9", "time_in", http.StatusNotFound, "unknown_badge"},
		{"bad type", token, "A1", "lunch", http.StatusBadRequest, "invalid_scan"},
		{"unknown session", "deadbeef", "A1", "time_in", http.StatusNotFound, "session_not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.scan(t, tc.token, tc.rfid, tc.typ)
			require.Equal(t, tc.status, w.Code, w.Body.String())
			body := decode(t, w)
			assert.Equal(t, tc.code, body["code"])
			assert.Equal(t, false, body["retryable"])
		})
	}

	w := s.do(t, http.MethodPost, "/v1/kiosk/scan", gin.H{"rfid": "A1"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScan_TimeOut(t *testing.T) {
	s := newTestServer(t, true)
	token := s.createSession(t)

	s.clock.Set(at(8, 20))
	require.Equal(t, http.StatusCreated, s.scan(t, token, "A1", "time_in").Code)

	s.clock.Set(at(11, 35))
	w := s.scan(t, token, "A1", "time_out")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "late", body["status"])
	assert.NotNil(t, body["record"].(map[string]any)["time_out"])
}

func TestAttendanceViews(t *testing.T) {
	s := newTestServer(t, true)
	token := s.createSession(t)

	s.clock.Set(at(8, 0))
	require.Equal(t, http.StatusCreated, s.scan(t, token, "A1", "time_in").Code)

	w := s.do(t, http.MethodPost, "/v1/schedules/sch-morning/absences", gin.H{"date": "2024-01-01"}, s.staff)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, decode(t, w)["marked_absent"])

	w = s.do(t, http.MethodGet, "/v1/schedules/sch-morning/attendance?date=2024-01-01", nil, s.staff)
	require.Equal(t, http.StatusOK, w.Code)
	recs := decode(t, w)["records"].([]any)
	assert.Len(t, recs, 2)

	w = s.do(t, http.MethodGet, "/v1/schedules/sch-morning/attendance?date=01/01/2024", nil, s.staff)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_date", decode(t, w)["code"])

	w = s.do(t, http.MethodGet, "/v1/schedules", nil, s.staff)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "2024-01-01", body["date"])
	assert.Len(t, body["schedules"].([]any), 1)

	w = s.do(t, http.MethodGet, "/v1/schedules?date=2024-01-02", nil, s.staff)
	assert.Empty(t, decode(t, w)["schedules"].([]any))
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, true)
	w := s.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	s = newTestServer(t, false)
	w = s.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", decode(t, w)["status"])
}

func TestFeed_StreamsOutcomes(t *testing.T) {
	s := newTestServer(t, true)
	token := s.createSession(t)
	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/kiosk/feed/"+token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	lines := bufio.NewScanner(resp.Body)
	next := func() (string, string) {
		var name string
		for lines.Scan() {
			line := lines.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				return name, strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			}
		}
		t.Fatalf("feed closed: %v", lines.Err())
		return "", ""
	}

	name, _ := next()
	require.Equal(t, "session", name)

	s.clock.Set(at(8, 3))
	require.Equal(t, http.StatusCreated, s.scan(t, token, "B2", "time_in").Code)

	name, data := next()
	require.Equal(t, "attendance", name)
	var o attendance.Outcome
	require.NoError(t, json.Unmarshal([]byte(data), &o))
	assert.Equal(t, "stu-ben", o.Record.StudentID)
	assert.Equal(t, attendance.StatusPresent, o.Status)
}
