package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/api"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/api/handlers"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/clock"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/adherence"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/notification"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/refill"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/schedule"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/settings"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/infrastructure/cache"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/infrastructure/memory"
)

const apiKey = "test-key"

type fixture struct {
	srv    *httptest.Server
	center *notification.Center
	clock  *clock.Managed
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewManaged(time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC))
	schedules := schedule.NewService(memory.NewScheduleRepo(), clk, nil)
	ledger := adherence.NewLedger(memory.NewDoseRepo(), schedules, clk, nil)
	tracker := refill.NewTracker(memory.NewRefillRepo(), clk, nil)
	center := notification.NewCenter(memory.NewNotificationRepo(), clk, nil)
	prefs := settings.NewService(memory.NewPreferenceRepo(), cache.NewMemory(clk), time.Minute, clk, nil)

	router := api.NewRouter(api.RouterConfig{
		ServiceName: "care-api-test",
		APIKeys:     map[string]string{apiKey: "test"},
		Health:      handlers.NewHealthHandler("care-api", nil, nil),
		Routes: []api.Registrar{
			handlers.NewScheduleHandler(schedules, tracker, nil),
			handlers.NewDoseHandler(ledger, nil),
			handlers.NewRefillHandler(tracker, nil),
			handlers.NewNotificationHandler(center, nil),
			handlers.NewPreferenceHandler(prefs, nil),
		},
	}, nil)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, center: center, clock: clk}
}

func (f *fixture) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *fixture) createSchedule(t *testing.T) schedule.Schedule {
	t.Helper()
	var sch schedule.Schedule
	code := f.do(t, http.MethodPost, "/api/v1/schedules", map[string]any{
		"patient_id":      "pat-1",
		"medication_name": "Metformin",
		"dosage":          "500mg",
		"frequency":       "twice_daily",
		"times":           []string{"20:00", "08:00"},
		"start_date":      "2026-03-01",
		"prescribed_by":   "doc-1",
	}, &sch)
	require.Equal(t, http.StatusCreated, code)
	return sch
}

func TestHealthIsOpenAndAPIIsGuarded(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(f.srv.URL + "/api/v1/schedules/x")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestScheduleLifecycle(t *testing.T) {
	f := newFixture(t)
	sch := f.createSchedule(t)
	assert.Equal(t, []string{"08:00", "20:00"}, sch.Times)
	assert.True(t, sch.Active)

	var got schedule.Schedule
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/schedules/"+sch.ID, nil, &got))
	assert.Equal(t, "Metformin", got.MedicationName)

	var patched schedule.Schedule
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPatch, "/api/v1/schedules/"+sch.ID,
		map[string]any{"times": []string{"09:00", "21:00"}, "instructions": "with food"}, &patched))
	assert.Equal(t, []string{"09:00", "21:00"}, patched.Times)
	assert.Equal(t, "with food", patched.Instructions)

	var byDoctor []schedule.Schedule
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/doctors/doc-1/schedules", nil, &byDoctor))
	assert.Len(t, byDoctor, 1)

	var errBody map[string]string
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/schedules/missing", nil, &errBody))
	assert.NotEmpty(t, errBody["error"])
}

func TestCreateScheduleRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	var errBody map[string]string
	code := f.do(t, http.MethodPost, "/api/v1/schedules", map[string]any{
		"patient_id": "pat-1", "medication_name": "X", "frequency": "hourly",
		"times": []string{"08:00"}, "start_date": "2026-03-01",
	}, &errBody)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, errBody["error"], "frequency")

	code = f.do(t, http.MethodPost, "/api/v1/schedules", map[string]any{"unknown": true}, &errBody)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestDeactivateScheduleStopsRefills(t *testing.T) {
	f := newFixture(t)
	sch := f.createSchedule(t)

	var rem refill.Reminder
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/refills", map[string]any{
		"patient_id":         "pat-1",
		"schedule_id":        sch.ID,
		"medication_name":    "Metformin",
		"days_before_refill": 3,
		"next_refill_date":   "2026-03-12",
	}, &rem))

	var out struct {
		Schedule           schedule.Schedule `json:"schedule"`
		RefillsDeactivated int               `json:"refills_deactivated"`
	}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/schedules/"+sch.ID+"/deactivate", nil, &out))
	assert.False(t, out.Schedule.Active)
	assert.Equal(t, 1, out.RefillsDeactivated)

	var after refill.Reminder
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/refills/"+rem.ID, nil, &after))
	assert.False(t, after.Active)
}

func TestDoseMarkingAndAdherence(t *testing.T) {
	f := newFixture(t)
	sch := f.createSchedule(t)

	var rec adherence.DoseRecord
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/doses/taken", map[string]any{
		"schedule_id": sch.ID, "patient_id": "pat-1", "scheduled_time": "08:00",
	}, &rec))
	assert.Equal(t, adherence.StateTaken, rec.State)
	assert.Equal(t, "2026-03-10", rec.DoseDate)

	var upcoming []adherence.UpcomingDose
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/patients/pat-1/doses/upcoming?hours=24", nil, &upcoming))
	require.NotEmpty(t, upcoming)
	for _, d := range upcoming {
		assert.NotEqual(t, adherence.StateTaken, d.State)
	}

	var window adherence.Window
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/patients/pat-1/adherence?days=7", nil, &window))
	assert.Equal(t, 1, window.TakenDoses)

	var errBody map[string]string
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/patients/pat-1/adherence?days=abc", nil, &errBody))
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/v1/doses/skipped", map[string]any{
		"schedule_id": sch.ID, "patient_id": "pat-1", "scheduled_time": "13:00",
	}, &errBody))
}

func TestRefillEndpoints(t *testing.T) {
	f := newFixture(t)
	sch := f.createSchedule(t)

	var rem refill.Reminder
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/refills", map[string]any{
		"patient_id":       "pat-1",
		"schedule_id":      sch.ID,
		"medication_name":  "Metformin",
		"next_refill_date": "2026-03-15",
	}, &rem))

	var upcoming []refill.Reminder
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/patients/pat-1/refills/upcoming", nil, &upcoming))
	assert.Len(t, upcoming, 1)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/patients/pat-1/refills/upcoming?days=2", nil, &upcoming))
	assert.Empty(t, upcoming)

	var sent refill.Reminder
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/refills/"+rem.ID+"/sent", nil, &sent))
	assert.True(t, sent.ReminderSent)

	var advanced refill.Reminder
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/refills/"+rem.ID+"/advance",
		map[string]any{"next_refill_date": "2026-04-10", "quantity": 60}, &advanced))
	assert.False(t, advanced.ReminderSent)
	assert.Equal(t, "2026-03-10", advanced.LastRefillDate)
	require.NotNil(t, advanced.Quantity)
	assert.Equal(t, 60, *advanced.Quantity)

	var errBody map[string]string
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/v1/refills/"+rem.ID+"/advance",
		map[string]any{"next_refill_date": "2026-03-10"}, &errBody))
}

func TestNotificationEndpoints(t *testing.T) {
	f := newFixture(t)

	var n notification.Notification
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/notifications", map[string]any{
		"user_id": "user-1", "type": "new_message", "title": "Hi", "message": "New message",
	}, &n))
	assert.Equal(t, notification.PriorityNormal, n.Priority)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/notifications", map[string]any{
		"user_id": "user-1", "type": "order_update", "title": "Order", "message": "Shipped",
	}, nil))

	var count struct {
		Unread int `json:"unread"`
	}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/users/user-1/notifications/unread-count", nil, &count))
	assert.Equal(t, 2, count.Unread)

	var read notification.Notification
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/notifications/"+n.ID+"/read", nil, &read))
	assert.True(t, read.Read)

	var batch notification.BatchResult
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/users/user-1/notifications/read-all", nil, &batch))
	assert.Equal(t, 1, batch.Succeeded)
	assert.Empty(t, batch.Failed)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodDelete, "/api/v1/notifications/"+n.ID, nil, nil))
	var list []notification.Notification
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/users/user-1/notifications?limit=10", nil, &list))
	assert.Len(t, list, 1)

	var errBody map[string]string
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/v1/notifications", map[string]any{
		"user_id": "user-1", "type": "carrier_pigeon", "title": "x", "message": "y",
	}, &errBody))
}

func TestPreferencesRoundTrip(t *testing.T) {
	f := newFixture(t)

	var p settings.Preferences
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/users/user-1/preferences", nil, &p))
	assert.True(t, p.PushEnabled)
	assert.False(t, p.SMSEnabled)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/api/v1/users/user-1/preferences", map[string]any{
		"push_enabled": true, "sms_enabled": true, "quiet_hours_start": "22:00", "quiet_hours_end": "07:00",
	}, &p))
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/users/user-1/preferences", nil, &p))
	assert.True(t, p.SMSEnabled)
	assert.Equal(t, "22:00", p.QuietHoursStart)

	var errBody map[string]string
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/api/v1/users/user-1/preferences",
		map[string]any{"quiet_hours_start": "22:00"}, &errBody))
}

func TestNotificationStreamPushesSnapshots(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/v1/ws/users/user-1/notifications?limit=5&api_key=" + apiKey
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first notification.Snapshot
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, 0, first.Unread)

	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/notifications", map[string]any{
		"user_id": "user-1", "type": "new_message", "title": "Hi", "message": "Hello",
	}, nil))

	var next notification.Snapshot
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, 1, next.Unread)
	assert.Greater(t, next.Seq, first.Seq)
}
