package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"medcore.org/internal/auth"
	"medcore.org/internal/clinic"
	"medcore.org/internal/store/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	t.Setenv("MEDCORE_AUTH_SECRET", "handlers-test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	store := memory.New()
	adminHash, err := auth.HashPassword("admin-pass")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	store.AddAdmin(auth.Credential{
		ID: "a1", Email: "root@clinic.test", Name: "Root", PasswordHash: adminHash,
	})
	doctorHash, err := auth.HashPassword("doctor-pass")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	store.AddDoctor(clinic.Doctor{
		ID: "doc-7", Name: "Dr. Kim", Email: "kim@clinic.test", Specialty: "Cardiology",
	}, doctorHash)
	store.AddPatient(clinic.Patient{
		ID: "pat-3", FirstName: "Ada", LastName: "Osei", Email: "ada@example.test",
	})

	api := New(ReadyProbe{}, "test", clinic.NewScheduler(store, nil), auth.NewVerifier(store))
	api.rateBurst = 1000
	api.ratePerSec = 1000

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return srv, store
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func login(t *testing.T, srv *httptest.Server, email, password string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/auth/login", "", map[string]string{
		"email": email, "password": password,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d (%v)", email, resp.StatusCode, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("login returned no token")
	}
	return token
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestLogin(t *testing.T) {
	srv, _ := newTestServer(t)

	token := login(t, srv, "root@clinic.test", "admin-pass")
	claims, err := auth.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("issued token invalid: %v", err)
	}
	if claims.Role != auth.RoleAdmin {
		t.Fatalf("expected admin role, got %s", claims.Role)
	}

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/auth/login", "", map[string]string{
		"email": "root@clinic.test", "password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong password: status %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/auth/login", "", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET login: status %d", resp.StatusCode)
	}
}

func TestProtectedEndpointsRequirePrincipal(t *testing.T) {
	srv, _ := newTestServer(t)

	// No token at all.
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/v1/appointments", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous: status %d", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate challenge")
	}

	// A garbage token passes through the authenticator and is rejected by
	// the gate, not by the filter.
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/appointments", "not-a-jwt", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token: status %d", resp.StatusCode)
	}
}

func TestBookingFlow(t *testing.T) {
	srv, _ := newTestServer(t)
	token := login(t, srv, "root@clinic.test", "admin-pass")

	book := map[string]string{
		"patient_id": "pat-3", "doctor_id": "doc-7",
		"date": "2024-05-01", "time": "09:00", "notes": "checkup",
	}
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/appointments", token, book)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("book: status %d (%v)", resp.StatusCode, body)
	}
	if body["status"] != "PENDING" {
		t.Fatalf("expected PENDING, got %v", body["status"])
	}
	apptID, _ := body["id"].(string)
	if apptID == "" {
		t.Fatal("no appointment id in response")
	}

	// Double booking the same slot conflicts.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/appointments", token, book)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("double book: status %d", resp.StatusCode)
	}

	// Fetch it back.
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/appointments/"+apptID, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: status %d", resp.StatusCode)
	}
	if body["id"] != apptID {
		t.Fatalf("get returned wrong appointment: %v", body["id"])
	}

	// List filtered by doctor.
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/appointments?doctor_id=doc-7", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: status %d", resp.StatusCode)
	}
	appts, _ := body["appointments"].([]any)
	if len(appts) != 1 {
		t.Fatalf("expected 1 appointment, got %d", len(appts))
	}

	// Doctor decides.
	resp, body = doJSON(t, http.MethodPut, srv.URL+"/v1/appointments/"+apptID+"/status", token,
		map[string]string{"status": "ACCEPTED"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("accept: status %d (%v)", resp.StatusCode, body)
	}
	if body["status"] != "ACCEPTED" {
		t.Fatalf("expected ACCEPTED, got %v", body["status"])
	}

	// Terminal appointments refuse further decisions.
	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/v1/appointments/"+apptID+"/status", token,
		map[string]string{"status": "REJECTED"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second decision: status %d", resp.StatusCode)
	}
}

func TestBookValidationErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	token := login(t, srv, "kim@clinic.test", "doctor-pass")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/appointments", token, map[string]string{
		"patient_id": "pat-3", "doctor_id": "doc-7", "date": "05-01-2024", "time": "09:00",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad date: status %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/v1/appointments", token, map[string]string{
		"patient_id": "pat-404", "doctor_id": "doc-7", "date": "2024-05-01", "time": "09:00",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown patient: status %d", resp.StatusCode)
	}
}

func TestReschedule(t *testing.T) {
	srv, _ := newTestServer(t)
	token := login(t, srv, "root@clinic.test", "admin-pass")

	_, body := doJSON(t, http.MethodPost, srv.URL+"/v1/appointments", token, map[string]string{
		"patient_id": "pat-3", "doctor_id": "doc-7", "date": "2024-05-01", "time": "09:00",
	})
	apptID, _ := body["id"].(string)

	resp, body := doJSON(t, http.MethodPatch, srv.URL+"/v1/appointments/"+apptID, token, map[string]string{
		"date": "2024-05-02", "time": "10:30", "notes": "moved",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reschedule: status %d (%v)", resp.StatusCode, body)
	}
	if body["date"] != "2024-05-02" || body["time"] != "10:30" {
		t.Fatalf("slot not moved: %v %v", body["date"], body["time"])
	}
}

func TestDirectoryEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	token := login(t, srv, "root@clinic.test", "admin-pass")

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/doctors", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("doctors: status %d", resp.StatusCode)
	}
	doctors, _ := body["doctors"].([]any)
	if len(doctors) != 1 {
		t.Fatalf("expected 1 doctor, got %d", len(doctors))
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/patients/pat-3", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patient: status %d", resp.StatusCode)
	}
	if body["first_name"] != "Ada" {
		t.Fatalf("unexpected patient: %v", body)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/patients/pat-404", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing patient: status %d", resp.StatusCode)
	}
}

func TestListingRoleGate(t *testing.T) {
	srv, _ := newTestServer(t)
	adminToken := login(t, srv, "root@clinic.test", "admin-pass")
	doctorToken := login(t, srv, "kim@clinic.test", "doctor-pass")

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/appointments", adminToken, map[string]string{
		"patient_id": "pat-3", "doctor_id": "doc-7", "date": "2024-05-01", "time": "09:00",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("book: status %d (%v)", resp.StatusCode, body)
	}

	// Admins see the whole schedule.
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/appointments", adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin list: status %d", resp.StatusCode)
	}
	if appts, _ := body["appointments"].([]any); len(appts) != 1 {
		t.Fatalf("admin list: expected 1 appointment, got %d", len(appts))
	}

	// Doctors cannot enumerate the unfiltered schedule.
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/appointments", doctorToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("doctor unfiltered list: status %d", resp.StatusCode)
	}

	// Their own view works.
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/appointments?doctor_id=doc-7", doctorToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("doctor own view: status %d", resp.StatusCode)
	}
	if appts, _ := body["appointments"].([]any); len(appts) != 1 {
		t.Fatalf("doctor own view: expected 1 appointment, got %d", len(appts))
	}

	// Another doctor's view does not.
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/appointments?doctor_id=doc-999", doctorToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("doctor foreign view: status %d", resp.StatusCode)
	}

	// Patient record lookups are admin-only; doctors work from appointments.
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/patients/pat-3", doctorToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("doctor patient lookup: status %d", resp.StatusCode)
	}
}

func TestRequestIDPropagates(t *testing.T) {
	srv, _ := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	req.Header.Set("X-Request-Id", "req-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-Id"); got != "req-123" {
		t.Fatalf("request id not echoed: %q", got)
	}
}

func TestRateLimitOnLogin(t *testing.T) {
	t.Setenv("MEDCORE_AUTH_SECRET", "handlers-test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	store := memory.New()
	api := New(ReadyProbe{}, "test", clinic.NewScheduler(store, nil), auth.NewVerifier(store))
	api.rateBurst = 2
	api.ratePerSec = 1
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	var limited bool
	for i := 0; i < 5; i++ {
		resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/auth/login", "", map[string]string{
			"email": fmt.Sprintf("u%d@x.test", i), "password": "p",
		})
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatal("expected 429 after exhausting the burst")
	}
}
