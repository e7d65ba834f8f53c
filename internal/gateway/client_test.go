package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/kimhsiao/fieldsync/internal/errors"
	"github.com/kimhsiao/fieldsync/internal/models"
)

func testVisit() models.Visit {
	loc := models.NewGeoPoint(19.076, 72.8777)
	return models.Visit{
		DoctorID:  "doc-1",
		VisitDate: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Outcome:   models.OutcomeMetDoctor,
		Location:  &loc,
	}
}

func TestClient_CreateVisit(t *testing.T) {
	var gotAuth, gotPath, gotType string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &gotBody)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"success":true,"data":{"_id":"v-100"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", WithTokenSource(StaticToken("tok-1")))
	receipt, err := c.CreateVisit(context.Background(), testVisit())
	if err != nil {
		t.Fatalf("CreateVisit() error = %v", err)
	}
	if receipt.ID != "v-100" {
		t.Errorf("Receipt.ID = %q, want v-100", receipt.ID)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPath != PathVisits {
		t.Errorf("path = %q, want %q", gotPath, PathVisits)
	}
	if gotType != "application/json" {
		t.Errorf("Content-Type = %q", gotType)
	}
	if gotBody["doctor"] != "doc-1" || gotBody["outcome"] != "MET_DOCTOR" {
		t.Errorf("body = %v", gotBody)
	}
	if _, ok := gotBody["id"]; ok {
		t.Error("body should not carry a local id")
	}
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		visit     bool
		wantCode  apperrors.ErrorCode
		wantExist string
	}{
		{"visit conflict", http.StatusConflict, `{"message":"duplicate","existingVisitId":"v-9"}`, true, apperrors.ErrGatewayConflict, "v-9"},
		{"visit 409 without existing id is rejection", http.StatusConflict, `{"message":"resource locked, retry"}`, true, apperrors.ErrGatewayRejected, ""},
		{"location 409 is rejection", http.StatusConflict, `{"message":"dup"}`, false, apperrors.ErrGatewayRejected, ""},
		{"bad request", http.StatusBadRequest, `{"error":"doctor required"}`, true, apperrors.ErrGatewayRejected, ""},
		{"unauthorized", http.StatusUnauthorized, ``, true, apperrors.ErrUnauthenticated, ""},
		{"rate limited", http.StatusTooManyRequests, ``, true, apperrors.ErrGatewayUnavailable, ""},
		{"server error", http.StatusInternalServerError, `oops`, true, apperrors.ErrGatewayUnavailable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL)
			var err error
			if tt.visit {
				_, err = c.CreateVisit(context.Background(), testVisit())
			} else {
				_, err = c.CreateLocationLog(context.Background(), models.LocationLog{
					Location:  models.NewGeoPoint(19, 72),
					Timestamp: time.Now(),
					Platform:  models.PlatformAndroid,
				})
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if got := apperrors.CodeOf(err); got != tt.wantCode {
				t.Errorf("CodeOf() = %s, want %s", got, tt.wantCode)
			}
			if got := ExistingVisitID(err); got != tt.wantExist {
				t.Errorf("ExistingVisitID() = %q, want %q", got, tt.wantExist)
			}
			var se *StatusError
			if !errors.As(err, &se) || se.StatusCode != tt.status {
				t.Errorf("error should carry StatusError with %d, got %v", tt.status, err)
			}
		})
	}
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, WithTimeout(500*time.Millisecond))
	_, err := c.CreateVisit(context.Background(), testVisit())
	if !IsTransient(err) {
		t.Errorf("CreateVisit() to closed server error = %v, want transient", err)
	}
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, WithTimeout(50*time.Millisecond))
	_, err := c.CreateVisit(context.Background(), testVisit())
	if !IsTransient(err) {
		t.Errorf("CreateVisit() past timeout error = %v, want transient", err)
	}
}

func TestClient_NoToken(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithTokenSource(StaticToken("")))
	_, err := c.CreateVisit(context.Background(), testVisit())
	if !IsUnauthenticated(err) {
		t.Errorf("CreateVisit() error = %v, want UNAUTHENTICATED", err)
	}
	if !errors.Is(err, ErrNoToken) {
		t.Error("error should wrap ErrNoToken")
	}
	if called {
		t.Error("request should not be sent without a token")
	}
}

func TestClient_LocalValidation(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	_, err := c.CreateSale(context.Background(), models.Sale{StockistID: "st-1"})
	if !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("CreateSale() error = %v, want VALIDATION_ERROR", err)
	}
}

func TestClient_ListDoctors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bare array", `[{"_id":"d1","name":"Dr. Rao"},{"_id":"d2","name":"Dr. Shah"}]`},
		{"envelope", `{"data":[{"_id":"d1","name":"Dr. Rao"},{"_id":"d2","name":"Dr. Shah"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet || r.URL.Path != PathDoctors {
					t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
				}
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			doctors, err := NewClient(srv.URL).ListDoctors(context.Background())
			if err != nil {
				t.Fatalf("ListDoctors() error = %v", err)
			}
			if len(doctors) != 2 || doctors[1].Name != "Dr. Shah" {
				t.Errorf("ListDoctors() = %+v", doctors)
			}
		})
	}
}

func TestStatusError_Error(t *testing.T) {
	if got := (&StatusError{StatusCode: 502}).Error(); got != "backend returned 502" {
		t.Errorf("Error() = %q", got)
	}
	if got := (&StatusError{StatusCode: 400, Message: "bad"}).Error(); got != "backend returned 400: bad" {
		t.Errorf("Error() = %q", got)
	}
}
