package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"freelance/internal/auth"
	"freelance/internal/controller"
	"freelance/internal/models"

	"github.com/google/uuid"
)

const secret = "router-secret"

type users map[string]models.User

func (u users) Authenticate(_ context.Context, userId string) (models.User, error) {
	user, ok := u[userId]
	if !ok {
		return user, models.ErrInvalidUser
	}
	return user, nil
}

type projectService struct {
	controller.Service
}

func (projectService) GetProject(_ context.Context, caller models.User, projectId string) (models.Project, error) {
	if projectId == "missing" {
		return models.Project{}, models.ErrNoProject
	}
	return models.Project{Id: projectId, ClientId: caller.Id}, nil
}

func newTestRouter(t *testing.T) (http.Handler, string) {
	t.Helper()

	client := models.User{Id: uuid.NewString(), Role: models.RoleClient}
	token, err := auth.NewToken(secret, client.Id, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	h := NewRouter(controller.NewController(projectService{}, nil), Options{
		JWTSecret:      secret,
		AllowedOrigins: []string{"https://app.example.com"},
		Users:          users{client.Id: client},
	})
	return h, token
}

func TestRoutes(t *testing.T) {
	h, token := newTestRouter(t)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		status int
	}{
		{"ping", http.MethodGet, "/api/ping", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", http.StatusOK},
		{"unauthenticated", http.MethodGet, "/api/projects/p1", "", http.StatusUnauthorized},
		{"project", http.MethodGet, "/api/projects/p1", token, http.StatusOK},
		{"missing project", http.MethodGet, "/api/projects/missing", token, http.StatusNotFound},
		{"unknown path", http.MethodGet, "/api/unknown", token, http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if len(tc.token) > 0 {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("Expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/projects", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("Expected allowed origin header, got %q", got)
	}
}

func TestPingBody(t *testing.T) {
	h, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Body.String() != "ok" {
		t.Fatalf("Expected ok, got %q", rec.Body.String())
	}
}
