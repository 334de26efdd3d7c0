package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func makeServer(t *testing.T) *Server {
	t.Helper()

	c := DefaultConfig()
	c.HTTP.Port = 0
	c.GRPC.Port = 0
	c.HTTP.AllowedOrigins = []string{"https://quiz.example"}

	s, err := Init(c, WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)

	return s
}

func TestServer_HTTP(t *testing.T) {
	s := makeServer(t)

	tests := map[string]struct {
		path     string
		origin   string
		wantCode int
		assert   func(t *testing.T, w *httptest.ResponseRecorder)
	}{
		"status": {
			path:     "/",
			wantCode: http.StatusOK,
			assert: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert.JSONEq(t, `{"status":"Quiz Duel server running","waitingPlayers":0,"activeGames":0}`, w.Body.String())
			},
		},
		"metrics": {
			path:     "/metrics",
			wantCode: http.StatusOK,
			assert: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert.Contains(t, w.Body.String(), "quizduel_waiting_participants 0")
				assert.Contains(t, w.Body.String(), "quizduel_active_sessions 0")
			},
		},
		"allowed origin": {
			path:     "/health",
			origin:   "https://quiz.example",
			wantCode: http.StatusOK,
			assert: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert.Equal(t, "https://quiz.example", w.Header().Get("Access-Control-Allow-Origin"))
			},
		},
		"foreign origin": {
			path:     "/health",
			origin:   "https://evil.example",
			wantCode: http.StatusOK,
			assert: func(t *testing.T, w *httptest.ResponseRecorder) {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
			},
		},
		"missing session": {
			path:     "/sessions/unknown",
			wantCode: http.StatusNotFound,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}

			s.http.Handler.ServeHTTP(w, req)

			require.Equal(t, tt.wantCode, w.Code)
			if tt.assert != nil {
				tt.assert(t, w)
			}
		})
	}
}

func TestServer_Init_UnknownQuestionSource(t *testing.T) {
	c := DefaultConfig()
	c.Questions.Source = "carrier-pigeon"

	_, err := Init(c, WithRegistry(prometheus.NewRegistry()))
	require.Error(t, err)
}

func TestServer_StartShutdown(t *testing.T) {
	s := makeServer(t)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = s.grpc.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	hc := healthpb.NewHealthClient(conn)
	status := func() healthpb.HealthCheckResponse_ServingStatus {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		resp, err := hc.Check(ctx, &healthpb.HealthCheckRequest{})
		if err != nil {
			return healthpb.HealthCheckResponse_UNKNOWN
		}
		return resp.Status
	}

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(), "lobby clock is not running yet")

	go s.Start()

	require.Eventually(t, func() bool {
		return status() == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	s.Shutdown()

	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start should return after Shutdown")
	}
}
