package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"credlife/internal/audit"
	"credlife/internal/credential/cache"
	"credlife/internal/credential/handler"
	"credlife/internal/credential/policy"
	"credlife/internal/credential/service"
	"credlife/internal/credential/store"
	jwttoken "credlife/internal/jwt_token"
	"credlife/internal/notification"
	"credlife/internal/platform/health"
	httptransport "credlife/internal/transport/http"
	id "credlife/pkg/domain"
)

// scenarioPolicy keeps scenarios short: deliverers need two credentials,
// one of which lapses after a year.
const scenarioPolicy = `
owners:
  - owner_kind: deliverer
    rules:
      - kind: identity_document
        required: true
      - kind: insurance_certificate
        required: true
        validity_days: 365
      - kind: driving_license
        required: false
        allowed_formats: [application/pdf]
`

type actor struct {
	id        id.ActorID
	role      id.Role
	ownerKind string
	token     string
}

// TestContext holds the in-process server and the state shared by steps
// of one scenario.
type TestContext struct {
	server   *httptest.Server
	tokens   *jwttoken.JWTService
	notifier *notification.Recorder

	mu  sync.Mutex
	now time.Time

	actors  map[string]*actor
	saved   map[string]string
	current string

	LastResponse     *http.Response
	LastResponseBody []byte
}

// NewTestContext starts a fresh service backed by in-memory stores.
func NewTestContext() (*TestContext, error) {
	policies, err := policy.Parse([]byte(scenarioPolicy))
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tc := &TestContext{
		tokens:   jwttoken.NewJWTService("e2e-signing-key", "credlife", "credlife-api", time.Hour),
		notifier: notification.NewRecorder(),
		now:      time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		actors:   map[string]*actor{},
		saved:    map[string]string{},
	}

	svc := service.New(
		store.NewInMemory(),
		store.NewInMemorySuspensions(),
		audit.NewRecorder(audit.NewInMemoryStore(), audit.WithLogger(logger)),
		tc.notifier,
		service.WithPolicies(policies),
		service.WithCache(cache.NewInMemory(10*time.Minute)),
		service.WithLogger(logger),
	)
	tc.server = httptest.NewServer(httptransport.NewRouter(httptransport.Config{
		Logger: logger,
		Tokens: jwttoken.NewJWTServiceAdapter(tc.tokens),
		API:    []httptransport.APIHandler{handler.New(svc, logger)},
		Health: health.New("e2e"),
		Clock:  tc.Now,
	}))
	return tc, nil
}

// Close stops the server.
func (tc *TestContext) Close() {
	if tc.server != nil {
		tc.server.Close()
	}
}

// Now is the clock the server reads for every request.
func (tc *TestContext) Now() time.Time {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.now
}

// Advance moves the server clock forward.
func (tc *TestContext) Advance(d time.Duration) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.now = tc.now.Add(d)
}

// Register creates a named actor and issues its bearer token. Owners act
// with their owner ID as actor ID.
func (tc *TestContext) Register(name string, role id.Role, ownerKind string) error {
	a := &actor{id: id.ActorID(id.NewOwnerID()), role: role, ownerKind: ownerKind}
	tok, _, err := tc.tokens.IssueToken(context.Background(), a.id, role)
	if err != nil {
		return err
	}
	a.token = tok
	tc.actors[name] = a
	return nil
}

// OwnerPath returns the /owners/{kind}/{id} prefix of a registered owner.
func (tc *TestContext) OwnerPath(name string) (string, error) {
	a, ok := tc.actors[name]
	if !ok || a.role != id.RoleOwner {
		return "", fmt.Errorf("unknown owner %q", name)
	}
	return "/owners/" + a.ownerKind + "/" + a.id.String(), nil
}

// ActorID returns the ID of a registered actor.
func (tc *TestContext) ActorID(name string) (string, error) {
	a, ok := tc.actors[name]
	if !ok {
		return "", fmt.Errorf("unknown actor %q", name)
	}
	return a.id.String(), nil
}

// OwnerKind returns the owner kind of a registered owner.
func (tc *TestContext) OwnerKind(name string) string {
	if a, ok := tc.actors[name]; ok {
		return a.ownerKind
	}
	return ""
}

// As makes subsequent requests carry the named actor's token. An empty name
// sends requests without credentials.
func (tc *TestContext) As(name string) error {
	if _, ok := tc.actors[name]; name != "" && !ok {
		return fmt.Errorf("unknown actor %q", name)
	}
	tc.current = name
	return nil
}

func (tc *TestContext) Save(key, value string) { tc.saved[key] = value }

func (tc *TestContext) Saved(key string) (string, error) {
	v, ok := tc.saved[key]
	if !ok {
		return "", fmt.Errorf("nothing saved as %q", key)
	}
	return v, nil
}

// Events returns the notification types emitted so far.
func (tc *TestContext) Events() []string {
	events := tc.notifier.Events()
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, string(e.Type))
	}
	return out
}

// Do sends a request as the current actor and stores the response.
func (tc *TestContext) Do(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, tc.server.URL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a, ok := tc.actors[tc.current]; ok {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := tc.server.Client().Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	tc.LastResponse = resp
	tc.LastResponseBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	return nil
}

func (tc *TestContext) GetLastResponseStatus() int {
	if tc.LastResponse == nil {
		return 0
	}
	return tc.LastResponse.StatusCode
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.LastResponseBody
}

// GetResponseField resolves a dotted path such as "status.overall_status"
// or "entries.1.action" in the last JSON response.
func (tc *TestContext) GetResponseField(path string) (any, error) {
	var data any
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	for _, part := range strings.Split(path, ".") {
		switch node := data.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, fmt.Errorf("field %s not found in response", path)
			}
			data = v
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("index %s out of range in %s", part, path)
			}
			data = node[i]
		default:
			return nil, fmt.Errorf("field %s not found in response", path)
		}
	}
	return data, nil
}
