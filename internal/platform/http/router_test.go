package http

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/faeln1/go-contact-groups/internal/app/controllers"
	"github.com/faeln1/go-contact-groups/internal/app/repositories"
	"github.com/faeln1/go-contact-groups/internal/app/services"
	"github.com/faeln1/go-contact-groups/internal/platform/middleware"
	"github.com/faeln1/go-contact-groups/pkg/logger"
)

const (
	testSecret = "test-secret"
	testMaster = "master-token"
)

type apiClient struct {
	t    *testing.T
	srv  *httptest.Server
	auth *middleware.Authenticator
}

func newAPI(t *testing.T, swaggerPath string) *apiClient {
	t.Helper()
	log := logger.InitForTests()
	store := repositories.NewInMemoryStore()
	passwords := services.NewPasswordGate(bcrypt.MinCost)
	emitter := services.NewNotificationEmitter(nil)
	groups := services.NewGroupService(store, passwords, services.NewTokenIssuer(), emitter, log.App)
	members := services.NewMembershipService(store, passwords, emitter, services.MembershipOptions{}, log.App)
	profiles := services.NewProfileService(store, nil, log.App)
	reaper := services.NewOwnershipReaper(store, emitter, log.App)
	auth := middleware.NewAuthenticator(testSecret)

	router := NewRouter(RouterConfig{
		GroupCtrl:      controllers.NewGroupController(groups, members, "https://groups.example", log.HTTP),
		MembershipCtrl: controllers.NewMembershipController(groups, members, log.HTTP),
		ProfileCtrl:    controllers.NewProfileController(profiles, log.HTTP),
		AdminCtrl:      controllers.NewAdminController(reaper, log.HTTP),
		Auth:           auth,
		Logger:         log.HTTP,
		SwaggerEnable:  swaggerPath != "",
		OpenAPIPath:    swaggerPath,
		MasterToken:    testMaster,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &apiClient{t: t, srv: srv, auth: auth}
}

func (c *apiClient) token(userID string) string {
	c.t.Helper()
	tok, err := c.auth.Mint(userID, time.Hour)
	if err != nil {
		c.t.Fatalf("mint: %v", err)
	}
	return tok
}

// do sends body as JSON and decodes a JSON response into out when out is not nil.
func (c *apiClient) do(method, path, bearer string, body any, out any) *stdhttp.Response {
	c.t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := stdhttp.NewRequest(method, c.srv.URL+path, rdr)
	if err != nil {
		c.t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := c.srv.Client().Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	if out != nil {
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp
}

func (c *apiClient) expect(resp *stdhttp.Response, status int) {
	c.t.Helper()
	if resp.StatusCode != status {
		c.t.Fatalf("%s %s: status %d, want %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, status)
	}
}

func (c *apiClient) profile(bearer, first, last, email string) {
	c.t.Helper()
	c.expect(c.do(stdhttp.MethodPut, "/profile", bearer, map[string]string{
		"firstName": first, "lastName": last, "email": email,
	}, nil), stdhttp.StatusOK)
}

func TestHealth(t *testing.T) {
	api := newAPI(t, "")
	var body map[string]string
	api.expect(api.do(stdhttp.MethodGet, "/health", "", nil, &body), stdhttp.StatusOK)
	if body["status"] != "ok" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestAuthenticationRequired(t *testing.T) {
	api := newAPI(t, "")
	var body map[string]string
	api.expect(api.do(stdhttp.MethodGet, "/groups", "", nil, &body), stdhttp.StatusUnauthorized)
	if body["code"] != "Unauthorized" {
		t.Fatalf("expected Unauthorized code, got %v", body)
	}
	api.expect(api.do(stdhttp.MethodGet, "/groups", "not-a-jwt", nil, nil), stdhttp.StatusUnauthorized)
	api.expect(api.do(stdhttp.MethodPost, "/join/whatever", "not-a-jwt", map[string]any{}, nil), stdhttp.StatusUnauthorized)
}

func TestGroupLifecycleOverHTTP(t *testing.T) {
	api := newAPI(t, "")
	ana := api.token("ana")
	bia := api.token("bia")
	api.profile(ana, "Ana", "Lima", "ana@example.com")
	api.profile(bia, "Bia", "Souza", "bia@example.com")

	var created struct {
		GroupID    string `json:"groupId"`
		ShareToken string `json:"shareToken"`
	}
	api.expect(api.do(stdhttp.MethodPost, "/groups", ana, map[string]string{"name": "Reunion 2026"}, &created), stdhttp.StatusCreated)
	if created.GroupID == "" || created.ShareToken == "" {
		t.Fatalf("unexpected create response %+v", created)
	}

	var pub map[string]any
	api.expect(api.do(stdhttp.MethodGet, "/join/"+created.ShareToken, "", nil, &pub), stdhttp.StatusOK)
	if pub["name"] != "Reunion 2026" || pub["memberCount"].(float64) != 1 {
		t.Fatalf("unexpected public view %v", pub)
	}
	if _, leaked := pub["members"]; leaked {
		t.Fatalf("public view must not expose members")
	}

	var joined struct {
		MembershipID string `json:"membershipId"`
	}
	api.expect(api.do(stdhttp.MethodPost, "/join/"+created.ShareToken, bia, map[string]any{"notificationsEnabled": true}, &joined), stdhttp.StatusCreated)
	api.expect(api.do(stdhttp.MethodPost, "/join/"+created.ShareToken, "", map[string]any{
		"firstName": "Caio", "lastName": "=HYPERLINK(\"http://x\")", "email": "caio@example.com",
	}, nil), stdhttp.StatusCreated)

	var errBody map[string]string
	api.expect(api.do(stdhttp.MethodPost, "/join/"+created.ShareToken, bia, map[string]any{}, &errBody), stdhttp.StatusConflict)
	if errBody["code"] != string(services.CodeAlreadyMember) {
		t.Fatalf("expected AlreadyMember, got %v", errBody)
	}

	var list struct {
		Members []map[string]any `json:"members"`
	}
	api.expect(api.do(stdhttp.MethodGet, "/groups/"+created.GroupID+"/members", bia, nil, &list), stdhttp.StatusOK)
	if len(list.Members) != 3 {
		t.Fatalf("expected 3 members, got %d", len(list.Members))
	}

	resp := api.do(stdhttp.MethodGet, "/groups/"+created.GroupID+"/members/export", ana, nil, nil)
	api.expect(resp, stdhttp.StatusOK)
	rows, err := csv.NewReader(resp.Body).ReadAll()
	resp.Body.Close()
	if err != nil || len(rows) != 4 || rows[0][0] != "first_name" {
		t.Fatalf("unexpected csv export %v %v", rows, err)
	}
	for _, row := range rows[1:] {
		if row[0] == "Caio" && row[1] != `'=HYPERLINK("http://x")` {
			t.Fatalf("formula cell not neutralized: %q", row[1])
		}
	}

	resp = api.do(stdhttp.MethodGet, "/groups/"+created.GroupID+"/share/qr", ana, nil, nil)
	api.expect(resp, stdhttp.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected png, got %q", ct)
	}
	resp.Body.Close()

	api.expect(api.do(stdhttp.MethodPost, "/groups/"+created.GroupID+"/close", bia, nil, &errBody), stdhttp.StatusForbidden)
	api.expect(api.do(stdhttp.MethodPost, "/groups/"+created.GroupID+"/close", ana, nil, nil), stdhttp.StatusNoContent)

	api.expect(api.do(stdhttp.MethodPost, "/join/"+created.ShareToken, "", map[string]any{
		"firstName": "Dani", "lastName": "Melo", "email": "dani@example.com",
	}, &errBody), stdhttp.StatusPreconditionFailed)
	if errBody["code"] != string(services.CodeGroupClosed) {
		t.Fatalf("expected GroupClosed, got %v", errBody)
	}

	api.expect(api.do(stdhttp.MethodDelete, "/memberships/"+joined.MembershipID, bia, nil, nil), stdhttp.StatusNoContent)
	api.expect(api.do(stdhttp.MethodGet, "/groups/"+created.GroupID, bia, nil, nil), stdhttp.StatusForbidden)
}

func TestPasswordGroupOverHTTP(t *testing.T) {
	api := newAPI(t, "")
	ana := api.token("ana")
	api.profile(ana, "Ana", "Lima", "ana@example.com")

	var created struct {
		GroupID    string `json:"groupId"`
		ShareToken string `json:"shareToken"`
	}
	api.expect(api.do(stdhttp.MethodPost, "/groups", ana, map[string]string{
		"name": "Private", "accessType": "password", "password": "s3cret",
	}, &created), stdhttp.StatusCreated)

	var check map[string]bool
	api.expect(api.do(stdhttp.MethodPost, "/join/"+created.ShareToken+"/password", "", map[string]string{"password": "nope"}, &check), stdhttp.StatusOK)
	if check["valid"] {
		t.Fatalf("wrong password reported valid")
	}
	api.expect(api.do(stdhttp.MethodPost, "/join/"+created.ShareToken+"/password", "", map[string]string{"password": "s3cret"}, &check), stdhttp.StatusOK)
	if !check["valid"] {
		t.Fatalf("right password reported invalid")
	}

	guest := map[string]any{"firstName": "Caio", "lastName": "Reis", "email": "caio@example.com"}
	var errBody map[string]string
	api.expect(api.do(stdhttp.MethodPost, "/join/"+created.ShareToken, "", guest, &errBody), stdhttp.StatusPreconditionFailed)
	if errBody["code"] != string(services.CodePasswordRequired) {
		t.Fatalf("expected PasswordRequired, got %v", errBody)
	}
	guest["password"] = "s3cret"
	api.expect(api.do(stdhttp.MethodPost, "/join/"+created.ShareToken, "", guest, nil), stdhttp.StatusCreated)

	var rotated map[string]string
	api.expect(api.do(stdhttp.MethodPost, "/groups/"+created.GroupID+"/token", ana, nil, &rotated), stdhttp.StatusOK)
	if rotated["shareToken"] == "" || rotated["shareToken"] == created.ShareToken {
		t.Fatalf("expected a fresh token, got %v", rotated)
	}
	api.expect(api.do(stdhttp.MethodGet, "/join/"+created.ShareToken, "", nil, nil), stdhttp.StatusNotFound)
}

func TestAdminReapRequiresMasterToken(t *testing.T) {
	api := newAPI(t, "")
	ana := api.token("ana")
	api.profile(ana, "Ana", "Lima", "ana@example.com")
	api.expect(api.do(stdhttp.MethodPost, "/groups", ana, map[string]string{"name": "Solo"}, nil), stdhttp.StatusCreated)

	api.expect(api.do(stdhttp.MethodPost, "/admin/accounts/ana/deleted", "", nil, nil), stdhttp.StatusUnauthorized)
	api.expect(api.do(stdhttp.MethodPost, "/admin/accounts/ana/deleted", ana, nil, nil), stdhttp.StatusForbidden)

	var report struct {
		Deleted []string `json:"deletedGroups"`
	}
	api.expect(api.do(stdhttp.MethodPost, "/admin/accounts/ana/deleted", testMaster, nil, &report), stdhttp.StatusOK)
	if len(report.Deleted) != 1 {
		t.Fatalf("expected the solo group to be deleted, got %+v", report)
	}
	api.expect(api.do(stdhttp.MethodGet, "/profile", ana, nil, nil), stdhttp.StatusNotFound)
}

func TestRoutingErrors(t *testing.T) {
	api := newAPI(t, "")
	ana := api.token("ana")
	api.expect(api.do(stdhttp.MethodDelete, "/groups", ana, nil, nil), stdhttp.StatusMethodNotAllowed)
	api.expect(api.do(stdhttp.MethodGet, "/groups/x/unknown", ana, nil, nil), stdhttp.StatusNotFound)
	api.expect(api.do(stdhttp.MethodGet, "/nowhere", "", nil, nil), stdhttp.StatusNotFound)
	api.expect(api.do(stdhttp.MethodGet, "/groups/missing", ana, nil, nil), stdhttp.StatusNotFound)
}

func TestDocsEndpoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openapi.yaml")
	if err := os.WriteFile(path, []byte("openapi: 3.0.3\ninfo:\n  title: Contact Groups\n  version: 0.1.0\npaths: {}\n"), 0o644); err != nil {
		t.Fatalf("write openapi file: %v", err)
	}
	api := newAPI(t, path)

	var doc map[string]any
	api.expect(api.do(stdhttp.MethodGet, "/openapi.json", "", nil, &doc), stdhttp.StatusOK)
	info, _ := doc["info"].(map[string]any)
	if info["title"] != "Contact Groups" {
		t.Fatalf("unexpected openapi json %v", doc)
	}

	resp := api.do(stdhttp.MethodGet, "/docs", "", nil, nil)
	api.expect(resp, stdhttp.StatusOK)
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Fatalf("expected html docs page")
	}
	resp.Body.Close()
}
