package http

import (
	"encoding/json"
	stdhttp "net/http"
	"os"
	"strings"
	"sync"

	waLog "go.mau.fi/whatsmeow/util/log"
	yaml "gopkg.in/yaml.v3"

	"github.com/faeln1/go-contact-groups/internal/app/controllers"
	"github.com/faeln1/go-contact-groups/internal/platform/middleware"
)

type RouterConfig struct {
	GroupCtrl      *controllers.GroupController
	MembershipCtrl *controllers.MembershipController
	ProfileCtrl    *controllers.ProfileController
	AdminCtrl      *controllers.AdminController
	Auth           *middleware.Authenticator
	Logger         waLog.Logger
	SwaggerEnable  bool
	OpenAPIPath    string
	MasterToken    string
	CORSOrigins    []string
}

func NewRouter(cfg RouterConfig) stdhttp.Handler {
	if cfg.Logger == nil {
		cfg.Logger = waLog.Noop
	}
	if cfg.Auth == nil {
		// sem segredo todo token é rejeitado
		cfg.Auth = middleware.NewAuthenticator("")
	}
	mux := stdhttp.NewServeMux()
	requireUser := middleware.RequireUser(cfg.Auth)
	optionalUser := middleware.OptionalUser(cfg.Auth)

	mux.HandleFunc("/", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		if r.URL.Path != "/" {
			notFound(w)
			return
		}
		if r.Method != stdhttp.MethodGet {
			methodNotAllowed(w)
			return
		}
		writeJSON(w, stdhttp.StatusOK, map[string]any{
			"status":  "ok",
			"name":    "Go Contact Groups",
			"version": "0.1.0",
			"endpoints": map[string]string{
				"health":        "/health",
				"documentation": "/docs",
				"openapi_yaml":  "/openapi.yaml",
				"openapi_json":  "/openapi.json",
			},
		})
	})

	mux.HandleFunc("/health", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		writeJSON(w, stdhttp.StatusOK, map[string]string{"status": "ok"})
	})

	if cfg.SwaggerEnable {
		registerDocs(mux, cfg.OpenAPIPath)
	}

	// /profile, /profile/avatar
	if cfg.ProfileCtrl != nil {
		mux.Handle("/profile", requireUser(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			switch r.Method {
			case stdhttp.MethodGet:
				cfg.ProfileCtrl.Get(w, r)
			case stdhttp.MethodPut:
				cfg.ProfileCtrl.Upsert(w, r)
			case stdhttp.MethodPatch:
				cfg.ProfileCtrl.Update(w, r)
			default:
				methodNotAllowed(w)
			}
		})))
		mux.Handle("/profile/avatar", requireUser(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			if r.Method != stdhttp.MethodPost {
				methodNotAllowed(w)
				return
			}
			cfg.ProfileCtrl.UploadAvatar(w, r)
		})))
	}

	if cfg.GroupCtrl != nil {
		groups := requireUser(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			segments := splitSegments(strings.TrimPrefix(r.URL.Path, "/groups"))
			if len(segments) == 0 {
				switch r.Method {
				case stdhttp.MethodGet:
					cfg.GroupCtrl.List(w, r)
				case stdhttp.MethodPost:
					cfg.GroupCtrl.Create(w, r)
				default:
					methodNotAllowed(w)
				}
				return
			}
			groupID := segments[0]
			switch rest := strings.Join(segments[1:], "/"); rest {
			case "":
				switch r.Method {
				case stdhttp.MethodGet:
					cfg.GroupCtrl.Get(w, r, groupID)
				case stdhttp.MethodPatch:
					cfg.GroupCtrl.UpdateSettings(w, r, groupID)
				default:
					methodNotAllowed(w)
				}
			case "close":
				onlyMethod(w, r, stdhttp.MethodPost, func() { cfg.GroupCtrl.Close(w, r, groupID) })
			case "token":
				onlyMethod(w, r, stdhttp.MethodPost, func() { cfg.GroupCtrl.RegenerateToken(w, r, groupID) })
			case "owner":
				onlyMethod(w, r, stdhttp.MethodPost, func() { cfg.GroupCtrl.TransferOwnership(w, r, groupID) })
			case "members":
				onlyMethod(w, r, stdhttp.MethodGet, func() { cfg.GroupCtrl.Members(w, r, groupID) })
			case "members/export":
				onlyMethod(w, r, stdhttp.MethodGet, func() { cfg.GroupCtrl.ExportMembers(w, r, groupID) })
			case "share/qr":
				onlyMethod(w, r, stdhttp.MethodGet, func() { cfg.GroupCtrl.ShareQR(w, r, groupID) })
			default:
				notFound(w)
			}
		}))
		mux.Handle("/groups", groups)
		mux.Handle("/groups/", groups)
	}

	if cfg.MembershipCtrl != nil {
		// /join/{token} aceita chamadas anônimas
		mux.Handle("/join/", optionalUser(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			segments := splitSegments(strings.TrimPrefix(r.URL.Path, "/join/"))
			if len(segments) == 0 {
				notFound(w)
				return
			}
			token := segments[0]
			switch {
			case len(segments) == 1:
				switch r.Method {
				case stdhttp.MethodGet:
					cfg.MembershipCtrl.Resolve(w, r, token)
				case stdhttp.MethodPost:
					cfg.MembershipCtrl.Join(w, r, token)
				default:
					methodNotAllowed(w)
				}
			case len(segments) == 2 && segments[1] == "password":
				onlyMethod(w, r, stdhttp.MethodPost, func() { cfg.MembershipCtrl.ValidatePassword(w, r, token) })
			default:
				notFound(w)
			}
		})))

		mux.Handle("/memberships/", requireUser(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			segments := splitSegments(strings.TrimPrefix(r.URL.Path, "/memberships/"))
			if len(segments) != 1 {
				notFound(w)
				return
			}
			onlyMethod(w, r, stdhttp.MethodDelete, func() { cfg.MembershipCtrl.Remove(w, r, segments[0]) })
		})))
	}

	if cfg.AdminCtrl != nil {
		master := middleware.BearerAuth(middleware.MasterToken(cfg.MasterToken))
		// /admin/accounts/{userId}/deleted
		mux.Handle("/admin/", master(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
			segments := splitSegments(strings.TrimPrefix(r.URL.Path, "/admin/"))
			if len(segments) != 3 || segments[0] != "accounts" || segments[2] != "deleted" {
				notFound(w)
				return
			}
			onlyMethod(w, r, stdhttp.MethodPost, func() { cfg.AdminCtrl.AccountDeleted(w, r, segments[1]) })
		})))
	}

	var handler stdhttp.Handler = mux
	handler = middleware.Logging(cfg.Logger)(handler)
	handler = middleware.CORS(cfg.CORSOrigins)(handler)
	return handler
}

func registerDocs(mux *stdhttp.ServeMux, path string) {
	if path == "" {
		path = "docs/openapi.yaml"
	}
	var (
		once     sync.Once
		yamlData []byte
		yamlErr  error
	)
	loadYAML := func() ([]byte, error) {
		once.Do(func() { yamlData, yamlErr = os.ReadFile(path) })
		return yamlData, yamlErr
	}
	mux.HandleFunc("/openapi.yaml", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		data, err := loadYAML()
		if err != nil {
			w.WriteHeader(stdhttp.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		_, _ = w.Write(data)
	})
	mux.HandleFunc("/openapi.json", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		data, err := loadYAML()
		if err != nil {
			w.WriteHeader(stdhttp.StatusNotFound)
			return
		}
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			w.WriteHeader(stdhttp.StatusInternalServerError)
			return
		}
		jsonBytes, err := json.Marshal(v)
		if err != nil {
			w.WriteHeader(stdhttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write(jsonBytes)
	})
	mux.HandleFunc("/docs", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		// Simple Swagger UI (CDN)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<!DOCTYPE html><html><head><title>API Docs</title><link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css"/></head><body><div id="swagger-ui"></div><script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script><script>window.onload=()=>{SwaggerUIBundle({url:'/openapi.yaml',dom_id:'#swagger-ui'});};</script></body></html>`))
	})
}

func splitSegments(path string) []string {
	raw := strings.Split(path, "/")
	out := make([]string, 0, len(raw))
	for _, segment := range raw {
		if segment == "" {
			continue
		}
		out = append(out, segment)
	}
	return out
}

func onlyMethod(w stdhttp.ResponseWriter, r *stdhttp.Request, method string, next func()) {
	if r.Method != method {
		methodNotAllowed(w)
		return
	}
	next()
}

func writeJSON(w stdhttp.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w stdhttp.ResponseWriter) {
	writeJSON(w, stdhttp.StatusNotFound, map[string]string{"error": "endpoint not found"})
}

func methodNotAllowed(w stdhttp.ResponseWriter) {
	writeJSON(w, stdhttp.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}
