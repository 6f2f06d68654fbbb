package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pavel-fokin/dropcode/internal/content"
)

type Config struct {
	Port           int           `env:"PORT" envDefault:"5000"`
	StoreURL       string        `env:"DROPCODE_STORE_URL" envDefault:"dropcode.db"`
	DataDir        string        `env:"DROPCODE_DATA_DIR" envDefault:"uploads"`
	AllowedOrigins []string      `env:"DROPCODE_ALLOWED_ORIGINS" envDefault:"http://localhost:5173" envSeparator:","`
	BaseURL        string        `env:"DROPCODE_BASE_URL" envDefault:"http://localhost:5000"`
	Retention      time.Duration `env:"DROPCODE_RETENTION" envDefault:"24h"`
	PurgeInterval  time.Duration `env:"DROPCODE_PURGE_INTERVAL" envDefault:"168h"`
	SweepInterval  time.Duration `env:"DROPCODE_SWEEP_INTERVAL" envDefault:"1h"`
	MaxUploadSize  int64         `env:"DROPCODE_MAX_UPLOAD_SIZE" envDefault:"104857600"`
	ServeUploads   bool          `env:"DROPCODE_SERVE_UPLOADS" envDefault:"true"`
	CacheSize      int           `env:"DROPCODE_CACHE_SIZE" envDefault:"1024"`
	CacheTTL       time.Duration `env:"DROPCODE_CACHE_TTL" envDefault:"1m"`
	LogLevel       string        `env:"DROPCODE_LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"DROPCODE_LOG_FORMAT" envDefault:"json"`
}

// New builds the HTTP server. uploads, when non-nil and enabled in cfg, is
// served read-only under /uploads/. That path is not gated by codes.
func New(cfg *Config, svc *content.Service, uploads http.FileSystem) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /api/upload/text", uploadText(svc))
	mux.HandleFunc("POST /api/upload/file", uploadFile(svc))
	mux.HandleFunc("GET /api/content/{code}", getContent(svc))
	mux.HandleFunc("GET /api/download/{code}", download(svc))
	mux.HandleFunc("DELETE /api/delete-all", deleteAll(svc))

	if cfg.ServeUploads && uploads != nil {
		mux.Handle("GET /uploads/", http.StripPrefix("/uploads", staticFiles(uploads)))
	}

	var handler http.Handler = limitBody(mux, cfg.MaxUploadSize)
	handler = metricsMiddleware(handler)
	handler = loggingMiddleware(handler)
	handler = cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-Id"},
		AllowCredentials: true,
	})(handler)
	handler = requestID(handler)

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// staticFiles serves blobs by name and refuses directory listings.
func staticFiles(fsys http.FileSystem) http.Handler {
	files := http.FileServer(fsys)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, err := fsys.Open(r.URL.Path)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		info, err := f.Stat()
		f.Close()
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}
