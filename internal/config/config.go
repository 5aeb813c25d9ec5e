package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultServerURL      = "http://10.0.2.2:8080"
	DefaultProbeURL       = "https://www.google.com"
	DefaultRequestTimeout = 10 * time.Second
	DefaultFetchTimeout   = 15 * time.Second
)

type Config struct {
	// client side
	ServerURL         string
	RequestTimeout    time.Duration
	FetchTimeout      time.Duration
	MaxRetries        int
	RetryBaseDelay    time.Duration
	ProbeURL          string
	ProbeTimeout      time.Duration
	ProbeInterval     time.Duration
	CachePath         string
	ConditionalWrites bool

	// proxy side
	ProjectID                    string
	Port                         string
	AllowedOrigins               []string
	StoreBackend                 string // realtime / firestore / memory
	DatabaseURL                  string
	StorageBucket                string
	SignedURLServiceAccountEmail string
	RequireAuth                  bool
}

func Load() Config {
	// FIREBASE_PROJECT_ID または GOOGLE_CLOUD_PROJECT を読む
	projectID := getenv("FIREBASE_PROJECT_ID", "")
	if projectID == "" {
		projectID = getenv("GOOGLE_CLOUD_PROJECT", "")
	}

	storageBucket := getenv("FIREBASE_STORAGE_BUCKET", "")
	if storageBucket == "" && projectID != "" {
		storageBucket = projectID + ".appspot.com"
	}
	databaseURL := getenv("FIREBASE_DATABASE_URL", "")
	if databaseURL == "" && projectID != "" {
		databaseURL = "https://" + projectID + "-default-rtdb.firebaseio.com"
	}

	allowed := []string{}
	for _, o := range strings.Split(getenv("ALLOWED_ORIGINS", ""), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			allowed = append(allowed, o)
		}
	}

	return Config{
		ServerURL:         strings.TrimRight(getenv("PARTYMAKER_SERVER_URL", DefaultServerURL), "/"),
		RequestTimeout:    getduration("PARTYMAKER_REQUEST_TIMEOUT", DefaultRequestTimeout),
		FetchTimeout:      getduration("PARTYMAKER_FETCH_TIMEOUT", DefaultFetchTimeout),
		MaxRetries:        getint("PARTYMAKER_MAX_RETRIES", 3),
		RetryBaseDelay:    getduration("PARTYMAKER_RETRY_DELAY", time.Second),
		ProbeURL:          getenv("PARTYMAKER_PROBE_URL", DefaultProbeURL),
		ProbeTimeout:      getduration("PARTYMAKER_PROBE_TIMEOUT", 3*time.Second),
		ProbeInterval:     getduration("PARTYMAKER_PROBE_INTERVAL", 30*time.Second),
		CachePath:         getenv("PARTYMAKER_CACHE_PATH", "./data/partymaker.db"),
		ConditionalWrites: getbool("PARTYMAKER_CONDITIONAL_WRITES", false),

		ProjectID:                    projectID,
		Port:                         getenv("PORT", "8080"),
		AllowedOrigins:               allowed,
		StoreBackend:                 strings.ToLower(getenv("STORE_BACKEND", "realtime")),
		DatabaseURL:                  databaseURL,
		StorageBucket:                storageBucket,
		SignedURLServiceAccountEmail: getenv("SIGNED_URL_SERVICE_ACCOUNT_EMAIL", ""),
		RequireAuth:                  getbool("PROXY_REQUIRE_AUTH", false),
	}
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getint(key string, def int) int {
	n, err := strconv.Atoi(getenv(key, ""))
	if err != nil {
		return def
	}
	return n
}

func getbool(key string, def bool) bool {
	b, err := strconv.ParseBool(getenv(key, ""))
	if err != nil {
		return def
	}
	return b
}

// getduration accepts Go duration syntax ("15s") or plain milliseconds ("15000").
func getduration(key string, def time.Duration) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}
