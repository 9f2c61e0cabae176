package auth

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/dfcx-bridge/go-bridge/logging"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

// CredentialsEnvVar names both the process environment variable and the
// per-call variable carrying service account credentials.
const CredentialsEnvVar = "GOOGLE_APPLICATION_CREDENTIALS"

// DialogflowScope is the OAuth scope requested for ambient credentials.
const DialogflowScope = "https://www.googleapis.com/auth/dialogflow"

var enableVerboseLogging = func() bool {
	return os.Getenv("DIALOGFLOW_BRIDGE__ENABLE_VERBOSE_LOGGING") == "true"
}()

// CredentialSource describes where a set of credentials came from.
type CredentialSource string

const (
	CredentialSourceInline  CredentialSource = "inline"
	CredentialSourceFile    CredentialSource = "file"
	CredentialSourceDefault CredentialSource = "default"
)

// Process-wide record of whether ambient default credentials exist.
var (
	defaultCredentialsOnce sync.Once
	defaultCredentialsMu   sync.RWMutex
	hasDefaultCredentials  bool
)

// findDefaultCredentials is swapped out in tests.
var findDefaultCredentials = func(ctx context.Context) error {
	_, err := google.FindDefaultCredentials(ctx, DialogflowScope)
	return err
}

// InitDefaultCredentials checks once per process whether ambient credentials
// are available, either through GOOGLE_APPLICATION_CREDENTIALS or the
// standard Google lookup chain (gcloud config, metadata server). Later calls
// return the first result.
func InitDefaultCredentials(ctx context.Context) bool {

	defaultCredentialsOnce.Do(func() {
		logger, _ := logging.GetLogger()

		found := false
		if os.Getenv(CredentialsEnvVar) != "" {
			found = true
		} else if err := findDefaultCredentials(ctx); err == nil {
			found = true
		} else {
			logger.Info("no ambient Google credentials; sessions must supply "+CredentialsEnvVar,
				"error", err)
		}

		SetHasDefaultCredentials(found)
	})

	return HasDefaultCredentials()
}

// HasDefaultCredentials reports whether ambient credentials were found.
func HasDefaultCredentials() bool {

	defaultCredentialsMu.RLock()
	defer defaultCredentialsMu.RUnlock()
	return hasDefaultCredentials
}

// SetHasDefaultCredentials overrides the ambient credential flag.
func SetHasDefaultCredentials(value bool) {

	defaultCredentialsMu.Lock()
	defer defaultCredentialsMu.Unlock()
	hasDefaultCredentials = value
}

// looksLikePath reports whether a credential value should be treated as a
// file path rather than inline JSON.
func looksLikePath(value string) bool {

	return strings.HasPrefix(value, "/") || strings.HasSuffix(value, ".json")
}

// ResolveCredentials converts a caller-supplied credential value into client
// options. Values that look like a path are read eagerly; an unreadable file
// falls back to ambient credentials with a warning. An empty value also
// selects ambient credentials, in which case no option is returned.
func ResolveCredentials(value string) (opts []option.ClientOption, source CredentialSource) {

	logger, _ := logging.GetLogger()

	value = strings.TrimSpace(value)
	if value == "" {
		return nil, CredentialSourceDefault
	}

	if looksLikePath(value) {
		contents, err := os.ReadFile(value)
		if err != nil || len(contents) == 0 {
			logger.Warn("credentials path not readable; falling back to default credentials",
				"path", value,
				"error", err)
			return nil, CredentialSourceDefault
		}

		if enableVerboseLogging {
			logger.Debug("using file credentials", "path", value)
		}
		return []option.ClientOption{option.WithCredentialsJSON(contents)}, CredentialSourceFile
	}

	if enableVerboseLogging {
		logger.Debug("using inline JSON credentials")
	}
	return []option.ClientOption{option.WithCredentialsJSON([]byte(value))}, CredentialSourceInline
}
