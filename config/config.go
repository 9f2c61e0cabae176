package config

import (
	"fmt"
	"log"
	"os"
	"reflect"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/ini.v1"
)

// EnvPrefix is prepended to every configuration key when looking for an
// environment override, i.e. DIALOGFLOW_BRIDGE__LOG_LEVEL.
const EnvPrefix = "DIALOGFLOW_BRIDGE__"

// ConfigValues holds the bridge process configuration.
type ConfigValues struct {
	AppName                string `ini:"app_name"`
	AppVersion             string `ini:"app_version"`
	LogLevel               string `ini:"log_level"`
	ListenAddress          string `ini:"listen_address"`
	MetricsAddress         string `ini:"metrics_address"`
	Credentials            string `ini:"credentials"`
	DefaultLanguage        string `ini:"default_language"`
	AgentToken             string `ini:"agent_token"`
	TempDir                string `ini:"temp_dir"`
	InputSampleRate        int    `ini:"input_sample_rate"`
	MaxMessageMb           int    `ini:"max_message_mb"`
	KeepaliveMinutes       int    `ini:"keepalive_minutes"`
	PlaybackTimeoutSeconds int    `ini:"playback_timeout_seconds"`
	EnableMetrics          bool   `ini:"enable_metrics"`
	loadedFile             string
}

var configEnvVarNames = []string{"APP_NAME", "APP_VERSION", "LOG_LEVEL", "LISTEN_ADDRESS", "METRICS_ADDRESS",
	"CREDENTIALS", "DEFAULT_LANGUAGE", "AGENT_TOKEN", "TEMP_DIR", "INPUT_SAMPLE_RATE", "MAX_MESSAGE_MB",
	"KEEPALIVE_MINUTES", "PLAYBACK_TIMEOUT_SECONDS", "ENABLE_METRICS"}

// GetConfigValues initializes a new Config instance with default values and
// applies the optional ini file and environment overrides.
func GetConfigValues(iniFilepath string) (cfg *ConfigValues, err error) {

	cfg = &ConfigValues{
		// Assign default values...
		AppName:                "dialogflow-bridge",
		AppVersion:             "1.0.0",
		LogLevel:               "info",
		ListenAddress:          ":3000",
		MetricsAddress:         ":9090",
		Credentials:            "",
		DefaultLanguage:        "en-US",
		AgentToken:             "",
		TempDir:                os.TempDir(),
		InputSampleRate:        8000,
		MaxMessageMb:           4,
		KeepaliveMinutes:       5,
		PlaybackTimeoutSeconds: 120,
		EnableMetrics:          true,
	}

	err = cfg.Load(iniFilepath)

	return cfg, err
}

// Load initializes the configuration with an optional settings file.
// If `iniFilepath` is an empty string, no file is loaded. Environment
// variables may be used to override any file-based or default values.
func (configValues *ConfigValues) Load(iniFilepath string) (err error) {

	if iniFilepath != "" {
		configFromFile, err := ini.Load(iniFilepath)
		if err != nil {
			log.Printf("Failed to load settings from file (%s): %v\n", iniFilepath, err)
		} else {
			configValues.loadedFile = iniFilepath

			for _, section := range configFromFile.Sections() {
				for key, value := range section.KeysHash() {
					if setErr := configValues.setField(key, value); setErr != nil {
						return setErr
					}
				}
			}
		}
	}

	for _, key := range configEnvVarNames {
		envValue := os.Getenv(EnvPrefix + key)
		if envValue != "" {
			if setErr := configValues.setField(key, envValue); setErr != nil {
				return setErr
			}
		}
	}

	err = configValues.Validate()
	return err
}

// LoadedFile returns the ini file the values were read from, if any.
func (configValues *ConfigValues) LoadedFile() string {

	return configValues.loadedFile
}

// setField assigns value to the struct field matching the snake_case key.
func (configValues *ConfigValues) setField(key string, value string) error {

	field := reflect.ValueOf(configValues).Elem().FieldByName(titleCase(key))
	if !field.IsValid() || !field.CanSet() {
		log.Printf("Warning: Configuration key '%s' not found in struct. Ignoring.", key)
		return nil
	}

	switch field.Kind() {
	case reflect.Bool:
		field.SetBool(strings.ToLower(strings.TrimSpace(value)) == "true")
	case reflect.Int:
		intValue, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s must be an integer: %w", strings.ToLower(key), err)
		}
		field.SetInt(int64(intValue))
	default:
		field.SetString(value)
	}

	return nil
}

// titleCase converts upper or lowercase snake_case to TitleCase.
func titleCase(key string) string {

	titleCaseKey := ""
	for _, part := range strings.Split(key, "_") {
		titleCaseKey += cases.Title(language.English).String(strings.ToLower(part))
	}
	return titleCaseKey
}

// Validate checks if necessary configuration fields are provided and returns
// an error if any field is missing or out of range.
func (configValues *ConfigValues) Validate() (err error) {

	if configValues.ListenAddress == "" {
		return fmt.Errorf("listen_address is required")
	}

	if configValues.DefaultLanguage == "" {
		return fmt.Errorf("default_language is required")
	}

	switch configValues.InputSampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return fmt.Errorf("input_sample_rate %d is not supported", configValues.InputSampleRate)
	}

	if configValues.MaxMessageMb < 1 {
		return fmt.Errorf("max_message_mb must be positive")
	}

	if configValues.PlaybackTimeoutSeconds < 0 {
		return fmt.Errorf("playback_timeout_seconds must not be negative")
	}

	if configValues.TempDir == "" {
		configValues.TempDir = os.TempDir()
	}

	return nil
}
