package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all application configuration values. Flight tuning lives in
// the YAML file named by TUNING_FILE, not here.
type Config struct {
	// FMU server
	ListenPort       int
	ReceiveTimeoutMS int
	Mission          string // core, gps, flow or sim
	TuningFile       string
	LogLevel         string

	// Optical flow camera (flow mission)
	FlowWidth          int
	FlowHeight         int
	FlowPerspectiveDeg float64

	// Reference point for meter offsets on the dashboard
	ReferenceLat float64
	ReferenceLon float64

	// MQTT
	MQTTBroker          string
	MQTTClientIDFMU     string
	MQTTClientIDWeb     string
	MQTTClientIDConsole string
	MQTTClientIDGPS     string
	MQTTClientIDESC     string

	// Topics
	TopicStatus string
	TopicDemand string
	TopicGPS    string

	// GPS
	GPSSerialPort string
	GPSBaudRate   int

	// ESC
	ESCPins      []string
	ESCPWMHz     int
	ESCMaxThrust float64

	// Web Server
	WebServerPort int
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// defaults returns the values used for keys missing from the file.
func defaults() *Config {
	return &Config{
		ReceiveTimeoutMS:    1000,
		Mission:             "core",
		LogLevel:            "info",
		FlowPerspectiveDeg:  60,
		MQTTClientIDFMU:     "flight-fmu",
		MQTTClientIDWeb:     "flight-web",
		MQTTClientIDConsole: "flight-console",
		MQTTClientIDGPS:     "flight-gps-producer",
		MQTTClientIDESC:     "flight-esc-bridge",
		TopicStatus:         "flight/status",
		TopicDemand:         "flight/demand",
		TopicGPS:            "flight/gps",
		GPSBaudRate:         9600,
		ESCPWMHz:            400,
		ESCMaxThrust:        20,
		WebServerPort:       8080,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := defaults()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error

	switch key {
	// FMU server
	case "LISTEN_PORT":
		c.ListenPort, err = parseInt(key, value)
	case "RECEIVE_TIMEOUT_MS":
		c.ReceiveTimeoutMS, err = parseInt(key, value)
	case "MISSION":
		c.Mission = strings.ToLower(value)
	case "TUNING_FILE":
		c.TuningFile = value
	case "LOG_LEVEL":
		c.LogLevel = strings.ToLower(value)

	// Optical flow
	case "FLOW_WIDTH":
		c.FlowWidth, err = parseInt(key, value)
	case "FLOW_HEIGHT":
		c.FlowHeight, err = parseInt(key, value)
	case "FLOW_PERSPECTIVE_DEG":
		c.FlowPerspectiveDeg, err = parseFloat(key, value)

	// Reference point
	case "REFERENCE_LAT":
		c.ReferenceLat, err = parseFloat(key, value)
	case "REFERENCE_LON":
		c.ReferenceLon, err = parseFloat(key, value)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_FMU":
		c.MQTTClientIDFMU = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_GPS":
		c.MQTTClientIDGPS = value
	case "MQTT_CLIENT_ID_ESC":
		c.MQTTClientIDESC = value

	// Topics
	case "TOPIC_STATUS":
		c.TopicStatus = value
	case "TOPIC_DEMAND":
		c.TopicDemand = value
	case "TOPIC_GPS":
		c.TopicGPS = value

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		c.GPSBaudRate, err = parseInt(key, value)

	// ESC
	case "ESC_PINS":
		c.ESCPins = nil
		for _, pin := range strings.Split(value, ",") {
			if pin = strings.TrimSpace(pin); pin != "" {
				c.ESCPins = append(c.ESCPins, pin)
			}
		}
	case "ESC_PWM_HZ":
		c.ESCPWMHz, err = parseInt(key, value)
	case "ESC_MAX_THRUST":
		c.ESCMaxThrust, err = parseFloat(key, value)

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("LISTEN_PORT is required (1-65535)")
	}
	if c.ReceiveTimeoutMS <= 0 {
		return fmt.Errorf("RECEIVE_TIMEOUT_MS must be positive, got %d", c.ReceiveTimeoutMS)
	}
	switch c.Mission {
	case "core", "gps", "sim":
	case "flow":
		if c.FlowWidth <= 0 || c.FlowHeight <= 0 {
			return fmt.Errorf("FLOW_WIDTH and FLOW_HEIGHT are required for the flow mission")
		}
	default:
		return fmt.Errorf("MISSION must be core, gps, flow or sim, got %q", c.Mission)
	}
	if len(c.ESCPins) != 0 && len(c.ESCPins) != 4 {
		return fmt.Errorf("ESC_PINS must list 4 pins, got %d", len(c.ESCPins))
	}
	if c.ESCMaxThrust <= 0 {
		return fmt.Errorf("ESC_MAX_THRUST must be positive")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ReceiveTimeout is RECEIVE_TIMEOUT_MS as a duration.
func (c *Config) ReceiveTimeout() time.Duration {
	return time.Duration(c.ReceiveTimeoutMS) * time.Millisecond
}

// SlogLevel is LOG_LEVEL as a slog level.
func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", s)
	}
}

// InitGlobal initializes the global configuration from file.
// Only the first call has any effect.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance, nil before InitGlobal.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
