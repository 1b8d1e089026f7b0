// Package config načítá konfiguraci jednotlivých služeb z ENV proměnných.
//
// Princip 12-Factor App: konfigurace je oddělená od kódu. Každá služba si
// při startu JEDNOU sestaví svůj Config a předá ho dál konstruktorům
// komponent (žádné globální proměnné, žádné os.Getenv uprostřed logiky).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// MQTT drží nastavení připojení k brokeru, sdílené všemi službami.
type MQTT struct {
	Broker   string
	ClientID string
	Username string
	Password string

	// Cesty k certifikátům. TLS se zapne, jen pokud jsou vyplněné všechny tři.
	RootCAPath string
	CertPath   string
	KeyPath    string

	QoS byte

	// Exponenciální backoff mezi pokusy o (re)connect.
	ReconnectMin time.Duration
	ReconnectMax time.Duration

	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
}

// TLSEnabled vrací true, pokud máme kompletní sadu certifikátů.
func (m MQTT) TLSEnabled() bool {
	return m.RootCAPath != "" && m.CertPath != "" && m.KeyPath != ""
}

// Common jsou hodnoty, které mají všechny služby.
type Common struct {
	LogLevel        string
	LogTopicEnabled bool
	HTTPPort        string
}

func loadCommon(l *loader, defaultPort string) Common {
	return Common{
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogTopicEnabled: l.bool("LOG_TOPIC_ENABLED", false),
		HTTPPort:        getEnv("HTTP_PORT", defaultPort),
	}
}

func loadMQTT(l *loader, defaultClientID string) MQTT {
	qos := l.int("MQTT_QOS", 1)
	if qos < 0 || qos > 2 {
		l.fail("MQTT_QOS", fmt.Errorf("QoS musí být 0, 1 nebo 2, je %d", qos))
	}
	m := MQTT{
		Broker:   getEnv("MQTT_BROKER", "tcp://mosquitto:1883"),
		ClientID: getEnv("MQTT_CLIENT_ID", defaultClientID),
		Username: getEnv("MQTT_USERNAME", ""),
		Password: getEnv("MQTT_PASSWORD", ""),

		RootCAPath: getEnv("PATH_TO_ROOT", ""),
		CertPath:   getEnv("PATH_TO_CERT", ""),
		KeyPath:    getEnv("PATH_TO_KEY", ""),

		QoS: byte(qos),

		ReconnectMin:     l.duration("MQTT_RECONNECT_MIN", time.Second),
		ReconnectMax:     l.duration("MQTT_RECONNECT_MAX", 32*time.Second),
		ConnectTimeout:   l.duration("MQTT_CONNECT_TIMEOUT", 10*time.Second),
		OperationTimeout: l.duration("MQTT_OPERATION_TIMEOUT", 5*time.Second),
	}
	if m.ReconnectMax < m.ReconnectMin {
		l.fail("MQTT_RECONNECT_MAX", fmt.Errorf("maximum %s je menší než minimum %s", m.ReconnectMax, m.ReconnectMin))
	}
	return m
}

// getEnv je pomocná funkce pro DRY (Don't Repeat Yourself).
// Pokud klíč v OS neexistuje, vrátí fallback.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// loader sbírá chyby parsování, aby uživatel viděl všechny špatné
// proměnné najednou, a ne po jedné při každém restartu kontejneru.
type loader struct {
	errs []string
}

func (l *loader) fail(key string, err error) {
	l.errs = append(l.errs, fmt.Sprintf("%s: %v", key, err))
}

func (l *loader) err() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("neplatná konfigurace: %s", strings.Join(l.errs, "; "))
}

func (l *loader) duration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		// Kompatibilita s původním SIM_INTERVAL=10 (sekundy bez jednotky).
		if secs, ferr := strconv.ParseFloat(raw, 64); ferr == nil {
			return time.Duration(secs * float64(time.Second))
		}
		l.fail(key, err)
		return fallback
	}
	return d
}

func (l *loader) int(key string, fallback int) int {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		l.fail(key, err)
		return fallback
	}
	return v
}

func (l *loader) bool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	switch raw {
	case "":
		return fallback
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		l.fail(key, fmt.Errorf("neznámá bool hodnota %q", raw))
		return fallback
	}
}

func (l *loader) list(key, fallback string) []string {
	raw := getEnv(key, fallback)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
