package telemetry

import (
	"fmt"
	"strings"
)

// Druhy topiců pod building/{id}/zone/{id}/...
const (
	KindTelemetry = "telemetry"
	KindCommand   = "command"
)

// TelemetryWildcard je subscription pro telemetrii všech budov a zón.
const TelemetryWildcard = "building/+/zone/+/telemetry"

// TelemetryTopic vrací topic, na který zóna publikuje měření.
func TelemetryTopic(building, zone string) string {
	return fmt.Sprintf("building/%s/zone/%s/%s", building, zone, KindTelemetry)
}

// CommandTopic vrací topic, na který dispatcher posílá příkazy pro zónu.
func CommandTopic(building, zone string) string {
	return fmt.Sprintf("building/%s/zone/%s/%s", building, zone, KindCommand)
}

// CommandSubscription je subscription simulátoru na příkazy všech jeho zón.
func CommandSubscription(building string) string {
	return fmt.Sprintf("building/%s/zone/+/%s", building, KindCommand)
}

// Topic je rozparsovaný konkrétní (ne-wildcard) topic.
type Topic struct {
	Building string
	Zone     string
	Kind     string
}

// ParseTopic ověří, že topic odpovídá building/{id}/zone/{id}/{telemetry|command}.
func ParseTopic(topic string) (Topic, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != "building" || parts[2] != "zone" {
		return Topic{}, fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	if !validID(parts[1]) || !validID(parts[3]) {
		return Topic{}, fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	if parts[4] != KindTelemetry && parts[4] != KindCommand {
		return Topic{}, fmt.Errorf("%w: neznámý druh %q", ErrInvalidTopic, parts[4])
	}
	return Topic{Building: parts[1], Zone: parts[3], Kind: parts[4]}, nil
}

// validID: neprázdný segment bez MQTT wildcardů a oddělovačů. ':' je
// oddělovač klíčů v keyed store, v id by z různých zón udělal stejný klíč.
func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, "/+#:")
}
