package telemetry

import (
	"strings"
	"unicode"
)

// Device is the Home Assistant device block shared by every sensor of the frame
type Device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
}

// DiscoveryConfig is the retained payload announcing one entity to Home Assistant
type DiscoveryConfig struct {
	Name       string `json:"name"`
	StateTopic string `json:"state_topic"`
	UniqueID   string `json:"unique_id"`
	Device     Device `json:"device"`
	PayloadOn  string `json:"payload_on,omitempty"`
	PayloadOff string `json:"payload_off,omitempty"`
}

// Component returns the Home Assistant platform for a value
func Component(value string) string {
	if value == "true" || value == "false" {
		return "binary_sensor"
	}
	return "sensor"
}

// DiscoveryTopic returns where the config of key is announced
func DiscoveryTopic(prefix, key, value string) string {
	return "homeassistant/" + Component(value) + "/" + prefix + "_" + key + "/config"
}

// StateTopic returns where the value of key is published
func StateTopic(prefix, key string) string {
	return prefix + "/" + key
}

// NewDiscoveryConfig builds the discovery payload for key
func NewDiscoveryConfig(prefix, key, value string) DiscoveryConfig {
	cfg := DiscoveryConfig{
		Name:       Label(key),
		StateTopic: StateTopic(prefix, key),
		UniqueID:   prefix + "_" + key,
		Device: Device{
			Identifiers:  []string{prefix},
			Name:         "PiSugar ePaper Frame",
			Model:        "Raspberry Pi ePaper Frame",
			Manufacturer: "Mscrnt LLC",
		},
	}
	if Component(value) == "binary_sensor" {
		cfg.PayloadOn = "true"
		cfg.PayloadOff = "false"
	}
	return cfg
}

// Label returns the display name of key, title-casing unknown keys
func Label(key string) string {
	if l, ok := Labels[key]; ok {
		return l
	}
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
