// Package config loads the bridge's runtime settings and the per-device
// configuration file. See spec.md §6 ("External Interfaces") and §3
// ("Device configuration").
package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/viper"

	"github.com/hcpy-go/bridge/internal/catalog"
)

// App holds the process-wide settings named in spec.md §6. The CLI
// flag-parsing framework is out of scope (spec.md §1); this is just the
// typed result the core consumes, bound from environment variables
// (prefix HCBRIDGE_) and an optional config file via Viper.
type App struct {
	DevicesFile string
	MQTTHost    string
	MQTTPort    int
	MQTTUser    string
	MQTTPass    string
	MQTTTLS     bool
	MQTTCAFile  string
	MQTTCert    string
	MQTTKey     string
	MQTTClient  string
	MQTTPrefix  string
	DomainSuffix string
	Debug       bool
}

// Load reads settings from optional configFile (YAML/JSON/TOML, may be
// empty) and environment variables prefixed HCBRIDGE_, applying the
// defaults spec.md §6 documents.
func Load(configFile string) (*App, error) {
	v := viper.New()
	v.SetEnvPrefix("HCBRIDGE")
	v.AutomaticEnv()

	v.SetDefault("devices_file", "config/devices.json")
	v.SetDefault("mqtt_host", "localhost")
	v.SetDefault("mqtt_port", 1883)
	v.SetDefault("mqtt_prefix", "homeconnect/")
	v.SetDefault("mqtt_clientname", "hcbridge")
	v.SetDefault("debug", false)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configFile, err)
		}
	}

	return &App{
		DevicesFile:  v.GetString("devices_file"),
		MQTTHost:     v.GetString("mqtt_host"),
		MQTTPort:     v.GetInt("mqtt_port"),
		MQTTUser:     v.GetString("mqtt_username"),
		MQTTPass:     v.GetString("mqtt_password"),
		MQTTTLS:      v.GetBool("mqtt_ssl"),
		MQTTCAFile:   v.GetString("mqtt_cafile"),
		MQTTCert:     v.GetString("mqtt_certfile"),
		MQTTKey:      v.GetString("mqtt_keyfile"),
		MQTTClient:   v.GetString("mqtt_clientname"),
		MQTTPrefix:   v.GetString("mqtt_prefix"),
		DomainSuffix: v.GetString("domain_suffix"),
		Debug:        v.GetBool("debug"),
	}, nil
}

// Device is one entry of the devices.json array, per spec.md §3.
type Device struct {
	Name        string                    `json:"name"`
	Host        string                    `json:"host"`
	Key         string                    `json:"key"` // base64url PSK/AES key
	IV          string                    `json:"iv,omitempty"`
	Description DeviceDescription         `json:"description"`
	Features    map[string]RawFeature     `json:"features"`
}

type DeviceDescription struct {
	Brand    string `json:"brand"`
	Model    string `json:"model"`
	Version  string `json:"version"`
	Revision string `json:"revision"`
}

// RawFeature is the on-disk shape of a feature entry; Catalog() converts it
// to catalog.Feature.
type RawFeature struct {
	Name      string            `json:"name,omitempty"`
	Access    string            `json:"access,omitempty"`
	Available *bool             `json:"available,omitempty"`
	RefCID    string            `json:"refCID,omitempty"`
	RefDID    string            `json:"refDID,omitempty"`
	Values    map[string]string `json:"values,omitempty"`
	InitValue string            `json:"initValue,omitempty"`
	Min       *int              `json:"min,omitempty"`
	Max       *int              `json:"max,omitempty"`
	StepSize  *int              `json:"stepSize,omitempty"`
	Handling  string            `json:"handling,omitempty"`
}

// IsHTTPVariant reports whether the device uses the plain-WebSocket,
// application-layer-encrypted transport (presence of iv), per spec.md
// §3/§4.2.
func (d *Device) IsHTTPVariant() bool {
	return d.IV != ""
}

// DecodeKey base64url-decodes Key, restoring stripped padding (spec.md §3:
// "padding stripped").
func (d *Device) DecodeKey() ([]byte, error) {
	return decodeBase64URLNoPad(d.Key)
}

// DecodeIV base64url-decodes IV, restoring stripped padding.
func (d *Device) DecodeIV() ([]byte, error) {
	if d.IV == "" {
		return nil, nil
	}
	return decodeBase64URLNoPad(d.IV)
}

func decodeBase64URLNoPad(s string) ([]byte, error) {
	switch len(s) % 4 {
	case 2:
		s += "=="
	case 3:
		s += "="
	}
	return base64.URLEncoding.DecodeString(s)
}

// FeatureOrder returns the device's UIDs sorted numerically. encoding/json
// does not preserve object key order on map decode, and spec.md §4.3
// requires findUidByName to scan "insertion order"; numeric UID order is
// the closest stable approximation available once decoded into a map.
func (d *Device) FeatureOrder() []string {
	order := make([]string, 0, len(d.Features))
	for uid := range d.Features {
		order = append(order, uid)
	}
	sort.Slice(order, func(i, j int) bool {
		a, _ := strconv.Atoi(order[i])
		b, _ := strconv.Atoi(order[j])
		return a < b
	})
	return order
}

// Catalog builds a *catalog.Catalog from the device's features.
func (d *Device) Catalog() *catalog.Catalog {
	order := d.FeatureOrder()
	features := make(map[string]*catalog.Feature, len(d.Features))
	for uid, rf := range d.Features {
		features[uid] = &catalog.Feature{
			Name:      rf.Name,
			Access:    catalog.Access(rf.Access),
			Available: rf.Available,
			RefCID:    rf.RefCID,
			RefDID:    rf.RefDID,
			Values:    rf.Values,
			InitValue: rf.InitValue,
			Min:       rf.Min,
			Max:       rf.Max,
			StepSize:  rf.StepSize,
			Handling:  rf.Handling,
		}
	}
	return catalog.New(order, features)
}

// LoadDevices reads and parses the device configuration file (spec.md §6).
func LoadDevices(path string) ([]Device, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading devices file: %w", err)
	}

	var devices []Device
	if err := json.Unmarshal(b, &devices); err != nil {
		return nil, fmt.Errorf("config: parsing devices file: %w", err)
	}
	return devices, nil
}
