package config

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

type Configuration struct {
	Mesh     MeshSettings
	MQTT     MQTTSettings
	Database struct {
		User     string
		Password string
		Host     string
		DB       string
	}
}

type MeshSettings struct {
	MulticastGroup string
	MulticastPort  int
	// QueueSize bounds the inbound packet queue.
	QueueSize int
	// DedupCapacity bounds the recently-seen packet cache. Larger values
	// suppress duplicates for longer at the cost of memory.
	DedupCapacity int
	// AnnounceDelay is how long a freshly started transport gets to settle
	// before the identity announcement goes out.
	AnnounceDelay time.Duration
	// AutoProfileID, when set, names a profile to activate at startup so the
	// bridge joins its channel without waiting for a client.
	AutoProfileID string
}

type MQTTSettings struct {
	Enabled   bool
	Broker    string
	ClientID  string
	RootTopic string
}

// Load reads the configuration file and applies defaults.
func Load(path string) (*Configuration, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("mesh.multicastgroup", "224.0.0.69")
	v.SetDefault("mesh.multicastport", 4403)
	v.SetDefault("mesh.queuesize", 256)
	v.SetDefault("mesh.dedupcapacity", 500)
	v.SetDefault("mesh.announcedelay", "500ms")
	v.SetDefault("mqtt.clientid", "firefly")
	v.SetDefault("mqtt.roottopic", "firefly")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Configuration
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	)))
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// DatabaseDSN builds the postgres connection string.
func (c *Configuration) DatabaseDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.DB)
}
