package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/BioHazard786/warpmesh/internal/utils"
	"github.com/google/uuid"
	pion "github.com/pion/webrtc/v4"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Default configuration values (production)
const (
	DefaultDomain   = "warpdrop.qzz.io"
	DefaultSTUN     = "stun:stun.l.google.com:19302"
	DefaultTURN     = "turn:warpdrop.qzz.io"
	DefaultTURNUser = "warpdrop"
	DefaultTURNPass = "warpdrop-secret"

	DefaultConnectDelay         = time.Second
	DefaultReconnectDelay       = 3 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultChunkInterval        = 10 * time.Millisecond

	envPrefix = "WARPMESH"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds application configuration
type Config struct {
	Domain string `mapstructure:"domain"`

	// ICE servers for WebRTC
	STUNServer string `mapstructure:"stun_server"`
	TURNServer string `mapstructure:"turn_server"`
	TURNUser   string `mapstructure:"turn_username"`
	TURNPass   string `mapstructure:"turn_password"`

	ForceRelay    bool   `mapstructure:"force_relay"`
	BundlePolicy  string `mapstructure:"bundle_policy"`
	RTCPMuxPolicy string `mapstructure:"rtcp_mux_policy"`

	ConnectDelay         time.Duration `mapstructure:"connect_delay"`
	ReconnectDelay       time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	ChunkInterval        time.Duration `mapstructure:"chunk_interval"`

	DisplayName string `mapstructure:"display_name"`
	ClientID    string `mapstructure:"client_id"`

	// WebSocketURL is constructed from domain
	WebSocketURL string `mapstructure:"-"`

	// ConfigFile is the file that was read, empty when none was.
	ConfigFile string `mapstructure:"-"`

	detectRelay func() bool
}

// Options for loading config with CLI flag overrides
type Options struct {
	// ConfigFile is an explicit YAML file. When empty, warpmesh.yaml is
	// looked up in the working directory and $HOME/.config/warpmesh.
	ConfigFile string

	// Flags are bound by name: --domain, --stun-server, --turn-server,
	// --turn-username, --turn-password, --force-relay, --display-name,
	// --client-id, --chunk-interval. Only flags that were set override.
	Flags *pflag.FlagSet
}

// flag name -> config key
var flagKeys = map[string]string{
	"domain":         "domain",
	"stun-server":    "stun_server",
	"turn-server":    "turn_server",
	"turn-username":  "turn_username",
	"turn-password":  "turn_password",
	"force-relay":    "force_relay",
	"display-name":   "display_name",
	"client-id":      "client_id",
	"chunk-interval": "chunk_interval",
}

// env names kept from the single-peer CLI
var legacyEnv = map[string]string{
	"domain":        "DOMAIN",
	"stun_server":   "STUN_SERVER",
	"turn_server":   "TURN_SERVER",
	"turn_username": "TURN_USERNAME",
	"turn_password": "TURN_PASSWORD",
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables (WARPMESH_*, then the legacy names)
// 3. Config file
// 4. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("domain", DefaultDomain)
	v.SetDefault("stun_server", DefaultSTUN)
	v.SetDefault("turn_server", DefaultTURN)
	v.SetDefault("turn_username", DefaultTURNUser)
	v.SetDefault("turn_password", DefaultTURNPass)
	v.SetDefault("force_relay", false)
	v.SetDefault("bundle_policy", "balanced")
	v.SetDefault("rtcp_mux_policy", "require")
	v.SetDefault("connect_delay", DefaultConnectDelay)
	v.SetDefault("reconnect_delay", DefaultReconnectDelay)
	v.SetDefault("max_reconnect_attempts", DefaultMaxReconnectAttempts)
	v.SetDefault("chunk_interval", DefaultChunkInterval)
	v.SetDefault("display_name", "")
	v.SetDefault("client_id", "")

	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, envPrefix+"_"+strings.ToUpper(key), legacy); err != nil {
			return nil, err
		}
	}
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("warpmesh")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/warpmesh")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.WebSocketURL = websocketURL(cfg.Domain)
	return &cfg, nil
}

// Validate rejects unknown policies and negative timings.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Domain) == "" {
		return fmt.Errorf("%w: domain is empty", ErrInvalidConfig)
	}
	if _, err := parseBundlePolicy(c.BundlePolicy); err != nil {
		return err
	}
	if _, err := parseRTCPMuxPolicy(c.RTCPMuxPolicy); err != nil {
		return err
	}
	for name, d := range map[string]time.Duration{
		"connect_delay":   c.ConnectDelay,
		"reconnect_delay": c.ReconnectDelay,
		"chunk_interval":  c.ChunkInterval,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s is negative", ErrInvalidConfig, name)
		}
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("%w: max_reconnect_attempts is negative", ErrInvalidConfig)
	}
	return nil
}

// websocketURL accepts a bare host or a full ws:// / wss:// URL.
func websocketURL(domain string) string {
	if strings.HasPrefix(domain, "ws://") || strings.HasPrefix(domain, "wss://") {
		return domain
	}
	return fmt.Sprintf("wss://%s/ws", domain)
}

// RoomLink returns the webapp URL for a room ID
func (c *Config) RoomLink(roomID string) string {
	host := c.Domain
	if u, err := url.Parse(c.Domain); err == nil && u.Host != "" {
		host = u.Host
	}
	return fmt.Sprintf("https://%s/r/%s", host, roomID)
}

// TURNServers returns TURN server URLs if configured
func (c *Config) TURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// ICEServers lists STUN first, then TURN with credentials.
func (c *Config) ICEServers() []pion.ICEServer {
	var servers []pion.ICEServer
	if c.STUNServer != "" {
		servers = append(servers, pion.ICEServer{URLs: []string{c.STUNServer}})
	}
	if turn := c.TURNServers(); len(turn) > 0 {
		servers = append(servers, pion.ICEServer{
			URLs:       turn,
			Username:   c.TURNUser,
			Credential: c.TURNPass,
		})
	}
	return servers
}

// ICETransportPolicy forces relay when asked to, or when a TURN server is
// available and the host looks like it sits behind a VPN or CGNAT.
func (c *Config) ICETransportPolicy() pion.ICETransportPolicy {
	if c.ForceRelay {
		return pion.ICETransportPolicyRelay
	}
	detect := c.detectRelay
	if detect == nil {
		detect = utils.ShouldForceRelay
	}
	if c.TURNServer != "" && detect() {
		return pion.ICETransportPolicyRelay
	}
	return pion.ICETransportPolicyAll
}

// PeerConfiguration is the configuration every peer connection is created with.
func (c *Config) PeerConfiguration() pion.Configuration {
	bundle, _ := parseBundlePolicy(c.BundlePolicy)
	mux, _ := parseRTCPMuxPolicy(c.RTCPMuxPolicy)
	return pion.Configuration{
		ICEServers:         c.ICEServers(),
		ICETransportPolicy: c.ICETransportPolicy(),
		BundlePolicy:       bundle,
		RTCPMuxPolicy:      mux,
	}
}

func parseBundlePolicy(s string) (pion.BundlePolicy, error) {
	switch strings.ToLower(s) {
	case "", "balanced":
		return pion.BundlePolicyBalanced, nil
	case "max-compat":
		return pion.BundlePolicyMaxCompat, nil
	case "max-bundle":
		return pion.BundlePolicyMaxBundle, nil
	}
	return pion.BundlePolicyUnknown, fmt.Errorf("%w: bundle_policy %q", ErrInvalidConfig, s)
}

func parseRTCPMuxPolicy(s string) (pion.RTCPMuxPolicy, error) {
	switch strings.ToLower(s) {
	case "", "require":
		return pion.RTCPMuxPolicyRequire, nil
	case "negotiate":
		return pion.RTCPMuxPolicyNegotiate, nil
	}
	return pion.RTCPMuxPolicyUnknown, fmt.Errorf("%w: rtcp_mux_policy %q", ErrInvalidConfig, s)
}
