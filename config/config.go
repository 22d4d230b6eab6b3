package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/apex/log"
	"gopkg.in/yaml.v2"

	"XivSync/memory"
)

// SignatureSettings holds the hex pattern of every structure the host can
// locate. "??" matches any byte. Empty optional entries are not scanned.
type SignatureSettings struct {
	Target     string `yaml:"target"`
	ChatLog    string `yaml:"chatLog"`
	MobArray   string `yaml:"mobArray"`
	PartyList  string `yaml:"partyList"`
	ServerTime string `yaml:"serverTime"`
	ZoneID     string `yaml:"zoneID"`
	Player     string `yaml:"player"`
}

// HostSettings configures the program that reads the game.
type HostSettings struct {
	Process             string            `yaml:"process"`
	BindAddress         string            `yaml:"bindAddress"`
	Interface           string            `yaml:"interface"`
	ScanInterval        time.Duration     `yaml:"scanInterval"`
	HeartbeatInterval   time.Duration     `yaml:"heartbeatInterval"`
	MaxMissedHeartbeats int               `yaml:"maxMissedHeartbeats"`
	RetryDelay          time.Duration     `yaml:"retryDelay"`
	LogFile             string            `yaml:"logFile"`
	Debug               bool              `yaml:"debug"`
	Signatures          SignatureSettings `yaml:"signatures"`
}

// ClientSettings configures the program that mirrors the host.
type ClientSettings struct {
	HostAddress       string        `yaml:"hostAddress"`
	BindAddress       string        `yaml:"bindAddress"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	ConnectTimeout    time.Duration `yaml:"connectTimeout"`
	ReadTimeout       time.Duration `yaml:"readTimeout"`
	RetryDelay        time.Duration `yaml:"retryDelay"`
	GracePeriod       time.Duration `yaml:"gracePeriod"`
	LogFile           string        `yaml:"logFile"`
	Debug             bool          `yaml:"debug"`
}

var DefaultSignatures = SignatureSettings{
	Target:     memory.DefaultSignatures[memory.SigTarget],
	ChatLog:    memory.DefaultSignatures[memory.SigChatLog],
	MobArray:   memory.DefaultSignatures[memory.SigMobArray],
	PartyList:  memory.DefaultSignatures[memory.SigPartyList],
	ServerTime: memory.DefaultSignatures[memory.SigServerTime],
	ZoneID:     memory.DefaultSignatures[memory.SigZoneID],
	Player:     memory.DefaultSignatures[memory.SigPlayer],
}

var defaultHostSettings = HostSettings{
	Process:             "ffxiv_dx11.exe",
	BindAddress:         "0.0.0.0:7262",
	ScanInterval:        10 * time.Millisecond,
	HeartbeatInterval:   500 * time.Millisecond,
	MaxMissedHeartbeats: 3,
	RetryDelay:          5 * time.Second,
	LogFile:             "xivsync-host.log",
	Signatures:          DefaultSignatures,
}

var defaultClientSettings = ClientSettings{
	HostAddress:       "127.0.0.1:7262",
	HeartbeatInterval: 500 * time.Millisecond,
	ConnectTimeout:    5 * time.Second,
	ReadTimeout:       time.Second,
	RetryDelay:        2 * time.Second,
	GracePeriod:       time.Second,
	LogFile:           "xivsync-client.log",
}

// LoadHostConfig loads host settings from a YAML file, creating the file with
// defaults if it doesn't exist.
func LoadHostConfig(filePath string) (*HostSettings, error) {
	settings := defaultHostSettings
	if err := load(filePath, &settings, &defaultHostSettings); err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	return &settings, nil
}

// LoadClientConfig is LoadHostConfig for the client.
func LoadClientConfig(filePath string) (*ClientSettings, error) {
	settings := defaultClientSettings
	if err := load(filePath, &settings, &defaultClientSettings); err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	return &settings, nil
}

// load decodes filePath over out, which already holds the defaults, so keys
// missing from the file keep their default value.
func load(filePath string, out, defaults interface{}) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		if err := createDefaultConfig(filePath, defaults); err != nil {
			return err
		}
		log.Infof("Created default config file at %s", filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.SetStrict(true)
	if err := decoder.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse %s: %w", filePath, err)
	}
	return nil
}

// createDefaultConfig creates a config file with default settings
func createDefaultConfig(filePath string, defaults interface{}) error {
	data, err := yaml.Marshal(defaults)
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0644)
}

func (s *HostSettings) Validate() error {
	if s.Process == "" {
		return fmt.Errorf("process must be set")
	}
	if _, _, err := net.SplitHostPort(s.BindAddress); err != nil {
		return fmt.Errorf("bindAddress: %w", err)
	}
	if s.ScanInterval <= 0 || s.HeartbeatInterval <= 0 || s.RetryDelay <= 0 {
		return fmt.Errorf("scanInterval, heartbeatInterval and retryDelay must be positive")
	}
	if s.MaxMissedHeartbeats < 1 {
		return fmt.Errorf("maxMissedHeartbeats must be at least 1")
	}
	_, err := s.Signatures.Parse()
	return err
}

func (s *ClientSettings) Validate() error {
	if _, _, err := net.SplitHostPort(s.HostAddress); err != nil {
		return fmt.Errorf("hostAddress: %w", err)
	}
	if s.BindAddress != "" {
		if _, _, err := net.SplitHostPort(s.BindAddress); err != nil {
			return fmt.Errorf("bindAddress: %w", err)
		}
	}
	if s.HeartbeatInterval <= 0 || s.ConnectTimeout <= 0 || s.ReadTimeout <= 0 || s.RetryDelay <= 0 {
		return fmt.Errorf("heartbeatInterval, connectTimeout, readTimeout and retryDelay must be positive")
	}
	if s.GracePeriod < 0 {
		return fmt.Errorf("gracePeriod must not be negative")
	}
	return nil
}

// Parse turns the configured patterns into signatures. Every signature the
// scan loop depends on must be present.
func (s SignatureSettings) Parse() (map[memory.SignatureType]memory.Signature, error) {
	raw := map[memory.SignatureType]string{
		memory.SigTarget:     s.Target,
		memory.SigChatLog:    s.ChatLog,
		memory.SigMobArray:   s.MobArray,
		memory.SigPartyList:  s.PartyList,
		memory.SigServerTime: s.ServerTime,
		memory.SigZoneID:     s.ZoneID,
		memory.SigPlayer:     s.Player,
	}
	for _, required := range memory.RequiredSignatures {
		if raw[required] == "" {
			return nil, fmt.Errorf("signature %s is required", required)
		}
	}

	sigs := make(map[memory.SignatureType]memory.Signature, len(raw))
	for name, pattern := range raw {
		if pattern == "" {
			continue
		}
		sig, err := memory.ParseSignature(pattern)
		if err != nil {
			return nil, fmt.Errorf("signature %s: %w", name, err)
		}
		sigs[name] = sig
	}
	return sigs, nil
}

// ResolveBindAddress replaces an empty or unspecified host in BindAddress
// with the first IPv4 address of Interface, when one is configured.
func (s *HostSettings) ResolveBindAddress() (string, error) {
	host, port, err := net.SplitHostPort(s.BindAddress)
	if err != nil {
		return "", err
	}
	if s.Interface == "" || (host != "" && host != "0.0.0.0") {
		return s.BindAddress, nil
	}

	iface, err := net.InterfaceByName(s.Interface)
	if err != nil {
		return "", fmt.Errorf("interface %s: %w", s.Interface, err)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return "", fmt.Errorf("interface %s: %w", s.Interface, err)
	}
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && ipNet.IP.To4() != nil {
			return net.JoinHostPort(ipNet.IP.String(), port), nil
		}
	}
	return "", fmt.Errorf("interface %s has no IPv4 address", s.Interface)
}
