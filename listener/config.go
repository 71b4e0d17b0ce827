package listener

import (
	"os"
	"strings"

	"github.com/mbocsi/goreverb/client"
)

// Config holds the device listener settings on top of the client's
// connection config.
type Config struct {
	Client client.Config

	DeviceID      string
	APIBaseURL    string
	APIToken      string
	CaptureScript string
	ImageBasePath string
	StatusAddr    string // empty disables the local status endpoint
}

// LoadConfig reads the listener configuration from the environment. The
// client config load pulls in a .env file first when one exists.
func LoadConfig() (Config, error) {
	clientCfg, err := client.LoadConfig()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Client:        clientCfg,
		DeviceID:      os.Getenv("DEVICE_ID"),
		APIBaseURL:    strings.TrimRight(os.Getenv("API_BASE_URL"), "/"),
		APIToken:      os.Getenv("API_TOKEN"),
		CaptureScript: os.Getenv("CAPTURE_SCRIPT"),
		ImageBasePath: os.Getenv("IMAGE_BASE_PATH"),
		StatusAddr:    os.Getenv("STATUS_ADDR"),
	}
	if cfg.CaptureScript == "" {
		cfg.CaptureScript = "/opt/scripts/capture.sh"
	}
	if cfg.ImageBasePath == "" {
		cfg.ImageBasePath = "/var/www/html/images"
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.DeviceID == "" {
		return errMissing("DEVICE_ID")
	}
	if c.APIBaseURL == "" {
		return errMissing("API_BASE_URL")
	}
	return nil
}

func errMissing(name string) error {
	return &client.Error{Kind: client.KindConfiguration, Message: name + " is not set"}
}
