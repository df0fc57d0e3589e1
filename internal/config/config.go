// Package config loads all runtime settings from the environment.
package config

import (
	"fmt"
	"os"
)

type Config struct {
	Token   string
	Prefix  string
	OwnerID string
	DBPath  string

	API      APIConfig
	Imgur    ImgurConfig
	Storage  StorageConfig
	Mcsv     McsvConfig
	AntiScam AntiScamConfig
	Scraper  ScraperConfig

	ReurlToken string
	SauceToken string
}

// APIConfig configures the changelog HTTP server.
type APIConfig struct {
	Enabled bool
	Addr    string
}

// ImgurConfig holds the default image host credential.
type ImgurConfig struct {
	ClientID string
}

// StorageConfig enables the self-hosted image backend when credentials are
// present; otherwise uploads go through Imgur.
type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	PublicURL string
}

// McsvConfig points the server watcher at a host and its status thread.
type McsvConfig struct {
	Enabled  bool
	Host     string
	ThreadID string
}

type AntiScamConfig struct {
	FeedURL    string
	CustomFile string
}

type ScraperConfig struct {
	Enabled     bool
	BrowserPath string
}

func Load() (*Config, error) {
	token := os.Getenv("IBIS_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("IBIS_TOKEN is required")
	}

	prefix := os.Getenv("IBIS_PREFIX")
	if prefix == "" {
		prefix = "i."
	}

	dbPath := os.Getenv("IBIS_DB")
	if dbPath == "" {
		dbPath = "ibis.db"
	}

	return &Config{
		Token:    token,
		Prefix:   prefix,
		OwnerID:  os.Getenv("IBIS_OWNER_ID"),
		DBPath:   dbPath,
		API:      loadAPIConfig(),
		Imgur:    ImgurConfig{ClientID: os.Getenv("IMGUR_CLIENT_ID")},
		Storage:  loadStorageConfig(),
		Mcsv:     loadMcsvConfig(),
		AntiScam: loadAntiScamConfig(),
		Scraper:  loadScraperConfig(),

		ReurlToken: os.Getenv("REURL_TOKEN"),
		SauceToken: os.Getenv("SAUCENAO_TOKEN"),
	}, nil
}

func loadAPIConfig() APIConfig {
	addr := os.Getenv("IBIS_API_ADDR")
	if addr == "" {
		addr = ":5000"
	}

	return APIConfig{
		Enabled: os.Getenv("IBIS_API_DISABLED") != "true",
		Addr:    addr,
	}
}

func loadStorageConfig() StorageConfig {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "minio:9000"
	}

	bucket := os.Getenv("MINIO_BUCKET")
	if bucket == "" {
		bucket = "ibis-images"
	}

	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	secretKey := os.Getenv("MINIO_SECRET_KEY")

	return StorageConfig{
		Enabled:   accessKey != "" && secretKey != "",
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
		Bucket:    bucket,
		PublicURL: os.Getenv("MINIO_PUBLIC_URL"),
	}
}

func loadMcsvConfig() McsvConfig {
	host := os.Getenv("MC_SERVER_HOST")
	threadID := os.Getenv("MC_SERVER_STATUS_THREAD")

	return McsvConfig{
		Enabled:  host != "" && threadID != "",
		Host:     host,
		ThreadID: threadID,
	}
}

func loadAntiScamConfig() AntiScamConfig {
	return AntiScamConfig{
		FeedURL:    os.Getenv("ANTISCAM_FEED_URL"),
		CustomFile: os.Getenv("ANTISCAM_CUSTOM_FILE"),
	}
}

func loadScraperConfig() ScraperConfig {
	return ScraperConfig{
		Enabled:     os.Getenv("SCRAPER_DISABLED") != "true",
		BrowserPath: os.Getenv("SCRAPER_BROWSER_PATH"),
	}
}
