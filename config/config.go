// Package config holds the dojod configuration file format.
//
// The file is JSON with four sections (Meta, Security, Database, Logging).
// Every key can be overridden by an environment variable prefixed with
// DOJOD_, for example DOJOD_SECURITY_CSRF_KEY or DOJOD_DATABASE_TYPE.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const EnvPrefix = "DOJOD"

type MetaConfig struct {
	Version         string                 `json:"-" mapstructure:"-"`
	ListenAddr      string                 `json:"listen" mapstructure:"listen"`
	ListenAddrTLS   string                 `json:"listentls" mapstructure:"listentls"`
	SiteName        string                 `json:"sitename" mapstructure:"sitename"`
	SiteURL         string                 `json:"siteurl" mapstructure:"siteurl"`
	DevelopmentMode bool                   `json:"devmode" mapstructure:"devmode"`
	CopyrightName   string                 `json:"copyright-name" mapstructure:"copyright-name"`
	TemplateData    map[string]interface{} `json:"templatedata" mapstructure:"templatedata"`
	LiveTemplate    bool                   `json:"livetemplate" mapstructure:"livetemplate"`
	PathTemplates   string                 `json:"templatedir" mapstructure:"templatedir"` // empty uses the embedded templates
	PathPublic      string                 `json:"publicdir" mapstructure:"publicdir"`
}

type Config struct {
	Meta           MetaConfig     `json:"Meta" mapstructure:"meta"`
	Sec            SecurityConfig `json:"Security" mapstructure:"security"`
	Database       DatabaseConfig `json:"Database" mapstructure:"database"`
	Logging        LoggingConfig  `json:"Logging" mapstructure:"logging"`
	ConfigFilePath string         `json:"-" mapstructure:"-"` // empty if stdin ($PWD used)
}

type SecurityConfig struct {
	HashKey    string `json:"hash-key" mapstructure:"hash-key"`
	BlockKey   string `json:"block-key" mapstructure:"block-key"`
	CSRFKey    string `json:"csrf-key" mapstructure:"csrf-key"`
	CookieName string `json:"cookie-name" mapstructure:"cookie-name"`
}

// DatabaseConfig selects the contact message backend.
type DatabaseConfig struct {
	Type         string `json:"type" mapstructure:"type"` // bolt, sqlite, postgres or mongo
	DSN          string `json:"dsn" mapstructure:"dsn"`
	Name         string `json:"name" mapstructure:"name"` // mongo database name
	Migrate      bool   `json:"migrate" mapstructure:"migrate"`
	MaxOpenConns int    `json:"max-open-conns" mapstructure:"max-open-conns"`
}

type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"` // json or console
}

var defaults = map[string]interface{}{
	"meta.listen":             "",
	"meta.listentls":          "",
	"meta.sitename":           "NL DOJO",
	"meta.siteurl":            "",
	"meta.devmode":            false,
	"meta.copyright-name":     "",
	"meta.livetemplate":       false,
	"meta.templatedir":        "",
	"meta.publicdir":          "./www/public",
	"security.hash-key":       "",
	"security.block-key":      "",
	"security.csrf-key":       "",
	"security.cookie-name":    "",
	"database.type":           "bolt",
	"database.dsn":            "",
	"database.name":           "dojod",
	"database.migrate":        true,
	"database.max-open-conns": 0,
	"logging.level":           "info",
	"logging.format":          "json",
}

// Load reads the JSON config at path, or from stdin when path is "-".
// Environment variables override file values, file values override defaults.
func Load(path string, stdin io.Reader) (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var raw []byte
	switch path {
	case "":
	case "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading config from stdin: %w", err)
		}
		raw = b
	default:
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", path, err)
		}
		raw = b
	}
	if raw != nil {
		if err := v.ReadConfig(bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("decoding json config: %w", err)
		}
	}

	config := new(Config)
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if raw != nil {
		td, err := templateData(raw)
		if err != nil {
			return nil, err
		}
		config.Meta.TemplateData = td
	}
	if path != "-" {
		config.ConfigFilePath = path
	}
	return config, nil
}

// templateData decodes Meta.templatedata straight from the file, since viper
// lowercases map keys and templates address them as {{.meta.Key}}.
func templateData(raw []byte) (map[string]interface{}, error) {
	var file struct {
		Meta struct {
			TemplateData map[string]interface{} `json:"templatedata"`
		}
	}
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decoding templatedata: %w", err)
	}
	return file.Meta.TemplateData, nil
}

// Dump writes the effective config as indented JSON.
func (c *Config) Dump(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent(" ", " ")
	return enc.Encode(c)
}

// IsTLS reports whether cookies should be marked Secure.
func (c *Config) IsTLS() bool {
	return !c.Meta.DevelopmentMode && strings.HasPrefix(c.Meta.SiteURL, "https://")
}

func CheckConfig(config *Config, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	// minimal config needed
	if config.Meta.Version == "" {
		config.Meta.Version = "dojod"
	}
	if config.Meta.PathPublic == "" {
		config.Meta.PathPublic = "./www/public"
	}
	if config.Database.Type == "" {
		config.Database.Type = "bolt"
	}
	if config.Database.Type == "bolt" && config.Database.DSN == "" {
		config.Database.DSN = "contact.db"
	}
	dir, err := os.Getwd()
	if err != nil {
		return err
	}
	if config.ConfigFilePath != "" {
		dir, err = filepath.Abs(filepath.Dir(config.ConfigFilePath))
		if err != nil {
			return fmt.Errorf("config file directory: %w", err)
		}
		log.Debug("resolving paths against config file directory", zap.String("dir", dir))
	} else {
		log.Debug("resolving paths against working directory", zap.String("dir", dir))
	}

	paths := []*string{&config.Meta.PathPublic, &config.Meta.PathTemplates}
	if config.Database.Type == "bolt" {
		paths = append(paths, &config.Database.DSN)
	}
	for _, p := range paths {
		if *p == "" || filepath.IsAbs(*p) {
			continue
		}
		abs, err := filepath.Abs(filepath.Join(dir, *p))
		if err != nil {
			return err
		}
		*p = abs
	}

	dirs := []string{config.Meta.PathPublic}
	if config.Meta.PathTemplates != "" {
		dirs = append(dirs, config.Meta.PathTemplates)
	}
	for _, dirname := range dirs {
		s, err := os.Stat(dirname)
		if err != nil {
			return fmt.Errorf("checking directory: %w", err)
		}
		if !s.IsDir() {
			return fmt.Errorf("is not a dir: %v", dirname)
		}
	}

	// override is $PORT or $SITEURL are used (heroku, etc?)
	if port := os.Getenv("PORT"); port != "" {
		log.Info("overriding flags and config file with $PORT", zap.String("port", port))
		config.Meta.ListenAddr = ":" + port
	}
	if siteurl := os.Getenv("SITEURL"); siteurl != "" {
		log.Info("overriding flags and config file with $SITEURL", zap.String("siteurl", siteurl))
		config.Meta.SiteURL = siteurl
	}

	if config.Meta.SiteURL == "" {
		return fmt.Errorf("config needs Meta.siteurl")
	}
	if config.Sec.HashKey == "" {
		return fmt.Errorf("config needs Security.hash-key")
	}
	if config.Sec.BlockKey == "" {
		return fmt.Errorf("config needs Security.block-key")
	}
	switch len(config.Sec.BlockKey) {
	case 16, 24, 32:
	default:
		return fmt.Errorf("Security.block-key must be 16, 24 or 32 bytes, got %d", len(config.Sec.BlockKey))
	}
	if config.Sec.CSRFKey == "" {
		return fmt.Errorf("config needs Security.csrf-key")
	}
	if len(config.Sec.CSRFKey) != 32 {
		return fmt.Errorf("Security.csrf-key must be 32 bytes, got %d", len(config.Sec.CSRFKey))
	}
	if config.Sec.CookieName == "" {
		return fmt.Errorf("config needs Security.cookie-name")
	}

	switch config.Database.Type {
	case "bolt", "sqlite", "postgres", "mongo":
	default:
		return fmt.Errorf("Database.type must be one of bolt, sqlite, postgres, mongo: got %q", config.Database.Type)
	}
	if config.Database.DSN == "" {
		return fmt.Errorf("config needs Database.dsn for %s", config.Database.Type)
	}
	return nil
}
