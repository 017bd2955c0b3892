//  Copyright 2015 by Leipzig University Library, http://ub.uni-leipzig.de
//                    The Finc Authors, http://finc.info
//                    Martin Czygan, <martin.czygan@uni-leipzig.de>
//
// This file is part of some open source application.
//
// Some open source application is free software: you can redistribute
// it and/or modify it under the terms of the GNU General Public
// License as published by the Free Software Foundation, either
// version 3 of the License, or (at your option) any later version.
//
// Some open source application is distributed in the hope that it will
// be useful, but WITHOUT ANY WARRANTY; without even the implied warranty
// of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Foobar.  If not, see <http://www.gnu.org/licenses/>.
//
// @license GPL-3.0+ <http://spdx.org/licenses/GPL-3.0+>
//
package oaifetch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Extraction strategies.
const (
	StrategyXPath = "xpath"
	StrategyScan  = "scan"
	StrategyNone  = "none"
)

var ErrUnknownKey = errors.New("unknown configuration key")

// keyAliases maps keys used by older configuration files.
var keyAliases = map[string]string{
	"endpoint":       "base_url",
	"storage":        "storage_directory",
	"files_metadata": "format_selector",
	"files_xpath":    "xpath",
}

// Config for a harvest. It is read from a file with key=value lines or, if
// the file name ends with .yaml or .yml, from YAML with the same keys.
type Config struct {
	BaseURL          string        `yaml:"base_url" validate:"required,url"`
	MetadataFormat   string        `yaml:"metadata_format" validate:"required"`
	StorageDirectory string        `yaml:"storage_directory" validate:"required"`
	Strategy         string        `yaml:"strategy" validate:"omitempty,oneof=xpath scan none"`
	FormatSelector   string        `yaml:"format_selector"`
	XPath            string        `yaml:"xpath" validate:"required_if=Strategy xpath"`
	Set              string        `yaml:"set"`
	StateFile        string        `yaml:"state_file" validate:"required"`
	MaxRecords       int           `yaml:"max_records" validate:"gte=1"`
	MaxRetries       int           `yaml:"max_retries" validate:"gte=1"`
	AllFormats       bool          `yaml:"all_formats"`
	WindowSplit      string        `yaml:"window_split" validate:"omitempty,oneof=none weekly monthly"`
	CABundle         string        `yaml:"ca_bundle" validate:"omitempty,file"`
	HTTPTimeout      time.Duration `yaml:"http_timeout" validate:"gt=0"`
	AssetRate        float64       `yaml:"asset_rate" validate:"gte=0"`
	AdvanceOnFailure bool          `yaml:"advance_on_failure"`
	LogLevel         string        `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// DefaultConfig returns a configuration with all optional values set.
func DefaultConfig() Config {
	return Config{
		StateFile:        DefaultStateFile,
		MaxRecords:       DefaultMaxRecords,
		MaxRetries:       3,
		HTTPTimeout:      DefaultTimeout,
		AdvanceOnFailure: true,
		LogLevel:         "info",
	}
}

// LoadConfig reads, completes and validates a configuration file.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, wrapErr(KindConfig, "read", filename, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, wrapErr(KindConfig, "parse", filename, err)
		}
	default:
		kv, err := godotenv.Read(filename)
		if err != nil {
			return nil, wrapErr(KindConfig, "read", filename, err)
		}
		if err := cfg.apply(kv); err != nil {
			return nil, wrapErr(KindConfig, "parse", filename, err)
		}
	}
	if err := cfg.complete(); err != nil {
		return nil, wrapErr(KindConfig, "complete", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, wrapErr(KindConfig, "validate", filename, err)
	}
	return &cfg, nil
}

// apply sets values from a flat key=value mapping. Keys are case
// insensitive. Unknown keys are logged and ignored.
func (c *Config) apply(kv map[string]string) error {
	setters := map[string]func(string) error{
		"base_url":           setString(&c.BaseURL),
		"metadata_format":    setString(&c.MetadataFormat),
		"storage_directory":  setString(&c.StorageDirectory),
		"strategy":           setString(&c.Strategy),
		"format_selector":    setString(&c.FormatSelector),
		"xpath":              setString(&c.XPath),
		"set":                setString(&c.Set),
		"state_file":         setString(&c.StateFile),
		"window_split":       setString(&c.WindowSplit),
		"ca_bundle":          setString(&c.CABundle),
		"log_level":          setString(&c.LogLevel),
		"max_records":        setInt(&c.MaxRecords),
		"max_retries":        setInt(&c.MaxRetries),
		"all_formats":        setBool(&c.AllFormats),
		"advance_on_failure": setBool(&c.AdvanceOnFailure),
		"http_timeout":       setDuration(&c.HTTPTimeout),
		"asset_rate":         setFloat(&c.AssetRate),
	}
	for k, v := range kv {
		key := strings.ToLower(strings.TrimSpace(k))
		if alias, ok := keyAliases[key]; ok {
			key = alias
		}
		set, ok := setters[key]
		if !ok {
			log.WithFields(log.Fields{"key": k}).Warn(ErrUnknownKey.Error())
			continue
		}
		if err := set(strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func setString(p *string) func(string) error {
	return func(s string) error { *p = s; return nil }
}

func setInt(p *int) func(string) error {
	return func(s string) (err error) { *p, err = strconv.Atoi(s); return }
}

func setBool(p *bool) func(string) error {
	return func(s string) (err error) { *p, err = strconv.ParseBool(s); return }
}

func setFloat(p *float64) func(string) error {
	return func(s string) (err error) { *p, err = strconv.ParseFloat(s, 64); return }
}

func setDuration(p *time.Duration) func(string) error {
	return func(s string) (err error) { *p, err = time.ParseDuration(s); return }
}

// complete fills in derived defaults and expands paths.
func (c *Config) complete() (err error) {
	if c.Strategy == "" {
		c.Strategy = StrategyScan
		if c.XPath != "" {
			c.Strategy = StrategyXPath
		}
	}
	if c.FormatSelector == "" {
		c.FormatSelector = c.MetadataFormat
	}
	for _, p := range []*string{&c.StorageDirectory, &c.StateFile, &c.CABundle} {
		if *p, err = homedir.Expand(*p); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks required keys and value ranges.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		var msgs []string
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
		return errors.New(strings.Join(msgs, ", "))
	}
	return nil
}

// Transport returns the HTTP settings.
func (c *Config) Transport() Transport {
	return Transport{CABundle: c.CABundle, Timeout: c.HTTPTimeout}
}

// Extractor returns the configured asset extractor, nil for strategy none.
func (c *Config) Extractor() (Extractor, error) {
	switch c.Strategy {
	case StrategyXPath:
		e, err := NewXPathExtractor(c.FormatSelector, c.XPath)
		if err != nil {
			return nil, err
		}
		return e, nil
	case StrategyScan:
		return ScanExtractor{}, nil
	}
	return nil, nil
}

// NewHarvest wires client, extractor and fetcher for a window.
func (c *Config) NewHarvest(w Window) (Harvest, error) {
	t := c.Transport()
	client, err := NewClient(t, c.MaxRetries)
	if err != nil {
		return Harvest{}, wrapErr(KindConfig, "client", c.BaseURL, err)
	}
	client.AllFormats = c.AllFormats
	extractor, err := c.Extractor()
	if err != nil {
		return Harvest{}, wrapErr(KindConfig, "extractor", c.XPath, err)
	}
	fetcher, err := NewFetcher(t, c.AssetRate)
	if err != nil {
		return Harvest{}, wrapErr(KindConfig, "fetcher", c.BaseURL, err)
	}
	return Harvest{
		Client:       client,
		Endpoint:     c.BaseURL,
		Prefix:       c.MetadataFormat,
		Set:          c.Set,
		Window:       w,
		Split:        c.WindowSplit,
		MaxRecords:   c.MaxRecords,
		Materializer: Materializer{Root: c.StorageDirectory},
		Extractor:    extractor,
		Fetcher:      fetcher,
	}, nil
}
