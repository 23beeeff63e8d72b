package internal

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"github.com/tuannm99/novaspool/internal/export"
	"github.com/tuannm99/novaspool/internal/record"
	"github.com/tuannm99/novaspool/internal/resultset"
	"github.com/tuannm99/novaspool/internal/selection"
	"github.com/tuannm99/novaspool/internal/storage"
)

const EnvPrefix = "NOVASPOOL"

type NovaSpoolConfig struct {
	AppName  string `mapstructure:"app_name"`
	LogLevel string `mapstructure:"log_level"`

	Spool struct {
		Dir        string `mapstructure:"dir"`
		BufferSize int    `mapstructure:"buffer_size"`
	} `mapstructure:"spool"`

	Export struct {
		PageSize                    int    `mapstructure:"page_size"`
		InsertBatchSize             int    `mapstructure:"insert_batch_size"`
		Locale                      string `mapstructure:"locale"`
		BoolDisplay                 string `mapstructure:"bool_display"`
		SkipSeparatorAfterLineBreak bool   `mapstructure:"skip_separator_after_line_break"`
		LineSeparator               string `mapstructure:"line_separator"`
		Encoding                    string `mapstructure:"encoding"`
		MaxLongDisplayChars         int    `mapstructure:"max_long_display_chars"`
	} `mapstructure:"export"`
}

// NewViper returns a viper instance carrying the defaults and the
// NOVASPOOL_ environment overrides, e.g. NOVASPOOL_EXPORT_PAGE_SIZE.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("app_name", "novaspool")
	v.SetDefault("log_level", "info")
	v.SetDefault("spool.dir", "")
	v.SetDefault("spool.buffer_size", storage.DefaultBufferSize)
	v.SetDefault("export.page_size", selection.DefaultPageSize)
	v.SetDefault("export.insert_batch_size", export.DefaultInsertBatchSize)
	v.SetDefault("export.locale", "en-US")
	v.SetDefault("export.bool_display", "numeric")
	v.SetDefault("export.skip_separator_after_line_break", false)
	v.SetDefault("export.line_separator", "\n")
	v.SetDefault("export.encoding", "utf-8")
	v.SetDefault("export.max_long_display_chars", 0)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads the YAML file at path on top of the defaults. An empty
// path yields the defaults plus environment overrides.
func LoadConfig(path string) (*NovaSpoolConfig, error) {
	return LoadInto(NewViper(), path)
}

// LoadInto is LoadConfig for a viper instance the caller has already bound
// flags to.
func LoadInto(v *viper.Viper, path string) (*NovaSpoolConfig, error) {
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return Decode(v)
}

// Decode unmarshals an already populated viper instance.
func Decode(v *viper.Viper) (*NovaSpoolConfig, error) {
	var cfg NovaSpoolConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func (c *NovaSpoolConfig) FormatOptions() (record.FormatOptions, error) {
	opts := record.DefaultFormatOptions()
	if c.Export.Locale != "" {
		tag, err := language.Parse(c.Export.Locale)
		if err != nil {
			return opts, fmt.Errorf("config: locale %q: %w", c.Export.Locale, err)
		}
		opts.Locale = tag
	}
	b, err := record.ParseBoolDisplay(c.Export.BoolDisplay)
	if err != nil {
		return opts, fmt.Errorf("config: %w", err)
	}
	opts.Bool = b
	opts.MaxLongDisplayChars = max(c.Export.MaxLongDisplayChars, 0)
	return opts, nil
}

func (c *NovaSpoolConfig) ResultSetOptions() (resultset.Options, error) {
	f, err := c.FormatOptions()
	if err != nil {
		return resultset.Options{}, err
	}
	size := c.Spool.BufferSize
	if size <= 0 {
		size = storage.DefaultBufferSize
	}
	return resultset.Options{BufferSize: size, Format: f}, nil
}

func (c *NovaSpoolConfig) SelectionOptions() selection.Options {
	return selection.Options{
		PageSize:                    c.Export.PageSize,
		LineSeparator:               c.Export.LineSeparator,
		SkipSeparatorAfterLineBreak: c.Export.SkipSeparatorAfterLineBreak,
	}
}

// ExportParams fills the configured defaults into p where p leaves them unset.
func (c *NovaSpoolConfig) ExportParams(p export.Params) export.Params {
	if p.Encoding == "" {
		p.Encoding = c.Export.Encoding
	}
	if p.LineSeparator == "" {
		p.LineSeparator = c.Export.LineSeparator
	}
	if p.BatchSize <= 0 {
		p.BatchSize = c.Export.InsertBatchSize
	}
	p.SkipSeparatorAfterLineBreak = p.SkipSeparatorAfterLineBreak || c.Export.SkipSeparatorAfterLineBreak
	return p
}
