// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/formpilot/internal/formfill"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Form() FormConfig
	Batch() BatchConfig
	Notify() NotifyConfig
	Database() DatabaseConfig
	Report() ReportConfig

	// Batch Setters
	SetBatchTargets([]string)
	SetBatchReference(string)
	SetBatchPolicy(string)

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserDriver(string)

	// Report Setters
	SetReportPath(string)
	SetReportFormat(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	FormCfg     FormConfig     `mapstructure:"form" yaml:"form"`
	BatchCfg    BatchConfig    `mapstructure:"batch" yaml:"batch"`
	NotifyCfg   NotifyConfig   `mapstructure:"notify" yaml:"notify"`
	DatabaseCfg DatabaseConfig `mapstructure:"database" yaml:"database"`
	ReportCfg   ReportConfig   `mapstructure:"report" yaml:"report"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Form() FormConfig         { return c.FormCfg }
func (c *Config) Batch() BatchConfig       { return c.BatchCfg }
func (c *Config) Notify() NotifyConfig     { return c.NotifyCfg }
func (c *Config) Database() DatabaseConfig { return c.DatabaseCfg }
func (c *Config) Report() ReportConfig     { return c.ReportCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBatchTargets(ids []string) { c.BatchCfg.Targets = ids }
func (c *Config) SetBatchReference(r string)   { c.BatchCfg.Reference = r }
func (c *Config) SetBatchPolicy(p string)      { c.BatchCfg.Policy = p }
func (c *Config) SetBrowserHeadless(b bool)    { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserDriver(d string)    { c.BrowserCfg.Driver = d }
func (c *Config) SetReportPath(p string)       { c.ReportCfg.Path = p }
func (c *Config) SetReportFormat(f string)     { c.ReportCfg.Format = f }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// Supported browser drivers.
const (
	DriverChromedp = "chromedp"
	DriverRod      = "rod"
)

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Driver             string `mapstructure:"driver" yaml:"driver"`
	Headless           bool   `mapstructure:"headless" yaml:"headless"`
	Incognito          bool   `mapstructure:"incognito" yaml:"incognito"`
	NoSandbox          bool   `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	DisableDevShmUsage bool   `mapstructure:"disable_dev_shm_usage" yaml:"disable_dev_shm_usage"`
	IgnoreTLSErrors    bool   `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	WindowWidth        int    `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight       int    `mapstructure:"window_height" yaml:"window_height"`
	UserAgent          string `mapstructure:"user_agent" yaml:"user_agent"`
	// ExecPath overrides the Chrome binary; empty lets the driver find one.
	ExecPath string `mapstructure:"exec_path" yaml:"exec_path"`
	// Args are extra Chrome switches, "--name=value" or "--name".
	Args []string `mapstructure:"args" yaml:"args"`
	// NavigationTimeout bounds page loads; ActionTimeout bounds each lookup,
	// keystroke and click.
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	// Debug logs every CDP message at debug level.
	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// StepConfig is one configured form step.
type StepConfig struct {
	Name    string `mapstructure:"name" yaml:"name"`
	Action  string `mapstructure:"action" yaml:"action"`
	Locator string `mapstructure:"locator" yaml:"locator"`
	Kind    string `mapstructure:"kind" yaml:"kind"`
	Input   string `mapstructure:"input" yaml:"input"`
	Text    string `mapstructure:"text" yaml:"text"`
}

// ReadinessConfig decides when a freshly loaded form may be filled.
type ReadinessConfig struct {
	Locator     string        `mapstructure:"locator" yaml:"locator"`
	Kind        string        `mapstructure:"kind" yaml:"kind"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
}

// ConfirmationConfig is the text expected on the page after submitting.
type ConfirmationConfig struct {
	Text    string        `mapstructure:"text" yaml:"text"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// FormConfig describes the form and the steps that fill it.
type FormConfig struct {
	URL          string             `mapstructure:"url" yaml:"url"`
	Steps        []StepConfig       `mapstructure:"steps" yaml:"steps"`
	Readiness    ReadinessConfig    `mapstructure:"readiness" yaml:"readiness"`
	Confirmation ConfirmationConfig `mapstructure:"confirmation" yaml:"confirmation"`
}

// BatchConfig lists the identifiers to submit.
type BatchConfig struct {
	Targets []string `mapstructure:"targets" yaml:"targets"`
	// Reference is typed by steps with input "reference", the same for every target.
	Reference string `mapstructure:"reference" yaml:"reference"`
	// Policy is "abort" (stop at the first failure) or "continue".
	Policy string `mapstructure:"policy" yaml:"policy"`
	// MinInterval spaces out consecutive targets.
	MinInterval time.Duration `mapstructure:"min_interval" yaml:"min_interval"`
}

// SMTPConfig holds the outgoing mail server shared by the email and SMS sinks.
type SMTPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	From     string `mapstructure:"from" yaml:"from"`
}

// Sender is the From address, falling back to the login name.
func (s SMTPConfig) Sender() string {
	if s.From != "" {
		return s.From
	}
	return s.Username
}

// EmailConfig configures the email notification sink.
type EmailConfig struct {
	Enabled     bool     `mapstructure:"enabled" yaml:"enabled"`
	To          []string `mapstructure:"to" yaml:"to"`
	Subject     string   `mapstructure:"subject" yaml:"subject"`
	Attachments []string `mapstructure:"attachments" yaml:"attachments"`
}

// SMSRecipient is a phone number and the carrier whose gateway reaches it.
type SMSRecipient struct {
	Name    string `mapstructure:"name" yaml:"name"`
	Number  string `mapstructure:"number" yaml:"number"`
	Carrier string `mapstructure:"carrier" yaml:"carrier"`
}

// SMSConfig configures the email-to-SMS gateway sink.
type SMSConfig struct {
	Enabled    bool           `mapstructure:"enabled" yaml:"enabled"`
	Recipients []SMSRecipient `mapstructure:"recipients" yaml:"recipients"`
}

// WebhookConfig configures the JSON webhook sink.
type WebhookConfig struct {
	Enabled bool              `mapstructure:"enabled" yaml:"enabled"`
	URL     string            `mapstructure:"url" yaml:"url"`
	Headers map[string]string `mapstructure:"headers" yaml:"headers"`
	Timeout time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	Retries int               `mapstructure:"retries" yaml:"retries"`
}

// NotifyConfig configures message templates and delivery channels.
type NotifyConfig struct {
	FormName string `mapstructure:"form_name" yaml:"form_name"`
	// SuccessTemplate and FailureTemplate are text/template sources. Empty
	// means the built-in message. Both are rendered once by Validate.
	SuccessTemplate string `mapstructure:"success_template" yaml:"success_template"`
	FailureTemplate string `mapstructure:"failure_template" yaml:"failure_template"`
	// Timeout bounds delivery across every enabled channel.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Stdout  bool          `mapstructure:"stdout" yaml:"stdout"`
	SMTP    SMTPConfig    `mapstructure:"smtp" yaml:"smtp"`
	Email   EmailConfig   `mapstructure:"email" yaml:"email"`
	SMS     SMSConfig     `mapstructure:"sms" yaml:"sms"`
	Webhook WebhookConfig `mapstructure:"webhook" yaml:"webhook"`
}

// Supported ledger drivers. An empty driver disables the ledger.
const (
	DatabasePostgres = "postgres"
	DatabaseSQLite   = "sqlite"
)

// DatabaseConfig holds the submission ledger connection details.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	// URL is the postgres connection string, usually from FORMPILOT_DATABASE_URL.
	URL string `mapstructure:"url" yaml:"url"`
	// Path is the sqlite file; "~" is expanded.
	Path string `mapstructure:"path" yaml:"path"`
}

// ReportConfig controls the per-run report file.
type ReportConfig struct {
	// Path of the report file; empty or "stdout" writes to stdout, a ".br"
	// suffix compresses.
	Path   string `mapstructure:"path" yaml:"path"`
	Format string `mapstructure:"format" yaml:"format"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// defaultSteps is the attendance form the tool was first written for.
func defaultSteps() []map[string]interface{} {
	return []map[string]interface{}{
		{
			"name":    "student id",
			"action":  "type",
			"input":   "identifier",
			"locator": `//*[@id="mG61Hd"]/div[2]/div/div[2]/div[1]/div/div/div[2]/div/div[1]/div/div[1]/input`,
		},
		{
			"name":    "attendance kind",
			"action":  "click",
			"locator": "/html/body/div/div[3]/form/div[2]/div/div[2]/div[2]/div/div/div[2]/div/div/span/div/div[3]/label/div/div[1]/div/div[3]/div",
		},
		{
			"name":    "attendance duration",
			"action":  "click",
			"locator": "/html/body/div/div[3]/form/div[2]/div/div[2]/div[4]/div/div/div[2]/div[1]/div/span/div/div[2]/label/div/div[1]/div/div[3]/div",
		},
		{
			"name":    "submit",
			"action":  "click",
			"locator": "/html/body/div/div[3]/form/div[2]/div/div[3]/div[1]/div[1]/div/span/span",
		},
	}
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "formpilot")
	v.SetDefault("logger.log_file", "formpilot.log")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.driver", DriverChromedp)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.incognito", true)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.disable_dev_shm_usage", true)
	v.SetDefault("browser.ignore_tls_errors", true)
	v.SetDefault("browser.window_width", 1200)
	v.SetDefault("browser.window_height", 1200)
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.action_timeout", "15s")
	v.SetDefault("browser.debug", false)

	// -- Form --
	v.SetDefault("form.url", "https://docs.google.com/forms/d/e/1FAIpQLSf7LSpENMM8nB_YBcDUqgUQFbYNrGwKyIUndz54Fp-U-8ZdwA/viewform?usp=sf_link")
	v.SetDefault("form.steps", defaultSteps())
	v.SetDefault("form.readiness.timeout", "30s")
	v.SetDefault("form.readiness.settle_delay", formfill.DefaultSettleDelay)
	v.SetDefault("form.confirmation.timeout", "10s")

	// -- Batch --
	v.SetDefault("batch.policy", string(formfill.PolicyAbort))
	v.SetDefault("batch.min_interval", "0s")

	// -- Notify --
	v.SetDefault("notify.form_name", "Google Form")
	v.SetDefault("notify.timeout", "30s")
	v.SetDefault("notify.stdout", true)
	v.SetDefault("notify.smtp.host", "smtp.gmail.com")
	v.SetDefault("notify.smtp.port", 587)
	v.SetDefault("notify.email.subject", "formpilot batch result")
	v.SetDefault("notify.webhook.timeout", "10s")
	v.SetDefault("notify.webhook.retries", 2)

	// -- Database --
	v.SetDefault("database.driver", "")
	v.SetDefault("database.path", "~/.formpilot/ledger.db")

	// -- Report --
	v.SetDefault("report.format", "json")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("notify.smtp.password", "FORMPILOT_SMTP_PASSWORD")
	_ = v.BindEnv("database.url", "FORMPILOT_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the password if Unmarshal didn't pick it up
	if cfg.NotifyCfg.SMTP.Password == "" {
		cfg.NotifyCfg.SMTP.Password = os.Getenv("FORMPILOT_SMTP_PASSWORD")
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading "~" in every path setting.
func (c *Config) expandPaths() error {
	var err error
	if c.LoggerCfg.LogFile, err = homedir.Expand(c.LoggerCfg.LogFile); err != nil {
		return fmt.Errorf("logger.log_file: %w", err)
	}
	if c.DatabaseCfg.Path, err = homedir.Expand(c.DatabaseCfg.Path); err != nil {
		return fmt.Errorf("database.path: %w", err)
	}
	if c.ReportCfg.Path, err = homedir.Expand(c.ReportCfg.Path); err != nil {
		return fmt.Errorf("report.path: %w", err)
	}
	for i, a := range c.NotifyCfg.Email.Attachments {
		if c.NotifyCfg.Email.Attachments[i], err = homedir.Expand(a); err != nil {
			return fmt.Errorf("notify.email.attachments[%d]: %w", i, err)
		}
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.BrowserCfg.Driver {
	case DriverChromedp, DriverRod:
	default:
		return fmt.Errorf("browser.driver must be %q or %q, got %q", DriverChromedp, DriverRod, c.BrowserCfg.Driver)
	}
	if _, err := c.FormCfg.Plan(); err != nil {
		return fmt.Errorf("form configuration invalid: %w", err)
	}
	if err := c.BatchCfg.Validate(); err != nil {
		return fmt.Errorf("batch configuration invalid: %w", err)
	}
	if err := c.NotifyCfg.Validate(); err != nil {
		return fmt.Errorf("notify configuration invalid: %w", err)
	}
	if err := c.DatabaseCfg.Validate(); err != nil {
		return fmt.Errorf("database configuration invalid: %w", err)
	}
	switch strings.ToLower(c.ReportCfg.Format) {
	case "json", "junit", "csv":
	default:
		return fmt.Errorf("report.format must be one of json, junit, csv")
	}
	return nil
}

// Validate checks the batch settings. Targets may be empty here; they can
// still be supplied on the command line.
func (b *BatchConfig) Validate() error {
	if _, ok := formfill.ParsePolicy(strings.ToLower(b.Policy)); !ok {
		return fmt.Errorf("policy must be %q or %q", formfill.PolicyAbort, formfill.PolicyContinue)
	}
	if b.MinInterval < 0 {
		return fmt.Errorf("min_interval cannot be negative")
	}
	for i, id := range b.Targets {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("targets[%d] is empty", i)
		}
	}
	return nil
}

// Validate checks the notification channels that are switched on.
func (n *NotifyConfig) Validate() error {
	if n.Email.Enabled || n.SMS.Enabled {
		if n.SMTP.Host == "" || n.SMTP.Port <= 0 {
			return fmt.Errorf("smtp.host and smtp.port are required when email or sms is enabled")
		}
		if n.SMTP.Username == "" {
			return fmt.Errorf("smtp.username is required when email or sms is enabled")
		}
	}
	if n.Email.Enabled && len(n.Email.To) == 0 {
		return fmt.Errorf("email.to must list at least one recipient")
	}
	if n.SMS.Enabled {
		if len(n.SMS.Recipients) == 0 {
			return fmt.Errorf("sms.recipients must list at least one recipient")
		}
		for i, r := range n.SMS.Recipients {
			if r.Number == "" || r.Carrier == "" {
				return fmt.Errorf("sms.recipients[%d] needs a number and a carrier", i)
			}
		}
	}
	if n.Webhook.Enabled && n.Webhook.URL == "" {
		return fmt.Errorf("webhook.url is required when the webhook is enabled")
	}
	// Templates are rendered once here; a broken one would otherwise only
	// surface after every submission had run.
	if err := n.Messages().Validate(); err != nil {
		return err
	}
	return nil
}

// Validate checks the ledger settings.
func (d *DatabaseConfig) Validate() error {
	switch d.Driver {
	case "":
	case DatabasePostgres:
		if d.URL == "" {
			return fmt.Errorf("database.url is required for the postgres ledger (FORMPILOT_DATABASE_URL)")
		}
	case DatabaseSQLite:
		if d.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite ledger")
		}
	default:
		return fmt.Errorf("database.driver must be empty, %q or %q", DatabasePostgres, DatabaseSQLite)
	}
	return nil
}
