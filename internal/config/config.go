// Package config loads process configuration from the environment.
//
// Values come from, highest priority first: the process environment, then
// an optional .env file. Every variable carries the STATECRAFT_ prefix.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"github.com/talgya/statecraft/internal/calendar"
)

// Prefix is prepended to every environment variable name.
const Prefix = "STATECRAFT"

// Config is the process configuration. It is read once at startup.
type Config struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"auto" validate:"oneof=auto text json"`

	// Seed overrides the scenario seed when non-zero.
	Seed         uint64 `envconfig:"SEED"`
	DBPath       string `envconfig:"DB_PATH" default:"statecraft.db" validate:"required"`
	ScenarioPath string `envconfig:"SCENARIO"`
	// Countries generates a procedural world of this size when no scenario
	// file is given. Zero uses the bundled scenario.
	Countries int `envconfig:"COUNTRIES" validate:"gte=0,lte=64"`

	// Calendar and StartDate override the scenario when set.
	Calendar   string `envconfig:"CALENDAR" validate:"omitempty,oneof=gregorian noleap"`
	StartDate  string `envconfig:"START_DATE" validate:"omitempty,datetime=2006-01-02"`
	DateFormat string `envconfig:"DATE_FORMAT" default:"%Y-%m-%d %H:%M" validate:"required"`

	StepMinutes  int           `envconfig:"STEP_MINUTES" default:"60" validate:"gte=1"`
	Multiplier   string        `envconfig:"MULTIPLIER" default:"1" validate:"posdecimal"`
	LoopInterval time.Duration `envconfig:"LOOP_INTERVAL" default:"1s" validate:"min=10ms"`
	Speed        float64       `envconfig:"SPEED" default:"1" validate:"gte=0"`

	APIAddr   string  `envconfig:"API_ADDR" default:":8080"`
	AdminKey  string  `envconfig:"ADMIN_KEY"`
	RateLimit float64 `envconfig:"RATE_LIMIT" default:"10" validate:"gt=0"`
	RateBurst int     `envconfig:"RATE_BURST" default:"20" validate:"gte=1"`

	AutosaveSpec string `envconfig:"AUTOSAVE" default:"@every 10m" validate:"cronspec"`
}

// ErrorKind categorises configuration failures.
type ErrorKind string

const (
	ErrParsing    ErrorKind = "PARSING_FAILED"
	ErrValidation ErrorKind = "VALIDATION_FAILED"
	ErrDotenv     ErrorKind = "DOTENV_FAILED"
)

// Error is returned by Load. Field names the offending setting when known.
type Error struct {
	Kind  ErrorKind
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Field, e.Err)
	}
	return fmt.Sprintf("[%s] %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// CronParser accepts standard five-field expressions and descriptors such
// as @hourly or @every 5m.
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("cronspec", func(fl validator.FieldLevel) bool {
		_, err := CronParser.Parse(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("posdecimal", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && d.IsPositive()
	})
	return v
}

// Load reads the optional dotenv files (".env" when none are named), then
// the environment, then validates the result. A missing default .env is not
// an error; a missing named file is.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(files...); err != nil {
		return nil, &Error{Kind: ErrDotenv, Err: err}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		e := &Error{Kind: ErrParsing, Err: err}
		var perr *envconfig.ParseError
		if errors.As(err, &perr) {
			e.Field = perr.KeyName
		}
		return nil, e
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field rules and the calendar settings together.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		e := &Error{Kind: ErrValidation, Err: err}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e.Field = verrs[0].Field()
		}
		return e
	}
	if _, err := c.ResolveCalendar(calendar.Default()); err != nil {
		return &Error{Kind: ErrValidation, Field: "StartDate", Err: err}
	}
	return nil
}

// ResolveCalendar applies the configured mode and start date on top of
// base, the scenario's calendar.
func (c *Config) ResolveCalendar(base calendar.Calendar) (calendar.Calendar, error) {
	if c.Calendar == "" && c.StartDate == "" {
		return base, nil
	}
	mode := c.Calendar
	if mode == "" {
		mode = base.Mode().String()
	}
	start := c.StartDate
	if start == "" {
		b := base.Base()
		start = fmt.Sprintf("%04d-%02d-%02d", b.Year, b.Month, b.Day)
	}
	return calendar.Parse(mode, start)
}
