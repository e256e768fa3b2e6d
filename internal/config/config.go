// Package config загружает настройки bpmnflow: YAML-файл, переменные
// окружения и значения по умолчанию, с проверкой через validator.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig — конфигурация не прошла проверку.
var ErrInvalidConfig = errors.New("invalid config")

var validate = validator.New()

// Config — полная конфигурация CLI и движка.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Engine     EngineConfig     `yaml:"engine"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	RunLog     RunLogConfig     `yaml:"runlog"`
	Actions    ActionsConfig    `yaml:"actions"`
	Approval   ApprovalConfig   `yaml:"approval"`
	Events     EventsConfig     `yaml:"events"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// LogConfig — настройки slog.
type LogConfig struct {
	Level  string `yaml:"level" default:"INFO" validate:"oneof=DEBUG INFO WARN ERROR"`
	Format string `yaml:"format" default:"json" validate:"oneof=json text"`
}

// EngineConfig — поведение построения графа.
type EngineConfig struct {
	// FirstStart разрешает несколько кандидатов на старт (берётся первый).
	FirstStart bool `yaml:"first_start"`
}

// CheckpointConfig — хранилище состояний экземпляров.
type CheckpointConfig struct {
	Backend string `yaml:"backend" default:"file" validate:"oneof=file redis"`
	Dir     string `yaml:"dir"`
	Codec   string `yaml:"codec" default:"json" validate:"oneof=json msgpack"`

	RedisAddr     string        `yaml:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db" validate:"min=0"`
	RedisPrefix   string        `yaml:"redis_prefix" default:"bpmnflow:checkpoint:"`
	RedisTTL      time.Duration `yaml:"redis_ttl" validate:"min=0"`
}

// RunLogConfig — журнал запусков.
type RunLogConfig struct {
	Backend       string `yaml:"backend" default:"sqlite" validate:"oneof=sqlite postgres none"`
	Path          string `yaml:"path"`
	DSN           string `yaml:"dsn" validate:"required_if=Backend postgres"`
	RetentionDays int    `yaml:"retention_days" default:"30" validate:"min=0"`
}

// ActionsConfig — источники действий помимо встроенных.
type ActionsConfig struct {
	ScriptDirs []string           `yaml:"script_dirs"`
	Exec       []ExecModuleConfig `yaml:"exec" validate:"dive"`
}

// ExecModuleConfig — модуль действий во внешнем процессе.
type ExecModuleConfig struct {
	Module  string            `yaml:"module" validate:"required"`
	Command string            `yaml:"command" validate:"required"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	Dir     string            `yaml:"dir"`
}

// ApprovalConfig — согласование шагов в режиме экземпляра.
type ApprovalConfig struct {
	Enabled  bool   `yaml:"enabled" default:"true"`
	Snapshot string `yaml:"snapshot" default:"text" validate:"oneof=text none"`
}

// EventsConfig — публикация событий в RabbitMQ. Пустой URL отключает публикацию.
type EventsConfig struct {
	AMQPURL  string `yaml:"amqp_url"`
	Exchange string `yaml:"exchange" default:"bpmnflow.events"`
}

// MetricsConfig — экспорт Prometheus метрик. Пустой адрес отключает экспорт.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// RetentionPeriod возвращает срок хранения журнала.
func (c RunLogConfig) RetentionPeriod() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Load читает конфигурацию из файла path (может быть пустым) и окружения процесса.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv — Load с подменяемым источником переменных окружения.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	cfg.fillPaths(lookup)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет конфигурацию.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// applyEnv переносит переменные окружения поверх файла.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	cfg.Log.Level = strings.ToUpper(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	str("BPMNFLOW_CHECKPOINT_BACKEND", &cfg.Checkpoint.Backend)
	str("BPMNFLOW_CHECKPOINT_DIR", &cfg.Checkpoint.Dir)
	str("BPMNFLOW_CHECKPOINT_CODEC", &cfg.Checkpoint.Codec)
	str("REDIS_ADDR", &cfg.Checkpoint.RedisAddr)
	str("REDIS_PASSWORD", &cfg.Checkpoint.RedisPassword)

	str("BPMNFLOW_RUNLOG_BACKEND", &cfg.RunLog.Backend)
	str("BPMNFLOW_RUNLOG_PATH", &cfg.RunLog.Path)
	str("DB_URL", &cfg.RunLog.DSN)

	str("AMQP_URL", &cfg.Events.AMQPURL)
	str("BPMNFLOW_EVENTS_EXCHANGE", &cfg.Events.Exchange)
	str("BPMNFLOW_METRICS_ADDR", &cfg.Metrics.Addr)

	if v, ok := lookup("BPMNFLOW_SCRIPT_DIRS"); ok && v != "" {
		cfg.Actions.ScriptDirs = append(cfg.Actions.ScriptDirs, filepath.SplitList(v)...)
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"BPMNFLOW_FIRST_START", &cfg.Engine.FirstStart},
		{"BPMNFLOW_APPROVAL", &cfg.Approval.Enabled},
	}
	for _, b := range bools {
		v, ok := lookup(b.key)
		if !ok || v == "" {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, b.key, err)
		}
		*b.dst = parsed
	}
	return nil
}

// fillPaths подставляет каталоги по умолчанию внутри ~/.bpmnflow.
func (c *Config) fillPaths(lookup func(string) (string, bool)) {
	base := HomeDir(lookup)
	if c.Checkpoint.Dir == "" {
		c.Checkpoint.Dir = filepath.Join(base, "instances")
	}
	if c.RunLog.Path == "" {
		c.RunLog.Path = filepath.Join(base, "bpmnflow.db")
	}
}

// HomeDir возвращает рабочий каталог bpmnflow: $BPMNFLOW_HOME или ~/.bpmnflow.
func HomeDir(lookup func(string) (string, bool)) string {
	if v, ok := lookup("BPMNFLOW_HOME"); ok && v != "" {
		return v
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".bpmnflow")
	}
	return filepath.Join(os.TempDir(), "bpmnflow")
}
