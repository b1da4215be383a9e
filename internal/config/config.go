package config

import (
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

type DB struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	User string `yaml:"user"`
	Pass string `yaml:"password"`
	Name string `yaml:"database"`
}

type MQ struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	User  string `yaml:"user"`
	Pass  string `yaml:"password"`
	VHost string `yaml:"vhost"`
}

type Redis struct {
	Addr string `yaml:"addr"`
	Pass string `yaml:"password"`
	DB   int    `yaml:"db"`
}

type Admission struct {
	// MaxRetries bounds the optimistic retry loop around the stock
	// transaction; LockTimeoutMS bounds how long one attempt may wait on a
	// product row.
	MaxRetries    int `yaml:"max_retries"`
	LockTimeoutMS int `yaml:"lock_timeout_ms"`
}

type App struct {
	Debug     bool      `yaml:"debug"`
	Database  DB        `yaml:"database"`
	Rabbit    MQ        `yaml:"rabbitmq"`
	Redis     Redis     `yaml:"redis"`
	Admission Admission `yaml:"admission"`
}

func Load(path string) (App, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return App{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var a App
	if err := yaml.Unmarshal(b, &a); err != nil {
		return App{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	// секреты из окружения перекрывают файл
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		a.Database.Pass = v
	}
	if v := os.Getenv("RABBITMQ_PASSWORD"); v != "" {
		a.Rabbit.Pass = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		a.Redis.Pass = v
	}

	if a.Rabbit.VHost == "" {
		a.Rabbit.VHost = "/"
	}
	if a.Admission.MaxRetries <= 0 {
		a.Admission.MaxRetries = 3
	}
	if a.Admission.LockTimeoutMS <= 0 {
		a.Admission.LockTimeoutMS = 3000
	}

	if a.Database.Host == "" || a.Rabbit.Host == "" {
		return App{}, fmt.Errorf("invalid config: missing database/rabbitmq host")
	}
	return a, nil
}

func FindConfig() (string, error) {
	candidates := []string{"config.yaml", "deploy/config.example.yaml"}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fs.ErrNotExist
}
