package config

import (
	"flag"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env     string `yaml:"env" env:"ENV" env-default:"local" env-description:"Environment" env-choices:"local,dev,prod"`
	Client  Client `yaml:"client"`
	Sandbox Sandbox `yaml:"sandbox"`
}

type Client struct {
	BaseURL   string `yaml:"base_url" env:"BANKPAY_BASE_URL" env-default:"http://localhost:8080"`
	TokenPath string `yaml:"token_path" env:"BANKPAY_TOKEN_PATH" env-default:""`
}

type Sandbox struct {
	Host      string `yaml:"host" env-default:"localhost"`
	Port      int    `yaml:"port" env-default:"8080"`
	JwtSecret string `yaml:"jwt_secret" env:"BANKPAY_JWT_SECRET" env-default:"sandbox-secret"`
	Postgres  `yaml:"postgres"`
}

type Postgres struct {
	Host string `yaml:"host" env-default:"localhost"`
	Port string `yaml:"port" env-default:"5433"`
	User string `yaml:"user" env-default:"test"`
	Pass string `yaml:"pass" env-default:"12345"`
	Db   string `yaml:"db" env-default:"bankpay_dev"`
}

func MustLoad() *Config {
	path := fetchConfigPath()

	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			panic("Failed to read config from env" + err.Error())
		}
		return &cfg
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		panic("config file does not exist: " + path)
	}

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		panic("Failed to read config" + err.Error())
	}

	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
