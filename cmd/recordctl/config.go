package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	configFileName = "recordctl"
	configFileType = "yaml"

	// Keys share their names with the server's environment variables, so
	// DB_HOST in the environment overrides db_host in the file.
	keyDBUser    = "db_user"
	keyDBPass    = "db_pass"
	keyDBHost    = "db_host"
	keyDBPort    = "db_port"
	keyDBName    = "db_name"
	keyJWTSecret = "jwt_secret"
	keyTokenTTL  = "access_ttl_min"
)

// loadConfig layers the environment over an optional YAML file.  A
// missing default file is not an error; a missing explicit one is.
func loadConfig(path string) (*viper.Viper, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault(keyDBHost, "127.0.0.1")
	v.SetDefault(keyDBPort, "3306")
	v.SetDefault(keyTokenTTL, 60)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		return v, nil
	}

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}
