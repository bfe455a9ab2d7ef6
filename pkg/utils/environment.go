package utils

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// LoadConfig loads a .env file from path (if present) into the process
// environment and lets viper resolve every setting from the environment.
func LoadConfig(path string) {
	envFile := filepath.Join(path, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			logrus.Warnf("[CONFIG] Could not load %s: %v", envFile, err)
		}
		viper.SetConfigFile(envFile)
		viper.SetConfigType("env")
		if err := viper.ReadInConfig(); err != nil {
			logrus.Warnf("[CONFIG] viper could not read %s: %v", envFile, err)
		}
	}
	viper.AutomaticEnv()
}
