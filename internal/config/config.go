/**
 * @description
 * This package handles the configuration management for the service. It uses
 * the Viper library to read configuration from environment variables (plus
 * an optional .env file), providing a centralized way to manage settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the interest-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort              string `mapstructure:"SERVER_PORT"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	RedisURL                string `mapstructure:"REDIS_URL"`
	RateLimitPrefix         string `mapstructure:"RATE_LIMIT_PREFIX"`
	SessionSecret           string `mapstructure:"SESSION_SECRET"`
	LoginURL                string `mapstructure:"LOGIN_URL"`
	ItemFeeds               string `mapstructure:"ITEM_FEEDS"`
	SubscribeLimitPerMinute int    `mapstructure:"SUBSCRIBE_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given
// path. It uses Viper to automatically bind environment variables to the
// Config struct; an optional .env file in path is read when present.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOGIN_URL", "/login")
	viper.SetDefault("RATE_LIMIT_PREFIX", "interest_service:rate_limit")
	viper.SetDefault("ITEM_FEEDS", "item_actions,item_news")
	viper.SetDefault("SUBSCRIBE_RATE_LIMIT_PER_MINUTE", 60)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("SESSION_SECRET", "SESSION_SECRET", "INTEREST_SERVICE_SESSION_SECRET")
	_ = viper.BindEnv("LOGIN_URL")
	_ = viper.BindEnv("ITEM_FEEDS")
	_ = viper.BindEnv("SUBSCRIBE_RATE_LIMIT_PER_MINUTE")

	if readErr := viper.ReadInConfig(); readErr != nil {
		// The .env file is optional; only a real read failure matters.
		if _, ok := readErr.(viper.ConfigFileNotFoundError); !ok && !errors.Is(readErr, os.ErrNotExist) {
			return config, readErr
		}
	}

	err = viper.Unmarshal(&config)
	return
}

// ItemFeedList splits the comma-separated ITEM_FEEDS value into the
// subscription types attached when following an item.
func (c Config) ItemFeedList() []string {
	var feeds []string
	for _, feed := range strings.Split(c.ItemFeeds, ",") {
		feed = strings.TrimSpace(feed)
		if feed != "" {
			feeds = append(feeds, feed)
		}
	}
	return feeds
}
