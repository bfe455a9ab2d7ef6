package error

import "net/http"

// ConfigurationError reports missing or unreadable channel configuration for a bot.
type ConfigurationError string

func (err ConfigurationError) Error() string {
	return string(err)
}

func (err ConfigurationError) ErrCode() string {
	return "CONFIGURATION_ERROR"
}

func (err ConfigurationError) StatusCode() int {
	return http.StatusInternalServerError
}
