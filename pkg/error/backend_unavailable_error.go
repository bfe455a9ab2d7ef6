package error

import (
	"fmt"
	"net/http"
)

// BackendUnavailableError is returned when the conversational backend refuses
// to start a conversation for a bot.
type BackendUnavailableError struct {
	BotID string
}

func (err BackendUnavailableError) Error() string {
	return fmt.Sprintf("bot (id:%s) is not deployed", err.BotID)
}

func (err BackendUnavailableError) ErrCode() string {
	return "BACKEND_UNAVAILABLE"
}

func (err BackendUnavailableError) StatusCode() int {
	return http.StatusBadGateway
}
