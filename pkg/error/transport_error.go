package error

import (
	"fmt"
	"net/http"
)

// TransportError wraps a failed network call. Op names the call that failed.
type TransportError struct {
	Op  string
	Err error
}

func (err TransportError) Error() string {
	if err.Err == nil {
		return err.Op + ": transport failure"
	}
	return fmt.Sprintf("%s: %v", err.Op, err.Err)
}

func (err TransportError) Unwrap() error {
	return err.Err
}

func (err TransportError) ErrCode() string {
	return "TRANSPORT_ERROR"
}

func (err TransportError) StatusCode() int {
	return http.StatusBadGateway
}
