package error

import "net/http"

// VerificationError reports a bad webhook signature or a mismatched verify token.
type VerificationError string

func (err VerificationError) Error() string {
	return string(err)
}

func (err VerificationError) ErrCode() string {
	return "VERIFICATION_ERROR"
}

func (err VerificationError) StatusCode() int {
	return http.StatusForbidden
}
