package error

// GenericError is implemented by every error type that knows how it should be
// rendered over HTTP.
type GenericError interface {
	ErrCode() string
	StatusCode() int
	Error() string
}
