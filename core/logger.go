package core

// Logger is the app wide logging & error reporting contract.
// args may carry an error, a map[string]interface{} of extras or the acting principal.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
