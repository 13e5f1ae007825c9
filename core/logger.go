package core

// Logger is implemented by every log sink of the app.
// expected args fmt: error, map[string]interface{}, member identity
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Person identifies the member a log line is about (reported to the error tracker).
type Person struct {
	ID       string
	Username string
	Email    string
}
