package core

// Logger is any service that can record application events.
// Optional args are errors, maps of extra fields or the acting user.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Actor identifies the user behind a log entry.
type Actor struct {
	ID    int64
	Name  string
	Email string
}
