package persist

import (
	"log"
	"os"
)

// Logger wraps the standard library logger, writing bracketing STARTUP and
// SHUTDOWN lines so a log file's boundaries are easy to find by eye.
type Logger struct {
	*log.Logger
	file *os.File
}

// NewLogger returns a Logger that appends to (or creates) the file at path.
func NewLogger(path string) (*Logger, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}
	logger := log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile|log.LUTC)
	logger.Println("STARTUP: Logging has started.")
	return &Logger{Logger: logger, file: file}, nil
}

// Close logs a SHUTDOWN line and closes the underlying file.
func (l *Logger) Close() error {
	l.Println("SHUTDOWN: Logging has terminated.")
	return l.file.Close()
}

// Critical logs a message at critical severity. It never panics: it does not
// import the build package, to avoid a dependency cycle, so callers that
// want panic-on-debug behavior call build.Critical themselves after logging.
func (l *Logger) Critical(v ...interface{}) {
	l.Println(append([]interface{}{"CRITICAL:"}, v...)...)
}

// Severe logs a message at severe severity.
func (l *Logger) Severe(v ...interface{}) {
	l.Println(append([]interface{}{"SEVERE:"}, v...)...)
}
