// Package logging configures the process-wide logrus logger.
//
// Entries are written as "<timestamp> - <LEVEL> - <message>" to stdout and
// appended to a log file.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02 15:04:05,000"

type Formatter struct{}

func (Formatter) Format(entry *log.Entry) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(entry.Time.Format(timestampFormat))
	b.WriteString(" - ")
	b.WriteString(strings.ToUpper(entry.Level.String()))
	b.WriteString(" - ")
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

// Setup points the standard logrus logger at stdout and the given file.
// The returned close function must be called before exit.
func Setup(logFile, level string) (func() error, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	log.SetFormatter(Formatter{})
	log.SetLevel(lvl)

	if logFile == "" {
		log.SetOutput(os.Stdout)
		return func() error { return nil }, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", logFile, err)
	}
	log.SetOutput(io.MultiWriter(os.Stdout, f))
	return func() error {
		log.SetOutput(os.Stdout)
		return f.Close()
	}, nil
}
