// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package internal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
)

// Singleton log writer. Writes to stdout, and optionally to a file.
// Does not add prefixes, or force newlines.

var logMutex sync.Mutex

// The optional additional file to log into
var logFile *bufio.Writer
var logFileOS *os.File

// Enables logging to file, closing any previous log file
func LogAlsoToFile(fileName string) (err error) {
	logMutex.Lock()
	defer logMutex.Unlock()
	if logFile != nil {
		if err = logFile.Flush(); err != nil {
			return err
		}
		if err = logFileOS.Close(); err != nil {
			return err
		}
		logFile, logFileOS = nil, nil
	}
	f, err := os.OpenFile(fileName, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	logFileOS, logFile = f, bufio.NewWriter(f)
	return nil
}

// Returns a writer logging to stdout and the optional log file, for handing to
// components which take an io.Writer
func LogWriter() io.Writer { return logWriter{} }

type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	logMutex.Lock()
	defer logMutex.Unlock()
	n, err = os.Stdout.Write(p)
	if err != nil || logFile == nil {
		return n, err
	}
	return logFile.Write(p)
}

func LogPrint(args ...interface{}) (n int, err error) {
	return fmt.Fprint(LogWriter(), args...)
}

func LogPrintln(args ...interface{}) (n int, err error) {
	return fmt.Fprintln(LogWriter(), args...)
}

func LogPrintf(format string, args ...interface{}) (n int, err error) {
	return fmt.Fprintf(LogWriter(), format, args...)
}

func LogFatal(args ...interface{}) {
	LogPrintln(args...)
	LogSync()
	os.Exit(1)
}

func LogFatalf(format string, args ...interface{}) {
	LogPrintf(format, args...)
	LogSync()
	os.Exit(1)
}

func LogSync() {
	logMutex.Lock()
	defer logMutex.Unlock()
	if logFile == nil {
		return
	}
	logFile.Flush()
	logFileOS.Sync()
}
