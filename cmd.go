// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package filegdb

import (
	"io"
	"os"

	"github.com/featurebasedb/filegdb/errors"
	"github.com/featurebasedb/filegdb/logger"
)

// CmdIO holds standard unix inputs and outputs.
type CmdIO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	logger logger.Logger
}

// NewCmdIO returns a new instance of CmdIO with inputs and outputs set to the
// arguments.
func NewCmdIO(stdin io.Reader, stdout, stderr io.Writer) *CmdIO {
	return &CmdIO{
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
		logger: logger.NewStandardLogger(stderr),
	}
}

func (c *CmdIO) Logger() logger.Logger {
	return c.logger
}

// ConfigureLogger replaces the logger with one that honors the verbose and
// log-path settings of conf. The returned function closes the log file, if
// one was opened.
func (c *CmdIO) ConfigureLogger(conf *Config) (func() error, error) {
	if conf == nil {
		return func() error { return nil }, nil
	}
	var w io.Writer = c.Stderr
	closer := func() error { return nil }
	if conf.LogPath != "" {
		f, err := os.OpenFile(conf.LogPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
		if err != nil {
			return nil, errors.Wrap(err, "opening log file")
		}
		w, closer = f, f.Close
	}
	c.logger = logger.NewLogger(w, conf.Verbose)
	return closer, nil
}
