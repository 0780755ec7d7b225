// Package logging builds the zap loggers shared by the binaries.
package logging

import "go.uber.org/zap"

// New returns a development logger for env "dev" and a production JSON
// logger otherwise.
func New(env string) (*zap.SugaredLogger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if env == "dev" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
