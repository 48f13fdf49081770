package stepconf

import "github.com/bitrise-io/go-utils/v2/log"

// InputParser fills a tagged config struct from the environment and reports it.
type InputParser interface {
	Parse(input interface{}) error
	Print(input interface{})
}

type envInputParser struct {
	envGetter EnvGetter
	logger    log.Logger
}

// NewInputParser returns an InputParser reading envGetter and printing to logger.
func NewInputParser(envGetter EnvGetter, logger log.Logger) InputParser {
	return envInputParser{
		envGetter: envGetter,
		logger:    logger,
	}
}

// Parse ...
func (p envInputParser) Parse(input interface{}) error {
	return Parse(input, p.envGetter)
}

// Print logs every field of input, with secrets masked.
func (p envInputParser) Print(input interface{}) {
	Print(input, p.logger)
}
