package main

import (
	"math"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/dataplatform-io/go-uploadutils/upload/registry"
	"github.com/docker/go-units"
)

// progressPrinter logs the progress of one task whenever it crosses a whole percent.
type progressPrinter struct {
	key     string
	logger  log.Logger
	printed int
}

func newProgressPrinter(key string, logger log.Logger) *progressPrinter {
	return &progressPrinter{key: key, logger: logger, printed: -1}
}

func (p *progressPrinter) print(tasks []registry.Task) {
	for _, t := range tasks {
		if t.Key != p.key {
			continue
		}

		percent := int(math.Floor(t.Percent))
		if percent <= p.printed {
			return
		}
		p.printed = percent
		p.logger.Printf("%s: %d%% (%s)", t.Title, percent, units.HumanSizeWithPrecision(float64(t.Size), 3))
		return
	}
}
