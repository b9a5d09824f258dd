package backend

import (
	"github.com/shopspring/decimal"

	"fluxo/internal/config"
	"fluxo/internal/core"
	"fluxo/internal/services"
)

// IngestOptions maps the application configuration onto ingest tuning.
func IngestOptions(cfg *config.Config) services.Options {
	var scope []core.Category
	for _, name := range cfg.IOFScope {
		scope = append(scope, core.Category(name))
	}

	return services.Options{
		BaseCurrency: cfg.BaseCurrency,
		IOFRate:      decimal.NewFromFloat(cfg.IOFRate),
		IOFScope:     scope,
		Window:       core.YearWindow{First: cfg.YearWindowStart, Last: cfg.YearWindowEnd},
		DedupMode:    core.ParseDedupMode(cfg.DedupMode),
	}
}
