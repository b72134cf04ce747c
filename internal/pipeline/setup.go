package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/dgallion1/protoseg/internal/config"
	"github.com/dgallion1/protoseg/internal/pathstore"
	"github.com/dgallion1/protoseg/internal/protocol"
	"github.com/dgallion1/protoseg/internal/segment"
	"github.com/dgallion1/protoseg/internal/sqlstore"
	"github.com/dgallion1/protoseg/internal/template"
)

// NewEngine loads the configured template and builds the segmentation engine.
func NewEngine(cfg config.Config, log *slog.Logger) (*protocol.Engine, error) {
	tmpl := template.Default()
	if cfg.TemplatePath != "" {
		t, err := template.Load(cfg.TemplatePath)
		if err != nil {
			return nil, err
		}
		tmpl = t
	}
	seg := segment.New(tmpl,
		segment.WithBoundaryRule(segment.RuleByName(cfg.BoundaryRule, tmpl)),
		segment.WithLogger(log),
	)
	log.Info("template loaded", "sections", tmpl.Len(), "boundary_rule", cfg.BoundaryRule)
	return protocol.NewEngine(seg, log), nil
}

// OpenStore opens the configured storage backend.
func OpenStore(cfg config.Config) (protocol.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		return sqlstore.Open(cfg.SQLitePath)
	case config.StorePathstore:
		return pathstore.NewStore(pathstore.NewClient(cfg.PathstoreURL, cfg.PathstoreAPIKey), ""), nil
	default:
		return nil, fmt.Errorf("open store: unknown backend %q", cfg.StoreBackend)
	}
}
