package invoice

import (
	"github.com/smallbiznis/billbook/internal/invoice/domain"
	"github.com/smallbiznis/billbook/internal/invoice/numbering"
	"github.com/smallbiznis/billbook/internal/invoice/render"
	"github.com/smallbiznis/billbook/internal/invoice/repository"
	"github.com/smallbiznis/billbook/internal/invoice/service"
	"github.com/smallbiznis/billbook/internal/observability/metrics"
	"github.com/smallbiznis/billbook/internal/tax"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("invoice.service",
	tax.Module,
	fx.Provide(repository.Provide),
	fx.Provide(numbering.ProvideIndex),
	fx.Provide(provideAssigner),
	fx.Provide(service.New),
	fx.Provide(render.NewRenderer),
)

type assignerParams struct {
	fx.In

	DB      *gorm.DB
	Repo    domain.Repository
	Index   numbering.Index
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

func provideAssigner(p assignerParams) *numbering.Assigner {
	return numbering.NewAssigner(p.Index, numbering.RepositoryLoader(p.DB, p.Repo), numbering.DefaultTemplate, p.Log, p.Metrics)
}
