package cli

import (
	"go.uber.org/fx"

	"github.com/vvka-141/pgdbapi/internal/app"
	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

func newTestApp(rt *runtimeEnv, connector dbapi.Connector) *fx.App {
	return fx.New(
		app.Options(app.Params{
			Config:     rt.config,
			Connection: rt.connection,
			Logger:     rt.logger,
			Connector:  connector,
		}),
	)
}
