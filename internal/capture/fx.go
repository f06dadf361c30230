package capture

import "go.uber.org/fx"

var Module = fx.Module("capture.orchestrator",
	fx.Provide(NewOrchestrator),
)
