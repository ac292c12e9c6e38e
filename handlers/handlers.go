package handlers

import (
	"hoopsight/agent"
	"hoopsight/ratelimit"
	"hoopsight/store"
)

// @title           Hoopsight Analytics Chat API
// @version         1.0
// @description     Conversational analytics over a basketball statistics dataset - ask questions in natural language, get answers with SQL, data summaries and chart specs

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:9090
// @BasePath  /

// @schemes   http https

// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization

type Handlers struct {
	orchestrator *agent.Orchestrator
	limiter      *ratelimit.Limiter
	store        *store.Store
	adminAPIKey  string
}

func New(orchestrator *agent.Orchestrator, limiter *ratelimit.Limiter, st *store.Store, adminAPIKey string) *Handlers {
	return &Handlers{
		orchestrator: orchestrator,
		limiter:      limiter,
		store:        st,
		adminAPIKey:  adminAPIKey,
	}
}
