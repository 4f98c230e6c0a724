package api

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
	"github.com/pulselabs/pulsevote/internal/api/handler"
	"github.com/pulselabs/pulsevote/internal/database"
	"github.com/pulselabs/pulsevote/internal/realtime"
	"github.com/pulselabs/pulsevote/internal/setup/config"
	"github.com/pulselabs/pulsevote/internal/trending"
	"github.com/pulselabs/pulsevote/internal/vote"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// Server wires the HTTP surface of the vote subsystem.
type Server struct {
	voteHandler     *handler.VoteHandler
	statsHandler    *handler.StatsHandler
	trendingHandler *handler.TrendingHandler
	wsHandler       *handler.WSHandler
}

// NewServer builds the HTTP handler serving votes, stats, trending and
// WebSocket subscriptions.
func NewServer(
	db database.Client,
	voteService *vote.Service,
	registry *realtime.Registry,
	store *trending.Store,
	cfg *config.Config,
	logger *zap.Logger,
) http.Handler {
	server := &Server{
		voteHandler:     handler.NewVoteHandler(voteService, logger),
		statsHandler:    handler.NewStatsHandler(db.Model().Poll(), store, registry, logger),
		trendingHandler: handler.NewTrendingHandler(store, &cfg.Trending, logger),
		wsHandler:       handler.NewWSHandler(registry, logger),
	}

	router := bunrouter.New()

	router.WithGroup("/v1", func(g *bunrouter.Group) {
		g.POST("/polls/:id/votes", server.voteHandler.CastVote)
		g.GET("/polls/:id/votes/check", server.voteHandler.CheckVote)
		g.GET("/polls/:id/stats", server.statsHandler.GetStats)
		g.GET("/trending", server.trendingHandler.GetTrending)
		g.GET("/connections", server.statsHandler.GetConnections)
		g.GET("/ws", server.wsHandler.Subscribe)
	})

	// Upgrades must see the raw connection; compress everything else
	return uncompressedWS(gzhttp.GzipHandler(router), router)
}

// uncompressedWS routes WebSocket upgrade requests around the gzip wrapper.
func uncompressedWS(compressed, raw http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/ws" {
			raw.ServeHTTP(w, r)
			return
		}

		compressed.ServeHTTP(w, r)
	})
}
