// Package httpserver provides the HTTP server plumbing shared by the
// range-check daemons: a chi router with standard middleware, health and
// drain endpoints, structured request logging, an optional metrics server,
// and graceful shutdown.
//
// Components expose their routes by implementing RouteRegistrar and
// passing themselves to New. Every server built this way serves /livez,
// /readyz, /drain and /undrain, plus /debug pprof endpoints when enabled.
//
//	baseServer, err := httpserver.New(cfg, gatewayHandler)
//	if err != nil {
//	    return err
//	}
//	baseServer.RunInBackground()
//	defer baseServer.Shutdown()
//
// Drain flips /readyz to 503 and waits DrainDuration so load balancers
// stop routing before the process exits.
package httpserver
