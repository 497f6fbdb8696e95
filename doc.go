// Package relay is an API gateway core that routes client requests to
// downstream services with rate limiting, per-destination circuit breaking
// and bounded retry.
//
// relay composes a service registry, a fixed-window rate limiter, a
// circuit breaker per destination, a retrying dispatcher and a health
// aggregator behind one HTTP surface.
//
// # Quick Start
//
//	gw, err := relay.New(map[string]string{
//	    "orders":  "http://orders.internal:8080",
//	    "billing": "http://billing.internal:8080",
//	}, relay.WithRetries(3), relay.WithListenAddr(":8080"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer gw.Close()
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	if err := gw.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Separate Components
//
// Each capability is usable on its own:
//
//	// Only the resilient dispatcher, no HTTP server
//	import "github.com/prilive-com/relay/dispatch"
//
//	// Only per-destination circuit breakers
//	import "github.com/prilive-com/relay/breaker"
//
//	// Only client rate limiting
//	import "github.com/prilive-com/relay/ratelimit"
//
// # Errors
//
// Failures surface as the gw package's taxonomy. Match broad classes with
// errors.Is and sentinel values, or extract detail with errors.As:
//
//	import "github.com/prilive-com/relay/gw"
//
//	resp, err := gateway.Dispatch(ctx, req)
//	if errors.Is(err, gw.ErrCircuitOpen) {
//	    // destination is being protected, back off
//	}
//
// # Configuration
//
// Every component loads from RELAY_* environment variables via
// relay.NewFromEnv; explicit Options override the environment.
package relay
