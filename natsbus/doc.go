// Package natsbus connects the engine to NATS. It carries workflow events
// and signals over core NATS subjects and backs the definition catalog with
// JetStream key-value buckets, so several processes can share one catalog
// and one signal plane.
//
// The package wraps the standard NATS Go client with circuit breaker
// protection, automatic reconnection with exponential backoff, and
// connection health monitoring. Two adapters sit on top of the shared
// Client: Bus implements workflow.EventBus, KVCatalogStore implements
// catalog.Store.
//
// # Subjects and wire format
//
// Every publication is the JSON encoding of workflow.Message. The subject
// is derived from the message topic and type:
//
//	kotoba.events.<type>    workflow and domain events
//	kotoba.signals.<name>   control signals aimed at waiting runs
//
// Event types and signal names are sanitized into a single subject token;
// characters NATS cannot carry in a token become underscores. Subscribers
// re-check the type from the envelope, so two names that sanitize to the
// same token never cross-deliver. Attribute filters are evaluated on the
// subscriber side; NATS only narrows by subject.
//
// External producers can address a waiting run directly by publishing the
// Message envelope to the matching signal subject:
//
//	nats pub kotoba.signals.approval '{"topic":"signals","type":"approval","attrs":{"order":"o-17"}}'
//
// # Basic usage
//
// Creating and connecting a client, then wiring the bus into a runner:
//
//	client, err := natsbus.NewClient("nats://localhost:4222",
//	    natsbus.WithName("kotoba-engine"),
//	    natsbus.WithCircuitBreakerThreshold(5),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	bus, err := natsbus.NewBus(client, logger)
//	if err != nil {
//	    return err
//	}
//	defer bus.Close()
//
//	runner, err := workflow.NewRunner(matcher, scheduler, cat, logger,
//	    workflow.WithBus(bus))
//
// # Catalog over JetStream KV
//
// KVCatalogStore maps catalog buckets onto JetStream key-value buckets of
// the same name, created on first use. Catalog keys may contain characters
// a KV key cannot ("sha256:..." refs carry a colon), so keys are escaped
// reversibly before they reach NATS:
//
//	store, err := natsbus.NewKVCatalogStore(client, logger)
//	if err != nil {
//	    return err
//	}
//	cat := catalog.New(store, logger)
//
// Two catalogs over the same bucket agree on every ref because the store
// holds the canonical bytes the refs were hashed from.
//
// # Circuit breaker
//
// The circuit opens after a threshold of consecutive connection failures
// (default 5) and fails fast with errors.ErrCircuitOpen while open. Backoff
// doubles per round up to a configurable maximum before the next probe.
// Operations against a disconnected client fail with errors.ErrNoConnection
// rather than blocking.
package natsbus
