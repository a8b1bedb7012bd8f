/*
Package runtime wires the reactorflow pipeline into a Reactor.

A Reactor owns:
  - the message pools (messagepool), one per registered type
  - the codec registry (wire) that frames messages on the wire
  - the dispatcher (dispatch) that hands decoded messages to handlers
  - the peer cache (registrar) in front of the lookup service
  - a watermill router consuming the topic of the reactor's channel

# Receiving

The router hands each transport message to the fragment handler, which
validates the frame bounds, decodes the frame into a pooled instance and
offers it to the dispatcher. Handlers never own the instance: it goes back
to its pool once every handler has returned. Only a frame the dispatcher
rejects is nacked; every other failure is counted, logged and acked.

# Sending

Callers take an instance with Checkout, fill it and pass it to Signal.
Signal resolves the target through the peer cache, encodes the frame and
publishes it to the target's channel topic. The instance is released
whatever the outcome.

# Admin

When enabled, the admin server exposes Prometheus metrics and a JSON view of
the pools, the dispatcher, the peers and the transport. See AdminRoutes.

# Usage

	conf := config.Default()
	conf.Name = "ping"
	r, err := runtime.NewReactor(ctx, &conf)
	if err != nil {
		return err
	}
	for _, m := range messages.All() {
		if err := r.RegisterMessage(m.Codec, m.Factory); err != nil {
			return err
		}
	}
	_ = runtime.RegisterHandler(r, messages.DemoTypeID, func(d *messages.Demo) error {
		return nil
	})
	return r.Start(ctx)
*/
package runtime
