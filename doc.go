// Package reactorflow is low-latency messaging middleware on top of Watermill.
// Reactors exchange typed, fixed-layout binary messages over a pub/sub
// transport. Decoding and dispatch borrow messages from per-type pools, so
// the receive path does not allocate per message.
//
// A Reactor is built from Config (see NewLoader for the YAML, environment and
// override layers), registers its message types with RegisterMessage, its
// handlers with RegisterHandler, and then Start publishes it on the lookup
// service and consumes its channel until the context is cancelled.
// Reactor.Signal resolves a peer by name, encodes the message into a frame
// and publishes it to the peer's channel.
//
// # Transports
//
// Every built-in transport is registered by importing this package:
//   - channel: in-process Go channels, shared by every reactor of the process
//   - kafka: consumer groups on Kafka
//   - rabbitmq: AMQP durable queues
//   - nats: core NATS
//   - nats-jetstream: JetStream streams
//   - http: fragments pushed to the peer's endpoint
//   - io: a shared append-only message log
//   - aws: SNS topics fanned out to SQS queues
//
// # Dispatch
//
// Handlers run either synchronously on the consuming goroutine ("sync") or
// on a dedicated worker fed through a single-producer ring ("queued"). A full
// ring applies backpressure through the configured idle strategy. Messages
// are released to their pool once every handler has seen them, so handlers
// must not keep them.
//
// # Middleware and hooks
//
// The default router middleware injects correlation ids, logs frames, traces
// with OpenTelemetry, records Prometheus router metrics and recovers panics.
// FrameHooks observe every consumed frame together with its result.
package reactorflow
