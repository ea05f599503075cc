// Package pubsub fans run lifecycle events out to optional subscribers.
//
// # Overview
//
// The direct connector publishes a RunEvent after every durable state
// mutation (started, progress, log, done, failed). Publishing is
// always best-effort: Redis is never the system of record, and a
// publish failure never fails the mutation that triggered it. When
// REPROSERVER_REDIS_ADDR is unset, the in-process MemoryPubSub is used
// instead so the connector's publish calls stay unconditional.
//
// # Architecture
//
// ```
// ┌─────────────┐     ┌─────────────┐     ┌─────────────┐
// │   Direct    │     │   Redis     │     │  Live run   │
// │  Connector  │────▶│   Pub/Sub   │────▶│  status UI  │
// └─────────────┘     └─────────────┘     └─────────────┘
//
//	│                    │                   │
//
// ┌─────────────┐     ┌─────────────┐     ┌─────────────┐
// │ run_started │     │  Topic:     │     │ WebSocket   │
// │ run_progress│     │ run:{id}    │     │  Client     │
// │ run_done    │     │             │     │             │
// └─────────────┘     └─────────────┘     └─────────────┘
// ```
//
// # Usage
//
// Initialize the pub/sub client:
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//	ps := pubsub.NewRedisPubSub(redisClient)
//
// Publish an event:
//
//	err := ps.Publish(ctx, pubsub.RunTopic(runID), &pubsub.RunEvent{
//		Type:  pubsub.EventTypeRunStarted,
//		RunID: runID,
//	})
//
// Subscribe to events:
//
//	ch, unsub := ps.Subscribe(ctx, pubsub.RunTopic(runID))
//	defer unsub()
//	for msg := range ch {
//		var event pubsub.RunEvent
//		json.Unmarshal(msg, &event)
//		// Handle event
//	}
//
// # Topics
//
// Topics follow a hierarchical naming convention:
//   - run:{id} - Lifecycle and progress events for one run
//
// # Event Types
//
// events.go defines RunEvent, tagged with an EventType so a single
// subscription channel can distinguish started/progress/log/done/failed.
package pubsub
