// Package publisher announces finished provisioning output to external
// systems (Kafka, NATS JetStream) so downstream loaders can pick up bulk
// files as soon as they are ready.
//
// # Events
//
// A run emits one EventTableFinalized or EventTableFailed per table, in the
// profile's declared table order, followed by a single EventRunCompleted.
// Payloads are msgpack encoded Event values.
//
// # Routing
//
// Every configured [[notify]] sink receives every event whose table matches
// its filter_tables globs. Run events carry no table and always match.
//
//	[[notify]]
//	name = "loader"
//	type = "kafka"
//	brokers = ["localhost:9092"]
//	topic = "provision.bulk"
//	filter_tables = ["impi", "impu"]
//
// The message key is "<profile>/<table>" for table events and "<profile>"
// for run events, so all events of one table land on one partition.
//
// # Delivery
//
// Publishing retries with exponential backoff until MaxRetries is reached or
// the context is cancelled. A sink that keeps failing never fails the run;
// the outcome is logged and counted in notifications_total.
package publisher
