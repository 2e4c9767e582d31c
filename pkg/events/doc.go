/*
Package events distributes converge stage events to interested consumers.

The apply runner publishes every stage transition (started, ok, failed)
through a Broker. Subscribers receive events on buffered channels and may
filter by run id; slow subscribers are skipped rather than blocking the
run. The CLI subscribes to stream progress while the run record in the
state store accumulates the same events for later inspection.
*/
package events
