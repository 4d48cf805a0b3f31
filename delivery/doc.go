// Package delivery sends messages to captured recipients and keeps an
// encrypted log of what went out.
//
// The [Sender] interface abstracts the transport. The built-in [LogSender]
// only writes to the process log and is meant for development and tests;
// production deployments supply their own implementation.
//
// Recipient numbers in the delivery log are sealed through the vault cipher,
// matching the at-rest discipline of the capture store.
package delivery
