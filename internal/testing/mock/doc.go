// Package mock provides scripted test doubles for the tenant runtime
// control surface, so engine and watcher behavior can be tested without a
// real runtime.
package mock
