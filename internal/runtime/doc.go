// Package runtime defines the control surface of a managed tenant runtime
// and provides the JSON-RPC client used to talk to it.
//
// The reconciliation engine treats a runtime as an opaque collaborator with
// three capabilities: discover modules, install a single module, and report
// installed modules. Everything the engine knows about a tenant flows through
// the Client interface, which makes the engine fully testable against a
// scripted runtime (see internal/testing/mock).
//
// # Error Classes
//
// Transport failures (host unreachable, non-200 status, garbled payload) are
// reported as *ConnectionError. Application failures (the runtime was reached
// but refused or failed the operation) are reported as *RPCError. The engine
// treats only ConnectionError during discovery and validation as fatal.
package runtime
