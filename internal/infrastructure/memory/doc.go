// Package memory implements every repository in process. It backs local
// development (STORE_BACKEND=memory, SYNC_STATE_BACKEND=memory) and tests.
// Each repository guards its state with a mutex, which also makes the
// compound operations (resolve, claim, transition) atomic.
package memory
