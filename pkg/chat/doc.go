// Package chat holds the per-identity conversation state and the protocol
// that folds a streamed model reply into it.
//
// A Store owns the ordered conversation collection and persists a full
// snapshot to the key-value store after every mutation. A Reconciler
// consumes a fragment sequence and rewrites the trailing model message of
// one conversation as fragments arrive. A Session ties both to the remote
// completer and transcriber and admits one send at a time.
package chat
