// Package lock provides per-key exclusive sections.
//
// KeyedMutex serializes callers inside one process. RedisLocker extends the
// guarantee across processes with a Redis lease (SET NX PX) that is released
// with a compare-and-delete script, so an expired lease taken over by another
// holder is never deleted by its previous owner.
package lock
