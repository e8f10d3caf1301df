// Package entropy implements the conditioned-byte pipeline for TL100/TL200
// hardware random number generators: it fetches raw noise blocks over a
// command/response transport, whitens them through the conditioner, scans the
// result with the online health tests, and buffers the conditioned bytes for
// consumption.
//
// The pipeline is fully serialized: one exclusive, interruptible lock guards
// every read and refill. Raw and conditioned buffers are owned by the
// pipeline and never escape by reference; callers only ever receive copies.
package entropy
