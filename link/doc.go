// Package link defines the boundary between a wireless notification channel
// and the frame reassembler, plus reference adapters for testing and for
// stream-based transports.
//
// A Link is a push-based, single-subscriber source of opaque byte chunks:
// ordered, loss-free within one connection, with no backpressure and no
// framing of its own. Connection setup resolves the peer's notify
// characteristic with ResolveEndpoint, which reports failure variants as an
// explicit SetupResult value rather than through error control flow.
//
// Three adapters are provided:
//
//   - Loopback delivers chunks in-memory and is the primary test double.
//   - StreamLink slices any io.ReadCloser into MTU-sized chunks, mimicking
//     how a notification channel fragments a byte stream.
//   - NoiseLink runs a Noise-IK handshake over a net.Conn and carries each
//     chunk as one encrypted record, preserving chunk boundaries end to end.
//
// Real BLE bindings live outside this module; they only need to call the
// subscriber's ChunkHandler for each notification payload and the
// ClosedHandler when the connection drops.
package link
