// Package frame implements sentinel-based framing and reassembly for byte
// chunks arriving off a notification link.
//
// A link delivers opaque chunks with no length field and no framing beyond
// FIFO order. This package detects where a file transmission starts and ends
// inside that stream: a chunk whose first byte is the start sentinel (STX,
// 0x02 by default) opens a transfer session, and a chunk whose last byte is
// the end sentinel (ETX, 0x03 by default) closes it. Everything in between,
// sentinels included, is the payload.
//
// Example:
//
//	r, err := frame.NewReassembler(frame.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	r.OnFileComplete(func(fc frame.FileComplete) {
//	    fmt.Printf("received %d bytes as %s\n", fc.Size, fc.SuggestedName)
//	})
//
//	for chunk := range chunks {
//	    r.ProcessChunk(chunk)
//	}
//
// The reassembler is push-driven and single-session: chunks are processed
// one at a time to completion, and a start sentinel observed mid-transfer
// supersedes the in-flight session. All failures are recoverable; after any
// error the reassembler is idle and ready for the next transfer.
package frame
