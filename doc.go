// Package bleframe receives files transmitted over a low-power wireless
// link's notification channel. The channel delivers opaque byte chunks with
// no length field and no framing beyond FIFO order; bleframe detects where a
// file transmission starts and ends using sentinel bytes (STX 0x02 / ETX
// 0x03 by default), accumulates the payload, and hands each completed file
// off exactly once.
//
// Example:
//
//	options := bleframe.NewOptions()
//	options.Storage = storage.NewDirProvider("/var/incoming")
//	options.StallTimeout = 30 * time.Second
//
//	receiver, err := bleframe.New(lnk, options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer receiver.Kill()
//
//	receiver.OnFileSaved(func(path string, fc frame.FileComplete) {
//	    fmt.Printf("saved %d bytes to %s\n", fc.Size, path)
//	})
//	receiver.OnTransferError(func(te frame.TransferError) {
//	    fmt.Printf("transfer failed: %s: %s\n", te.Kind, te.Detail)
//	})
//
//	for receiver.IsRunning() {
//	    receiver.CheckStall()
//	    time.Sleep(time.Second)
//	}
//
// Device discovery, pairing, and the platform BLE bindings are outside this
// module: any source implementing link.Link can drive a Receiver, and the
// link package ships in-memory, stream, and Noise-encrypted adapters.
package bleframe
