// Command speechbridge exposes local speech recognition to client
// applications over a WebSocket command channel, and offers a push-to-talk
// dictation mode for the terminal.
package main

import "os"

func main() {
	if err := execute(); err != nil {
		os.Exit(1)
	}
}
