// Termtest is a testing tool for Unix terminal I/O. Lacking simple PTY support, running this
// tool manually is easier than writing an automated test: it puts the terminal into raw mode and
// echoes back whatever is typed, byte for byte, for five seconds.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/rvsim/rvsim/cmd/internal/console"
)

func main() {
	con, err := console.New(os.Stdin, os.Stdout)
	if err != nil {
		log.Fatal(err)
	}
	defer con.Restore()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})

	go func() {
		defer close(done)

		buf := make([]byte, 1)

		for {
			n, err := con.Read(buf)
			if err != nil {
				return
			}

			if n > 0 {
				if _, err := con.Write(buf[:n]); err != nil {
					return
				}
			}
		}
	}()

	select {
	case <-ctx.Done():
		con.Restore() // unblocks the pending Read before main returns.
	case <-done:
	}
}
