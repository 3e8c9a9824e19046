package upload

import (
	"context"
	"io"
	"net"
	"os"
	"time"

	"github.com/dlan-project/dlan-core/chunkstore"
	"github.com/dlan-project/dlan-core/ratelimit"
)

// ErrPreempted is returned when a stream is cut short by
// upload_lifetime, per spec.md §4.7.
type ErrPreempted struct{}

func (ErrPreempted) Error() string { return "upload: stream preempted after upload_lifetime" }

// StreamChunk opens a read handle on c's owning file and streams its
// bytes to conn (wrapped to cap the outbound byte rate), honoring
// ctx cancellation and a hard upload_lifetime deadline. On completion
// or error the read handle is always released.
func StreamChunk(ctx context.Context, conn net.Conn, c *chunkstore.Chunk, bytesPerSecond int64, lifetime time.Duration) error {
	f := c.Owner()
	if f == nil {
		return os.ErrNotExist
	}

	ctx, cancel := context.WithTimeout(ctx, lifetime)
	defer cancel()

	c.AddRef()
	defer c.Release()

	file, err := os.Open(f.AbsDiskPath())
	if err != nil {
		return err
	}
	defer file.Close()

	offset := int64(0)
	for i := 0; i < c.Num(); i++ {
		offset += f.Chunks()[i].Size()
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return err
	}

	limited := ratelimit.NewRLConn(conn, bytesPerSecond)

	buf := make([]byte, 64*1024)
	remaining := c.Size()
	for remaining > 0 {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return ErrPreempted{}
			}
			return ctx.Err()
		default:
		}
		if c.Owner() == nil {
			return io.ErrUnexpectedEOF // chunk went unknown mid-stream
		}

		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		rn, rerr := file.Read(buf[:n])
		if rn > 0 {
			if _, werr := limited.Write(buf[:rn]); werr != nil {
				return werr
			}
			remaining -= int64(rn)
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return rerr
		}
	}
	return nil
}
