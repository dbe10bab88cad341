package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// Stats is the process-wide signaling counter. The client increments the
// envelope counters; the relay additionally tracks member connections and
// fan-out volume.
var Stats = &stats{}

type stats struct {
	EnvelopesSent atomic.Int64 // envelopes written to the WebSocket
	EnvelopesRecv atomic.Int64 // envelopes read from the WebSocket
	Relayed       atomic.Int64 // envelopes fanned out by the relay
	TotalConns    atomic.Int64 // cumulative member connections since process start
	ClosedConns   atomic.Int64 // cumulative member disconnections since process start
}

func (s *stats) AddSent()     { s.EnvelopesSent.Add(1) }
func (s *stats) AddReceived() { s.EnvelopesRecv.Add(1) }
func (s *stats) AddRelayed()  { s.Relayed.Add(1) }
func (s *stats) AddConn()     { s.TotalConns.Add(1) }
func (s *stats) RemoveConn()  { s.ClosedConns.Add(1) }

// StartStatsReporter launches a goroutine that logs signaling statistics
// every 10 seconds when something changed. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		var prevSent, prevRecv, prevRelayed, prevTotal, prevClosed int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.EnvelopesSent.Load()
				recv := Stats.EnvelopesRecv.Load()
				relayed := Stats.Relayed.Load()
				total := Stats.TotalConns.Load()
				closed := Stats.ClosedConns.Load()

				if sent != prevSent || recv != prevRecv || relayed != prevRelayed ||
					total != prevTotal || closed != prevClosed {
					pterm.DefaultLogger.Info(fmt.Sprintf(
						"Env: %d↑ %d↓ | Relayed: %d | Members: %d joined %d left",
						sent-prevSent, recv-prevRecv, relayed-prevRelayed,
						total-prevTotal, closed-prevClosed,
					))
				}

				prevSent = sent
				prevRecv = recv
				prevRelayed = relayed
				prevTotal = total
				prevClosed = closed

			case <-ctx.Done():
				return
			}
		}
	}()
}
