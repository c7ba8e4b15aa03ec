// Command simulate publishes a synthetic scan run through the Redis producer
// channel, for exercising a running server and its dashboards without lab
// hardware.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Burch-Group/labsync/internal/event"
	"github.com/Burch-Group/labsync/internal/producer"
)

func main() {
	redisURL := flag.String("redis-url", "redis://localhost:6379", "Redis connection URL")
	channel := flag.String("channel", producer.DefaultChannel, "Redis pub/sub channel")
	points := flag.Int("points", 200, "data points to emit")
	interval := flag.Duration("interval", 50*time.Millisecond, "delay between data points")
	sampleEvery := flag.Int("sample-every", 1, "broadcast every Nth data point")
	flag.Parse()

	opts, err := goredis.ParseURL(*redisURL)
	if err != nil {
		log.Fatalf("invalid redis URL: %v", err)
	}
	client := goredis.NewClient(opts)
	defer func() { _ = client.Close() }()

	clock := clockwork.NewRealClock()
	adapter := producer.NewAdapter(producer.NewRedisPublisher(client, *channel), clock, *sampleEvery)

	scanID := uuid.NewString()
	instrumentID := "sim-stage"
	fmt.Printf("simulating scan %s on channel %s\n", scanID, *channel)

	adapter.InstrumentStatus(instrumentID, event.StatusRunning, "")
	adapter.ScanStatus(scanID, event.StatusPending, 0, "queued")
	adapter.ScanStatus(scanID, event.StatusRunning, 0, "starting sweep")

	for i := 0; i < *points; i++ {
		x := float64(i) / float64(*points)
		adapter.DataPoint(scanID, "sweep", map[string]float64{
			"x":      x,
			"signal": math.Sin(2 * math.Pi * x),
		})
		adapter.InstrumentPosition(instrumentID, map[string]float64{"x": x}, map[string]float64{"x": 1}, true)
		if i%20 == 0 {
			adapter.ScanStatus(scanID, event.StatusRunning, x, "")
			adapter.LogEntry(event.ScanRoom(scanID), "info", fmt.Sprintf("sweep at %.0f%%", x*100))
		}
		time.Sleep(*interval)
	}

	adapter.InstrumentPosition(instrumentID, map[string]float64{"x": 1}, nil, false)
	adapter.ScanStatus(scanID, event.StatusCompleted, 1, "sweep complete")
	adapter.ScanFinished(scanID)
	fmt.Println("done")
}
