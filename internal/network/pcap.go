package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// TelemetryPacket is one telemetry datagram recovered from a capture.
type TelemetryPacket struct {
	Data      []byte
	Timestamp time.Time
	SrcPort   int
	DstPort   int
}

// CaptureStats summarises one pass over a capture.
type CaptureStats struct {
	Packets   int
	Telemetry int
	Skipped   int
}

// ReadTelemetryPCAP walks a classic pcap stream and calls fn for every UDP
// payload addressed to udpPort (any port when udpPort is 0). Returning an
// error from fn stops the walk with that error.
func ReadTelemetryPCAP(ctx context.Context, r io.Reader, udpPort int, fn func(TelemetryPacket) error) (CaptureStats, error) {
	var stats CaptureStats
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return stats, fmt.Errorf("failed to read pcap header: %w", err)
	}

	src := gopacket.NewPacketSource(pr, pr.LinkType())
	src.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		packet, err := src.NextPacket()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("packet %d: %w", stats.Packets+1, err)
		}
		stats.Packets++

		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			stats.Skipped++
			continue
		}
		if udpPort != 0 && int(udp.DstPort) != udpPort {
			stats.Skipped++
			continue
		}
		stats.Telemetry++
		err = fn(TelemetryPacket{
			Data:      append([]byte(nil), udp.Payload...),
			Timestamp: packet.Metadata().Timestamp,
			SrcPort:   int(udp.SrcPort),
			DstPort:   int(udp.DstPort),
		})
		if err != nil {
			return stats, err
		}
	}
}

// ReadTelemetryPCAPFile is ReadTelemetryPCAP over a file on disk.
func ReadTelemetryPCAPFile(ctx context.Context, path string, udpPort int, fn func(TelemetryPacket) error) (CaptureStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return CaptureStats{}, fmt.Errorf("failed to open pcap file %s: %w", path, err)
	}
	defer f.Close()

	start := time.Now()
	stats, err := ReadTelemetryPCAP(ctx, f, udpPort, fn)
	logf("pcap %s: %d packets, %d telemetry, %d skipped in %v", path, stats.Packets, stats.Telemetry, stats.Skipped, time.Since(start))
	return stats, err
}
