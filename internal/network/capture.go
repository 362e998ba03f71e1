package network

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const snapLen = 65536

// CaptureWriter appends telemetry datagrams to a pcap stream as synthetic
// Ethernet/IPv4/UDP frames, so live sessions can be replayed later with
// ReadTelemetryPCAP.
type CaptureWriter struct {
	mu  sync.Mutex
	w   *pcapgo.Writer
	src *net.UDPAddr
	dst *net.UDPAddr
}

// NewCaptureWriter writes the pcap file header to w. Frames are stamped
// as travelling from src to dst.
func NewCaptureWriter(w io.Writer, src, dst *net.UDPAddr) (*CaptureWriter, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	return &CaptureWriter{w: pw, src: src, dst: dst}, nil
}

// WritePacket appends one datagram captured at ts.
func (c *CaptureWriter) WritePacket(ts time.Time, payload []byte) error {
	frame, err := EncodeUDPFrame(c.src, c.dst, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.WritePacket(gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(frame),
		Length:        len(frame),
	}, frame)
}

// EncodeUDPFrame serialises payload as an Ethernet frame carrying one
// IPv4 UDP datagram.
func EncodeUDPFrame(src, dst *net.UDPAddr, payload []byte) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    ipv4(src.IP),
		DstIP:    ipv4(dst.IP),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(src.Port),
		DstPort: layers.UDPPort(dst.Port),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("failed to serialise frame: %w", err)
	}
	return buf.Bytes(), nil
}

func ipv4(ip net.IP) net.IP {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return net.IPv4(127, 0, 0, 1).To4()
}
