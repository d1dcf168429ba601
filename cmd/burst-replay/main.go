// Command burst-replay reads a pcap capture of sensor-node UDP traffic
// and resends each hit_bundle datagram to a target address, pacing
// sends by the packets' original relative timestamps. It exists to
// replay field captures against a running impactrange instance without
// needing the physical sensor node, the same role cmd/pcap-test's
// gopacket extraction played for the lidar parser during development.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/banshee-data/impactrange/internal/burst"
)

var (
	pcapPath  = flag.String("pcap", "", "path to a pcap/pcapng capture of sensor UDP traffic")
	sourcePort = flag.Int("port", 2368, "UDP source/destination port the burst traffic was captured on")
	target    = flag.String("target", "127.0.0.1:2368", "address to replay datagrams to")
	speed     = flag.Float64("speed", 1.0, "replay speed multiplier; 0 disables pacing and sends as fast as possible")
	validate  = flag.Bool("validate", true, "skip datagrams that don't parse as a hit_bundle burst")
)

func main() {
	flag.Parse()
	if *pcapPath == "" {
		fmt.Fprintln(os.Stderr, "burst-replay: -pcap is required")
		os.Exit(1)
	}

	handle, err := pcap.OpenOffline(*pcapPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "burst-replay: failed to open %s: %v\n", *pcapPath, err)
		os.Exit(1)
	}
	defer handle.Close()

	conn, err := net.Dial("udp", *target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "burst-replay: failed to dial %s: %v\n", *target, err)
		os.Exit(1)
	}
	defer conn.Close()

	chanMap := burst.DefaultChannelMap()
	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())

	var firstCapture, firstSend time.Time
	sent, skipped := 0, 0

	for packet := range packetSource.Packets() {
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp := udpLayer.(*layers.UDP)
		if int(udp.DstPort) != *sourcePort && int(udp.SrcPort) != *sourcePort {
			continue
		}
		payload := udp.Payload
		if len(payload) == 0 {
			continue
		}

		if *validate {
			if _, err := burst.Parse(payload, chanMap); err != nil {
				skipped++
				continue
			}
		}

		capTime := packet.Metadata().Timestamp
		if firstCapture.IsZero() {
			firstCapture = capTime
			firstSend = time.Now()
		} else if *speed > 0 {
			wantElapsed := time.Duration(float64(capTime.Sub(firstCapture)) / *speed)
			sleepFor := wantElapsed - time.Since(firstSend)
			if sleepFor > 0 {
				time.Sleep(sleepFor)
			}
		}

		if _, err := conn.Write(payload); err != nil {
			fmt.Fprintf(os.Stderr, "burst-replay: write failed: %v\n", err)
			continue
		}
		sent++
	}

	fmt.Printf("burst-replay: sent %d datagrams, skipped %d unparseable\n", sent, skipped)
}
